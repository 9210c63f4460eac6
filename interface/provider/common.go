package provider

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/cavaliercoder/grab"
	"github.com/mholt/archiver"
	"github.com/scottyhq/dinoSARaws/service"
	"github.com/scottyhq/dinoSARaws/service/log"
)

// ErrProductNotFound is an error returned when a product is not found or available
type ErrProductNotFound struct {
	Product string
}

func (e ErrProductNotFound) Error() string {
	return fmt.Sprintf("Product not found or unavailable: %s", e.Product)
}

func fmtBytes(bytes int64) string {
	v := float64(bytes)
	switch {
	case v > 1<<30:
		return fmt.Sprintf("%.2fGo", v/(1<<30))
	case v > 1<<20:
		return fmt.Sprintf("%.2fMo", v/(1<<20))
	case v > 1<<10:
		return fmt.Sprintf("%.2fko", v/(1<<10))
	default:
		return fmt.Sprintf("%.2fo", v)
	}
}

// Progress logs the progress of a download every <period> percents
type Progress struct {
	ctx      context.Context
	prefix   string
	total    int64
	period   float64
	mutex    sync.Mutex
	current  int64
	progress float64
	start    time.Time
}

// NewProgress creates a progress logger for a download of total bytes (total may be 0 if unknown)
func NewProgress(ctx context.Context, prefix string, total int64, periodPercent float64) *Progress {
	return &Progress{ctx: ctx, prefix: prefix, total: total, period: periodPercent / 100, start: time.Now()}
}

// UpdateDelta adds n bytes to the progress
func (p *Progress) UpdateDelta(n int64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.current += n
	if p.total <= 0 {
		return
	}
	if ratio := float64(p.current) / float64(p.total); ratio >= p.progress+p.period || p.current == p.total {
		p.progress = ratio
		speed := float64(p.current) / time.Since(p.start).Seconds()
		log.Logger(p.ctx).Sugar().Debugf("%s: %.2f%% %s/%s (%s/s)", p.prefix, 100*ratio, fmtBytes(p.current), fmtBytes(p.total), fmtBytes(int64(speed)))
	}
}

func displayProgress(ctx context.Context, prefix string, resp *grab.Response, progressPeriod float64) {
	t := time.NewTicker(time.Second)
	defer t.Stop()

	progress, lastBytes, seconds := 0.0, int64(0), int64(0)
	for {
		select {
		case <-t.C:
			seconds++
			if resp.Progress() > progress {
				log.Logger(ctx).Sugar().Debugf("%s: %.2f%% %s/%s (%s/s)", prefix, 100*resp.Progress(), fmtBytes(resp.BytesComplete()), fmtBytes(resp.Size), fmtBytes((resp.BytesComplete()-lastBytes)/seconds))
				seconds = 0
				progress += progressPeriod
				lastBytes = resp.BytesComplete()
			}

		case <-resp.Done:
			return
		}
	}
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("stopped after 10 redirects")
	}
	return nil
}

// downloadFile downloads url to dst using the http client (nil for the default client).
// An existing complete file is not downloaded again, a partial file is resumed.
func downloadFile(ctx context.Context, httpClient *http.Client, url, dst, displayPrefix string) (string, error) {
	req, err := grab.NewRequest(dst, url)
	if err != nil {
		return "", fmt.Errorf("downloadFile.NewRequest: %w", err)
	}
	req = req.WithContext(ctx)

	client := grab.NewClient()
	if httpClient != nil {
		client.HTTPClient = httpClient
	}
	if err := download(ctx, client, req, displayPrefix); err != nil {
		return "", fmt.Errorf("downloadFile.%w", err)
	}
	return dst, nil
}

// download a file with display every 5%
func download(ctx context.Context, client *grab.Client, req *grab.Request, displayPrefix string) error {
	resp := client.Do(req)

	displayProgress(ctx, displayPrefix, resp, 0.05)

	if err := resp.Err(); err != nil {
		err = fmt.Errorf("download[%s]: %w", req.URL(), err)
		if resp.HTTPResponse == nil {
			return service.MakeTemporary(err)
		}
		switch resp.HTTPResponse.StatusCode {
		case 404:
			return fmt.Errorf("%w: %v", ErrProductNotFound{req.URL().String()}, err)
		case 408, 429, 500, 501, 502, 503, 504:
			return service.MakeTemporary(err)
		default:
			return err
		}
	}
	return nil
}

// unarchive file with basic check. All errors are temporary.
func unarchive(localZip, localDir string) error {
	tmpdir, err := os.MkdirTemp(localDir, filepath.Base(localZip))
	if err != nil {
		return service.MakeTemporary(err)
	}
	defer os.RemoveAll(tmpdir)
	if err := archiver.Unarchive(localZip, tmpdir); err != nil {
		return service.MakeTemporary(err)
	}
	files, err := os.ReadDir(tmpdir)
	if err != nil {
		return service.MakeTemporary(err)
	}
	if len(files) == 0 {
		return service.MakeTemporary(fmt.Errorf("empty zip"))
	}
	for _, f := range files {
		if err := os.Rename(filepath.Join(tmpdir, f.Name()), filepath.Join(localDir, f.Name())); err != nil {
			return service.MakeTemporary(err)
		}
	}
	return nil
}

// sceneFilePath returns the path of the zipped scene, given the directory and the scene name
func sceneFilePath(dir, sceneName string) string {
	return path.Join(dir, sceneName+"."+string(service.ExtensionZIP))
}
