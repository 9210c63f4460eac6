package provider

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/scottyhq/dinoSARaws/common"
	"github.com/scottyhq/dinoSARaws/service"
	"github.com/scottyhq/dinoSARaws/service/log"
	"golang.org/x/net/html"
)

const (
	// ASFPreciseOrbitsURL lists the precise orbit files
	ASFPreciseOrbitsURL = "https://s1qc.asf.alaska.edu/aux_poeorb"
	// ASFAuxCalURL lists the auxiliary calibration files
	ASFAuxCalURL = "https://s1qc.asf.alaska.edu/aux_cal"
)

// AuxProvider downloads the auxiliary files of Sentinel-1 products (precise orbits and calibration) from html directory listings
type AuxProvider struct {
	OrbitsURL string
	AuxCalURL string
	Retries   int
}

// NewAuxProvider returns an AuxProvider for the ASF Sentinel-1 QC server
func NewAuxProvider() *AuxProvider {
	return &AuxProvider{OrbitsURL: ASFPreciseOrbitsURL, AuxCalURL: ASFAuxCalURL, Retries: 3}
}

// ListLinks returns the targets of the <a href> of an html page
func (ap *AuxProvider) ListLinks(ctx context.Context, url string) ([]string, error) {
	body, err := service.GetBodyRetry(ctx, url, ap.Retries)
	if err != nil {
		return nil, fmt.Errorf("ListLinks.%w", err)
	}
	links, err := ParseLinks(body)
	if err != nil {
		return nil, fmt.Errorf("ListLinks[%s].%w", url, err)
	}
	return links, nil
}

// ParseLinks returns the targets of the <a href> of an html page, in order of appearance
func ParseLinks(page []byte) ([]string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("ParseLinks: %w", err)
	}
	var links []string
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					links = append(links, attr.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)
	return links, nil
}

// FindOrbit returns the first precise orbit file of the mission (S1A, S1B) whose validity starts the day before the date of acquisition
func FindOrbit(links []string, missionID string, date time.Time) (string, error) {
	dayBefore := date.AddDate(0, 0, -1).Format(common.DateFormat)
	for _, link := range links {
		name := filepath.Base(link)
		if !strings.HasPrefix(name, missionID) || common.GetFileKind(name) != common.FileKindPOEORB {
			continue
		}
		if info, err := common.Info(name); err == nil && info["DATE"] == dayBefore {
			return link, nil
		}
	}
	return "", ErrProductNotFound{fmt.Sprintf("%s precise orbit for %s", missionID, date.Format(common.DateFormat))}
}

// DownloadOrbit downloads the precise orbit of the SLC product to localDir and returns its path.
// The file is not downloaded if it already exists.
func (ap *AuxProvider) DownloadOrbit(ctx context.Context, sceneName, localDir string) (string, error) {
	info, err := common.Info(sceneName)
	if err != nil || common.GetFileKind(sceneName) != common.FileKindSLC {
		return "", fmt.Errorf("DownloadOrbit: not a Sentinel-1 SLC: %s", sceneName)
	}
	date, err := time.Parse(common.DateFormat, info["DATE"])
	if err != nil {
		return "", fmt.Errorf("DownloadOrbit: %w", err)
	}
	links, err := ap.ListLinks(ctx, ap.OrbitsURL)
	if err != nil {
		return "", fmt.Errorf("DownloadOrbit.%w", err)
	}
	link, err := FindOrbit(links, info["MISSION_ID"], date)
	if err != nil {
		return "", fmt.Errorf("DownloadOrbit: %w", err)
	}
	log.Logger(ctx).Sugar().Debugf("downloading orbit for %s, %s: %s", info["MISSION_ID"], info["DATE"], link)
	return ap.downloadLink(ctx, ap.OrbitsURL, link, localDir)
}

// DownloadAuxCal downloads and extracts all the zipped auxiliary calibration files (SAFE) of the listing that are not already in localDir. Returns the names of the new files
func (ap *AuxProvider) DownloadAuxCal(ctx context.Context, localDir string) ([]string, error) {
	links, err := ap.ListLinks(ctx, ap.AuxCalURL)
	if err != nil {
		return nil, fmt.Errorf("DownloadAuxCal.%w", err)
	}
	var names []string
	for _, link := range links {
		name := filepath.Base(strings.TrimSuffix(link, "/"))
		if common.GetFileKind(name) != common.FileKindAUXCAL || !strings.HasSuffix(name, ".SAFE."+string(service.ExtensionZIP)) {
			continue
		}
		safe := strings.TrimSuffix(name, "."+string(service.ExtensionZIP))
		if _, err := os.Stat(filepath.Join(localDir, safe)); err == nil {
			continue
		}
		file, err := ap.downloadLink(ctx, ap.AuxCalURL, link, localDir)
		if err != nil {
			return names, fmt.Errorf("DownloadAuxCal.%w", err)
		}
		if err := unarchive(file, localDir); err != nil {
			return names, fmt.Errorf("DownloadAuxCal.Unarchive: %w", err)
		}
		os.Remove(file)
		names = append(names, safe)
	}
	sort.Strings(names)
	return names, nil
}

func (ap *AuxProvider) downloadLink(ctx context.Context, baseURL, link, localDir string) (string, error) {
	url := link
	if !strings.Contains(link, "://") {
		url = strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(link, "/")
	}
	dst := filepath.Join(localDir, filepath.Base(link))
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	}
	return downloadFile(ctx, nil, url, dst, filepath.Base(link))
}
