package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/scottyhq/dinoSARaws/common"
	"github.com/scottyhq/dinoSARaws/interface/provider"
	"github.com/scottyhq/dinoSARaws/isce"
	"github.com/scottyhq/dinoSARaws/service"
	"github.com/scottyhq/dinoSARaws/service/log"
	"golang.org/x/sync/errgroup"
)

const (
	// OrbitsDir is the directory of the precise orbits in the working directory of the pair
	OrbitsDir = "orbits"
	// AuxDir is the default directory of the auxiliary calibration files
	AuxDir = "aux"
)

// Downloader prepares the inputs of topsApp.py for a pair of acquisitions
type Downloader struct {
	SLCProviders []provider.SLCProvider
	AuxProvider  *provider.AuxProvider // nil to skip orbits and aux-cal files
	AuxDir       string                // Shared directory of aux-cal files (default: <workdir>/aux)
	Parallel     int                   // Number of parallel SLC downloads (default: 1)
	SkipDownload bool                  // Only write download-links.txt and topsApp.xml
}

// DownloadScene downloads the SLC with the first successful provider and returns the path of the local file
func (d *Downloader) DownloadScene(ctx context.Context, sceneName, localDir string) (string, error) {
	if len(d.SLCProviders) == 0 {
		return "", fmt.Errorf("DownloadScene: no SLC provider")
	}
	log.Logger(ctx).Sugar().Infof("downloading %s", sceneName)
	var err error
	for _, slcProvider := range d.SLCProviders {
		file, e := slcProvider.Download(ctx, sceneName, localDir)
		if err = service.MergeErrors(false, err, e); err == nil {
			log.Logger(ctx).Sugar().Debugf("%s downloaded from %s", sceneName, slcProvider.Name())
			return file, nil
		}
		log.Logger(ctx).Sugar().Warnf("%s: %v", slcProvider.Name(), e)
	}
	return "", fmt.Errorf("DownloadScene.SLCProviders.%w", err)
}

// PreparePair creates the working directory of the pair, downloads the SLCs, orbits and aux-cal files
// and writes topsApp.xml. urls are written to download-links.txt (if not empty).
// Returns the path of topsApp.xml
func (d *Downloader) PreparePair(ctx context.Context, root string, pair common.Pair, attrs common.PairAttrs, urls []string) (string, error) {
	w, err := isce.NewWorkdir(root, pair)
	if err != nil {
		return "", service.MakeTemporary(fmt.Errorf("PreparePair.%w", err))
	}
	ctx = log.With(ctx, "pair", pair.IntName())

	if len(urls) > 0 {
		if _, err := w.WriteDownloadLinks(urls); err != nil {
			return "", fmt.Errorf("PreparePair.%w", err)
		}
	}

	config := isce.Config{
		ReferenceScenes: attrs.MainScenes,
		SecondaryScenes: attrs.SecondaryScenes,
		Swaths:          attrs.Swaths,
		ROI:             attrs.ROI,
		GeocodeBox:      attrs.GeocodeBox,
		DEM:             attrs.DEM,
	}
	if err := config.Validate(); err != nil {
		return "", service.MakeFatal(fmt.Errorf("PreparePair: %w", err))
	}

	if d.SkipDownload {
		config.ReferenceScenes = localNames(attrs.MainScenes)
		config.SecondaryScenes = localNames(attrs.SecondaryScenes)
	} else {
		if config.ReferenceScenes, err = d.downloadScenes(ctx, attrs.MainScenes, w.Dir()); err != nil {
			return "", fmt.Errorf("PreparePair.%w", err)
		}
		if config.SecondaryScenes, err = d.downloadScenes(ctx, attrs.SecondaryScenes, w.Dir()); err != nil {
			return "", fmt.Errorf("PreparePair.%w", err)
		}
		if d.AuxProvider != nil {
			if config.OrbitDir, config.AuxDir, err = d.downloadAux(ctx, w, attrs); err != nil {
				return "", fmt.Errorf("PreparePair.%w", err)
			}
		}
	}

	file, err := config.Write(w.Dir())
	if err != nil {
		return "", fmt.Errorf("PreparePair.%w", err)
	}
	log.Logger(ctx).Sugar().Infof("%s written", file)
	return file, nil
}

// downloadScenes returns the names of the local files, relative to dir, in the order of sceneNames
func (d *Downloader) downloadScenes(ctx context.Context, sceneNames []string, dir string) ([]string, error) {
	files := make([]string, len(sceneNames))
	wg, gctx := errgroup.WithContext(ctx)
	if d.Parallel > 1 {
		wg.SetLimit(d.Parallel)
	} else {
		wg.SetLimit(1)
	}
	for i, sceneName := range sceneNames {
		i, sceneName := i, sceneName
		wg.Go(func() error {
			file, err := d.DownloadScene(gctx, sceneName, dir)
			if err != nil {
				return err
			}
			files[i] = filepath.Base(file)
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return nil, fmt.Errorf("downloadScenes.%w", err)
	}
	return files, nil
}

// downloadAux downloads the precise orbits of all the scenes and the aux-cal files.
// A missing precise orbit is not an error: topsApp falls back on the orbits of the SAFE.
func (d *Downloader) downloadAux(ctx context.Context, w isce.Workdir, attrs common.PairAttrs) (string, string, error) {
	orbitDir := w.Path(OrbitsDir)
	if err := os.MkdirAll(orbitDir, 0755); err != nil {
		return "", "", service.MakeTemporary(fmt.Errorf("downloadAux: %w", err))
	}
	downloaded := map[string]bool{}
	for _, scene := range append(append([]string{}, attrs.MainScenes...), attrs.SecondaryScenes...) {
		info, err := common.Info(scene)
		if err != nil {
			return "", "", service.MakeFatal(fmt.Errorf("downloadAux: %w", err))
		}
		key := info["MISSION_ID"] + info["DATE"]
		if downloaded[key] {
			continue
		}
		if _, err := d.AuxProvider.DownloadOrbit(ctx, scene, orbitDir); err != nil {
			log.Logger(ctx).Sugar().Warnf("precise orbit of %s: %v", scene, err)
			continue
		}
		downloaded[key] = true
	}

	auxDir := d.AuxDir
	if auxDir == "" {
		auxDir = w.Path(AuxDir)
	}
	if err := os.MkdirAll(auxDir, 0755); err != nil {
		return "", "", service.MakeTemporary(fmt.Errorf("downloadAux: %w", err))
	}
	names, err := d.AuxProvider.DownloadAuxCal(ctx, auxDir)
	if err != nil {
		return "", "", fmt.Errorf("downloadAux.%w", err)
	}
	if len(names) > 0 {
		log.Logger(ctx).Sugar().Debugf("%d aux-cal files downloaded", len(names))
	}
	return orbitDir, auxDir, nil
}

func localNames(sceneNames []string) []string {
	names := make([]string, len(sceneNames))
	for i, s := range sceneNames {
		names[i] = service.WithExt(s, service.ExtensionZIP)
	}
	return names
}
