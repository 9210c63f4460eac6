package isce

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/scottyhq/dinoSARaws/common"
)

const (
	// DownloadLinksFile lists the SLC and orbit urls of the pair
	DownloadLinksFile = "download-links.txt"
	// MergedDir is the directory of the geocoded outputs of topsApp
	MergedDir = "merged"
	// OutputDir is the directory of the files to publish
	OutputDir = "output"
	// LogFile is the log of topsApp.py
	LogFile = "topsApp.log"
)

// Workdir is the processing directory of an interferogram: <root>/int-<main>-<secondary>
type Workdir struct {
	Root string
	Pair common.Pair
}

// NewWorkdir creates the processing directory of the pair
func NewWorkdir(root string, pair common.Pair) (Workdir, error) {
	w := Workdir{Root: root, Pair: pair}
	if err := os.MkdirAll(w.Dir(), 0755); err != nil {
		return w, fmt.Errorf("NewWorkdir: %w", err)
	}
	return w, nil
}

// Dir returns the path of the processing directory
func (w Workdir) Dir() string {
	return filepath.Join(w.Root, w.Pair.IntName())
}

// Path returns the path of a file of the processing directory
func (w Workdir) Path(elem ...string) string {
	return filepath.Join(append([]string{w.Dir()}, elem...)...)
}

// WriteDownloadLinks writes the list of urls to download, one per line
func (w Workdir) WriteDownloadLinks(urls []string) (string, error) {
	file := w.Path(DownloadLinksFile)
	if err := os.WriteFile(file, []byte(strings.Join(urls, "\n")), 0644); err != nil {
		return "", fmt.Errorf("WriteDownloadLinks: %w", err)
	}
	return file, nil
}

// CollectOutputs moves the published files (products, colour ramps, browse images, tiles, index) to the output directory
// and returns their names, sorted
func (w Workdir) CollectOutputs(patterns ...string) ([]string, error) {
	if len(patterns) == 0 {
		patterns = []string{"*-cog.tif", "*-cog.cpt", "*-cog-*", "index.html"}
	}
	out := w.Path(OutputDir)
	if err := os.MkdirAll(out, 0755); err != nil {
		return nil, fmt.Errorf("CollectOutputs: %w", err)
	}
	var names []string
	for _, pattern := range patterns {
		files, err := filepath.Glob(w.Path(pattern))
		if err != nil {
			return nil, fmt.Errorf("CollectOutputs: %w", err)
		}
		for _, f := range files {
			name := filepath.Base(f)
			if err := os.Rename(f, filepath.Join(out, name)); err != nil {
				return nil, fmt.Errorf("CollectOutputs: %w", err)
			}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
