package catalog

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/go-spatial/geom/encoding/geojson"
	"github.com/scottyhq/dinoSARaws/catalog/entities"
	"github.com/scottyhq/dinoSARaws/common"
	"github.com/scottyhq/dinoSARaws/service/log"
)

const (
	// SummaryFile is the name of the csv written by WriteSummary
	SummaryFile = "inventory_summary.csv"
	// FrameSizeGB is the approximate size of a Sentinel-1 SLC frame
	FrameSizeGB = 5
)

// OrbitSummary gives basic statistics on the scenes of a relative orbit
type OrbitSummary struct {
	Orbit     int
	Start     string // First date (2006-01-02)
	Stop      string // Last date
	Dates     int    // Number of distinct dates
	Frames    int    // Number of scenes
	Direction string
	UTC       string // Time of the first acquisition
}

// Acquisition is a date of acquisition of a relative orbit
type Acquisition struct {
	Date     string // 2006-01-02
	Platform string // Platform of the first scene of this date
	DT       int    // Days since the previous acquisition (0 for the first one)
	Frames   int
}

// Summarize returns the statistics per relative orbit, sorted by orbit number descending
func Summarize(scenes entities.Scenes) []OrbitSummary {
	byOrbit := map[int]*OrbitSummary{}
	dates := map[int]map[string]struct{}{}
	for _, s := range scenes {
		o, ok := byOrbit[s.RelativeOrbit]
		if !ok {
			o = &OrbitSummary{
				Orbit:     s.RelativeOrbit,
				Start:     s.DateString,
				Stop:      s.DateString,
				Direction: s.FlightDirection.String(),
				UTC:       s.UTC,
			}
			byOrbit[s.RelativeOrbit] = o
			dates[s.RelativeOrbit] = map[string]struct{}{}
		}
		if s.DateString < o.Start {
			o.Start = s.DateString
		}
		if s.DateString > o.Stop {
			o.Stop = s.DateString
		}
		o.Frames++
		dates[s.RelativeOrbit][s.DateString] = struct{}{}
	}

	summary := make([]OrbitSummary, 0, len(byOrbit))
	for orbit, o := range byOrbit {
		o.Dates = len(dates[orbit])
		summary = append(summary, *o)
	}
	sort.Slice(summary, func(i, j int) bool { return summary[i].Orbit > summary[j].Orbit })
	return summary
}

// ArchiveSize returns the approximate size of the inventory in Tb
func ArchiveSize(summary []OrbitSummary) float64 {
	frames := 0
	for _, s := range summary {
		frames += s.Frames
	}
	return float64(frames*FrameSizeGB) / 1e3
}

// WriteSummaryCSV writes the summary as csv: Orbit,Start,Stop,Dates,Frames,Direction,UTC
func WriteSummaryCSV(w io.Writer, summary []OrbitSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Orbit", "Start", "Stop", "Dates", "Frames", "Direction", "UTC"}); err != nil {
		return fmt.Errorf("WriteSummaryCSV: %w", err)
	}
	for _, s := range summary {
		if err := cw.Write([]string{strconv.Itoa(s.Orbit), s.Start, s.Stop, strconv.Itoa(s.Dates), strconv.Itoa(s.Frames), s.Direction, s.UTC}); err != nil {
			return fmt.Errorf("WriteSummaryCSV: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Acquisitions returns the dates of acquisition of the orbit, sorted by date
func Acquisitions(scenes entities.Scenes, orbit int) []Acquisition {
	var acqs []Acquisition
	index := map[string]int{}
	for _, s := range scenes.Filter(orbit, "") {
		if i, ok := index[s.DateString]; ok {
			acqs[i].Frames++
			continue
		}
		index[s.DateString] = len(acqs)
		acqs = append(acqs, Acquisition{Date: s.DateString, Platform: s.Platform, Frames: 1})
	}
	sort.SliceStable(acqs, func(i, j int) bool { return acqs[i].Date < acqs[j].Date })

	for i := 1; i < len(acqs); i++ {
		prev, _ := parseDisplayDate(acqs[i-1].Date)
		cur, _ := parseDisplayDate(acqs[i].Date)
		acqs[i].DT = int(cur.Sub(prev).Hours() / 24)
	}
	return acqs
}

// WriteAcquisitionsCSV writes the acquisitions as csv: sceneDateString,platform,dt,nFrames
func WriteAcquisitionsCSV(w io.Writer, acqs []Acquisition) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"sceneDateString", "platform", "dt", "nFrames"}); err != nil {
		return fmt.Errorf("WriteAcquisitionsCSV: %w", err)
	}
	for _, a := range acqs {
		if err := cw.Write([]string{a.Date, a.Platform, strconv.Itoa(a.DT), strconv.Itoa(a.Frames)}); err != nil {
			return fmt.Errorf("WriteAcquisitionsCSV: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummary writes inventory_summary.csv and acquisitions_<orbit>.csv in dir and logs the approximate size of the archive
func WriteSummary(ctx context.Context, scenes entities.Scenes, dir string) ([]OrbitSummary, error) {
	summary := Summarize(scenes)
	if err := writeCSV(filepath.Join(dir, SummaryFile), func(w io.Writer) error { return WriteSummaryCSV(w, summary) }); err != nil {
		return nil, fmt.Errorf("WriteSummary.%w", err)
	}
	for _, s := range summary {
		acqs := Acquisitions(scenes, s.Orbit)
		file := filepath.Join(dir, fmt.Sprintf("acquisitions_%d.csv", s.Orbit))
		if err := writeCSV(file, func(w io.Writer) error { return WriteAcquisitionsCSV(w, acqs) }); err != nil {
			return nil, fmt.Errorf("WriteSummary.%w", err)
		}
		log.Logger(ctx).Sugar().Infof("Orbit %3d %s: %s to %s, %d dates, %d frames (UTC %s)", s.Orbit, s.Direction, s.Start, s.Stop, s.Dates, s.Frames, s.UTC)
	}
	log.Logger(ctx).Sugar().Infof("Approximate Archive size = %g Tb", ArchiveSize(summary))
	return summary, nil
}

func parseDisplayDate(date string) (time.Time, error) {
	return time.Parse(common.DateDisplayFormat, date)
}

func writeCSV(file string, write func(w io.Writer) error) error {
	f, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("writeCSV: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writeCSV: %w", err)
	}
	return nil
}

// WriteFootprints writes the footprints of each date as <dir>/<orbit>/<date>.geojson
// Each feature has the properties granuleName and downloadUrl
func WriteFootprints(scenes entities.Scenes, dir string) error {
	for _, orbit := range scenes.Orbits() {
		orbitDir := filepath.Join(dir, strconv.Itoa(orbit))
		if err := os.MkdirAll(orbitDir, 0755); err != nil {
			return fmt.Errorf("WriteFootprints: %w", err)
		}
		for _, a := range Acquisitions(scenes, orbit) {
			fc := geojson.FeatureCollection{}
			for _, s := range scenes.Filter(orbit, "") {
				if s.DateString != a.Date {
					continue
				}
				f, err := s.Feature()
				if err != nil {
					return fmt.Errorf("WriteFootprints.%w", err)
				}
				f.Properties = map[string]interface{}{
					"granuleName": s.GranuleName,
					"downloadUrl": s.DownloadURL,
				}
				fc.Features = append(fc.Features, f)
			}
			b, err := json.Marshal(&fc)
			if err != nil {
				return fmt.Errorf("WriteFootprints.Marshal: %w", err)
			}
			if err := os.WriteFile(filepath.Join(orbitDir, a.Date+".geojson"), b, 0644); err != nil {
				return fmt.Errorf("WriteFootprints: %w", err)
			}
		}
	}
	return nil
}
