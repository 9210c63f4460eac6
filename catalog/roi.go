package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-spatial/geom/encoding/geojson"
	"github.com/go-spatial/geom/encoding/wkt"
	"github.com/paulsmith/gogeos/geos"
	"github.com/scottyhq/dinoSARaws/isce"
	"github.com/scottyhq/dinoSARaws/service"
	"github.com/scottyhq/dinoSARaws/service/geometry"
)

// Files written by WriteROI
const (
	ROIGeoJSONFile = "snwe.json"
	ROIWKTFile     = "snwe.wkt"
	ROITextFile    = "snwe.txt"
)

// FormatSNWE formats the box as [S, N, W, E] with 3 decimals
func FormatSNWE(snwe [4]float64) string {
	return fmt.Sprintf("[%.3f, %.3f, %.3f, %.3f]", snwe[0], snwe[1], snwe[2], snwe[3])
}

// WriteROI writes the region of interest in dir as GeoJSON geometry, WKT and text
func WriteROI(dir string, snwe [4]float64) error {
	if err := isce.ValidateSNWE(&snwe); err != nil {
		return fmt.Errorf("WriteROI: %w", err)
	}
	boxWKT := geometry.BoxWKT(snwe)
	g, err := wkt.DecodeString(boxWKT)
	if err != nil {
		return fmt.Errorf("WriteROI.Decode: %w", err)
	}
	gjson, err := json.Marshal(&geojson.Geometry{Geometry: g})
	if err != nil {
		return fmt.Errorf("WriteROI.MarshalJSON: %w", err)
	}
	for file, content := range map[string][]byte{
		ROIGeoJSONFile: gjson,
		ROIWKTFile:     []byte(boxWKT),
		ROITextFile:    []byte(FormatSNWE(snwe)),
	} {
		if err := os.WriteFile(filepath.Join(dir, file), content, 0644); err != nil {
			return fmt.Errorf("WriteROI: %w", err)
		}
	}
	return nil
}

// ROIFromFile returns the SNWE bounds of the convex hull of the polygons of a GeoJSON or WKT file (local or remote),
// optionally buffered (in degrees)
func ROIFromFile(ctx context.Context, file string, buffer float64) ([4]float64, error) {
	b, err := service.ReadFile(ctx, file)
	if err != nil {
		return [4]float64{}, fmt.Errorf("ROIFromFile.%w", err)
	}
	snwe, err := ROIFromBytes(b, buffer)
	if err != nil {
		return snwe, fmt.Errorf("ROIFromFile[%s].%w", file, err)
	}
	return snwe, nil
}

// ROIFromBytes: see ROIFromFile
func ROIFromBytes(b []byte, buffer float64) ([4]float64, error) {
	var roiWKT string
	if b = bytes.TrimSpace(b); len(b) > 0 && b[0] == '{' {
		g, err := service.UnmarshalGeometry(b)
		if err != nil {
			return [4]float64{}, fmt.Errorf("ROIFromBytes.UnmarshalGeometry: %w", err)
		}
		if roiWKT, err = wkt.EncodeString(g); err != nil {
			return [4]float64{}, fmt.Errorf("ROIFromBytes.Encode: %w", err)
		}
	} else {
		roiWKT = string(b)
	}

	g, err := geos.FromWKT(roiWKT)
	if err != nil {
		return [4]float64{}, fmt.Errorf("ROIFromBytes.FromWKT: %w", err)
	}
	if g, err = g.ConvexHull(); err != nil {
		return [4]float64{}, fmt.Errorf("ROIFromBytes.ConvexHull: %w", err)
	}
	if buffer != 0 {
		if g, err = g.Buffer(buffer); err != nil {
			return [4]float64{}, fmt.Errorf("ROIFromBytes.Buffer: %w", err)
		}
	}
	bounds, err := geometry.Bounds(g)
	if err != nil {
		return [4]float64{}, fmt.Errorf("ROIFromBytes.%w", err)
	}
	w, s, e, n := bounds[0], bounds[1], bounds[2], bounds[3]
	return [4]float64{s, n, w, e}, nil
}
