package geometry

import (
	"fmt"
	"math"

	"github.com/go-spatial/geom"
	geomwkt "github.com/go-spatial/geom/encoding/wkt"
	"github.com/paulsmith/gogeos/geos"
)

func mergeMultiPolygons(g geom.Geometry, mp *geom.MultiPolygon) error {
	switch g := g.(type) {
	case geom.MultiPolygon:
		*mp = append(*mp, g.Polygons()...)
	case geom.Polygon:
		*mp = append(*mp, g.LinearRings())
	case geom.Collection:
		for _, g := range g.Geometries() {
			if err := mergeMultiPolygons(g, mp); err != nil {
				return err
			}
		}
	}
	return nil
}

// Generates a geom.Geometry from a geos.Geometry
func GeosToGeom(g *geos.Geometry) (geom.Geometry, error) {
	wkt, err := g.ToWKT()
	if err != nil {
		return nil, fmt.Errorf("GeosToGeom.ToWKT: %w", err)
	}
	geometry, err := geomwkt.DecodeString(wkt)
	if err != nil {
		return nil, fmt.Errorf("GeosToGeom.DecodeString: %w", err)
	}

	return geometry, nil
}

var TOLERANCE_GEOG = 0.000001

func WKTUnion(wkts []string, tolerance float64) (string, error) {
	var geoms []*geos.Geometry
	for _, wkt := range wkts {
		geo, err := geos.FromWKT(wkt)
		if err != nil {
			return "", fmt.Errorf("WKTUnion.FromWKT: %w", err)
		}
		geoms = append(geoms, geo)
	}
	aoi, err := Union(geoms, tolerance)
	if err != nil {
		return "", fmt.Errorf("WKTUnion.%w", err)
	}
	wkt, err := aoi.ToWKT()
	if err != nil {
		return "", fmt.Errorf("WKTUnion.ToWKT: %w", err)
	}
	return wkt, nil
}

func Union(geoms []*geos.Geometry, tolerance float64) (*geos.Geometry, error) {
	aoi, err := UnaryUnion(geoms)
	if err == nil {
		if aoi, err = aoi.Simplify(tolerance); err != nil {
			return nil, fmt.Errorf("Union.Simplify: %w", err)
		}
		return aoi, nil
	}
	// Union all failed, retry one by one with simplify
	for _, geom := range geoms {
		if geom, err = geom.Simplify(tolerance); err != nil {
			return nil, fmt.Errorf("Union.Simplify: %w", err)
		}
		if aoi, err = geom.Union(aoi); err != nil {
			return nil, fmt.Errorf("Union: %w", err)
		}
	}
	return aoi, nil
}

func UnaryUnion(geoms []*geos.Geometry) (*geos.Geometry, error) {
	aoi, err := geos.NewCollection(geos.MULTIPOLYGON, geoms...)
	if err != nil {
		return nil, fmt.Errorf("UnaryUnion.NewCollection: %w", err)
	}
	if aoi, err = aoi.UnaryUnion(); err != nil {
		return nil, fmt.Errorf("UnaryUnion.UnaryUnion: %w", err)
	}
	return aoi, nil
}

// Bounds returns the bounding box of the geometry (minx, miny, maxx, maxy)
func Bounds(g *geos.Geometry) ([4]float64, error) {
	env, err := g.Envelope()
	if err != nil {
		return [4]float64{}, fmt.Errorf("Bounds.Envelope: %w", err)
	}
	var coords []geos.Coord
	if t, err := env.Type(); err == nil && t == geos.POINT {
		coords, err = env.Coords()
		if err != nil {
			return [4]float64{}, fmt.Errorf("Bounds.Coords: %w", err)
		}
	} else {
		shell, err := env.Shell()
		if err != nil {
			return [4]float64{}, fmt.Errorf("Bounds.Shell: %w", err)
		}
		if coords, err = shell.Coords(); err != nil {
			return [4]float64{}, fmt.Errorf("Bounds.Coords: %w", err)
		}
	}
	if len(coords) == 0 {
		return [4]float64{}, fmt.Errorf("Bounds: empty geometry")
	}
	b := [4]float64{coords[0].X, coords[0].Y, coords[0].X, coords[0].Y}
	for _, c := range coords[1:] {
		b[0], b[1] = math.Min(b[0], c.X), math.Min(b[1], c.Y)
		b[2], b[3] = math.Max(b[2], c.X), math.Max(b[3], c.Y)
	}
	return b, nil
}

// Centroid returns the coordinates of the centroid of the geometry
func Centroid(g *geos.Geometry) (float64, float64, error) {
	c, err := g.Centroid()
	if err != nil {
		return 0, 0, fmt.Errorf("Centroid: %w", err)
	}
	x, err := c.X()
	if err != nil {
		return 0, 0, fmt.Errorf("Centroid.X: %w", err)
	}
	y, err := c.Y()
	if err != nil {
		return 0, 0, fmt.Errorf("Centroid.Y: %w", err)
	}
	return x, y, nil
}

// Shells returns the exterior rings of a polygon or a multipolygon
func Shells(g *geos.Geometry) ([][]geos.Coord, error) {
	t, err := g.Type()
	if err != nil {
		return nil, fmt.Errorf("Shells.Type: %w", err)
	}
	switch t {
	case geos.POLYGON:
		shell, err := g.Shell()
		if err != nil {
			return nil, fmt.Errorf("Shells.Shell: %w", err)
		}
		coords, err := shell.Coords()
		if err != nil {
			return nil, fmt.Errorf("Shells.Coords: %w", err)
		}
		return [][]geos.Coord{coords}, nil
	case geos.MULTIPOLYGON, geos.GEOMETRYCOLLECTION:
		n, err := g.NGeometry()
		if err != nil {
			return nil, fmt.Errorf("Shells.NGeometry: %w", err)
		}
		var shells [][]geos.Coord
		for i := 0; i < n; i++ {
			sub, err := g.Geometry(i)
			if err != nil {
				return nil, fmt.Errorf("Shells.Geometry: %w", err)
			}
			s, err := Shells(sub)
			if err != nil {
				return nil, err
			}
			shells = append(shells, s...)
		}
		return shells, nil
	}
	return nil, fmt.Errorf("Shells: unsupported geometry type %v", t)
}

// BufferWKT buffers the geometry by d (in the unit of the geometry)
func BufferWKT(wkt string, d float64) (string, error) {
	g, err := geos.FromWKT(wkt)
	if err != nil {
		return "", fmt.Errorf("BufferWKT.FromWKT: %w", err)
	}
	if d != 0 {
		if g, err = g.Buffer(d); err != nil {
			return "", fmt.Errorf("BufferWKT.Buffer: %w", err)
		}
	}
	return g.ToWKT()
}

// BoxWKT returns the WKT polygon of a bounding box given as south, north, west, east
func BoxWKT(snwe [4]float64) string {
	s, n, w, e := snwe[0], snwe[1], snwe[2], snwe[3]
	return fmt.Sprintf("POLYGON((%[3]g %[1]g,%[4]g %[1]g,%[4]g %[2]g,%[3]g %[2]g,%[3]g %[1]g))", s, n, w, e)
}
