package geometry

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"

	"github.com/go-spatial/geom/encoding/geojson"
	"github.com/paulsmith/gogeos/geos"
)

func TestGeosToGeom(t *testing.T) {
	polygon, err := geos.FromWKT("POLYGON ((20 35, 10 30, 10 10, 30 5, 45 20, 20 35), (30 20, 20 15, 20 25, 30 20))")
	if err != nil {
		t.Error(err)
	}
	g, err := GeosToGeom(polygon)
	if err != nil {
		t.Error(err)
	}
	bytes, err := json.Marshal(geojson.Geometry{Geometry: g})
	if err != nil {
		t.Error(err)
	}
	expected := `{"type":"Polygon","coordinates":[[[20,35],[10,30],[10,10],[30,5],[45,20],[20,35]],[[30,20],[20,15],[20,25],[30,20]]]}`
	if string(bytes) != expected {
		t.Errorf("Expect %s found %s", expected, string(bytes))
	}
}

func checkGeomEquality(wkt1, wkt2 string) error {
	geom1, err := geos.FromWKT(wkt1)
	if err != nil {
		return err
	}
	geom2, err := geos.FromWKT(wkt2)
	if err != nil {
		return err
	}
	if equal, err := geom1.Equals(geom2); err != nil {
		return err
	} else if !equal {
		return fmt.Errorf("Not equal")
	}
	return nil
}

func TestGeom(t *testing.T) {
	wktAOI1 := "POLYGON ((129 -11, 130 -11, 130 -12, 129 -12, 129 -11))"
	wktAOI2 := "POLYGON ((130 -12, 130 -11, 131 -11, 131 -12, 130 -12))"
	wktAOI3 := "POLYGON ((129 -11, 131 -11, 131 -12, 129 -12, 129 -11))"

	if wkt, err := WKTUnion([]string{wktAOI1, wktAOI1}, TOLERANCE_GEOG); err != nil {
		t.Error(err.Error())
	} else if err := checkGeomEquality(wkt, wktAOI1); err != nil {
		t.Errorf("expect %s found %s (%v)", wktAOI1, wkt, err)
	}

	if wkt, err := WKTUnion([]string{wktAOI1, wktAOI2}, TOLERANCE_GEOG); err != nil {
		t.Error(err.Error())
	} else if err := checkGeomEquality(wkt, wktAOI3); err != nil {
		t.Errorf("expect %s found %s (%v)", wktAOI3, wkt, err)
	}
}

func TestBoundsCentroid(t *testing.T) {
	g, err := geos.FromWKT(WKTUnionMust(t, []string{
		"POLYGON ((-122 46, -121 46, -121 47, -122 47, -122 46))",
		"POLYGON ((-121 46, -120 46, -120 47, -121 47, -121 46))",
	}))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Bounds(g)
	if err != nil {
		t.Fatal(err)
	}
	if b != [4]float64{-122, 46, -120, 47} {
		t.Errorf("unexpected bounds %v", b)
	}
	x, y, err := Centroid(g)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(x+121) > 1e-9 || math.Abs(y-46.5) > 1e-9 {
		t.Errorf("unexpected centroid %f %f", x, y)
	}
}

func WKTUnionMust(t *testing.T, wkts []string) string {
	t.Helper()
	wkt, err := WKTUnion(wkts, TOLERANCE_GEOG)
	if err != nil {
		t.Fatal(err)
	}
	return wkt
}

func TestShells(t *testing.T) {
	g, err := geos.FromWKT("MULTIPOLYGON (((0 0, 1 0, 1 1, 0 0)), ((5 5, 6 5, 6 6, 5 5)))")
	if err != nil {
		t.Fatal(err)
	}
	shells, err := Shells(g)
	if err != nil {
		t.Fatal(err)
	}
	if len(shells) != 2 || len(shells[0]) != 4 {
		t.Errorf("unexpected shells %v", shells)
	}
}

func TestBoxWKT(t *testing.T) {
	wkt := BoxWKT([4]float64{46.1, 46.3, -122.3, -122.1})
	if err := checkGeomEquality(wkt, "POLYGON ((-122.3 46.1, -122.1 46.1, -122.1 46.3, -122.3 46.3, -122.3 46.1))"); err != nil {
		t.Errorf("%s: %v", wkt, err)
	}
	buffered, err := BufferWKT(wkt, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	g, _ := geos.FromWKT(buffered)
	b, err := Bounds(g)
	if err != nil {
		t.Fatal(err)
	}
	if b[0] > -122.39 || b[3] < 46.39 {
		t.Errorf("buffer not applied: %v", b)
	}
}
