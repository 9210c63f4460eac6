package asf

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/scottyhq/dinoSARaws/catalog/entities"
	"github.com/scottyhq/dinoSARaws/common"
)

const response = `[[{"granuleName":"S1A_IW_SLC__1SDV_20170828T135617_20170828T135645_018143_01E7A5_4F2C","sceneDate":"2017-08-28T13:56:17.000000",
"processingDate":"2017-08-28 20:00:00","relativeOrbit":"64","absoluteOrbit":18143,"frameNumber":"116","flightDirection":"ASCENDING",
"platform":"Sentinel-1A","stringFootprint":"POLYGON((-119.5 37.0,-116.5 37.4,-116.2 35.8,-119.2 35.4,-119.5 37.0))",
"downloadUrl":"https://datapool.asf.alaska.edu/SLC/SA/S1A_IW_SLC__1SDV_20170828T135617_20170828T135645_018143_01E7A5_4F2C.zip",
"fileName":"S1A_IW_SLC__1SDV_20170828T135617_20170828T135645_018143_01E7A5_4F2C.zip"}]]`

func TestParseScenes(t *testing.T) {
	scenes, err := ParseScenes([]byte(response))
	if err != nil {
		t.Fatal(err)
	}
	if len(scenes) != 1 {
		t.Fatalf("expecting 1 scene, got %d", len(scenes))
	}
	s := scenes[0]
	if !s.SceneDate.Equal(time.Date(2017, 8, 28, 13, 56, 17, 0, time.UTC)) {
		t.Errorf("wrong date: %v", s.SceneDate)
	}
	if s.RelativeOrbit != 64 || s.AbsoluteOrbit != 18143 || s.FrameNumber != 116 {
		t.Errorf("wrong orbits: %+v", *s)
	}
	if s.FlightDirection != common.DirectionASCENDING || s.DateStamp != "20170828" {
		t.Errorf("wrong fields: %+v", *s)
	}

	if _, err := ParseScenes([]byte(`[[{"sceneDate":"2017-08-28","flightDirection":"NORTH"}]]`)); err == nil {
		t.Error("expecting an error")
	}
	if _, err := ParseScenes([]byte(`[[{"sceneDate":"2017-08-28","relativeOrbit":"abc"}]]`)); err == nil {
		t.Error("expecting an error")
	}
}

func TestQueryURL(t *testing.T) {
	p := NewProvider("")
	area := entities.Area{SNWE: [4]float64{37, 38, -119, -118}, RelativeOrbit: 64, FlightDirection: "ascending",
		StartTime: time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)}
	url, err := p.QueryURL(&area, entities.PlatformS1A, "json")
	if err != nil {
		t.Fatal(err)
	}
	for _, expected := range []string{"intersectsWith=POLYGON", "platform=Sentinel-1A", "processingLevel=SLC", "beamMode=IW",
		"output=json", "relativeOrbit=64", "flightDirection=ASCENDING", "start=2017-01-01T00%3A00%3A00Z"} {
		if !strings.Contains(url, expected) {
			t.Errorf("expecting %s in %s", expected, url)
		}
	}
	if strings.Contains(url, "end=") {
		t.Error("end must be omitted")
	}
	area.FlightDirection = "north"
	if _, err := p.QueryURL(&area, entities.PlatformS1A, "json"); err == nil {
		t.Error("expecting an error")
	}
}

func TestSearchScenes(t *testing.T) {
	var platforms []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		platforms = append(platforms, r.URL.Query().Get("platform"))
		if r.URL.Query().Get("platform") == entities.PlatformS1B {
			w.Write([]byte("[[]]"))
			return
		}
		w.Write([]byte(response))
	}))
	defer ts.Close()

	dir := t.TempDir()
	p := Provider{BaseURL: ts.URL, WorkingDir: dir}
	scenes, err := p.SearchScenes(context.Background(), &entities.Area{SNWE: [4]float64{37, 38, -119, -118}})
	if err != nil {
		t.Fatal(err)
	}
	if len(scenes) != 1 {
		t.Errorf("expecting 1 scene, got %d", len(scenes))
	}
	if len(platforms) != 2 {
		t.Errorf("expecting one query per platform, got %v", platforms)
	}
	for _, f := range []string{"query_S1A.json", "query_S1B.json"} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			t.Error(err)
		}
	}
}

func TestSearchScenesError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()
	p := Provider{BaseURL: ts.URL}
	if _, err := p.SearchScenes(context.Background(), &entities.Area{SNWE: [4]float64{37, 38, -119, -118}}); err == nil {
		t.Error("expecting an error")
	}
}
