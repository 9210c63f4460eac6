package entities

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-spatial/geom/encoding/geojson"
	"github.com/go-spatial/geom/encoding/wkt"
	"github.com/scottyhq/dinoSARaws/common"
)

const (
	PlatformS1A = "Sentinel-1A"
	PlatformS1B = "Sentinel-1B"
)

// Scene is a Sentinel-1 acquisition of the inventory
type Scene struct {
	GranuleName     string
	SceneDate       time.Time // UTC start of the acquisition
	ProcessingDate  time.Time
	RelativeOrbit   int
	AbsoluteOrbit   int
	FrameNumber     int
	FlightDirection common.Direction
	Platform        string // Sentinel-1A or Sentinel-1B
	GeometryWKT     string
	DownloadURL     string
	FileName        string
	ProductName     string // GranuleName without the product discriminator (to remove double entries)

	// Derived fields (see AutoFill)
	DateString string // 2006-01-02
	DateStamp  string // 20060102
	UTC        string // 15:04:05
	OrbitCode  int    // Rank of the relative orbit among the orbits of the inventory
}

// Scenes is an inventory, marshalled as a GeoJSON FeatureCollection
type Scenes []*Scene

// Area is the input of an inventory
type Area struct {
	SNWE            [4]float64 `json:"snwe"`
	WKT             string     `json:"wkt,omitempty"` // Overrides SNWE
	Platforms       []string   `json:"platforms"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	RelativeOrbit   int        `json:"relative_orbit,omitempty"`
	FlightDirection string     `json:"flight_direction,omitempty"`
}

// AutoFill fills the derived fields of the scene (except OrbitCode, see Scenes.AutoFill)
func (s *Scene) AutoFill() {
	s.SceneDate = s.SceneDate.UTC()
	s.DateString = s.SceneDate.Format(common.DateDisplayFormat)
	s.DateStamp = s.SceneDate.Format(common.DateFormat)
	s.UTC = s.SceneDate.Format("15:04:05")
	if len(s.GranuleName) >= 63 {
		s.ProductName = s.GranuleName[0:63]
	} else {
		s.ProductName = s.GranuleName
	}
}

// Orbits returns the relative orbits of the inventory in ascending order
func (scenes Scenes) Orbits() []int {
	seen := map[int]bool{}
	var orbits []int
	for _, s := range scenes {
		if !seen[s.RelativeOrbit] {
			seen[s.RelativeOrbit] = true
			orbits = append(orbits, s.RelativeOrbit)
		}
	}
	sort.Ints(orbits)
	return orbits
}

// AutoFill fills the derived fields of all the scenes, including the orbit codes
func (scenes Scenes) AutoFill() {
	codes := map[int]int{}
	for i, o := range scenes.Orbits() {
		codes[o] = i
	}
	for _, s := range scenes {
		s.AutoFill()
		s.OrbitCode = codes[s.RelativeOrbit]
	}
}

// Filter returns the scenes of the orbit (if orbit > 0) acquired on date (YYYYMMDD, if not empty)
func (scenes Scenes) Filter(orbit int, date string) Scenes {
	var res Scenes
	for _, s := range scenes {
		if (orbit <= 0 || s.RelativeOrbit == orbit) && (date == "" || s.DateStamp == date) {
			res = append(res, s)
		}
	}
	return res
}

// Properties of the GeoJSON features
const (
	propGranuleName     = "granuleName"
	propSceneDate       = "sceneDate"
	propProcessingDate  = "processingDate"
	propRelativeOrbit   = "relativeOrbit"
	propAbsoluteOrbit   = "absoluteOrbit"
	propFrameNumber     = "frameNumber"
	propFlightDirection = "flightDirection"
	propPlatform        = "platform"
	propDownloadURL     = "downloadUrl"
	propFileName        = "fileName"
	propDateString      = "sceneDateString"
	propUTC             = "utc"
	propOrbitCode       = "orbitCode"
)

const sceneDateFormat = "2006-01-02 15:04:05"

// Feature returns the GeoJSON feature of the scene
func (s *Scene) Feature() (geojson.Feature, error) {
	g, err := wkt.DecodeString(s.GeometryWKT)
	if err != nil {
		return geojson.Feature{}, fmt.Errorf("Feature[%s]: %w", s.GranuleName, err)
	}
	return geojson.Feature{
		Geometry: geojson.Geometry{Geometry: g},
		Properties: map[string]interface{}{
			propGranuleName:     s.GranuleName,
			propSceneDate:       s.SceneDate.Format(sceneDateFormat),
			propProcessingDate:  s.ProcessingDate.Format(sceneDateFormat),
			propRelativeOrbit:   strconv.Itoa(s.RelativeOrbit),
			propAbsoluteOrbit:   strconv.Itoa(s.AbsoluteOrbit),
			propFrameNumber:     strconv.Itoa(s.FrameNumber),
			propFlightDirection: s.FlightDirection.String(),
			propPlatform:        s.Platform,
			propDownloadURL:     s.DownloadURL,
			propFileName:        s.FileName,
			propDateString:      s.DateString,
			propUTC:             s.UTC,
			propOrbitCode:       s.OrbitCode,
		},
	}, nil
}

// MarshalJSON implements json.Marshaler
func (scenes Scenes) MarshalJSON() ([]byte, error) {
	fc := geojson.FeatureCollection{Features: []geojson.Feature{}}
	for _, s := range scenes {
		f, err := s.Feature()
		if err != nil {
			return nil, err
		}
		fc.Features = append(fc.Features, f)
	}
	return json.Marshal(&fc)
}

// UnmarshalJSON implements json.Unmarshaler
func (scenes *Scenes) UnmarshalJSON(data []byte) error {
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return err
	}
	*scenes = nil
	for i, f := range fc.Features {
		s, err := sceneFromFeature(f)
		if err != nil {
			return fmt.Errorf("feature %d: %w", i, err)
		}
		*scenes = append(*scenes, s)
	}
	scenes.AutoFill()
	return nil
}

func sceneFromFeature(f geojson.Feature) (*Scene, error) {
	str := func(key string) string {
		switch v := f.Properties[key].(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
		return ""
	}
	atoi := func(key string) (int, error) {
		if v := str(key); v != "" {
			return strconv.Atoi(v)
		}
		return 0, nil
	}

	s := Scene{
		GranuleName: str(propGranuleName),
		Platform:    str(propPlatform),
		DownloadURL: str(propDownloadURL),
		FileName:    str(propFileName),
	}
	var err error
	if s.SceneDate, err = time.Parse(sceneDateFormat, str(propSceneDate)); err != nil {
		return nil, fmt.Errorf("%s: %w", propSceneDate, err)
	}
	if v := str(propProcessingDate); v != "" {
		if s.ProcessingDate, err = time.Parse(sceneDateFormat, v); err != nil {
			return nil, fmt.Errorf("%s: %w", propProcessingDate, err)
		}
	}
	if s.RelativeOrbit, err = atoi(propRelativeOrbit); err != nil {
		return nil, fmt.Errorf("%s: %w", propRelativeOrbit, err)
	}
	if s.AbsoluteOrbit, err = atoi(propAbsoluteOrbit); err != nil {
		return nil, fmt.Errorf("%s: %w", propAbsoluteOrbit, err)
	}
	if s.FrameNumber, err = atoi(propFrameNumber); err != nil {
		return nil, fmt.Errorf("%s: %w", propFrameNumber, err)
	}
	if s.FlightDirection, err = common.DirectionString(str(propFlightDirection)); err != nil {
		return nil, fmt.Errorf("%s: %w", propFlightDirection, err)
	}
	if f.Geometry.Geometry != nil {
		if s.GeometryWKT, err = wkt.EncodeString(f.Geometry.Geometry); err != nil {
			return nil, fmt.Errorf("geometry: %w", err)
		}
	}
	return &s, nil
}
