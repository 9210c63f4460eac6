package asf

import (
	"context"
	"encoding/json"
	"fmt"
	neturl "net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/scottyhq/dinoSARaws/catalog/entities"
	"github.com/scottyhq/dinoSARaws/common"
	"github.com/scottyhq/dinoSARaws/service"
	"github.com/scottyhq/dinoSARaws/service/geometry"
	"github.com/scottyhq/dinoSARaws/service/log"
)

// DefaultURL of the ASF search API
const DefaultURL = "https://api.daac.asf.alaska.edu/services/search/param"

// Provider searches the ASF archive (Sentinel-1 SLC, IW mode)
type Provider struct {
	BaseURL string
	// If set, the raw response of each query is written in WorkingDir/query_<S1A|S1B>.<format>
	WorkingDir string
	Retries    int
}

// NewProvider returns a provider for the ASF search API
func NewProvider(workingDir string) *Provider {
	return &Provider{BaseURL: DefaultURL, WorkingDir: workingDir, Retries: 3}
}

// RawScene is a record of the json output of the ASF search API
type RawScene struct {
	GranuleName     string  `json:"granuleName"`
	SceneDate       string  `json:"sceneDate"`
	ProcessingDate  string  `json:"processingDate"`
	RelativeOrbit   flexInt `json:"relativeOrbit"`
	AbsoluteOrbit   flexInt `json:"absoluteOrbit"`
	FrameNumber     flexInt `json:"frameNumber"`
	FlightDirection string  `json:"flightDirection"`
	Platform        string  `json:"platform"`
	StringFootprint string  `json:"stringFootprint"`
	DownloadURL     string  `json:"downloadUrl"`
	FileName        string  `json:"fileName"`
}

// flexInt accepts numbers and numbers formatted as strings ("64")
type flexInt int

func (i *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*i = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("flexInt: %w", err)
	}
	*i = flexInt(v)
	return nil
}

// SearchScenes implements ScenesProvider
// One query is sent per platform. Results are merged.
func (p *Provider) SearchScenes(ctx context.Context, area *entities.Area) (entities.Scenes, error) {
	platforms := area.Platforms
	if len(platforms) == 0 {
		platforms = []string{entities.PlatformS1A, entities.PlatformS1B}
	}
	var scenes entities.Scenes
	for _, platform := range platforms {
		raw, err := p.Query(ctx, area, platform, "json")
		if err != nil {
			return nil, fmt.Errorf("SearchScenes.%w", err)
		}
		s, err := ParseScenes(raw)
		if err != nil {
			return nil, fmt.Errorf("SearchScenes[%s].%w", platform, err)
		}
		log.Logger(ctx).Sugar().Debugf("[ASF] %d scenes found for %s", len(s), platform)
		scenes = append(scenes, s...)
	}
	return scenes, nil
}

// QueryURL returns the url of the query of the area for one platform and an output format (json, csv, kml...)
func (p *Provider) QueryURL(area *entities.Area, platform, format string) (string, error) {
	aoi := area.WKT
	if aoi == "" {
		aoi = geometry.BoxWKT(area.SNWE)
	}
	params := neturl.Values{}
	params.Set("intersectsWith", aoi)
	params.Set("platform", platform)
	params.Set("processingLevel", "SLC")
	params.Set("beamMode", "IW")
	params.Set("output", format)
	if !area.StartTime.IsZero() {
		params.Set("start", area.StartTime.UTC().Format("2006-01-02T15:04:05Z"))
	}
	if !area.EndTime.IsZero() {
		params.Set("end", area.EndTime.UTC().Format("2006-01-02T15:04:05Z"))
	}
	if area.RelativeOrbit > 0 {
		params.Set("relativeOrbit", strconv.Itoa(area.RelativeOrbit))
	}
	if area.FlightDirection != "" {
		if _, err := common.DirectionString(strings.ToUpper(area.FlightDirection)); err != nil {
			return "", fmt.Errorf("QueryURL: unknown flight direction %s", area.FlightDirection)
		}
		params.Set("flightDirection", strings.ToUpper(area.FlightDirection))
	}
	baseURL := p.BaseURL
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return baseURL + "?" + params.Encode(), nil
}

// Query sends the query and returns the raw response (saved in WorkingDir if defined)
func (p *Provider) Query(ctx context.Context, area *entities.Area, platform, format string) ([]byte, error) {
	url, err := p.QueryURL(area, platform, format)
	if err != nil {
		return nil, fmt.Errorf("Query.%w", err)
	}
	log.Logger(ctx).Sugar().Debugf("[ASF] %s", url)
	body, err := service.GetBodyRetry(ctx, url, p.Retries)
	if err != nil {
		return nil, fmt.Errorf("Query[%s]: %w", platform, err)
	}
	if p.WorkingDir != "" {
		file := filepath.Join(p.WorkingDir, fmt.Sprintf("query_%s.%s", shortPlatform(platform), format))
		if err := os.WriteFile(file, body, 0644); err != nil {
			return nil, fmt.Errorf("Query.WriteFile: %w", err)
		}
	}
	return body, nil
}

// shortPlatform: Sentinel-1A => S1A
func shortPlatform(platform string) string {
	return "S" + strings.TrimPrefix(platform, "Sentinel-")
}

// ParseScenes parses the json output of the ASF search API: [[{scene}, ...]]
func ParseScenes(data []byte) (entities.Scenes, error) {
	var pages [][]RawScene
	if err := json.Unmarshal(data, &pages); err != nil {
		return nil, fmt.Errorf("ParseScenes.Unmarshal: %w", err)
	}
	if len(pages) == 0 {
		return nil, nil
	}
	scenes := make(entities.Scenes, 0, len(pages[0]))
	for _, raw := range pages[0] {
		s, err := raw.Scene()
		if err != nil {
			return nil, fmt.Errorf("ParseScenes.%w", err)
		}
		scenes = append(scenes, s)
	}
	return scenes, nil
}

// Scene converts the raw record into a scene
func (r RawScene) Scene() (*entities.Scene, error) {
	date, err := dateparse.ParseIn(r.SceneDate, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("Scene[%s].sceneDate: %w", r.GranuleName, err)
	}
	direction, err := common.DirectionString(strings.ToUpper(r.FlightDirection))
	if err != nil {
		return nil, fmt.Errorf("Scene[%s].flightDirection: %w", r.GranuleName, err)
	}
	s := &entities.Scene{
		GranuleName:     r.GranuleName,
		SceneDate:       date,
		RelativeOrbit:   int(r.RelativeOrbit),
		AbsoluteOrbit:   int(r.AbsoluteOrbit),
		FrameNumber:     int(r.FrameNumber),
		FlightDirection: direction,
		Platform:        r.Platform,
		GeometryWKT:     r.StringFootprint,
		DownloadURL:     r.DownloadURL,
		FileName:        r.FileName,
	}
	if r.ProcessingDate != "" {
		if s.ProcessingDate, err = dateparse.ParseIn(r.ProcessingDate, time.UTC); err != nil {
			return nil, fmt.Errorf("Scene[%s].processingDate: %w", r.GranuleName, err)
		}
	}
	s.AutoFill()
	return s, nil
}
