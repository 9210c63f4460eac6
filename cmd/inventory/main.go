// Command inventory searches the Sentinel-1 SLC archive of ASF over a region of interest and summarizes it.
// Usage: inventory -r '37 38 -119 -118' [-f] [-c]
//
//	inventory -i roi.geojson -b 0.1
//	inventory -load query.geojson -c
//	inventory -serve 8080
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/scottyhq/dinoSARaws/catalog"
	"github.com/scottyhq/dinoSARaws/catalog/entities"
	"github.com/scottyhq/dinoSARaws/interface/catalog/asf"
	"github.com/scottyhq/dinoSARaws/jobs"
	"github.com/scottyhq/dinoSARaws/service"
	"github.com/scottyhq/dinoSARaws/service/log"
	"go.uber.org/zap"
)

type config struct {
	ROI        string
	Polygon    string
	Buffer     float64
	Footprints bool
	CSVs       bool
	Load       string
	Dir        string
	Start, End string
	Orbit      int
	Direction  string
	ASFURL     string

	Serve string

	WorkflowServer string
	WorkflowToken  string
	Campaign       string
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.ROI, "r", "", "region of interest: 'S N W E'")
	flag.StringVar(&config.Polygon, "i", "", "polygon file (wkt or geojson, local or remote) defining the region of interest")
	flag.Float64Var(&config.Buffer, "b", 0, "buffer around the polygon, in degrees")
	flag.BoolVar(&config.Footprints, "f", false, "write the footprints of each date as <orbit>/<date>.geojson")
	flag.BoolVar(&config.CSVs, "c", false, "write inventory_summary.csv and acquisitions_<orbit>.csv")
	flag.StringVar(&config.Load, "load", "", "load an existing inventory (query.geojson or ASF json) instead of searching")
	flag.StringVar(&config.Dir, "dir", ".", "output directory (if -serve: root of the working directories)")
	flag.StringVar(&config.Start, "start", "", "start date of the search (optional)")
	flag.StringVar(&config.End, "end", "", "end date of the search (optional)")
	flag.IntVar(&config.Orbit, "orbit", 0, "relative orbit (optional)")
	flag.StringVar(&config.Direction, "direction", "", "ASCENDING or DESCENDING (optional)")
	flag.StringVar(&config.ASFURL, "asf-search-url", asf.DefaultURL, "url of the ASF search API")

	flag.StringVar(&config.Serve, "serve", "", "serve the catalog api on this port instead of searching")

	flag.StringVar(&config.WorkflowServer, "workflow-server", "", "address of workflow server (optional). To process the pairs of the campaign")
	flag.StringVar(&config.WorkflowToken, "workflow-token", "", "bearer token of the workflow server")
	flag.StringVar(&config.Campaign, "campaign", "", "json file of the campaign sent to the workflow server with the inventory")
	flag.Parse()

	if config.Serve == "" && config.Load == "" && config.ROI == "" && config.Polygon == "" {
		return nil, fmt.Errorf("one of -r, -i, -load or -serve is required")
	}
	if config.WorkflowServer != "" && config.Campaign == "" {
		return nil, fmt.Errorf("missing campaign config flag")
	}
	return &config, nil
}

func main() {
	ctx := context.Background()
	err := run(ctx)
	if err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}
	provider := asf.NewProvider(config.Dir)
	provider.BaseURL = config.ASFURL
	c := catalog.Catalog{Provider: provider, WorkingDir: config.Dir}

	if config.Serve != "" {
		return serve(ctx, c, config.Serve)
	}

	var scenes entities.Scenes
	if config.Load != "" {
		if scenes, err = catalog.Load(ctx, config.Load); err != nil {
			return err
		}
	} else {
		area, err := searchArea(ctx, config)
		if err != nil {
			return err
		}
		if err := catalog.WriteROI(config.Dir, area.SNWE); err != nil {
			return err
		}
		if scenes, err = c.Inventory(ctx, area); err != nil {
			return err
		}
	}

	if config.CSVs {
		if _, err := catalog.WriteSummary(ctx, scenes, config.Dir); err != nil {
			return err
		}
	} else {
		for _, s := range catalog.Summarize(scenes) {
			fmt.Printf("Orbit %3d %-10s %s to %s: %d dates, %d frames\n", s.Orbit, s.Direction, s.Start, s.Stop, s.Dates, s.Frames)
		}
	}
	if config.Footprints {
		if err := catalog.WriteFootprints(scenes, config.Dir); err != nil {
			return err
		}
	}
	if config.WorkflowServer != "" {
		return sendCampaign(ctx, config, scenes)
	}
	return nil
}

func searchArea(ctx context.Context, config *config) (entities.Area, error) {
	area := entities.Area{
		RelativeOrbit:   config.Orbit,
		FlightDirection: strings.ToUpper(config.Direction),
	}
	if config.Polygon != "" {
		snwe, err := catalog.ROIFromFile(ctx, config.Polygon, config.Buffer)
		if err != nil {
			return area, err
		}
		area.SNWE = snwe
	} else {
		snwe, err := jobs.ParseSNWE(config.ROI)
		if err != nil {
			return area, err
		}
		area.SNWE = *snwe
	}
	var err error
	if config.Start != "" {
		if area.StartTime, err = dateparse.ParseAny(config.Start); err != nil {
			return area, fmt.Errorf("start: %w", err)
		}
	}
	if config.End != "" {
		if area.EndTime, err = dateparse.ParseAny(config.End); err != nil {
			return area, fmt.Errorf("end: %w", err)
		}
	}
	return area, nil
}

// serve runs the catalog api, with its own working directory
func serve(ctx context.Context, c catalog.Catalog, port string) error {
	c.WorkingDir = filepath.Join(c.WorkingDir, uuid.New().String())
	if err := os.MkdirAll(c.WorkingDir, 0766); err != nil {
		return service.MakeTemporary(fmt.Errorf("make directory %s: %w", c.WorkingDir, err))
	}
	defer os.RemoveAll(c.WorkingDir)

	r := mux.NewRouter()
	c.AddHandler(r)
	s := http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	go func() {
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Logger(ctx).Fatal("catalog.ListenAndServe", zap.Error(err))
		}
	}()

	<-ctx.Done()
	sctx, cncl := context.WithTimeout(context.Background(), 30*time.Second)
	defer cncl()
	return s.Shutdown(sctx)
}

// sendCampaign posts the campaign and the inventory to the workflow server
func sendCampaign(ctx context.Context, config *config, scenes entities.Scenes) error {
	campaign, err := service.ReadFile(ctx, config.Campaign)
	if err != nil {
		return err
	}
	inventory := filepath.Join(config.Dir, catalog.InventoryFile)
	if config.Load != "" {
		inventory = filepath.Join(os.TempDir(), uuid.New().String()+".geojson")
		defer os.Remove(inventory)
	}
	if err := catalog.Save(scenes, inventory); err != nil {
		return err
	}
	scenesJSON, err := os.ReadFile(inventory)
	if err != nil {
		return err
	}

	form := url.Values{"campaign": {string(campaign)}, "scenes": {string(scenesJSON)}}
	body, err := service.HTTPPostFormWithAuth(ctx, strings.TrimSuffix(config.WorkflowServer, "/")+"/catalog/aoi", form, "", "", config.WorkflowToken)
	if err != nil {
		return fmt.Errorf("sendCampaign.%w", err)
	}
	log.Logger(ctx).Info(strings.TrimSpace(string(body)))
	return nil
}
