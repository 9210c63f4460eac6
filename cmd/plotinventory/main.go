// Command plotinventory renders the coverage map and the timeline of an inventory.
// Usage: plotinventory -i query.geojson [-p roi.geojson]
package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/scottyhq/dinoSARaws/catalog"
	"github.com/scottyhq/dinoSARaws/plot"
	"github.com/scottyhq/dinoSARaws/service/log"
	"go.uber.org/zap"
)

type config struct {
	Inventory string
	Polygon   string
	Dir       string
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.Inventory, "i", "", "inventory (query.geojson or ASF json, local or remote)")
	flag.StringVar(&config.Polygon, "p", "", "region of interest to draw (wkt or geojson, optional)")
	flag.StringVar(&config.Dir, "dir", ".", "output directory of map_coverage.pdf and timeline.pdf")
	flag.Parse()

	if config.Inventory == "" {
		return nil, fmt.Errorf("missing inventory config flag (-i)")
	}
	return &config, nil
}

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}
	scenes, err := catalog.Load(ctx, config.Inventory)
	if err != nil {
		return err
	}
	var roiWKT string
	if config.Polygon != "" {
		if roiWKT, err = plot.LoadROI(ctx, config.Polygon); err != nil {
			return err
		}
	}
	return plot.Inventory(ctx, scenes, roiWKT, config.Dir)
}
