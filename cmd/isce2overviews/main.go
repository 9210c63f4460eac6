// Command isce2overviews renders the colour ramps, the RGB thumbnails and the web tiles of the COGs of an interferogram.
// Usage (in the directory of the interferogram, after isce2cog): isce2overviews
package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/scottyhq/dinoSARaws/colormap"
	"github.com/scottyhq/dinoSARaws/processor"
	"github.com/scottyhq/dinoSARaws/service/log"
	"go.uber.org/zap"
)

type config struct {
	Dir       string
	Parallel  int
	RampsFile string
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.Dir, "dir", ".", "directory of the COGs")
	flag.IntVar(&config.Parallel, "parallel", 3, "number of products rendered in parallel")
	flag.StringVar(&config.RampsFile, "ramps", "", "json file of the colour ramps (local, gs:// or s3://). Default: amplitude, coherence, unwrapped-phase")
	flag.Parse()

	if config.Dir == "" {
		return nil, fmt.Errorf("missing dir config flag")
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
	publisher := processor.NewPublisher(processor.PlanRunner{Parallel: config.Parallel})
	if config.RampsFile != "" {
		if publisher.Ramps, err = colormap.LoadRamps(ctx, config.RampsFile); err != nil {
			return err
		}
	}
	products, err := publisher.MakeBrowse(ctx, config.Dir)
	if err != nil {
		return err
	}
	for _, p := range products {
		log.Logger(ctx).Sugar().Infof("%s rendered with %s", p.Name, p.Ramp)
	}
	log.Logger(ctx).Info("Done!")
	return nil
}
