// Command isce2cog converts the merged outputs of topsApp into Cloud-Optimized GeoTIFFs.
// Usage (in the directory of the interferogram): isce2cog
package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/scottyhq/dinoSARaws/graph"
	"github.com/scottyhq/dinoSARaws/processor"
	"github.com/scottyhq/dinoSARaws/service/log"
	"go.uber.org/zap"
)

type config struct {
	Dir             string
	Parallel        int
	CoherenceSource string
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.Dir, "dir", ".", "directory of the interferogram (containing merged/)")
	flag.IntVar(&config.Parallel, "parallel", 4, "number of products converted in parallel")
	flag.StringVar(&config.CoherenceSource, "coherence", "merged/phsig.cor.geo.vrt", "source of the coherence product (e.g. merged/topophase.cor.geo.vrt)")
	flag.Parse()

	if config.Dir == "" {
		return nil, fmt.Errorf("missing dir config flag")
	}
	if config.Parallel <= 0 {
		return nil, fmt.Errorf("parallel must be positive")
	}
	return &config, nil
}

// products returns the ISCE products with the configured coherence source
func products(coherenceSource string) []graph.Product {
	products := graph.ISCEProducts()
	for i := range products {
		if products[i].Name == "coherence-cog.tif" && coherenceSource != "" {
			products[i].Source = coherenceSource
		}
	}
	return products
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
	publisher.Products = products(config.CoherenceSource)
	if err := publisher.ConvertCOGs(ctx, config.Dir); err != nil {
		return err
	}
	log.Logger(ctx).Info("Done!")
	return nil
}
