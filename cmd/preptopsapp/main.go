// Command preptopsapp downloads the SLCs, orbits and aux-cal files of a pair and writes topsApp.xml.
// Usage: preptopsapp -i query.geojson -m 20170828 -s 20170816 -p 115 -n 1,2,3 [-r 'S N W E'] [-g 'S N W E']
package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/scottyhq/dinoSARaws/catalog"
	"github.com/scottyhq/dinoSARaws/common"
	"github.com/scottyhq/dinoSARaws/downloader"
	"github.com/scottyhq/dinoSARaws/jobs"
	"github.com/scottyhq/dinoSARaws/service/log"
	"go.uber.org/zap"
)

type config struct {
	Inventory string
	Pair      common.Pair
	Attrs     common.PairAttrs
	Root      string
	Providers downloader.ProvidersConfig
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.Inventory, "i", "", "inventory (query.geojson or ASF json, local or remote)")
	flag.StringVar(&config.Pair.Main, "m", "", "main date (YYYYMMDD)")
	flag.StringVar(&config.Pair.Secondary, "s", "", "secondary date (YYYYMMDD)")
	flag.IntVar(&config.Pair.Path, "p", 0, "relative orbit")
	swathsStr := flag.String("n", "1,2,3", "subswaths to process (comma or space separated)")
	roiStr := flag.String("r", "", "region of interest: 'S N W E' (optional)")
	gboxStr := flag.String("g", "", "geocode bounding box: 'S N W E' (optional)")
	flag.StringVar(&config.Attrs.DEM, "d", "", "dem file (optional, downloaded by topsApp if empty)")
	flag.StringVar(&config.Root, "o", ".", "parent directory of the working directory of the pair")
	bucketsStr := config.Providers.SetFlags()
	flag.Parse()

	if config.Inventory == "" {
		return nil, fmt.Errorf("missing inventory config flag (-i)")
	}
	if config.Pair.Main == "" || config.Pair.Secondary == "" || config.Pair.Path == 0 {
		return nil, fmt.Errorf("missing pair config flags (-m, -s, -p)")
	}
	var err error
	if config.Attrs.Swaths, err = jobs.ParseInts(*swathsStr); err != nil {
		return nil, fmt.Errorf("swaths: %w", err)
	}
	if *roiStr != "" {
		if config.Attrs.ROI, err = jobs.ParseSNWE(*roiStr); err != nil {
			return nil, fmt.Errorf("roi: %w", err)
		}
	}
	if *gboxStr != "" {
		if config.Attrs.GeocodeBox, err = jobs.ParseSNWE(*gboxStr); err != nil {
			return nil, fmt.Errorf("gbox: %w", err)
		}
	}
	if *bucketsStr != "" {
		config.Providers.BucketPatterns = strings.Split(*bucketsStr, ",")
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
	attrs, err := catalog.PairAttrs(scenes, config.Pair, config.Attrs)
	if err != nil {
		return err
	}

	d, names, err := downloader.NewDownloader(ctx, config.Providers)
	if err != nil {
		return err
	}
	log.Logger(ctx).Sugar().Infof("SLC providers: %s", strings.Join(names, ", "))

	mainScenes, secondaryScenes, err := catalog.PairScenes(scenes, config.Pair)
	if err != nil {
		return err
	}
	var urls []string
	for _, s := range append(mainScenes, secondaryScenes...) {
		urls = append(urls, s.DownloadURL)
	}

	file, err := d.PreparePair(ctx, config.Root, config.Pair, attrs, urls)
	if err != nil {
		return err
	}
	fmt.Println(file)
	return nil
}
