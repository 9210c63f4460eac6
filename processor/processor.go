package processor

import (
	"context"
	"fmt"
	"os"

	"github.com/scottyhq/dinoSARaws/common"
	"github.com/scottyhq/dinoSARaws/downloader"
	"github.com/scottyhq/dinoSARaws/graph"
	"github.com/scottyhq/dinoSARaws/isce"
	"github.com/scottyhq/dinoSARaws/service"
	"github.com/scottyhq/dinoSARaws/service/log"
)

// PairPreparer prepares the processing directory of a pair (see downloader.Downloader)
type PairPreparer interface {
	PreparePair(ctx context.Context, root string, pair common.Pair, attrs common.PairAttrs, urls []string) (string, error)
}

var _ PairPreparer = (*downloader.Downloader)(nil)

// Processor processes a pair from the download of the scenes to the publication of the interferogram
type Processor struct {
	Preparer   PairPreparer
	Runner     GraphRunner // Runs topsApp
	Publisher  *Publisher
	WorkingDir string
	// KeepWorkdir keeps the processing directory (removed by default)
	KeepWorkdir bool
}

// ProcessPair prepares the pair, runs topsApp, and publishes the outputs.
// Returns the uris of the published files
func (p *Processor) ProcessPair(ctx context.Context, job common.PairToProcess) ([]string, error) {
	ctx = log.With(ctx, "interferogram", job.Pair.IntName())
	w := isce.Workdir{Root: p.WorkingDir, Pair: job.Pair}
	if !p.KeepWorkdir {
		defer func() {
			if err := os.RemoveAll(w.Dir()); err != nil {
				log.Logger(ctx).Sugar().Warnf("unable to remove %s: %v", w.Dir(), err)
			}
		}()
	}

	log.Logger(ctx).Info("prepare topsApp")
	xmlFile, err := p.Preparer.PreparePair(ctx, p.WorkingDir, job.Pair, job.Data, nil)
	if err != nil {
		return nil, fmt.Errorf("ProcessPair.%w", err)
	}

	log.Logger(ctx).Info("run topsApp")
	if err := p.Runner.Run(ctx, graph.GraphTopsApp, []graph.Product{{Name: isce.TopsAppFile, Source: xmlFile}}, w.Dir()); err != nil {
		return nil, fmt.Errorf("ProcessPair.%w", err)
	}
	if _, err := os.Stat(w.Path(isce.MergedDir)); err != nil {
		return nil, service.MakeFatal(fmt.Errorf("ProcessPair: topsApp did not produce %s: %w", isce.MergedDir, err))
	}

	log.Logger(ctx).Info("publish")
	uris, err := p.Publisher.Publish(ctx, w, job.Data.OutputURI)
	if err != nil {
		return nil, fmt.Errorf("ProcessPair.%w", err)
	}
	log.Logger(ctx).Sugar().Infof("%s processed: %d files published", job.Pair.IntName(), len(uris))
	return uris, nil
}
