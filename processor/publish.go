package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/scottyhq/dinoSARaws/colormap"
	"github.com/scottyhq/dinoSARaws/graph"
	"github.com/scottyhq/dinoSARaws/interface/aws"
	"github.com/scottyhq/dinoSARaws/isce"
	"github.com/scottyhq/dinoSARaws/service"
	"github.com/scottyhq/dinoSARaws/service/log"
)

// Syncer uploads the new or modified files of a directory into a bucket (see aws.S3)
type Syncer interface {
	MakeBucket(ctx context.Context, bucket string) error
	Sync(ctx context.Context, localDir, uri string) ([]string, error)
}

// Publisher converts the outputs of topsApp into COGs and browse images and publishes them
type Publisher struct {
	Runner   GraphRunner
	Products []graph.Product
	Ramps    []colormap.RampConfig
	// S3 publishes to s3:// uris
	S3 Syncer
	// Storage publishes to other uris (local, gs), in <uri>/<intname>/
	Storage service.Storage
	// Indexer is optional
	Indexer      Indexer
	IndexTries   int
	IndexBackoff time.Duration
}

// NewPublisher returns a publisher of the ISCE products with the default ramps
func NewPublisher(runner GraphRunner) *Publisher {
	return &Publisher{
		Runner:   runner,
		Products: graph.ISCEProducts(),
		Ramps:    colormap.DefaultRamps(),

		IndexTries:   3,
		IndexBackoff: 15 * time.Second,
	}
}

// DefaultOutputURI returns s3://int-<main>-<secondary>/output
func DefaultOutputURI(intname string) string {
	return "s3://" + intname + "/" + isce.OutputDir
}

// ConvertCOGs converts the products into Cloud-Optimized GeoTIFFs in dir
func (p *Publisher) ConvertCOGs(ctx context.Context, dir string) error {
	log.Logger(ctx).Sugar().Infof("convert %d products to COG", len(p.Products))
	if err := p.Runner.Run(ctx, graph.GraphCOG, p.Products, dir); err != nil {
		return fmt.Errorf("ConvertCOGs.%w", err)
	}
	return nil
}

// MakeBrowse writes the colour ramps in dir and renders the browse images, thumbnails and tiles of the products having a ramp.
// Returns the products with their ramp
func (p *Publisher) MakeBrowse(ctx context.Context, dir string) ([]graph.Product, error) {
	ramps, err := colormap.BuildAll(p.Ramps, dir)
	if err != nil {
		return nil, fmt.Errorf("MakeBrowse.%w", err)
	}
	for product, file := range ramps {
		ramps[product] = filepath.Base(file)
	}
	products := graph.WithRamps(p.Products, ramps)
	if len(products) == 0 {
		log.Logger(ctx).Warn("no product with a colour ramp")
		return nil, nil
	}
	log.Logger(ctx).Sugar().Infof("render browse images of %d products", len(products))
	if err := p.Runner.Run(ctx, graph.GraphBrowse, products, dir); err != nil {
		return nil, fmt.Errorf("MakeBrowse.%w", err)
	}
	return products, nil
}

// indexProducts merges the products with their ramp
func indexProducts(products, browse []graph.Product) []graph.Product {
	ramps := map[string]string{}
	for _, b := range browse {
		ramps[b.Name] = b.Ramp
	}
	res := make([]graph.Product, len(products))
	for i, p := range products {
		p.Ramp = ramps[p.Name]
		res[i] = p
	}
	return res
}

// Publish converts, renders and collects the outputs of the interferogram, then uploads them to uri
// (default: s3://int-<main>-<secondary>/output). Returns the published files.
func (p *Publisher) Publish(ctx context.Context, w isce.Workdir, uri string) ([]string, error) {
	if err := p.ConvertCOGs(ctx, w.Dir()); err != nil {
		return nil, fmt.Errorf("Publish.%w", err)
	}
	browse, err := p.MakeBrowse(ctx, w.Dir())
	if err != nil {
		return nil, fmt.Errorf("Publish.%w", err)
	}
	if _, err := WriteIndex(w.Dir(), w.Pair.IntName(), indexProducts(p.Products, browse)); err != nil {
		return nil, fmt.Errorf("Publish.%w", err)
	}
	if _, err := w.CollectOutputs(); err != nil {
		return nil, fmt.Errorf("Publish.%w", err)
	}
	return p.Upload(ctx, w, uri)
}

// Upload uploads the output directory of the interferogram to uri and indexes the products.
// Returns the uris of the uploaded files
func (p *Publisher) Upload(ctx context.Context, w isce.Workdir, uri string) ([]string, error) {
	if uri == "" {
		uri = DefaultOutputURI(w.Pair.IntName())
	}
	var (
		uris []string
		err  error
	)
	if strings.HasPrefix(uri, "s3://") {
		uris, err = p.uploadS3(ctx, w.Path(isce.OutputDir), uri)
	} else {
		uris, err = p.uploadStorage(ctx, w.Path(isce.OutputDir), w.Pair.IntName())
	}
	if err != nil {
		return nil, fmt.Errorf("Upload.%w", err)
	}
	log.Logger(ctx).Sugar().Infof("%d files uploaded to %s", len(uris), uri)

	if p.Indexer != nil {
		if err := p.index(ctx, p.productURIs(w.Path(isce.OutputDir), uri, uris)); err != nil {
			return uris, fmt.Errorf("Upload.%w", err)
		}
	}
	return uris, nil
}

func (p *Publisher) uploadS3(ctx context.Context, dir, uri string) ([]string, error) {
	if p.S3 == nil {
		return nil, service.MakeFatal(fmt.Errorf("uploadS3: no s3 client"))
	}
	bucket, _, err := aws.ParseURI(uri)
	if err != nil {
		return nil, service.MakeFatal(fmt.Errorf("uploadS3.%w", err))
	}
	if err := p.S3.MakeBucket(ctx, bucket); err != nil {
		return nil, fmt.Errorf("uploadS3.%w", err)
	}
	keys, err := p.S3.Sync(ctx, dir, uri)
	if err != nil {
		return nil, fmt.Errorf("uploadS3.%w", err)
	}
	uris := make([]string, len(keys))
	for i, k := range keys {
		uris[i] = "s3://" + bucket + "/" + k
	}
	return uris, nil
}

// uploadStorage saves each entry of dir (directories are zipped by the storage)
func (p *Publisher) uploadStorage(ctx context.Context, dir, intname string) ([]string, error) {
	if p.Storage == nil {
		return nil, service.MakeFatal(fmt.Errorf("uploadStorage: no storage"))
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("uploadStorage: %w", err)
	}
	var uris []string
	for _, e := range entries {
		uri, err := p.Storage.SaveFile(ctx, intname, filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, service.MakeTemporary(fmt.Errorf("uploadStorage.%w", err))
		}
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris, nil
}

// productURIs returns the uri of each published product.
// The s3 sync only returns the uploaded files, so the uris of the products are built from the local output directory.
func (p *Publisher) productURIs(dir, uri string, uploaded []string) map[string]string {
	byName := map[string]string{}
	for _, u := range uploaded {
		byName[filepath.Base(u)] = u
	}
	if strings.HasPrefix(uri, "s3://") {
		for _, product := range p.Products {
			if _, err := os.Stat(filepath.Join(dir, product.Name)); err == nil {
				byName[product.Name] = strings.TrimSuffix(uri, "/") + "/" + product.Name
			}
		}
	}
	return byName
}

// index indexes the published products, with retries
func (p *Publisher) index(ctx context.Context, byName map[string]string) error {
	return service.Retriable(ctx, func() error {
		var errs []error
		for _, product := range p.Products {
			uri, ok := byName[product.Name]
			if !ok {
				continue
			}
			if err := p.Indexer.Index(ctx, uri, product); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}, p.IndexBackoff, p.IndexTries)
}
