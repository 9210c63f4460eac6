package downloader

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/scottyhq/dinoSARaws/interface/provider"
)

// ProvidersConfig configures the SLC providers and the auxiliary files of a Downloader
type ProvidersConfig struct {
	LocalPath      string
	ASFToken       string
	ASFURLPattern  string
	BucketPatterns []string
	FTPPattern     string
	FTPUsername    string
	FTPPassword    string

	AuxDir     string
	SkipAux    bool
	Parallel   int
	SkipSLCs   bool
	OrbitsURL  string
	AuxCalURL  string
	AuxRetries int
}

// SetFlags configures the flags of the providers.
// Returns the bucket patterns as string, comma sep.
//
// cfg := ProvidersConfig{}
// bucketsStr := cfg.SetFlags()
//
// flag.Parse()
//
//	if *bucketsStr != "" {
//			cfg.BucketPatterns = strings.Split(*bucketsStr, ",")
//		}
func (cfg *ProvidersConfig) SetFlags() *string {
	flag.StringVar(&cfg.LocalPath, "local-path", "", "local path where SLCs are stored (optional). To configure a local path as a potential SLC provider.")
	flag.StringVar(&cfg.ASFToken, "asf-token", "", "Earthdata token (optional). To configure Alaska Satellite Facility as a potential SLC provider.")
	flag.StringVar(&cfg.ASFURLPattern, "asf-url", provider.ASFDownloadProductSLC, "url pattern of the ASF products")
	flag.StringVar(&cfg.FTPPattern, "ftp-pattern", "", "ftp path pattern, e.g. ftp://ftp.example.org:21/S1{MISSION_VERSION}/{YEAR}/{SCENE}.zip (optional)")
	flag.StringVar(&cfg.FTPUsername, "ftp-username", "", "ftp account username (optional)")
	flag.StringVar(&cfg.FTPPassword, "ftp-password", "", "ftp account password (optional)")
	flag.StringVar(&cfg.AuxDir, "auxdir", "", "shared directory of the aux-cal files (default: <workdir>/aux)")
	flag.BoolVar(&cfg.SkipAux, "skip-aux", false, "do not download precise orbits and aux-cal files")
	flag.IntVar(&cfg.Parallel, "parallel-downloads", 2, "number of parallel SLC downloads")
	flag.BoolVar(&cfg.SkipSLCs, "skip-download", false, "only write download-links.txt and topsApp.xml")
	flag.StringVar(&cfg.OrbitsURL, "orbits-url", provider.ASFPreciseOrbitsURL, "listing of the precise orbits")
	flag.StringVar(&cfg.AuxCalURL, "auxcal-url", provider.ASFAuxCalURL, "listing of the aux-cal files")
	flag.IntVar(&cfg.AuxRetries, "aux-retries", 3, "number of tries to list the aux files")

	return flag.String("bucket-patterns", "", `mirrors of the SLCs in buckets (comma separated, optional), e.g. gs://my-mirror/S1{MISSION_VERSION}/{YEAR}/{SCENE}.zip
	IDENTIFIER must be one of SCENE, MISSION_ID, MISSION_VERSION, DATE(YEAR/MONTH/DAY), TIME(HOUR/MINUTE/SECOND), ORBIT`)
}

// NewDownloader creates a Downloader with the configured providers
// Returns the names of the providers
func NewDownloader(ctx context.Context, cfg ProvidersConfig) (*Downloader, []string, error) {
	d := Downloader{
		AuxDir:       cfg.AuxDir,
		Parallel:     cfg.Parallel,
		SkipDownload: cfg.SkipSLCs,
	}
	var names []string
	add := func(p provider.SLCProvider) {
		d.SLCProviders = append(d.SLCProviders, p)
		names = append(names, p.Name())
	}
	if cfg.LocalPath != "" {
		add(provider.NewLocalProvider(cfg.LocalPath))
	}
	for _, pattern := range cfg.BucketPatterns {
		if !strings.Contains(pattern, "{SCENE}") {
			return nil, nil, fmt.Errorf("NewDownloader: malformed bucket pattern %s: {SCENE} is missing", pattern)
		}
		add(provider.NewBucketProvider(pattern))
	}
	if cfg.FTPPattern != "" {
		add(provider.NewFTPProvider(cfg.FTPPattern, cfg.FTPUsername, cfg.FTPPassword))
	}
	if cfg.ASFToken != "" {
		asf := provider.NewASFProvider(ctx, cfg.ASFToken)
		if cfg.ASFURLPattern != "" {
			asf.WithURLPattern(cfg.ASFURLPattern)
		}
		add(asf)
	}
	if len(d.SLCProviders) == 0 && !cfg.SkipSLCs {
		return nil, nil, fmt.Errorf("NewDownloader: no SLC provider defined")
	}
	if !cfg.SkipAux {
		d.AuxProvider = provider.NewAuxProvider()
		if cfg.OrbitsURL != "" {
			d.AuxProvider.OrbitsURL = cfg.OrbitsURL
		}
		if cfg.AuxCalURL != "" {
			d.AuxProvider.AuxCalURL = cfg.AuxCalURL
		}
		if cfg.AuxRetries > 0 {
			d.AuxProvider.Retries = cfg.AuxRetries
		}
	}
	return &d, names, nil
}
