// Command isce2aws converts the outputs of topsApp into COGs and browse images, and publishes them to S3.
// Usage: isce2aws -i int-20170828-20170816
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"strings"

	"github.com/scottyhq/dinoSARaws/colormap"
	"github.com/scottyhq/dinoSARaws/common"
	"github.com/scottyhq/dinoSARaws/interface/aws"
	"github.com/scottyhq/dinoSARaws/isce"
	"github.com/scottyhq/dinoSARaws/processor"
	"github.com/scottyhq/dinoSARaws/service"
	"github.com/scottyhq/dinoSARaws/service/log"
	"go.uber.org/zap"
)

type config struct {
	IntName    string
	Root       string
	OutputURI  string
	Parallel   int
	RampsFile  string
	UploadOnly bool
	TopicArn   string

	AWS aws.Config

	GeocubeServer         string
	GeocubeServerInsecure bool
	GeocubeServerApiKey   string
	GeocubeRecordID       string
	GeocubeInstances      map[string]string
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.IntName, "i", "", "name of the interferogram (int-<main>-<secondary>)")
	flag.StringVar(&config.Root, "root", ".", "parent directory of the interferogram directory")
	flag.StringVar(&config.OutputURI, "uri", "", "output uri (default: s3://<interferogram>/output). Other schemes (local, gs) are saved in <uri>/<interferogram>")
	flag.IntVar(&config.Parallel, "parallel", 4, "number of products converted in parallel")
	flag.StringVar(&config.RampsFile, "ramps", "", "json file of the colour ramps (optional)")
	flag.BoolVar(&config.UploadOnly, "upload-only", false, "only upload the output directory")
	flag.StringVar(&config.TopicArn, "topic", "", "sns topic notified when the interferogram is published (optional)")

	flag.StringVar(&config.AWS.Region, "region", aws.DefaultRegion, "aws region")
	flag.StringVar(&config.AWS.Profile, "aws-profile", "", "aws shared config profile (optional)")
	flag.StringVar(&config.AWS.Endpoint, "s3-endpoint", "", "custom s3 endpoint (optional)")

	flag.StringVar(&config.GeocubeServer, "geocube-server", "", "address of geocube server (optional). To index the products.")
	flag.BoolVar(&config.GeocubeServerInsecure, "geocube-insecure", false, "connection to geocube server is insecure")
	flag.StringVar(&config.GeocubeServerApiKey, "geocube-apikey", "", "geocube server api key")
	flag.StringVar(&config.GeocubeRecordID, "geocube-record", "", "id of the record of the datasets")
	instancesStr := flag.String("geocube-instances", "", "product:instanceID comma-separated")
	flag.Parse()

	if config.IntName == "" && flag.NArg() == 1 {
		config.IntName = flag.Arg(0)
	}
	if config.IntName == "" {
		return nil, fmt.Errorf("missing interferogram name (-i int-<main>-<secondary>)")
	}
	if *instancesStr != "" {
		config.GeocubeInstances = map[string]string{}
		for _, instance := range strings.Split(*instancesStr, ",") {
			kv := strings.SplitN(instance, ":", 2)
			if len(kv) != 2 {
				return nil, fmt.Errorf("malformed geocube-instances config. Must be product:instanceID")
			}
			config.GeocubeInstances[kv[0]] = kv[1]
		}
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
	mainDate, secondary, err := common.ParseIntName(config.IntName)
	if err != nil {
		return err
	}
	ctx = log.With(ctx, "interferogram", config.IntName)
	w := isce.Workdir{Root: config.Root, Pair: common.Pair{Main: mainDate, Secondary: secondary}}

	clients, err := aws.NewClients(ctx, config.AWS)
	if err != nil {
		return err
	}
	publisher := processor.NewPublisher(processor.PlanRunner{Parallel: config.Parallel})
	publisher.S3 = clients.S3
	if config.OutputURI != "" && !strings.HasPrefix(config.OutputURI, "s3://") {
		if publisher.Storage, err = service.NewStorageStrategy(ctx, config.OutputURI); err != nil {
			return fmt.Errorf("storage[%s].%w", config.OutputURI, err)
		}
	}
	if config.RampsFile != "" {
		if publisher.Ramps, err = colormap.LoadRamps(ctx, config.RampsFile); err != nil {
			return err
		}
	}
	if config.GeocubeServer != "" {
		var tlsConfig *tls.Config
		if !config.GeocubeServerInsecure {
			tlsConfig = &tls.Config{}
		}
		gcclient, err := service.NewGeocubeClient(ctx, config.GeocubeServer, config.GeocubeServerApiKey, tlsConfig)
		if err != nil {
			return err
		}
		publisher.Indexer = processor.GeocubeIndexer{
			Client:      gcclient,
			RecordID:    config.GeocubeRecordID,
			InstancesID: config.GeocubeInstances,
			Formats:     processor.ISCEDataFormats(),
		}
	}

	var uris []string
	if config.UploadOnly {
		uris, err = publisher.Upload(ctx, w, config.OutputURI)
	} else {
		uris, err = publisher.Publish(ctx, w, config.OutputURI)
	}
	if err != nil {
		return err
	}
	for _, uri := range uris {
		fmt.Println(uri)
	}

	if config.TopicArn != "" {
		message := fmt.Sprintf("%s published: %d files\n%s", config.IntName, len(uris), strings.Join(uris, "\n"))
		if err := clients.SNS.Notify(ctx, config.TopicArn, config.IntName+" done", message); err != nil {
			return err
		}
	}
	log.Logger(ctx).Info("All done!")
	return nil
}
