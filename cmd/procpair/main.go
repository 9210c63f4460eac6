// Command procpair launches the processing of interferograms on AWS.
// Usage: procpair -m 20170828 -s 20170816 -p 115 -n 1,2,3 [-submit print|cloudformation|ec2|batch]
//
//	procpair -i query.geojson -p 115 -pairs 3 -submit batch -queue isce -job-definition topsapp
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/scottyhq/dinoSARaws/catalog"
	"github.com/scottyhq/dinoSARaws/common"
	"github.com/scottyhq/dinoSARaws/interface/aws"
	"github.com/scottyhq/dinoSARaws/jobs"
	"github.com/scottyhq/dinoSARaws/service/log"
	"go.uber.org/zap"
)

type config struct {
	Pair      common.Pair
	Pairs     int
	Inventory string
	Params    jobs.Params
	Submit    string
	Spot      bool
	Wait      time.Duration
	Dir       string

	AWS aws.Config
}

func newAppConfig() (*config, error) {
	config := config{Params: jobs.NewParams(common.Pair{}, nil)}
	flag.StringVar(&config.Pair.Main, "m", "", "main date (YYYYMMDD)")
	flag.StringVar(&config.Pair.Secondary, "s", "", "secondary date (YYYYMMDD)")
	flag.IntVar(&config.Pair.Path, "p", 0, "relative orbit")
	flag.IntVar(&config.Pairs, "pairs", 0, "process the n most recent pairs of consecutive dates of the inventory (requires -i)")
	flag.StringVar(&config.Inventory, "i", "", "uri of the inventory (optional). If empty, the inventory is searched on the roi by the instance")
	swathsStr := flag.String("n", "1,2,3", "subswaths to process (comma or space separated)")
	roiStr := flag.String("r", "", "region of interest: 'S N W E' (optional)")
	gboxStr := flag.String("g", "", "geocode bounding box: 'S N W E' (optional)")

	flag.StringVar(&config.Params.ImageID, "ami", jobs.DefaultImageID, "image of the instance")
	flag.StringVar(&config.Params.InstanceType, "instance", jobs.DefaultInstanceType, "type of the instance")
	flag.StringVar(&config.Params.KeyName, "key", jobs.DefaultKeyName, "ssh key of the instance")
	flag.StringVar(&config.Params.SecurityGroup, "security-group", jobs.DefaultSecurityGrp, "security group of the instance")
	flag.StringVar(&config.Params.IAMProfile, "iam-profile", "", "instance profile allowed to write in S3 and publish on SNS")
	flag.IntVar(&config.Params.RootVolumeGB, "root-volume", jobs.DefaultRootVolumeGB, "size of the root volume (GB)")
	flag.IntVar(&config.Params.DataVolumeGB, "data-volume", jobs.DefaultDataVolumeGB, "size of the data volume (GB)")
	flag.StringVar(&config.Params.Repository, "repository", jobs.DefaultRepository, "git repository installed on the instance")
	flag.StringVar(&config.Params.TopicArn, "topic", "", "sns topic notified at the end of the processing (optional)")
	flag.StringVar(&config.Params.Queue, "queue", "", "aws batch job queue (-submit batch)")
	flag.StringVar(&config.Params.JobDefinition, "job-definition", "", "aws batch job definition (-submit batch)")

	flag.StringVar(&config.Submit, "submit", "print", "print|cloudformation|ec2|batch")
	flag.BoolVar(&config.Spot, "spot", false, "request spot instances (-submit ec2)")
	flag.DurationVar(&config.Wait, "wait", 0, "wait for the creation of the stacks (-submit cloudformation)")
	flag.StringVar(&config.Dir, "dir", ".", "directory of the templates and scripts")

	flag.StringVar(&config.AWS.Region, "region", aws.DefaultRegion, "aws region")
	flag.StringVar(&config.AWS.Profile, "aws-profile", "", "aws shared config profile (optional)")
	flag.Parse()

	if config.Pair.Path == 0 {
		return nil, fmt.Errorf("missing relative orbit config flag (-p)")
	}
	if config.Pairs > 0 {
		if config.Inventory == "" {
			return nil, fmt.Errorf("-pairs requires an inventory (-i)")
		}
	} else if config.Pair.Main == "" || config.Pair.Secondary == "" {
		return nil, fmt.Errorf("missing pair config flags (-m, -s) or -pairs")
	}
	var err error
	if config.Params.Swaths, err = jobs.ParseInts(*swathsStr); err != nil {
		return nil, fmt.Errorf("swaths: %w", err)
	}
	if *roiStr != "" {
		if config.Params.ROI, err = jobs.ParseSNWE(*roiStr); err != nil {
			return nil, fmt.Errorf("roi: %w", err)
		}
	}
	if *gboxStr != "" {
		if config.Params.GeocodeBox, err = jobs.ParseSNWE(*gboxStr); err != nil {
			return nil, fmt.Errorf("gbox: %w", err)
		}
	}
	config.Params.Inventory = config.Inventory
	config.Params.Region = config.AWS.Region
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
	pairs, err := listPairs(ctx, config)
	if err != nil {
		return err
	}
	params := make([]jobs.Params, len(pairs))
	for i, pair := range pairs {
		params[i] = config.Params.WithPair(pair)
		if err := params[i].Validate(); err != nil {
			return fmt.Errorf("%s: %w", pair.IntName(), err)
		}
	}

	submitter, err := newSubmitter(ctx, config)
	if err != nil {
		return err
	}
	ids, err := jobs.SubmitAll(ctx, submitter, params)
	for _, id := range ids {
		fmt.Println(id)
	}
	return err
}

// listPairs returns the pair of the command line or the most recent pairs of the inventory
func listPairs(ctx context.Context, config *config) ([]common.Pair, error) {
	if config.Pairs == 0 {
		return []common.Pair{config.Pair}, nil
	}
	scenes, err := catalog.Load(ctx, config.Inventory)
	if err != nil {
		return nil, err
	}
	pairs := catalog.Pairs(scenes, config.Pair.Path, config.Pairs)
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no pair found for orbit %d", config.Pair.Path)
	}
	return pairs, nil
}

func newSubmitter(ctx context.Context, config *config) (jobs.Submitter, error) {
	if config.Submit == "print" {
		return jobs.PrintSubmitter{Dir: config.Dir, Out: os.Stdout}, nil
	}
	clients, err := aws.NewClients(ctx, config.AWS)
	if err != nil {
		return nil, err
	}
	switch config.Submit {
	case "cloudformation":
		return jobs.CloudFormationSubmitter{Client: clients.CloudFormation, Wait: config.Wait}, nil
	case "ec2":
		return jobs.EC2Submitter{Client: clients.EC2, Spot: config.Spot}, nil
	case "batch":
		return jobs.BatchSubmitter{Storage: clients.S3, Batch: clients.Batch, Dir: config.Dir}, nil
	}
	return nil, fmt.Errorf("unknown submitter: %s (print|cloudformation|ec2|batch)", config.Submit)
}
