package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/airbusgeo/geocube/interface/messaging"
	"github.com/airbusgeo/geocube/interface/messaging/pgqueue"
	"github.com/airbusgeo/geocube/interface/messaging/pubsub"
	"github.com/scottyhq/dinoSARaws/common"
	"github.com/scottyhq/dinoSARaws/downloader"
	"github.com/scottyhq/dinoSARaws/graph"
	"github.com/scottyhq/dinoSARaws/interface/aws"
	"github.com/scottyhq/dinoSARaws/processor"
	"github.com/scottyhq/dinoSARaws/service"
	"github.com/scottyhq/dinoSARaws/service/log"
	"go.uber.org/zap"
)

type config struct {
	WorkingDir  string
	StorageURI  string
	KeepWorkdir bool
	Parallel    int

	PgqDbConnection string
	PsProject       string
	JobQueue        string
	EventQueue      string

	AWS aws.Config

	Providers downloader.ProvidersConfig

	TopsAppImage     string
	WithDockerEngine bool
	Docker           graph.DockerConfig

	GeocubeServer         string
	GeocubeServerInsecure bool
	GeocubeServerApiKey   string
	GeocubeRecordID       string
	GeocubeInstances      map[string]string
}

func newAppConfig() (*config, error) {
	config := config{}
	// Global config
	flag.StringVar(&config.WorkingDir, "workdir", "/local-ssd", "working directory to store intermediate results")
	flag.StringVar(&config.StorageURI, "storage-uri", "", "storage uri of the outputs when the output uri of the pair is not on s3 (currently supported: local, gs)")
	flag.BoolVar(&config.KeepWorkdir, "keep-workdir", false, "do not remove the working directory of the pair")
	flag.IntVar(&config.Parallel, "parallel", 4, "number of products converted in parallel")

	// Messaging
	flag.StringVar(&config.PgqDbConnection, "pgq-connection", "", "enable pgq messaging system with a connection to the database")
	flag.StringVar(&config.PsProject, "ps-project", "", "pubsub subscription project (gcp only/not required in local usage)")
	flag.StringVar(&config.JobQueue, "job-queue", "", "name of the queue for pair jobs (pgqueue or pubsub subscription)")
	flag.StringVar(&config.EventQueue, "event-queue", "", "name of the queue for job events (pgqueue or pubsub topic)")

	// AWS
	flag.StringVar(&config.AWS.Region, "region", aws.DefaultRegion, "aws region")
	flag.StringVar(&config.AWS.Profile, "aws-profile", "", "aws shared config profile (optional)")
	flag.StringVar(&config.AWS.Endpoint, "s3-endpoint", "", "custom s3 endpoint (optional)")

	// Providers
	bucketsStr := config.Providers.SetFlags()

	// ISCE
	flag.StringVar(&config.TopsAppImage, "topsapp-image", graph.Getenv("ISCE_IMAGE", ""), "docker image of ISCE (empty: topsApp.py is run locally)")
	flag.BoolVar(&config.WithDockerEngine, "with-docker-engine", false, "run topsApp in the docker image (require a running docker-daemon)")
	dockerEnvsStr := config.Docker.SetFlags()

	// Geocube connection
	flag.StringVar(&config.GeocubeServer, "geocube-server", "", "address of geocube server (optional). To index the products.")
	flag.BoolVar(&config.GeocubeServerInsecure, "geocube-insecure", false, "connection to geocube server is insecure")
	flag.StringVar(&config.GeocubeServerApiKey, "geocube-apikey", "", "geocube server api key")
	flag.StringVar(&config.GeocubeRecordID, "geocube-record", "", "id of the record of the datasets")
	instancesStr := flag.String("geocube-instances", "", "product:instanceID comma-separated, e.g. coherence-cog.tif:0c2e...")
	flag.Parse()

	if *bucketsStr != "" {
		config.Providers.BucketPatterns = strings.Split(*bucketsStr, ",")
	}
	if *dockerEnvsStr != "" {
		config.Docker.Envs = strings.Split(*dockerEnvsStr, ",")
	}
	if config.WorkingDir == "" {
		return nil, fmt.Errorf("missing workdir config flag")
	}
	if config.WithDockerEngine && config.TopsAppImage == "" {
		return nil, fmt.Errorf("missing topsapp-image config flag")
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
	if config.GeocubeServer != "" && (config.GeocubeRecordID == "" || len(config.GeocubeInstances) == 0) {
		return nil, fmt.Errorf("geocube-record and geocube-instances are required to index the products")
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

func newProcessor(ctx context.Context, config *config) (*processor.Processor, error) {
	dl, providerNames, err := downloader.NewDownloader(ctx, config.Providers)
	if err != nil {
		return nil, err
	}
	log.Logger(ctx).Sugar().Debugf("downloading SLCs from %s", strings.Join(providerNames, ", "))

	runner := processor.PlanRunner{Parallel: config.Parallel}
	topsRunner := processor.PlanRunner{TopsAppImage: config.TopsAppImage}
	if config.WithDockerEngine {
		if topsRunner.Docker, err = graph.NewDockerManager(ctx, config.Docker); err != nil {
			return nil, err
		}
		topsRunner.DockerEnvs = config.Docker.Envs
	} else {
		topsRunner.TopsAppImage = ""
	}

	publisher := processor.NewPublisher(runner)
	clients, err := aws.NewClients(ctx, config.AWS)
	if err != nil {
		return nil, err
	}
	publisher.S3 = clients.S3
	if config.StorageURI != "" {
		if publisher.Storage, err = service.NewStorageStrategy(ctx, config.StorageURI); err != nil {
			return nil, fmt.Errorf("storage[%s].%w", config.StorageURI, err)
		}
	}

	if config.GeocubeServer != "" {
		var tlsConfig *tls.Config
		if !config.GeocubeServerInsecure {
			tlsConfig = &tls.Config{}
		}
		gcclient, err := service.NewGeocubeClient(ctx, config.GeocubeServer, config.GeocubeServerApiKey, tlsConfig)
		if err != nil {
			return nil, err
		}
		publisher.Indexer = processor.GeocubeIndexer{
			Client:      gcclient,
			RecordID:    config.GeocubeRecordID,
			InstancesID: config.GeocubeInstances,
			Formats:     processor.ISCEDataFormats(),
		}
	}

	return &processor.Processor{
		Preparer:    dl,
		Runner:      topsRunner,
		Publisher:   publisher,
		WorkingDir:  config.WorkingDir,
		KeepWorkdir: config.KeepWorkdir,
	}, nil
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}

	var eventPublisher messaging.Publisher
	var jobConsumer messaging.Consumer
	var logMessaging string
	{
		if config.PgqDbConnection != "" {
			db, w, err := pgqueue.SqlConnect(ctx, config.PgqDbConnection)
			if err != nil {
				return fmt.Errorf("MessagingService: %w", err)
			}
			if config.JobQueue != "" {
				logMessaging += fmt.Sprintf(" pulling on pgqueue:%s", config.JobQueue)
				consumer := pgqueue.NewConsumer(db, config.JobQueue)
				defer consumer.Stop()
				jobConsumer = consumer
			}
			if config.EventQueue != "" {
				logMessaging += fmt.Sprintf(" pushing on pgqueue:%s", config.EventQueue)
				eventPublisher = pgqueue.NewPublisher(w, config.EventQueue, pgqueue.WithMaxRetries(5))
			}
		} else if config.PsProject != "" {
			if config.JobQueue != "" {
				logMessaging += fmt.Sprintf(" pulling on %s/%s", config.PsProject, config.JobQueue)
				if jobConsumer, err = pubsub.NewConsumer(config.PsProject, config.JobQueue); err != nil {
					return fmt.Errorf("pubsub.NewConsumer: %w", err)
				}
			}
			if config.EventQueue != "" {
				logMessaging += fmt.Sprintf(" pushing on %s/%s", config.PsProject, config.EventQueue)
				eventTopic, err := pubsub.NewPublisher(ctx, config.PsProject, config.EventQueue, pubsub.WithMaxRetries(5))
				if err != nil {
					return fmt.Errorf("messaging.NewPublisher: %w", err)
				}
				defer eventTopic.Stop()
				eventPublisher = eventTopic
			}
		}
	}
	if jobConsumer == nil {
		return fmt.Errorf("missing configuration for messaging.JobConsumer")
	}
	if eventPublisher == nil {
		return fmt.Errorf("missing configuration for messaging.EventPublisher")
	}

	proc, err := newProcessor(ctx, config)
	if err != nil {
		return err
	}

	jobStarted := time.Time{}
	go func() {
		http.HandleFunc("/termination_cost", func(w http.ResponseWriter, r *http.Request) {
			terminationCost := 0
			if jobStarted != (time.Time{}) {
				terminationCost = int(time.Since(jobStarted).Seconds() * 1000) //milliseconds since task was leased
			}
			fmt.Fprintf(w, "%d", terminationCost)
		})
		http.ListenAndServe(":9000", nil)
	}()

	maxTries := 15 //Must be less than the configured number of tries of the pubsub topic

	log.Logger(ctx).Debug("processor starts" + logMessaging)
	for {
		err := jobConsumer.Pull(ctx, func(ctx context.Context, msg *messaging.Message) (err error) {
			jobStarted = time.Now()
			defer func() {
				jobStarted = time.Time{}
			}()
			ctx = log.With(ctx, "msgID", msg.ID)
			log.Logger(log.With(ctx, "body", string(msg.Data))).Sugar().Debugf("message %s try %d", msg.ID, msg.TryCount)
			status := common.StatusRETRY
			pair := common.PairToProcess{}
			message := ""
			var outputs []string
			if err := json.Unmarshal(msg.Data, &pair); err != nil {
				return fmt.Errorf("invalid payload: %w", err)
			} else if pair.ID == 0 {
				return fmt.Errorf("invalid payload: %d", pair.ID)
			}

			defer func() {
				if err != nil && service.Temporary(err) {
					log.Logger(ctx).Warn("job temporary failure", zap.Error(err))
					return
				}
				if err != nil {
					log.Logger(ctx).Warn("job failed", zap.Error(err))
					message = err.Error()
				}
				res := common.Result{
					Type:    common.ResultTypePair,
					ID:      pair.ID,
					Status:  status,
					Message: message,
					Outputs: outputs,
				}
				resb, e := json.Marshal(res)
				if e != nil {
					err = service.MakeTemporary(fmt.Errorf("marshal: %w", e))
				} else if e := eventPublisher.Publish(ctx, resb); e != nil {
					err = service.MakeTemporary(fmt.Errorf("failed to enqueue result: %w", e))
				}
			}()
			if msg.TryCount > maxTries {
				return fmt.Errorf("too many retries")
			}

			if outputs, err = proc.ProcessPair(ctx, pair); err != nil {
				if msg.TryCount >= maxTries {
					return fmt.Errorf("too many retries: %w", err)
				}
				if service.Fatal(err) {
					status = common.StatusFAILED
				}
				return err
			}
			log.Logger(ctx).Sugar().Infof("successfully processed pair %s", pair.IntName())
			status = common.StatusDONE
			return
		})
		if err != nil {
			return fmt.Errorf("ps.process: %w", err)
		}
	}
}
