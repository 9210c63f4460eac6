package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"

	"github.com/airbusgeo/geocube/interface/messaging"
	"github.com/airbusgeo/geocube/interface/messaging/pgqueue"
	"github.com/airbusgeo/geocube/interface/messaging/pubsub"
	"github.com/gorilla/handlers"
	"github.com/scottyhq/dinoSARaws/catalog"
	"github.com/scottyhq/dinoSARaws/common"
	"github.com/scottyhq/dinoSARaws/interface/catalog/asf"
	"github.com/scottyhq/dinoSARaws/interface/database/pg"
	"github.com/scottyhq/dinoSARaws/service"
	"github.com/scottyhq/dinoSARaws/service/log"
	"github.com/scottyhq/dinoSARaws/workflow"
	"go.uber.org/zap"
)

type autoscalerConfig struct {
	Namespace             string
	PsProcessorQueue      string
	ProcessorRC           string
	MaxProcessorInstances int64
}

type config struct {
	AppPort         string
	DbConnection    string
	CreateSchema    bool
	PgqDbConnection string
	PsProject       string
	EventQueue      string
	PairQueue       string
	Token           string
	CatalogDir      string
	ASFURL          string

	AutoscalerConfig autoscalerConfig
}

func newAppConfig() (*config, error) {
	config := config{}
	flag.StringVar(&config.AppPort, "port", "8080", "workflow port ot use")
	flag.StringVar(&config.DbConnection, "dbConnection", "", "database connection")
	flag.BoolVar(&config.CreateSchema, "create-schema", false, "create the tables of the workflow if they don't exist")
	flag.StringVar(&config.PgqDbConnection, "pgq-connection", "", "enable pgq messaging system with a connection to the database")
	flag.StringVar(&config.PsProject, "ps-project", "", "pubsub subscription project (gcp only/not required in local usage)")
	flag.StringVar(&config.EventQueue, "event-queue", "", "name of the queue for job events (pgqueue or pubsub subscription)")
	flag.StringVar(&config.PairQueue, "pair-queue", "", "name of the queue for pair jobs (pgqueue or pubsub topic)")
	flag.StringVar(&config.Token, "token", "", "bearer token required to access the api (optional)")
	flag.StringVar(&config.CatalogDir, "catalog-dir", "", "directory where the raw responses of the catalog are saved (optional)")
	flag.StringVar(&config.ASFURL, "asf-search-url", asf.DefaultURL, "url of the ASF search API")

	flag.StringVar(&config.AutoscalerConfig.Namespace, "namespace", "", "namespace (autoscaler)")
	flag.StringVar(&config.AutoscalerConfig.ProcessorRC, "processor-rc", "", "pair-processor replication controller name (autoscaler)")
	flag.Int64Var(&config.AutoscalerConfig.MaxProcessorInstances, "max-processor", 100, "Max Processor instances (autoscaler)")
	flag.Parse()

	if config.AppPort == "" {
		return nil, fmt.Errorf("failed to initialize port application flag")
	}
	if config.DbConnection == "" {
		return nil, fmt.Errorf("missing dbConnection config flag")
	}
	config.AutoscalerConfig.PsProcessorQueue = config.PairQueue
	return &config, nil
}

func main() {
	ctx := context.Background()
	err := run(ctx)
	if err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}

	// Connection to database
	db, err := pg.New(ctx, config.DbConnection)
	if err != nil {
		return fmt.Errorf("pg.New: %w", err)
	}
	if config.CreateSchema {
		if err := db.CreateSchema(ctx); err != nil {
			return err
		}
	}

	// Messaging service
	var pairPublisher messaging.Publisher
	var eventConsumer messaging.Consumer
	var logMessaging string
	{
		if config.PgqDbConnection != "" {
			pgqdb, w, err := pgqueue.SqlConnect(ctx, config.PgqDbConnection)
			if err != nil {
				return fmt.Errorf("MessagingService: %w", err)
			}
			if config.EventQueue != "" {
				logMessaging += fmt.Sprintf(" pulling on pgqueue:%s", config.EventQueue)
				consumer := pgqueue.NewConsumer(pgqdb, config.EventQueue)
				defer consumer.Stop()
				eventConsumer = consumer
			}
			if config.PairQueue != "" {
				logMessaging += fmt.Sprintf(" pushing pairJobs on pgqueue:%s", config.PairQueue)
				pairPublisher = pgqueue.NewPublisher(w, config.PairQueue, pgqueue.WithMaxRetries(5))
			}
		} else if config.PsProject != "" {
			// Start autoscaler
			if err = runAutoscalers(ctx, config.PsProject, config.AutoscalerConfig); err != nil {
				log.Logger(ctx).Warn("not running autoscalers", zap.Error(err))
			}

			if config.EventQueue != "" {
				logMessaging += fmt.Sprintf(" pulling on %s/%s", config.PsProject, config.EventQueue)
				if eventConsumer, err = pubsub.NewConsumer(config.PsProject, config.EventQueue); err != nil {
					return fmt.Errorf("pubsub.new: %w", err)
				}
			}
			if config.PairQueue != "" {
				logMessaging += fmt.Sprintf(" pushing pairJobs on %s/%s", config.PsProject, config.PairQueue)
				publisher, err := pubsub.NewPublisher(ctx, config.PsProject, config.PairQueue)
				if err != nil {
					return fmt.Errorf("pubsub.NewPublisher(Processor): %w", err)
				}
				defer publisher.Stop()
				pairPublisher = publisher
			}
		}
	}
	if eventConsumer == nil {
		return fmt.Errorf("missing configuration for messaging.EventConsumer")
	}
	if pairPublisher == nil {
		return fmt.Errorf("missing configuration for messaging.PairPublisher")
	}

	// Scenes are searched in the ASF archive
	provider := asf.NewProvider(config.CatalogDir)
	provider.BaseURL = config.ASFURL
	inventory := catalog.Catalog{Provider: provider, WorkingDir: config.CatalogDir}

	// Create Workflow Server
	wf := workflow.NewWorkflow(db, pairPublisher, &inventory)
	// New handler
	router := wf.NewHandler()
	wf.CatalogHandler(router)
	headersOk := handlers.AllowedHeaders([]string{"*"})
	originsOk := handlers.AllowedOrigins([]string{"*"})
	methodsOk := handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	s := http.Server{
		Addr:    ":" + config.AppPort,
		Handler: handlers.CORS(originsOk, headersOk, methodsOk)(BearerAuthenticate(config.Token, router)),
	}
	go func() {
		if err := s.ListenAndServe(); err != nil {
			log.Logger(ctx).Error(err.Error())
		}
	}()

	log.Logger(ctx).Debug("workflow starts" + logMessaging)
	for {
		err := eventConsumer.Pull(ctx, func(ctx context.Context, msg *messaging.Message) error {
			ctx = log.With(ctx, "msgID", msg.ID)
			log.Logger(log.With(ctx, "body", string(msg.Data))).Sugar().Debugf("message %s try %d", msg.ID, msg.TryCount)
			if msg.TryCount > 30 {
				return fmt.Errorf("bailing out after too many retries")
			}
			result := common.Result{}
			if err := json.Unmarshal(msg.Data, &result); err != nil {
				return fmt.Errorf("invalid payload: %w", err)
			} else if result.Type != common.ResultTypePair || result.ID == 0 {
				return fmt.Errorf("invalid payload %s %d", result.Type, result.ID)
			}
			if err := wf.ResultHandler(ctx, result); err != nil {
				return service.MakeTemporary(fmt.Errorf("failed to process %s %d: %w", result.Type, result.ID, err))
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("ps.process: %w", err)
		}
	}
}
