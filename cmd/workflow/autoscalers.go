package main

import (
	"context"
	"fmt"
	"time"

	"github.com/airbusgeo/geocube/interface/autoscaler"
	rc "github.com/airbusgeo/geocube/interface/autoscaler/k8s"
	"github.com/airbusgeo/geocube/interface/autoscaler/qbas"
	"github.com/airbusgeo/geocube/interface/messaging/pubsub"
	"github.com/scottyhq/dinoSARaws/service/log"
	"go.uber.org/zap"
)

// runAutoscalers scales the pair processors with the length of the pair queue.
// A pair keeps a processor busy for hours: one instance per pending pair.
func runAutoscalers(ctx context.Context, project string, config autoscalerConfig) error {
	if config.ProcessorRC == "" || config.PsProcessorQueue == "" {
		return fmt.Errorf("missing processor-rc or pair-queue")
	}
	pctx := log.WithFields(ctx, zap.String("rc", config.ProcessorRC), zap.String("queue", config.PsProcessorQueue))

	controller, err := rc.New(config.ProcessorRC, config.Namespace)
	if err != nil {
		return fmt.Errorf("rc.new: %w", err)
	}
	controller.AllowEviction = false
	controller.CostPath = "/termination_cost"
	controller.CostPort = 9000

	queue, err := pubsub.NewConsumer(project, config.PsProcessorQueue)
	if err != nil {
		return fmt.Errorf("pubsub.new: %w", err)
	}

	cfg := qbas.Config{
		Ratio:        1,
		MinRatio:     1,
		MaxInstances: config.MaxProcessorInstances,
		MinInstances: 0,
		MaxStep:      5,
	}
	as := autoscaler.New(queue, controller, cfg, log.Logger(pctx))
	log.Logger(pctx).Sugar().Infof("starting autoscaler")
	go as.Run(pctx, time.Minute)
	return nil
}
