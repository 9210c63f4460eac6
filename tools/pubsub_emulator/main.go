// Command pubsub_emulator creates the topics and subscriptions of the pair workflow on a local pubsub emulator.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/scottyhq/dinoSARaws/service/log"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// queue is a topic and its subscription with the same name
type queue struct {
	name        string
	ackDeadline time.Duration
}

func main() {
	ctx := context.Background()

	host := flag.String("host", "localhost:8085", "address of the emulator")
	projectID := flag.String("project", "dinosar-emulator", "emulator project")
	eventQueue := flag.String("event-queue", "dinosar-events", "queue of the pair events")
	pairQueue := flag.String("pair-queue", "dinosar-pairs", "queue of the pairs to process")
	flag.Parse()

	os.Setenv("PUBSUB_EMULATOR_HOST", *host)
	if err := createQueues(ctx, *projectID, []queue{
		{name: *eventQueue, ackDeadline: 10 * time.Second},
		{name: *pairQueue, ackDeadline: 600 * time.Second},
	}); err != nil {
		log.Fatal("error", zap.Error(err))
	}
	log.Logger(ctx).Info("Done!")
}

func createQueues(ctx context.Context, projectID string, queues []queue) error {
	log.Logger(ctx).Sugar().Infof("new client for project %s", projectID)
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return err
	}
	defer client.Close()

	for _, q := range queues {
		log.Logger(ctx).Sugar().Infof("create topic and subscription %s", q.name)
		topic, err := client.CreateTopic(ctx, q.name)
		if err != nil {
			if status.Code(err) != codes.AlreadyExists {
				return err
			}
			topic = client.Topic(q.name)
		}
		if _, err = client.CreateSubscription(ctx, q.name, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: q.ackDeadline,
		}); err != nil && status.Code(err) != codes.AlreadyExists {
			return err
		}
	}
	return nil
}
