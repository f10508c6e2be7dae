package publishers

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/samvad-hq/post-archiver/internal/logger"
	"google.golang.org/api/option"
)

type gcpPubSubPublisher struct {
	id      string
	client  *pubsub.Client
	topic   *pubsub.Topic
	ordered bool
	log     logger.Logger
}

func newGCPPubSubPublisher(ctx context.Context, cfg PublisherConfig, log logger.Logger) (Publisher, error) {
	if cfg.GCPPubSub == nil {
		return nil, fmt.Errorf("publisher %q missing gcp_pubsub configuration", cfg.ID)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var opts []option.ClientOption
	if cfg.GCPPubSub.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCPPubSub.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, cfg.GCPPubSub.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(cfg.GCPPubSub.Topic)
	topic.EnableMessageOrdering = cfg.GCPPubSub.OrderByAccount

	return &gcpPubSubPublisher{
		id:      cfg.ID,
		client:  client,
		topic:   topic,
		ordered: cfg.GCPPubSub.OrderByAccount,
		log:     logger.Ensure(log),
	}, nil
}

func (g *gcpPubSubPublisher) ID() string   { return g.id }
func (g *gcpPubSubPublisher) Type() string { return TypeGCPPubSub }

// Publish sends the event and waits for the server acknowledgement.
func (g *gcpPubSubPublisher) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := &pubsub.Message{Data: payload, Attributes: evt.Attributes()}
	if g.ordered {
		msg.OrderingKey = evt.AccountHandle
	}

	msgID, err := g.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		if g.ordered {
			g.topic.ResumePublish(evt.AccountHandle)
		}
		return fmt.Errorf("publish to pubsub: %w", err)
	}
	g.log.DebugObj("pubsub publisher delivered archived post", "publisher_pubsub_delivery", map[string]any{
		"publisher_id": g.id,
		"post_id":      evt.PostID,
		"message_id":   msgID,
	})
	return nil
}

// Close flushes pending messages and releases the client.
func (g *gcpPubSubPublisher) Close() error {
	g.topic.Stop()
	return g.client.Close()
}
