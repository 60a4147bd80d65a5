// Package pubsub implements a Google Cloud Pub/Sub event publisher.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/scrapeworks/blogwatch/internal/scrape"
)

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	topic *pubsub.Topic
}

// New creates a Publisher for the provided topic.
func New(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

// Publish marshals the event to JSON and publishes it to the topic. The
// event kind and job ID travel as attributes so consumers can filter
// without decoding the payload.
func (p *Publisher) Publish(ctx context.Context, event scrape.Event) error {
	if p.topic == nil {
		return fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"kind":   string(event.Kind),
			"job_id": event.JobID,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
