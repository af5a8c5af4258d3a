// Package pubsub implements a Google Cloud Pub/Sub record sink.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/dropwatch/dropwatch/internal/engine"
)

// Sink publishes each extracted record as one JSON message. Emit fails if
// any record fails to publish, so the caller keeps its dedup window closed
// for the batch.
type Sink struct {
	publisher *pubsub.Publisher
}

// New creates a Sink for the provided topic publisher.
func New(publisher *pubsub.Publisher) *Sink {
	return &Sink{publisher: publisher}
}

// Emit publishes the batch and waits for server acknowledgement of every
// message.
func (s *Sink) Emit(ctx context.Context, records []engine.ExtractedRecord) error {
	if s.publisher == nil {
		return fmt.Errorf("pubsub publisher is not configured")
	}

	results := make([]*pubsub.PublishResult, 0, len(records))
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", rec.ID, err)
		}
		msg := &pubsub.Message{
			Data: data,
			Attributes: map[string]string{
				"source_id": rec.SourceID,
				"record_id": rec.ID,
			},
		}
		results = append(results, s.publisher.Publish(ctx, msg))
	}

	for i, result := range results {
		if _, err := result.Get(ctx); err != nil {
			return fmt.Errorf("publish record %s: %w", records[i].ID, err)
		}
	}
	return nil
}
