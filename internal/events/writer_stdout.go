package events

import (
	"context"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"go.uber.org/zap"
)

// StdoutWriter logs lifecycle events instead of publishing them. It is the
// writer used when no kafka brokers are configured.
type StdoutWriter struct{}

func (s *StdoutWriter) Write(_ context.Context, topic string, e cloudevents.Event) error {
	zap.S().Named("lifecycle_events").Infow("event",
		"id", e.ID(),
		"kind", e.Type(),
		"subject", e.Subject(),
		"topic", topic,
		"payload", string(e.Data()))
	return nil
}

func (s *StdoutWriter) Close(context.Context) error { return nil }
