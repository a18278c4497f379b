package observability

import (
	"context"
)

// Publisher delivers lifecycle envelopes to the event bus.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

var defaultPublisher Publisher

func SetPublisher(publisher Publisher) {
	defaultPublisher = publisher
}

func PublishEvent(ctx context.Context, routingKey string, message any, headers map[string]string) error {
	if defaultPublisher == nil {
		return nil
	}

	if len(headers) > 0 {
		if envelope, ok := message.(EventEnvelope); ok {
			envelope.Headers = headers
			message = envelope
		}
	}

	return defaultPublisher.Publish(ctx, routingKey, message)
}
