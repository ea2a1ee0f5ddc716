// Package events publishes ledger domain events to the message broker.
package events

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Publisher sends a JSON-encoded event under a routing key
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body interface{}) error
}

// NopPublisher drops events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(_ context.Context, routingKey string, _ interface{}) error {
	log.Debug().Str("routing_key", routingKey).Msg("Event broker disabled, dropping event")
	return nil
}
