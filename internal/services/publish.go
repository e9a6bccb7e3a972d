package services

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/nutrichat-backend/internal/events"
)

// publish hands e to p after the owning write has committed. Failures are
// logged and counted only.
func publish(ctx context.Context, p events.Publisher, e events.Event) {
	if p == nil {
		return
	}
	err := p.Publish(ctx, e)
	eventsPublished.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		log.Warn().Err(err).Str("event", string(e.Type)).Str("key", e.Key).Msg("event publish failed")
	}
}
