package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/nutrichat-backend/internal/repo"
)

// RequestSweeper periodically persists request expiry and drops stale
// idempotency records. Reads never depend on it; it only keeps the stored
// status in line with the effective one.
type RequestSweeper struct {
	Broker   *RequestBroker
	DB       *gorm.DB
	Interval time.Duration
}

// NewRequestSweeper builds a sweeper over the broker's database.
func NewRequestSweeper(b *RequestBroker, interval time.Duration) *RequestSweeper {
	return &RequestSweeper{Broker: b, DB: b.DB, Interval: interval}
}

// Run sweeps once immediately and then on every tick until ctx is done.
// It always returns nil so it can sit in an errgroup beside the server.
func (s *RequestSweeper) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and reports what it changed.
func (s *RequestSweeper) Sweep(ctx context.Context) (expired, purged int64) {
	expired, err := s.Broker.ExpireStale(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("request sweep failed")
	}
	if s.DB != nil {
		purged, err = repo.PurgeExpiredIdempotency(ctx, s.DB, s.Broker.now())
		if err != nil {
			log.Warn().Err(err).Msg("idempotency purge failed")
		}
	}
	if expired > 0 || purged > 0 {
		log.Debug().Int64("expired", expired).Int64("purged", purged).Msg("sweep done")
	}
	return expired, purged
}
