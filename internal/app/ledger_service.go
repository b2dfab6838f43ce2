package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightcycle/internal/ledger"
)

// LedgerService trims the operation history on a fixed interval.
type LedgerService struct {
	ledger    *ledger.Ledger
	retention time.Duration
	interval  time.Duration
	done      chan struct{}
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(l *ledger.Ledger, retention, interval time.Duration) *LedgerService {
	return &LedgerService{ledger: l, retention: retention, interval: interval}
}

// Start begins periodic cleanup.
func (s *LedgerService) Start(ctx context.Context) {
	if s.interval <= 0 || s.retention <= 0 {
		return
	}
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.runCleanup(ctx)
	}()
}

// Wait blocks until a running cleanup has finished.
func (s *LedgerService) Wait(ctx context.Context) {
	waitStopped(ctx, s.done, "ledger")
}

func (s *LedgerService) runCleanup(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup(ctx)
		}
	}
}

// Cleanup deletes entries past the retention period once.
func (s *LedgerService) Cleanup(ctx context.Context) int64 {
	deleted, err := s.ledger.DeleteOlderThan(ctx, s.retention)
	if err != nil {
		log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
		return 0
	}
	if deleted > 0 {
		log.Info().Int64("deleted", deleted).Dur("retention", s.retention).Msg("Cleaned up old ledger entries")
	}
	return deleted
}
