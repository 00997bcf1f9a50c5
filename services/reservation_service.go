package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"repaircoin-backend/config"
	"repaircoin-backend/metrics"
	"repaircoin-backend/models"
	"repaircoin-backend/store"
)

const expiryBatchSize = 100

// ReservationService fails pending redemptions whose burn was never settled,
// so an abandoned reservation stops debiting the earned balance.
type ReservationService struct {
	ledger   store.LedgerStore
	engine   *RedemptionEngine
	ttl      time.Duration
	schedule string
	metrics  *metrics.Rewards
	logger   *slog.Logger
	now      func() time.Time
	cron     *cron.Cron
}

func NewReservationService(ledger store.LedgerStore, engine *RedemptionEngine, policy config.Policy,
	m *metrics.Rewards, logger *slog.Logger) *ReservationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReservationService{
		ledger:   ledger,
		engine:   engine,
		ttl:      policy.ReservationTTL,
		schedule: policy.ExpirySchedule,
		metrics:  m,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *ReservationService) StartScheduler() error {
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.ExpireStale(ctx); err != nil {
			s.logger.Error("reservation expiry run failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("reservation expiry schedule %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("reservation expiry scheduler started", "schedule", s.schedule, "ttl", s.ttl.String())
	return nil
}

// Stop waits for a running expiry pass to finish.
func (s *ReservationService) Stop() context.Context {
	if s.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return s.cron.Stop()
}

// ExpireStale fails every pending redeem older than the TTL and returns how
// many it released.
func (s *ReservationService) ExpireStale(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.ttl)
	expired := 0
	for {
		stale, err := s.ledger.StalePending(ctx, models.KindRedeem, cutoff, expiryBatchSize)
		if err != nil {
			return expired, transient("query stale reservations", err)
		}
		released := 0
		for _, entry := range stale {
			result, err := s.engine.Settle(ctx, entry.TxRef, ErrReservationExpired)
			if err != nil {
				s.logger.Error("failed to expire reservation", "txRef", entry.TxRef, "error", err)
				continue
			}
			if !result.Replayed {
				released++
				s.metrics.ReservationExpired()
				s.logger.Info("reservation expired",
					"txRef", entry.TxRef, "address", entry.CustomerAddress, "amount", entry.Amount.String())
			}
		}
		expired += released
		if len(stale) < expiryBatchSize || released == 0 {
			return expired, nil
		}
	}
}
