// Package scheduler drives the periodic credit maintenance work: refreshing
// paid-tier balances to their monthly allotment. Runs are idempotent, so
// overlapping instances and restarts are safe.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/decksmith/decksmith/internal/clock"
	ledgerdomain "github.com/decksmith/decksmith/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: invalid configuration")

type Params struct {
	fx.In

	Log       *zap.Logger
	LedgerSvc ledgerdomain.Service
	Clock     clock.Clock
	Config    Config `optional:"true"`
}

type Scheduler struct {
	log       *zap.Logger
	cfg       Config
	clock     clock.Clock
	ledgerSvc ledgerdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.LedgerSvc == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		clock:     p.Clock,
		ledgerSvc: p.LedgerSvc,
	}, nil
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, "monthly_reset", s.cfg.JobTimeout, s.MonthlyResetJob)
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	log := s.log.With(zap.String("job", name))
	err := fn(ctx)
	duration := s.clock.Now().Sub(start)
	if err == nil {
		log.Debug("job finished", zap.Duration("duration", duration))
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		// Soft timeout: the next tick picks up where this run stopped.
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	log.Error("job failed", zap.Duration("duration", duration), zap.Error(err))
	return fmt.Errorf("%s: %w", name, err)
}

// MonthlyResetJob drains due accounts batch by batch until none remain.
func (s *Scheduler) MonthlyResetJob(ctx context.Context) error {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.ledgerSvc.ResetDue(ctx, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		total += n
		if n < s.cfg.BatchSize {
			break
		}
	}
	if total > 0 {
		s.log.Info("monthly reset applied", zap.Int("accounts", total))
	}
	return nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
