package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/siteassist/billing-engine/internal/config"
	"github.com/siteassist/billing-engine/internal/logger"
	"github.com/siteassist/billing-engine/internal/service"
)

// Scheduler owns the periodic billing work: the autopay sweep and the
// boundary sweep. Sweeps run sequentially per ticker; a slow sweep delays
// the next tick rather than overlapping it.
type Scheduler struct {
	cfg     *config.Configuration
	logger  *logger.Logger
	autoPay service.AutoPayService
	subSvc  service.SubscriptionService

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func New(cfg *config.Configuration, log *logger.Logger, autoPay service.AutoPayService, subSvc service.SubscriptionService) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		logger:  log,
		autoPay: autoPay,
		subSvc:  subSvc,
	}
}

// Start launches the sweep loops. Each runs once immediately so a
// restarted process catches up without waiting a full interval.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go s.loop(ctx, "autopay", s.cfg.Billing.AutoPayInterval, func(ctx context.Context) error {
		return s.autoPay.ProcessDueSubscriptions(ctx, time.Now().UTC())
	})
	go s.loop(ctx, "boundary", s.cfg.Billing.BoundarySweepInterval, func(ctx context.Context) error {
		return s.subSvc.ProcessBillingBoundaries(ctx, time.Now().UTC())
	})

	s.logger.Infow("scheduler started",
		"autopay_interval", s.cfg.Billing.AutoPayInterval,
		"boundary_interval", s.cfg.Billing.BoundarySweepInterval)
}

// Stop cancels the loops and waits for in-flight sweeps to finish.
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
		s.logger.Infow("scheduler stopped")
	})
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, run func(context.Context) error) {
	defer s.wg.Done()

	if interval <= 0 {
		s.logger.Warnw("sweep disabled", "sweep", name)
		return
	}

	s.runOnce(ctx, name, run)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, name, run)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, name string, run func(context.Context) error) {
	started := time.Now()

	// Sweeps are idempotent, so a failed run is retried with backoff a few
	// times before giving up until the next tick.
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	err := backoff.Retry(func() error {
		if err := run(ctx); err != nil {
			s.logger.Warnw("sweep attempt failed", "sweep", name, "error", err)
			return err
		}
		return nil
	}, bo)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Errorw("sweep failed", "sweep", name, "error", err)
		return
	}
	s.logger.Debugw("sweep completed", "sweep", name, "duration", time.Since(started))
}
