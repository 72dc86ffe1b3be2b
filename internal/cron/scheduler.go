package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"mukando/internal/config"
	"mukando/internal/models"
	"mukando/internal/service"
)

// Scheduler runs the background jobs that keep payment records converging
// when confirmation channels go quiet: a sweep that re-polls stale pending
// payments (webhook-loss recovery) and an expiry pass that fails attempts
// nobody ever completed.
type Scheduler struct {
	cron   *cron.Cron
	cfg    *config.Config
	svc    *service.PaymentService
	store  service.PaymentStore
	logger *zap.Logger
}

// New creates a new cron scheduler.
func New(cfg *config.Config, svc *service.PaymentService, store service.PaymentStore, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		cfg:    cfg,
		svc:    svc,
		store:  store,
		logger: logger,
	}
}

// Start registers and starts all cron jobs.
func (s *Scheduler) Start() {
	s.logger.Info("Starting cron scheduler...")

	// Re-poll stale pending payments - every minute
	s.cron.AddFunc("0 * * * * *", func() {
		s.logger.Debug("Running: pending payment sweep")
		s.sweepPending()
	})

	// Expire abandoned pending payments - every hour
	s.cron.AddFunc("0 0 * * * *", func() {
		s.logger.Debug("Running: payment expiry")
		s.expirePending()
	})

	s.cron.Start()
}

// Stop stops the scheduler and returns a context that is done when all
// running jobs have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// sweepPending polls the gateway for pending payments old enough that a
// webhook should already have arrived. GetStatus funnels any result through
// the reconciler, so the sweep can never produce a different outcome than
// the webhook path would have.
func (s *Scheduler) sweepPending() {
	cutoff := time.Now().Add(-s.cfg.Payment.SweepGrace)
	payments, err := s.store.FindStalePending(cutoff, 50)
	if err != nil {
		s.logger.Error("Pending sweep query failed", zap.Error(err))
		return
	}

	for i := range payments {
		p := &payments[i]
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		updated, err := s.svc.GetStatus(ctx, p.ID)
		cancel()
		if err != nil {
			s.logger.Warn("Sweep poll failed",
				zap.String("payment_id", p.ID),
				zap.String("reference", p.Reference),
				zap.Error(err))
			continue
		}
		if updated.Status.Terminal() {
			s.logger.Info("Sweep resolved payment",
				zap.String("payment_id", p.ID),
				zap.String("reference", p.Reference),
				zap.String("status", string(updated.Status)))
		}
	}
}

// expirePending fails pending payments older than the expiry window through
// the reconciler. A late webhook for an expired payment is then an
// idempotent no-op against a terminal record.
func (s *Scheduler) expirePending() {
	cutoff := time.Now().Add(-s.cfg.Payment.ExpiryWindow)
	payments, err := s.store.FindPendingBefore(cutoff, 200)
	if err != nil {
		s.logger.Error("Payment expiry query failed", zap.Error(err))
		return
	}

	for i := range payments {
		p := &payments[i]
		_, err := s.svc.Reconciler().Apply(p.ID, service.Observation{
			Status:        models.StatusFailed,
			FailureReason: "expired: no confirmation within expiry window",
		})
		if err != nil {
			s.logger.Warn("Payment expiry failed",
				zap.String("payment_id", p.ID),
				zap.Error(err))
			continue
		}
		s.logger.Info("Expired pending payment",
			zap.String("payment_id", p.ID),
			zap.String("reference", p.Reference))
	}
}
