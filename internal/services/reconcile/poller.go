// Package reconcile drives pending external payments to a terminal state by
// polling the gateway. Schedules live in the database (next_poll_at), so a
// restart resumes exactly where the previous process stopped.
package reconcile

import (
	"context"
	"errors"
	"time"

	"tiketi/internal/models"
	"tiketi/internal/repositories"
	"tiketi/internal/services/gateway"
	"tiketi/internal/services/settlement"

	"github.com/sirupsen/logrus"
)

const (
	defaultTickInterval = 10 * time.Second
	defaultBatchSize    = 50
	// MaxPollAttempts bounds how often a single leg is polled before it is
	// abandoned as timed out.
	MaxPollAttempts = 12
)

// backoffSchedule spaces polls out as a leg ages. Indexed by attempt count,
// the last value repeats.
var backoffSchedule = []time.Duration{
	15 * time.Second,
	30 * time.Second,
	1 * time.Minute,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
}

// Config tunes the poller loop.
type Config struct {
	TickInterval time.Duration
	BatchSize    int
}

// Poller owns the reconciliation loop.
type Poller struct {
	payments repositories.PaymentRequestRepository
	gw       gateway.Service
	engine   settlement.Service
	cfg      Config
	log      *logrus.Logger
	now      func() time.Time
}

// NewPoller creates a poller.
func NewPoller(payments repositories.PaymentRequestRepository, gw gateway.Service, engine settlement.Service, cfg Config, log *logrus.Logger) *Poller {
	if payments == nil {
		panic("payments repository is required")
	}
	if gw == nil {
		panic("gateway is required")
	}
	if engine == nil {
		panic("settlement engine is required")
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if log == nil {
		log = logrus.New()
	}
	return &Poller{
		payments: payments,
		gw:       gw,
		engine:   engine,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// Start runs the loop until ctx is cancelled. In-flight legs are simply left
// pending; the next run picks them up from their stored schedule.
func (p *Poller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.TickInterval)
	defer ticker.Stop()

	p.log.WithField("interval", p.cfg.TickInterval).Info("settlement poller started")
	for {
		select {
		case <-ctx.Done():
			p.log.Info("settlement poller stopped")
			return
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil {
				p.log.WithError(err).Error("poll cycle failed")
			}
		}
	}
}

// RunOnce processes one batch of due legs.
func (p *Poller) RunOnce(ctx context.Context) error {
	due, err := p.payments.ListDue(p.now().UTC(), p.cfg.BatchSize)
	if err != nil {
		return err
	}

	for i := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.pollOne(ctx, &due[i])
	}
	return nil
}

func (p *Poller) pollOne(ctx context.Context, req *models.ExternalPaymentRequest) {
	log := p.log.WithFields(logrus.Fields{
		"external_id": req.ExternalID,
		"direction":   req.Direction,
		"attempt":     req.PollAttempts + 1,
	})

	ref := req.ProviderReference
	if ref == "" {
		// Submission never returned a provider id; the gateway deduplicates
		// on the external id, so query with that.
		ref = req.ExternalID
	}

	status, err := p.gw.GetStatus(ctx, ref)
	switch {
	case err == nil:
	case errors.Is(err, gateway.ErrUnknownReference):
		// The provider never saw this leg: the original submission was lost.
		// Treat as failed so held funds are released.
		if finErr := p.engine.FinalizeExternal(ctx, req.ExternalID, gateway.StatusFailed, "unknown at provider"); finErr != nil {
			log.WithError(finErr).Error("failed to finalize unknown leg")
		}
		return
	default:
		log.WithError(err).Warn("status poll failed")
		p.reschedule(req, log)
		return
	}

	switch status {
	case gateway.StatusSuccessful, gateway.StatusFailed:
		if err := p.engine.FinalizeExternal(ctx, req.ExternalID, status, string(status)); err != nil {
			log.WithError(err).Error("failed to finalize leg")
			p.reschedule(req, log)
			return
		}
		log.WithField("status", status).Info("leg reconciled")
	case gateway.StatusPending:
		p.reschedule(req, log)
	}
}

// reschedule bumps the attempt counter and either plans the next poll or
// abandons the leg as timed out.
func (p *Poller) reschedule(req *models.ExternalPaymentRequest, log *logrus.Entry) {
	req.PollAttempts++
	if req.PollAttempts >= MaxPollAttempts {
		if err := p.engine.MarkTimedOut(context.Background(), req.ExternalID); err != nil {
			log.WithError(err).Error("failed to mark leg timed out")
		}
		return
	}

	next := p.now().UTC().Add(backoffFor(req.PollAttempts))
	req.NextPollAt = &next
	if err := p.payments.Update(req); err != nil {
		log.WithError(err).Error("failed to reschedule leg")
	}
}

func backoffFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	idx := attempt - 1
	if idx >= len(backoffSchedule) {
		idx = len(backoffSchedule) - 1
	}
	return backoffSchedule[idx]
}
