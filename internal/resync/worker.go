// Package resync retries calendar projections that failed at booking time.
// The booking path never blocks on the provider; anything it could not push
// lands here as sync-pending and is drained in the background.
package resync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/barberos/barberos/internal/availability"
	"github.com/barberos/barberos/internal/calendar"
	"github.com/barberos/barberos/internal/model"
)

// Outcome is the result of one retried projection.
type Outcome struct {
	Appointment     model.Appointment
	ExternalEventID string
	Err             error
}

// Store claims pending rows and records push results. Both calls are short
// transactions; the worker keeps no transaction open while it talks to the
// provider, so appointment rows are never locked across an external call.
type Store interface {
	ClaimSyncPending(ctx context.Context, limit, maxAttempts int) ([]model.Appointment, error)
	RecordSyncOutcomes(ctx context.Context, maxAttempts int, outcomes []Outcome) error
}

// Pusher is the slice of the calendar adapter the worker uses.
type Pusher interface {
	PushCreate(ctx context.Context, appt model.Appointment, summary, description string) (string, error)
	PushUpdate(ctx context.Context, tenantID, eventID string, interval availability.Interval) error
}

type Worker struct {
	store       Store
	pusher      Pusher
	logger      *slog.Logger
	interval    time.Duration
	batchSize   int
	maxAttempts int
}

func NewWorker(store Store, pusher Pusher, logger *slog.Logger, interval time.Duration, batchSize, maxAttempts int) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 20
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Worker{
		store:       store,
		pusher:      pusher,
		logger:      logger,
		interval:    interval,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
	}
}

// Run drains pending projections until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Error("calendar resync pass failed", "err", err)
			}
		}
	}
}

// RunOnce processes batches until the pending backlog for this tick is
// drained or the context is cancelled. Each batch is claim, push, record:
// the claim commits before any provider call starts.
func (w *Worker) RunOnce(ctx context.Context) error {
	for {
		batch, err := w.store.ClaimSyncPending(ctx, w.batchSize, w.maxAttempts)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		outcomes := make([]Outcome, 0, len(batch))
		for _, appt := range batch {
			eventID, pushErr := w.push(ctx, appt)
			outcomes = append(outcomes, Outcome{Appointment: appt, ExternalEventID: eventID, Err: pushErr})
		}
		if err := w.store.RecordSyncOutcomes(ctx, w.maxAttempts, outcomes); err != nil {
			return err
		}
		w.logger.Info("calendar resync batch processed", "count", len(batch))

		if len(batch) < w.batchSize {
			return nil
		}
	}
}

// push replays one projection. Appointments that already carry a provider
// event id get an update; the rest are created fresh.
func (w *Worker) push(ctx context.Context, appt model.Appointment) (string, error) {
	if appt.ExternalEventID != "" {
		err := w.pusher.PushUpdate(ctx, appt.TenantID, appt.ExternalEventID, appt.Interval)
		if errors.Is(err, calendar.ErrEventNotFound) {
			return w.pusher.PushCreate(ctx, appt, "Appointment", "barberos appointment "+appt.ID)
		}
		if err != nil {
			return "", err
		}
		return appt.ExternalEventID, nil
	}
	return w.pusher.PushCreate(ctx, appt, "Appointment", "barberos appointment "+appt.ID)
}
