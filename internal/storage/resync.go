package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/barberos/barberos/internal/model"
	"github.com/barberos/barberos/internal/outbox"
	"github.com/barberos/barberos/internal/resync"
)

// ClaimSyncPending locks up to limit committed appointments whose calendar
// projection is still pending, bumps their attempt counter, and commits
// before returning. Row locks are held only for the claim itself; the
// caller performs the provider pushes with no transaction open, so a slow
// provider can never stall a staff mutation waiting on the same rows.
// Rows are taken FOR UPDATE SKIP LOCKED so concurrent workers never fight
// over a batch, and bumping attempts at claim time means a worker crash
// mid-push still consumes an attempt instead of retrying the row forever.
func (r *AppointmentRepository) ClaimSyncPending(ctx context.Context, limit, maxAttempts int) ([]model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE sync_state = 'pending'
		  AND status IN ('confirmed', 'waiting', 'in_progress')
		  AND sync_attempts < $1
		ORDER BY created_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, maxAttempts, limit)
	if err != nil {
		return nil, err
	}

	var batch []model.Appointment
	var ids []string
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		batch = append(batch, appt)
		ids = append(ids, appt.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return nil, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE appointments
		SET sync_attempts = sync_attempts + 1
		WHERE id = ANY($1)
	`, ids); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return batch, nil
}

// RecordSyncOutcomes writes the push results of a claimed batch in one
// short transaction. A row whose attempt budget is spent is parked as
// sync_failed and a warning event is queued to the outbox alongside it.
func (r *AppointmentRepository) RecordSyncOutcomes(ctx context.Context, maxAttempts int, outcomes []resync.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, oc := range outcomes {
		if oc.Err == nil {
			if _, err := tx.Exec(ctx, `
				UPDATE appointments
				SET external_event_id = $2, sync_state = 'synced', sync_attempts = 0
				WHERE id = $1
			`, oc.Appointment.ID, oc.ExternalEventID); err != nil {
				return err
			}
			continue
		}

		var state string
		err := tx.QueryRow(ctx, `
			UPDATE appointments
			SET sync_state = CASE WHEN sync_attempts >= $2 THEN 'failed' ELSE 'pending' END
			WHERE id = $1 AND sync_state = 'pending'
			RETURNING sync_state
		`, oc.Appointment.ID, maxAttempts).Scan(&state)
		if err != nil {
			// The row may have been resolved by another path (for example a
			// reschedule that synced it) between claim and record.
			if mapped := mapError(err); mapped == model.ErrNotFound {
				continue
			}
			return err
		}
		if state != string(model.SyncFailed) {
			continue
		}

		payload, _ := json.Marshal(map[string]any{
			"tenant_id":      oc.Appointment.TenantID,
			"appointment_id": oc.Appointment.ID,
			"error":          oc.Err.Error(),
			"gave_up_at":     time.Now().UTC().Format(time.RFC3339),
		})
		if err := r.outbox.Insert(ctx, tx, outbox.Event{
			AggregateType: "appointment",
			AggregateID:   oc.Appointment.ID,
			EventType:     outbox.EventCalendarSyncWarning,
			Payload:       payload,
		}); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}
