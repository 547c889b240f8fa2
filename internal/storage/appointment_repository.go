package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/barberos/barberos/internal/availability"
	"github.com/barberos/barberos/internal/booking"
	"github.com/barberos/barberos/internal/model"
	"github.com/barberos/barberos/internal/outbox"
	"github.com/barberos/barberos/libs/db"
)

// AppointmentRepository implements booking.Store on Postgres.
//
// The no-double-booking invariant is enforced by a partial GiST exclusion
// constraint on (professional_id, tstzrange(start_time, end_time)) limited
// to committed statuses, so the conflict check and the write are one atomic
// unit regardless of which process performs them. Entering the committed set
// (insert, approval, reschedule) re-fires the constraint.
type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, outboxRepo *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: outboxRepo}
}

const apptColumns = `
	id::text, tenant_id::text, customer_id::text, professional_id::text, service_id::text,
	start_time, end_time, status, COALESCE(external_event_id, ''), sync_state, COALESCE(notes, ''), created_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status, syncState string
	err := row.Scan(
		&a.ID,
		&a.TenantID,
		&a.CustomerID,
		&a.ProfessionalID,
		&a.ServiceID,
		&a.Interval.Start,
		&a.Interval.End,
		&status,
		&a.ExternalEventID,
		&syncState,
		&a.Notes,
		&a.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Status = model.AppointmentStatus(status)
	a.SyncState = model.SyncState(syncState)
	return a, nil
}

func (r *AppointmentRepository) GetAppointment(ctx context.Context, tenantID, id string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	appt, err := scanAppointment(row)
	if err != nil {
		return model.Appointment{}, mapError(err)
	}
	return appt, nil
}

func (r *AppointmentRepository) CreateAppointment(ctx context.Context, appt *model.Appointment, evt outbox.Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, tenant_id, customer_id, professional_id, service_id, start_time, end_time, status, sync_state, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`, appt.ID, appt.TenantID, appt.CustomerID, appt.ProfessionalID, appt.ServiceID,
		appt.Interval.Start, appt.Interval.End, string(appt.Status), string(appt.SyncState), appt.Notes,
	).Scan(&appt.CreatedAt)
	if err != nil {
		return mapError(err)
	}

	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *AppointmentRepository) RescheduleAppointment(ctx context.Context, tenantID, id string, interval availability.Interval, professionalID, serviceID string, evt booking.EventBuilder) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := r.lockAppointment(ctx, tx, tenantID, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !current.Reschedulable() {
		return model.Appointment{}, model.ErrInvalidTransition
	}

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET start_time = $3, end_time = $4, professional_id = $5, service_id = $6
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+apptColumns+`
	`, id, tenantID, interval.Start, interval.End, professionalID, serviceID)
	updated, err := scanAppointment(row)
	if err != nil {
		return model.Appointment{}, mapError(err)
	}

	if err := r.outbox.Insert(ctx, tx, evt(updated)); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, mapError(err)
	}
	return updated, nil
}

func (r *AppointmentRepository) TransitionAppointment(ctx context.Context, tenantID, id string, next model.AppointmentStatus, evt booking.EventBuilder) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := r.lockAppointment(ctx, tx, tenantID, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !model.CanTransition(current.Status, next) {
		return model.Appointment{}, model.ErrInvalidTransition
	}

	// Approval moves the row into the committed set; the exclusion
	// constraint re-validates overlap right here.
	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+apptColumns+`
	`, id, tenantID, string(next))
	updated, err := scanAppointment(row)
	if err != nil {
		return model.Appointment{}, mapError(err)
	}

	if err := r.outbox.Insert(ctx, tx, evt(updated)); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, mapError(err)
	}
	return updated, nil
}

func (r *AppointmentRepository) SetSyncResult(ctx context.Context, tenantID, id, externalEventID string, state model.SyncState) error {
	var tag pgconn.CommandTag
	var err error
	if externalEventID != "" {
		tag, err = r.pool.Exec(ctx, `
			UPDATE appointments
			SET external_event_id = $3, sync_state = $4
			WHERE id = $1 AND tenant_id = $2
		`, id, tenantID, externalEventID, string(state))
	} else {
		tag, err = r.pool.Exec(ctx, `
			UPDATE appointments
			SET sync_state = $3
			WHERE id = $1 AND tenant_id = $2
		`, id, tenantID, string(state))
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// CommittedIntervals returns the effective occupied intervals (buffers
// already baked into end_time) of committed appointments for a professional
// in [from, to). Feeds the availability resolver.
func (r *AppointmentRepository) CommittedIntervals(ctx context.Context, tenantID, professionalID string, from, to time.Time) ([]availability.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM appointments
		WHERE tenant_id = $1
		  AND professional_id = $2
		  AND status IN ('confirmed', 'waiting', 'in_progress')
		  AND start_time < $4
		  AND end_time > $3
		ORDER BY start_time
	`, tenantID, professionalID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intervals []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}
	return intervals, rows.Err()
}

// ListByDay returns a tenant's appointments overlapping [from, to),
// optionally restricted to one professional.
func (r *AppointmentRepository) ListByDay(ctx context.Context, tenantID, professionalID string, from, to time.Time) ([]model.Appointment, error) {
	query := `
		SELECT ` + apptColumns + `
		FROM appointments
		WHERE tenant_id = $1
		  AND start_time < $3
		  AND end_time > $2`
	args := []any{tenantID, from, to}
	if professionalID != "" {
		query += ` AND professional_id = $4`
		args = append(args, professionalID)
	}
	query += ` ORDER BY start_time`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	return appts, rows.Err()
}

func (r *AppointmentRepository) lockAppointment(ctx context.Context, tx pgx.Tx, tenantID, id string) (model.Appointment, error) {
	row := tx.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE id = $1 AND tenant_id = $2
		FOR UPDATE
	`, id, tenantID)
	appt, err := scanAppointment(row)
	if err != nil {
		return model.Appointment{}, mapError(err)
	}
	return appt, nil
}

// mapError folds driver errors into the domain taxonomy. 23P01 is an
// exclusion constraint violation: the conditional write lost the race.
func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23P01" {
		return model.ErrSlotConflict
	}
	return err
}

var _ booking.Store = (*Repository)(nil)
