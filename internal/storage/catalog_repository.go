package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/barberos/barberos/internal/model"
	"github.com/barberos/barberos/libs/db"
)

// CatalogRepository reads the tenant catalog: services, professionals,
// customers and working hours. All lookups are tenant scoped.
type CatalogRepository struct {
	pool *db.Pool
}

func NewCatalogRepository(pool *db.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) GetService(ctx context.Context, tenantID, id string) (model.Service, error) {
	var svc model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, tenant_id::text, name, duration_minutes, buffer_minutes, price_cents, active
		FROM services
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID).Scan(&svc.ID, &svc.TenantID, &svc.Name, &svc.DurationMinutes, &svc.BufferMinutes, &svc.PriceCents, &svc.Active)
	if err != nil {
		return model.Service{}, mapError(err)
	}
	return svc, nil
}

func (r *CatalogRepository) ListServices(ctx context.Context, tenantID string) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, tenant_id::text, name, duration_minutes, buffer_minutes, price_cents, active
		FROM services
		WHERE tenant_id = $1 AND active
		ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []model.Service
	for rows.Next() {
		var svc model.Service
		if err := rows.Scan(&svc.ID, &svc.TenantID, &svc.Name, &svc.DurationMinutes, &svc.BufferMinutes, &svc.PriceCents, &svc.Active); err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

func (r *CatalogRepository) GetProfessional(ctx context.Context, tenantID, id string) (model.Professional, error) {
	var pro model.Professional
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, tenant_id::text, name, active
		FROM professionals
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID).Scan(&pro.ID, &pro.TenantID, &pro.Name, &pro.Active)
	if err != nil {
		return model.Professional{}, mapError(err)
	}
	return pro, nil
}

func (r *CatalogRepository) ListProfessionals(ctx context.Context, tenantID string) ([]model.Professional, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, tenant_id::text, name, active
		FROM professionals
		WHERE tenant_id = $1 AND active
		ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pros []model.Professional
	for rows.Next() {
		var pro model.Professional
		if err := rows.Scan(&pro.ID, &pro.TenantID, &pro.Name, &pro.Active); err != nil {
			return nil, err
		}
		pros = append(pros, pro)
	}
	return pros, rows.Err()
}

// FindOrCreateCustomer resolves a walk-in customer by phone, creating the
// record on first contact. Used by the public booking flow where callers
// identify themselves by name and phone rather than by id.
func (r *CatalogRepository) FindOrCreateCustomer(ctx context.Context, tenantID, name, phone string) (model.Customer, error) {
	var cust model.Customer
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, tenant_id::text, name, phone
		FROM customers
		WHERE tenant_id = $1 AND phone = $2
	`, tenantID, phone).Scan(&cust.ID, &cust.TenantID, &cust.Name, &cust.Phone)
	if err == nil {
		return cust, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Customer{}, err
	}

	cust = model.Customer{ID: uuid.NewString(), TenantID: tenantID, Name: name, Phone: phone}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO customers (id, tenant_id, name, phone)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, phone) DO NOTHING
	`, cust.ID, cust.TenantID, cust.Name, cust.Phone)
	if err != nil {
		return model.Customer{}, err
	}
	// Another request may have won the insert race; re-read to get the
	// canonical row either way.
	err = r.pool.QueryRow(ctx, `
		SELECT id::text, tenant_id::text, name, phone
		FROM customers
		WHERE tenant_id = $1 AND phone = $2
	`, tenantID, phone).Scan(&cust.ID, &cust.TenantID, &cust.Name, &cust.Phone)
	if err != nil {
		return model.Customer{}, mapError(err)
	}
	return cust, nil
}

// WorkingWindow returns the opening hours for a weekday, or ok=false when
// the shop is closed that day. The caller anchors the clock strings to a
// concrete date in the tenant's location.
func (r *CatalogRepository) WorkingWindow(ctx context.Context, tenantID string, weekday time.Weekday) (model.WorkingHours, bool, error) {
	var wh model.WorkingHours
	var day int
	err := r.pool.QueryRow(ctx, `
		SELECT tenant_id::text, weekday, opens_at, closes_at
		FROM working_hours
		WHERE tenant_id = $1 AND weekday = $2
	`, tenantID, int(weekday)).Scan(&wh.TenantID, &day, &wh.OpensAt, &wh.ClosesAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.WorkingHours{}, false, nil
	}
	if err != nil {
		return model.WorkingHours{}, false, err
	}
	wh.Weekday = time.Weekday(day)
	return wh, true, nil
}
