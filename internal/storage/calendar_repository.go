package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/barberos/barberos/internal/calendar"
	"github.com/barberos/barberos/internal/model"
	"github.com/barberos/barberos/libs/db"
)

// CalendarLinkRepository persists per-tenant calendar provider credentials
// and tokens. One row per tenant, upserted in place.
type CalendarLinkRepository struct {
	pool *db.Pool
}

func NewCalendarLinkRepository(pool *db.Pool) *CalendarLinkRepository {
	return &CalendarLinkRepository{pool: pool}
}

func (r *CalendarLinkRepository) GetLink(ctx context.Context, tenantID string) (model.CalendarLink, bool, error) {
	var link model.CalendarLink
	var expiresAt *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT tenant_id::text, client_id, api_key, COALESCE(access_token, ''), token_expires_at, created_at, updated_at
		FROM calendar_links
		WHERE tenant_id = $1
	`, tenantID).Scan(&link.TenantID, &link.ClientID, &link.APIKey, &link.AccessToken, &expiresAt, &link.CreatedAt, &link.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CalendarLink{}, false, nil
	}
	if err != nil {
		return model.CalendarLink{}, false, err
	}
	if expiresAt != nil {
		link.TokenExpiresAt = *expiresAt
	}
	return link, true, nil
}

// SaveConfig replaces the tenant's provider credentials. Changing
// credentials invalidates any consent granted under the old ones, so the
// stored token is dropped in the same statement.
func (r *CalendarLinkRepository) SaveConfig(ctx context.Context, tenantID, clientID, apiKey string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO calendar_links (tenant_id, client_id, api_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id) DO UPDATE
		SET client_id = EXCLUDED.client_id,
		    api_key = EXCLUDED.api_key,
		    access_token = NULL,
		    token_expires_at = NULL,
		    updated_at = now()
	`, tenantID, clientID, apiKey)
	return err
}

func (r *CalendarLinkRepository) SaveToken(ctx context.Context, tenantID, accessToken string, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE calendar_links
		SET access_token = $2, token_expires_at = $3, updated_at = now()
		WHERE tenant_id = $1
	`, tenantID, accessToken, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (r *CalendarLinkRepository) ClearToken(ctx context.Context, tenantID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE calendar_links
		SET access_token = NULL, token_expires_at = NULL, updated_at = now()
		WHERE tenant_id = $1
	`, tenantID)
	return err
}

func (r *CalendarLinkRepository) DeleteLink(ctx context.Context, tenantID string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM calendar_links
		WHERE tenant_id = $1
	`, tenantID)
	return err
}

var _ calendar.LinkStore = (*CalendarLinkRepository)(nil)
