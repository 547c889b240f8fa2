package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/barberos/barberos/internal/availability"
	"github.com/barberos/barberos/internal/model"
)

// LinkStore persists per-tenant CalendarLinks. Implemented by
// storage.CalendarRepository.
type LinkStore interface {
	GetLink(ctx context.Context, tenantID string) (model.CalendarLink, bool, error)
	SaveConfig(ctx context.Context, tenantID, clientID, apiKey string) error
	SaveToken(ctx context.Context, tenantID, accessToken string, expiresAt time.Time) error
	ClearToken(ctx context.Context, tenantID string) error
	DeleteLink(ctx context.Context, tenantID string) error
}

// Adapter owns the CalendarLink lifecycle and translates appointment events
// into provider calls. Every operation is best-effort relative to the
// booking transaction; callers degrade on failure instead of rolling back.
type Adapter struct {
	links   LinkStore
	client  *Client
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewAdapter(links LinkStore, client *Client, logger *slog.Logger, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Adapter{
		links:   links,
		client:  client,
		logger:  logger,
		timeout: timeout,
		now:     time.Now,
	}
}

// EnsureSession loads the tenant's link and validates it is usable.
// No configuration at all is ErrNotConfigured; configured but without a live
// token is ErrAuthRequired. An expired stored token is cleared here rather
// than sent to the provider just to be bounced.
func (a *Adapter) EnsureSession(ctx context.Context, tenantID string) (*Session, error) {
	sess := &Session{TenantID: tenantID, State: SessionInitializing}

	link, ok, err := a.links.GetLink(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !ok || !link.Configured() {
		sess.State = SessionUninitialized
		return sess, ErrNotConfigured
	}
	if link.AccessToken == "" {
		sess.State = SessionUninitialized
		return sess, ErrAuthRequired
	}
	if !link.TokenValid(a.now()) {
		sess.markExpired()
		if err := a.links.ClearToken(ctx, tenantID); err != nil {
			a.logger.Warn("failed to clear expired calendar token", "tenant_id", tenantID, "err", err)
		}
		return sess, ErrAuthRequired
	}

	sess.State = SessionReady
	sess.AccessToken = link.AccessToken
	sess.ExpiresAt = link.TokenExpiresAt
	return sess, nil
}

// Connected reports whether the tenant has calendar sync enabled, without
// side effects on the stored link. A configured link with an expired token
// still counts: the push must be attempted so its auth failure surfaces as
// a warning and marks the appointment for resync, instead of the projection
// being skipped silently.
func (a *Adapter) Connected(ctx context.Context, tenantID string) bool {
	link, ok, err := a.links.GetLink(ctx, tenantID)
	if err != nil || !ok {
		return false
	}
	return link.Configured()
}

// Configure stores tenant-level provider credentials.
func (a *Adapter) Configure(ctx context.Context, tenantID, clientID, apiKey string) error {
	if clientID == "" || apiKey == "" {
		return fmt.Errorf("%w: client id and api key are required", ErrNotConfigured)
	}
	return a.links.SaveConfig(ctx, tenantID, clientID, apiKey)
}

// Connect completes the consent flow: it exchanges the authorization code
// produced by the user-interactive step for an access token and persists it.
func (a *Adapter) Connect(ctx context.Context, tenantID, authCode string) error {
	link, ok, err := a.links.GetLink(ctx, tenantID)
	if err != nil {
		return err
	}
	if !ok || !link.Configured() {
		return ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	tok, err := a.client.Exchange(ctx, link.ClientID, link.APIKey, authCode)
	if err != nil {
		return err
	}
	expiresAt := a.now().Add(time.Duration(tok.ExpiresInSeconds) * time.Second)
	return a.links.SaveToken(ctx, tenantID, tok.AccessToken, expiresAt)
}

// Disconnect destroys the link; the tenant must redo configuration plus
// consent to reconnect.
func (a *Adapter) Disconnect(ctx context.Context, tenantID string) error {
	return a.links.DeleteLink(ctx, tenantID)
}

// ListBusyBlocks returns the provider-reported occupied intervals in
// [from, to). These feed the availability resolver as advisory busy time.
func (a *Adapter) ListBusyBlocks(ctx context.Context, tenantID string, from, to time.Time) ([]availability.Interval, error) {
	sess, err := a.EnsureSession(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	events, err := a.client.ListEvents(ctx, sess.AccessToken, from, to)
	if err != nil {
		return nil, a.mapSessionError(ctx, sess, err)
	}

	blocks := make([]availability.Interval, 0, len(events))
	for _, ev := range events {
		iv := availability.Interval{Start: ev.Start, End: ev.End}
		if iv.IsValid() {
			blocks = append(blocks, iv)
		}
	}
	return blocks, nil
}

// PushCreate mirrors a committed appointment into the external calendar and
// returns the provider's event id.
func (a *Adapter) PushCreate(ctx context.Context, appt model.Appointment, summary, description string) (string, error) {
	sess, err := a.EnsureSession(ctx, appt.TenantID)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	id, err := a.client.InsertEvent(ctx, sess.AccessToken, Event{
		Summary:     summary,
		Description: description,
		Start:       appt.Interval.Start,
		End:         appt.Interval.End,
	})
	if err != nil {
		return "", a.mapSessionError(ctx, sess, err)
	}
	return id, nil
}

func (a *Adapter) PushUpdate(ctx context.Context, tenantID, eventID string, interval availability.Interval) error {
	sess, err := a.EnsureSession(ctx, tenantID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.client.UpdateEvent(ctx, sess.AccessToken, eventID, interval.Start, interval.End); err != nil {
		return a.mapSessionError(ctx, sess, err)
	}
	return nil
}

// PushDelete removes the mirrored event. A missing event is absorbed: the
// external system owns that object's lifecycle and may have dropped it.
func (a *Adapter) PushDelete(ctx context.Context, tenantID, eventID string) error {
	sess, err := a.EnsureSession(ctx, tenantID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	err = a.client.DeleteEvent(ctx, sess.AccessToken, eventID)
	if errors.Is(err, ErrEventNotFound) {
		a.logger.Debug("calendar event already gone", "tenant_id", tenantID, "event_id", eventID)
		return nil
	}
	if err != nil {
		return a.mapSessionError(ctx, sess, err)
	}
	return nil
}

// mapSessionError clears the stored token on a provider 401 so the next
// attempt reports ErrAuthRequired instead of retrying a dead token forever.
func (a *Adapter) mapSessionError(ctx context.Context, sess *Session, err error) error {
	if errors.Is(err, ErrSessionExpired) {
		sess.markExpired()
		if clearErr := a.links.ClearToken(ctx, sess.TenantID); clearErr != nil {
			a.logger.Warn("failed to clear rejected calendar token", "tenant_id", sess.TenantID, "err", clearErr)
		}
	}
	return err
}
