package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Event is the provider-side representation of a calendar entry.
type Event struct {
	ID          string    `json:"id,omitempty"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// Token is the provider's token-exchange response.
type Token struct {
	AccessToken      string `json:"access_token"`
	ExpiresInSeconds int64  `json:"expires_in"`
}

// Client talks to the third-party calendar provider's REST API. It knows
// nothing about tenants or persistence; the Adapter layers that on.
type Client struct {
	baseURL  string
	tokenURL string
	http     *http.Client
}

func NewClient(baseURL, tokenURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:  baseURL,
		tokenURL: tokenURL,
		http:     &http.Client{Timeout: timeout},
	}
}

// Exchange trades a consent-flow authorization code for an access token.
func (c *Client) Exchange(ctx context.Context, clientID, apiKey, authCode string) (Token, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", clientID)
	form.Set("code", authCode)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return Token{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Api-Key", apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return Token{}, unavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return Token{}, ErrAuthRequired
	}
	if resp.StatusCode >= 500 {
		return Token{}, fmt.Errorf("%w: token endpoint status %d", ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return Token{}, fmt.Errorf("%w: token endpoint status %d", ErrProviderError, resp.StatusCode)
	}

	var tok Token
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return Token{}, fmt.Errorf("%w: invalid token response: %v", ErrProviderError, err)
	}
	if tok.AccessToken == "" {
		return Token{}, fmt.Errorf("%w: empty access token", ErrProviderError)
	}
	return tok, nil
}

func (c *Client) ListEvents(ctx context.Context, accessToken string, from, to time.Time) ([]Event, error) {
	q := url.Values{}
	q.Set("timeMin", from.UTC().Format(time.RFC3339))
	q.Set("timeMax", to.UTC().Format(time.RFC3339))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")

	var out struct {
		Items []Event `json:"items"`
	}
	if err := c.do(ctx, accessToken, http.MethodGet, "/calendars/primary/events?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) InsertEvent(ctx context.Context, accessToken string, ev Event) (string, error) {
	var out Event
	if err := c.do(ctx, accessToken, http.MethodPost, "/calendars/primary/events", ev, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: insert returned no event id", ErrProviderError)
	}
	return out.ID, nil
}

func (c *Client) UpdateEvent(ctx context.Context, accessToken, eventID string, start, end time.Time) error {
	body := map[string]any{
		"start": start.UTC().Format(time.RFC3339),
		"end":   end.UTC().Format(time.RFC3339),
	}
	return c.do(ctx, accessToken, http.MethodPatch, "/calendars/primary/events/"+url.PathEscape(eventID), body, nil)
}

func (c *Client) DeleteEvent(ctx context.Context, accessToken, eventID string) error {
	return c.do(ctx, accessToken, http.MethodDelete, "/calendars/primary/events/"+url.PathEscape(eventID), nil, nil)
}

func (c *Client) do(ctx context.Context, accessToken, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return unavailable(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrSessionExpired
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrEventNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: status %d", ErrProviderError, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: invalid response body: %v", ErrProviderError, err)
		}
	}
	return nil
}

// unavailable folds transport failures and timeouts into one category; the
// caller's policy is identical for both (degrade, no inline retry).
func unavailable(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}
