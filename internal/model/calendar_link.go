package model

import "time"

// CalendarLink is a tenant's connection to the external calendar provider.
// ClientID and APIKey come from tenant settings; there is no platform-wide
// default. AccessToken is the OAuth user-consent token, cleared whenever the
// provider rejects it so the tenant is forced through the consent flow again.
type CalendarLink struct {
	TenantID       string
	ClientID       string
	APIKey         string
	AccessToken    string
	TokenExpiresAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (l CalendarLink) Configured() bool {
	return l.ClientID != "" && l.APIKey != ""
}

// TokenValid reports whether the stored token is usable at t. A small skew
// margin avoids handing out a token that expires mid-request.
func (l CalendarLink) TokenValid(t time.Time) bool {
	return l.AccessToken != "" && t.Add(30*time.Second).Before(l.TokenExpiresAt)
}
