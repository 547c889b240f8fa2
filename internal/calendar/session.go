package calendar

import (
	"time"
)

type SessionState string

const (
	SessionUninitialized SessionState = "uninitialized"
	SessionInitializing  SessionState = "initializing"
	SessionReady         SessionState = "ready"
	SessionExpired       SessionState = "expired"
)

// Session is one tenant's live authorization against the provider, built
// fresh from the persisted CalendarLink on each use. It replaces the ambient
// "is the SDK loaded" process-wide flags a browser client would keep: the
// lifecycle is explicit and the session travels by reference to whoever
// needs it.
type Session struct {
	TenantID    string
	State       SessionState
	AccessToken string
	ExpiresAt   time.Time
}

func (s *Session) Usable() bool {
	return s != nil && s.State == SessionReady && s.AccessToken != ""
}

func (s *Session) markExpired() {
	s.State = SessionExpired
	s.AccessToken = ""
}
