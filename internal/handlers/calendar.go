package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/barberos/barberos/internal/calendar"
)

// CalendarHandler manages a tenant's external calendar link. Unlike the
// booking flows, failures here surface as real HTTP errors: the caller is
// explicitly operating on the integration and wants to know what broke.
type CalendarHandler struct {
	adapter *calendar.Adapter
	logger  *slog.Logger
}

func NewCalendarHandler(adapter *calendar.Adapter, logger *slog.Logger) *CalendarHandler {
	return &CalendarHandler{adapter: adapter, logger: logger}
}

type calendarStatusResponse struct {
	Configured bool `json:"configured"`
	Connected  bool `json:"connected"`
}

type calendarConfigRequest struct {
	ClientID string `json:"client_id"`
	APIKey   string `json:"api_key"`
}

type calendarConnectRequest struct {
	AuthCode string `json:"auth_code"`
}

func (h *CalendarHandler) Status(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	_, err := h.adapter.EnsureSession(r.Context(), claims.TenantID)
	var resp calendarStatusResponse
	switch {
	case err == nil:
		resp = calendarStatusResponse{Configured: true, Connected: true}
	case errors.Is(err, calendar.ErrNotConfigured):
		resp = calendarStatusResponse{Configured: false, Connected: false}
	case calendar.IsNotConnected(err):
		resp = calendarStatusResponse{Configured: true, Connected: false}
	default:
		h.logger.Error("calendar status check failed", "tenant_id", claims.TenantID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to check calendar status")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CalendarHandler) Configure(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req calendarConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.ClientID = strings.TrimSpace(req.ClientID)
	req.APIKey = strings.TrimSpace(req.APIKey)
	if req.ClientID == "" || req.APIKey == "" {
		writeError(w, http.StatusBadRequest, "client_id and api_key are required")
		return
	}

	if err := h.adapter.Configure(r.Context(), claims.TenantID, req.ClientID, req.APIKey); err != nil {
		h.logger.Error("failed to store calendar config", "tenant_id", claims.TenantID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to store calendar config")
		return
	}
	writeJSON(w, http.StatusOK, calendarStatusResponse{Configured: true, Connected: false})
}

// Connect completes the consent flow with the authorization code obtained by
// the tenant in the provider's interactive step.
func (h *CalendarHandler) Connect(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req calendarConnectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.AuthCode = strings.TrimSpace(req.AuthCode)
	if req.AuthCode == "" {
		writeError(w, http.StatusBadRequest, "auth_code is required")
		return
	}

	if err := h.adapter.Connect(r.Context(), claims.TenantID, req.AuthCode); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, calendarStatusResponse{Configured: true, Connected: true})
}

func (h *CalendarHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	if err := h.adapter.Disconnect(r.Context(), claims.TenantID); err != nil {
		h.logger.Error("failed to disconnect calendar", "tenant_id", claims.TenantID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to disconnect calendar")
		return
	}
	writeJSON(w, http.StatusOK, calendarStatusResponse{Configured: false, Connected: false})
}
