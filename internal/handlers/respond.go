package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/barberos/barberos/internal/booking"
	"github.com/barberos/barberos/internal/calendar"
	"github.com/barberos/barberos/internal/model"
)

type warningItem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError maps the domain error taxonomy to HTTP statuses.
// Calendar errors never reach here from booking flows (those degrade to
// warnings); they only surface from the explicit calendar endpoints.
func writeDomainError(w http.ResponseWriter, err error) {
	var verr *model.ValidationError
	switch {
	case errors.Is(err, model.ErrSlotConflict):
		writeError(w, http.StatusConflict, "time slot already booked")
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, model.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "status change not allowed from current state")
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, calendar.ErrNotConfigured):
		writeError(w, http.StatusPreconditionFailed, "calendar integration is not configured")
	case errors.Is(err, calendar.ErrAuthRequired), errors.Is(err, calendar.ErrSessionExpired):
		writeError(w, http.StatusUnauthorized, "calendar authorization required")
	case errors.Is(err, calendar.ErrProviderUnavailable):
		writeError(w, http.StatusBadGateway, "calendar provider unavailable")
	case errors.Is(err, calendar.ErrProviderError):
		writeError(w, http.StatusBadGateway, "calendar provider rejected the request")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func warningItems(warnings []booking.Warning) []warningItem {
	items := make([]warningItem, 0, len(warnings))
	for _, warning := range warnings {
		items = append(items, warningItem{Code: warning.Code, Message: warning.Message})
	}
	return items
}
