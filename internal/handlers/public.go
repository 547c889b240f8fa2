package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/barberos/barberos/internal/booking"
	"github.com/barberos/barberos/internal/calendar"
	"github.com/barberos/barberos/internal/storage"
)

// PublicHandler serves the unauthenticated booking surface. It uses the
// same slot resolver as the staff API, so the public page never offers a
// time the agenda would reject. Public bookings enter as requested demand
// and do not block the slot until staff approves them.
type PublicHandler struct {
	orchestrator *booking.Orchestrator
	repo         *storage.Repository
	staff        *BookingHandler
	logger       *slog.Logger
}

func NewPublicHandler(orchestrator *booking.Orchestrator, repo *storage.Repository, busy calendar.BusySource, logger *slog.Logger) *PublicHandler {
	return &PublicHandler{
		orchestrator: orchestrator,
		repo:         repo,
		staff:        NewBookingHandler(orchestrator, repo, busy, logger),
		logger:       logger,
	}
}

type publicBookRequest struct {
	TenantID       string `json:"tenant_id"`
	ProfessionalID string `json:"professional_id"`
	ServiceID      string `json:"service_id"`
	StartTime      string `json:"start_time"`
	CustomerName   string `json:"customer_name"`
	CustomerPhone  string `json:"customer_phone"`
	Notes          string `json:"notes"`
}

func (h *PublicHandler) Slots(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSpace(r.URL.Query().Get("tenant_id"))
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	h.staff.serveSlots(w, r, tenantID)
}

func (h *PublicHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req publicBookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	req.TenantID = strings.TrimSpace(req.TenantID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	if req.TenantID == "" || req.CustomerName == "" || req.CustomerPhone == "" {
		writeError(w, http.StatusBadRequest, "tenant_id, customer_name and customer_phone are required")
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_time")
		return
	}

	customer, err := h.repo.FindOrCreateCustomer(r.Context(), req.TenantID, req.CustomerName, req.CustomerPhone)
	if err != nil {
		h.logger.Error("failed to resolve customer", "tenant_id", req.TenantID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to resolve customer")
		return
	}

	result, err := h.orchestrator.CreateAppointment(r.Context(), booking.CreateRequest{
		TenantID:       req.TenantID,
		CustomerID:     customer.ID,
		ProfessionalID: strings.TrimSpace(req.ProfessionalID),
		ServiceID:      strings.TrimSpace(req.ServiceID),
		Start:          start,
		Notes:          strings.TrimSpace(req.Notes),
		Channel:        booking.ChannelPublic,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appointmentJSON(result.Appointment, result.Warnings))
}
