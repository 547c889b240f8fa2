package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/barberos/barberos/internal/availability"
	"github.com/barberos/barberos/internal/booking"
	"github.com/barberos/barberos/internal/calendar"
	"github.com/barberos/barberos/internal/model"
	"github.com/barberos/barberos/internal/storage"
)

// BookingHandler serves the staff-facing appointment API. The tenant always
// comes from the verified token, never from the request body.
type BookingHandler struct {
	orchestrator *booking.Orchestrator
	repo         *storage.Repository
	busy         calendar.BusySource
	logger       *slog.Logger
}

func NewBookingHandler(orchestrator *booking.Orchestrator, repo *storage.Repository, busy calendar.BusySource, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		orchestrator: orchestrator,
		repo:         repo,
		busy:         busy,
		logger:       logger,
	}
}

type createAppointmentRequest struct {
	CustomerID     string `json:"customer_id"`
	ProfessionalID string `json:"professional_id"`
	ServiceID      string `json:"service_id"`
	StartTime      string `json:"start_time"`
	Notes          string `json:"notes"`
}

type rescheduleRequest struct {
	StartTime      string `json:"start_time"`
	ProfessionalID string `json:"professional_id"`
	ServiceID      string `json:"service_id"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

type appointmentResponse struct {
	AppointmentID   string        `json:"appointment_id"`
	CustomerID      string        `json:"customer_id"`
	ProfessionalID  string        `json:"professional_id"`
	ServiceID       string        `json:"service_id"`
	StartTime       string        `json:"start_time"`
	EndTime         string        `json:"end_time"`
	Status          string        `json:"status"`
	SyncState       string        `json:"sync_state"`
	ExternalEventID string        `json:"external_event_id,omitempty"`
	Notes           string        `json:"notes,omitempty"`
	CreatedAt       string        `json:"created_at"`
	Warnings        []warningItem `json:"warnings"`
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type slotsResponse struct {
	Slots    []slotItem    `json:"slots"`
	Warnings []warningItem `json:"warnings"`
}

func appointmentJSON(appt model.Appointment, warnings []booking.Warning) appointmentResponse {
	return appointmentResponse{
		AppointmentID:   appt.ID,
		CustomerID:      appt.CustomerID,
		ProfessionalID:  appt.ProfessionalID,
		ServiceID:       appt.ServiceID,
		StartTime:       appt.Interval.Start.UTC().Format(time.RFC3339),
		EndTime:         appt.Interval.End.UTC().Format(time.RFC3339),
		Status:          string(appt.Status),
		SyncState:       string(appt.SyncState),
		ExternalEventID: appt.ExternalEventID,
		Notes:           appt.Notes,
		CreatedAt:       appt.CreatedAt.UTC().Format(time.RFC3339),
		Warnings:        warningItems(warnings),
	}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req createAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_time")
		return
	}

	result, err := h.orchestrator.CreateAppointment(r.Context(), booking.CreateRequest{
		TenantID:       claims.TenantID,
		CustomerID:     strings.TrimSpace(req.CustomerID),
		ProfessionalID: strings.TrimSpace(req.ProfessionalID),
		ServiceID:      strings.TrimSpace(req.ServiceID),
		Start:          start,
		Notes:          strings.TrimSpace(req.Notes),
		Channel:        booking.ChannelStaff,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appointmentJSON(result.Appointment, result.Warnings))
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	appt, err := h.orchestrator.GetAppointment(r.Context(), claims.TenantID, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentJSON(appt, nil))
}

// List returns the tenant's agenda for one day, optionally filtered to a
// single professional.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(r.URL.Query().Get("date")), time.UTC)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date is required as YYYY-MM-DD")
		return
	}
	professionalID := strings.TrimSpace(r.URL.Query().Get("professional_id"))

	appts, err := h.repo.ListByDay(r.Context(), claims.TenantID, professionalID, day, day.AddDate(0, 0, 1))
	if err != nil {
		h.logger.Error("failed to list appointments", "tenant_id", claims.TenantID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list appointments")
		return
	}

	items := make([]appointmentResponse, 0, len(appts))
	for _, appt := range appts {
		items = append(items, appointmentJSON(appt, nil))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req rescheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_time")
		return
	}

	result, err := h.orchestrator.Reschedule(r.Context(), claims.TenantID, r.PathValue("id"), booking.RescheduleRequest{
		Start:          start,
		ProfessionalID: strings.TrimSpace(req.ProfessionalID),
		ServiceID:      strings.TrimSpace(req.ServiceID),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentJSON(result.Appointment, result.Warnings))
}

func (h *BookingHandler) Approve(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	result, err := h.orchestrator.Approve(r.Context(), claims.TenantID, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentJSON(result.Appointment, result.Warnings))
}

func (h *BookingHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req setStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	result, err := h.orchestrator.SetStatus(r.Context(), claims.TenantID, r.PathValue("id"),
		model.AppointmentStatus(strings.TrimSpace(req.Status)))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appointmentJSON(result.Appointment, result.Warnings))
}

// Slots lists bookable start times for a professional and service on one
// day. Local committed appointments are authoritative busy time; external
// calendar blocks are advisory and their absence only degrades the listing.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	h.serveSlots(w, r, claims.TenantID)
}

func (h *BookingHandler) serveSlots(w http.ResponseWriter, r *http.Request, tenantID string) {
	q := r.URL.Query()
	professionalID := strings.TrimSpace(q.Get("professional_id"))
	serviceID := strings.TrimSpace(q.Get("service_id"))
	dateStr := strings.TrimSpace(q.Get("date"))
	if professionalID == "" || serviceID == "" || dateStr == "" {
		writeError(w, http.StatusBadRequest, "professional_id, service_id and date are required")
		return
	}
	day, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date")
		return
	}

	step := 15 * time.Minute
	if raw := strings.TrimSpace(q.Get("step_minutes")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 120 {
			writeError(w, http.StatusBadRequest, "invalid step_minutes")
			return
		}
		step = time.Duration(n) * time.Minute
	}

	ctx := r.Context()
	svc, err := h.repo.GetService(ctx, tenantID, serviceID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	pro, err := h.repo.GetProfessional(ctx, tenantID, professionalID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !pro.Active || !svc.Active {
		writeJSON(w, http.StatusOK, slotsResponse{Slots: []slotItem{}, Warnings: []warningItem{}})
		return
	}

	window, open, err := h.workingWindow(ctx, tenantID, day)
	if err != nil {
		h.logger.Error("failed to load working hours", "tenant_id", tenantID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load working hours")
		return
	}
	if !open {
		writeJSON(w, http.StatusOK, slotsResponse{Slots: []slotItem{}, Warnings: []warningItem{}})
		return
	}

	occupied, err := h.repo.CommittedIntervals(ctx, tenantID, professionalID, window.Start, window.End)
	if err != nil {
		h.logger.Error("failed to load booked intervals", "tenant_id", tenantID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load booked intervals")
		return
	}

	var warnings []warningItem
	if h.busy != nil {
		blocks, err := h.busy.ListBusyBlocks(ctx, tenantID, window.Start, window.End)
		switch {
		case err == nil:
			occupied = append(occupied, blocks...)
		case calendar.IsNotConnected(err):
			// Tenant has no usable calendar link; local data alone is fine.
		default:
			h.logger.Warn("external busy blocks unavailable", "tenant_id", tenantID, "err", err)
			warnings = append(warnings, warningItem{
				Code:    booking.WarnCalendarUnavailable,
				Message: "external calendar unavailable; slots computed from local bookings only",
			})
		}
	}

	free := availability.FreeSlotsAfter(window, svc.OccupiedDuration(), step, occupied, time.Now().UTC())
	slots := make([]slotItem, 0, len(free))
	for _, iv := range free {
		slots = append(slots, slotItem{
			StartTime: iv.Start.UTC().Format(time.RFC3339),
			EndTime:   iv.Start.Add(time.Duration(svc.DurationMinutes) * time.Minute).UTC().Format(time.RFC3339),
		})
	}
	if warnings == nil {
		warnings = []warningItem{}
	}
	writeJSON(w, http.StatusOK, slotsResponse{Slots: slots, Warnings: warnings})
}

func (h *BookingHandler) workingWindow(ctx context.Context, tenantID string, day time.Time) (availability.Interval, bool, error) {
	wh, open, err := h.repo.WorkingWindow(ctx, tenantID, day.Weekday())
	if err != nil || !open {
		return availability.Interval{}, false, err
	}
	openH, openM, err := model.Clock(wh.OpensAt)
	if err != nil {
		return availability.Interval{}, false, err
	}
	closeH, closeM, err := model.Clock(wh.ClosesAt)
	if err != nil {
		return availability.Interval{}, false, err
	}
	window := availability.Interval{
		Start: time.Date(day.Year(), day.Month(), day.Day(), openH, openM, 0, 0, time.UTC),
		End:   time.Date(day.Year(), day.Month(), day.Day(), closeH, closeM, 0, 0, time.UTC),
	}
	return window, window.IsValid(), nil
}
