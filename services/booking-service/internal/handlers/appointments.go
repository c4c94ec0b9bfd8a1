package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

// Appointments is the lifecycle surface the HTTP layer drives.
type Appointments interface {
	Create(ctx context.Context, req lifecycle.CreateRequest) (model.Appointment, error)
	Reschedule(ctx context.Context, id string, req lifecycle.RescheduleRequest) (model.Appointment, error)
	UpdateStatus(ctx context.Context, id string, status model.Status) (model.Appointment, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (model.Appointment, error)
	List(ctx context.Context, filter model.ListFilter) ([]model.Appointment, int, error)
	GetAvailability(ctx context.Context, providerID string, date time.Time, slotMinutes int) ([]model.TimeSlot, error)
}

// HoursWriter updates one weekday of a provider's working hours.
type HoursWriter interface {
	SetWorkingHours(ctx context.Context, providerID string, day time.Weekday, hours model.DayHours) error
}

type AppointmentHandler struct {
	appts              Appointments
	hours              HoursWriter
	logger             *slog.Logger
	defaultSlotMinutes int
}

// NewAppointmentHandler builds the handler. hours may be nil, which disables the working hours route.
func NewAppointmentHandler(appts Appointments, hours HoursWriter, logger *slog.Logger, defaultSlotMinutes int) *AppointmentHandler {
	if defaultSlotMinutes <= 0 {
		defaultSlotMinutes = 30
	}
	return &AppointmentHandler{appts: appts, hours: hours, logger: logger, defaultSlotMinutes: defaultSlotMinutes}
}

func (h *AppointmentHandler) Routes(r chi.Router) {
	r.Route("/api/v1/appointments", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Delete("/{id}", h.Delete)
		r.Put("/{id}/schedule", h.Reschedule)
		r.Put("/{id}/status", h.UpdateStatus)
	})
	r.Get("/api/v1/providers/{id}/availability", h.Availability)
	if h.hours != nil {
		r.Put("/api/v1/providers/{id}/working-hours/{weekday}", h.SetWorkingHours)
	}
}

type createAppointmentRequest struct {
	PatientID     string `json:"patient_id"`
	ProviderID    string `json:"provider_id"`
	LocationID    string `json:"location_id"`
	RoomID        string `json:"room_id"`
	ServiceID     string `json:"service_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Notes         string `json:"notes"`
	InternalNotes string `json:"internal_notes"`
}

type rescheduleRequest struct {
	Date       string `json:"date"`
	ProviderID string `json:"provider_id"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type appointmentResponse struct {
	ID            string `json:"id"`
	PatientID     string `json:"patient_id"`
	ProviderID    string `json:"provider_id"`
	LocationID    string `json:"location_id,omitempty"`
	RoomID        string `json:"room_id,omitempty"`
	ServiceID     string `json:"service_id,omitempty"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Duration      int    `json:"duration"`
	Status        string `json:"status"`
	Notes         string `json:"notes"`
	InternalNotes string `json:"internal_notes"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type listResponse struct {
	Items  []appointmentResponse `json:"items"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

type availabilityResponse struct {
	ProviderID  string           `json:"provider_id"`
	Date        string           `json:"date"`
	SlotMinutes int              `json:"slot_minutes"`
	Slots       []model.TimeSlot `json:"slots"`
}

type workingHoursRequest struct {
	Working bool   `json:"working"`
	Open    string `json:"open"`
	Close   string `json:"close"`
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	date, err := model.ParseDate(req.Date)
	if err != nil {
		writeError(w, h.logger, apperr.Validation("invalid date: expected YYYY-MM-DD"))
		return
	}
	start, end, err := parseInterval(req.StartTime, req.EndTime)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	appt, err := h.appts.Create(r.Context(), lifecycle.CreateRequest{
		PatientID:     req.PatientID,
		ProviderID:    req.ProviderID,
		LocationID:    req.LocationID,
		RoomID:        req.RoomID,
		ServiceID:     req.ServiceID,
		Date:          date,
		Start:         start,
		End:           end,
		Notes:         req.Notes,
		InternalNotes: req.InternalNotes,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(appt))
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	appt, err := h.appts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.ListFilter{
		ProviderID: strings.TrimSpace(q.Get("provider_id")),
		PatientID:  strings.TrimSpace(q.Get("patient_id")),
		Status:     model.Status(strings.TrimSpace(q.Get("status"))),
	}
	var err error
	if filter.From, err = optionalDate(q.Get("from")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if filter.To, err = optionalDate(q.Get("to")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if filter.Limit, err = optionalInt(q.Get("limit"), "limit"); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if filter.Offset, err = optionalInt(q.Get("offset"), "offset"); err != nil {
		writeError(w, h.logger, err)
		return
	}
	filter = filter.Normalize()

	appts, total, err := h.appts.List(r.Context(), filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp := listResponse{Items: make([]appointmentResponse, 0, len(appts)), Total: total, Limit: filter.Limit, Offset: filter.Offset}
	for _, a := range appts {
		resp.Items = append(resp.Items, toResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AppointmentHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	start, end, err := parseInterval(req.StartTime, req.EndTime)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	in := lifecycle.RescheduleRequest{ProviderID: req.ProviderID, Start: start, End: end}
	if strings.TrimSpace(req.Date) != "" {
		date, err := model.ParseDate(req.Date)
		if err != nil {
			writeError(w, h.logger, apperr.Validation("invalid date: expected YYYY-MM-DD"))
			return
		}
		in.Date = &date
	}

	appt, err := h.appts.Reschedule(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

func (h *AppointmentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	appt, err := h.appts.UpdateStatus(r.Context(), chi.URLParam(r, "id"), model.Status(strings.TrimSpace(req.Status)))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(appt))
}

func (h *AppointmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.appts.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AppointmentHandler) Availability(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "id")
	q := r.URL.Query()
	date, err := model.ParseDate(q.Get("date"))
	if err != nil {
		writeError(w, h.logger, apperr.Validation("invalid date: expected YYYY-MM-DD"))
		return
	}
	slotMinutes := h.defaultSlotMinutes
	if raw := strings.TrimSpace(q.Get("slot_minutes")); raw != "" {
		if slotMinutes, err = strconv.Atoi(raw); err != nil {
			writeError(w, h.logger, apperr.Validation("slot_minutes must be an integer"))
			return
		}
	}

	slots, err := h.appts.GetAvailability(r.Context(), providerID, date, slotMinutes)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{
		ProviderID:  providerID,
		Date:        model.FormatDate(date),
		SlotMinutes: slotMinutes,
		Slots:       slots,
	})
}

func (h *AppointmentHandler) SetWorkingHours(w http.ResponseWriter, r *http.Request) {
	day, err := strconv.Atoi(chi.URLParam(r, "weekday"))
	if err != nil || day < 0 || day > 6 {
		writeError(w, h.logger, apperr.Validation("weekday must be 0 (Sunday) to 6 (Saturday)"))
		return
	}
	var req workingHoursRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	hours := model.DayHours{Working: req.Working}
	if req.Working {
		if hours.Open, hours.Close, err = parseInterval(req.Open, req.Close); err != nil {
			writeError(w, h.logger, err)
			return
		}
		if hours.Close <= hours.Open {
			writeError(w, h.logger, apperr.Validation("close must be after open"))
			return
		}
	}
	if err := h.hours.SetWorkingHours(r.Context(), chi.URLParam(r, "id"), time.Weekday(day), hours); err != nil {
		if isUnknownEntity(err) {
			writeError(w, h.logger, apperr.NotFound("provider %s not found", chi.URLParam(r, "id")))
			return
		}
		writeError(w, h.logger, apperr.Storage(err, "set working hours"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toResponse(a model.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:            a.ID,
		PatientID:     a.PatientID,
		ProviderID:    a.ProviderID,
		LocationID:    a.LocationID,
		RoomID:        a.RoomID,
		ServiceID:     a.ServiceID,
		Date:          model.FormatDate(a.Date),
		StartTime:     a.StartTime.String(),
		EndTime:       a.EndTime.String(),
		Duration:      a.Duration(),
		Status:        string(a.Status),
		Notes:         a.Notes,
		InternalNotes: a.InternalNotes,
		CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func parseInterval(startRaw, endRaw string) (model.Clock, model.Clock, error) {
	start, err := model.ParseClock(startRaw)
	if err != nil {
		return 0, 0, apperr.Validation("invalid start_time: expected HH:MM")
	}
	end, err := model.ParseClock(endRaw)
	if err != nil {
		return 0, 0, apperr.Validation("invalid end_time: expected HH:MM")
	}
	return start, end, nil
}

func optionalDate(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	d, err := model.ParseDate(raw)
	if err != nil {
		return time.Time{}, apperr.Validation("invalid date %q: expected YYYY-MM-DD", raw)
	}
	return d, nil
}

func optionalInt(raw, name string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, apperr.Validation("%s must be a non-negative integer", name)
	}
	return n, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: errorBody{Kind: string(apperr.KindValidation), Message: "request body too large"}})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorEnvelope{Error: errorBody{Kind: string(apperr.KindValidation), Message: "invalid json body"}})
		return false
	}
	return true
}
