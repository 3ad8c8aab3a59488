// Package incidents provides the incident lifecycle: business rules, storage
// contract and HTTP handlers.
package incidents

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for incidents.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: httputil.NewValidator(),
	}
}

// RegisterRoutes registers incident routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/incidents", func(r chi.Router) {
		r.Get("/", h.ListIncidents)
		r.Post("/", h.CreateIncident)
		r.Get("/{id}", h.GetIncident)
		r.Put("/{id}", h.UpdateIncident)
		r.Patch("/{id}", h.UpdateFields)
		r.Post("/{id}/status", h.UpdateStatus)
		r.Get("/{id}/history", h.GetStatusHistory)
	})
}

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrValidation, Status: http.StatusBadRequest},
	{Error: ErrIncidentNotFound, Status: http.StatusNotFound},
	{Error: ErrInvalidTransition, Status: http.StatusConflict},
	{Error: ErrInvalidState, Status: http.StatusConflict},
	{Error: ErrPreconditionFailed, Status: http.StatusUnprocessableEntity},
}

// CreateIncidentRequest represents the request body for creating an incident.
type CreateIncidentRequest struct {
	Description  string `json:"description" validate:"required,max=10000"`
	ActionsTaken string `json:"actions_taken" validate:"required,max=10000"`
}

// UpdateFieldsRequest represents the request body for editing investigation fields.
type UpdateFieldsRequest struct {
	RCA        *string `json:"rca" validate:"omitempty,max=10000"`
	Resolution *string `json:"resolution" validate:"omitempty,max=10000"`
}

// UpdateStatusRequest represents the request body for a status transition.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=OPEN IN_PROGRESS CLOSED"`
}

// UpdateIncidentRequest represents the request body for a combined update.
type UpdateIncidentRequest struct {
	RCA        *string `json:"rca" validate:"omitempty,max=10000"`
	Resolution *string `json:"resolution" validate:"omitempty,max=10000"`
	Status     *string `json:"status" validate:"omitempty,oneof=OPEN IN_PROGRESS CLOSED"`
}

// ListIncidents handles GET /incidents request.
// Supports q, status, sort (id, description, status) and order (asc, desc).
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	query, err := parseListQuery(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	items, err := h.service.ListIncidents(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, ApplyListQuery(items, query))
}

// CreateIncident handles POST /incidents request.
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.CreateIncident(r.Context(), CreateIncidentInput{
		Description:  req.Description,
		ActionsTaken: req.ActionsTaken,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, incident)
}

// GetIncident handles GET /incidents/{id} request.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	incident, err := h.service.GetIncident(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// UpdateIncident handles PUT /incidents/{id} request.
func (h *Handler) UpdateIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req UpdateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	input := UpdateIncidentInput{
		RCA:        req.RCA,
		Resolution: req.Resolution,
	}
	if req.Status != nil {
		status := domain.IncidentStatus(*req.Status)
		input.Status = &status
	}

	incident, err := h.service.UpdateIncident(r.Context(), id, input)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// UpdateFields handles PATCH /incidents/{id} request.
func (h *Handler) UpdateFields(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req UpdateFieldsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.UpdateFields(r.Context(), id, UpdateFieldsInput{
		RCA:        req.RCA,
		Resolution: req.Resolution,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// UpdateStatus handles POST /incidents/{id}/status request.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.UpdateStatus(r.Context(), id, domain.IncidentStatus(req.Status))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// GetStatusHistory handles GET /incidents/{id}/history request.
func (h *Handler) GetStatusHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	changes, err := h.service.ListStatusChanges(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, changes)
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.HandleError(r.Context(), w, err, errorMappings)
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.Error(w, http.StatusBadRequest, "invalid incident id")
		return 0, false
	}
	return id, true
}

func parseListQuery(r *http.Request) (ListQuery, error) {
	query := DefaultListQuery()
	values := r.URL.Query()

	query.Search = values.Get("q")
	if v := values.Get("sort"); v != "" {
		query.SortBy = SortField(v)
	}
	if v := values.Get("order"); v != "" {
		query.Order = SortOrder(v)
	}
	if v := values.Get("status"); v != "" {
		status := domain.IncidentStatus(v)
		query.Status = &status
	}

	if err := query.Validate(); err != nil {
		return ListQuery{}, fmt.Errorf("parse list query: %w", err)
	}
	return query, nil
}
