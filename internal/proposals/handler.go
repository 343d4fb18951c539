package proposals

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/realestate-marketplace/internal/auth"
	"github.com/wolfman30/realestate-marketplace/pkg/logging"
)

// Handler exposes the proposal workflow over HTTP.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a new proposals handler
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if service == nil {
		panic("proposals: service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Routes mounts the proposal endpoints on r. submit wraps only proposal
// creation (rate limiting).
func (h *Handler) Routes(r chi.Router, submit ...func(http.Handler) http.Handler) {
	r.With(submit...).Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/stats", h.Stats)
	r.Get("/number/{number}", h.GetByNumber)
	r.Get("/client/{clientID}", h.listBy("clientID"))
	r.Get("/agent/{agentID}", h.listBy("agentID"))
	r.Get("/property/{propertyID}", h.listBy("propertyID"))
	r.Put("/negotiations/{negotiationID}/status", h.UpdateNegotiationStatus)
	r.Get("/{proposalID}", h.Get)
	r.Put("/{proposalID}/start-analysis", h.StartAnalysis)
	r.Put("/{proposalID}/approve", h.Approve)
	r.Put("/{proposalID}/reject", h.Reject)
	r.Put("/{proposalID}/cancel", h.Cancel)
	r.Post("/{proposalID}/negotiate", h.Negotiate)
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

var conflictCodes = []struct {
	err  error
	code string
}{
	{ErrAlreadyApproved, "already_approved"},
	{ErrAlreadyRejected, "already_rejected"},
	{ErrCancelled, "cancelled"},
	{ErrCompleted, "completed"},
	{ErrAlreadyUnderAnalysis, "already_under_analysis"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrInvalidStatus, "invalid_status"},
	{ErrNegotiationClosed, "negotiation_closed"},
	{ErrOpenProposalExists, "open_proposal_exists"},
	{ErrPropertyUnavailable, "property_unavailable"},
	{ErrConcurrentUpdate, "concurrent_update"},
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "validation_error", Error: err.Error()})
	case IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorResponse{Code: "not_found", Error: err.Error()})
	case IsConflict(err):
		code := "conflict"
		for _, c := range conflictCodes {
			if errors.Is(err, c.err) {
				code = c.code
				break
			}
		}
		writeJSON(w, http.StatusConflict, errorResponse{Code: code, Error: err.Error()})
	default:
		h.logger.Error("proposal request failed", "error", err, "method", r.Method, "path", r.URL.Path)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "internal_error", Error: "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Code: "bad_request", Error: msg})
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		badRequest(w, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}

// Create handles POST /proposals
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	p, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// Get handles GET /proposals/{proposalID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "proposalID")
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetByNumber handles GET /proposals/number/{number}
func (h *Handler) GetByNumber(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetByNumber(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// List handles GET /proposals?status=&page=&page_size=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseListFilter(w, r)
	if !ok {
		return
	}
	h.list(w, r, filter)
}

func (h *Handler) listBy(param string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, param)
		if !ok {
			return
		}
		filter, ok := parseListFilter(w, r)
		if !ok {
			return
		}
		switch param {
		case "clientID":
			filter.ClientID = id
		case "agentID":
			filter.AgentID = id
		case "propertyID":
			filter.PropertyID = id
		}
		h.list(w, r, filter)
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, filter ListFilter) {
	page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func parseListFilter(w http.ResponseWriter, r *http.Request) (ListFilter, bool) {
	q := r.URL.Query()
	var filter ListFilter
	if raw := q.Get("status"); raw != "" {
		status, ok := ParseStatus(raw)
		if !ok {
			badRequest(w, "invalid status")
			return filter, false
		}
		filter.Status = status
	}
	if raw := q.Get("page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Page = n
		}
	}
	if raw := q.Get("page_size"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.PageSize = n
		}
	}
	return filter, true
}

// Stats handles GET /proposals/stats?agent_id=|client_id=
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	var filter StatsFilter
	for key, dst := range map[string]*uuid.UUID{"agent_id": &filter.AgentID, "client_id": &filter.ClientID} {
		raw := r.URL.Query().Get(key)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(w, "invalid "+key)
			return
		}
		*dst = id
	}
	st, err := h.service.Stats(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// StartAnalysis handles PUT /proposals/{proposalID}/start-analysis
func (h *Handler) StartAnalysis(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "proposalID")
	if !ok {
		return
	}
	p, err := h.service.StartAnalysis(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Approve handles PUT /proposals/{proposalID}/approve
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "proposalID")
	if !ok {
		return
	}
	p, err := h.service.Approve(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Reject handles PUT /proposals/{proposalID}/reject
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "proposalID")
	if !ok {
		return
	}
	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	p, err := h.service.Reject(r.Context(), id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Cancel handles PUT /proposals/{proposalID}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "proposalID")
	if !ok {
		return
	}
	p, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Negotiate handles POST /proposals/{proposalID}/negotiate. The sender is
// the authenticated user.
func (h *Handler) Negotiate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "proposalID")
	if !ok {
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Code: "unauthorized", Error: "authentication required"})
		return
	}
	var req AddNegotiationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	req.SenderID = principal.UserID
	n, err := h.service.AddNegotiation(r.Context(), id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// UpdateNegotiationStatus handles PUT /proposals/negotiations/{negotiationID}/status
func (h *Handler) UpdateNegotiationStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "negotiationID")
	if !ok {
		return
	}
	var req UpdateNegotiationStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	n, err := h.service.UpdateNegotiationStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}
