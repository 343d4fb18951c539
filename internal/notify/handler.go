package notify

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

// Handler serves the caller's inbox.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/unread-count", h.UnreadCount)
	r.Put("/read-all", h.MarkAllRead)
	r.Put("/{notificationID}/read", h.MarkRead)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"code": code, "error": msg})
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return uuid.Nil, false
	}
	return p.UserID, true
}

func (h *Handler) fail(w http.ResponseWriter, err error, userID uuid.UUID) {
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	h.logger.Error("notification request failed", "error", err, "user_id", userID)
	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

// List handles GET /notifications?unread=true&limit=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	opts := ListOptions{}
	if unread, err := strconv.ParseBool(r.URL.Query().Get("unread")); err == nil {
		opts.UnreadOnly = unread
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		opts.Limit = limit
	}
	items, err := h.service.List(r.Context(), userID, opts)
	if err != nil {
		h.fail(w, err, userID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

// UnreadCount handles GET /notifications/unread-count
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	count, err := h.service.UnreadCount(r.Context(), userID)
	if err != nil {
		h.fail(w, err, userID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": count})
}

// MarkAllRead handles PUT /notifications/read-all
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	count, err := h.service.MarkAllRead(r.Context(), userID)
	if err != nil {
		h.fail(w, err, userID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": count})
}

// MarkRead handles PUT /notifications/{notificationID}/read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "notificationID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid notificationID")
		return
	}
	n, err := h.service.MarkRead(r.Context(), userID, id)
	if err != nil {
		h.fail(w, err, userID)
		return
	}
	writeJSON(w, http.StatusOK, n)
}
