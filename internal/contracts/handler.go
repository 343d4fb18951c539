package contracts

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/wolfman30/realestate-marketplace/pkg/logging"
)

// Handler serves drafted contracts.
type Handler struct {
	store   Store
	archive *Archive
	logger  *logging.Logger
}

func NewHandler(store Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// WithArchive serves documents from the archive before rendering them.
func (h *Handler) WithArchive(a *Archive) *Handler {
	h.archive = a
	return h
}

// GetContract handles GET /contracts/{contractID}
func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(c)
}

// GetDocument handles GET /contracts/{contractID}/document
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	c, ok := h.load(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", documentContentType)
	w.Header().Set("Content-Disposition", `inline; filename="contract-`+c.ID.String()+`.txt"`)

	if h.archive != nil {
		body, err := h.archive.Open(r.Context(), c.ID)
		if err == nil {
			defer body.Close()
			_, _ = io.Copy(w, body)
			return
		}
		if !errors.Is(err, ErrDocumentNotFound) {
			h.logger.Warn("contract archive unavailable", "error", err, "contract_id", c.ID)
		}
	}

	doc, err := RenderDocument(c, time.Now().UTC())
	if err != nil {
		h.logger.Error("failed to render contract", "error", err, "contract_id", c.ID)
		http.Error(w, "failed to render contract", http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(doc)
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*Contract, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "contractID"))
	if err != nil {
		http.Error(w, "invalid contract id", http.StatusBadRequest)
		return nil, false
	}
	c, err := h.store.GetByID(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "contract not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		h.logger.Error("failed to load contract", "error", err, "contract_id", id)
		http.Error(w, "failed to load contract", http.StatusInternalServerError)
		return nil, false
	}
	return c, true
}
