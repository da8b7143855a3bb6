package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	middleware "github.com/planora-ai/planora/internal/api/middlewares"
	"github.com/planora-ai/planora/internal/core"
	"github.com/planora-ai/planora/internal/models"
)

type CollectionHandler struct {
	store core.Store
}

func NewCollectionHandler(store core.Store) *CollectionHandler {
	return &CollectionHandler{store: store}
}

type createCollectionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *CollectionHandler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "collection name is required", http.StatusBadRequest)
		return
	}

	col := &models.Collection{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.store.CreateCollection(r.Context(), col); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(col)
}

func (h *CollectionHandler) ListCollections(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	cols, err := h.store.ListCollectionsByUser(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cols)
}

// requireCollection loads the collection from the route and verifies the
// caller owns it. Writes the error response itself on failure.
func requireCollection(w http.ResponseWriter, r *http.Request, store core.Store) *models.Collection {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil
	}

	colID := chi.URLParam(r, "collection_id")
	col, err := store.GetCollectionByID(r.Context(), colID)
	if err != nil || col == nil {
		http.Error(w, "collection not found", http.StatusNotFound)
		return nil
	}
	if col.UserID != userID {
		http.Error(w, "you do not own this collection", http.StatusForbidden)
		return nil
	}
	return col
}
