package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/planora-ai/planora/internal/core"
	"github.com/planora-ai/planora/internal/core/ingest"
	"github.com/planora-ai/planora/internal/services"
)

type DocumentHandler struct {
	store    core.Store
	docs     *services.DocumentService
	pipeline *ingest.Pipeline
}

func NewDocumentHandler(store core.Store, docs *services.DocumentService, pipeline *ingest.Pipeline) *DocumentHandler {
	return &DocumentHandler{store: store, docs: docs, pipeline: pipeline}
}

// UploadDocument handles file upload, DB insert, and background processing.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	r.ParseMultipartForm(52 << 20)

	col := requireCollection(w, r, h.store)
	if col == nil {
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	// Sanitize filename to prevent path traversal or invalid characters.
	cleanFilename := filepath.Base(header.Filename)

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	uploadCtx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	doc, err := h.docs.UploadAndCreate(uploadCtx, col.ID, cleanFilename, contentType, file)
	if err != nil {
		log.Printf("upload failed for collection %s: %v", col.ID, err)
		http.Error(w, fmt.Sprintf("upload failed: %v", err), http.StatusInternalServerError)
		return
	}

	h.pipeline.Enqueue(doc.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(doc)
}

func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	col := requireCollection(w, r, h.store)
	if col == nil {
		return
	}

	documents, err := h.docs.ListByCollection(r.Context(), col.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(documents)
}

// GetDocument returns the document row plus its extracted metadata values.
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	col := requireCollection(w, r, h.store)
	if col == nil {
		return
	}

	doc, err := h.docs.Get(r.Context(), chi.URLParam(r, "document_id"))
	if err != nil || doc == nil || doc.CollectionID != col.ID {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}

	meta, values, err := h.store.GetDocumentMetadata(r.Context(), doc.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"document": doc,
		"metadata": meta,
		"fields":   values,
	})
}

// ReingestDocument re-runs the full pipeline for an already uploaded file.
func (h *DocumentHandler) ReingestDocument(w http.ResponseWriter, r *http.Request) {
	col := requireCollection(w, r, h.store)
	if col == nil {
		return
	}

	docID := chi.URLParam(r, "document_id")
	doc, err := h.docs.Get(r.Context(), docID)
	if err != nil || doc == nil || doc.CollectionID != col.ID {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}

	doc, err = h.docs.PrepareReingest(r.Context(), docID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	h.pipeline.Enqueue(doc.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(doc)
}

// ListFieldDefinitions exposes the shared metadata schema registry.
func (h *DocumentHandler) ListFieldDefinitions(w http.ResponseWriter, r *http.Request) {
	defs, err := h.store.ListFieldDefinitions(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(defs)
}
