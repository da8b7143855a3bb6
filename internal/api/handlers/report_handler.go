package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	middleware "github.com/planora-ai/planora/internal/api/middlewares"
	"github.com/planora-ai/planora/internal/core"
	"github.com/planora-ai/planora/internal/core/report"
	"github.com/planora-ai/planora/internal/models"
)

type ReportHandler struct {
	store        core.Store
	orchestrator *report.Orchestrator
}

func NewReportHandler(store core.Store, orchestrator *report.Orchestrator) *ReportHandler {
	return &ReportHandler{store: store, orchestrator: orchestrator}
}

func (h *ReportHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.store.ListReportTemplates(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(templates)
}

type createReportRequest struct {
	TemplateID string `json:"template_id"`
	Topic      string `json:"topic"`
	Address    string `json:"address,omitempty"`
	Context    string `json:"context,omitempty"`
}

// CreateReport records the request and runs generation in the background.
// The response carries the report ID the client polls for progress.
func (h *ReportHandler) CreateReport(w http.ResponseWriter, r *http.Request) {
	col := requireCollection(w, r, h.store)
	if col == nil {
		return
	}

	var req createReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.TemplateID == "" || strings.TrimSpace(req.Topic) == "" {
		http.Error(w, "template_id and topic are required", http.StatusBadRequest)
		return
	}

	tpl, err := h.store.GetReportTemplateByID(r.Context(), req.TemplateID)
	if err != nil || tpl == nil {
		http.Error(w, "template not found", http.StatusNotFound)
		return
	}

	rep := &models.ReportGeneration{
		ID:           uuid.NewString(),
		UserID:       col.UserID,
		CollectionID: col.ID,
		TemplateID:   tpl.ID,
		Topic:        strings.TrimSpace(req.Topic),
		Address:      strings.TrimSpace(req.Address),
		Context:      strings.TrimSpace(req.Context),
		Status:       models.StatusPending,
	}
	if err := h.store.CreateReportGeneration(r.Context(), rep); err != nil {
		http.Error(w, fmt.Sprintf("could not create report: %v", err), http.StatusInternalServerError)
		return
	}

	go func() {
		if err := h.orchestrator.Run(context.Background(), rep.ID); err != nil {
			log.Printf("report %s: generation failed: %v", rep.ID, err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(rep)
}

// GetReport returns the report row with progress and its section states.
func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	rep := h.requireReport(w, r)
	if rep == nil {
		return
	}

	sections, err := h.store.ListReportSections(r.Context(), rep.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"report":   rep,
		"sections": sections,
	})
}

// DownloadReport serves the assembled markdown document.
func (h *ReportHandler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	rep := h.requireReport(w, r)
	if rep == nil {
		return
	}

	if rep.Content == "" {
		http.Error(w, "report has no content yet", http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "report-"+rep.ID+".md"))
	_, _ = w.Write([]byte(rep.Content))
}

// requireReport loads the report from the route and verifies ownership.
func (h *ReportHandler) requireReport(w http.ResponseWriter, r *http.Request) *models.ReportGeneration {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil
	}

	rep, err := h.store.GetReportGenerationByID(r.Context(), chi.URLParam(r, "report_id"))
	if err != nil || rep == nil {
		http.Error(w, "report not found", http.StatusNotFound)
		return nil
	}
	if rep.UserID != userID {
		http.Error(w, "you do not own this report", http.StatusForbidden)
		return nil
	}
	return rep
}
