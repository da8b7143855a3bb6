package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/planora-ai/planora/internal/core"
	"github.com/planora-ai/planora/internal/core/retrieval"
	"github.com/planora-ai/planora/internal/models"
)

// SearchHandler answers ad-hoc questions over a collection: embed the query,
// retrieve the most similar chunks, and generate a grounded answer.
type SearchHandler struct {
	store     core.Store
	retriever *retrieval.Service
	llm       core.LLMProvider
	opts      retrieval.Options
}

func NewSearchHandler(store core.Store, retriever *retrieval.Service, llm core.LLMProvider, opts retrieval.Options) *SearchHandler {
	return &SearchHandler{store: store, retriever: retriever, llm: llm, opts: opts}
}

type searchRequest struct {
	Query       string   `json:"query"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

type searchResponse struct {
	Answer string               `json:"answer"`
	Chunks []models.ScoredChunk `json:"chunks"`
}

func (h *SearchHandler) QueryCollection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	col := requireCollection(w, r, h.store)
	if col == nil {
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	scope := models.SearchScope{CollectionID: col.ID, DocumentIDs: req.DocumentIDs}
	results, err := h.retriever.Search(ctx, []string{req.Query}, scope, h.opts)
	if err != nil {
		http.Error(w, fmt.Sprintf("search failed: %v", err), http.StatusInternalServerError)
		return
	}
	res := results[0]
	if res.Err != "" {
		http.Error(w, fmt.Sprintf("search failed: %s", res.Err), http.StatusInternalServerError)
		return
	}

	var sb strings.Builder
	for _, ch := range res.Chunks {
		sb.WriteString(ch.Content)
		sb.WriteString("\n---\n")
	}

	systemPrompt := "You are an assistant answering questions about town-planning documents based only on the given extracts. If unsure, say the documents do not cover it."
	userPrompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", sb.String(), req.Query)

	answer, err := h.llm.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		http.Error(w, fmt.Sprintf("generation failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(searchResponse{Answer: answer, Chunks: res.Chunks})
}
