package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planora-ai/planora/internal/core/retrieval"
	"github.com/planora-ai/planora/internal/models"
)

type fakeStore struct {
	mu sync.Mutex

	report   *models.ReportGeneration
	template *models.ReportTemplate

	sections         []models.ReportSection
	insertedStatuses []string
	insertErr        error
	progressLog []int
	content     string
	finalStatus string
}

func (f *fakeStore) GetReportTemplateByID(_ context.Context, id string) (*models.ReportTemplate, error) {
	if f.template == nil || f.template.ID != id {
		return nil, nil
	}
	return f.template, nil
}

func (f *fakeStore) GetReportGenerationByID(_ context.Context, id string) (*models.ReportGeneration, error) {
	if f.report == nil || f.report.ID != id {
		return nil, nil
	}
	return f.report, nil
}

func (f *fakeStore) UpdateReportStatus(_ context.Context, _, status, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.report.Status = status
	f.report.ErrorMessage = errMsg
	return nil
}

func (f *fakeStore) SetReportProgress(_ context.Context, _ string, progress int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progressLog = append(f.progressLog, progress)
	f.report.Progress = progress
	return nil
}

func (f *fakeStore) SetReportContent(_ context.Context, _, content, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content = content
	f.finalStatus = status
	f.report.Status = status
	return nil
}

func (f *fakeStore) InsertReportSections(_ context.Context, sections []models.ReportSection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr // transactional: nothing written
	}
	f.sections = append(f.sections, sections...)
	for _, s := range sections {
		f.insertedStatuses = append(f.insertedStatuses, s.Status)
	}
	return nil
}

func (f *fakeStore) ListReportSections(_ context.Context, _ string) ([]models.ReportSection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ReportSection, len(f.sections))
	copy(out, f.sections)
	return out, nil
}

func (f *fakeStore) UpdateReportSection(_ context.Context, sec *models.ReportSection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.sections {
		if f.sections[i].ID == sec.ID {
			f.sections[i] = *sec
			return nil
		}
	}
	return errors.New("section not found")
}

type fakeRetriever struct {
	failQueryContaining string
}

func (f *fakeRetriever) Search(_ context.Context, queries []string, _ models.SearchScope, _ retrieval.Options) ([]retrieval.QueryResult, error) {
	out := make([]retrieval.QueryResult, len(queries))
	for i, q := range queries {
		out[i].Query = q
		if f.failQueryContaining != "" && strings.Contains(q, f.failQueryContaining) {
			out[i].Err = "embed query: backend down"
			continue
		}
		out[i].Chunks = []models.ScoredChunk{
			{Chunk: models.Chunk{ID: fmt.Sprintf("chunk-%d", i), SequenceIndex: i, Content: "Relevant extract."}, Similarity: 0.9},
		}
	}
	return out, nil
}

type sectionLLM struct {
	failPromptContaining string
}

func (s *sectionLLM) Generate(_ context.Context, _, userPrompt string) (string, error) {
	if s.failPromptContaining != "" && strings.Contains(userPrompt, s.failPromptContaining) {
		return "", errors.New("model overloaded")
	}
	return "Generated planning prose.", nil
}

func planningTemplate() *models.ReportTemplate {
	return &models.ReportTemplate{
		ID:   "tpl-1",
		Name: "Planning Assessment",
		Sections: []models.TemplateSection{
			{Title: "Site and Surroundings", Subsections: []string{"Site Description", "Planning History"}},
			{Title: "Assessment"},
		},
	}
}

func pendingReport() *models.ReportGeneration {
	return &models.ReportGeneration{
		ID:           "rep-1",
		CollectionID: "col-1",
		TemplateID:   "tpl-1",
		Topic:        "residential development",
		Address:      "Mill Lane",
		Status:       models.StatusPending,
	}
}

func newTestOrchestrator(store *fakeStore, retr Retriever, llm *sectionLLM, ratio float64) *Orchestrator {
	return NewOrchestrator(store, retr, llm, nil, Config{
		TopK:               3,
		SectionConcurrency: 2,
		SuccessRatio:       ratio,
	})
}

func TestRunCreatesOneRowPerTemplateLeaf(t *testing.T) {
	store := &fakeStore{report: pendingReport(), template: planningTemplate()}
	o := newTestOrchestrator(store, &fakeRetriever{}, &sectionLLM{}, 0.5)

	require.NoError(t, o.Run(context.Background(), "rep-1"))

	// 2 top-level sections + 2 subsections = 4 rows, all pending at insert.
	require.Len(t, store.sections, 4)
	for _, st := range store.insertedStatuses {
		assert.Equal(t, models.StatusPending, st)
	}

	orders := make([]int, len(store.sections))
	for i, s := range store.sections {
		orders[i] = s.SectionOrder
	}
	assert.Equal(t, []int{0, 1, 2, 10}, orders)
}

func TestRunSectionOrdersStrictlyIncreasing(t *testing.T) {
	store := &fakeStore{report: pendingReport(), template: &models.ReportTemplate{
		ID:       "tpl-1",
		Sections: []models.TemplateSection{{Title: "Overview", Subsections: []string{"A", "B"}}},
	}}
	o := newTestOrchestrator(store, &fakeRetriever{}, &sectionLLM{}, 0.5)

	require.NoError(t, o.Run(context.Background(), "rep-1"))
	require.Len(t, store.sections, 3)
	for i := 1; i < len(store.sections); i++ {
		assert.Greater(t, store.sections[i].SectionOrder, store.sections[i-1].SectionOrder)
	}
}

func TestRunSectionFailureIsIsolated(t *testing.T) {
	store := &fakeStore{report: pendingReport(), template: planningTemplate()}
	llm := &sectionLLM{failPromptContaining: "Planning History"}
	o := newTestOrchestrator(store, &fakeRetriever{}, llm, 0.5)

	require.NoError(t, o.Run(context.Background(), "rep-1"))

	var failed, completed int
	for _, s := range store.sections {
		switch s.Status {
		case models.StatusFailed:
			failed++
			assert.Contains(t, s.ErrorMessage, "generation")
		case models.StatusCompleted:
			completed++
			assert.NotEmpty(t, s.Content)
			assert.Greater(t, s.WordCount, 0)
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 3, completed)
	// 3 of 4 succeeded: above the 0.5 ratio, so the report completes.
	assert.Equal(t, models.StatusCompleted, store.finalStatus)
}

func TestRunRetrievalFailureFailsOnlyThatSection(t *testing.T) {
	store := &fakeStore{report: pendingReport(), template: planningTemplate()}
	retr := &fakeRetriever{failQueryContaining: "Assessment"}
	o := newTestOrchestrator(store, retr, &sectionLLM{}, 0.5)

	require.NoError(t, o.Run(context.Background(), "rep-1"))

	for _, s := range store.sections {
		if s.SectionTitle == "Assessment" {
			assert.Equal(t, models.StatusFailed, s.Status)
			assert.Contains(t, s.ErrorMessage, "retrieval")
		} else {
			assert.Equal(t, models.StatusCompleted, s.Status)
		}
	}
}

func TestRunProgressMonotonicAndComplete(t *testing.T) {
	store := &fakeStore{report: pendingReport(), template: planningTemplate()}
	o := newTestOrchestrator(store, &fakeRetriever{}, &sectionLLM{}, 0.5)

	require.NoError(t, o.Run(context.Background(), "rep-1"))

	require.Len(t, store.progressLog, 4)
	for i := 1; i < len(store.progressLog); i++ {
		assert.GreaterOrEqual(t, store.progressLog[i], store.progressLog[i-1])
	}
	assert.Equal(t, 100, store.progressLog[len(store.progressLog)-1])
}

func TestRunAllSectionsFailedFailsReport(t *testing.T) {
	store := &fakeStore{report: pendingReport(), template: planningTemplate()}
	llm := &sectionLLM{failPromptContaining: "Report topic"}
	o := newTestOrchestrator(store, &fakeRetriever{}, llm, 0.5)

	require.NoError(t, o.Run(context.Background(), "rep-1"))
	assert.Equal(t, models.StatusFailed, store.finalStatus)
	// The assembled document still exists for download.
	assert.Contains(t, store.content, "could not be generated")
}

func TestRunZeroRatioAlwaysCompletes(t *testing.T) {
	store := &fakeStore{report: pendingReport(), template: planningTemplate()}
	llm := &sectionLLM{failPromptContaining: "Report topic"}
	o := newTestOrchestrator(store, &fakeRetriever{}, llm, 0)

	require.NoError(t, o.Run(context.Background(), "rep-1"))
	assert.Equal(t, models.StatusCompleted, store.finalStatus)
}

func TestRunInsertFailureLeavesNoSections(t *testing.T) {
	store := &fakeStore{
		report:    pendingReport(),
		template:  planningTemplate(),
		insertErr: errors.New("db down"),
	}
	o := newTestOrchestrator(store, &fakeRetriever{}, &sectionLLM{}, 0.5)

	require.Error(t, o.Run(context.Background(), "rep-1"))
	assert.Empty(t, store.sections)
	assert.Equal(t, models.StatusFailed, store.report.Status)
}

func TestRunRecordsRetrievedChunkIDs(t *testing.T) {
	store := &fakeStore{report: pendingReport(), template: planningTemplate()}
	o := newTestOrchestrator(store, &fakeRetriever{}, &sectionLLM{}, 0.5)

	require.NoError(t, o.Run(context.Background(), "rep-1"))
	for _, s := range store.sections {
		require.Len(t, s.ChunkIDs, 1)
		assert.True(t, strings.HasPrefix(s.ChunkIDs[0], "chunk-"))
	}
}

func TestAssembleOrdersBySectionOrder(t *testing.T) {
	rep := &models.ReportGeneration{ID: "r", Topic: "housing scheme"}
	sections := []models.ReportSection{
		{SectionTitle: "Conclusions", SectionOrder: 20, Status: models.StatusCompleted, Content: "Concluding text."},
		{SectionTitle: "Background", SectionOrder: 10, Status: models.StatusCompleted, Content: "Background text."},
		{SectionTitle: "Background", SubsectionTitle: "History", SectionOrder: 11, Status: models.StatusCompleted, Content: "History text."},
	}

	out := Assemble(rep, sections)

	bg := strings.Index(out, "## Background")
	hist := strings.Index(out, "### History")
	conc := strings.Index(out, "## Conclusions")
	require.NotEqual(t, -1, bg)
	require.NotEqual(t, -1, hist)
	require.NotEqual(t, -1, conc)
	assert.Less(t, bg, hist)
	assert.Less(t, hist, conc)
}

func TestExpandTemplateQueriesReferenceParent(t *testing.T) {
	tpl := planningTemplate()
	qs := expandTemplate(tpl, "residential development", "Mill Lane", "")

	require.Len(t, qs, 4)
	assert.Equal(t, "Site and Surroundings for residential development at Mill Lane", qs[0].Query)
	assert.Contains(t, qs[1].Query, "Site Description")
	assert.Contains(t, qs[1].Query, "Site and Surroundings")
	assert.Contains(t, qs[1].Query, "Mill Lane")
}
