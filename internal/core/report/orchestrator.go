// Package report drives template-based report generation: expand the
// template into section queries, persist the section rows, retrieve context
// per query, generate prose per section, and assemble the final document in
// section order. Section failures are isolated; the report's terminal status
// depends on the configured success ratio.
package report

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/planora-ai/planora/internal/core"
	"github.com/planora-ai/planora/internal/core/events"
	"github.com/planora-ai/planora/internal/core/retrieval"
	"github.com/planora-ai/planora/internal/models"
)

// Store is the slice of persistence the orchestrator needs.
type Store interface {
	GetReportTemplateByID(ctx context.Context, id string) (*models.ReportTemplate, error)
	GetReportGenerationByID(ctx context.Context, id string) (*models.ReportGeneration, error)
	UpdateReportStatus(ctx context.Context, id, status, errMsg string) error
	SetReportProgress(ctx context.Context, id string, progress int) error
	SetReportContent(ctx context.Context, id, content, status string) error
	InsertReportSections(ctx context.Context, sections []models.ReportSection) error
	ListReportSections(ctx context.Context, reportID string) ([]models.ReportSection, error)
	UpdateReportSection(ctx context.Context, section *models.ReportSection) error
}

// Retriever is satisfied by retrieval.Service.
type Retriever interface {
	Search(ctx context.Context, queries []string, scope models.SearchScope, opts retrieval.Options) ([]retrieval.QueryResult, error)
}

// Config tunes one orchestrator.
type Config struct {
	TopK                 int
	SimilarityThreshold  float64
	RetrievalConcurrency int
	SectionConcurrency   int

	// SuccessRatio is the fraction of sections that must complete for the
	// report to be marked completed once every section is terminal. 0 means
	// any outcome counts as completed (the legacy behaviour).
	SuccessRatio float64

	// ProviderTimeout bounds each generation call.
	ProviderTimeout time.Duration
}

// Orchestrator runs one report generation end to end.
type Orchestrator struct {
	store     Store
	retriever Retriever
	llm       core.LLMProvider
	notifier  core.Notifier
	cfg       Config
}

func NewOrchestrator(store Store, retriever Retriever, llm core.LLMProvider, notifier core.Notifier, cfg Config) *Orchestrator {
	if cfg.SectionConcurrency <= 0 {
		cfg.SectionConcurrency = 1
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 60 * time.Second
	}
	return &Orchestrator{store: store, retriever: retriever, llm: llm, notifier: notifier, cfg: cfg}
}

// Run processes the report identified by reportID. It is safe to run
// different reports concurrently; all cross-step state lives in the store.
// Progress counts sections that have reached a terminal state, completed or
// failed, over the total. Counting failures keeps the bar moving on a report
// that will finish degraded; it therefore reads "sections settled", not
// "sections succeeded".
func (o *Orchestrator) Run(ctx context.Context, reportID string) error {
	rep, err := o.store.GetReportGenerationByID(ctx, reportID)
	if err != nil || rep == nil {
		return fmt.Errorf("report not found: %w", err)
	}

	tpl, err := o.store.GetReportTemplateByID(ctx, rep.TemplateID)
	if err != nil || tpl == nil {
		_ = o.store.UpdateReportStatus(ctx, reportID, models.StatusFailed, "template not found")
		return fmt.Errorf("template %s not found: %w", rep.TemplateID, err)
	}

	queries := expandTemplate(tpl, rep.Topic, rep.Address, rep.Context)
	if len(queries) == 0 {
		_ = o.store.UpdateReportStatus(ctx, reportID, models.StatusFailed, "template has no sections")
		return fmt.Errorf("template %s has no sections", tpl.ID)
	}

	// Durable checkpoint: every section row exists, pending, before any
	// retrieval or generation starts. The insert is transactional so a
	// failure here leaves no partial rows behind.
	sections := make([]models.ReportSection, len(queries))
	for i, q := range queries {
		sections[i] = models.ReportSection{
			ID:              uuid.NewString(),
			ReportID:        reportID,
			SectionTitle:    q.SectionTitle,
			SubsectionTitle: q.SubsectionTitle,
			SectionOrder:    q.Order,
			Query:           q.Query,
			Status:          models.StatusPending,
		}
	}
	if err := o.store.InsertReportSections(ctx, sections); err != nil {
		_ = o.store.UpdateReportStatus(ctx, reportID, models.StatusFailed, "could not initiate sections")
		return fmt.Errorf("insert sections: %w", err)
	}
	if err := o.store.UpdateReportStatus(ctx, reportID, models.StatusProcessing, ""); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	// One batch retrieval call for all section queries. Per-query failures
	// come back inside the results and fail only their own section.
	queryTexts := make([]string, len(sections))
	for i := range sections {
		queryTexts[i] = sections[i].Query
	}
	results, err := o.retriever.Search(ctx, queryTexts,
		models.SearchScope{CollectionID: rep.CollectionID},
		retrieval.Options{
			TopK:                o.cfg.TopK,
			SimilarityThreshold: o.cfg.SimilarityThreshold,
			Concurrency:         o.cfg.RetrievalConcurrency,
		})
	if err != nil {
		_ = o.store.UpdateReportStatus(ctx, reportID, models.StatusFailed, fmt.Sprintf("retrieval failed: %v", err))
		return fmt.Errorf("batch retrieval: %w", err)
	}

	// Generate each section independently with bounded concurrency.
	var (
		mu       sync.Mutex
		terminal int
	)
	total := len(sections)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.SectionConcurrency)
	for i := range sections {
		sec := &sections[i]
		res := results[i]
		g.Go(func() error {
			o.processSection(gctx, rep, sec, res)

			// Persisting under the lock keeps the stored progress
			// monotonic even when sections finish out of order.
			mu.Lock()
			terminal++
			progress := int(math.Round(100 * float64(terminal) / float64(total)))
			if err := o.store.SetReportProgress(gctx, reportID, progress); err != nil {
				log.Printf("report %s: persist progress: %v", reportID, err)
			}
			mu.Unlock()
			return nil // section failures never abort the batch
		})
	}
	_ = g.Wait()

	return o.finish(ctx, rep, sections)
}

// processSection marks the section processing, generates prose from the
// retrieved context, and records the terminal state on the row. All errors
// end up on the section, never returned.
func (o *Orchestrator) processSection(ctx context.Context, rep *models.ReportGeneration, sec *models.ReportSection, res retrieval.QueryResult) {
	sec.Status = models.StatusProcessing
	if err := o.store.UpdateReportSection(ctx, sec); err != nil {
		log.Printf("report %s: mark section processing: %v", rep.ID, err)
	}

	if res.Err != "" {
		sec.Status = models.StatusFailed
		sec.ErrorMessage = fmt.Sprintf("retrieval: %s", res.Err)
		if err := o.store.UpdateReportSection(ctx, sec); err != nil {
			log.Printf("report %s: persist failed section: %v", rep.ID, err)
		}
		return
	}

	for _, c := range res.Chunks {
		sec.ChunkIDs = append(sec.ChunkIDs, c.ID)
	}

	genCtx, cancel := context.WithTimeout(ctx, o.cfg.ProviderTimeout)
	defer cancel()
	text, err := o.llm.Generate(genCtx, sectionSystemPrompt, buildSectionPrompt(rep, sec, res.Chunks))
	if err != nil {
		sec.Status = models.StatusFailed
		sec.ErrorMessage = fmt.Sprintf("generation: %v", err)
	} else {
		sec.Status = models.StatusCompleted
		sec.Content = strings.TrimSpace(text)
		sec.WordCount = len(strings.Fields(sec.Content))
	}
	if err := o.store.UpdateReportSection(ctx, sec); err != nil {
		log.Printf("report %s: persist section result: %v", rep.ID, err)
	}
}

// finish assembles the document and sets the terminal report status based on
// the configured success ratio.
func (o *Orchestrator) finish(ctx context.Context, rep *models.ReportGeneration, sections []models.ReportSection) error {
	completed := 0
	for i := range sections {
		if sections[i].Status == models.StatusCompleted {
			completed++
		}
	}

	status := models.StatusFailed
	if float64(completed) >= o.cfg.SuccessRatio*float64(len(sections)) {
		status = models.StatusCompleted
	}

	content := Assemble(rep, sections)
	if err := o.store.SetReportContent(ctx, rep.ID, content, status); err != nil {
		return fmt.Errorf("persist assembled report: %w", err)
	}

	if o.notifier != nil {
		o.notifier.Emit(events.ReportCompleted, map[string]string{
			"report_id": rep.ID,
			"status":    status,
		})
	}
	log.Printf("report %s: %d/%d sections completed, status %s", rep.ID, completed, len(sections), status)
	return nil
}

const sectionSystemPrompt = `You are a town-planning consultant drafting one section of a planning report.
Write in formal UK planning prose, grounded strictly in the provided context extracts.
Where the context does not cover a point, say the evidence base does not address it rather than inventing facts.
Return only the section body, no heading.`

// buildSectionPrompt concatenates the retrieved chunk contents, separated by
// a clear delimiter, followed by the report parameters and section titles.
func buildSectionPrompt(rep *models.ReportGeneration, sec *models.ReportSection, chunks []models.ScoredChunk) string {
	var b strings.Builder
	b.WriteString("Context extracts:\n")
	if len(chunks) == 0 {
		b.WriteString("(no relevant extracts were found)\n")
	}
	for _, c := range chunks {
		b.WriteString(c.Content)
		b.WriteString("\n---\n")
	}
	fmt.Fprintf(&b, "\nReport topic: %s\n", rep.Topic)
	if rep.Address != "" {
		fmt.Fprintf(&b, "Site address: %s\n", rep.Address)
	}
	if rep.Context != "" {
		fmt.Fprintf(&b, "Additional context: %s\n", rep.Context)
	}
	fmt.Fprintf(&b, "Section: %s\n", sec.SectionTitle)
	if sec.SubsectionTitle != "" {
		fmt.Fprintf(&b, "Subsection: %s\n", sec.SubsectionTitle)
	}
	return b.String()
}
