// Package ingest runs the document pipeline: fetch the stored file, parse it
// to text, extract metadata and chunk in parallel, persist the chunks, and
// signal downstream embedding. One document is processed end to end by one
// worker; the pool size bounds concurrent documents, not stages.
package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/planora-ai/planora/internal/core"
	"github.com/planora-ai/planora/internal/core/chunker"
	"github.com/planora-ai/planora/internal/core/events"
	"github.com/planora-ai/planora/internal/models"
)

// Store is the slice of persistence the ingest pipeline and the embedding
// backfill worker need. core.Store satisfies it.
type Store interface {
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id, status, errMsg string) error
	SetDocumentChunkCount(ctx context.Context, id string, count int) error
	ClearDocumentIngestion(ctx context.Context, documentID string) error
	ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []models.Chunk) error
	ListChunksWithoutEmbedding(ctx context.Context, documentID, model string) ([]models.Chunk, error)
	InsertChunkEmbeddings(ctx context.Context, embeddings []models.ChunkEmbedding) error
}

// MetadataExtractor is the slice of the metadata service the pipeline needs.
type MetadataExtractor interface {
	ExtractAndStore(ctx context.Context, documentID, text string) (*models.DocumentMetadata, []models.MetadataFieldValue, error)
}

// Pipeline processes uploaded documents from a bounded job queue.
type Pipeline struct {
	store    Store
	obj      core.ObjectClient
	parser   core.DocumentParser
	chunker  *chunker.SemanticChunker
	meta     MetadataExtractor
	notifier core.Notifier

	jobs chan string
}

// NewPipeline constructs the pipeline with a bounded job queue (64).
func NewPipeline(store Store, obj core.ObjectClient, parser core.DocumentParser, ch *chunker.SemanticChunker, meta MetadataExtractor, notifier core.Notifier) *Pipeline {
	return &Pipeline{
		store: store, obj: obj, parser: parser, chunker: ch, meta: meta, notifier: notifier,
		jobs: make(chan string, 64),
	}
}

// Start launches numWorkers goroutines reading from the job queue.
func (p *Pipeline) Start(ctx context.Context, numWorkers int) {
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					log.Printf("ingest: worker %d shutting down", w)
					return
				case docID := <-p.jobs:
					log.Printf("ingest: worker %d processing document %s", w, docID)
					if err := p.ProcessOne(ctx, docID); err != nil {
						log.Printf("ingest: document %s failed: %v", docID, err)
					}
				}
			}
		}(w)
	}
}

// Enqueue schedules a document ID for ingestion. Blocks when the queue is
// full so upload handlers apply natural backpressure.
func (p *Pipeline) Enqueue(docID string) {
	p.jobs <- docID
}

// ProcessOne runs the full pipeline for a single document. Every failure
// path lands the document in status failed with the error recorded on the
// row, so a stuck "processing" document always indicates a crashed worker.
func (p *Pipeline) ProcessOne(ctx context.Context, docID string) error {
	procCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	doc, err := p.store.GetDocumentByID(ctx, docID)
	if err != nil || doc == nil {
		return fmt.Errorf("document not found: %w", err)
	}

	if err := p.store.UpdateDocumentStatus(procCtx, docID, models.StatusProcessing, ""); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	if err := p.run(procCtx, doc); err != nil {
		_ = p.store.UpdateDocumentStatus(procCtx, docID, models.StatusFailed, err.Error())
		p.notifier.Emit(events.DocumentFailed, map[string]string{
			"document_id": docID,
			"error":       err.Error(),
		})
		return err
	}

	if err := p.store.UpdateDocumentStatus(procCtx, docID, models.StatusCompleted, ""); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	p.notifier.Emit(events.DocumentChunked, map[string]string{"document_id": docID})
	return nil
}

func (p *Pipeline) run(ctx context.Context, doc *models.Document) error {
	bucket, key := parseStorageURL(doc.StorageURL)
	data, err := p.obj.GetFile(ctx, bucket, key)
	if err != nil {
		return fmt.Errorf("fetch object: %w", err)
	}

	parsed, err := p.parser.Parse(ctx, data, doc.ContentType)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	// Any previous ingestion is cleared before extraction starts, so the
	// metadata record written below is never deleted by its own run.
	if err := p.store.ClearDocumentIngestion(ctx, doc.ID); err != nil {
		return fmt.Errorf("clear previous ingestion: %w", err)
	}

	// Metadata extraction and chunking only need the parsed text, so they
	// run in parallel. Either failing fails the document.
	var (
		chunks []models.Chunk
		values []models.MetadataFieldValue
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if _, values, err = p.meta.ExtractAndStore(gctx, doc.ID, parsed.Text); err != nil {
			return fmt.Errorf("metadata extraction: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		chunks = p.chunker.Chunk(parsed.Text)
		now := time.Now()
		for i := range chunks {
			chunks[i].ID = uuid.NewString()
			chunks[i].DocumentID = doc.ID
			chunks[i].CreatedAt = now
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if len(chunks) == 0 {
		return fmt.Errorf("chunking produced no chunks")
	}
	associateFields(chunks, values)

	if err := p.store.ReplaceDocumentChunks(ctx, doc.ID, chunks); err != nil {
		return fmt.Errorf("persist chunks: %w", err)
	}
	if err := p.store.SetDocumentChunkCount(ctx, doc.ID, len(chunks)); err != nil {
		return fmt.Errorf("record chunk count: %w", err)
	}

	log.Printf("ingest: document %s chunked into %d chunks (%d pages)", doc.ID, len(chunks), parsed.Pages)
	return nil
}

// associateFields tags each chunk with the names of the metadata fields
// whose extracted raw value appears in the chunk's content. Retrieval can
// then filter or boost chunks carrying a requested field.
func associateFields(chunks []models.Chunk, values []models.MetadataFieldValue) {
	for i := range chunks {
		content := strings.ToLower(chunks[i].Content)
		seen := make(map[string]bool)
		for _, v := range values {
			raw := strings.ToLower(strings.TrimSpace(v.RawValue))
			if len(raw) < 3 || seen[v.FieldName] {
				continue
			}
			if strings.Contains(content, raw) {
				chunks[i].MetadataFields = append(chunks[i].MetadataFields, v.FieldName)
				seen[v.FieldName] = true
			}
		}
	}
}

// parseStorageURL extracts the bucket and key from a virtual-hosted-style
// S3 URL, e.g. https://my-bucket.s3.us-east-2.amazonaws.com/path/to/file.pdf.
func parseStorageURL(u string) (bucket, key string) {
	hostPath := strings.SplitN(strings.TrimPrefix(u, "https://"), "/", 2)
	host := hostPath[0]
	if len(hostPath) == 2 {
		key = hostPath[1]
	}
	if parts := strings.Split(host, "."); len(parts) > 0 {
		bucket = parts[0]
	}
	return bucket, key
}
