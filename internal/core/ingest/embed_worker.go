package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/planora-ai/planora/internal/core"
	"github.com/planora-ai/planora/internal/core/events"
	"github.com/planora-ai/planora/internal/models"
)

// EmbedWorker backfills chunk embeddings after chunking. Chunks exist and
// are queryable by ID before their embeddings do; retrieval only sees a
// chunk once its embedding row for the active model is written, so a lagging
// backfill narrows results instead of corrupting them.
type EmbedWorker struct {
	store     Store
	embedder  core.EmbeddingProvider
	model     string
	dim       int
	batchSize int
}

func NewEmbedWorker(store Store, embedder core.EmbeddingProvider, model string, dim, batchSize int) *EmbedWorker {
	if batchSize <= 0 {
		batchSize = 16
	}
	return &EmbedWorker{store: store, embedder: embedder, model: model, dim: dim, batchSize: batchSize}
}

// Register subscribes the worker to chunking events.
func (w *EmbedWorker) Register(n *events.Notifier) {
	n.Subscribe(events.DocumentChunked, w.handleDocumentChunked)
}

func (w *EmbedWorker) handleDocumentChunked(ctx context.Context, e events.Event) error {
	docID := e.Payload["document_id"]
	if docID == "" {
		log.Printf("embed: %s event without document_id, ignoring", e.Name)
		return nil
	}
	return w.BackfillDocument(ctx, docID)
}

// BackfillDocument embeds every chunk of the document that has no embedding
// row for the active model yet. Safe to re-run: already-embedded chunks are
// skipped by the query, so a retry after a mid-batch failure only covers the
// remainder.
func (w *EmbedWorker) BackfillDocument(ctx context.Context, docID string) error {
	chunks, err := w.store.ListChunksWithoutEmbedding(ctx, docID, w.model)
	if err != nil {
		return fmt.Errorf("embed: list pending chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	for start := 0; start < len(chunks); start += w.batchSize {
		end := start + w.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := w.embedBatch(ctx, chunks[start:end]); err != nil {
			return err
		}
	}

	log.Printf("embed: document %s backfilled %d chunks with model %s", docID, len(chunks), w.model)
	return nil
}

func (w *EmbedWorker) embedBatch(ctx context.Context, chunks []models.Chunk) error {
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}

	vecs, err := w.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed: provider: %w", err)
	}
	if len(vecs) != len(chunks) {
		return fmt.Errorf("embed: provider returned %d vectors for %d chunks", len(vecs), len(chunks))
	}

	now := time.Now()
	rows := make([]models.ChunkEmbedding, len(chunks))
	for i, vec := range vecs {
		if w.dim > 0 && len(vec) != w.dim {
			return fmt.Errorf("embed: chunk %s: got dim %d, want %d", chunks[i].ID, len(vec), w.dim)
		}
		rows[i] = models.ChunkEmbedding{
			ID:        uuid.NewString(),
			ChunkID:   chunks[i].ID,
			Model:     w.model,
			Dim:       len(vec),
			Embedding: vec,
			CreatedAt: now,
		}
	}
	return w.store.InsertChunkEmbeddings(ctx, rows)
}
