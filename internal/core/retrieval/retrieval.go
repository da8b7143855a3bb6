// Package retrieval answers one or more query strings with ranked chunks
// from a document collection. Queries are independent: a failure embedding
// or searching one query never aborts the others.
package retrieval

import (
	"context"
	"fmt"
	"log"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/planora-ai/planora/internal/core"
	"github.com/planora-ai/planora/internal/models"
)

// Options tunes a search call.
type Options struct {
	TopK                int
	SimilarityThreshold float64
	Concurrency         int
}

// QueryResult holds the outcome for one query. Err is set and Chunks empty
// when that query failed; siblings are unaffected.
type QueryResult struct {
	Query  string               `json:"query"`
	Chunks []models.ScoredChunk `json:"chunks"`
	Err    string               `json:"error,omitempty"`
}

// ChunkSearcher is the slice of the store retrieval needs.
type ChunkSearcher interface {
	SearchChunks(ctx context.Context, scope models.SearchScope, queryVec []float32, model string, limit int) ([]models.ScoredChunk, error)
}

// Service embeds queries and ranks chunk embeddings by cosine similarity.
type Service struct {
	store    ChunkSearcher
	embedder core.EmbeddingProvider
	model    string
}

func NewService(store ChunkSearcher, embedder core.EmbeddingProvider, embedModel string) *Service {
	return &Service{store: store, embedder: embedder, model: embedModel}
}

// Search runs every query concurrently (bounded) within scope and returns
// one result entry per query, in input order.
func (s *Service) Search(ctx context.Context, queries []string, scope models.SearchScope, opts Options) ([]QueryResult, error) {
	if scope.CollectionID == "" {
		return nil, fmt.Errorf("retrieval: collection id is required")
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	results := make([]QueryResult, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for idx, q := range queries {
		g.Go(func() error {
			results[idx] = s.searchOne(gctx, q, scope, opts)
			return nil // per-query errors are recorded, never propagated
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) searchOne(ctx context.Context, query string, scope models.SearchScope, opts Options) QueryResult {
	res := QueryResult{Query: query}

	vecs, err := s.embedder.EmbedTexts(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		if err == nil {
			err = fmt.Errorf("empty embedding response")
		}
		log.Printf("retrieval: embed query failed: %v", err)
		res.Err = fmt.Sprintf("embed query: %v", err)
		return res
	}

	scored, err := s.store.SearchChunks(ctx, scope, vecs[0], s.model, opts.TopK)
	if err != nil {
		log.Printf("retrieval: search failed: %v", err)
		res.Err = fmt.Sprintf("search chunks: %v", err)
		return res
	}

	res.Chunks = rank(scored, opts.TopK, opts.SimilarityThreshold)
	return res
}

// rank keeps chunks above the threshold, ordered by similarity descending
// with ties broken by sequence index ascending for reproducible output.
func rank(scored []models.ScoredChunk, topK int, threshold float64) []models.ScoredChunk {
	kept := scored[:0:0]
	for _, c := range scored {
		if c.Similarity >= threshold {
			kept = append(kept, c)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Similarity != kept[j].Similarity {
			return kept[i].Similarity > kept[j].Similarity
		}
		return kept[i].SequenceIndex < kept[j].SequenceIndex
	})
	if len(kept) > topK {
		kept = kept[:topK]
	}
	return kept
}
