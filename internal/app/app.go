package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/planora-ai/planora/internal/config"
	"github.com/planora-ai/planora/internal/core"
	"github.com/planora-ai/planora/internal/core/chunker"
	db "github.com/planora-ai/planora/internal/core/database"
	"github.com/planora-ai/planora/internal/core/events"
	"github.com/planora-ai/planora/internal/core/ingest"
	"github.com/planora-ai/planora/internal/core/llm"
	"github.com/planora-ai/planora/internal/core/metadata"
	objectclient "github.com/planora-ai/planora/internal/core/object-client"
	"github.com/planora-ai/planora/internal/core/parser"
	"github.com/planora-ai/planora/internal/core/report"
	"github.com/planora-ai/planora/internal/core/retrieval"
	"github.com/planora-ai/planora/internal/core/retry"
	"github.com/planora-ai/planora/internal/services"
)

type App struct {
	Store        core.Store
	ObjectClient core.ObjectClient
	Pipeline     *ingest.Pipeline
	Notifier     *events.Notifier
	Server       *Server

	embedder *llm.GeminiEmbedder
	llm      *llm.GeminiLLM
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	store, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Database initialized and ready.")

	objClient, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Object client initialized and ready.")

	geminiEmbedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm provider: %w", err)
	}

	notifier := events.NewNotifier(256)

	docParser := parser.NewDocconvParser(retry.NewPolicy(cfg.ParseMaxAttempts, cfg.ParsePollInterval))
	semanticChunker := chunker.New(chunker.Options{
		MaxChunkSize: cfg.MaxChunkSize,
		MinParagraph: cfg.MinParagraph,
	})

	registry := metadata.NewRegistry(store)
	extractor := metadata.NewExtractor(llmProvider, metadata.ModelScorer{}, cfg.MetadataMaxChars)
	metadataService := metadata.NewService(extractor, registry, store)

	pipeline := ingest.NewPipeline(store, objClient, docParser, semanticChunker, metadataService, notifier)

	embedWorker := ingest.NewEmbedWorker(store, geminiEmbedder, cfg.EmbedModel, cfg.EmbedDim, cfg.EmbedBatchSize)
	embedWorker.Register(notifier)

	retriever := retrieval.NewService(store, geminiEmbedder, cfg.EmbedModel)

	orchestrator := report.NewOrchestrator(store, retriever, llmProvider, notifier, report.Config{
		TopK:                 cfg.TopK,
		SimilarityThreshold:  cfg.SimilarityThreshold,
		RetrievalConcurrency: cfg.RetrievalConcurrency,
		SectionConcurrency:   cfg.SectionConcurrency,
		SuccessRatio:         cfg.ReportSuccessRatio,
		ProviderTimeout:      cfg.ProviderTimeout,
	})

	docService := services.NewDocumentService(store, objClient, cfg.BucketName)

	notifier.Start(ctx)
	pipeline.Start(ctx, cfg.IngestWorkers)

	server := NewServer(cfg, store, docService, pipeline, retriever, orchestrator, llmProvider)

	return &App{
		Store:        store,
		ObjectClient: objClient,
		Pipeline:     pipeline,
		Notifier:     notifier,
		Server:       server,
		embedder:     geminiEmbedder,
		llm:          llmProvider,
	}, nil
}

func (a *App) Close() {
	if a.llm != nil {
		_ = a.llm.Close()
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
}
