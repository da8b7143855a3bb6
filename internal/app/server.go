package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/planora-ai/planora/internal/api/handlers"
	appMiddleware "github.com/planora-ai/planora/internal/api/middlewares"
	"github.com/planora-ai/planora/internal/config"
	"github.com/planora-ai/planora/internal/core"
	"github.com/planora-ai/planora/internal/core/ingest"
	"github.com/planora-ai/planora/internal/core/report"
	"github.com/planora-ai/planora/internal/core/retrieval"
	"github.com/planora-ai/planora/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, store core.Store, docs *services.DocumentService, pipeline *ingest.Pipeline, retriever *retrieval.Service, orchestrator *report.Orchestrator, llm core.LLMProvider) *Server {
	authHandler := handlers.NewAuthHandler(store)
	collectionHandler := handlers.NewCollectionHandler(store)
	docHandler := handlers.NewDocumentHandler(store, docs, pipeline)
	searchHandler := handlers.NewSearchHandler(store, retriever, llm, retrieval.Options{
		TopK:                cfg.TopK,
		SimilarityThreshold: cfg.SimilarityThreshold,
		Concurrency:         cfg.RetrievalConcurrency,
	})
	reportHandler := handlers.NewReportHandler(store, orchestrator)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/signup", authHandler.Signup)
		api.Post("/login", authHandler.Login)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(appMiddleware.JWTMiddleware)

			protected.Post("/collections", collectionHandler.CreateCollection)
			protected.Get("/collections", collectionHandler.ListCollections)

			protected.Route("/collections/{collection_id}", func(col chi.Router) {
				col.Post("/documents", docHandler.UploadDocument)
				col.Get("/documents", docHandler.ListDocuments)
				col.Get("/documents/{document_id}", docHandler.GetDocument)
				col.Post("/documents/{document_id}/reingest", docHandler.ReingestDocument)

				col.Post("/search", searchHandler.QueryCollection)
				col.Post("/reports", reportHandler.CreateReport)
			})

			protected.Get("/metadata/fields", docHandler.ListFieldDefinitions)
			protected.Get("/templates", reportHandler.ListTemplates)
			protected.Get("/reports/{report_id}", reportHandler.GetReport)
			protected.Get("/reports/{report_id}/download", reportHandler.DownloadReport)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
