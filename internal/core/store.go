package core

import (
	"context"

	"github.com/planora-ai/planora/internal/models"
)

// Store defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateCollection(ctx context.Context, col *models.Collection) error
	GetCollectionByID(ctx context.Context, id string) (*models.Collection, error)
	ListCollectionsByUser(ctx context.Context, userID string) ([]models.Collection, error)

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByCollection(ctx context.Context, collectionID string) ([]models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id, status, errMsg string) error
	SetDocumentChunkCount(ctx context.Context, id string, count int) error

	// FindOrCreateFieldDefinition atomically inserts the definition or, when a
	// row with the same normalized name already exists, bumps its occurrence
	// count and running confidence instead. The stored row is returned either
	// way, so concurrent extractors converge on a single definition.
	FindOrCreateFieldDefinition(ctx context.Context, def *models.MetadataFieldDefinition, confidence float64) (*models.MetadataFieldDefinition, error)
	RecordFieldOccurrence(ctx context.Context, fieldID string, confidence float64) error
	ListFieldDefinitions(ctx context.Context) ([]models.MetadataFieldDefinition, error)

	InsertDocumentMetadata(ctx context.Context, meta *models.DocumentMetadata, values []models.MetadataFieldValue) error
	GetDocumentMetadata(ctx context.Context, documentID string) (*models.DocumentMetadata, []models.MetadataFieldValue, error)

	// ClearDocumentIngestion removes everything a previous ingestion run wrote
	// for the document: chunks, their embeddings and the metadata record. The
	// pipeline calls it once up front so re-ingestion starts from a clean
	// slate without ever deleting the extraction it is about to write.
	ClearDocumentIngestion(ctx context.Context, documentID string) error

	// ReplaceDocumentChunks deletes any existing chunks (and their embeddings)
	// for the document and inserts the new batch in one transaction. It never
	// touches document_metadata; that record is written once per ingestion and
	// only ClearDocumentIngestion may remove it.
	ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []models.Chunk) error
	GetChunksByDocument(ctx context.Context, documentID string) ([]models.Chunk, error)
	ListChunksWithoutEmbedding(ctx context.Context, documentID, model string) ([]models.Chunk, error)
	InsertChunkEmbeddings(ctx context.Context, embeddings []models.ChunkEmbedding) error

	// SearchChunks ranks embedded chunks within scope by cosine similarity to
	// queryVec, most similar first, ties broken by sequence index ascending.
	SearchChunks(ctx context.Context, scope models.SearchScope, queryVec []float32, model string, limit int) ([]models.ScoredChunk, error)

	GetReportTemplateByID(ctx context.Context, id string) (*models.ReportTemplate, error)
	ListReportTemplates(ctx context.Context) ([]models.ReportTemplate, error)

	CreateReportGeneration(ctx context.Context, rep *models.ReportGeneration) error
	GetReportGenerationByID(ctx context.Context, id string) (*models.ReportGeneration, error)
	UpdateReportStatus(ctx context.Context, id, status, errMsg string) error
	SetReportProgress(ctx context.Context, id string, progress int) error
	SetReportContent(ctx context.Context, id, content, status string) error

	// InsertReportSections writes all rows in a single transaction so a report
	// either has its full set of pending sections or none at all.
	InsertReportSections(ctx context.Context, sections []models.ReportSection) error
	ListReportSections(ctx context.Context, reportID string) ([]models.ReportSection, error)
	UpdateReportSection(ctx context.Context, section *models.ReportSection) error

	Close() error
}
