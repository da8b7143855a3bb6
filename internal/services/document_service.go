package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/planora-ai/planora/internal/core"
	"github.com/planora-ai/planora/internal/models"
)

// DocumentService owns upload-side document lifecycle: storage key layout,
// the S3 upload and the pending document row. Ingestion itself is the
// pipeline's job.
type DocumentService struct {
	store   core.Store
	storage core.ObjectClient
	bucket  string
}

func NewDocumentService(store core.Store, storage core.ObjectClient, bucket string) *DocumentService {
	return &DocumentService{store: store, storage: storage, bucket: bucket}
}

// UploadAndCreate stores the file and records a pending document in the
// collection. The caller enqueues ingestion afterwards.
func (s *DocumentService) UploadAndCreate(ctx context.Context, collectionID, filename, contentType string, data io.Reader) (*models.Document, error) {
	col, err := s.store.GetCollectionByID(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return nil, fmt.Errorf("collection not found: %s", collectionID)
	}

	docID := uuid.NewString()
	key := s.objectKey(collectionID, docID, filename)

	url, err := s.storage.UploadFile(ctx, s.bucket, key, data, contentType)
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:           docID,
		CollectionID: collectionID,
		FileName:     filename,
		StorageURL:   url,
		ContentType:  contentType,
		Status:       models.StatusPending,
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	return s.store.GetDocumentByID(ctx, id)
}

func (s *DocumentService) ListByCollection(ctx context.Context, collectionID string) ([]models.Document, error) {
	return s.store.ListDocumentsByCollection(ctx, collectionID)
}

// PrepareReingest resets a document to pending so the pipeline can process
// it again. Chunk replacement keeps the operation idempotent.
func (s *DocumentService) PrepareReingest(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.store.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("document not found: %s", id)
	}
	if doc.Status == models.StatusProcessing {
		return nil, fmt.Errorf("document %s is already being processed", id)
	}
	if err := s.store.UpdateDocumentStatus(ctx, id, models.StatusPending, ""); err != nil {
		return nil, err
	}
	doc.Status = models.StatusPending
	return doc, nil
}

// objectKey creates a consistent S3 key layout.
func (s *DocumentService) objectKey(collectionID, docID, filename string) string {
	filename = strings.TrimSpace(filename)
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join(collectionID, docID, filename)
}
