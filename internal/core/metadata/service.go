package metadata

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/planora-ai/planora/internal/models"
)

// Service ties discovery, registry reconciliation and persistence together
// for one document.
type Service struct {
	extractor *Extractor
	registry  *Registry
	store     Store
}

func NewService(extractor *Extractor, registry *Registry, store Store) *Service {
	return &Service{extractor: extractor, registry: registry, store: store}
}

// ExtractAndStore runs one extraction pass over the document text and writes
// the immutable DocumentMetadata record plus its field values. Registry
// statistics are updated for every matched or newly registered field. The
// persisted values are returned so callers can tag chunks with the field
// names they contain.
func (s *Service) ExtractAndStore(ctx context.Context, documentID, text string) (*models.DocumentMetadata, []models.MetadataFieldValue, error) {
	defs, err := s.registry.Snapshot(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("metadata: registry snapshot: %w", err)
	}

	discovery, err := s.extractor.Discover(ctx, text, defs)
	if err != nil {
		return nil, nil, err
	}

	meta := &models.DocumentMetadata{
		ID:               uuid.NewString(),
		DocumentID:       documentID,
		ExtractionMethod: "llm",
	}

	var values []models.MetadataFieldValue
	var confSum float64

	for _, f := range discovery.Fields {
		if err := s.registry.RecordMatch(ctx, f.Definition.ID, f.Confidence); err != nil {
			return nil, nil, fmt.Errorf("metadata: record occurrence: %w", err)
		}
		values = append(values, models.MetadataFieldValue{
			ID:                 uuid.NewString(),
			DocumentMetadataID: meta.ID,
			FieldDefinitionID:  f.Definition.ID,
			FieldName:          f.Definition.Name,
			RawValue:           f.RawValue,
			Confidence:         f.Confidence,
			SourcePage:         f.SourcePage,
			ExtractionContext:  f.Context,
		})
		confSum += f.Confidence
	}

	for _, sug := range discovery.Suggestions {
		def, err := s.registry.Register(ctx, sug, defs)
		if err != nil {
			return nil, nil, fmt.Errorf("metadata: register field %q: %w", sug.Name, err)
		}
		values = append(values, models.MetadataFieldValue{
			ID:                 uuid.NewString(),
			DocumentMetadataID: meta.ID,
			FieldDefinitionID:  def.ID,
			FieldName:          def.Name,
			RawValue:           sug.ExampleValue,
			Confidence:         sug.Confidence,
			SourcePage:         sug.SourcePage,
			ExtractionContext:  sug.Context,
		})
		confSum += sug.Confidence
	}

	if len(values) > 0 {
		meta.OverallConfidence = confSum / float64(len(values))
	}

	if err := s.store.InsertDocumentMetadata(ctx, meta, values); err != nil {
		return nil, nil, fmt.Errorf("metadata: persist: %w", err)
	}
	log.Printf("metadata: document %s extracted %d fields (%d new)", documentID, len(values), len(discovery.Suggestions))
	return meta, values, nil
}
