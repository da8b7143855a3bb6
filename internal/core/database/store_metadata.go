package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/planora-ai/planora/internal/models"
)

// FindOrCreateFieldDefinition races safely: the unique index on
// normalized_name plus ON CONFLICT folds concurrent inserts of the same
// field into one row, updating its usage statistics instead.
func (c *DatabaseClient) FindOrCreateFieldDefinition(ctx context.Context, def *models.MetadataFieldDefinition, confidence float64) (*models.MetadataFieldDefinition, error) {
	if def == nil {
		return nil, errors.New("nil field definition")
	}
	patterns, err := json.Marshal(def.ExtractionPatterns)
	if err != nil {
		return nil, fmt.Errorf("marshal extraction patterns: %w", err)
	}

	const q = `
		INSERT INTO metadata_field_definitions
			(id, name, normalized_name, field_type, category, extraction_patterns,
			 occurrence_count, avg_confidence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7, now(), now())
		ON CONFLICT (normalized_name) DO UPDATE SET
			occurrence_count = metadata_field_definitions.occurrence_count + 1,
			avg_confidence = (metadata_field_definitions.avg_confidence * metadata_field_definitions.occurrence_count + EXCLUDED.avg_confidence)
				/ (metadata_field_definitions.occurrence_count + 1),
			updated_at = now()
		RETURNING id, name, normalized_name, field_type, category, extraction_patterns,
		          occurrence_count, avg_confidence, created_at, updated_at
	`
	var (
		out     models.MetadataFieldDefinition
		rawPats []byte
	)
	err = c.db.QueryRowContext(ctx, q,
		def.ID, def.Name, def.NormalizedName, def.FieldType, def.Category, patterns, confidence,
	).Scan(
		&out.ID, &out.Name, &out.NormalizedName, &out.FieldType, &out.Category, &rawPats,
		&out.OccurrenceCount, &out.AvgConfidence, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(rawPats) > 0 {
		if err := json.Unmarshal(rawPats, &out.ExtractionPatterns); err != nil {
			return nil, fmt.Errorf("unmarshal extraction patterns: %w", err)
		}
	}
	return &out, nil
}

func (c *DatabaseClient) RecordFieldOccurrence(ctx context.Context, fieldID string, confidence float64) error {
	const q = `
		UPDATE metadata_field_definitions
		SET occurrence_count = occurrence_count + 1,
		    avg_confidence = (avg_confidence * occurrence_count + $2) / (occurrence_count + 1),
		    updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, fieldID, confidence)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("field definition not found: %s", fieldID)
	}
	return nil
}

func (c *DatabaseClient) ListFieldDefinitions(ctx context.Context) ([]models.MetadataFieldDefinition, error) {
	const q = `
		SELECT id, name, normalized_name, field_type, category, extraction_patterns,
		       occurrence_count, avg_confidence, created_at, updated_at
		FROM metadata_field_definitions
		ORDER BY occurrence_count DESC, normalized_name ASC
	`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MetadataFieldDefinition
	for rows.Next() {
		var (
			d       models.MetadataFieldDefinition
			rawPats []byte
		)
		if err := rows.Scan(
			&d.ID, &d.Name, &d.NormalizedName, &d.FieldType, &d.Category, &rawPats,
			&d.OccurrenceCount, &d.AvgConfidence, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if len(rawPats) > 0 {
			if err := json.Unmarshal(rawPats, &d.ExtractionPatterns); err != nil {
				return nil, fmt.Errorf("unmarshal extraction patterns: %w", err)
			}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// InsertDocumentMetadata writes the extraction record and its values in one
// transaction so a document never has a metadata row without its fields.
func (c *DatabaseClient) InsertDocumentMetadata(ctx context.Context, meta *models.DocumentMetadata, values []models.MetadataFieldValue) error {
	if meta == nil {
		return errors.New("nil document metadata")
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	const metaQ = `
		INSERT INTO document_metadata (id, document_id, extraction_method, overall_confidence, created_at)
		VALUES ($1, $2, $3, $4, now())
	`
	if _, err := tx.ExecContext(ctx, metaQ, meta.ID, meta.DocumentID, meta.ExtractionMethod, meta.OverallConfidence); err != nil {
		_ = tx.Rollback()
		return err
	}

	const valQ = `
		INSERT INTO metadata_field_values
			(id, document_metadata_id, field_definition_id, field_name, raw_value,
			 confidence, source_page, extraction_context, validated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	stmt, err := tx.PrepareContext(ctx, valQ)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range values {
		v := &values[i]
		if _, err := stmt.ExecContext(ctx,
			v.ID, v.DocumentMetadataID, v.FieldDefinitionID, v.FieldName, v.RawValue,
			v.Confidence, v.SourcePage, v.ExtractionContext, v.Validated,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) GetDocumentMetadata(ctx context.Context, documentID string) (*models.DocumentMetadata, []models.MetadataFieldValue, error) {
	const metaQ = `
		SELECT id, document_id, extraction_method, overall_confidence, created_at
		FROM document_metadata
		WHERE document_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var meta models.DocumentMetadata
	err := c.db.QueryRowContext(ctx, metaQ, documentID).Scan(
		&meta.ID, &meta.DocumentID, &meta.ExtractionMethod, &meta.OverallConfidence, &meta.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	const valQ = `
		SELECT id, document_metadata_id, field_definition_id, field_name, raw_value,
		       confidence, source_page, COALESCE(extraction_context, ''), validated
		FROM metadata_field_values
		WHERE document_metadata_id = $1
		ORDER BY field_name ASC
	`
	rows, err := c.db.QueryContext(ctx, valQ, meta.ID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var values []models.MetadataFieldValue
	for rows.Next() {
		var v models.MetadataFieldValue
		if err := rows.Scan(
			&v.ID, &v.DocumentMetadataID, &v.FieldDefinitionID, &v.FieldName, &v.RawValue,
			&v.Confidence, &v.SourcePage, &v.ExtractionContext, &v.Validated,
		); err != nil {
			return nil, nil, err
		}
		values = append(values, v)
	}
	return &meta, values, rows.Err()
}
