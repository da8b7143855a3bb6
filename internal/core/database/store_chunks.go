package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/planora-ai/planora/internal/models"
)

// ClearDocumentIngestion deletes the document's chunks, their embeddings and
// its metadata record in one transaction. It is the only place a metadata
// record is ever removed; the pipeline runs it before extraction so the
// freshly written DocumentMetadata survives the rest of the ingestion.
func (c *DatabaseClient) ClearDocumentIngestion(ctx context.Context, documentID string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	cleanup := []string{
		`DELETE FROM chunk_embeddings WHERE chunk_id IN (SELECT id FROM document_chunks WHERE document_id = $1)`,
		`DELETE FROM document_chunks WHERE document_id = $1`,
		`DELETE FROM document_metadata WHERE document_id = $1`,
	}
	for _, q := range cleanup {
		if _, err := tx.ExecContext(ctx, q, documentID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("clear previous ingestion: %w", err)
		}
	}
	return tx.Commit()
}

// ReplaceDocumentChunks deletes the document's existing chunks and their
// embeddings, then inserts the new batch, all in one transaction: retrieval
// observes either the old chunk set or the new one, never a mix. The
// document_metadata record is left alone.
func (c *DatabaseClient) ReplaceDocumentChunks(ctx context.Context, documentID string, chunks []models.Chunk) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	cleanup := []string{
		`DELETE FROM chunk_embeddings WHERE chunk_id IN (SELECT id FROM document_chunks WHERE document_id = $1)`,
		`DELETE FROM document_chunks WHERE document_id = $1`,
	}
	for _, q := range cleanup {
		if _, err := tx.ExecContext(ctx, q, documentID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("clear previous chunks: %w", err)
		}
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, sequence_index, chunk_type, content, section_title,
			 subsection_title, hierarchy_level, word_count, char_count, metadata_fields, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		fields, err := json.Marshal(ch.MetadataFields)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("marshal metadata fields: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ID, documentID, ch.SequenceIndex, ch.ChunkType, ch.Content, ch.SectionTitle,
			ch.SubsectionTitle, ch.HierarchyLevel, ch.WordCount, ch.CharCount, fields,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

const chunkColumns = `id, document_id, sequence_index, chunk_type, content, section_title,
	subsection_title, hierarchy_level, word_count, char_count, metadata_fields, created_at`

func scanChunk(row interface{ Scan(...any) error }) (models.Chunk, error) {
	var (
		ch        models.Chunk
		rawFields []byte
	)
	err := row.Scan(
		&ch.ID, &ch.DocumentID, &ch.SequenceIndex, &ch.ChunkType, &ch.Content, &ch.SectionTitle,
		&ch.SubsectionTitle, &ch.HierarchyLevel, &ch.WordCount, &ch.CharCount, &rawFields, &ch.CreatedAt,
	)
	if err != nil {
		return ch, err
	}
	if len(rawFields) > 0 {
		if err := json.Unmarshal(rawFields, &ch.MetadataFields); err != nil {
			return ch, fmt.Errorf("unmarshal metadata fields: %w", err)
		}
	}
	return ch, nil
}

func (c *DatabaseClient) GetChunksByDocument(ctx context.Context, documentID string) ([]models.Chunk, error) {
	q := fmt.Sprintf(`
		SELECT %s
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY sequence_index ASC
	`, chunkColumns)
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Chunk
	for rows.Next() {
		ch, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// ListChunksWithoutEmbedding returns the document's chunks that have no
// embedding row for the given model yet, in sequence order.
func (c *DatabaseClient) ListChunksWithoutEmbedding(ctx context.Context, documentID, model string) ([]models.Chunk, error) {
	q := fmt.Sprintf(`
		SELECT %s
		FROM document_chunks ch
		WHERE ch.document_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM chunk_embeddings e
			WHERE e.chunk_id = ch.id AND e.model = $2
		  )
		ORDER BY ch.sequence_index ASC
	`, prefixColumns("ch", chunkColumns))
	rows, err := c.db.QueryContext(ctx, q, documentID, model)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Chunk
	for rows.Next() {
		ch, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// InsertChunkEmbeddings inserts embedding rows in a single transaction. The
// unique (chunk_id, model) index makes concurrent backfills converge.
func (c *DatabaseClient) InsertChunkEmbeddings(ctx context.Context, embeddings []models.ChunkEmbedding) error {
	if len(embeddings) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO chunk_embeddings (id, chunk_id, model, dim, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (chunk_id, model) DO NOTHING
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range embeddings {
		e := &embeddings[i]
		vec := pgvector.NewVector(e.Embedding)
		if _, err := stmt.ExecContext(ctx, e.ID, e.ChunkID, e.Model, e.Dim, vec); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// SearchChunks ranks embedded chunks in scope by cosine similarity to the
// query vector. Ties are broken by sequence index so identical scores come
// back in document order.
func (c *DatabaseClient) SearchChunks(ctx context.Context, scope models.SearchScope, queryVec []float32, model string, limit int) ([]models.ScoredChunk, error) {
	if scope.CollectionID == "" {
		return nil, fmt.Errorf("search requires a collection scope")
	}
	if limit <= 0 {
		limit = 5
	}

	vec := pgvector.NewVector(queryVec)
	args := []any{scope.CollectionID, model, vec}

	var docFilter string
	if len(scope.DocumentIDs) > 0 {
		placeholders := make([]string, len(scope.DocumentIDs))
		for i, id := range scope.DocumentIDs {
			args = append(args, id)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		docFilter = fmt.Sprintf("AND ch.document_id IN (%s)", strings.Join(placeholders, ", "))
	}

	args = append(args, limit)
	q := fmt.Sprintf(`
		SELECT %s, 1 - (e.embedding <=> $3) AS similarity
		FROM document_chunks ch
		JOIN chunk_embeddings e ON e.chunk_id = ch.id AND e.model = $2
		JOIN documents d ON d.id = ch.document_id
		WHERE d.collection_id = $1
		%s
		ORDER BY e.embedding <=> $3 ASC, ch.sequence_index ASC
		LIMIT $%d
	`, prefixColumns("ch", chunkColumns), docFilter, len(args))

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScoredChunk
	for rows.Next() {
		var (
			sc        models.ScoredChunk
			rawFields []byte
		)
		if err := rows.Scan(
			&sc.ID, &sc.DocumentID, &sc.SequenceIndex, &sc.ChunkType, &sc.Content, &sc.SectionTitle,
			&sc.SubsectionTitle, &sc.HierarchyLevel, &sc.WordCount, &sc.CharCount, &rawFields, &sc.CreatedAt,
			&sc.Similarity,
		); err != nil {
			return nil, err
		}
		if len(rawFields) > 0 {
			if err := json.Unmarshal(rawFields, &sc.MetadataFields); err != nil {
				return nil, fmt.Errorf("unmarshal metadata fields: %w", err)
			}
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// prefixColumns qualifies each column in a comma-separated list with a table
// alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
