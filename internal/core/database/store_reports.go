package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/planora-ai/planora/internal/models"
)

func (c *DatabaseClient) GetReportTemplateByID(ctx context.Context, id string) (*models.ReportTemplate, error) {
	const q = `
		SELECT id, name, description, sections, created_at
		FROM report_templates WHERE id = $1
	`
	var (
		tpl         models.ReportTemplate
		rawSections []byte
	)
	err := c.db.QueryRowContext(ctx, q, id).Scan(&tpl.ID, &tpl.Name, &tpl.Description, &rawSections, &tpl.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rawSections, &tpl.Sections); err != nil {
		return nil, fmt.Errorf("unmarshal template sections: %w", err)
	}
	return &tpl, nil
}

func (c *DatabaseClient) ListReportTemplates(ctx context.Context) ([]models.ReportTemplate, error) {
	const q = `
		SELECT id, name, description, sections, created_at
		FROM report_templates
		ORDER BY name ASC
	`
	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ReportTemplate
	for rows.Next() {
		var (
			tpl         models.ReportTemplate
			rawSections []byte
		)
		if err := rows.Scan(&tpl.ID, &tpl.Name, &tpl.Description, &rawSections, &tpl.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(rawSections, &tpl.Sections); err != nil {
			return nil, fmt.Errorf("unmarshal template sections: %w", err)
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) CreateReportGeneration(ctx context.Context, rep *models.ReportGeneration) error {
	if rep == nil {
		return errors.New("nil report generation")
	}
	const q = `
		INSERT INTO report_generations
			(id, user_id, collection_id, template_id, topic, address, context,
			 status, progress, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q,
		rep.ID, rep.UserID, rep.CollectionID, rep.TemplateID, rep.Topic, rep.Address, rep.Context, rep.Status)
	return err
}

func (c *DatabaseClient) GetReportGenerationByID(ctx context.Context, id string) (*models.ReportGeneration, error) {
	const q = `
		SELECT id, user_id, collection_id, template_id, topic, COALESCE(address, ''),
		       COALESCE(context, ''), status, progress, COALESCE(content, ''),
		       COALESCE(output_url, ''), COALESCE(error_message, ''), created_at, updated_at
		FROM report_generations WHERE id = $1
	`
	var rep models.ReportGeneration
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&rep.ID, &rep.UserID, &rep.CollectionID, &rep.TemplateID, &rep.Topic, &rep.Address,
		&rep.Context, &rep.Status, &rep.Progress, &rep.Content,
		&rep.OutputURL, &rep.ErrorMessage, &rep.CreatedAt, &rep.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

func (c *DatabaseClient) UpdateReportStatus(ctx context.Context, id, status, errMsg string) error {
	const q = `
		UPDATE report_generations
		SET status = $2, error_message = NULLIF($3, ''), updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status, errMsg)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("report not found: %s", id)
	}
	return nil
}

// SetReportProgress never lets the stored value move backwards; a slow
// writer that lost the race is simply a no-op.
func (c *DatabaseClient) SetReportProgress(ctx context.Context, id string, progress int) error {
	const q = `
		UPDATE report_generations
		SET progress = GREATEST(progress, $2), updated_at = now()
		WHERE id = $1
	`
	_, err := c.db.ExecContext(ctx, q, id, progress)
	return err
}

func (c *DatabaseClient) SetReportContent(ctx context.Context, id, content, status string) error {
	const q = `
		UPDATE report_generations
		SET content = $2, status = $3, progress = 100, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, content, status)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("report not found: %s", id)
	}
	return nil
}

// InsertReportSections writes all rows in a single transaction: initiation
// is all-or-nothing.
func (c *DatabaseClient) InsertReportSections(ctx context.Context, sections []models.ReportSection) error {
	if len(sections) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO report_sections
			(id, report_id, section_title, subsection_title, section_order, query,
			 chunk_ids, content, word_count, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range sections {
		s := &sections[i]
		chunkIDs, err := json.Marshal(s.ChunkIDs)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("marshal chunk ids: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			s.ID, s.ReportID, s.SectionTitle, s.SubsectionTitle, s.SectionOrder, s.Query,
			chunkIDs, s.Content, s.WordCount, s.Status,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) ListReportSections(ctx context.Context, reportID string) ([]models.ReportSection, error) {
	const q = `
		SELECT id, report_id, section_title, COALESCE(subsection_title, ''), section_order,
		       query, chunk_ids, COALESCE(content, ''), word_count, status,
		       COALESCE(error_message, ''), created_at, updated_at
		FROM report_sections
		WHERE report_id = $1
		ORDER BY section_order ASC
	`
	rows, err := c.db.QueryContext(ctx, q, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ReportSection
	for rows.Next() {
		var (
			s           models.ReportSection
			rawChunkIDs []byte
		)
		if err := rows.Scan(
			&s.ID, &s.ReportID, &s.SectionTitle, &s.SubsectionTitle, &s.SectionOrder,
			&s.Query, &rawChunkIDs, &s.Content, &s.WordCount, &s.Status,
			&s.ErrorMessage, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if len(rawChunkIDs) > 0 {
			if err := json.Unmarshal(rawChunkIDs, &s.ChunkIDs); err != nil {
				return nil, fmt.Errorf("unmarshal chunk ids: %w", err)
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateReportSection(ctx context.Context, section *models.ReportSection) error {
	if section == nil {
		return errors.New("nil report section")
	}
	chunkIDs, err := json.Marshal(section.ChunkIDs)
	if err != nil {
		return fmt.Errorf("marshal chunk ids: %w", err)
	}
	const q = `
		UPDATE report_sections
		SET chunk_ids = $2, content = $3, word_count = $4, status = $5,
		    error_message = NULLIF($6, ''), updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q,
		section.ID, chunkIDs, section.Content, section.WordCount, section.Status, section.ErrorMessage)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("report section not found: %s", section.ID)
	}
	return nil
}
