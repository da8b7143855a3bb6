package models

import (
	"time"
)

// Processing statuses shared by documents, reports and report sections.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Metadata field types supported by the schema registry.
const (
	FieldTypeText    = "text"
	FieldTypeDate    = "date"
	FieldTypeNumber  = "number"
	FieldTypeBoolean = "boolean"
	FieldTypeArray   = "array"
)

// Chunk content types.
const (
	ChunkTypeText  = "text"
	ChunkTypeTable = "table"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Collection groups documents owned by a user; it is the retrieval scope.
type Collection struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Document represents one ingested source file.
type Document struct {
	ID           string    `db:"id" json:"id"`
	CollectionID string    `db:"collection_id" json:"collection_id"`
	FileName     string    `db:"file_name" json:"file_name"`
	StorageURL   string    `db:"storage_url" json:"storage_url"`
	ContentType  string    `db:"content_type" json:"content_type"`
	Status       string    `db:"status" json:"status"` // pending | processing | completed | failed
	ErrorMessage string    `db:"error_message" json:"error_message,omitempty"`
	ChunkCount   int       `db:"chunk_count" json:"chunk_count"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// MetadataFieldDefinition is one named, typed field in the shared registry.
// Definitions are append-only: once created they are never deleted, only
// their usage statistics move.
type MetadataFieldDefinition struct {
	ID                 string    `db:"id" json:"id"`
	Name               string    `db:"name" json:"name"`
	NormalizedName     string    `db:"normalized_name" json:"normalized_name"`
	FieldType          string    `db:"field_type" json:"field_type"` // text | date | number | boolean | array
	Category           string    `db:"category" json:"category"`
	ExtractionPatterns []string  `db:"extraction_patterns" json:"extraction_patterns,omitempty"`
	OccurrenceCount    int       `db:"occurrence_count" json:"occurrence_count"`
	AvgConfidence      float64   `db:"avg_confidence" json:"avg_confidence"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// DocumentMetadata is the one-per-document extraction record.
type DocumentMetadata struct {
	ID                string    `db:"id" json:"id"`
	DocumentID        string    `db:"document_id" json:"document_id"`
	ExtractionMethod  string    `db:"extraction_method" json:"extraction_method"`
	OverallConfidence float64   `db:"overall_confidence" json:"overall_confidence"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// MetadataFieldValue is one extracted (field, value) tuple with provenance.
type MetadataFieldValue struct {
	ID                 string  `db:"id" json:"id"`
	DocumentMetadataID string  `db:"document_metadata_id" json:"document_metadata_id"`
	FieldDefinitionID  string  `db:"field_definition_id" json:"field_definition_id"`
	FieldName          string  `db:"field_name" json:"field_name"`
	RawValue           string  `db:"raw_value" json:"raw_value"`
	Confidence         float64 `db:"confidence" json:"confidence"`
	SourcePage         int     `db:"source_page" json:"source_page,omitempty"`
	ExtractionContext  string  `db:"extraction_context" json:"extraction_context,omitempty"`
	Validated          bool    `db:"validated" json:"validated"`
}

// Chunk is an ordered content unit of a document. Chunks are written in one
// batch at chunking time and never mutated afterwards.
type Chunk struct {
	ID              string    `db:"id" json:"id"`
	DocumentID      string    `db:"document_id" json:"document_id"`
	SequenceIndex   int       `db:"sequence_index" json:"sequence_index"`
	ChunkType       string    `db:"chunk_type" json:"chunk_type"` // text | table
	Content         string    `db:"content" json:"content"`
	SectionTitle    string    `db:"section_title" json:"section_title"`
	SubsectionTitle string    `db:"subsection_title" json:"subsection_title,omitempty"`
	HierarchyLevel  int       `db:"hierarchy_level" json:"hierarchy_level"`
	WordCount       int       `db:"word_count" json:"word_count"`
	CharCount       int       `db:"char_count" json:"char_count"`
	MetadataFields  []string  `db:"metadata_fields" json:"metadata_fields,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// ChunkEmbedding is one vector per (chunk, model) pair. A chunk without an
// embedding row for the active model is not yet retrievable.
type ChunkEmbedding struct {
	ID        string    `db:"id" json:"id"`
	ChunkID   string    `db:"chunk_id" json:"chunk_id"`
	Model     string    `db:"model" json:"model"`
	Dim       int       `db:"dim" json:"dim"`
	Embedding []float32 `db:"embedding" json:"embedding"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// TemplateSection is one top-level section of a report template with its
// ordered subsection titles.
type TemplateSection struct {
	Title       string   `json:"title"`
	Subsections []string `json:"subsections,omitempty"`
}

// ReportTemplate is a named hierarchical report structure.
type ReportTemplate struct {
	ID          string            `db:"id" json:"id"`
	Name        string            `db:"name" json:"name"`
	Description string            `db:"description" json:"description"`
	Sections    []TemplateSection `db:"sections" json:"sections"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
}

// ReportGeneration is one report request and its lifecycle state.
type ReportGeneration struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	CollectionID string    `db:"collection_id" json:"collection_id"`
	TemplateID   string    `db:"template_id" json:"template_id"`
	Topic        string    `db:"topic" json:"topic"`
	Address      string    `db:"address" json:"address,omitempty"`
	Context      string    `db:"context" json:"context,omitempty"`
	Status       string    `db:"status" json:"status"`     // pending | processing | completed | failed
	Progress     int       `db:"progress" json:"progress"` // 0-100, derived from sections
	Content      string    `db:"content" json:"content,omitempty"`
	OutputURL    string    `db:"output_url" json:"output_url,omitempty"`
	ErrorMessage string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ReportSection is one (section, optional subsection) unit of a report,
// retrieved and generated independently of its siblings.
type ReportSection struct {
	ID              string    `db:"id" json:"id"`
	ReportID        string    `db:"report_id" json:"report_id"`
	SectionTitle    string    `db:"section_title" json:"section_title"`
	SubsectionTitle string    `db:"subsection_title" json:"subsection_title,omitempty"`
	SectionOrder    int       `db:"section_order" json:"section_order"`
	Query           string    `db:"query" json:"query"`
	ChunkIDs        []string  `db:"chunk_ids" json:"chunk_ids,omitempty"`
	Content         string    `db:"content" json:"content,omitempty"`
	WordCount       int       `db:"word_count" json:"word_count"`
	Status          string    `db:"status" json:"status"` // pending | processing | completed | failed
	ErrorMessage    string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// SearchScope narrows retrieval to a collection, optionally to specific
// documents within it.
type SearchScope struct {
	CollectionID string   `json:"collection_id"`
	DocumentIDs  []string `json:"document_ids,omitempty"`
}

// ScoredChunk is a chunk with its similarity to a query embedding.
type ScoredChunk struct {
	Chunk
	Similarity float64 `json:"similarity"`
}
