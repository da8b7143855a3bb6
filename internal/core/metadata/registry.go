// Package metadata discovers structured fields in raw document text and
// reconciles them against the shared schema registry. The registry is
// append-only: field definitions are created once, keyed by normalised name,
// and accumulate occurrence statistics over time.
package metadata

import (
	"context"
	"regexp"
	"strings"

	"github.com/planora-ai/planora/internal/models"
)

// Store is the slice of persistence the registry and extraction service
// need. core.Store satisfies it.
type Store interface {
	ListFieldDefinitions(ctx context.Context) ([]models.MetadataFieldDefinition, error)
	FindOrCreateFieldDefinition(ctx context.Context, def *models.MetadataFieldDefinition, confidence float64) (*models.MetadataFieldDefinition, error)
	RecordFieldOccurrence(ctx context.Context, fieldID string, confidence float64) error
	InsertDocumentMetadata(ctx context.Context, meta *models.DocumentMetadata, values []models.MetadataFieldValue) error
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeFieldName maps arbitrary field names onto the registry key space:
// lower snake_case with punctuation collapsed, so "Application Ref." and
// "application_ref" land on the same definition.
func NormalizeFieldName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = nonAlnum.ReplaceAllString(n, "_")
	return strings.Trim(n, "_")
}

// Registry wraps the persisted field catalog with fuzzy reconciliation.
// Creation is idempotent: concurrent extractions racing to insert the same
// field converge on one row via the store's find-or-create.
type Registry struct {
	store Store
}

func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// Snapshot returns the current catalog for prompt building and matching.
func (r *Registry) Snapshot(ctx context.Context) ([]models.MetadataFieldDefinition, error) {
	return r.store.ListFieldDefinitions(ctx)
}

// Match finds the registry definition a field name refers to, or nil.
func (r *Registry) Match(name string, defs []models.MetadataFieldDefinition) *models.MetadataFieldDefinition {
	return MatchField(name, defs)
}

// MatchField finds the definition a field name refers to, or nil. Exact
// normalised match wins; otherwise substring containment or a small edit
// distance counts as a near-duplicate.
func MatchField(name string, defs []models.MetadataFieldDefinition) *models.MetadataFieldDefinition {
	norm := NormalizeFieldName(name)
	if norm == "" {
		return nil
	}
	for i := range defs {
		if defs[i].NormalizedName == norm {
			return &defs[i]
		}
	}
	for i := range defs {
		if isNearDuplicate(norm, defs[i].NormalizedName) {
			return &defs[i]
		}
	}
	return nil
}

// RecordMatch bumps usage statistics for a matched definition.
func (r *Registry) RecordMatch(ctx context.Context, fieldID string, confidence float64) error {
	return r.store.RecordFieldOccurrence(ctx, fieldID, confidence)
}

// Register adds a newly suggested field to the catalog, unless a fuzzy
// duplicate already exists, in which case the duplicate gets the occurrence
// instead and is returned.
func (r *Registry) Register(ctx context.Context, s NewFieldSuggestion, defs []models.MetadataFieldDefinition) (*models.MetadataFieldDefinition, error) {
	if existing := r.Match(s.Name, defs); existing != nil {
		if err := r.RecordMatch(ctx, existing.ID, s.Confidence); err != nil {
			return nil, err
		}
		return existing, nil
	}

	def := &models.MetadataFieldDefinition{
		Name:           strings.TrimSpace(s.Name),
		NormalizedName: NormalizeFieldName(s.Name),
		FieldType:      s.FieldType,
		Category:       s.Category,
	}
	return r.store.FindOrCreateFieldDefinition(ctx, def, s.Confidence)
}

// isNearDuplicate treats token containment ("site_area" vs "site_area_ha")
// and an edit distance of at most 2 on reasonably long names as duplicates.
func isNearDuplicate(a, b string) bool {
	if a == b {
		return true
	}
	if len(a) >= 4 && len(b) >= 4 && (strings.Contains(a, b) || strings.Contains(b, a)) {
		return true
	}
	if len(a) >= 6 && len(b) >= 6 && levenshtein(a, b) <= 2 {
		return true
	}
	return false
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min3(cur[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
