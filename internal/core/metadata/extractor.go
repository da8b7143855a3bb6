package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/planora-ai/planora/internal/core"
	"github.com/planora-ai/planora/internal/models"
)

// ErrMalformedOutput marks unparseable model output. The whole extraction
// fails for that document; partial metadata is never accepted.
var ErrMalformedOutput = errors.New("metadata: malformed model output")

// DiscoveredField is a value matched to an existing registry definition.
type DiscoveredField struct {
	Definition *models.MetadataFieldDefinition
	Name       string
	RawValue   string
	Confidence float64
	SourcePage int
	Context    string
}

// NewFieldSuggestion proposes a field the registry does not know yet.
type NewFieldSuggestion struct {
	Name         string
	FieldType    string
	Category     string
	ExampleValue string
	Confidence   float64
	SourcePage   int
	Context      string
}

// Discovery is the result of one extraction pass. Zero fields is a valid
// outcome, not an error.
type Discovery struct {
	Fields      []DiscoveredField
	Suggestions []NewFieldSuggestion
}

// Extractor drives model-assisted field discovery over document text.
type Extractor struct {
	llm      core.LLMProvider
	scorer   Scorer
	maxChars int
}

func NewExtractor(llm core.LLMProvider, scorer Scorer, maxChars int) *Extractor {
	if scorer == nil {
		scorer = ModelScorer{}
	}
	if maxChars <= 0 {
		maxChars = 24000
	}
	return &Extractor{llm: llm, scorer: scorer, maxChars: maxChars}
}

const extractionSystemPrompt = `You extract structured metadata from town-planning documents (planning applications, officer reports, appeal decisions, policy documents).
Respond with a single JSON object and nothing else, matching:
{"fields":[{"name":"...","matched_field":"...","value":"...","confidence":0.0,"page":1,"context":"..."}],
 "new_fields":[{"name":"...","type":"text|date|number|boolean|array","category":"...","example_value":"...","confidence":0.0,"page":1,"context":"..."}]}
"matched_field" must be the normalized name of a known field when the value belongs to one; otherwise put the field in "new_fields".
"context" is the surrounding sentence the value was taken from. Confidence is between 0 and 1.`

// Discover finds field values in text and reconciles them against the known
// definitions. Fields without a registry match are returned as suggestions.
func (e *Extractor) Discover(ctx context.Context, text string, existing []models.MetadataFieldDefinition) (*Discovery, error) {
	if strings.TrimSpace(text) == "" {
		return &Discovery{}, nil
	}
	runes := []rune(text)
	if len(runes) > e.maxChars {
		text = string(runes[:e.maxChars])
	}

	raw, err := e.llm.Generate(ctx, extractionSystemPrompt, buildExtractionPrompt(text, existing))
	if err != nil {
		return nil, fmt.Errorf("metadata: generation failed: %w", err)
	}

	wire, err := parseExtractionOutput(raw)
	if err != nil {
		return nil, err
	}

	d := &Discovery{}
	for _, f := range wire.Fields {
		if strings.TrimSpace(f.Name) == "" || strings.TrimSpace(f.Value) == "" {
			continue
		}
		conf := e.scorer.Score(f.Confidence, f.Value, f.Context)

		def := (*models.MetadataFieldDefinition)(nil)
		if f.MatchedField != "" {
			def = MatchField(f.MatchedField, existing)
		}
		if def == nil {
			def = MatchField(f.Name, existing)
		}
		if def == nil {
			// The model thought this matched but the registry disagrees;
			// treat it as a suggestion so nothing is silently dropped.
			d.Suggestions = append(d.Suggestions, NewFieldSuggestion{
				Name:         f.Name,
				FieldType:    models.FieldTypeText,
				ExampleValue: f.Value,
				Confidence:   conf,
				SourcePage:   f.Page,
				Context:      f.Context,
			})
			continue
		}
		d.Fields = append(d.Fields, DiscoveredField{
			Definition: def,
			Name:       def.Name,
			RawValue:   f.Value,
			Confidence: conf,
			SourcePage: f.Page,
			Context:    f.Context,
		})
	}

	for _, nf := range wire.NewFields {
		if strings.TrimSpace(nf.Name) == "" {
			continue
		}
		d.Suggestions = append(d.Suggestions, NewFieldSuggestion{
			Name:         nf.Name,
			FieldType:    validFieldType(nf.Type),
			Category:     nf.Category,
			ExampleValue: nf.ExampleValue,
			Confidence:   e.scorer.Score(nf.Confidence, nf.ExampleValue, nf.Context),
			SourcePage:   nf.Page,
			Context:      nf.Context,
		})
	}
	return d, nil
}

type wireField struct {
	Name         string  `json:"name"`
	MatchedField string  `json:"matched_field"`
	Value        string  `json:"value"`
	Confidence   float64 `json:"confidence"`
	Page         int     `json:"page"`
	Context      string  `json:"context"`
}

type wireNewField struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Category     string  `json:"category"`
	ExampleValue string  `json:"example_value"`
	Confidence   float64 `json:"confidence"`
	Page         int     `json:"page"`
	Context      string  `json:"context"`
}

type wireExtraction struct {
	Fields    []wireField    `json:"fields"`
	NewFields []wireNewField `json:"new_fields"`
}

// parseExtractionOutput is strict: anything that does not decode as the
// expected JSON object fails the extraction.
func parseExtractionOutput(raw string) (*wireExtraction, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var out wireExtraction
	dec := json.NewDecoder(strings.NewReader(s))
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return &out, nil
}

func buildExtractionPrompt(text string, existing []models.MetadataFieldDefinition) string {
	var b strings.Builder
	b.WriteString("Known metadata fields (normalized name, type, category):\n")
	if len(existing) == 0 {
		b.WriteString("(none yet)\n")
	}
	for _, f := range existing {
		fmt.Fprintf(&b, "- %s (%s, %s)\n", f.NormalizedName, f.FieldType, f.Category)
	}
	b.WriteString("\nDocument text:\n")
	b.WriteString(text)
	return b.String()
}

func validFieldType(t string) string {
	switch t {
	case models.FieldTypeText, models.FieldTypeDate, models.FieldTypeNumber,
		models.FieldTypeBoolean, models.FieldTypeArray:
		return t
	default:
		return models.FieldTypeText
	}
}
