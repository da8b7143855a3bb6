package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planora-ai/planora/internal/models"
)

type fakeLLM struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeLLM) Generate(_ context.Context, _ string, userPrompt string) (string, error) {
	f.prompts = append(f.prompts, userPrompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

const sampleText = "Planning application 23/01234/FUL for 12 dwellings at Mill Lane was validated on 3 March 2023."

func TestDiscoverMatchesExistingFields(t *testing.T) {
	llm := &fakeLLM{response: `{
		"fields": [
			{"name": "Application Reference", "matched_field": "application_reference",
			 "value": "23/01234/FUL", "confidence": 0.95, "page": 1,
			 "context": "Planning application 23/01234/FUL for 12 dwellings"}
		],
		"new_fields": []
	}`}
	ex := NewExtractor(llm, ModelScorer{}, 0)

	d, err := ex.Discover(context.Background(), sampleText, defs("application_reference"))
	require.NoError(t, err)
	require.Len(t, d.Fields, 1)
	assert.Empty(t, d.Suggestions)

	f := d.Fields[0]
	assert.Equal(t, "application_reference", f.Definition.NormalizedName)
	assert.Equal(t, "23/01234/FUL", f.RawValue)
	assert.InDelta(t, 0.95, f.Confidence, 1e-9)
	assert.Equal(t, 1, f.SourcePage)
}

func TestDiscoverUnknownFieldBecomesSuggestion(t *testing.T) {
	llm := &fakeLLM{response: `{
		"fields": [],
		"new_fields": [
			{"name": "Flood Zone", "type": "text", "category": "constraints",
			 "example_value": "Zone 2", "confidence": 0.8, "page": 4, "context": "within Flood Zone 2"}
		]
	}`}
	ex := NewExtractor(llm, ModelScorer{}, 0)

	d, err := ex.Discover(context.Background(), sampleText, nil)
	require.NoError(t, err)
	assert.Empty(t, d.Fields)
	require.Len(t, d.Suggestions, 1)
	assert.Equal(t, "Flood Zone", d.Suggestions[0].Name)
	assert.Equal(t, models.FieldTypeText, d.Suggestions[0].FieldType)
}

func TestDiscoverModelClaimsMatchRegistryDisagrees(t *testing.T) {
	// The model labels a field as matched but the registry has no such
	// definition; it must come back as a suggestion, not be dropped.
	llm := &fakeLLM{response: `{
		"fields": [
			{"name": "Case Officer", "matched_field": "case_officer",
			 "value": "J. Smith", "confidence": 0.7, "page": 2, "context": "Case officer: J. Smith"}
		],
		"new_fields": []
	}`}
	ex := NewExtractor(llm, ModelScorer{}, 0)

	d, err := ex.Discover(context.Background(), sampleText, defs("application_reference"))
	require.NoError(t, err)
	assert.Empty(t, d.Fields)
	require.Len(t, d.Suggestions, 1)
	assert.Equal(t, "Case Officer", d.Suggestions[0].Name)
	assert.Equal(t, "J. Smith", d.Suggestions[0].ExampleValue)
}

func TestDiscoverClampsConfidence(t *testing.T) {
	llm := &fakeLLM{response: `{
		"fields": [
			{"name": "x_ref", "matched_field": "x_ref", "value": "a", "confidence": 1.7},
			{"name": "x_ref", "matched_field": "x_ref", "value": "b", "confidence": -0.2}
		],
		"new_fields": []
	}`}
	ex := NewExtractor(llm, ModelScorer{}, 0)

	d, err := ex.Discover(context.Background(), sampleText, defs("x_ref"))
	require.NoError(t, err)
	require.Len(t, d.Fields, 2)
	assert.Equal(t, 1.0, d.Fields[0].Confidence)
	assert.Equal(t, 0.0, d.Fields[1].Confidence)
}

func TestDiscoverMalformedOutputFailsWhole(t *testing.T) {
	llm := &fakeLLM{response: "Sure! Here are the fields I found:\n- reference: 23/01234"}
	ex := NewExtractor(llm, ModelScorer{}, 0)

	_, err := ex.Discover(context.Background(), sampleText, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedOutput)
}

func TestDiscoverGenerationErrorPropagates(t *testing.T) {
	boom := errors.New("rate limited")
	ex := NewExtractor(&fakeLLM{err: boom}, ModelScorer{}, 0)

	_, err := ex.Discover(context.Background(), sampleText, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestDiscoverZeroFieldsIsValid(t *testing.T) {
	llm := &fakeLLM{response: `{"fields": [], "new_fields": []}`}
	ex := NewExtractor(llm, ModelScorer{}, 0)

	d, err := ex.Discover(context.Background(), sampleText, nil)
	require.NoError(t, err)
	assert.Empty(t, d.Fields)
	assert.Empty(t, d.Suggestions)
}

func TestDiscoverFencedJSONAccepted(t *testing.T) {
	llm := &fakeLLM{response: "```json\n{\"fields\": [], \"new_fields\": []}\n```"}
	ex := NewExtractor(llm, ModelScorer{}, 0)

	_, err := ex.Discover(context.Background(), sampleText, nil)
	require.NoError(t, err)
}

func TestDiscoverTruncatesLongText(t *testing.T) {
	llm := &fakeLLM{response: `{"fields": [], "new_fields": []}`}
	ex := NewExtractor(llm, ModelScorer{}, 100)

	long := make([]rune, 500)
	for i := range long {
		long[i] = 'a'
	}
	_, err := ex.Discover(context.Background(), string(long), nil)
	require.NoError(t, err)
	require.Len(t, llm.prompts, 1)
	// Prompt carries catalog header plus at most maxChars of document text.
	assert.Less(t, len(llm.prompts[0]), 300)
}

func TestHeuristicScorer(t *testing.T) {
	s := HeuristicScorer{}
	assert.Equal(t, 0.9, s.Score(0, "Zone 2", "the site lies within flood zone 2"))
	assert.Equal(t, 0.6, s.Score(0, "Zone 9", "no such value here"))
	assert.Equal(t, 0.0, s.Score(0, "   ", "anything"))
}
