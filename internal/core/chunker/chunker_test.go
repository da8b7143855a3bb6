package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planora-ai/planora/internal/models"
)

const planningDoc = `# Introduction

This site has been identified for residential development within the local planning framework and has been subject to several previous applications.

The proposal seeks full planning permission for the erection of twelve dwellings with associated access and landscaping works.

# Site Description

The application site comprises approximately 0.8 hectares of former agricultural land on the northern edge of the settlement boundary.

The site is bounded by mature hedgerows to the east and west, with an existing residential estate immediately to the south.
`

func TestChunkSectionLineage(t *testing.T) {
	c := New(Options{MaxChunkSize: 1500, MinParagraph: 20})
	chunks := c.Chunk(planningDoc)

	require.GreaterOrEqual(t, len(chunks), 2)

	sections := map[string]bool{}
	for _, ch := range chunks {
		sections[ch.SectionTitle] = true
	}
	assert.True(t, sections["Introduction"])
	assert.True(t, sections["Site Description"])

	for _, ch := range chunks {
		assert.Equal(t, models.ChunkTypeText, ch.ChunkType)
		assert.Equal(t, 1, ch.HierarchyLevel)
	}
}

func TestChunkDeterminism(t *testing.T) {
	c := New(Options{MaxChunkSize: 120, MinParagraph: 10})
	a := c.Chunk(planningDoc)
	b := c.Chunk(planningDoc)
	require.Equal(t, a, b)
}

func TestChunkSizeBound(t *testing.T) {
	c := New(Options{MaxChunkSize: 200, MinParagraph: 10})
	chunks := c.Chunk(planningDoc)
	require.NotEmpty(t, chunks)

	for _, ch := range chunks {
		if ch.ChunkType == models.ChunkTypeTable {
			continue
		}
		if ch.CharCount > 200 {
			// Only a single paragraph that itself exceeds the bound may
			// overflow, never a packed pair.
			assert.NotContains(t, ch.Content, "\n\n",
				"oversized chunk must be a single paragraph")
		}
	}
}

func TestChunkOversizedParagraphKeptWhole(t *testing.T) {
	long := strings.Repeat("planning assessment considerations ", 20) // ~700 chars
	text := "# Policy\n\n" + long + "\n"

	c := New(Options{MaxChunkSize: 100, MinParagraph: 10})
	chunks := c.Chunk(text)

	require.Len(t, chunks, 1)
	assert.Equal(t, strings.TrimSpace(long), chunks[0].Content)
	assert.Greater(t, chunks[0].CharCount, 100)
}

func TestChunkSequenceMonotonic(t *testing.T) {
	c := New(Options{MaxChunkSize: 120, MinParagraph: 10})
	chunks := c.Chunk(planningDoc)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.SequenceIndex)
	}
}

func TestChunkCoverage(t *testing.T) {
	// Every paragraph above the minimum length must survive chunking intact.
	c := New(Options{MaxChunkSize: 300, MinParagraph: 20})
	chunks := c.Chunk(planningDoc)

	var joined strings.Builder
	for _, ch := range chunks {
		joined.WriteString(ch.Content)
		joined.WriteString("\n")
	}
	all := joined.String()

	for _, para := range strings.Split(planningDoc, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" || strings.HasPrefix(para, "#") || len([]rune(para)) < 20 {
			continue
		}
		assert.Contains(t, all, para)
	}
}

func TestChunkTableEmittedWhole(t *testing.T) {
	text := `# Housing Supply

The table below summarises the five year housing land supply position.

| Year | Requirement | Delivery |
| ---- | ----------- | -------- |
| 2023 | 450         | 391      |
| 2024 | 450         | 472      |

Delivery recovered in the second monitoring year.
`
	c := New(Options{MaxChunkSize: 80, MinParagraph: 10})
	chunks := c.Chunk(text)

	var tables []models.Chunk
	for _, ch := range chunks {
		if ch.ChunkType == models.ChunkTypeTable {
			tables = append(tables, ch)
		}
	}
	require.Len(t, tables, 1)
	// The table exceeds MaxChunkSize but is never split.
	assert.Contains(t, tables[0].Content, "| 2023 |")
	assert.Contains(t, tables[0].Content, "| 2024 |")
	assert.Equal(t, "Housing Supply", tables[0].SectionTitle)
}

func TestChunkTableExemptFromNoiseFilter(t *testing.T) {
	text := "# Data\n\n| a | b |\n"
	c := New(Options{MaxChunkSize: 500, MinParagraph: 50})
	chunks := c.Chunk(text)

	require.Len(t, chunks, 1)
	assert.Equal(t, models.ChunkTypeTable, chunks[0].ChunkType)
}

func TestChunkNoiseFilterDropsShortParagraphs(t *testing.T) {
	text := "# Notes\n\nok.\n\nThis paragraph is comfortably longer than the noise threshold in use here.\n"
	c := New(Options{MaxChunkSize: 500, MinParagraph: 20})
	chunks := c.Chunk(text)

	require.Len(t, chunks, 1)
	assert.NotContains(t, chunks[0].Content, "ok.")
}

func TestChunkSubsectionLineage(t *testing.T) {
	text := `# Assessment

## Principle of Development

The principle of residential development is established by the allocation of the site in the adopted local plan.

## Design and Layout

The proposed layout follows the established building line along the main frontage of the street scene.
`
	c := New(Options{MaxChunkSize: 1500, MinParagraph: 20})
	chunks := c.Chunk(text)

	require.Len(t, chunks, 2)
	assert.Equal(t, "Assessment", chunks[0].SectionTitle)
	assert.Equal(t, "Principle of Development", chunks[0].SubsectionTitle)
	assert.Equal(t, 2, chunks[0].HierarchyLevel)
	assert.Equal(t, "Design and Layout", chunks[1].SubsectionTitle)
}

func TestChunkEmptyInput(t *testing.T) {
	c := New(Options{})
	assert.Empty(t, c.Chunk(""))
	assert.Empty(t, c.Chunk("\n\n\n"))
}

func TestChunkGreedyPacking(t *testing.T) {
	// Two paragraphs that fit together must share a chunk; a third that does
	// not fit starts a new one.
	p := func(i int) string {
		return fmt.Sprintf("Paragraph number %d containing roughly sixty characters here.", i)
	}
	text := p(1) + "\n\n" + p(2) + "\n\n" + p(3) + "\n"

	c := New(Options{MaxChunkSize: 130, MinParagraph: 10})
	chunks := c.Chunk(text)

	require.Len(t, chunks, 2)
	assert.Contains(t, chunks[0].Content, p(1))
	assert.Contains(t, chunks[0].Content, p(2))
	assert.Contains(t, chunks[1].Content, p(3))
}
