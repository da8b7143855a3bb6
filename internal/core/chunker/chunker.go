// Package chunker splits parsed markdown into ordered, typed content units
// with section lineage. Chunking is a pure function of (text, options):
// identical input always yields identical chunk boundaries, which retrieval
// relies on for reproducible ranking.
package chunker

import (
	"regexp"
	"strings"

	"github.com/planora-ai/planora/internal/models"
)

// Options tunes the chunker.
//
// MaxChunkSize:  upper bound in characters for packed prose chunks. A single
//                paragraph longer than this is emitted as its own oversized
//                chunk rather than truncated.
// MinParagraph:  paragraphs shorter than this many characters are discarded
//                as noise. Tables are exempt from the filter.
type Options struct {
	MaxChunkSize int
	MinParagraph int
}

const (
	defaultMaxChunkSize = 1500
	defaultMinParagraph = 40
)

// SemanticChunker is stateless; one instance can chunk any number of
// documents concurrently.
type SemanticChunker struct {
	opts Options
}

func New(opts Options) *SemanticChunker {
	if opts.MaxChunkSize <= 0 {
		opts.MaxChunkSize = defaultMaxChunkSize
	}
	if opts.MinParagraph < 0 {
		opts.MinParagraph = defaultMinParagraph
	}
	return &SemanticChunker{opts: opts}
}

var headingPattern = regexp.MustCompile(`^(#{1,3})\s+(.+?)\s*$`)

// Chunk splits text into ordered chunks. Headings of levels 1-3 establish
// section lineage; pipe-delimited table blocks are emitted whole as type
// "table"; remaining prose is packed greedily up to MaxChunkSize.
func (c *SemanticChunker) Chunk(text string) []models.Chunk {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	st := &chunkState{opts: c.opts}

	var para []string
	flushPara := func() {
		if len(para) == 0 {
			return
		}
		st.addParagraph(strings.Join(para, "\n"))
		para = para[:0]
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if m := headingPattern.FindStringSubmatch(line); m != nil {
			flushPara()
			st.sealProse()
			st.setHeading(len(m[1]), m[2])
			continue
		}

		if isTableLine(trimmed) {
			flushPara()
			st.sealProse()
			// Consume the whole contiguous table block.
			var table []string
			for ; i < len(lines) && isTableLine(strings.TrimSpace(lines[i])); i++ {
				table = append(table, strings.TrimSpace(lines[i]))
			}
			i-- // outer loop advances past the block
			st.emitTable(strings.Join(table, "\n"))
			continue
		}

		if trimmed == "" {
			flushPara()
			continue
		}
		para = append(para, trimmed)
	}
	flushPara()
	st.sealProse()

	return st.chunks
}

// isTableLine reports whether a line belongs to a pipe-delimited table block.
func isTableLine(trimmed string) bool {
	return trimmed != "" && strings.Count(trimmed, "|") >= 2
}

// chunkState carries section lineage and the prose buffer while walking the
// document top to bottom.
type chunkState struct {
	opts Options

	section    string
	subsection string
	level      int

	buf    []string // packed paragraphs for the open prose chunk
	bufLen int      // rune length of buf joined with separators

	seq    int
	chunks []models.Chunk
}

// setHeading updates lineage: a level-1 heading opens a new section and
// clears the subsection; deeper headings set the subsection under the
// current section. A document that opens with a level-2/3 heading gets that
// heading as its section so no chunk is left without lineage.
func (s *chunkState) setHeading(level int, title string) {
	if level == 1 || s.section == "" {
		s.section = title
		s.subsection = ""
	} else {
		s.subsection = title
	}
	s.level = level
}

func (s *chunkState) addParagraph(p string) {
	n := len([]rune(p))
	if n < s.opts.MinParagraph {
		return // noise
	}

	if n > s.opts.MaxChunkSize {
		// Oversized paragraph: seal whatever is open and emit it alone.
		s.sealProse()
		s.buf = []string{p}
		s.bufLen = n
		s.sealProse()
		return
	}

	sep := 0
	if len(s.buf) > 0 {
		sep = 2 // joining "\n\n"
	}
	if s.bufLen+sep+n > s.opts.MaxChunkSize {
		s.sealProse()
		sep = 0
	}
	s.buf = append(s.buf, p)
	s.bufLen += sep + n
}

func (s *chunkState) sealProse() {
	if len(s.buf) == 0 {
		return
	}
	content := strings.Join(s.buf, "\n\n")
	s.emit(models.ChunkTypeText, content)
	s.buf = s.buf[:0]
	s.bufLen = 0
}

func (s *chunkState) emitTable(content string) {
	if content == "" {
		return
	}
	s.emit(models.ChunkTypeTable, content)
}

func (s *chunkState) emit(chunkType, content string) {
	level := s.level
	if level == 0 {
		level = 1
	}
	s.chunks = append(s.chunks, models.Chunk{
		SequenceIndex:   s.seq,
		ChunkType:       chunkType,
		Content:         content,
		SectionTitle:    s.section,
		SubsectionTitle: s.subsection,
		HierarchyLevel:  level,
		WordCount:       len(strings.Fields(content)),
		CharCount:       len([]rune(content)),
	})
	s.seq++
}
