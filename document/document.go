// Package document defines the content types that flow through the
// processing pipeline: raw ingestion bundles, normalized documents,
// working articles with per-stage metadata, quality reports, content
// versions, and review requests.
package document

import "strings"

// BlockType identifies the structural kind of a raw content block.
type BlockType string

const (
	// BlockHeading is a section heading with a level.
	BlockHeading BlockType = "heading"
	// BlockParagraph is a prose paragraph.
	BlockParagraph BlockType = "paragraph"
	// BlockCode is a code block, fenced or indented.
	BlockCode BlockType = "code"
	// BlockTable is a table.
	BlockTable BlockType = "table"
	// BlockList is an ordered or unordered list.
	BlockList BlockType = "list"
	// BlockImage is an embedded image reference.
	BlockImage BlockType = "image"
)

// SourceSpan locates a block in the original input for provenance.
// Spans are append-only: stages may add spans but never rewrite them.
type SourceSpan struct {
	// SourceID names the originating file or upload.
	SourceID string `json:"source_id"`
	// Page is the page number for paginated sources, zero otherwise.
	Page int `json:"page,omitempty"`
	// Start is the character offset where the block begins.
	Start int `json:"start"`
	// End is the character offset one past the block's last character.
	End int `json:"end"`
}

// RawBlock is one structural unit of ingested content.
type RawBlock struct {
	// Type is the structural kind of the block.
	Type BlockType `json:"type"`
	// Text is the block's content. For images it holds the alt text.
	Text string `json:"text"`
	// Level is the heading level (1-6) for heading blocks, zero otherwise.
	Level int `json:"level,omitempty"`
	// Attrs carries block attributes such as code language or image src.
	Attrs map[string]string `json:"attrs,omitempty"`
	// Sources traces the block back to its original location.
	Sources []SourceSpan `json:"sources,omitempty"`
}

// RawBundle is the immutable product of one ingestion job. Construct it
// with NewRawBundle and treat it as read-only afterward.
type RawBundle struct {
	// JobID identifies the processing run that created the bundle.
	JobID string `json:"job_id"`
	// SourceID names the originating document.
	SourceID string `json:"source_id"`
	// Blocks are the ordered structural units of the source.
	Blocks []RawBlock `json:"blocks"`
	// MediaIDs lists binary assets referenced by the source.
	MediaIDs []string `json:"media_ids,omitempty"`
	// Metadata carries caller-supplied context for the job.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewRawBundle builds a bundle from ordered blocks.
func NewRawBundle(jobID, sourceID string, blocks []RawBlock, mediaIDs []string, metadata map[string]string) *RawBundle {
	return &RawBundle{
		JobID:    jobID,
		SourceID: sourceID,
		Blocks:   blocks,
		MediaIDs: mediaIDs,
		Metadata: metadata,
	}
}

// WordCount returns the total word count across all text-bearing blocks.
func (b *RawBundle) WordCount() int {
	total := 0
	for _, blk := range b.Blocks {
		switch blk.Type {
		case BlockHeading, BlockParagraph, BlockList, BlockTable:
			total += len(strings.Fields(blk.Text))
		}
	}
	return total
}

// Section is one heading-delimited region of a normalized document.
type Section struct {
	// AnchorID is the URL-safe slug for the section, unique within the
	// document. Derived from the heading text, disambiguated with
	// numeric suffixes on collision.
	AnchorID string `json:"anchor_id"`
	// Heading is the section's heading text.
	Heading string `json:"heading"`
	// Level is the heading level (1-6).
	Level int `json:"level"`
	// Content is the section body, markdown-shaped.
	Content string `json:"content"`
	// Blocks are the raw blocks that make up the section, in order.
	Blocks []RawBlock `json:"blocks,omitempty"`
}

// WordCount returns the section's body word count.
func (s *Section) WordCount() int {
	return len(strings.Fields(s.Content))
}

// NormDoc is the canonical intermediate representation of ingested
// content: extraction output, analyzer and validator input.
type NormDoc struct {
	// JobID identifies the processing run.
	JobID string `json:"job_id"`
	// Title is the document title, taken from the first heading or
	// caller metadata.
	Title string `json:"title"`
	// Outline lists section headings in document order.
	Outline []string `json:"outline"`
	// Sections are the heading-delimited regions of the document.
	Sections []Section `json:"sections"`
	// Citations maps citation keys to their source locations.
	Citations map[string][]SourceSpan `json:"citations,omitempty"`
	// WordCount is the total body word count.
	WordCount int `json:"word_count"`
}

// Content reassembles the document body from its sections.
func (d *NormDoc) Content() string {
	var sb strings.Builder
	for i, sec := range d.Sections {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		if sec.Heading != "" {
			sb.WriteString(strings.Repeat("#", max(sec.Level, 1)))
			sb.WriteString(" ")
			sb.WriteString(sec.Heading)
			sb.WriteString("\n\n")
		}
		sb.WriteString(sec.Content)
	}
	return sb.String()
}

// ExtractHeadings lists the heading texts in markdown content, in
// order. Lines inside code fences do not count.
func ExtractHeadings(content string) []string {
	var out []string
	inFence := false
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		rest := strings.TrimLeft(line, "#")
		hashes := len(line) - len(rest)
		if hashes < 1 || hashes > 6 || !strings.HasPrefix(rest, " ") {
			continue
		}
		if text := strings.TrimSpace(rest); text != "" {
			out = append(out, text)
		}
	}
	return out
}

// HeadingLevels returns the distinct heading levels present, smallest
// first.
func (d *NormDoc) HeadingLevels() []int {
	seen := map[int]bool{}
	var levels []int
	for _, sec := range d.Sections {
		if sec.Heading == "" || seen[sec.Level] {
			continue
		}
		seen[sec.Level] = true
		levels = append(levels, sec.Level)
	}
	for i := 1; i < len(levels); i++ {
		for j := i; j > 0 && levels[j] < levels[j-1]; j-- {
			levels[j], levels[j-1] = levels[j-1], levels[j]
		}
	}
	return levels
}
