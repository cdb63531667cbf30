// Package extract turns raw text, markdown, or HTML into the pipeline's
// normalized document form: an immutable block bundle plus a sectioned
// NormDoc with stable anchors.
package extract

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/glyphworks/kbforge/document"
)

// defaultTitle is used when neither metadata nor content provides one.
const defaultTitle = "Untitled Document"

// Extractor normalizes ingested content.
type Extractor struct {
	html   *htmlConverter
	logger *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		html:   newHTMLConverter(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract builds the raw bundle and normalized document for one job.
// HTML input is converted to markdown first; markdown and plain text
// are block-parsed directly.
func (e *Extractor) Extract(jobID, content string, metadata map[string]string) (*document.RawBundle, *document.NormDoc, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil, fmt.Errorf("empty content for job %s", jobID)
	}

	sourceID := metadata["source_id"]
	if sourceID == "" {
		sourceID = jobID
	}

	title := metadata["title"]
	markdown := content

	if looksLikeHTML(content) {
		conv, err := e.html.convert(content)
		if err != nil {
			e.logger.Warn("html conversion failed, treating input as text",
				"job_id", jobID, "error", err)
		} else {
			markdown = conv.markdown
			if title == "" {
				title = conv.title
			}
		}
	}

	parsed := parseMarkdown(sourceID, markdown)
	if len(parsed.blocks) == 0 {
		return nil, nil, fmt.Errorf("no content blocks extracted for job %s", jobID)
	}

	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	for k, v := range parsed.frontmatter {
		if s, ok := v.(string); ok {
			if _, exists := meta[k]; !exists {
				meta[k] = s
			}
		}
	}
	if title == "" {
		title = meta["title"]
	}

	bundle := document.NewRawBundle(jobID, sourceID, parsed.blocks, parsed.mediaIDs, meta)
	norm := buildNormDoc(jobID, title, bundle)

	e.logger.Debug("extraction complete",
		"job_id", jobID,
		"blocks", len(bundle.Blocks),
		"sections", len(norm.Sections),
		"words", norm.WordCount)

	return bundle, norm, nil
}

// buildNormDoc groups a bundle's blocks into heading-delimited sections
// with unique anchors.
func buildNormDoc(jobID, title string, bundle *document.RawBundle) *document.NormDoc {
	norm := &document.NormDoc{
		JobID:     jobID,
		Title:     title,
		Citations: make(map[string][]document.SourceSpan),
	}

	var headings []string
	var sections []document.Section

	current := document.Section{}
	var body []string
	flush := func() {
		current.Content = strings.TrimSpace(strings.Join(body, "\n\n"))
		if current.Heading != "" || current.Content != "" || len(current.Blocks) > 0 {
			sections = append(sections, current)
			headings = append(headings, current.Heading)
		}
		body = nil
	}

	for _, blk := range bundle.Blocks {
		if blk.Type == document.BlockHeading {
			if current.Heading != "" || len(current.Blocks) > 0 {
				flush()
			}
			if norm.Title == "" && blk.Level == 1 {
				norm.Title = blk.Text
			}
			current = document.Section{Heading: blk.Text, Level: blk.Level}
			continue
		}
		current.Blocks = append(current.Blocks, blk)
		switch blk.Type {
		case document.BlockCode:
			lang := blk.Attrs["language"]
			body = append(body, "```"+lang+"\n"+blk.Text+"\n```")
		case document.BlockImage:
			body = append(body, fmt.Sprintf("![%s](%s)", blk.Text, blk.Attrs["src"]))
		default:
			body = append(body, blk.Text)
		}
	}
	flush()

	anchors := document.AssignAnchorIDs(headings)
	for i := range sections {
		sections[i].AnchorID = anchors[i]
		if sections[i].Heading != "" {
			norm.Outline = append(norm.Outline, sections[i].Heading)
		}
		for _, blk := range sections[i].Blocks {
			norm.Citations[anchors[i]] = append(norm.Citations[anchors[i]], blk.Sources...)
		}
		norm.WordCount += sections[i].WordCount()
	}

	if norm.Title == "" {
		if len(norm.Outline) > 0 {
			norm.Title = norm.Outline[0]
		} else {
			norm.Title = defaultTitle
		}
	}

	norm.Sections = sections
	return norm
}
