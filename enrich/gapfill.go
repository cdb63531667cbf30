package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/glyphworks/kbforge/document"
	"github.com/glyphworks/kbforge/llm"
)

// thinSectionChars is the body length below which a section counts as
// structurally incomplete.
const thinSectionChars = 50

var (
	placeholderMarkerRe = regexp.MustCompile(`\[(MISSING|TODO|TBD|PLACEHOLDER|FIXME)\]`)
	ellipsisLineRe      = regexp.MustCompile(`(?m)^\s*(\.\.\.|…)\s*$`)
)

// GapFiller finds placeholder markers and thin sections and asks the
// completion client to fill them in context. A clean article makes no
// completion call at all.
type GapFiller struct {
	client *llm.Client
	logger *slog.Logger
}

// NewGapFiller creates a GapFiller. A nil client records gaps without
// filling them; a nil logger falls back to slog.Default().
func NewGapFiller(client *llm.Client, logger *slog.Logger) *GapFiller {
	if logger == nil {
		logger = slog.Default()
	}
	return &GapFiller{client: client, logger: logger}
}

// Name implements Enricher.
func (g *GapFiller) Name() string {
	return "gap_fill"
}

// Enrich implements Enricher. Completion failure keeps the original
// content; the metadata still records what was found.
func (g *GapFiller) Enrich(ctx context.Context, article *document.Article) (*document.Article, error) {
	occurrences, markers, thin := detectGaps(article.Content)
	meta := &document.GapFillMeta{
		GapsFound:    occurrences + len(thin),
		Markers:      markers,
		ThinSections: thin,
	}

	if meta.GapsFound > 0 && g.client != nil {
		filled, err := g.fill(ctx, article, markers, thin)
		if err != nil {
			g.logger.Warn("gap fill completion failed, keeping content",
				"doc_uid", article.DocUID, "gaps", meta.GapsFound, "error", err)
		} else {
			article.Content = filled
			article.Headings = document.ExtractHeadings(filled)
			meta.CompletionUsed = true
		}
	}

	meta.FilledAt = time.Now().UTC()
	article.GapFill = meta
	return article, nil
}

// detectGaps returns the total marker occurrence count, the distinct
// markers in order of first appearance, and the headings of sections
// with under thinSectionChars of body.
func detectGaps(content string) (int, []string, []string) {
	occurrences := 0
	var markers []string
	seen := map[string]bool{}

	for _, m := range placeholderMarkerRe.FindAllString(content, -1) {
		occurrences++
		if !seen[m] {
			seen[m] = true
			markers = append(markers, m)
		}
	}
	for range ellipsisLineRe.FindAllString(content, -1) {
		occurrences++
		if !seen["..."] {
			seen["..."] = true
			markers = append(markers, "...")
		}
	}

	return occurrences, markers, thinSections(content)
}

// thinSections walks heading-delimited sections and reports those with
// too little body.
func thinSections(content string) []string {
	var thin []string
	heading := ""
	bodyLen := 0
	started := false
	inFence := false

	flush := func() {
		if started && bodyLen < thinSectionChars {
			thin = append(thin, heading)
		}
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			bodyLen += len(trimmed)
			continue
		}
		if !inFence && headingLineRe.MatchString(line) {
			flush()
			heading = strings.TrimSpace(strings.TrimLeft(line, "# "))
			bodyLen = 0
			started = true
			continue
		}
		bodyLen += len(trimmed)
	}
	flush()
	return thin
}

// fill sends the whole article plus a gap summary for in-context
// infilling and returns the rewritten body.
func (g *GapFiller) fill(ctx context.Context, article *document.Article, markers, thin []string) (string, error) {
	var summary strings.Builder
	for _, m := range markers {
		fmt.Fprintf(&summary, "- placeholder marker %s\n", m)
	}
	for _, h := range thin {
		fmt.Fprintf(&summary, "- section %q needs a fuller body\n", h)
	}

	temp := 0.4
	resp, err := g.client.Complete(ctx, llm.Request{
		Purpose: llm.PurposeGapFill,
		Messages: []llm.Message{
			{Role: "system", Content: gapFillSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(gapFillUserPrompt,
				article.Title, summary.String(), article.Content)},
		},
		Temperature: &temp,
		MaxTokens:   4096,
	})
	if err != nil {
		return "", fmt.Errorf("gap fill request: %w", err)
	}

	filled := llm.UnwrapFence(resp.Content)
	if filled == "" {
		return "", fmt.Errorf("empty rewrite")
	}
	if len(document.ExtractHeadings(filled)) == 0 {
		return "", fmt.Errorf("rewrite lost all headings")
	}
	return filled, nil
}
