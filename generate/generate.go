// Package generate turns planned outlines and prewrite notes into
// draft articles. The completion client writes the prose; when it is
// unavailable or rejects, a deterministic assembly of the source
// sections stands in so the pipeline always has articles to enrich.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glyphworks/kbforge/document"
	"github.com/glyphworks/kbforge/llm"
	"github.com/glyphworks/kbforge/outline"
	"github.com/glyphworks/kbforge/prewrite"
)

// EngineVersion is stamped on every article this generator produces.
const EngineVersion = "v2"

const (
	// maxSourceChars bounds the source excerpt sent with the prompt.
	maxSourceChars = 8000
	// maxSummaryChars bounds the derived article summary.
	maxSummaryChars = 200
)

// Generator produces draft articles from outlines and notes.
type Generator struct {
	client *llm.Client
	logger *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

// New creates a Generator. A nil client keeps the deterministic path only.
func New(client *llm.Client, opts ...Option) *Generator {
	g := &Generator{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate produces one draft article per plan, in plan order. It never
// fails: completion errors degrade per-article to deterministic
// assembly, and a flagged moderation verdict swaps the draft for a
// gap-marked skeleton that the gap filler rewrites later.
func (g *Generator) Generate(ctx context.Context, norm *document.NormDoc, plans []outline.ArticleOutline, notes []prewrite.Notes, metadata map[string]string) []*document.Article {
	articles := make([]*document.Article, 0, len(plans))
	for _, plan := range plans {
		note := notesFor(notes, plan.Index)
		articles = append(articles, g.generateOne(ctx, norm, plan, note, metadata))
	}
	return articles
}

func (g *Generator) generateOne(ctx context.Context, norm *document.NormDoc, plan outline.ArticleOutline, note prewrite.Notes, metadata map[string]string) *document.Article {
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}

	content := ""
	if g.client != nil {
		draft, err := g.write(ctx, norm, plan, note)
		if err != nil {
			g.logger.Warn("article generation fell back to source assembly",
				"job_id", norm.JobID, "article", plan.Index, "error", err)
		} else {
			content = draft
			if verdict := g.moderate(ctx, draft); verdict != nil && verdict.Flagged {
				g.logger.Warn("generated draft flagged by moderation, leaving gaps for rewrite",
					"job_id", norm.JobID, "article", plan.Index,
					"categories", strings.Join(verdict.Categories, ","))
				content = gapSkeleton(plan)
				meta["moderation"] = strings.Join(verdict.Categories, ",")
			}
		}
	}
	if content == "" {
		content = assembleContent(norm, plan, note)
	}

	now := time.Now().UTC()
	return &document.Article{
		DocUID:    document.NewDocUID(),
		DocSlug:   document.DocSlug(plan.Title),
		Title:     plan.Title,
		Content:   content,
		Summary:   summaryOf(note, content),
		Engine:    EngineVersion,
		Status:    document.StatusDraft,
		Headings:  document.ExtractHeadings(content),
		Metadata:  meta,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// write asks the completion client for the article body.
func (g *Generator) write(ctx context.Context, norm *document.NormDoc, plan outline.ArticleOutline, note prewrite.Notes) (string, error) {
	var sections strings.Builder
	for _, title := range plan.Sections {
		fmt.Fprintf(&sections, "- %s\n", title)
	}

	var noteBlock strings.Builder
	for _, fact := range note.Facts {
		fmt.Fprintf(&noteBlock, "- fact: %s\n", fact)
	}
	for _, kp := range note.KeyPoints {
		fmt.Fprintf(&noteBlock, "- cover: %s\n", kp)
	}
	if noteBlock.Len() == 0 {
		noteBlock.WriteString("(none)\n")
	}

	source := sourceExcerpt(norm, note)
	if len(source) > maxSourceChars {
		source = source[:maxSourceChars]
	}

	temp := 0.5
	resp, err := g.client.Complete(ctx, llm.Request{
		Purpose: llm.PurposeGeneration,
		Messages: []llm.Message{
			{Role: "system", Content: writeSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(writeUserPrompt,
				plan.Title, sections.String(), noteBlock.String(), source)},
		},
		Temperature: &temp,
		MaxTokens:   4096,
	})
	if err != nil {
		return "", fmt.Errorf("generation request: %w", err)
	}

	draft := llm.UnwrapFence(resp.Content)
	if draft == "" {
		return "", fmt.Errorf("empty draft")
	}
	if len(document.ExtractHeadings(draft)) == 0 {
		return "", fmt.Errorf("draft has no section headings")
	}
	return draft, nil
}

// moderate checks a draft. Moderation errors never block generation.
func (g *Generator) moderate(ctx context.Context, draft string) *llm.Verdict {
	verdict, err := g.client.Moderate(ctx, draft)
	if err != nil {
		g.logger.Warn("moderation check failed, keeping draft", "error", err)
		return nil
	}
	return verdict
}

// assembleContent builds the article deterministically: source sections
// are assigned to the planned headings in contiguous groups, and source
// headings survive as subheadings when a group carries more than one.
// Planned sections with no source stay thin so the gap filler finds them.
func assembleContent(norm *document.NormDoc, plan outline.ArticleOutline, note prewrite.Notes) string {
	var b strings.Builder

	if len(note.Facts) > 0 {
		lead := note.Facts
		if len(lead) > 3 {
			lead = lead[:3]
		}
		b.WriteString(strings.Join(lead, " "))
		b.WriteString("\n\n")
	}

	chunks := chunkSections(sourceSections(norm, note), len(plan.Sections))
	for i, title := range plan.Sections {
		fmt.Fprintf(&b, "## %s\n\n", title)
		if i >= len(chunks) || len(chunks[i]) == 0 {
			continue
		}
		for _, sec := range chunks[i] {
			if len(chunks[i]) > 1 && sec.Heading != "" {
				fmt.Fprintf(&b, "### %s\n\n", sec.Heading)
			}
			if body := strings.TrimSpace(sec.Content); body != "" {
				b.WriteString(body)
				b.WriteString("\n\n")
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// gapSkeleton keeps the planned structure but marks every section for
// the gap filler to rewrite.
func gapSkeleton(plan outline.ArticleOutline) string {
	var b strings.Builder
	for _, title := range plan.Sections {
		fmt.Fprintf(&b, "## %s\n\n[MISSING]\n\n", title)
	}
	return strings.TrimSpace(b.String())
}

// sourceSections resolves the note's anchors against the document,
// falling back to every section when the note carries none.
func sourceSections(norm *document.NormDoc, note prewrite.Notes) []document.Section {
	if len(note.SourceAnchors) == 0 {
		return norm.Sections
	}
	byAnchor := make(map[string]document.Section, len(norm.Sections))
	for _, sec := range norm.Sections {
		byAnchor[sec.AnchorID] = sec
	}
	out := make([]document.Section, 0, len(note.SourceAnchors))
	for _, anchor := range note.SourceAnchors {
		if sec, ok := byAnchor[anchor]; ok {
			out = append(out, sec)
		}
	}
	return out
}

// sourceExcerpt renders the note's source sections as prompt material.
func sourceExcerpt(norm *document.NormDoc, note prewrite.Notes) string {
	secs := sourceSections(norm, note)
	var b strings.Builder
	for _, sec := range secs {
		if sec.Heading != "" {
			fmt.Fprintf(&b, "## %s\n\n", sec.Heading)
		}
		b.WriteString(sec.Content)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

// chunkSections splits sections into n contiguous groups of ceil(len/n).
func chunkSections(sections []document.Section, n int) [][]document.Section {
	if n <= 1 || len(sections) <= 1 {
		return [][]document.Section{sections}
	}
	if n > len(sections) {
		n = len(sections)
	}

	size := (len(sections) + n - 1) / n
	var chunks [][]document.Section
	for start := 0; start < len(sections); start += size {
		end := min(start+size, len(sections))
		chunks = append(chunks, sections[start:end])
	}
	return chunks
}

// summaryOf prefers the first prewrite fact, then the lead paragraph.
func summaryOf(note prewrite.Notes, content string) string {
	if len(note.Facts) > 0 {
		return truncateSummary(note.Facts[0])
	}
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "```") {
			continue
		}
		return truncateSummary(trimmed)
	}
	return ""
}

func truncateSummary(s string) string {
	if len(s) <= maxSummaryChars {
		return s
	}
	cut := s[:maxSummaryChars]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}

// notesFor finds the notes matching an article index.
func notesFor(notes []prewrite.Notes, index int) prewrite.Notes {
	for _, n := range notes {
		if n.ArticleIndex == index {
			return n
		}
	}
	return prewrite.Notes{ArticleIndex: index}
}
