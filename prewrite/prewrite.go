// Package prewrite builds the working notes for each planned article
// before generation: facts worth keeping, key points to cover, and the
// source sections that back them. The completion client sharpens the
// notes when available; the source-anchor mapping is always computed
// programmatically.
package prewrite

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/glyphworks/kbforge/document"
	"github.com/glyphworks/kbforge/llm"
	"github.com/glyphworks/kbforge/outline"
)

const (
	// maxFacts caps extracted facts per article.
	maxFacts = 8
	// maxKeyPoints caps key points per article.
	maxKeyPoints = 6
	// minFactLen drops fragments too short to stand as facts.
	minFactLen = 20
	// maxSourceChars bounds the source excerpt sent for extraction.
	maxSourceChars = 6000
)

// sentenceRe splits prose into sentences on terminal punctuation.
var sentenceRe = regexp.MustCompile(`[^.!?\n]+[.!?]`)

// Notes is the prewrite product for one planned article.
type Notes struct {
	// ArticleIndex matches outline.ArticleOutline.Index.
	ArticleIndex int `json:"article_index"`
	// Facts are concrete statements lifted from the source.
	Facts []string `json:"facts"`
	// KeyPoints are the themes the article must cover.
	KeyPoints []string `json:"key_points"`
	// SourceAnchors are the anchor IDs of the source sections assigned
	// to this article.
	SourceAnchors []string `json:"source_anchors"`
}

// Prewriter extracts notes.
type Prewriter struct {
	client *llm.Client
	logger *slog.Logger
}

// Option configures a Prewriter.
type Option func(*Prewriter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Prewriter) {
		p.logger = logger
	}
}

// New creates a Prewriter. A nil client keeps the heuristic path only.
func New(client *llm.Client, opts ...Option) *Prewriter {
	p := &Prewriter{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Prepare builds notes for every planned article. It never fails: the
// heuristic notes are the floor, and completion output only replaces
// the facts and key points it actually provides.
func (p *Prewriter) Prepare(ctx context.Context, norm *document.NormDoc, plans []outline.ArticleOutline) []Notes {
	notes := heuristicNotes(norm, plans)
	if p.client == nil || len(notes) == 0 {
		return notes
	}

	extracted, err := p.extract(ctx, norm, plans)
	if err != nil {
		p.logger.Warn("prewrite extraction fell back to heuristics",
			"job_id", norm.JobID, "error", err)
		return notes
	}

	for i := range notes {
		got, ok := extracted[notes[i].ArticleIndex]
		if !ok {
			continue
		}
		if facts := capList(got.Facts, maxFacts); len(facts) > 0 {
			notes[i].Facts = facts
		}
		if points := capList(got.KeyPoints, maxKeyPoints); len(points) > 0 {
			notes[i].KeyPoints = points
		}
	}
	return notes
}

// extract runs the completion path and indexes results by article.
func (p *Prewriter) extract(ctx context.Context, norm *document.NormDoc, plans []outline.ArticleOutline) (map[int]Notes, error) {
	var planDesc strings.Builder
	for _, plan := range plans {
		fmt.Fprintf(&planDesc, "- article %d: %q covering %s\n",
			plan.Index, plan.Title, strings.Join(plan.Sections, ", "))
	}

	source := norm.Content()
	if len(source) > maxSourceChars {
		source = source[:maxSourceChars]
	}

	temp := 0.3
	resp, err := p.client.Complete(ctx, llm.Request{
		Purpose: llm.PurposePrewrite,
		Messages: []llm.Message{
			{Role: "system", Content: extractSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(extractUserPrompt, planDesc.String(), source)},
		},
		Temperature: &temp,
		MaxTokens:   2048,
	})
	if err != nil {
		return nil, fmt.Errorf("prewrite request: %w", err)
	}

	jsonStr := llm.ExtractJSONArray(resp.Content)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var parsed []Notes
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}

	byIndex := make(map[int]Notes, len(parsed))
	for _, n := range parsed {
		byIndex[n.ArticleIndex] = n
	}
	return byIndex, nil
}

// heuristicNotes derives notes from the source alone. Source sections
// are assigned to articles in contiguous groups matching the outline
// split, then each article's facts come from its sections' leading
// sentences and its key points from their headings.
func heuristicNotes(norm *document.NormDoc, plans []outline.ArticleOutline) []Notes {
	if len(plans) == 0 {
		return nil
	}

	groups := groupSections(norm.Sections, len(plans))
	notes := make([]Notes, len(plans))
	for i, plan := range plans {
		n := Notes{ArticleIndex: plan.Index}
		if i < len(groups) {
			for _, sec := range groups[i] {
				if sec.Heading != "" {
					n.KeyPoints = append(n.KeyPoints, sec.Heading)
				}
				n.SourceAnchors = append(n.SourceAnchors, sec.AnchorID)
				for _, sentence := range leadingSentences(sec.Content, 2) {
					if len(sentence) >= minFactLen {
						n.Facts = append(n.Facts, sentence)
					}
				}
			}
		}
		n.Facts = capList(n.Facts, maxFacts)
		n.KeyPoints = capList(n.KeyPoints, maxKeyPoints)
		notes[i] = n
	}
	return notes
}

// groupSections splits sections into n contiguous groups of ceil(len/n).
func groupSections(sections []document.Section, n int) [][]document.Section {
	if n <= 1 || len(sections) <= 1 {
		return [][]document.Section{sections}
	}
	if n > len(sections) {
		n = len(sections)
	}

	size := (len(sections) + n - 1) / n
	var groups [][]document.Section
	for start := 0; start < len(sections); start += size {
		end := min(start+size, len(sections))
		groups = append(groups, sections[start:end])
	}
	return groups
}

// leadingSentences returns up to n sentences from the start of prose,
// skipping code fences.
func leadingSentences(content string, n int) []string {
	var out []string
	inFence := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence || trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		for _, m := range sentenceRe.FindAllString(trimmed, -1) {
			out = append(out, strings.TrimSpace(m))
			if len(out) == n {
				return out
			}
		}
	}
	return out
}

// capList trims entries, drops empties, and bounds the list length.
func capList(items []string, limit int) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
		if len(out) == limit {
			break
		}
	}
	return out
}
