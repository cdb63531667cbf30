// Package analyze classifies normalized documents ahead of outline
// planning. The completion client is the primary path; rule-based
// heuristics take over when it fails, and a word-count override keeps
// granularity consistent regardless of which path produced the result.
package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/glyphworks/kbforge/document"
	"github.com/glyphworks/kbforge/llm"
)

// maxPreviewChars limits document content sent for classification.
// ~4000 chars ≈ ~1000 tokens, enough for accurate classification
// without crowding the context window.
const maxPreviewChars = 4000

// maxKeyTopics caps the topic list after deduplication.
const maxKeyTopics = 10

// maxArticleCount caps how many articles one document may split into.
const maxArticleCount = 8

// fallbackConfidence is reported when heuristics produced the result.
const fallbackConfidence = 0.4

// Content types understood by the outline planners.
const (
	TypeAPIDocumentation = "api_documentation"
	TypeTutorial         = "tutorial"
	TypeTroubleshooting  = "troubleshooting"
	TypeConceptual       = "conceptual"
	TypeReference        = "reference"
	TypeGeneric          = "generic"
)

// Granularity levels. Always recomputed from word count.
const (
	GranularityHighLevel     = "high_level"
	GranularityDetailed      = "detailed"
	GranularityComprehensive = "comprehensive"
)

// Word-count thresholds for the granularity override.
const (
	comprehensiveWords = 5000
	detailedWords      = 2000
)

// Analysis is the classification of one normalized document.
type Analysis struct {
	ContentType             string   `json:"content_type"`
	TechnicalDepth          string   `json:"technical_depth"`
	AudienceLevel           string   `json:"audience_level"`
	Granularity             string   `json:"granularity"`
	Structure               string   `json:"structure"`
	Completeness            string   `json:"completeness"`
	Complexity              string   `json:"complexity"`
	KeyTopics               []string `json:"key_topics"`
	RecommendedArticleCount int      `json:"recommended_article_count"`
	ConfidenceScore         float64  `json:"confidence_score"`
}

// Analyzer classifies documents.
type Analyzer struct {
	client *llm.Client
	logger *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// New creates an Analyzer. A nil client forces the heuristic path.
func New(client *llm.Client, opts ...Option) *Analyzer {
	a := &Analyzer{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze classifies the document. It never fails: completion or parse
// errors drop to the heuristic path, and the granularity override runs
// on every result.
func (a *Analyzer) Analyze(ctx context.Context, norm *document.NormDoc) *Analysis {
	result, err := a.classify(ctx, norm)
	if err != nil {
		a.logger.Warn("classification fell back to heuristics",
			"job_id", norm.JobID, "error", err)
		result = heuristicAnalysis(norm)
	}

	enhance(result, norm)
	return result
}

// classify runs the completion path.
func (a *Analyzer) classify(ctx context.Context, norm *document.NormDoc) (*Analysis, error) {
	if a.client == nil {
		return nil, fmt.Errorf("no completion client configured")
	}

	temp := 0.2
	resp, err := a.client.Complete(ctx, llm.Request{
		Purpose: llm.PurposeAnalysis,
		Messages: []llm.Message{
			{Role: "system", Content: classifySystemPrompt},
			{Role: "user", Content: fmt.Sprintf(classifyUserPrompt, buildPreview(norm))},
		},
		Temperature: &temp,
		MaxTokens:   1024,
	})
	if err != nil {
		return nil, fmt.Errorf("classification request: %w", err)
	}

	return parseAnalysis(resp.Content)
}

// buildPreview assembles a bounded document preview: title, size, and
// leading content truncated at a paragraph boundary.
func buildPreview(norm *document.NormDoc) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Title: %s\n", norm.Title)
	fmt.Fprintf(&sb, "Word count: %d\n", norm.WordCount)
	fmt.Fprintf(&sb, "Sections: %d\n\n", len(norm.Sections))
	sb.WriteString(truncateForPreview(norm.Content(), maxPreviewChars))
	return sb.String()
}

// truncateForPreview truncates content, preferring a paragraph break
// past the halfway point.
func truncateForPreview(content string, maxChars int) string {
	if len(content) <= maxChars {
		return content
	}

	truncated := content[:maxChars]
	if lastPara := strings.LastIndex(truncated, "\n\n"); lastPara > maxChars/2 {
		return truncated[:lastPara] + "\n\n[Content truncated for analysis...]"
	}
	return truncated + "\n\n[Content truncated for analysis...]"
}

// parseAnalysis extracts an Analysis from model output. An invalid
// content type fails the parse; softer enum fields are normalized.
func parseAnalysis(content string) (*Analysis, error) {
	jsonStr := llm.ExtractJSON(content)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var result Analysis
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}

	if !isValidContentType(result.ContentType) {
		return nil, fmt.Errorf("invalid content type: %q", result.ContentType)
	}

	result.TechnicalDepth = normalizeEnum(result.TechnicalDepth,
		[]string{"introductory", "intermediate", "advanced"}, "intermediate")
	result.AudienceLevel = normalizeEnum(result.AudienceLevel,
		[]string{"beginner", "intermediate", "expert"}, "intermediate")
	result.Structure = normalizeEnum(result.Structure,
		[]string{"well_structured", "partially_structured", "unstructured"}, "partially_structured")
	result.Completeness = normalizeEnum(result.Completeness,
		[]string{"complete", "partial", "fragmentary"}, "partial")
	result.Complexity = normalizeEnum(result.Complexity,
		[]string{"low", "moderate", "high"}, "moderate")

	return &result, nil
}

// heuristicAnalysis classifies from word count, heading density, and
// title keywords alone.
func heuristicAnalysis(norm *document.NormDoc) *Analysis {
	words := norm.WordCount
	headings := len(norm.Outline)
	content := norm.Content()
	codeFences := strings.Count(content, "```") / 2

	result := &Analysis{
		ContentType:             classifyTitle(norm.Title, codeFences),
		TechnicalDepth:          "intermediate",
		AudienceLevel:           "intermediate",
		Structure:               classifyStructure(headings, words),
		Completeness:            classifyCompleteness(words),
		Complexity:              classifyComplexity(words, codeFences),
		KeyTopics:               topicsFromOutline(norm),
		RecommendedArticleCount: recommendArticleCount(words, headings),
		ConfidenceScore:         fallbackConfidence,
	}
	return result
}

// classifyTitle picks a content type from title keywords.
func classifyTitle(title string, codeFences int) string {
	t := strings.ToLower(title)
	switch {
	case containsAny(t, "api", "endpoint", "rest", "webhook"):
		return TypeAPIDocumentation
	case containsAny(t, "tutorial", "guide", "how to", "getting started", "setup", "install", "walkthrough"):
		return TypeTutorial
	case containsAny(t, "troubleshoot", "debug", "error", "faq", "problem"):
		return TypeTroubleshooting
	case containsAny(t, "reference", "options", "settings", "configuration", "glossary"):
		return TypeReference
	case containsAny(t, "overview", "architecture", "concept", "introduction"):
		return TypeConceptual
	case codeFences >= 3:
		return TypeTutorial
	default:
		return TypeGeneric
	}
}

func classifyStructure(headings, words int) string {
	switch {
	case headings == 0:
		return "unstructured"
	case words > 0 && words/max(headings, 1) <= 600:
		return "well_structured"
	default:
		return "partially_structured"
	}
}

func classifyCompleteness(words int) string {
	switch {
	case words < 100:
		return "fragmentary"
	case words < 400:
		return "partial"
	default:
		return "complete"
	}
}

func classifyComplexity(words, codeFences int) string {
	switch {
	case words > 3000 || codeFences > 8:
		return "high"
	case words > 800 || codeFences > 2:
		return "moderate"
	default:
		return "low"
	}
}

// topicsFromOutline derives topics from section headings, falling back
// to the title.
func topicsFromOutline(norm *document.NormDoc) []string {
	var topics []string
	for _, h := range norm.Outline {
		topics = append(topics, strings.ToLower(h))
	}
	if len(topics) == 0 && norm.Title != "" {
		topics = append(topics, strings.ToLower(norm.Title))
	}
	return topics
}

func recommendArticleCount(words, headings int) int {
	switch {
	case words > 8000 || headings > 12:
		return 3
	case words > 3000 || headings > 6:
		return 2
	default:
		return 1
	}
}

// enhance applies the rule overrides that keep every analysis
// internally consistent: granularity strictly from word count, article
// count clamped, topics deduplicated, confidence clamped.
func enhance(result *Analysis, norm *document.NormDoc) {
	switch {
	case norm.WordCount > comprehensiveWords:
		result.Granularity = GranularityComprehensive
	case norm.WordCount > detailedWords:
		result.Granularity = GranularityDetailed
	default:
		result.Granularity = GranularityHighLevel
	}

	if result.RecommendedArticleCount < 1 {
		result.RecommendedArticleCount = 1
	}
	if result.RecommendedArticleCount > maxArticleCount {
		result.RecommendedArticleCount = maxArticleCount
	}

	result.KeyTopics = dedupeTopics(result.KeyTopics)

	if result.ConfidenceScore < 0 {
		result.ConfidenceScore = 0
	}
	if result.ConfidenceScore > 1 {
		result.ConfidenceScore = 1
	}
}

// dedupeTopics trims, drops empties and case-insensitive duplicates,
// and caps the list. Original order and casing are kept.
func dedupeTopics(topics []string) []string {
	seen := make(map[string]bool, len(topics))
	out := make([]string, 0, len(topics))
	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		key := strings.ToLower(topic)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, topic)
		if len(out) == maxKeyTopics {
			break
		}
	}
	return out
}

func isValidContentType(ct string) bool {
	switch ct {
	case TypeAPIDocumentation, TypeTutorial, TypeTroubleshooting,
		TypeConceptual, TypeReference, TypeGeneric:
		return true
	default:
		return false
	}
}

// normalizeEnum returns value when it is one of allowed, otherwise def.
func normalizeEnum(value string, allowed []string, def string) string {
	for _, a := range allowed {
		if value == a {
			return value
		}
	}
	return def
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
