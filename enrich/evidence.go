package enrich

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/glyphworks/kbforge/document"
)

// Confidence bases per evidence level.
const (
	confidenceHigh        = 0.9
	confidenceMedium      = 0.7
	confidenceLow         = 0.5
	confidenceSpeculation = 0.3
)

var (
	specReferenceWords = []string{
		"rfc", "specification", "per the spec", "documented",
		"according to the documentation", "official documentation",
	}
	bestPracticeWords = []string{
		"best practice", "recommended", "should", "prefer", "convention", "avoid",
	}
	hedgingWords = []string{
		"might", "may", "could", "possibly", "perhaps", "likely",
		"probably", "seems", "appears", "unclear",
	}
	predictionWords = []string{
		"will be", "going to", "planned", "upcoming", "in the future",
		"roadmap", "expected to", "eventually",
	}
	certaintyWords = []string{
		"always", "never", "must", "guaranteed", "exactly", "definitely",
	}

	exampleWords = []string{"for example", "for instance", "e.g.", "such as"}

	annotationPrefixRe = regexp.MustCompile(`(?i)^(>|note[:\s]|tip[:\s]|warning[:\s]|important[:\s]|caution[:\s])`)
	factualVerbRe      = regexp.MustCompile(`(?i)\b(is|are|returns|provides|contains|supports|requires|defaults to|consists of)\b`)
	headingLineRe      = regexp.MustCompile(`^#{1,6}\s+\S`)
)

// EvidenceTagger classifies every paragraph and assigns an evidence
// level with a confidence score.
type EvidenceTagger struct{}

// NewEvidenceTagger creates an EvidenceTagger.
func NewEvidenceTagger() *EvidenceTagger {
	return &EvidenceTagger{}
}

// Name implements Enricher.
func (t *EvidenceTagger) Name() string {
	return "evidence_tag"
}

// Enrich implements Enricher.
func (t *EvidenceTagger) Enrich(_ context.Context, article *document.Article) (*document.Article, error) {
	tags := tagContent(article.Content)
	dist := make(map[document.EvidenceLevel]int)
	for _, tag := range tags {
		dist[tag.Level]++
	}
	article.Evidence = &document.EvidenceMeta{
		Tags:         tags,
		Distribution: dist,
		TaggedAt:     time.Now().UTC(),
	}
	return article, nil
}

// tagContent walks heading-delimited sections and tags each paragraph.
// The paragraph index restarts per section; prose before the first
// heading carries an empty section name.
func tagContent(content string) []document.EvidenceTag {
	var tags []document.EvidenceTag
	section := ""
	paragraph := 0
	for _, para := range splitParagraphs(content) {
		if heading, ok := headingText(para.text); ok {
			section = heading
			paragraph = 0
			continue
		}
		class := classifyParagraph(para)
		level := evidenceLevel(para.text, class)
		tags = append(tags, document.EvidenceTag{
			Section:    section,
			Paragraph:  paragraph,
			Class:      class,
			Level:      level,
			Confidence: confidence(para.text, level),
		})
		paragraph++
	}
	return tags
}

type paragraphBlock struct {
	text   string
	isCode bool
}

// splitParagraphs breaks content on blank lines, keeping each fenced
// or pre-rendered code block together as a single code paragraph.
func splitParagraphs(content string) []paragraphBlock {
	var blocks []paragraphBlock
	var current []string
	isCode := false
	inFence := false

	flush := func() {
		if len(current) == 0 {
			return
		}
		blocks = append(blocks, paragraphBlock{
			text:   strings.Join(current, "\n"),
			isCode: isCode,
		})
		current = nil
		isCode = false
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "```"):
			if !inFence {
				flush()
				isCode = true
			}
			inFence = !inFence
			current = append(current, line)
			if !inFence {
				flush()
			}
		case inFence:
			current = append(current, line)
		case trimmed == "":
			flush()
		case headingLineRe.MatchString(line):
			flush()
			current = append(current, line)
			flush()
		default:
			current = append(current, line)
		}
	}
	flush()
	return blocks
}

func headingText(para string) (string, bool) {
	if !strings.HasPrefix(para, "#") {
		return "", false
	}
	first := strings.SplitN(para, "\n", 2)[0]
	trimmed := strings.TrimLeft(first, "#")
	if trimmed == first || !strings.HasPrefix(trimmed, " ") {
		return "", false
	}
	return strings.TrimSpace(trimmed), true
}

func classifyParagraph(para paragraphBlock) document.ParagraphClass {
	text := para.text
	lower := strings.ToLower(text)
	switch {
	case para.isCode || strings.Contains(text, "<pre><code") || strings.HasPrefix(text, "    "):
		return document.ClassCodeExample
	case annotationPrefixRe.MatchString(text):
		return document.ClassAnnotation
	case listItemRe.MatchString(text):
		return document.ClassListItem
	case containsAnyWord(lower, bestPracticeWords):
		return document.ClassRecommendation
	case containsAnyWord(lower, exampleWords):
		return document.ClassExample
	case factualVerbRe.MatchString(text) && !containsAnyWord(lower, hedgingWords):
		return document.ClassFactualStatement
	default:
		return document.ClassGeneralContent
	}
}

// evidenceLevel applies the fixed precedence: code and spec references
// outrank best-practice language, which outranks hedging, which
// outranks prediction. Everything else is MEDIUM.
func evidenceLevel(text string, class document.ParagraphClass) document.EvidenceLevel {
	lower := strings.ToLower(text)
	switch {
	case class == document.ClassCodeExample || containsAnyWord(lower, specReferenceWords):
		return document.EvidenceHigh
	case containsAnyWord(lower, bestPracticeWords):
		return document.EvidenceMedium
	case containsAnyWord(lower, hedgingWords):
		return document.EvidenceLow
	case containsAnyWord(lower, predictionWords):
		return document.EvidenceSpeculation
	default:
		return document.EvidenceMedium
	}
}

// confidence starts from the level base and is nudged up to 0.2 in
// either direction by certainty and hedging vocabulary, clamped to
// [0.1, 1.0].
func confidence(text string, level document.EvidenceLevel) float64 {
	base := confidenceMedium
	switch level {
	case document.EvidenceHigh:
		base = confidenceHigh
	case document.EvidenceLow:
		base = confidenceLow
	case document.EvidenceSpeculation:
		base = confidenceSpeculation
	}

	lower := strings.ToLower(text)
	adjust := 0.0
	for _, word := range certaintyWords {
		if containsWord(lower, word) {
			adjust += 0.1
		}
	}
	if adjust > 0.2 {
		adjust = 0.2
	}
	down := 0.0
	for _, word := range hedgingWords {
		if containsWord(lower, word) {
			down += 0.1
		}
	}
	if down > 0.2 {
		down = 0.2
	}

	score := base + adjust - down
	if score < 0.1 {
		score = 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func containsAnyWord(lower string, words []string) bool {
	for _, word := range words {
		if containsWord(lower, word) {
			return true
		}
	}
	return false
}

// containsWord matches whole words so "may" does not hit "maybe" or
// "dismay". Multi-word phrases match as substrings.
func containsWord(lower, word string) bool {
	if strings.ContainsAny(word, " .") {
		return strings.Contains(lower, word)
	}
	idx := 0
	for {
		pos := strings.Index(lower[idx:], word)
		if pos < 0 {
			return false
		}
		start := idx + pos
		end := start + len(word)
		beforeOK := start == 0 || !isWordChar(lower[start-1])
		afterOK := end == len(lower) || !isWordChar(lower[end])
		if beforeOK && afterOK {
			return true
		}
		idx = end
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '_'
}
