package enrich

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/glyphworks/kbforge/document"
)

var (
	styleHeadingRe = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	bulletRe       = regexp.MustCompile(`^(\s*)[*+](\s+)(.*)$`)
	orderedParenRe = regexp.MustCompile(`^(\s*)(\d+)\)(\s+)(.*)$`)
)

// StyleProcessor normalizes heading hierarchy, list markers and
// whitespace. Article bodies start at H2; H1 lines are demoted and
// level jumps are pulled back to one below their parent.
type StyleProcessor struct{}

// NewStyleProcessor creates a StyleProcessor.
func NewStyleProcessor() *StyleProcessor {
	return &StyleProcessor{}
}

// Name implements Enricher.
func (s *StyleProcessor) Name() string {
	return "style"
}

// Enrich implements Enricher.
func (s *StyleProcessor) Enrich(_ context.Context, article *document.Article) (*document.Article, error) {
	content, meta := s.process(article.Content)
	article.Content = content
	article.Style = meta
	if meta.HeadingAdjustments > 0 {
		article.Headings = document.ExtractHeadings(content)
	}
	return article, nil
}

func (s *StyleProcessor) process(content string) (string, *document.StyleMeta) {
	meta := &document.StyleMeta{}
	demoted := 0
	pulled := 0

	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))
	inFence := false
	prevLevel := 1
	blanks := 0

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			out = append(out, line)
			blanks = 0
			continue
		}
		if inFence {
			out = append(out, line)
			continue
		}

		if trimmed := strings.TrimRight(line, " \t"); trimmed != line {
			line = trimmed
			meta.WhitespaceFixes++
		}

		if line == "" {
			blanks++
			if blanks > 1 {
				meta.WhitespaceFixes++
				continue
			}
			out = append(out, line)
			continue
		}
		blanks = 0

		if m := styleHeadingRe.FindStringSubmatch(line); m != nil {
			level := len(m[1])
			switch {
			case level == 1:
				level = 2
				demoted++
			case level > prevLevel+1:
				level = prevLevel + 1
				pulled++
			}
			prevLevel = level
			line = strings.Repeat("#", level) + " " + m[2]
		} else if m := bulletRe.FindStringSubmatch(line); m != nil {
			line = m[1] + "-" + m[2] + m[3]
			meta.ListFixes++
		} else if m := orderedParenRe.FindStringSubmatch(line); m != nil {
			line = m[1] + m[2] + "." + m[3] + m[4]
			meta.ListFixes++
		}

		out = append(out, line)
	}

	meta.HeadingAdjustments = demoted + pulled
	if demoted > 0 {
		meta.Notes = append(meta.Notes, fmt.Sprintf("demoted %d top-level headings", demoted))
	}
	if pulled > 0 {
		meta.Notes = append(meta.Notes, fmt.Sprintf("flattened %d heading level jumps", pulled))
	}
	if meta.ListFixes > 0 {
		meta.Notes = append(meta.Notes, fmt.Sprintf("normalized %d list markers", meta.ListFixes))
	}
	meta.ProcessedAt = time.Now().UTC()

	return strings.TrimRight(strings.Join(out, "\n"), "\n"), meta
}
