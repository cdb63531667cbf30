package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/glyphworks/kbforge/document"
)

const (
	// minDuplicateChars keeps trivially short fragments out of the
	// duplicate counts.
	minDuplicateChars = 40
	// severeDuplicateRepetitions escalates sentence duplication to P0.
	severeDuplicateRepetitions = 3
)

var sentenceRe = regexp.MustCompile(`[^.!?\n]+[.!?]`)

// checkDuplicates counts exact-match repetition at the paragraph and
// sentence level. Comparison keys are whitespace-normalized; heading
// lines and short fragments are skipped.
func (v *Validator) checkDuplicates(report *document.QAReport, prose string) {
	paraCounts := map[string]int{}
	for _, para := range strings.Split(prose, "\n\n") {
		trimmed := strings.TrimSpace(para)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		key := strings.Join(strings.Fields(trimmed), " ")
		if len(key) < minDuplicateChars {
			continue
		}
		paraCounts[key]++
	}
	duplicated := 0
	for _, n := range paraCounts {
		if n > 1 {
			duplicated++
		}
	}
	if duplicated > 0 {
		report.AddFlag(document.FlagDuplicateParagraphs, document.SeverityP0,
			fmt.Sprintf("%d paragraphs appear more than once", duplicated), "")
	}

	sentCounts := map[string]int{}
	for _, s := range sentenceRe.FindAllString(prose, -1) {
		key := strings.Join(strings.Fields(s), " ")
		if len(key) < minDuplicateChars {
			continue
		}
		sentCounts[key]++
	}
	repetitions := 0
	for _, n := range sentCounts {
		if n > 1 {
			repetitions += n - 1
		}
	}
	if repetitions == 0 {
		return
	}

	code, severity := document.FlagDuplicateSentences, document.SeverityP1
	if repetitions >= severeDuplicateRepetitions {
		code, severity = document.FlagSevereDuplication, document.SeverityP0
	}
	report.AddFlag(code, severity, fmt.Sprintf("%d repeated sentences", repetitions), "")
}
