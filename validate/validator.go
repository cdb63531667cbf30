// Package validate computes the authoritative quality report for a
// processing run. Every check is rule-based and regex-driven so
// identical input always produces an identical report; the publish
// gate reads nothing else.
package validate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/glyphworks/kbforge/document"
)

const (
	// minSectionChars is the body length below which a section counts
	// as minimal content.
	minSectionChars = 50
	// shortContentWords and longContentWords bound acceptable output
	// length.
	shortContentWords = 50
	longContentWords  = 5000
	// headingSpanLimit is the widest acceptable spread of heading
	// levels.
	headingSpanLimit = 3
)

// Pre-compiled patterns for the text heuristics.
var (
	// claimRe matches absolute, certainty and vague-authority language.
	claimRe = regexp.MustCompile(`(?i)\b(always|never|undoubtedly|obviously|clearly|definitely|certainly|of course|everyone knows|it is well known|studies show|experts agree|research shows|industry[- ]leading|best in class)\b`)
	// vagueRe matches hand-wavy technical language.
	vagueRe = regexp.MustCompile(`(?i)\b(somehow|some kind of|sort of|kind of|more or less|a bit of|stuff|things like that|and so on|basically|roughly)\b`)
	// placeholderRe matches bracketed gap markers.
	placeholderRe = regexp.MustCompile(`\[(MISSING|TODO|TBD|PLACEHOLDER|FIXME)\]`)
	// ellipsisLineRe matches a bare ellipsis standing in for content.
	ellipsisLineRe = regexp.MustCompile(`(?m)^\s*(\.\.\.|…)\s*$`)
	loremRe        = regexp.MustCompile(`(?i)lorem ipsum`)
	// technicalTopicRe detects content that should carry code examples.
	technicalTopicRe = regexp.MustCompile(`(?i)\b(api|endpoint|function|install|configure|command|sdk|library|database|deploy|server)\b`)
	urlRe            = regexp.MustCompile(`https?://\S+`)

	fencedBlockRe = regexp.MustCompile("(?ms)^```[^\n]*\n.*?^```[ \t]*$")
	preCodeRe     = regexp.MustCompile(`(?s)<pre><code[^>]*>.*?</code></pre>`)
	inlineCodeRe  = regexp.MustCompile("`[^`\n]+`")
)

// capsTerms are technical initialisms whose casing must be consistent
// throughout a document.
var capsTerms = []struct {
	canonical string
	re        *regexp.Regexp
}{
	{"API", regexp.MustCompile(`(?i)\bapi\b`)},
	{"JSON", regexp.MustCompile(`(?i)\bjson\b`)},
	{"HTTP", regexp.MustCompile(`(?i)\bhttp\b`)},
	{"URL", regexp.MustCompile(`(?i)\burl\b`)},
	{"HTML", regexp.MustCompile(`(?i)\bhtml\b`)},
	{"CSS", regexp.MustCompile(`(?i)\bcss\b`)},
}

// Validator runs the full rule set against a normalized document. It
// holds no state; one instance serves any number of runs concurrently.
type Validator struct{}

// New creates a Validator.
func New() *Validator {
	return &Validator{}
}

// Validate computes the QA report for a normalized document. A nil
// bundle switches coverage to word-count banding; with a bundle the
// ratio of surviving words drives the band. All flag checks run
// unconditionally and their results are concatenated in fixed order.
func (v *Validator) Validate(norm *document.NormDoc, bundle *document.RawBundle) *document.QAReport {
	content := norm.Content()
	words := wordCount(norm, content)

	report := &document.QAReport{
		JobID:           norm.JobID,
		CoveragePercent: coveragePercent(words, bundle),
		GeneratedAt:     time.Now().UTC(),
	}

	prose := stripCode(content)
	hrefs, embeddedImgs, missingImgs := htmlRefs(content)

	v.checkCoverage(report)
	v.checkClaims(report, prose)
	v.checkPlaceholders(report, content, norm.Sections)
	v.checkDuplicates(report, prose)
	v.checkLinks(report, content, hrefs)
	v.checkMedia(report, content, embeddedImgs, missingImgs)
	v.checkQuality(report, content, words)
	v.checkTerminology(report, prose)

	return report
}

// coveragePercent maps output size to a coverage estimate. Without a
// raw bundle the absolute word count stands in for the ratio.
func coveragePercent(normWords int, bundle *document.RawBundle) float64 {
	rawWords := 0
	if bundle != nil {
		rawWords = bundle.WordCount()
	}
	if rawWords == 0 {
		switch {
		case normWords < 50:
			return 30
		case normWords < 200:
			return 65
		case normWords < 500:
			return 80
		default:
			return 92
		}
	}

	ratio := float64(normWords) / float64(rawWords)
	switch {
	case ratio >= 0.9:
		return 95
	case ratio >= 0.8:
		return 87
	case ratio >= 0.7:
		return 78
	case ratio >= 0.5:
		return 65
	default:
		return max(ratio*100, 30)
	}
}

func (v *Validator) checkCoverage(report *document.QAReport) {
	switch {
	case report.CoveragePercent < 70:
		report.AddFlag(document.FlagCriticalCoverage, document.SeverityP0,
			fmt.Sprintf("coverage %.0f%% is below the publish floor", report.CoveragePercent), "")
	case report.CoveragePercent < 85:
		report.AddFlag(document.FlagLowCoverage, document.SeverityP1,
			fmt.Sprintf("coverage %.0f%% is below target", report.CoveragePercent), "")
	}
}

func (v *Validator) checkClaims(report *document.QAReport, prose string) {
	seen := map[string]bool{}
	var unique []string
	for _, m := range claimRe.FindAllString(prose, -1) {
		key := strings.ToLower(m)
		if !seen[key] {
			seen[key] = true
			unique = append(unique, key)
		}
	}
	if len(unique) < 3 {
		return
	}

	code, severity := document.FlagUnsupportedClaims, document.SeverityP1
	if len(unique) >= 5 {
		code, severity = document.FlagSevereClaims, document.SeverityP0
	}
	report.AddFlag(code, severity,
		fmt.Sprintf("%d unsupported claim phrases, e.g. %s", len(unique), strings.Join(unique[:3], ", ")), "")
}

func (v *Validator) checkPlaceholders(report *document.QAReport, content string, sections []document.Section) {
	n := len(placeholderRe.FindAllString(content, -1)) +
		len(ellipsisLineRe.FindAllString(content, -1)) +
		len(loremRe.FindAllString(content, -1))
	if n > 0 {
		code, severity := document.FlagPlaceholders, document.SeverityP1
		if n >= 5 {
			code, severity = document.FlagSeverePlaceholders, document.SeverityP0
		}
		report.AddFlag(code, severity, fmt.Sprintf("%d placeholder markers present", n), "")
	}

	minimal := 0
	location := ""
	for _, sec := range sections {
		if len(strings.TrimSpace(sec.Content)) < minSectionChars {
			minimal++
			if location == "" {
				location = sec.AnchorID
			}
		}
	}
	if minimal >= 2 {
		report.AddFlag(document.FlagMinimalSections, document.SeverityP1,
			fmt.Sprintf("%d sections have minimal content", minimal), location)
	}
}

func (v *Validator) checkQuality(report *document.QAReport, content string, words int) {
	if words < shortContentWords {
		report.AddFlag(document.FlagContentTooShort, document.SeverityP1,
			fmt.Sprintf("content is only %d words", words), "")
	}
	if words > longContentWords {
		report.AddFlag(document.FlagContentTooLong, document.SeverityP1,
			fmt.Sprintf("content is %d words, consider splitting", words), "")
	}

	levels := headingLevels(content)
	if len(levels) == 0 {
		report.AddFlag(document.FlagNoHeadings, document.SeverityP1, "content has no headings", "")
	} else if span := levels[len(levels)-1] - levels[0]; span > headingSpanLimit {
		report.AddFlag(document.FlagHeadingSpan, document.SeverityP1,
			fmt.Sprintf("heading levels span %d steps", span), "")
	}

	if technicalTopic(content) && !hasCode(content) {
		report.AddFlag(document.FlagNoCodeExamples, document.SeverityP1,
			"technical topic without code examples", "")
	}
}

func (v *Validator) checkTerminology(report *document.QAReport, prose string) {
	if n := len(vagueRe.FindAllString(prose, -1)); n >= 3 {
		code, severity := document.FlagVagueTechnical, document.SeverityP1
		if n >= 6 {
			code, severity = document.FlagSevereVagueTechnical, document.SeverityP0
		}
		report.AddFlag(code, severity, fmt.Sprintf("%d vague technical phrases", n), "")
	}

	// URLs force lowercase scheme and host text, so drop them before
	// judging capitalization.
	capsProse := urlRe.ReplaceAllString(prose, "")
	var inconsistent []string
	for _, term := range capsTerms {
		forms := map[string]bool{}
		for _, m := range term.re.FindAllString(capsProse, -1) {
			forms[m] = true
		}
		if len(forms) > 1 {
			inconsistent = append(inconsistent, term.canonical)
		}
	}
	if len(inconsistent) > 0 {
		report.AddFlag(document.FlagInconsistentTerms, document.SeverityP1,
			"inconsistent capitalization: "+strings.Join(inconsistent, ", "), "")
	}
}

// technicalTopic reports whether the content discusses at least two
// distinct technical subjects.
func technicalTopic(content string) bool {
	seen := map[string]bool{}
	for _, m := range technicalTopicRe.FindAllString(content, -1) {
		seen[strings.ToLower(m)] = true
		if len(seen) >= 2 {
			return true
		}
	}
	return false
}

func hasCode(content string) bool {
	return strings.Contains(content, "```") || strings.Contains(content, "<pre><code")
}

// stripCode removes fenced blocks, rendered pre/code blocks and inline
// spans so the text heuristics only see prose.
func stripCode(content string) string {
	out := fencedBlockRe.ReplaceAllString(content, "")
	out = preCodeRe.ReplaceAllString(out, "")
	return inlineCodeRe.ReplaceAllString(out, "")
}

// headingLevels returns the distinct heading levels in the content,
// smallest first. Fenced lines do not count.
func headingLevels(content string) []int {
	seen := map[int]bool{}
	var levels []int
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
		n := len(line) - len(rest)
		if n < 1 || n > 6 || !strings.HasPrefix(rest, " ") || strings.TrimSpace(rest) == "" {
			continue
		}
		if !seen[n] {
			seen[n] = true
			levels = append(levels, n)
		}
	}
	sort.Ints(levels)
	return levels
}

func wordCount(norm *document.NormDoc, content string) int {
	if norm.WordCount > 0 {
		return norm.WordCount
	}
	return len(strings.Fields(content))
}
