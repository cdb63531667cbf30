package crossqa

import (
	"regexp"
	"strings"

	"github.com/glyphworks/kbforge/document"
)

// titleSimilarityThreshold is the word-overlap ratio above which two
// titles count as duplicates. The comparison is strict: exactly this
// ratio does not flag.
const titleSimilarityThreshold = 0.8

var (
	// renderedCodeRe matches code blocks the normalizer already
	// converted to pre/code form.
	renderedCodeRe = regexp.MustCompile(`(?s)<pre><code[^>]*>.*?</code></pre>`)
	fencedRe       = regexp.MustCompile("(?ms)^```[^\n]*\n.*?^```[ \t]*$")
	inlineRe       = regexp.MustCompile("`[^`\n]+`")
	listMarkerRe   = regexp.MustCompile(`^([-*+]|\d+[.)])\s+`)
)

// termEntry maps a canonical term to its known variant spellings.
// Matching is case-sensitive so the canonical form never counts as its
// own variant.
type termEntry struct {
	canonical string
	forms     []*regexp.Regexp
	names     []string
}

func newTermEntry(canonical string, variants ...string) termEntry {
	names := append([]string{canonical}, variants...)
	forms := make([]*regexp.Regexp, len(names))
	for i, name := range names {
		forms[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
	}
	return termEntry{canonical: canonical, forms: forms, names: names}
}

var termVariants = []termEntry{
	newTermEntry("JavaScript", "Javascript", "javascript", "java script"),
	newTermEntry("TypeScript", "Typescript", "typescript"),
	newTermEntry("Node.js", "NodeJS", "nodejs", "node js"),
	newTermEntry("PostgreSQL", "Postgres", "postgres", "postgresql"),
	newTermEntry("GitHub", "Github", "github"),
	newTermEntry("Kubernetes", "kubernetes", "K8s", "k8s"),
	newTermEntry("OAuth", "Oauth", "oauth"),
	newTermEntry("WebSocket", "Websocket", "websocket", "web socket"),
}

// titleDuplicates flags article pairs whose title word sets overlap
// beyond the similarity threshold.
func titleDuplicates(articles []*document.Article) []Duplicate {
	var dups []Duplicate
	for i := 0; i < len(articles); i++ {
		for j := i + 1; j < len(articles); j++ {
			sim := jaccard(titleWords(articles[i].Title), titleWords(articles[j].Title))
			if sim <= titleSimilarityThreshold {
				continue
			}
			dups = append(dups, Duplicate{
				ArticleA:   articles[i].DocSlug,
				ArticleB:   articles[j].DocSlug,
				TitleA:     articles[i].Title,
				TitleB:     articles[j].Title,
				Similarity: sim,
				Reason:     "similar titles",
			})
		}
	}
	return dups
}

func titleWords(title string) map[string]bool {
	words := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(title)) {
		words[w] = true
	}
	return words
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// faqDuplicates flags questions asked by two or more articles. The
// match is exact after case and whitespace normalization.
func faqDuplicates(articles []*document.Article) []DuplicateFAQ {
	byQuestion := map[string]map[string]bool{}
	display := map[string]string{}
	var order []string
	for _, a := range articles {
		for _, q := range extractQuestions(a.Content) {
			key := normalizeQuestion(q)
			if key == "" {
				continue
			}
			if byQuestion[key] == nil {
				byQuestion[key] = map[string]bool{}
				display[key] = q
				order = append(order, key)
			}
			byQuestion[key][a.DocSlug] = true
		}
	}

	var dups []DuplicateFAQ
	for _, key := range order {
		if len(byQuestion[key]) < 2 {
			continue
		}
		var slugs []string
		for s := range byQuestion[key] {
			slugs = append(slugs, s)
		}
		dups = append(dups, DuplicateFAQ{Question: display[key], Articles: sortSlugs(slugs)})
	}
	return dups
}

// extractQuestions pulls FAQ questions out of article content: any
// heading ending in a question mark, plus question lines inside a
// section whose heading mentions FAQ.
func extractQuestions(content string) []string {
	content = renderedCodeRe.ReplaceAllString(content, "")

	var questions []string
	inFence := false
	inFAQ := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if rest := strings.TrimLeft(trimmed, "#"); len(rest) < len(trimmed) && strings.HasPrefix(rest, " ") {
			text := strings.TrimSpace(rest)
			lower := strings.ToLower(text)
			inFAQ = strings.Contains(lower, "faq") || strings.Contains(lower, "frequently asked")
			if strings.HasSuffix(text, "?") {
				questions = append(questions, text)
			}
			continue
		}
		if !inFAQ || trimmed == "" {
			continue
		}
		text := listMarkerRe.ReplaceAllString(trimmed, "")
		text = strings.Trim(text, "* ")
		if strings.HasSuffix(text, "?") {
			questions = append(questions, text)
		}
	}
	return questions
}

func normalizeQuestion(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// terminologyIssues flags terms from the variant table written in more
// than one form across the set. A single consistent form, canonical or
// not, is not an issue.
func terminologyIssues(articles []*document.Article) []TerminologyIssue {
	var issues []TerminologyIssue
	for _, entry := range termVariants {
		formsSeen := map[string]bool{}
		articleSet := map[string]bool{}
		for _, a := range articles {
			prose := stripAllCode(a.Content)
			for i, re := range entry.forms {
				if re.MatchString(prose) {
					formsSeen[entry.names[i]] = true
					articleSet[a.DocSlug] = true
				}
			}
		}
		if len(formsSeen) < 2 {
			continue
		}
		var variants []string
		for _, name := range entry.names[1:] {
			if formsSeen[name] {
				variants = append(variants, name)
			}
		}
		var slugs []string
		for s := range articleSet {
			slugs = append(slugs, s)
		}
		issues = append(issues, TerminologyIssue{
			Canonical: entry.canonical,
			Variants:  variants,
			Articles:  sortSlugs(slugs),
		})
	}
	return issues
}

func stripAllCode(content string) string {
	out := fencedRe.ReplaceAllString(content, "")
	out = renderedCodeRe.ReplaceAllString(out, "")
	return inlineRe.ReplaceAllString(out, "")
}

// invalidLinks verifies every internal related link against the known
// identifier set. External links are not checked; their liveness is
// outside this run's knowledge.
func invalidLinks(articles []*document.Article, known map[string]bool) []InvalidLink {
	var out []InvalidLink
	for _, a := range articles {
		if a.RelatedLinks == nil {
			continue
		}
		for _, link := range a.RelatedLinks.Internal {
			slug := strings.TrimPrefix(link.URL, "/kb/")
			switch {
			case slug == link.URL || slug == "":
				out = append(out, InvalidLink{Article: a.DocSlug, URL: link.URL, Reason: "not an internal article path"})
			case !known[slug]:
				out = append(out, InvalidLink{Article: a.DocSlug, URL: link.URL, Reason: "no article with this identifier"})
			}
		}
	}
	return out
}
