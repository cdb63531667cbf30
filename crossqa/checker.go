// Package crossqa detects duplication, broken internal links and
// inconsistent terminology across the full article set of a run. The
// completion client supplies additional findings when available;
// every check also runs programmatically, and link validity is only
// ever decided programmatically because it needs the exact article
// identifier set.
package crossqa

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/glyphworks/kbforge/document"
	"github.com/glyphworks/kbforge/llm"
)

const (
	// StatusCompleted means all checks ran.
	StatusCompleted = "completed"
	// StatusInsufficientArticles means the run produced fewer than two
	// articles and cross-article checks were skipped.
	StatusInsufficientArticles = "insufficient_articles"
)

// Duplicate is a pair of articles judged to cover the same subject.
type Duplicate struct {
	ArticleA   string  `json:"article_a"`
	ArticleB   string  `json:"article_b"`
	TitleA     string  `json:"title_a"`
	TitleB     string  `json:"title_b"`
	Similarity float64 `json:"similarity,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// InvalidLink is an internal related link that resolves to no article.
type InvalidLink struct {
	Article string `json:"article"`
	URL     string `json:"url"`
	Reason  string `json:"reason"`
}

// DuplicateFAQ is a question asked verbatim by more than one article.
type DuplicateFAQ struct {
	Question string   `json:"question"`
	Articles []string `json:"articles"`
}

// TerminologyIssue reports a term written in more than one form across
// the set.
type TerminologyIssue struct {
	Canonical string   `json:"canonical"`
	Variants  []string `json:"variants"`
	Articles  []string `json:"articles,omitempty"`
}

// Result is the cross-article QA outcome for one run.
type Result struct {
	QAStatus          string             `json:"qa_status"`
	ArticleCount      int                `json:"article_count"`
	Duplicates        []Duplicate        `json:"duplicates"`
	InvalidLinks      []InvalidLink      `json:"invalid_related_links"`
	DuplicateFAQs     []DuplicateFAQ     `json:"duplicate_faqs"`
	TerminologyIssues []TerminologyIssue `json:"terminology_issues"`
	Summary           string             `json:"summary"`
	LLMAssisted       bool               `json:"llm_assisted"`
	CheckedAt         time.Time          `json:"checked_at"`
}

// IssueCount is the total finding count. Review priority is derived
// from this number alone.
func (r *Result) IssueCount() int {
	if r == nil {
		return 0
	}
	return len(r.Duplicates) + len(r.InvalidLinks) + len(r.DuplicateFAQs) + len(r.TerminologyIssues)
}

// ArticleSource lists the articles already known to the system, so
// internal links may target articles outside the current run.
type ArticleSource interface {
	ListArticles(ctx context.Context) ([]*document.Article, error)
}

// Checker runs the cross-article consistency checks.
type Checker struct {
	client *llm.Client
	source ArticleSource
	logger *slog.Logger
}

// NewChecker creates a Checker. A nil client limits analysis to the
// programmatic path; a nil source limits link validity to the run's
// own articles.
func NewChecker(client *llm.Client, source ArticleSource, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{client: client, source: source, logger: logger}
}

// Check analyzes the article set. Fewer than two articles
// short-circuits without any completion call. Completion failures and
// unparseable responses degrade to programmatic findings only.
func (c *Checker) Check(ctx context.Context, articles []*document.Article) *Result {
	result := &Result{
		QAStatus:     StatusCompleted,
		ArticleCount: len(articles),
		CheckedAt:    time.Now().UTC(),
	}
	if len(articles) < 2 {
		result.QAStatus = StatusInsufficientArticles
		result.Summary = "fewer than two articles, cross-article checks skipped"
		return result
	}

	known := c.knownSlugs(ctx, articles)
	result.Duplicates = titleDuplicates(articles)
	result.InvalidLinks = invalidLinks(articles, known)
	result.DuplicateFAQs = faqDuplicates(articles)
	result.TerminologyIssues = terminologyIssues(articles)

	if c.client != nil {
		if findings, err := c.requestFindings(ctx, articles); err != nil {
			c.logger.Warn("cross-article completion unavailable, keeping programmatic findings",
				"articles", len(articles),
				"error", err)
		} else {
			c.merge(result, findings, articles)
			result.LLMAssisted = true
		}
	}

	result.Summary = fmt.Sprintf("%d duplicate titles, %d invalid related links, %d duplicate faq questions, %d terminology issues across %d articles",
		len(result.Duplicates), len(result.InvalidLinks), len(result.DuplicateFAQs),
		len(result.TerminologyIssues), len(articles))
	return result
}

// knownSlugs is the identifier set internal links may point at: this
// run's articles plus whatever the source already holds.
func (c *Checker) knownSlugs(ctx context.Context, articles []*document.Article) map[string]bool {
	known := make(map[string]bool, len(articles))
	for _, a := range articles {
		if a.DocSlug != "" {
			known[a.DocSlug] = true
		}
	}
	if c.source == nil {
		return known
	}
	stored, err := c.source.ListArticles(ctx)
	if err != nil {
		c.logger.Warn("article source unavailable, checking links against run articles only", "error", err)
		return known
	}
	for _, a := range stored {
		if a != nil && a.DocSlug != "" {
			known[a.DocSlug] = true
		}
	}
	return known
}

// merge unions completion findings into the programmatic result.
// Duplicate pairs are keyed ignoring order, FAQ entries by normalized
// question and terminology by canonical term. Slugs the run does not
// contain are dropped.
func (c *Checker) merge(result *Result, findings *llmFindings, articles []*document.Article) {
	titles := make(map[string]string, len(articles))
	runSlugs := make(map[string]bool, len(articles))
	for _, a := range articles {
		titles[a.DocSlug] = a.Title
		runSlugs[a.DocSlug] = true
	}

	pairs := make(map[string]bool, len(result.Duplicates))
	for _, d := range result.Duplicates {
		pairs[pairKey(d.ArticleA, d.ArticleB)] = true
	}
	for _, d := range findings.Duplicates {
		if !runSlugs[d.ArticleA] || !runSlugs[d.ArticleB] || d.ArticleA == d.ArticleB {
			continue
		}
		key := pairKey(d.ArticleA, d.ArticleB)
		if pairs[key] {
			continue
		}
		pairs[key] = true
		result.Duplicates = append(result.Duplicates, Duplicate{
			ArticleA: d.ArticleA,
			ArticleB: d.ArticleB,
			TitleA:   titles[d.ArticleA],
			TitleB:   titles[d.ArticleB],
			Reason:   d.Reason,
		})
	}

	questions := make(map[string]bool, len(result.DuplicateFAQs))
	for _, f := range result.DuplicateFAQs {
		questions[normalizeQuestion(f.Question)] = true
	}
	for _, f := range findings.DuplicateFAQs {
		key := normalizeQuestion(f.Question)
		if key == "" || questions[key] {
			continue
		}
		var slugs []string
		for _, s := range f.Articles {
			if runSlugs[s] {
				slugs = append(slugs, s)
			}
		}
		if len(slugs) < 2 {
			continue
		}
		questions[key] = true
		result.DuplicateFAQs = append(result.DuplicateFAQs, DuplicateFAQ{Question: f.Question, Articles: slugs})
	}

	terms := make(map[string]bool, len(result.TerminologyIssues))
	for _, t := range result.TerminologyIssues {
		terms[strings.ToLower(t.Canonical)] = true
	}
	for _, t := range findings.TerminologyIssues {
		key := strings.ToLower(strings.TrimSpace(t.Canonical))
		if key == "" || terms[key] || len(t.Variants) == 0 {
			continue
		}
		terms[key] = true
		result.TerminologyIssues = append(result.TerminologyIssues, TerminologyIssue{
			Canonical: t.Canonical,
			Variants:  t.Variants,
		})
	}
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// sortSlugs keeps article lists in findings deterministic.
func sortSlugs(slugs []string) []string {
	sort.Strings(slugs)
	return slugs
}
