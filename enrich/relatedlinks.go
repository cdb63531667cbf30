package enrich

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/glyphworks/kbforge/document"
)

const (
	// indexRefreshInterval is the minimum age before the article index
	// is rebuilt from the source.
	indexRefreshInterval = 5 * time.Minute
	// maxKeywords caps the keyword set per article.
	maxKeywords = 20
	// similarityFloor drops weak matches.
	similarityFloor = 0.1
	// maxInternalLinks caps suggested internal links.
	maxInternalLinks = 5
	// maxExternalLinks caps extracted external links.
	maxExternalLinks = 10
)

var (
	markdownLinkRe = regexp.MustCompile(`\[([^\]]*)\]\((https?://[^)\s]+)\)`)
	wordRe         = regexp.MustCompile(`[a-z0-9]+`)
)

// stopWords are excluded from keyword extraction.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "her": {}, "was": {}, "one": {},
	"our": {}, "out": {}, "use": {}, "has": {}, "have": {}, "had": {},
	"this": {}, "that": {}, "with": {}, "from": {}, "they": {}, "will": {},
	"each": {}, "when": {}, "which": {}, "their": {}, "them": {}, "then": {},
	"than": {}, "also": {}, "into": {}, "only": {}, "other": {}, "some": {},
	"such": {}, "what": {}, "where": {}, "while": {}, "your": {}, "these": {},
	"there": {}, "more": {}, "most": {}, "over": {}, "very": {}, "must": {},
	"should": {}, "could": {}, "would": {}, "about": {}, "after": {},
	"before": {}, "between": {}, "does": {}, "been": {}, "being": {},
}

// ArticleSource lists the articles the linker can point to.
type ArticleSource interface {
	ListArticles(ctx context.Context) ([]*document.Article, error)
}

// linkCandidate is one indexed article.
type linkCandidate struct {
	docUID   string
	title    string
	slug     string
	keywords map[string]struct{}
}

// Linker suggests related links: internal candidates ranked by keyword
// overlap against a lazily refreshed index, plus external URLs lifted
// from the article body. Internal links always rank above external.
type Linker struct {
	source ArticleSource
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	index       []linkCandidate
	refreshedAt time.Time
}

// NewLinker creates a Linker. A nil source keeps internal suggestions
// empty; a nil logger falls back to slog.Default().
func NewLinker(source ArticleSource, logger *slog.Logger) *Linker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Linker{
		source: source,
		logger: logger,
		now:    time.Now,
	}
}

// Name implements Enricher.
func (l *Linker) Name() string {
	return "related_links"
}

// Enrich implements Enricher. Index trouble degrades to whatever the
// index last held; it never fails the article.
func (l *Linker) Enrich(ctx context.Context, article *document.Article) (*document.Article, error) {
	keywords := keywordSet(article.Title + " " + article.Content)

	internal := l.internalLinks(ctx, article, keywords)
	external := externalLinks(article.Content)

	article.RelatedLinks = &document.RelatedLinksMeta{
		Internal:    internal,
		External:    external,
		GeneratedAt: l.now().UTC(),
	}
	return article, nil
}

func (l *Linker) internalLinks(ctx context.Context, article *document.Article, keywords map[string]struct{}) []document.RelatedLink {
	candidates := l.candidates(ctx)

	type scored struct {
		link  document.RelatedLink
		score float64
	}
	var matches []scored
	for _, c := range candidates {
		if c.docUID == article.DocUID || c.slug == article.DocSlug {
			continue
		}
		score := jaccard(keywords, c.keywords)
		if score < similarityFloor {
			continue
		}
		matches = append(matches, scored{
			link: document.RelatedLink{
				Title: c.title,
				URL:   "/kb/" + c.slug,
				Score: score,
			},
			score: score,
		})
	}

	sort.Slice(matches, func(a, b int) bool {
		if matches[a].score != matches[b].score {
			return matches[a].score > matches[b].score
		}
		return matches[a].link.Title < matches[b].link.Title
	})
	if len(matches) > maxInternalLinks {
		matches = matches[:maxInternalLinks]
	}

	out := make([]document.RelatedLink, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.link)
	}
	return out
}

// candidates returns the index, rebuilding it when stale. A failed
// refresh keeps the previous index.
func (l *Linker) candidates(ctx context.Context) []linkCandidate {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.source == nil {
		return nil
	}
	if l.index != nil && l.now().Sub(l.refreshedAt) < indexRefreshInterval {
		return l.index
	}

	articles, err := l.source.ListArticles(ctx)
	if err != nil {
		l.logger.Warn("related-links index refresh failed, keeping stale index", "error", err)
		return l.index
	}

	index := make([]linkCandidate, 0, len(articles))
	for _, a := range articles {
		index = append(index, linkCandidate{
			docUID:   a.DocUID,
			title:    a.Title,
			slug:     a.DocSlug,
			keywords: keywordSet(a.Title + " " + a.Content),
		})
	}
	l.index = index
	l.refreshedAt = l.now()
	return l.index
}

// externalLinks extracts http(s) URLs from markdown links and inline
// HTML anchors, deduplicated in order of appearance.
func externalLinks(content string) []document.RelatedLink {
	var links []document.RelatedLink
	seen := map[string]bool{}
	add := func(title, url string) {
		if len(links) >= maxExternalLinks || seen[url] {
			return
		}
		seen[url] = true
		if title == "" {
			title = url
		}
		links = append(links, document.RelatedLink{Title: title, URL: url})
	}

	for _, m := range markdownLinkRe.FindAllStringSubmatch(content, -1) {
		add(strings.TrimSpace(m[1]), m[2])
	}

	if strings.Contains(content, "<a ") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(content)); err == nil {
			doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
				href, _ := sel.Attr("href")
				if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
					add(strings.TrimSpace(sel.Text()), href)
				}
			})
		}
	}
	return links
}

// keywordSet extracts the top stop-word-filtered keywords by
// frequency, ties broken alphabetically.
func keywordSet(text string) map[string]struct{} {
	freq := map[string]int{}
	for _, word := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if len(word) < 3 {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		freq[word]++
	}

	words := make([]string, 0, len(freq))
	for word := range freq {
		words = append(words, word)
	}
	sort.Slice(words, func(a, b int) bool {
		if freq[words[a]] != freq[words[b]] {
			return freq[words[a]] > freq[words[b]]
		}
		return words[a] < words[b]
	})
	if len(words) > maxKeywords {
		words = words[:maxKeywords]
	}

	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}

// jaccard is intersection over union of two keyword sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for word := range a {
		if _, ok := b[word]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
