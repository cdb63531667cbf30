// Package memstore is the process-local store implementation. It backs
// tests, dry runs and any deployment without NATS.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/glyphworks/kbforge/document"
	"github.com/glyphworks/kbforge/store"
)

// Store holds every repository in mutex-guarded maps. Articles are
// deep-copied on the way in and out so callers never alias stored
// state.
type Store struct {
	mu       sync.RWMutex
	articles map[string]*document.Article
	bySlug   map[string]string
	reports  map[string]*document.QAReport
	versions map[string]*document.Version
	assets   map[string]*store.Asset
	reviews  []*document.ReviewRequest
}

var (
	_ store.ArticleRepository = (*Store)(nil)
	_ store.ReportRepository  = (*Store)(nil)
	_ store.VersionRepository = (*Store)(nil)
	_ store.AssetRepository   = (*Store)(nil)
	_ store.ReviewQueue       = (*Store)(nil)
)

// New creates an empty Store.
func New() *Store {
	return &Store{
		articles: map[string]*document.Article{},
		bySlug:   map[string]string{},
		reports:  map[string]*document.QAReport{},
		versions: map[string]*document.Version{},
		assets:   map[string]*store.Asset{},
	}
}

// InsertArticle stores a new article keyed by DocUID.
func (s *Store) InsertArticle(_ context.Context, article *document.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.articles[article.DocUID]; ok {
		return store.ErrAlreadyExists
	}
	s.put(article)
	return nil
}

// UpsertContent replaces the stored article or inserts it when absent.
func (s *Store) UpsertContent(_ context.Context, article *document.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.articles[article.DocUID]; ok && prev.DocSlug != article.DocSlug {
		delete(s.bySlug, prev.DocSlug)
	}
	s.put(article)
	return nil
}

// put stores a clone under both indexes. Callers hold the write lock.
func (s *Store) put(article *document.Article) {
	cp := article.Clone()
	s.articles[cp.DocUID] = cp
	if cp.DocSlug != "" {
		s.bySlug[cp.DocSlug] = cp.DocUID
	}
}

func (s *Store) FindByDocUID(_ context.Context, docUID string) (*document.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	article, ok := s.articles[docUID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return article.Clone(), nil
}

func (s *Store) FindByDocSlug(_ context.Context, docSlug string) (*document.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uid, ok := s.bySlug[docSlug]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.articles[uid].Clone(), nil
}

// UpdateHeadings replaces the heading list of a stored article.
func (s *Store) UpdateHeadings(_ context.Context, docUID string, headings []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	article, ok := s.articles[docUID]
	if !ok {
		return store.ErrNotFound
	}
	article.Headings = append([]string(nil), headings...)
	article.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateXrefs replaces the internal related links of a stored article.
func (s *Store) UpdateXrefs(_ context.Context, docUID string, links []document.RelatedLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	article, ok := s.articles[docUID]
	if !ok {
		return store.ErrNotFound
	}
	if article.RelatedLinks == nil {
		article.RelatedLinks = &document.RelatedLinksMeta{}
	}
	article.RelatedLinks.Internal = append([]document.RelatedLink(nil), links...)
	article.RelatedLinks.GeneratedAt = time.Now().UTC()
	article.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) FindByEngine(_ context.Context, engine string) ([]*document.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*document.Article
	for _, article := range s.articles {
		if article.Engine == engine {
			out = append(out, article.Clone())
		}
	}
	sortByUpdated(out)
	return out, nil
}

func (s *Store) FindRecent(_ context.Context, limit int) ([]*document.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*document.Article, 0, len(s.articles))
	for _, article := range s.articles {
		out = append(out, article.Clone())
	}
	sortByUpdated(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListArticles(_ context.Context) ([]*document.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*document.Article, 0, len(s.articles))
	for _, article := range s.articles {
		out = append(out, article.Clone())
	}
	sortByUpdated(out)
	return out, nil
}

// sortByUpdated orders newest first, DocUID as tiebreak so results are
// stable.
func sortByUpdated(articles []*document.Article) {
	sort.Slice(articles, func(i, j int) bool {
		if !articles[i].UpdatedAt.Equal(articles[j].UpdatedAt) {
			return articles[i].UpdatedAt.After(articles[j].UpdatedAt)
		}
		return articles[i].DocUID < articles[j].DocUID
	})
}

// SaveReport keeps the latest report per job.
func (s *Store) SaveReport(_ context.Context, report *document.QAReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[report.JobID] = copyReport(report)
	return nil
}

func (s *Store) FindReport(_ context.Context, jobID string) (*document.QAReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, ok := s.reports[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyReport(report), nil
}

func copyReport(report *document.QAReport) *document.QAReport {
	cp := *report
	cp.Flags = append([]document.QAFlag(nil), report.Flags...)
	cp.BrokenLinks = append([]string(nil), report.BrokenLinks...)
	cp.MissingMedia = append([]string(nil), report.MissingMedia...)
	return &cp
}

// SaveVersion stores an immutable snapshot.
func (s *Store) SaveVersion(_ context.Context, version *document.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.versions[version.VersionID]; ok {
		return store.ErrAlreadyExists
	}
	s.versions[version.VersionID] = copyVersion(version)
	return nil
}

func (s *Store) FindVersion(_ context.Context, versionID string) (*document.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	version, ok := s.versions[versionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyVersion(version), nil
}

func (s *Store) ListVersions(_ context.Context) ([]*document.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*document.Version, 0, len(s.versions))
	for _, version := range s.versions {
		out = append(out, copyVersion(version))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].VersionID < out[j].VersionID
	})
	return out, nil
}

func copyVersion(version *document.Version) *document.Version {
	cp := *version
	cp.Articles = append([]document.ArticleSummary(nil), version.Articles...)
	return &cp
}

func (s *Store) SaveAsset(_ context.Context, asset *store.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *asset
	s.assets[asset.ID] = &cp
	return nil
}

func (s *Store) FindAsset(_ context.Context, id string) (*store.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	asset, ok := s.assets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *asset
	return &cp, nil
}

func (s *Store) FindAssetsByJob(_ context.Context, jobID string) ([]*store.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*store.Asset
	for _, asset := range s.assets {
		if asset.JobID == jobID {
			cp := *asset
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Enqueue records a review request.
func (s *Store) Enqueue(_ context.Context, req *document.ReviewRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *req
	s.reviews = append(s.reviews, &cp)
	return nil
}

// Reviews returns the queued review requests in enqueue order.
func (s *Store) Reviews() []*document.ReviewRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*document.ReviewRequest, 0, len(s.reviews))
	for _, req := range s.reviews {
		cp := *req
		out = append(out, &cp)
	}
	return out
}
