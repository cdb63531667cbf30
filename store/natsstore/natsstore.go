// Package natsstore implements the store interfaces on NATS JetStream
// KV buckets, with the review queue published to a JetStream subject.
package natsstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/glyphworks/kbforge/document"
	"github.com/glyphworks/kbforge/store"
)

// Bucket names for each record type.
const (
	BucketArticles = "KBFORGE_ARTICLES"
	BucketReports  = "KBFORGE_REPORTS"
	BucketVersions = "KBFORGE_VERSIONS"
	BucketAssets   = "KBFORGE_ASSETS"
	BucketReviews  = "KBFORGE_REVIEWS"
)

// DefaultReviewSubject is where review requests are published.
const DefaultReviewSubject = "kbforge.review.requests"

// casAttempts bounds the read-modify-update retry loop.
const casAttempts = 3

// Store provides JetStream-backed persistence.
type Store struct {
	js            jetstream.JetStream
	articles      jetstream.KeyValue
	reports       jetstream.KeyValue
	versions      jetstream.KeyValue
	assets        jetstream.KeyValue
	reviews       jetstream.KeyValue
	reviewSubject string
}

var (
	_ store.ArticleRepository = (*Store)(nil)
	_ store.ReportRepository  = (*Store)(nil)
	_ store.VersionRepository = (*Store)(nil)
	_ store.AssetRepository   = (*Store)(nil)
	_ store.ReviewQueue       = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithReviewSubject overrides the review publish subject.
func WithReviewSubject(subject string) Option {
	return func(s *Store) {
		if subject != "" {
			s.reviewSubject = subject
		}
	}
}

// New creates a Store, creating any missing KV buckets.
func New(ctx context.Context, js jetstream.JetStream, opts ...Option) (*Store, error) {
	s := &Store{js: js, reviewSubject: DefaultReviewSubject}
	for _, opt := range opts {
		opt(s)
	}

	buckets := []struct {
		name   string
		target *jetstream.KeyValue
	}{
		{BucketArticles, &s.articles},
		{BucketReports, &s.reports},
		{BucketVersions, &s.versions},
		{BucketAssets, &s.assets},
		{BucketReviews, &s.reviews},
	}
	for _, b := range buckets {
		kv, err := getOrCreateBucket(ctx, js, b.name)
		if err != nil {
			return nil, fmt.Errorf("create %s bucket: %w", strings.ToLower(b.name), err)
		}
		*b.target = kv
	}
	return s, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("kbforge %s storage", strings.ToLower(strings.TrimPrefix(name, "KBFORGE_"))),
		History:     5,
	})
}

// InsertArticle stores a new article keyed by DocUID.
func (s *Store) InsertArticle(ctx context.Context, article *document.Article) error {
	data, err := json.Marshal(article)
	if err != nil {
		return fmt.Errorf("marshal article: %w", err)
	}
	if _, err := s.articles.Create(ctx, article.DocUID, data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("store article: %w", err)
	}
	return nil
}

// UpsertContent replaces the stored article or inserts it when absent.
// The update is compare-and-swap against the entry revision so two
// concurrent runs cannot interleave partial writes.
func (s *Store) UpsertContent(ctx context.Context, article *document.Article) error {
	data, err := json.Marshal(article)
	if err != nil {
		return fmt.Errorf("marshal article: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < casAttempts; attempt++ {
		entry, err := s.articles.Get(ctx, article.DocUID)
		if isNotFound(err) {
			if _, cerr := s.articles.Create(ctx, article.DocUID, data); cerr == nil {
				return nil
			} else if !errors.Is(cerr, jetstream.ErrKeyExists) {
				return fmt.Errorf("store article: %w", cerr)
			}
			// Lost the insert race; retry as an update.
			lastErr = jetstream.ErrKeyExists
			continue
		}
		if err != nil {
			return fmt.Errorf("load article: %w", err)
		}
		_, uerr := s.articles.Update(ctx, article.DocUID, data, entry.Revision())
		if uerr == nil {
			return nil
		}
		lastErr = uerr
	}
	return fmt.Errorf("upsert article %s: %w", article.DocUID, lastErr)
}

func (s *Store) FindByDocUID(ctx context.Context, docUID string) (*document.Article, error) {
	entry, err := s.articles.Get(ctx, docUID)
	if err != nil {
		if isNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get article: %w", err)
	}
	var article document.Article
	if err := json.Unmarshal(entry.Value(), &article); err != nil {
		return nil, fmt.Errorf("unmarshal article: %w", err)
	}
	return &article, nil
}

func (s *Store) FindByDocSlug(ctx context.Context, docSlug string) (*document.Article, error) {
	articles, err := s.ListArticles(ctx)
	if err != nil {
		return nil, err
	}
	for _, article := range articles {
		if article.DocSlug == docSlug {
			return article, nil
		}
	}
	return nil, store.ErrNotFound
}

// UpdateHeadings replaces the heading list of a stored article.
func (s *Store) UpdateHeadings(ctx context.Context, docUID string, headings []string) error {
	return s.mutateArticle(ctx, docUID, func(article *document.Article) {
		article.Headings = append([]string(nil), headings...)
	})
}

// UpdateXrefs replaces the internal related links of a stored article.
func (s *Store) UpdateXrefs(ctx context.Context, docUID string, links []document.RelatedLink) error {
	return s.mutateArticle(ctx, docUID, func(article *document.Article) {
		if article.RelatedLinks == nil {
			article.RelatedLinks = &document.RelatedLinksMeta{}
		}
		article.RelatedLinks.Internal = append([]document.RelatedLink(nil), links...)
		article.RelatedLinks.GeneratedAt = time.Now().UTC()
	})
}

// mutateArticle applies a read-modify-update with CAS retries.
func (s *Store) mutateArticle(ctx context.Context, docUID string, mutate func(*document.Article)) error {
	var lastErr error
	for attempt := 0; attempt < casAttempts; attempt++ {
		entry, err := s.articles.Get(ctx, docUID)
		if isNotFound(err) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load article: %w", err)
		}
		var article document.Article
		if err := json.Unmarshal(entry.Value(), &article); err != nil {
			return fmt.Errorf("unmarshal article: %w", err)
		}
		mutate(&article)
		article.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(&article)
		if err != nil {
			return fmt.Errorf("marshal article: %w", err)
		}
		_, uerr := s.articles.Update(ctx, docUID, data, entry.Revision())
		if uerr == nil {
			return nil
		}
		lastErr = uerr
	}
	return fmt.Errorf("update article %s: %w", docUID, lastErr)
}

func (s *Store) FindByEngine(ctx context.Context, engine string) ([]*document.Article, error) {
	articles, err := s.ListArticles(ctx)
	if err != nil {
		return nil, err
	}
	var out []*document.Article
	for _, article := range articles {
		if article.Engine == engine {
			out = append(out, article)
		}
	}
	return out, nil
}

func (s *Store) FindRecent(ctx context.Context, limit int) ([]*document.Article, error) {
	articles, err := s.ListArticles(ctx)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(articles) > limit {
		articles = articles[:limit]
	}
	return articles, nil
}

func (s *Store) ListArticles(ctx context.Context) ([]*document.Article, error) {
	keys, err := s.articles.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list article keys: %w", err)
	}

	articles := make([]*document.Article, 0, len(keys))
	for _, key := range keys {
		entry, err := s.articles.Get(ctx, key)
		if err != nil {
			continue // deleted between Keys and Get
		}
		var article document.Article
		if err := json.Unmarshal(entry.Value(), &article); err != nil {
			continue
		}
		articles = append(articles, &article)
	}
	sort.Slice(articles, func(i, j int) bool {
		if !articles[i].UpdatedAt.Equal(articles[j].UpdatedAt) {
			return articles[i].UpdatedAt.After(articles[j].UpdatedAt)
		}
		return articles[i].DocUID < articles[j].DocUID
	})
	return articles, nil
}

// SaveReport keeps the latest report per job.
func (s *Store) SaveReport(ctx context.Context, report *document.QAReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if _, err := s.reports.Put(ctx, report.JobID, data); err != nil {
		return fmt.Errorf("store report: %w", err)
	}
	return nil
}

func (s *Store) FindReport(ctx context.Context, jobID string) (*document.QAReport, error) {
	entry, err := s.reports.Get(ctx, jobID)
	if err != nil {
		if isNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get report: %w", err)
	}
	var report document.QAReport
	if err := json.Unmarshal(entry.Value(), &report); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &report, nil
}

// SaveVersion stores an immutable snapshot. Create rejects an existing
// key, which preserves immutability at the bucket level.
func (s *Store) SaveVersion(ctx context.Context, version *document.Version) error {
	data, err := json.Marshal(version)
	if err != nil {
		return fmt.Errorf("marshal version: %w", err)
	}
	if _, err := s.versions.Create(ctx, version.VersionID, data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("store version: %w", err)
	}
	return nil
}

func (s *Store) FindVersion(ctx context.Context, versionID string) (*document.Version, error) {
	entry, err := s.versions.Get(ctx, versionID)
	if err != nil {
		if isNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get version: %w", err)
	}
	var version document.Version
	if err := json.Unmarshal(entry.Value(), &version); err != nil {
		return nil, fmt.Errorf("unmarshal version: %w", err)
	}
	return &version, nil
}

func (s *Store) ListVersions(ctx context.Context) ([]*document.Version, error) {
	keys, err := s.versions.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list version keys: %w", err)
	}

	versions := make([]*document.Version, 0, len(keys))
	for _, key := range keys {
		entry, err := s.versions.Get(ctx, key)
		if err != nil {
			continue
		}
		var version document.Version
		if err := json.Unmarshal(entry.Value(), &version); err != nil {
			continue
		}
		versions = append(versions, &version)
	}
	sort.Slice(versions, func(i, j int) bool {
		if !versions[i].CreatedAt.Equal(versions[j].CreatedAt) {
			return versions[i].CreatedAt.After(versions[j].CreatedAt)
		}
		return versions[i].VersionID < versions[j].VersionID
	})
	return versions, nil
}

func (s *Store) SaveAsset(ctx context.Context, asset *store.Asset) error {
	data, err := json.Marshal(asset)
	if err != nil {
		return fmt.Errorf("marshal asset: %w", err)
	}
	if _, err := s.assets.Put(ctx, asset.ID, data); err != nil {
		return fmt.Errorf("store asset: %w", err)
	}
	return nil
}

func (s *Store) FindAsset(ctx context.Context, id string) (*store.Asset, error) {
	entry, err := s.assets.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get asset: %w", err)
	}
	var asset store.Asset
	if err := json.Unmarshal(entry.Value(), &asset); err != nil {
		return nil, fmt.Errorf("unmarshal asset: %w", err)
	}
	return &asset, nil
}

func (s *Store) FindAssetsByJob(ctx context.Context, jobID string) ([]*store.Asset, error) {
	keys, err := s.assets.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list asset keys: %w", err)
	}

	var assets []*store.Asset
	for _, key := range keys {
		entry, err := s.assets.Get(ctx, key)
		if err != nil {
			continue
		}
		var asset store.Asset
		if err := json.Unmarshal(entry.Value(), &asset); err != nil {
			continue
		}
		if asset.JobID == jobID {
			assets = append(assets, &asset)
		}
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].ID < assets[j].ID })
	return assets, nil
}

// Enqueue publishes the review request to the review subject and keeps
// a copy in the reviews bucket for lookup.
func (s *Store) Enqueue(ctx context.Context, req *document.ReviewRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal review request: %w", err)
	}
	if _, err := s.js.Publish(ctx, s.reviewSubject, data); err != nil {
		return fmt.Errorf("publish review request: %w", err)
	}
	if _, err := s.reviews.Put(ctx, req.ReviewID, data); err != nil {
		return fmt.Errorf("record review request: %w", err)
	}
	return nil
}

// isNotFound checks whether an error means the key is absent.
func isNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound)
}
