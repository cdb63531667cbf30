// Package store defines the persistence surface the pipeline writes
// through. Implementations live in memstore (process-local, the
// default for tests and dry runs) and natsstore (NATS JetStream KV).
package store

import (
	"context"
	"time"

	"github.com/glyphworks/kbforge/document"
)

// Asset is a stored media reference extracted from source content.
type Asset struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	Kind      string    `json:"kind"`
	URL       string    `json:"url,omitempty"`
	Alt       string    `json:"alt,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ArticleRepository stores and retrieves articles. DocUID is the
// primary key; DocSlug lookups scan.
type ArticleRepository interface {
	// InsertArticle stores a new article. ErrAlreadyExists when the
	// DocUID is taken.
	InsertArticle(ctx context.Context, article *document.Article) error
	FindByDocUID(ctx context.Context, docUID string) (*document.Article, error)
	FindByDocSlug(ctx context.Context, docSlug string) (*document.Article, error)
	// UpsertContent atomically replaces the stored article or inserts
	// it when absent.
	UpsertContent(ctx context.Context, article *document.Article) error
	UpdateHeadings(ctx context.Context, docUID string, headings []string) error
	UpdateXrefs(ctx context.Context, docUID string, links []document.RelatedLink) error
	FindByEngine(ctx context.Context, engine string) ([]*document.Article, error)
	// FindRecent returns up to limit articles, most recently updated
	// first.
	FindRecent(ctx context.Context, limit int) ([]*document.Article, error)
	// ListArticles returns every stored article. The related-links
	// index and cross-article QA read through this.
	ListArticles(ctx context.Context) ([]*document.Article, error)
}

// ReportRepository keeps the latest QA report per job.
type ReportRepository interface {
	SaveReport(ctx context.Context, report *document.QAReport) error
	FindReport(ctx context.Context, jobID string) (*document.QAReport, error)
}

// VersionRepository stores immutable run snapshots.
type VersionRepository interface {
	// SaveVersion stores a new version. Versions are immutable;
	// ErrAlreadyExists when the VersionID is taken.
	SaveVersion(ctx context.Context, version *document.Version) error
	FindVersion(ctx context.Context, versionID string) (*document.Version, error)
	ListVersions(ctx context.Context) ([]*document.Version, error)
}

// AssetRepository stores extracted media references.
type AssetRepository interface {
	SaveAsset(ctx context.Context, asset *Asset) error
	FindAsset(ctx context.Context, id string) (*Asset, error)
	FindAssetsByJob(ctx context.Context, jobID string) ([]*Asset, error)
}

// ReviewQueue accepts review requests for human attention.
type ReviewQueue interface {
	Enqueue(ctx context.Context, req *document.ReviewRequest) error
}
