// Package publish finalizes a run's articles: it applies the publish
// gate from the authoritative QA report, stamps per-article validation
// metadata and persists the results.
package publish

import (
	"context"
	"log/slog"
	"time"

	"github.com/glyphworks/kbforge/document"
	"github.com/glyphworks/kbforge/store"
)

// Publisher stamps and persists articles. A nil repository puts it in
// pure mode: articles are stamped but nothing is stored, which is what
// dry runs and most tests want.
type Publisher struct {
	repo   store.ArticleRepository
	logger *slog.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(repo store.ArticleRepository, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{repo: repo, logger: logger}
}

// Publish applies the gate and returns stamped copies of the articles.
// Every article is persisted regardless of gate outcome so blocked
// runs stay auditable; persistence failures are logged and never fail
// the call.
func (p *Publisher) Publish(ctx context.Context, articles []*document.Article, report *document.QAReport) []*document.Article {
	now := time.Now().UTC()
	publishable := report.IsPublishable()

	var coverage float64
	flagCount, p0Count := 0, 0
	if report != nil {
		coverage = report.CoveragePercent
		flagCount = len(report.Flags)
		p0Count = report.P0Count()
	}

	out := make([]*document.Article, 0, len(articles))
	published, failed := 0, 0
	for _, article := range articles {
		stamped := article.Clone()
		if publishable {
			stamped.Status = document.StatusPublished
			published++
		} else {
			stamped.Status = document.StatusBlocked
		}
		stamped.Validation = &document.ValidationMeta{
			CoveragePercent: coverage,
			FlagCount:       flagCount,
			P0Count:         p0Count,
			Publishable:     publishable,
			ValidatedAt:     now,
		}
		if stamped.CreatedAt.IsZero() {
			stamped.CreatedAt = now
		}
		stamped.UpdatedAt = now

		if p.repo != nil && !p.persist(ctx, stamped) {
			failed++
		}
		out = append(out, stamped)
	}

	p.logger.Info("publish gate applied",
		"articles", len(out),
		"published", published,
		"blocked", len(out)-published,
		"persist_failures", failed)
	return out
}

// persist upserts the article and refreshes its heading and
// cross-reference indexes.
func (p *Publisher) persist(ctx context.Context, article *document.Article) bool {
	if err := p.repo.UpsertContent(ctx, article); err != nil {
		p.logger.Error("article upsert failed",
			"doc_uid", article.DocUID,
			"error", err)
		return false
	}
	if err := p.repo.UpdateHeadings(ctx, article.DocUID, article.Headings); err != nil {
		p.logger.Warn("heading index update failed",
			"doc_uid", article.DocUID,
			"error", err)
	}
	if article.RelatedLinks != nil {
		if err := p.repo.UpdateXrefs(ctx, article.DocUID, article.RelatedLinks.Internal); err != nil {
			p.logger.Warn("xref index update failed",
				"doc_uid", article.DocUID,
				"error", err)
		}
	}
	return true
}
