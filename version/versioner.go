// Package version snapshots a run's output into an immutable Version
// record keyed by a content hash.
package version

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/glyphworks/kbforge/document"
	"github.com/glyphworks/kbforge/store"
)

// Versioner builds and persists version snapshots. A nil repository
// keeps snapshots in memory only.
type Versioner struct {
	repo   store.VersionRepository
	logger *slog.Logger
}

// NewVersioner creates a Versioner.
func NewVersioner(repo store.VersionRepository, logger *slog.Logger) *Versioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Versioner{repo: repo, logger: logger}
}

// ContentHash hashes every article's title and content in array order,
// so the same articles in a different order produce a different hash.
func ContentHash(articles []*document.Article) string {
	h := sha256.New()
	for _, a := range articles {
		io.WriteString(h, a.Title)
		io.WriteString(h, ":")
		io.WriteString(h, a.Content)
		io.WriteString(h, "|")
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Snapshot builds the version record for a run and saves it when a
// repository is configured. It always returns a usable version: hash
// computation cannot fail, and persistence errors are logged without
// discarding the in-memory record.
func (v *Versioner) Snapshot(ctx context.Context, runID string, articles []*document.Article) *document.Version {
	hash := ContentHash(articles)
	snapshot := &document.Version{
		VersionID:    "v_" + runID + "_" + hash[:12],
		RunID:        runID,
		ContentHash:  hash,
		ArticleCount: len(articles),
		Articles:     make([]document.ArticleSummary, 0, len(articles)),
		CreatedAt:    time.Now().UTC(),
	}
	for _, a := range articles {
		snapshot.Articles = append(snapshot.Articles, document.ArticleSummary{
			DocUID:    a.DocUID,
			DocSlug:   a.DocSlug,
			Title:     a.Title,
			WordCount: a.WordCount(),
		})
	}

	if v.repo != nil {
		switch err := v.repo.SaveVersion(ctx, snapshot); {
		case err == nil:
		case errors.Is(err, store.ErrAlreadyExists):
			// Same run, same content: the stored record is already this one.
			v.logger.Debug("version already recorded", "version_id", snapshot.VersionID)
		default:
			v.logger.Error("version save failed",
				"version_id", snapshot.VersionID,
				"error", err)
		}
	}

	v.logger.Info("version snapshot created",
		"version_id", snapshot.VersionID,
		"run_id", runID,
		"articles", snapshot.ArticleCount)
	return snapshot
}
