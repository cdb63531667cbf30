// Package enrich is the per-article enrichment chain: evidence
// tagging, style normalization, related links, gap filling and code
// normalization. Every stage writes only its own metadata field on the
// article, and a failing stage passes the article through unchanged,
// so enrichment can only add.
package enrich

import (
	"context"
	"log/slog"

	"github.com/glyphworks/kbforge/document"
)

// Enricher is one transform in the chain. Enrich receives a private
// clone and returns the enriched article; returning an error discards
// the clone.
type Enricher interface {
	Name() string
	Enrich(ctx context.Context, article *document.Article) (*document.Article, error)
}

// Chain applies enrichers in order with pass-through-on-error
// semantics.
type Chain struct {
	enrichers []Enricher
	logger    *slog.Logger
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ChainOption {
	return func(c *Chain) {
		c.logger = logger
	}
}

// NewChain creates a chain over the given enrichers.
func NewChain(enrichers []Enricher, opts ...ChainOption) *Chain {
	c := &Chain{
		enrichers: enrichers,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Apply runs every enricher over the article. A stage that errors is
// logged and skipped; the article from the last successful stage moves
// on. Apply never returns nil.
func (c *Chain) Apply(ctx context.Context, article *document.Article) *document.Article {
	current := article
	for _, e := range c.enrichers {
		result, err := e.Enrich(ctx, current.Clone())
		if err != nil {
			c.logger.Warn("enrichment stage failed, passing article through",
				"stage", e.Name(), "doc_uid", current.DocUID, "error", err)
			continue
		}
		if result == nil {
			c.logger.Warn("enrichment stage returned no article, passing through",
				"stage", e.Name(), "doc_uid", current.DocUID)
			continue
		}
		current = result
	}
	return current
}
