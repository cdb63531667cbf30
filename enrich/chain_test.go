package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glyphworks/kbforge/document"
)

// stubEnricher runs fn against the article it receives.
type stubEnricher struct {
	name string
	fn   func(*document.Article) (*document.Article, error)
}

func (s stubEnricher) Name() string { return s.name }

func (s stubEnricher) Enrich(_ context.Context, a *document.Article) (*document.Article, error) {
	return s.fn(a)
}

func TestChain_Apply_Order(t *testing.T) {
	var order []string
	appendStage := func(name string) Enricher {
		return stubEnricher{name: name, fn: func(a *document.Article) (*document.Article, error) {
			order = append(order, name)
			a.Content += " " + name
			return a, nil
		}}
	}

	chain := NewChain([]Enricher{appendStage("first"), appendStage("second")})
	got := chain.Apply(context.Background(), &document.Article{Content: "base"})

	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, "base first second", got.Content)
}

func TestChain_Apply_PassThroughOnError(t *testing.T) {
	failing := stubEnricher{name: "broken", fn: func(a *document.Article) (*document.Article, error) {
		a.Content = "mangled"
		return nil, errors.New("boom")
	}}
	tagging := stubEnricher{name: "tag", fn: func(a *document.Article) (*document.Article, error) {
		a.Summary = "tagged"
		return a, nil
	}}

	original := &document.Article{DocUID: "u1", Content: "intact"}
	chain := NewChain([]Enricher{failing, tagging})
	got := chain.Apply(context.Background(), original)

	require.NotNil(t, got)
	// The failing stage's clone is discarded entirely.
	assert.Equal(t, "intact", got.Content)
	assert.Equal(t, "tagged", got.Summary)
	// The input article is never mutated in place by a failed stage.
	assert.Equal(t, "intact", original.Content)
}

func TestChain_Apply_NilResultPassesThrough(t *testing.T) {
	vanish := stubEnricher{name: "vanish", fn: func(a *document.Article) (*document.Article, error) {
		return nil, nil
	}}

	chain := NewChain([]Enricher{vanish})
	got := chain.Apply(context.Background(), &document.Article{Content: "kept"})
	require.NotNil(t, got)
	assert.Equal(t, "kept", got.Content)
}

func TestChain_Apply_Empty(t *testing.T) {
	chain := NewChain(nil)
	a := &document.Article{Content: "untouched"}
	assert.Same(t, a, chain.Apply(context.Background(), a))
}
