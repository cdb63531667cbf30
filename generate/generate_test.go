package generate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glyphworks/kbforge/document"
	"github.com/glyphworks/kbforge/llm"
	_ "github.com/glyphworks/kbforge/llm/providers"
	"github.com/glyphworks/kbforge/outline"
	"github.com/glyphworks/kbforge/prewrite"
)

var testRetry = llm.RetryConfig{
	MaxAttempts:       2,
	BackoffBase:       time.Millisecond,
	BackoffMultiplier: 1.0,
	MaxBackoff:        5 * time.Millisecond,
}

func clientFor(serverURL string) *llm.Client {
	reg := llm.NewRegistry()
	reg.SetDefault(&llm.EndpointConfig{
		Provider: "openai",
		URL:      serverURL,
		Model:    "test-model",
	})
	return llm.NewClient(reg, llm.WithRetryConfig(testRetry))
}

func chatResponse(content string) map[string]any {
	return map[string]any{
		"model": "test-model",
		"choices": []map[string]any{
			{
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
	}
}

// stubServer serves chat completions and moderation from one mux.
func stubServer(t *testing.T, draft string, flagged bool, categories map[string]bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse(draft))
	})
	mux.HandleFunc("/moderations", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"flagged": flagged, "categories": categories},
			},
		})
	})
	return httptest.NewServer(mux)
}

func gatewayDoc() *document.NormDoc {
	return &document.NormDoc{
		JobID: "job-1",
		Title: "Gateway Guide",
		Sections: []document.Section{
			{AnchorID: "routing", Heading: "Routing", Level: 2,
				Content: "The gateway routes requests to upstream services."},
			{AnchorID: "auth", Heading: "Authentication", Level: 2,
				Content: "Clients authenticate with signed tokens."},
			{AnchorID: "limits", Heading: "Rate Limits", Level: 2,
				Content: "Each tenant gets 100 requests per second."},
			{AnchorID: "errors", Heading: "Error Handling", Level: 2,
				Content: "Failed upstream calls return a 502."},
		},
		Outline:   []string{"Routing", "Authentication", "Rate Limits", "Error Handling"},
		WordCount: 40,
	}
}

func gatewayPlan() outline.ArticleOutline {
	return outline.ArticleOutline{
		Index:    0,
		Title:    "Gateway Guide",
		Sections: []string{"Basics", "Operations"},
	}
}

func gatewayNotes() []prewrite.Notes {
	return []prewrite.Notes{{
		ArticleIndex:  0,
		Facts:         []string{"The gateway routes requests to upstream services."},
		KeyPoints:     []string{"Routing", "Authentication"},
		SourceAnchors: []string{"routing", "auth", "limits", "errors"},
	}}
}

func TestGenerator_Generate_Deterministic(t *testing.T) {
	g := New(nil)
	articles := g.Generate(context.Background(), gatewayDoc(),
		[]outline.ArticleOutline{gatewayPlan()}, gatewayNotes(),
		map[string]string{"team": "docs"})
	require.Len(t, articles, 1)

	a := articles[0]
	assert.Len(t, a.DocUID, 26)
	assert.Equal(t, "gateway-guide", a.DocSlug)
	assert.Equal(t, "Gateway Guide", a.Title)
	assert.Equal(t, EngineVersion, a.Engine)
	assert.Equal(t, document.StatusDraft, a.Status)
	assert.Equal(t, "docs", a.Metadata["team"])
	assert.False(t, a.CreatedAt.IsZero())

	// Four source sections split across two planned headings, source
	// headings preserved as subheadings.
	assert.Equal(t, []string{
		"Basics", "Routing", "Authentication",
		"Operations", "Rate Limits", "Error Handling",
	}, a.Headings)
	assert.Contains(t, a.Content, "## Basics\n\n### Routing\n\nThe gateway routes requests to upstream services.")
	assert.Contains(t, a.Content, "## Operations\n\n### Rate Limits")
	assert.Equal(t, "The gateway routes requests to upstream services.", a.Summary)
}

func TestGenerator_Generate_Draft(t *testing.T) {
	draft := "## Overview\n\nThe gateway fronts every service in the mesh."
	server := stubServer(t, draft, false, nil)
	defer server.Close()

	g := New(clientFor(server.URL))
	articles := g.Generate(context.Background(), gatewayDoc(),
		[]outline.ArticleOutline{gatewayPlan()}, gatewayNotes(), nil)
	require.Len(t, articles, 1)
	assert.Equal(t, draft, articles[0].Content)
	assert.Equal(t, []string{"Overview"}, articles[0].Headings)
}

func TestGenerator_Generate_FallbackOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	g := New(clientFor(server.URL))
	articles := g.Generate(context.Background(), gatewayDoc(),
		[]outline.ArticleOutline{gatewayPlan()}, gatewayNotes(), nil)
	require.Len(t, articles, 1)
	assert.Contains(t, articles[0].Content, "## Basics")
	assert.Contains(t, articles[0].Content, "## Operations")
}

func TestGenerator_Generate_FallbackOnHeadingless(t *testing.T) {
	server := stubServer(t, "just prose with no structure at all", false, nil)
	defer server.Close()

	g := New(clientFor(server.URL))
	articles := g.Generate(context.Background(), gatewayDoc(),
		[]outline.ArticleOutline{gatewayPlan()}, gatewayNotes(), nil)
	require.Len(t, articles, 1)
	assert.Contains(t, articles[0].Content, "## Basics")
}

func TestGenerator_Generate_ModerationFlagged(t *testing.T) {
	server := stubServer(t, "## Overview\n\nSomething unacceptable.",
		true, map[string]bool{"violence": true})
	defer server.Close()

	g := New(clientFor(server.URL))
	articles := g.Generate(context.Background(), gatewayDoc(),
		[]outline.ArticleOutline{gatewayPlan()}, gatewayNotes(), nil)
	require.Len(t, articles, 1)

	a := articles[0]
	assert.Equal(t, "## Basics\n\n[MISSING]\n\n## Operations\n\n[MISSING]", a.Content)
	assert.Equal(t, "violence", a.Metadata["moderation"])
	assert.Equal(t, document.StatusDraft, a.Status)
}

func TestGenerator_Generate_PlanOrder(t *testing.T) {
	plans := []outline.ArticleOutline{
		{Index: 0, Title: "Part One", Sections: []string{"Overview"}},
		{Index: 1, Title: "Part Two", Sections: []string{"Details"}},
	}
	g := New(nil)
	articles := g.Generate(context.Background(), gatewayDoc(), plans, nil, nil)
	require.Len(t, articles, 2)
	assert.Equal(t, "Part One", articles[0].Title)
	assert.Equal(t, "Part Two", articles[1].Title)
	assert.NotEqual(t, articles[0].DocUID, articles[1].DocUID)
}

func TestAssembleContent_NoSourceForSection(t *testing.T) {
	norm := &document.NormDoc{Sections: []document.Section{
		{AnchorID: "only", Heading: "Only", Content: "The single source section."},
	}}
	plan := outline.ArticleOutline{Title: "T", Sections: []string{"First", "Second"}}

	content := assembleContent(norm, plan, prewrite.Notes{SourceAnchors: []string{"only"}})
	assert.Contains(t, content, "## First\n\nThe single source section.")
	// Second heading stays thin for the gap filler.
	assert.True(t, strings.HasSuffix(content, "## Second"))
}

func TestChunkSections(t *testing.T) {
	secs := make([]document.Section, 5)
	for i := range secs {
		secs[i] = document.Section{AnchorID: string(rune('a' + i))}
	}

	chunks := chunkSections(secs, 2)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 3)
	assert.Len(t, chunks[1], 2)

	assert.Len(t, chunkSections(secs, 1), 1)
	assert.Len(t, chunkSections(secs[:2], 9), 2)
}

func TestSummaryOf(t *testing.T) {
	withFact := prewrite.Notes{Facts: []string{"Fact one."}}
	assert.Equal(t, "Fact one.", summaryOf(withFact, "## H\n\nbody"))

	assert.Equal(t, "First prose line.", summaryOf(prewrite.Notes{}, "## H\n\nFirst prose line.\n\nSecond."))
	assert.Equal(t, "", summaryOf(prewrite.Notes{}, "## H"))

	long := strings.Repeat("word ", 60)
	got := summaryOf(prewrite.Notes{Facts: []string{long}}, "")
	assert.LessOrEqual(t, len(got), maxSummaryChars+3)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestNotesFor(t *testing.T) {
	notes := []prewrite.Notes{{ArticleIndex: 1, Facts: []string{"f"}}}
	assert.Equal(t, []string{"f"}, notesFor(notes, 1).Facts)
	assert.Empty(t, notesFor(notes, 0).Facts)
	assert.Equal(t, 0, notesFor(notes, 0).ArticleIndex)
}
