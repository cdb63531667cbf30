package publish

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glyphworks/kbforge/document"
	"github.com/glyphworks/kbforge/store"
	"github.com/glyphworks/kbforge/store/memstore"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func draftArticle(uid, slug, title string) *document.Article {
	return &document.Article{
		DocUID:   uid,
		DocSlug:  slug,
		Title:    title,
		Content:  "## Overview\n\nBody text for " + title + ".",
		Engine:   "v2",
		Status:   document.StatusDraft,
		Headings: []string{"Overview"},
		RelatedLinks: &document.RelatedLinksMeta{
			Internal: []document.RelatedLink{
				{Title: "Sibling", URL: "/kb/sibling-article", Score: 0.4},
			},
		},
	}
}

func cleanReport(jobID string) *document.QAReport {
	return &document.QAReport{
		JobID:           jobID,
		CoveragePercent: 92,
		GeneratedAt:     time.Now().UTC(),
	}
}

func TestPublish_GatePassesAndPersists(t *testing.T) {
	repo := memstore.New()
	pub := NewPublisher(repo, quietLogger())

	first := draftArticle("uid-1", "broker-setup", "Broker Setup")
	second := draftArticle("uid-2", "consumer-lag", "Consumer Lag")
	second.CreatedAt = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	out := pub.Publish(context.Background(), []*document.Article{first, second}, cleanReport("job-1"))
	require.Len(t, out, 2)

	for _, a := range out {
		assert.Equal(t, document.StatusPublished, a.Status)
		require.NotNil(t, a.Validation)
		assert.Equal(t, 92.0, a.Validation.CoveragePercent)
		assert.Equal(t, 0, a.Validation.FlagCount)
		assert.Equal(t, 0, a.Validation.P0Count)
		assert.True(t, a.Validation.Publishable)
		assert.False(t, a.Validation.ValidatedAt.IsZero())
		assert.False(t, a.UpdatedAt.IsZero())
	}
	assert.False(t, out[0].CreatedAt.IsZero(), "zero CreatedAt is stamped")
	assert.Equal(t, second.CreatedAt, out[1].CreatedAt, "existing CreatedAt survives")

	stored, err := repo.FindByDocUID(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.Equal(t, document.StatusPublished, stored.Status)
	assert.Equal(t, []string{"Overview"}, stored.Headings)
	require.NotNil(t, stored.RelatedLinks)
	require.Len(t, stored.RelatedLinks.Internal, 1)
	assert.Equal(t, "/kb/sibling-article", stored.RelatedLinks.Internal[0].URL)
}

func TestPublish_P0BlocksButStillPersists(t *testing.T) {
	repo := memstore.New()
	pub := NewPublisher(repo, quietLogger())

	report := cleanReport("job-1")
	report.AddFlag(document.FlagSeverePlaceholders, document.SeverityP0, "6 placeholder markers present", "")

	out := pub.Publish(context.Background(), []*document.Article{draftArticle("uid-1", "broker-setup", "Broker Setup")}, report)
	require.Len(t, out, 1)
	assert.Equal(t, document.StatusBlocked, out[0].Status)
	assert.False(t, out[0].Validation.Publishable)
	assert.Equal(t, 1, out[0].Validation.FlagCount)
	assert.Equal(t, 1, out[0].Validation.P0Count)

	stored, err := repo.FindByDocUID(context.Background(), "uid-1")
	require.NoError(t, err)
	assert.Equal(t, document.StatusBlocked, stored.Status, "blocked runs stay auditable")
}

func TestPublish_LowCoverageBlocks(t *testing.T) {
	pub := NewPublisher(nil, quietLogger())
	report := cleanReport("job-1")
	report.CoveragePercent = 65

	out := pub.Publish(context.Background(), []*document.Article{draftArticle("uid-1", "broker-setup", "Broker Setup")}, report)
	require.Len(t, out, 1)
	assert.Equal(t, document.StatusBlocked, out[0].Status)
	assert.Equal(t, 65.0, out[0].Validation.CoveragePercent)
	assert.Equal(t, 0, out[0].Validation.P0Count)
}

func TestPublish_NilReportBlocks(t *testing.T) {
	pub := NewPublisher(nil, quietLogger())

	out := pub.Publish(context.Background(), []*document.Article{draftArticle("uid-1", "broker-setup", "Broker Setup")}, nil)
	require.Len(t, out, 1)
	assert.Equal(t, document.StatusBlocked, out[0].Status)
	require.NotNil(t, out[0].Validation)
	assert.Zero(t, out[0].Validation.CoveragePercent)
	assert.False(t, out[0].Validation.Publishable)
}

func TestPublish_PureModeWithoutRepository(t *testing.T) {
	pub := NewPublisher(nil, quietLogger())

	out := pub.Publish(context.Background(), []*document.Article{
		draftArticle("uid-1", "broker-setup", "Broker Setup"),
		draftArticle("uid-2", "consumer-lag", "Consumer Lag"),
	}, cleanReport("job-1"))

	require.Len(t, out, 2)
	for _, a := range out {
		assert.Equal(t, document.StatusPublished, a.Status)
		assert.NotNil(t, a.Validation)
	}
}

func TestPublish_InputArticlesUntouched(t *testing.T) {
	pub := NewPublisher(nil, quietLogger())
	in := draftArticle("uid-1", "broker-setup", "Broker Setup")

	out := pub.Publish(context.Background(), []*document.Article{in}, cleanReport("job-1"))

	require.Len(t, out, 1)
	assert.Equal(t, document.StatusDraft, in.Status)
	assert.Nil(t, in.Validation)
	assert.Equal(t, document.StatusPublished, out[0].Status)
}

type failingRepo struct {
	store.ArticleRepository
}

func (f *failingRepo) UpsertContent(context.Context, *document.Article) error {
	return errors.New("kv offline")
}

func (f *failingRepo) UpdateHeadings(context.Context, string, []string) error {
	return errors.New("kv offline")
}

func (f *failingRepo) UpdateXrefs(context.Context, string, []document.RelatedLink) error {
	return errors.New("kv offline")
}

func TestPublish_RepositoryFailureDoesNotAbort(t *testing.T) {
	pub := NewPublisher(&failingRepo{}, quietLogger())

	out := pub.Publish(context.Background(), []*document.Article{draftArticle("uid-1", "broker-setup", "Broker Setup")}, cleanReport("job-1"))

	require.Len(t, out, 1)
	assert.Equal(t, document.StatusPublished, out[0].Status, "stamping is independent of persistence")
	require.NotNil(t, out[0].Validation)
	assert.True(t, out[0].Validation.Publishable)
}
