// Package pipeline sequences the seventeen content stages that turn
// raw input into published knowledge-base articles. The runner is a
// linear state machine: stages execute in fixed order over a shared
// Job, each one reading what earlier stages wrote and adding its own
// output, with no back-edges and no retries. Stages handle their own
// internal failures and degrade; an error reaching the runner aborts
// the whole run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/glyphworks/kbforge/adapt"
	"github.com/glyphworks/kbforge/analyze"
	"github.com/glyphworks/kbforge/crossqa"
	"github.com/glyphworks/kbforge/document"
	"github.com/glyphworks/kbforge/enrich"
	"github.com/glyphworks/kbforge/extract"
	"github.com/glyphworks/kbforge/generate"
	"github.com/glyphworks/kbforge/llm"
	"github.com/glyphworks/kbforge/metrics"
	"github.com/glyphworks/kbforge/outline"
	"github.com/glyphworks/kbforge/prewrite"
	"github.com/glyphworks/kbforge/publish"
	"github.com/glyphworks/kbforge/review"
	"github.com/glyphworks/kbforge/store"
	"github.com/glyphworks/kbforge/validate"
	"github.com/glyphworks/kbforge/version"
)

// Stage names, in run order. Metric labels and log attributes use
// these exact strings.
const (
	StageExtract        = "extract"
	StageAnalyze        = "analyze"
	StageGlobalOutline  = "global_outline"
	StageArticleOutline = "article_outline"
	StagePrewrite       = "prewrite"
	StageGenerate       = "generate"
	StageEvidenceTag    = "evidence_tag"
	StageStyle          = "style"
	StageRelatedLinks   = "related_links"
	StageGapFill        = "gap_fill"
	StageCodeNormalize  = "code_normalize"
	StageValidate       = "validate"
	StageCrossQA        = "cross_qa"
	StageAdaptiveAdjust = "adaptive_adjust"
	StagePublish        = "publish"
	StageVersion        = "version"
	StageReview         = "review"
)

// Job is the state shared across one run's stages. Every stage fills
// in its own fields and leaves earlier fields alone, so by the end the
// Job is a complete record of the run.
type Job struct {
	JobID    string
	Content  string
	Metadata map[string]string

	Bundle     *document.RawBundle
	Norm       *document.NormDoc
	Analysis   *analyze.Analysis
	Outline    *outline.GlobalOutline
	Plans      []outline.ArticleOutline
	Notes      []prewrite.Notes
	Articles   []*document.Article
	Report     *document.QAReport
	CrossQA    *crossqa.Result
	Adjustment *adapt.Result
	Version    *document.Version
	Review     *document.ReviewRequest
}

// stage pairs a name with its implementation.
type stage struct {
	name string
	run  func(ctx context.Context, job *Job) error
}

// Stores bundles the optional persistence surfaces. Any field may be
// nil; the affected stages then run in memory only.
type Stores struct {
	Articles store.ArticleRepository
	Reports  store.ReportRepository
	Versions store.VersionRepository
	Assets   store.AssetRepository
	Reviews  store.ReviewQueue
}

// Runner executes the pipeline.
type Runner struct {
	logger *slog.Logger
	meter  *metrics.Set
	stores Stores

	extractor *extract.Extractor
	analyzer  *analyze.Analyzer
	prewriter *prewrite.Prewriter
	generator *generate.Generator
	codeNorm  *enrich.Chain
	validator *validate.Validator
	checker   *crossqa.Checker
	adjuster  *adapt.Adjuster
	publisher *publish.Publisher
	versioner *version.Versioner
	reviewer  *review.Reviewer

	stages []stage
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithMetrics sets the metric set. Nil is allowed and disables
// instrumentation.
func WithMetrics(m *metrics.Set) Option {
	return func(r *Runner) {
		r.meter = m
	}
}

// WithStores sets the persistence surfaces.
func WithStores(s Stores) Option {
	return func(r *Runner) {
		r.stores = s
	}
}

// New builds a Runner around the completion client. All stage
// collaborators are constructed once and reused across runs; separate
// runs share no mutable state beyond the stores and the related-links
// index cache.
func New(client *llm.Client, opts ...Option) *Runner {
	r := &Runner{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}

	var linkSource enrich.ArticleSource
	var qaSource crossqa.ArticleSource
	if r.stores.Articles != nil {
		linkSource = r.stores.Articles
		qaSource = r.stores.Articles
	}

	r.extractor = extract.New(extract.WithLogger(r.logger))
	r.analyzer = analyze.New(client, analyze.WithLogger(r.logger))
	r.prewriter = prewrite.New(client, prewrite.WithLogger(r.logger))
	r.generator = generate.New(client, generate.WithLogger(r.logger))
	r.codeNorm = enrich.NewChain([]enrich.Enricher{enrich.NewCodeNormalizer()}, enrich.WithLogger(r.logger))
	r.validator = validate.New()
	r.checker = crossqa.NewChecker(client, qaSource, r.logger)
	r.adjuster = adapt.NewAdjuster(r.logger)
	r.publisher = publish.NewPublisher(r.stores.Articles, r.logger)
	r.versioner = version.NewVersioner(r.stores.Versions, r.logger)
	r.reviewer = review.NewReviewer(r.stores.Reviews, r.logger)

	r.stages = []stage{
		{StageExtract, r.runExtract},
		{StageAnalyze, r.runAnalyze},
		{StageGlobalOutline, r.runGlobalOutline},
		{StageArticleOutline, r.runArticleOutline},
		{StagePrewrite, r.runPrewrite},
		{StageGenerate, r.runGenerate},
		r.enrichmentStage(StageEvidenceTag, enrich.NewEvidenceTagger()),
		r.enrichmentStage(StageStyle, enrich.NewStyleProcessor()),
		r.enrichmentStage(StageRelatedLinks, enrich.NewLinker(linkSource, r.logger)),
		r.enrichmentStage(StageGapFill, enrich.NewGapFiller(client, r.logger)),
		{StageCodeNormalize, r.runCodeNormalize},
		{StageValidate, r.runValidate},
		{StageCrossQA, r.runCrossQA},
		{StageAdaptiveAdjust, r.runAdaptiveAdjust},
		{StagePublish, r.runPublish},
		{StageVersion, r.runVersion},
		{StageReview, r.runReview},
	}
	return r
}

// Run processes one document end to end and returns the run's
// articles, its QA report and the snapshot version ID. Run never
// returns an error: an aborted run yields an empty article list, an
// error-flagged report and an "error_"-prefixed version ID.
func (r *Runner) Run(ctx context.Context, jobID, content string, metadata map[string]string) ([]*document.Article, *document.QAReport, string) {
	if jobID == "" {
		jobID = uuid.New().String()
	}
	job := &Job{JobID: jobID, Content: content, Metadata: metadata}
	runStart := time.Now()
	r.logger.Info("pipeline run started", "job_id", jobID)

	for _, s := range r.stages {
		if err := ctx.Err(); err != nil {
			r.logger.Error("run canceled",
				"job_id", jobID, "stage", s.name, "error", err)
			return r.abort(jobID, err)
		}

		r.logger.Debug("stage started", "job_id", jobID, "stage", s.name)
		stageStart := time.Now()
		err := s.run(ctx, job)
		elapsed := time.Since(stageStart)
		r.meter.ObserveStage(s.name, elapsed, err)
		if err != nil {
			r.logger.Error("stage failed",
				"job_id", jobID, "stage", s.name, "duration", elapsed, "error", err)
			return r.abort(jobID, err)
		}
		r.logger.Info("stage completed",
			"job_id", jobID, "stage", s.name, "duration", elapsed)
	}

	r.meter.ObserveRun(metrics.RunCompleted)
	r.logger.Info("pipeline run completed",
		"job_id", jobID,
		"duration", time.Since(runStart),
		"articles", len(job.Articles),
		"version_id", job.Version.VersionID)
	return job.Articles, job.Report, job.Version.VersionID
}

// abort produces the failed-run triple. The caller logs the cause.
func (r *Runner) abort(jobID string, cause error) ([]*document.Article, *document.QAReport, string) {
	r.meter.ObserveRun(metrics.RunAborted)
	return []*document.Article{}, document.ErrorQAReport(jobID, cause), "error_" + jobID
}

func (r *Runner) runExtract(_ context.Context, job *Job) error {
	bundle, norm, err := r.extractor.Extract(job.JobID, job.Content, job.Metadata)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	job.Bundle = bundle
	job.Norm = norm
	return nil
}

func (r *Runner) runAnalyze(ctx context.Context, job *Job) error {
	job.Analysis = r.analyzer.Analyze(ctx, job.Norm)
	return nil
}

func (r *Runner) runGlobalOutline(_ context.Context, job *Job) error {
	job.Outline = outline.PlanGlobal(job.Analysis)
	return nil
}

func (r *Runner) runArticleOutline(_ context.Context, job *Job) error {
	job.Plans = outline.PlanArticles(job.Outline, job.Norm.Title)
	return nil
}

func (r *Runner) runPrewrite(ctx context.Context, job *Job) error {
	job.Notes = r.prewriter.Prepare(ctx, job.Norm, job.Plans)
	return nil
}

func (r *Runner) runGenerate(ctx context.Context, job *Job) error {
	job.Articles = r.generator.Generate(ctx, job.Norm, job.Plans, job.Notes, job.Metadata)
	return nil
}

// enrichmentStage wraps one enricher as a pipeline stage. The
// single-element chain supplies the clone-and-degrade semantics, so
// enricher failures pass the article through instead of failing the
// stage.
func (r *Runner) enrichmentStage(name string, e enrich.Enricher) stage {
	chain := enrich.NewChain([]enrich.Enricher{e}, enrich.WithLogger(r.logger))
	return stage{
		name: name,
		run: func(ctx context.Context, job *Job) error {
			for i := range job.Articles {
				job.Articles[i] = chain.Apply(ctx, job.Articles[i])
			}
			return nil
		},
	}
}

func (r *Runner) runCodeNormalize(ctx context.Context, job *Job) error {
	for i := range job.Articles {
		job.Articles[i] = r.codeNorm.Apply(ctx, job.Articles[i])
	}

	blocks := 0
	langs := make(map[string]struct{})
	for _, a := range job.Articles {
		if a.CodeBlocks == nil {
			continue
		}
		blocks += a.CodeBlocks.FencedBlocks
		for _, l := range enrich.LanguageList(a.CodeBlocks) {
			langs[l] = struct{}{}
		}
	}
	if blocks > 0 {
		names := make([]string, 0, len(langs))
		for l := range langs {
			names = append(names, l)
		}
		sort.Strings(names)
		r.logger.Debug("code blocks normalized",
			"job_id", job.JobID,
			"blocks", blocks,
			"languages", strings.Join(names, ","))
	}
	return nil
}

func (r *Runner) runValidate(ctx context.Context, job *Job) error {
	job.Report = r.validator.Validate(assembleFinalDoc(job), nil)
	if r.stores.Reports != nil {
		if err := r.stores.Reports.SaveReport(ctx, job.Report); err != nil {
			r.logger.Warn("qa report save failed", "job_id", job.JobID, "error", err)
		}
	}
	return nil
}

func (r *Runner) runCrossQA(ctx context.Context, job *Job) error {
	job.CrossQA = r.checker.Check(ctx, job.Articles)
	return nil
}

func (r *Runner) runAdaptiveAdjust(_ context.Context, job *Job) error {
	job.Adjustment = r.adjuster.Analyze(job.Articles)
	return nil
}

func (r *Runner) runPublish(ctx context.Context, job *Job) error {
	job.Articles = r.publisher.Publish(ctx, job.Articles, job.Report)
	r.recordAssets(ctx, job)
	return nil
}

func (r *Runner) runVersion(ctx context.Context, job *Job) error {
	job.Version = r.versioner.Snapshot(ctx, job.JobID, job.Articles)
	return nil
}

func (r *Runner) runReview(ctx context.Context, job *Job) error {
	job.Review = r.reviewer.Request(ctx, job.Version.VersionID, job.CrossQA.IssueCount())
	return nil
}

// assembleFinalDoc lays the run's articles out as one section each so
// the validator scores what readers will actually see.
func assembleFinalDoc(job *Job) *document.NormDoc {
	doc := &document.NormDoc{JobID: job.JobID, Title: job.Norm.Title}
	for _, a := range job.Articles {
		doc.Outline = append(doc.Outline, a.Title)
		doc.Sections = append(doc.Sections, document.Section{
			AnchorID: a.DocSlug,
			Heading:  a.Title,
			Level:    1,
			Content:  a.Content,
		})
		doc.WordCount += a.WordCount()
	}
	return doc
}

// recordAssets stores one asset record per image reference found in
// the source bundle.
func (r *Runner) recordAssets(ctx context.Context, job *Job) {
	if r.stores.Assets == nil || job.Bundle == nil {
		return
	}
	now := time.Now().UTC()
	for _, blk := range job.Bundle.Blocks {
		if blk.Type != document.BlockImage {
			continue
		}
		src := blk.Attrs["src"]
		if src == "" {
			continue
		}
		asset := &store.Asset{
			ID:        uuid.New().String(),
			JobID:     job.JobID,
			Kind:      "image",
			URL:       src,
			Alt:       blk.Text,
			CreatedAt: now,
		}
		if err := r.stores.Assets.SaveAsset(ctx, asset); err != nil {
			r.logger.Warn("asset save failed",
				"job_id", job.JobID, "url", src, "error", err)
		}
	}
}
