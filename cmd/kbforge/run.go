package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/glyphworks/kbforge/config"
	"github.com/glyphworks/kbforge/document"
)

func runCommand(flags *rootFlags) *cobra.Command {
	var (
		outDir string
		jobID  string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Process one source document into knowledge-base articles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			app, err := newApp(ctx, flags, dryRun)
			if err != nil {
				return err
			}
			defer app.close()

			result, err := app.processFile(ctx, args[0], outDir, jobID)
			if err != nil {
				return err
			}
			result.print(os.Stdout)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "kb", "Output directory for articles and reports")
	cmd.Flags().StringVar(&jobID, "job-id", "", "Job ID (generated when empty)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Skip repository writes")
	return cmd
}

func batchCommand(flags *rootFlags) *cobra.Command {
	var (
		outDir string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "batch <glob>",
		Short: "Process every document matching a glob pattern",
		Long: `Batch processes every file matching a doublestar glob, e.g.

  kbforge batch "docs/**/*.md"

Files are processed in order; a failing document is reported and does
not stop the rest of the batch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			matches, err := doublestar.FilepathGlob(args[0])
			if err != nil {
				return fmt.Errorf("bad glob %q: %w", args[0], err)
			}
			if len(matches) == 0 {
				return fmt.Errorf("no files match %q", args[0])
			}
			sort.Strings(matches)

			app, err := newApp(ctx, flags, dryRun)
			if err != nil {
				return err
			}
			defer app.close()

			failed := 0
			for _, path := range matches {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				result, err := app.processFile(ctx, path, outDir, "")
				if err != nil {
					failed++
					app.logger.Error("document failed", "path", path, "error", err)
					continue
				}
				fmt.Println(result.line())
			}

			fmt.Printf("\n%d documents processed, %d failed\n", len(matches)-failed, failed)
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(matches))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "kb", "Output directory for articles and reports")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Skip repository writes")
	return cmd
}

func configCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage kbforge configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the user config file with defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(flags.logLevel)
			path, err := config.NewLoader(logger).EnsureUserConfig()
			if err != nil {
				return err
			}
			fmt.Printf("Config file: %s\n", path)
			return nil
		},
	})

	return cmd
}

// runResult summarizes one pipeline run for the terminal.
type runResult struct {
	Source      string
	JobID       string
	VersionID   string
	OutDir      string
	Articles    int
	Published   int
	Coverage    float64
	Flags       int
	Blocking    int
	Publishable bool
	Elapsed     time.Duration
}

// processFile runs the pipeline over one file and writes the resulting
// articles and QA report under outDir.
func (a *app) processFile(ctx context.Context, path, outDir, jobID string) (*runResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	metadata := map[string]string{"source_id": absPath}

	start := time.Now()
	articles, report, versionID := a.runner.Run(ctx, jobID, string(data), metadata)
	elapsed := time.Since(start)

	if strings.HasPrefix(versionID, "error_") {
		cause := "pipeline aborted"
		if report != nil && len(report.Flags) > 0 {
			cause = report.Flags[0].Message
		}
		return nil, fmt.Errorf("%s: %s", path, cause)
	}

	if err := writeOutputs(outDir, articles, report); err != nil {
		return nil, err
	}

	result := &runResult{
		Source:    path,
		VersionID: versionID,
		OutDir:    outDir,
		Articles:  len(articles),
		Elapsed:   elapsed,
	}
	for _, article := range articles {
		if article.Status == document.StatusPublished {
			result.Published++
		}
	}
	if report != nil {
		result.JobID = report.JobID
		result.Coverage = report.CoveragePercent
		result.Flags = len(report.Flags)
		result.Blocking = report.P0Count()
		result.Publishable = report.IsPublishable()
	}
	return result, nil
}

func (r *runResult) print(w io.Writer) {
	gate := "blocked"
	if r.Publishable {
		gate = "publishable"
	}
	fmt.Fprintf(w, "Source:    %s\n", r.Source)
	fmt.Fprintf(w, "Job:       %s\n", r.JobID)
	fmt.Fprintf(w, "Articles:  %d (%d published, %d blocked)\n", r.Articles, r.Published, r.Articles-r.Published)
	fmt.Fprintf(w, "Coverage:  %.1f%% (%s)\n", r.Coverage, gate)
	fmt.Fprintf(w, "Flags:     %d (%d blocking)\n", r.Flags, r.Blocking)
	fmt.Fprintf(w, "Version:   %s\n", r.VersionID)
	fmt.Fprintf(w, "Output:    %s\n", r.OutDir)
	fmt.Fprintf(w, "Elapsed:   %s\n", r.Elapsed.Round(time.Millisecond))
}

func (r *runResult) line() string {
	gate := "blocked"
	if r.Publishable {
		gate = "ok"
	}
	return fmt.Sprintf("%s: %d articles (%d published), coverage %.0f%%, %d flags, %s",
		r.Source, r.Articles, r.Published, r.Coverage, r.Flags, gate)
}

// writeOutputs writes one markdown file per article plus the QA report.
func writeOutputs(outDir string, articles []*document.Article, report *document.QAReport) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	for _, article := range articles {
		name := article.DocSlug + ".md"
		if err := os.WriteFile(filepath.Join(outDir, name), []byte(renderArticle(article)), 0644); err != nil {
			return fmt.Errorf("write article %s: %w", name, err)
		}
	}

	if report != nil {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		name := report.JobID + ".report.json"
		if err := os.WriteFile(filepath.Join(outDir, name), data, 0644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	return nil
}

// renderArticle produces the published markdown: title heading, body,
// then the cross-links the related-links stage selected.
func renderArticle(article *document.Article) string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(article.Title)
	b.WriteString("\n\n")
	b.WriteString(strings.TrimRight(article.Content, "\n"))
	b.WriteString("\n")

	if article.RelatedLinks != nil && len(article.RelatedLinks.Internal) > 0 {
		b.WriteString("\n## Related articles\n\n")
		for _, link := range article.RelatedLinks.Internal {
			fmt.Fprintf(&b, "- [%s](%s)\n", link.Title, link.URL)
		}
	}
	return b.String()
}
