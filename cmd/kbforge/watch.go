package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/glyphworks/kbforge/watch"
)

func watchCommand(flags *rootFlags) *cobra.Command {
	var (
		outDir string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Watch a directory and reprocess documents as they change",
		Long: `Watch monitors a directory tree for source documents matching the
configured pattern (watch.pattern, default **/*.md) and runs the
pipeline whenever one is created or modified. Events are debounced and
rewrites that leave the content unchanged are ignored.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			app, err := newApp(ctx, flags, dryRun)
			if err != nil {
				return err
			}
			defer app.close()

			watcher, err := watch.New(root, app.cfg.Watch.Pattern, app.cfg.DebounceInterval(), app.logger)
			if err != nil {
				return fmt.Errorf("create watcher: %w", err)
			}
			// Existing files only reprocess once their content changes.
			watcher.PrimeHashes()

			if err := watcher.Start(ctx); err != nil {
				return fmt.Errorf("start watcher: %w", err)
			}
			defer watcher.Stop()

			fmt.Printf("Watching %s (pattern %s). Ctrl+C to stop.\n", root, app.cfg.Watch.Pattern)

			for {
				select {
				case <-ctx.Done():
					app.logger.Info("shutdown signal received")
					return nil
				case event, ok := <-watcher.Events():
					if !ok {
						return nil
					}
					if event.Op == watch.OpDelete {
						app.logger.Debug("source removed", "path", event.Path)
						continue
					}
					result, err := app.processFile(ctx, event.AbsPath, outDir, "")
					if err != nil {
						if ctx.Err() != nil {
							return nil
						}
						app.logger.Error("document failed", "path", event.Path, "error", err)
						continue
					}
					fmt.Println(result.line())
				}
			}
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "kb", "Output directory for articles and reports")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Skip repository writes")
	return cmd
}
