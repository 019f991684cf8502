package cli

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/svgicon/pkg/errors"
	"github.com/matzehuels/svgicon/pkg/preview"
	"github.com/matzehuels/svgicon/pkg/watch"
)

// previewCommand creates the preview command.
func (c *CLI) previewCommand() *cobra.Command {
	var (
		flags   runFlags
		addr    string
		noWatch bool
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Serve compiled icons in a browser gallery",
		Long: `Compile the source tree in memory and serve a gallery of every icon.
Nothing is written to disk. The gallery recompiles when sources change
unless --no-watch is given.

Routes:
  /                  gallery of all icons in one page
  /icons.json        listing with sizes and skipped files
  /icons/<name>.svg  a single icon as a standalone SVG`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := flags.resolve(cmd, false)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Preview.Addr = addr
			}
			logger := loggerFromContext(ctx)
			runner, release := c.newRunner(ctx, cfg)
			defer release()

			srv, err := preview.New(preview.Config{
				Addr:     cfg.Preview.Addr,
				Compiler: runner,
				Options:  pipelineOptions(cfg),
				Logger:   logger,
			})
			if err != nil {
				return err
			}

			spin := newSpinner(ctx, c.Err, "Compiling icons...")
			spin.Start()
			if err := srv.Refresh(ctx); err != nil {
				if spin.Cancelled() {
					spin.Stop()
					return ctx.Err()
				}
				spin.StopWithError("Compilation failed")
				return err
			}
			spin.StopWithSuccess("Compiled %s", cfg.Source)

			var w *watch.Watcher
			if !noWatch {
				w, err = watch.New(watch.Config{
					Root:     cfg.Source,
					Patterns: []string{cfg.Pattern},
					Debounce: cfg.Watch.Debounce,
					Logger:   logger,
					OnChange: func(ctx context.Context, _ []string) error {
						return srv.Refresh(ctx)
					},
				})
				if err != nil {
					return errors.Wrap(errors.ErrCodeDiscovery, err, "watch %s", cfg.Source)
				}
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.ListenAndServe(gctx) })
			if w != nil {
				g.Go(func() error { return w.Run(gctx) })
			}

			printInfo(c.Out, "Serving on %s", StyleTitle.Render("http://"+cfg.Preview.Addr))
			return g.Wait()
		},
	}

	flags.register(cmd, false)
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default 127.0.0.1:7070)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not recompile when sources change")
	return cmd
}
