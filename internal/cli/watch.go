package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/matzehuels/svgicon/pkg/errors"
	"github.com/matzehuels/svgicon/pkg/watch"
)

// watchCommand creates the watch command.
func (c *CLI) watchCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Regenerate icons whenever the source tree changes",
		Long: `Generate once, then regenerate the whole target whenever an SVG below the
source directory is added, changed or removed. Changes are batched so that
bulk edits trigger a single run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := flags.resolve(cmd, true)
			if err != nil {
				return err
			}
			runner, release := c.newRunner(ctx, cfg)
			defer release()

			if _, err := c.generate(ctx, runner, cfg); err != nil {
				return err
			}

			var ignore []string
			if pat := watch.IgnoreTarget(cfg.Source, cfg.Target); pat != "" {
				ignore = append(ignore, pat)
			}
			w, err := watch.New(watch.Config{
				Root:     cfg.Source,
				Patterns: []string{cfg.Pattern},
				Ignore:   ignore,
				Debounce: cfg.Watch.Debounce,
				Logger:   loggerFromContext(ctx),
				OnChange: func(ctx context.Context, changed []string) error {
					printInfo(c.Out, "%d changed, regenerating", len(changed))
					for _, p := range changed {
						printDetail(c.Out, "%s", p)
					}
					_, err := c.generate(ctx, runner, cfg)
					return err
				},
			})
			if err != nil {
				return errors.Wrap(errors.ErrCodeDiscovery, err, "watch %s", cfg.Source)
			}

			printInfo(c.Out, "Watching %s, %d directories (Ctrl+C to stop)", StyleValue.Render(cfg.Source), len(w.Watched()))
			return w.Run(ctx)
		},
	}

	flags.register(cmd, true)
	return cmd
}
