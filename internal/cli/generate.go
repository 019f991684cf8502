package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/svgicon/pkg/config"
	"github.com/matzehuels/svgicon/pkg/pipeline"
)

// generateCommand creates the generate command.
func (c *CLI) generateCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:     "generate",
		Aliases: []string{"gen"},
		Short:   "Compile SVG files into icon modules",
		Long: `Compile every SVG below the source directory into an icon module.

The target directory is deleted and rebuilt on every run. Files that fail to
compile are reported and left out; the rest of the tree is still generated.

Examples:
  svgicon generate -s assets/svg -t src/icons
  svgicon generate -s assets/svg -t src/icons --es6 --ext ts
  svgicon generate                     # paths from svgicon.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := flags.resolve(cmd, true)
			if err != nil {
				return err
			}
			runner, release := c.newRunner(ctx, cfg)
			defer release()

			_, err = c.generate(ctx, runner, cfg)
			return err
		},
	}

	flags.register(cmd, true)
	return cmd
}

// generate performs one run, printing a status line per event and a summary
// table at the end.
func (c *CLI) generate(ctx context.Context, runner *pipeline.Runner, cfg *config.Config) (*pipeline.Result, error) {
	ctx, _ = withRunID(ctx)
	logger := loggerFromContext(ctx)
	prog := newProgress(logger)

	opts := pipelineOptions(cfg)
	opts.Logger = logger
	opts.OnEvent = func(e pipeline.Event) { printEvent(c.Out, e) }

	result, err := runner.Execute(ctx, opts)
	if err != nil {
		return nil, err
	}

	fmt.Fprintln(c.Out, renderSummary(result))
	prog.done(fmt.Sprintf("Generated %d icons in %s", result.Stats.Icons, cfg.Target))
	return result, nil
}
