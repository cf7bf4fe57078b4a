package cmd

import (
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/platex/internal/batch"
	"github.com/MeKo-Tech/platex/internal/config"
	"github.com/MeKo-Tech/platex/internal/pipeline"
	"github.com/spf13/cobra"
)

func newBatchCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [flags] PATH...",
		Short: "Process many images in parallel",
		Long: `Process image files and directories on a bounded worker pool.

Supported formats: JPEG, PNG, BMP, TIFF, WebP

Examples:
  platex batch *.jpg
  platex batch frames/ --recursive --workers 8
  platex batch ids/ --kind document --format csv --output ids.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBatch(cmd, args)
		},
	}
	f := cmd.Flags()
	f.String("kind", string(pipeline.KindPlate), "deployment to run (plate, document)")
	f.BoolP("recursive", "r", false, "descend into subdirectories")
	f.StringSlice("ext", nil, "image extensions to pick up from directories")
	f.StringSlice("include", nil, "glob patterns a file name must match")
	f.StringSlice("exclude", nil, "glob patterns that skip a file")
	f.Bool("continue-on-error", false, "keep going past unreadable files")
	f.StringP("format", "f", "text", "output format (text, json, csv)")
	f.StringP("output", "o", "", "output file (default: stdout)")
	f.IntP("workers", "w", 0, "number of parallel workers")
	f.String("progress", "console", "progress reporting (console, log, none)")
	f.Bool("stats", false, "print processing statistics")
	return cmd
}

// batchConfig maps the configuration onto batch.Config with command line
// overrides.
func batchConfig(cfg *config.Config, cmd *cobra.Command) (*batch.Config, error) {
	kind, err := kindFlag(cmd, cfg.Batch.Kind)
	if err != nil {
		return nil, err
	}
	bc := &batch.Config{
		Kind:            kind,
		Recursive:       cfg.Batch.Recursive,
		Extensions:      cfg.Batch.Extensions,
		ContinueOnError: cfg.Batch.ContinueOnError,
	}
	if cmd.Flags().Changed("recursive") {
		bc.Recursive, _ = cmd.Flags().GetBool("recursive")
	}
	if cmd.Flags().Changed("ext") {
		bc.Extensions, _ = cmd.Flags().GetStringSlice("ext")
	}
	if cmd.Flags().Changed("continue-on-error") {
		bc.ContinueOnError, _ = cmd.Flags().GetBool("continue-on-error")
	}
	bc.IncludePatterns, _ = cmd.Flags().GetStringSlice("include")
	bc.ExcludePatterns, _ = cmd.Flags().GetStringSlice("exclude")
	return bc, nil
}

func progressCallback(cmd *cobra.Command, mode string) (pipeline.ProgressCallback, error) {
	switch mode {
	case "console":
		return pipeline.NewConsoleProgressCallback(cmd.ErrOrStderr(), "Processing: "), nil
	case "log":
		return pipeline.NewLogProgressCallback(slog.Default(), 10), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("invalid progress mode %q (must be console, log or none)", mode)
	}
}

func (a *app) runBatch(cmd *cobra.Command, args []string) error {
	bc, err := batchConfig(a.cfg, cmd)
	if err != nil {
		return err
	}
	progress, err := progressCallback(cmd, stringFlag(cmd, "progress", a.cfg.Batch.Progress))
	if err != nil {
		return err
	}
	pool, err := a.openPool(cmd, progress)
	if err != nil {
		return err
	}
	defer func() { _ = pool.Context().Close() }()

	res, err := batch.ProcessBatch(cmd.Context(), pool, args, bc)
	if err != nil {
		return err
	}
	out, err := res.FormatResults(stringFlag(cmd, "format", a.cfg.Output.Format))
	if err != nil {
		return err
	}
	if err := writeOutput(cmd, stringFlag(cmd, "output", a.cfg.Output.File), out); err != nil {
		return err
	}
	if stats, _ := cmd.Flags().GetBool("stats"); stats {
		_, _ = fmt.Fprint(cmd.ErrOrStderr(), batch.FormatStats(res.Stats()))
	}
	return nil
}
