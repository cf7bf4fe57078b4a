package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/platex/internal/batch"
	"github.com/MeKo-Tech/platex/internal/pipeline"
	"github.com/spf13/cobra"
)

func newImageCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image [flags] FILE...",
		Short: "Extract a plate or document fields from images",
		Long: `Process images and print what was read from each.

Examples:
  platex image car.jpg
  platex image --kind document id-front.png --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runImage(cmd, args)
		},
	}
	cmd.Flags().String("kind", string(pipeline.KindPlate), "deployment to run (plate, document)")
	cmd.Flags().StringP("format", "f", "text", "output format (text, json)")
	cmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	return cmd
}

func (a *app) runImage(cmd *cobra.Command, args []string) error {
	kind, err := kindFlag(cmd, "")
	if err != nil {
		return err
	}
	format := stringFlag(cmd, "format", a.cfg.Output.Format)
	if format != "text" && format != "json" {
		return fmt.Errorf("unsupported format %q for image (use text or json)", format)
	}

	pool, err := a.openPool(cmd, nil)
	if err != nil {
		return err
	}
	defer func() { _ = pool.Context().Close() }()

	var (
		results []*pipeline.Result
		text    strings.Builder
		errs    []error
	)
	for _, path := range args {
		res, err := extractFile(cmd, pool, kind, path)
		if err != nil {
			slog.Error("Image failed", "file", path, "error", err)
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
		if len(args) > 1 {
			fmt.Fprintf(&text, "# %s\n", path)
		}
		text.WriteString(batch.FormatText(res))
	}

	if len(results) > 0 {
		out := strings.TrimRight(text.String(), "\n")
		if format == "json" {
			if out, err = pipeline.ToJSONs(results); err != nil {
				return err
			}
		}
		if err := writeOutput(cmd, stringFlag(cmd, "output", a.cfg.Output.File), out); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

func extractFile(cmd *cobra.Command, pool *pipeline.Pool, kind pipeline.Kind, path string) (*pipeline.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	jr := pool.Submit(cmd.Context(), pipeline.Job{Name: filepath.Base(path), Kind: kind, Data: data})
	if jr.Err != nil {
		return nil, fmt.Errorf("%s: %w", path, jr.Err)
	}
	return jr.Result, nil
}
