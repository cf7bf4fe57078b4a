package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/MeKo-Tech/platex/internal/models"
	"github.com/MeKo-Tech/platex/internal/onnx"
	"github.com/spf13/cobra"
)

// inspectModel reads what an ONNX file declares.
var inspectModel = onnx.Inspect

// modelEntry is one row of the models listing.
type modelEntry struct {
	models.ModelInfo
	Path      string          `json:"path"`
	Available bool            `json:"available"`
	Details   *onnx.ModelInfo `json:"details,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func newModelsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List model files and check them against ONNX Runtime",
		Long: `List the files a models directory may hold and whether they are present.

With --inspect every present ONNX file is opened and its inputs and
outputs are printed.

Examples:
  platex models
  platex models --models-dir /srv/models --inspect --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runModels(cmd)
		},
	}
	cmd.Flags().Bool("inspect", false, "read inputs and outputs of present ONNX files")
	cmd.Flags().StringP("format", "f", "text", "output format (text, json)")
	return cmd
}

func (a *app) runModels(cmd *cobra.Command) error {
	inspect, _ := cmd.Flags().GetBool("inspect")
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return fmt.Errorf("unsupported format %q for models (use text or json)", format)
	}

	dir := models.GetModelsDir(a.cfg.ModelsDir)
	status := models.Status(a.cfg.ModelsDir)
	var entries []modelEntry
	for _, m := range models.ListAvailableModels() {
		e := modelEntry{
			ModelInfo: m,
			Path:      models.ResolveModelPath(a.cfg.ModelsDir, m.Type, m.Filename),
			Available: status[m.Name],
		}
		if inspect && e.Available && strings.HasSuffix(m.Filename, ".onnx") {
			info, err := inspectModel(e.Path)
			if err != nil {
				e.Error = err.Error()
			} else {
				e.Details = info
			}
		}
		entries = append(entries, e)
	}

	if format == "json" {
		b, err := json.MarshalIndent(map[string]interface{}{"models_dir": dir, "models": entries}, "", "  ")
		if err != nil {
			return err
		}
		return writeOutput(cmd, "", string(b))
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Models directory: %s\n", dir)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tFILE\tREQUIRED\tAVAILABLE")
	for _, e := range entries {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%t\t%t\n", e.Name, e.Filename, e.Required, e.Available)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, e := range entries {
		switch {
		case e.Error != "":
			_, _ = fmt.Fprintf(out, "\n%s: %s\n", e.Name, e.Error)
		case e.Details != nil:
			_, _ = fmt.Fprintf(out, "\n%s:\n", e.Name)
			for _, in := range e.Details.Inputs {
				_, _ = fmt.Fprintf(out, "  input  %s %v (%s)\n", in.Name, in.Dimensions, in.DataType)
			}
			for _, o := range e.Details.Outputs {
				_, _ = fmt.Fprintf(out, "  output %s %v (%s)\n", o.Name, o.Dimensions, o.DataType)
			}
		}
	}
	return nil
}
