// Package cmd implements the platex command line.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/platex/internal/config"
	"github.com/MeKo-Tech/platex/internal/models"
	"github.com/MeKo-Tech/platex/internal/pipeline"
	"github.com/MeKo-Tech/platex/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// openContext builds the pipeline context a command runs on.
var openContext = (*config.Config).Open

// app carries the state shared by one command tree.
type app struct {
	v       *viper.Viper
	loader  *config.Loader
	cfg     *config.Config
	cfgFile string
	envFile string
}

// NewRootCommand returns the platex command tree on a private viper
// instance.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}
	a.loader = config.NewLoaderWithViper(a.v)

	root := &cobra.Command{
		Use:   "platex",
		Short: "Extract license plates and identity document fields from images",
		Long: `platex reads vehicle license plates and identity card fields from images
with ONNX detection models and a CTC recognizer.

Examples:
  platex image car.jpg
  platex batch ./frames --recursive --format csv
  platex pdf scans.pdf --kind document
  platex watch ./incoming
  platex serve --port 8080`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}
	root.SetVersionTemplate("platex {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is search in ., $HOME, $HOME/.config/platex, /etc/platex)")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	pf.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("models-dir", models.DefaultModelsDir,
		"directory containing ONNX models (can also be set via "+models.EnvModelsDir+")")

	_ = a.v.BindPFlag("verbose", pf.Lookup("verbose"))
	_ = a.v.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = a.v.BindPFlag("models_dir", pf.Lookup("models-dir"))

	root.AddCommand(
		newImageCommand(a),
		newBatchCommand(a),
		newPDFCommand(a),
		newWatchCommand(a),
		newServeCommand(a),
		newModelsCommand(a),
		newConfigCommand(a),
		newVersionCommand(),
	)
	return root
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// init loads the environment and configuration and installs the logger.
func (a *app) init(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return err
	}
	cfg, err := a.loader.LoadWithFile(a.cfgFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	a.cfg = cfg
	slog.SetDefault(newLogger(cmd.ErrOrStderr(), cfg))
	return nil
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	} else {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// openPool opens a pipeline context and wraps it in a pool. The caller
// closes the pool's context.
func (a *app) openPool(cmd *cobra.Command, progress pipeline.ProgressCallback) (*pipeline.Pool, error) {
	pc, err := openContext(a.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open pipeline: %w", err)
	}
	pcfg := a.cfg.ToPoolConfig()
	if f := cmd.Flags().Lookup("workers"); f != nil && f.Changed {
		pcfg.MaxWorkers, _ = cmd.Flags().GetInt("workers")
	}
	pcfg.Progress = progress
	slog.Debug("Pipeline ready", "info", pc.Info(), "workers", pcfg.MaxWorkers)
	return pipeline.NewPool(pc, pcfg), nil
}

// kindFlag resolves --kind against a configured default.
func kindFlag(cmd *cobra.Command, def string) (pipeline.Kind, error) {
	kind := def
	if cmd.Flags().Changed("kind") || kind == "" {
		kind, _ = cmd.Flags().GetString("kind")
	}
	return pipeline.ParseKind(kind)
}

// writeOutput writes s to path, or to the command's stdout when path is
// empty.
func writeOutput(cmd *cobra.Command, path, s string) error {
	if path == "" {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), s)
		return err
	}
	if err := os.WriteFile(path, []byte(s+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	slog.Info("Results written", "file", path)
	return nil
}

// stringFlag returns the flag value when set on the command line, else def.
func stringFlag(cmd *cobra.Command, name, def string) string {
	if cmd.Flags().Changed(name) {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	return def
}
