package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeKo-Tech/platex/internal/config"
	"github.com/MeKo-Tech/platex/internal/server"
	"github.com/spf13/cobra"
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP extraction server",
		Long: `Start an HTTP server exposing the extraction pipeline.

The server provides the following endpoints:
  POST /v1/plates    - Read the plate in an uploaded image
  POST /v1/documents - Read identity document fields
  GET  /ws           - WebSocket extraction
  GET  /health       - Health check endpoint
  GET  /models       - List model files and their availability
  GET  /metrics      - Prometheus metrics

Examples:
  platex serve
  platex serve --port 8080
  platex serve --host 0.0.0.0 --rate-limit-enabled --requests-per-minute 30`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd)
		},
	}
	f := cmd.Flags()
	f.String("host", "localhost", "server host")
	f.IntP("port", "p", 8080, "server port")
	f.String("cors-origin", "*", "CORS allowed origin")
	f.Int("max-upload-size", 50, "maximum upload size in MB")
	f.Int("timeout", 30, "per-request extraction timeout in seconds")
	f.Int("shutdown-timeout", 10, "graceful shutdown timeout in seconds")
	f.IntP("workers", "w", 0, "number of parallel workers")
	f.Bool("rate-limit-enabled", false, "enable per-client rate limiting")
	f.Int("requests-per-minute", 60, "requests per minute per client")
	f.Int("requests-per-hour", 1000, "requests per hour per client")
	f.Int("max-requests-per-day", 0, "requests per day per client (0 = unlimited)")
	f.Int64("max-data-per-day", 0, "uploaded bytes per day per client (0 = unlimited)")
	return cmd
}

// serverConfig maps the configuration onto server.Config with command line
// overrides.
func serverConfig(cfg *config.Config, cmd *cobra.Command) (server.Config, error) {
	sc := cfg.Server
	fl := cmd.Flags()
	if fl.Changed("host") {
		sc.Host, _ = fl.GetString("host")
	}
	if fl.Changed("port") {
		sc.Port, _ = fl.GetInt("port")
	}
	if fl.Changed("cors-origin") {
		sc.CORSOrigin, _ = fl.GetString("cors-origin")
	}
	if fl.Changed("max-upload-size") {
		sc.MaxUploadMB, _ = fl.GetInt("max-upload-size")
	}
	if fl.Changed("timeout") {
		sc.TimeoutSec, _ = fl.GetInt("timeout")
	}
	if fl.Changed("shutdown-timeout") {
		sc.ShutdownTimeout, _ = fl.GetInt("shutdown-timeout")
	}
	rl := sc.RateLimit
	if fl.Changed("rate-limit-enabled") {
		rl.Enabled, _ = fl.GetBool("rate-limit-enabled")
	}
	if fl.Changed("requests-per-minute") {
		rl.RequestsPerMinute, _ = fl.GetInt("requests-per-minute")
	}
	if fl.Changed("requests-per-hour") {
		rl.RequestsPerHour, _ = fl.GetInt("requests-per-hour")
	}
	if fl.Changed("max-requests-per-day") {
		rl.MaxRequestsPerDay, _ = fl.GetInt("max-requests-per-day")
	}
	if fl.Changed("max-data-per-day") {
		rl.MaxDataPerDay, _ = fl.GetInt64("max-data-per-day")
	}

	if sc.Port < 1 || sc.Port > 65535 {
		return server.Config{}, fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", sc.Port)
	}

	out := server.Config{
		Host:            sc.Host,
		Port:            sc.Port,
		CORSOrigin:      sc.CORSOrigin,
		MaxUploadMB:     int64(sc.MaxUploadMB),
		TimeoutSec:      sc.TimeoutSec,
		ShutdownTimeout: time.Duration(sc.ShutdownTimeout) * time.Second,
		ModelsDir:       cfg.ModelsDir,
	}
	if rl.Enabled {
		out.RateLimit = &server.RateLimitConfig{
			RequestsPerMinute: rl.RequestsPerMinute,
			RequestsPerHour:   rl.RequestsPerHour,
			MaxRequestsPerDay: rl.MaxRequestsPerDay,
			MaxDataPerDay:     rl.MaxDataPerDay,
		}
	}
	return out, nil
}

func (a *app) runServe(cmd *cobra.Command) error {
	sc, err := serverConfig(a.cfg, cmd)
	if err != nil {
		return err
	}
	pool, err := a.openPool(cmd, nil)
	if err != nil {
		return err
	}
	srv, err := server.NewServer(pool, sc)
	if err != nil {
		_ = pool.Context().Close()
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			slog.Warn("Failed to release pipeline", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.ListenAndServe(ctx, sc.Host, sc.Port, sc.ShutdownTimeout)
}
