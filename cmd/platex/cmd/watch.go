package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/MeKo-Tech/platex/internal/batch"
	"github.com/MeKo-Tech/platex/internal/pipeline"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// settleDelay is how long a file must stay unchanged before it is read.
var settleDelay = 250 * time.Millisecond

func newWatchCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [flags] DIR",
		Short: "Extract from images as they appear in a directory",
		Long: `Watch a directory and run every new or rewritten image through the
pipeline. Each result is printed as one JSON line.

Examples:
  platex watch ./incoming
  platex watch ./scans --kind document --output results.jsonl`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runWatch(cmd, args[0])
		},
	}
	f := cmd.Flags()
	f.String("kind", string(pipeline.KindPlate), "deployment to run (plate, document)")
	f.StringSlice("ext", nil, "image extensions to pick up")
	f.StringP("output", "o", "", "append results to this file (default: stdout)")
	f.IntP("workers", "w", 0, "number of parallel workers")
	return cmd
}

func (a *app) runWatch(cmd *cobra.Command, dir string) error {
	kind, err := kindFlag(cmd, a.cfg.Batch.Kind)
	if err != nil {
		return err
	}
	exts := a.cfg.Batch.Extensions
	if cmd.Flags().Changed("ext") {
		exts, _ = cmd.Flags().GetStringSlice("ext")
	}

	out := cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	pool, err := a.openPool(cmd, nil)
	if err != nil {
		return err
	}
	defer func() { _ = pool.Context().Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return watchDir(ctx, pool, dir, kind, exts, out)
}

// watchLine is one JSON line written by watch.
type watchLine struct {
	File       string           `json:"file"`
	Result     *pipeline.Result `json:"result,omitempty"`
	Error      string           `json:"error,omitempty"`
	DurationMs int64            `json:"duration_ms"`
}

// watchDir processes images written into dir until ctx is done.
func watchDir(ctx context.Context, pool *pipeline.Pool, dir string, kind pipeline.Kind, exts []string, out io.Writer) error {
	if len(exts) == 0 {
		exts = batch.DefaultExtensions
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	slog.Info("Watching directory", "dir", dir, "kind", kind, "workers", pool.Workers())

	ready := make(chan string)
	var (
		mu      sync.Mutex
		pending = map[string]*time.Timer{}
		wg      sync.WaitGroup
		outMu   sync.Mutex
	)
	defer func() {
		mu.Lock()
		for _, t := range pending {
			t.Stop()
		}
		mu.Unlock()
		wg.Wait()
	}()

	enc := json.NewEncoder(out)
	emit := func(line watchLine) {
		outMu.Lock()
		defer outMu.Unlock()
		if err := enc.Encode(line); err != nil {
			slog.Error("Failed to write result", "file", line.File, "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("Watch stopped", "dir", dir)
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Watcher error", "error", err)
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !batch.HasImageExtension(ev.Name, exts) {
				continue
			}
			path := ev.Name
			mu.Lock()
			if t, ok := pending[path]; ok {
				t.Reset(settleDelay)
			} else {
				pending[path] = time.AfterFunc(settleDelay, func() {
					select {
					case ready <- path:
					case <-ctx.Done():
					}
				})
			}
			mu.Unlock()
		case path := <-ready:
			mu.Lock()
			delete(pending, path)
			mu.Unlock()
			wg.Add(1)
			go func() {
				defer wg.Done()
				emit(processWatched(ctx, pool, kind, path))
			}()
		}
	}
}

func processWatched(ctx context.Context, pool *pipeline.Pool, kind pipeline.Kind, path string) watchLine {
	line := watchLine{File: filepath.Base(path)}
	data, err := os.ReadFile(path)
	if err != nil {
		line.Error = err.Error()
		return line
	}
	jr := pool.Submit(ctx, pipeline.Job{Name: line.File, Kind: kind, Data: data})
	line.DurationMs = jr.Duration.Milliseconds()
	if jr.Err != nil {
		line.Error = jr.Err.Error()
		slog.Warn("Watched file failed", "file", path, "error", jr.Err)
		return line
	}
	line.Result = jr.Result
	slog.Debug("Watched file processed", "file", path, "outcome", jr.Result.Outcome)
	return line
}
