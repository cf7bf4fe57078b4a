// Package batch runs extractions over many image files through the worker
// pool.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MeKo-Tech/platex/internal/pipeline"
)

// ErrNoImages is returned when discovery finds nothing to process.
var ErrNoImages = errors.New("no image files found")

// ProcessBatch discovers the image files named by paths and extracts each
// of them on pool. Results keep the discovery order.
func ProcessBatch(ctx context.Context, pool *pipeline.Pool, paths []string, cfg *Config) (*Result, error) {
	if cfg.Kind == "" {
		cfg.Kind = pipeline.KindPlate
	}

	files, err := discoverImageFiles(paths, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to discover image files: %w", err)
	}
	if len(files) == 0 {
		return nil, ErrNoImages
	}
	slog.Info("Starting batch", "kind", cfg.Kind, "files", len(files), "workers", pool.Workers())

	jobs, readErrs := loadJobs(files, cfg.Kind)

	start := time.Now()
	results, err := pool.Run(ctx, jobs)
	duration := time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("batch processing failed: %w", err)
	}

	for i, rerr := range readErrs {
		if rerr != nil {
			results[i].Err = rerr
			results[i].Result = nil
		}
	}
	if !cfg.ContinueOnError {
		for _, jr := range results {
			if jr.Err != nil {
				return nil, fmt.Errorf("%s: %w", jr.Name, jr.Err)
			}
		}
	}

	return &Result{
		Kind:        cfg.Kind,
		Results:     results,
		ImagePaths:  files,
		Duration:    duration,
		WorkerCount: pool.Workers(),
	}, nil
}

// loadJobs reads every file into a job. A file that cannot be read yields
// an empty job and its error at the same index.
func loadJobs(files []string, kind pipeline.Kind) ([]pipeline.Job, []error) {
	jobs := make([]pipeline.Job, len(files))
	errs := make([]error, len(files))
	for i, path := range files {
		jobs[i] = pipeline.Job{Name: path, Kind: kind}
		data, err := os.ReadFile(path) //nolint:gosec // G304: paths come from the command line
		if err != nil {
			errs[i] = fmt.Errorf("failed to read %s: %w", path, err)
			continue
		}
		jobs[i].Data = data
	}
	return jobs, errs
}
