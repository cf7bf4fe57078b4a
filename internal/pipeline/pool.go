package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// PoolConfig holds configuration for parallel extraction.
type PoolConfig struct {
	MaxWorkers int              // Number of parallel workers (0 = runtime.NumCPU())
	Progress   ProgressCallback // Optional progress reporting for Run
}

// DefaultPoolConfig returns the reference worker count.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{MaxWorkers: DefaultMaxWorkers}
}

// Job is one extraction request. Either Image or Data must be set.
type Job struct {
	Name  string
	Kind  Kind
	Image image.Image
	Data  []byte
}

// JobResult pairs a job with its outcome.
type JobResult struct {
	Index    int
	Name     string
	Result   *Result
	Err      error
	Duration time.Duration
}

// Pool runs extractions over a bounded set of workers sharing one Context.
type Pool struct {
	pc  *Context
	cfg PoolConfig
	sem chan struct{}
}

// NewPool creates a pool over pc.
func NewPool(pc *Context, cfg PoolConfig) *Pool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	return &Pool{pc: pc, cfg: cfg, sem: make(chan struct{}, cfg.MaxWorkers)}
}

// Workers returns the worker count.
func (p *Pool) Workers() int { return p.cfg.MaxWorkers }

// Context returns the shared extraction context.
func (p *Pool) Context() *Context { return p.pc }

// Submit runs one job once a worker slot is free. It blocks until the job
// finishes or ctx is done while waiting for a slot.
func (p *Pool) Submit(ctx context.Context, job Job) JobResult {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return JobResult{Name: job.Name, Err: ctx.Err()}
	}
	defer func() { <-p.sem }()
	return p.do(ctx, 0, job)
}

// Run processes jobs in parallel and returns results in input order.
// Cancellation is observed between jobs; jobs never started carry ctx.Err().
func (p *Pool) Run(ctx context.Context, jobs []Job) ([]JobResult, error) {
	out := make([]JobResult, len(jobs))
	if len(jobs) == 0 {
		return out, nil
	}
	if p.cfg.Progress != nil {
		p.cfg.Progress.OnStart(len(jobs))
		defer p.cfg.Progress.OnComplete()
	}

	type item struct {
		index int
		job   Job
	}
	queue := make(chan item)
	results := make(chan JobResult, len(jobs))

	var wg sync.WaitGroup
	for range min(p.cfg.MaxWorkers, len(jobs)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range queue {
				p.sem <- struct{}{}
				r := p.do(ctx, it.index, it.job)
				<-p.sem
				results <- r
			}
		}()
	}

	go func() {
		defer close(queue)
		for i, j := range jobs {
			if ctx.Err() != nil {
				return
			}
			select {
			case queue <- item{index: i, job: j}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	done := make([]bool, len(jobs))
	processed := 0
	for r := range results {
		out[r.Index] = r
		done[r.Index] = true
		processed++
		if p.cfg.Progress != nil {
			if r.Err != nil {
				p.cfg.Progress.OnError(processed, r.Err)
			}
			p.cfg.Progress.OnProgress(processed, len(jobs))
		}
	}

	if err := ctx.Err(); err != nil {
		for i := range out {
			if !done[i] {
				out[i] = JobResult{Index: i, Name: jobs[i].Name, Err: err}
			}
		}
		return out, err
	}
	return out, nil
}

// do runs one job, converting a panic into an error result.
func (p *Pool) do(ctx context.Context, index int, job Job) (jr JobResult) {
	start := time.Now()
	jr = JobResult{Index: index, Name: job.Name}
	defer func() {
		if r := recover(); r != nil {
			poolPanics.Inc()
			slog.Error("Extraction panicked", "name", job.Name, "panic", r, "stack", string(debug.Stack()))
			jr.Result = nil
			jr.Err = fmt.Errorf("extraction panicked: %v", r)
		}
		jr.Duration = time.Since(start)
	}()

	if job.Image != nil {
		jr.Result, jr.Err = p.pc.Run(ctx, job.Kind, job.Image)
	} else {
		jr.Result, jr.Err = p.pc.RunBytes(ctx, job.Kind, job.Data)
	}
	return jr
}
