package batch

import (
	"time"

	"github.com/MeKo-Tech/platex/internal/pipeline"
)

// DefaultExtensions lists the image files picked up from directories.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff", ".webp"}

// Config holds all configuration for batch processing.
type Config struct {
	// Kind selects the deployment every file runs through.
	Kind pipeline.Kind

	// File discovery settings
	Recursive       bool
	Extensions      []string
	IncludePatterns []string
	ExcludePatterns []string

	// ContinueOnError keeps going past files that could not be read or
	// decoded; otherwise the first such failure is returned as an error.
	ContinueOnError bool
}

// Result holds the result of batch processing.
type Result struct {
	Kind        pipeline.Kind
	Results     []pipeline.JobResult
	ImagePaths  []string
	Duration    time.Duration
	WorkerCount int
}

// Stats summarizes a batch run.
type Stats struct {
	Total            int           `json:"total"`
	Succeeded        int           `json:"succeeded"`
	Unsuccessful     int           `json:"unsuccessful"`
	Failed           int           `json:"failed"`
	WorkerCount      int           `json:"workers"`
	TotalDuration    time.Duration `json:"total_ns"`
	AveragePerImage  time.Duration `json:"average_ns"`
	ThroughputPerSec float64       `json:"throughput_per_sec"`
}

// Stats computes run statistics. Succeeded counts results with
// success=true, Unsuccessful the remaining results and Failed the files that
// produced no result at all.
func (r *Result) Stats() Stats {
	s := Stats{Total: len(r.Results), WorkerCount: r.WorkerCount, TotalDuration: r.Duration}
	for _, jr := range r.Results {
		switch {
		case jr.Err != nil || jr.Result == nil:
			s.Failed++
		case jr.Result.Success:
			s.Succeeded++
		default:
			s.Unsuccessful++
		}
	}
	if s.Total > 0 {
		s.AveragePerImage = r.Duration / time.Duration(s.Total)
	}
	if r.Duration > 0 {
		s.ThroughputPerSec = float64(s.Total) / r.Duration.Seconds()
	}
	return s
}
