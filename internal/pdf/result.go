package pdf

import "github.com/MeKo-Tech/platex/internal/pipeline"

// PageResult holds the extractions for one PDF page.
type PageResult struct {
	PageNumber int           `json:"page_number"`
	Images     []ImageResult `json:"images"`
	// Text is the page's text layer when text extraction is enabled.
	Text string `json:"text,omitempty"`
}

// ImageResult is the extraction of one embedded image.
type ImageResult struct {
	ImageIndex int              `json:"image_index"`
	Name       string           `json:"name,omitempty"`
	FileType   string           `json:"file_type,omitempty"`
	Result     *pipeline.Result `json:"result,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// DocumentResult holds the extractions for a PDF file.
type DocumentResult struct {
	Filename   string        `json:"filename"`
	Kind       pipeline.Kind `json:"kind"`
	TotalPages int           `json:"total_pages"`
	Pages      []PageResult  `json:"pages"`
	// Best is the successful extraction with the highest confidence.
	Best       *pipeline.Result `json:"best,omitempty"`
	BestPage   int              `json:"best_page,omitempty"`
	Processing ProcessingInfo   `json:"processing"`
}

// ProcessingInfo contains timing information.
type ProcessingInfo struct {
	ExtractionTimeMs int64 `json:"extraction_time_ms"`
	PipelineTimeMs   int64 `json:"pipeline_time_ms"`
	TotalTimeMs      int64 `json:"total_time_ms"`
}
