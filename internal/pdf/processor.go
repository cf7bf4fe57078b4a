package pdf

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/MeKo-Tech/platex/internal/pipeline"
)

// ProcessorConfig configures PDF processing.
type ProcessorConfig struct {
	// Kind selects the deployment the embedded images run through.
	Kind pipeline.Kind
	// ExtractText adds each page's text layer to the result.
	ExtractText bool
	// Credentials opens password protected files.
	Credentials *PasswordCredentials
}

// Processor extracts the images of PDF files and runs them on a pool.
type Processor struct {
	pool *pipeline.Pool
	cfg  ProcessorConfig
}

// NewProcessor creates a processor over pool.
func NewProcessor(pool *pipeline.Pool, cfg ProcessorConfig) *Processor {
	if cfg.Kind == "" {
		cfg.Kind = pipeline.KindDocument
	}
	return &Processor{pool: pool, cfg: cfg}
}

// ProcessFile extracts every embedded image in the selected pages of
// filename. Images that fail to decode are reported per image.
func (p *Processor) ProcessFile(ctx context.Context, filename, pageRange string) (*DocumentResult, error) {
	start := time.Now()

	working, cleanup, err := p.open(filename)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	total, err := PageCount(working)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}

	t0 := time.Now()
	images, err := ExtractImages(working, pageRange, nil)
	if err != nil {
		return nil, err
	}
	extractTime := time.Since(t0)

	var texts map[int]string
	if p.cfg.ExtractText {
		pages, _ := parsePageRange(pageRange)
		if texts, err = ExtractText(working, pages); err != nil {
			slog.Warn("Text layer extraction failed", "file", filename, "error", err)
		}
	}

	var jobs []pipeline.Job
	var refs []PageImage
	for _, page := range sortedPages(images) {
		for _, img := range images[page] {
			jobs = append(jobs, pipeline.Job{
				Name: fmt.Sprintf("%s#page%d-%d", filename, img.Page, img.Index),
				Kind: p.cfg.Kind,
				Data: img.Data,
			})
			refs = append(refs, img)
		}
	}
	slog.Debug("Extracted PDF images", "file", filename, "pages", total, "images", len(jobs))

	t1 := time.Now()
	results, err := p.pool.Run(ctx, jobs)
	if err != nil {
		return nil, fmt.Errorf("PDF processing failed: %w", err)
	}
	pipelineTime := time.Since(t1)

	doc := &DocumentResult{Filename: filename, Kind: p.cfg.Kind, TotalPages: total}
	pageIdx := make(map[int]int)
	addPage := func(n int) *PageResult {
		if i, ok := pageIdx[n]; ok {
			return &doc.Pages[i]
		}
		pageIdx[n] = len(doc.Pages)
		doc.Pages = append(doc.Pages, PageResult{PageNumber: n, Text: texts[n]})
		return &doc.Pages[len(doc.Pages)-1]
	}

	for i, jr := range results {
		ref := refs[i]
		ir := ImageResult{ImageIndex: ref.Index, Name: ref.Name, FileType: ref.FileType, Result: jr.Result}
		if jr.Err != nil {
			ir.Error = jr.Err.Error()
		}
		page := addPage(ref.Page)
		page.Images = append(page.Images, ir)

		if r := jr.Result; r != nil && r.Success && (doc.Best == nil || r.Confidence > doc.Best.Confidence) {
			doc.Best, doc.BestPage = r, ref.Page
		}
	}
	for _, n := range sortedPages(texts) {
		if texts[n] != "" {
			addPage(n)
		}
	}
	sort.Slice(doc.Pages, func(i, j int) bool { return doc.Pages[i].PageNumber < doc.Pages[j].PageNumber })

	doc.Processing = ProcessingInfo{
		ExtractionTimeMs: extractTime.Milliseconds(),
		PipelineTimeMs:   pipelineTime.Milliseconds(),
		TotalTimeMs:      time.Since(start).Milliseconds(),
	}
	return doc, nil
}

// ProcessFiles processes several files in order, stopping at the first
// failure.
func (p *Processor) ProcessFiles(ctx context.Context, filenames []string, pageRange string) ([]*DocumentResult, error) {
	out := make([]*DocumentResult, 0, len(filenames))
	for _, f := range filenames {
		doc, err := p.ProcessFile(ctx, f, pageRange)
		if err != nil {
			return out, fmt.Errorf("%s: %w", f, err)
		}
		out = append(out, doc)
	}
	return out, nil
}

// open returns a readable path for filename, decrypting it if needed.
func (p *Processor) open(filename string) (string, func(), error) {
	encrypted, err := IsEncrypted(filename)
	if err != nil {
		return "", nil, err
	}
	if !encrypted {
		return filename, func() {}, nil
	}
	path, err := Decrypt(filename, p.cfg.Credentials)
	if err != nil {
		return "", nil, err
	}
	return path, func() { _ = os.Remove(path) }, nil
}
