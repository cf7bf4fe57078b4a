// Package pdf extracts identity document and plate images embedded in PDF
// files and runs them through the extraction pool.
package pdf

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageImage is one image embedded in a PDF page, kept in its encoded form.
type PageImage struct {
	Page     int
	Index    int
	Name     string
	FileType string
	Data     []byte
}

// ExtractImages returns the images embedded in the selected pages of
// filename, grouped by page number. An empty pageRange selects every page.
func ExtractImages(filename, pageRange string, conf *model.Configuration) (map[int][]PageImage, error) {
	pages, err := parsePageRange(pageRange)
	if err != nil {
		return nil, fmt.Errorf("invalid page range %q: %w", pageRange, err)
	}

	f, err := os.Open(filename) //nolint:gosec // G304: user supplied PDF path
	if err != nil {
		return nil, fmt.Errorf("failed to extract images from PDF: %w", err)
	}
	defer func() { _ = f.Close() }()

	var selected []string
	for _, p := range pages {
		selected = append(selected, strconv.Itoa(p))
	}

	result := make(map[int][]PageImage)
	digest := func(img model.Image, _ bool, _ int) error {
		data, err := io.ReadAll(img)
		if err != nil {
			return fmt.Errorf("page %d image %s: %w", img.PageNr, img.Name, err)
		}
		result[img.PageNr] = append(result[img.PageNr], PageImage{
			Page:     img.PageNr,
			Index:    len(result[img.PageNr]),
			Name:     img.Name,
			FileType: img.FileType,
			Data:     bytes.Clone(data),
		})
		return nil
	}
	if err := api.ExtractImages(f, selected, digest, conf); err != nil {
		return nil, fmt.Errorf("failed to extract images from PDF: %w", err)
	}
	return result, nil
}

// PageCount returns the number of pages in filename.
func PageCount(filename string) (int, error) {
	return api.PageCountFile(filename)
}

// sortedPages returns the keys of m in ascending order.
func sortedPages[T any](m map[int]T) []int {
	out := make([]int, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// parsePageRange parses a page selection like "1-5" or "1,3,5".
func parsePageRange(pageRange string) ([]int, error) {
	if strings.TrimSpace(pageRange) == "" {
		return nil, nil
	}

	var pages []int
	for _, part := range strings.Split(pageRange, ",") {
		tokenPages, err := parseRangeToken(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		pages = append(pages, tokenPages...)
	}
	return pages, nil
}

// parseRangeToken parses either a single page token (e.g., "3") or a range token (e.g., "1-5").
func parseRangeToken(part string) ([]int, error) {
	if strings.Contains(part, "-") {
		rangeParts := strings.Split(part, "-")
		if len(rangeParts) != 2 {
			return nil, fmt.Errorf("invalid range format: %s", part)
		}
		start, err := strconv.Atoi(strings.TrimSpace(rangeParts[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid start page: %s", rangeParts[0])
		}
		end, err := strconv.Atoi(strings.TrimSpace(rangeParts[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid end page: %s", rangeParts[1])
		}
		if start < 1 || start > end {
			return nil, fmt.Errorf("invalid range %d-%d", start, end)
		}
		out := make([]int, 0, end-start+1)
		for i := start; i <= end; i++ {
			out = append(out, i)
		}
		return out, nil
	}
	page, err := strconv.Atoi(part)
	if err != nil || page < 1 {
		return nil, fmt.Errorf("invalid page number: %s", part)
	}
	return []int{page}, nil
}
