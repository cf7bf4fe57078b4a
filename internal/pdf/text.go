package pdf

import (
	"fmt"
	"strings"

	dpdf "github.com/dslipak/pdf"
)

// ExtractText returns the text layer of the selected pages, keyed by page.
// Scanned documents have none; digitally issued ones often do.
func ExtractText(filename string, pages []int) (map[int]string, error) {
	r, err := dpdf.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF %q: %w", filename, err)
	}

	total := r.NumPage()
	if len(pages) == 0 {
		for i := 1; i <= total; i++ {
			pages = append(pages, i)
		}
	}

	out := make(map[int]string, len(pages))
	for _, n := range pages {
		if n < 1 || n > total {
			continue
		}
		page := r.Page(n)
		if page.V.IsNull() {
			continue
		}
		out[n] = pageText(page)
	}
	return out, nil
}

// pageText joins the text rows of page, falling back to plain text.
func pageText(page dpdf.Page) string {
	rows, err := page.GetTextByRow()
	if err == nil && len(rows) > 0 {
		var b strings.Builder
		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, t := range row.Content {
				words = append(words, t.S)
			}
			b.WriteString(strings.Join(words, " "))
			b.WriteString("\n")
		}
		return strings.TrimSpace(b.String())
	}
	plain, _ := page.GetPlainText(make(map[string]*dpdf.Font))
	return strings.TrimSpace(plain)
}
