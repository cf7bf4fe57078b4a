package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MeKo-Tech/platex/internal/batch"
	"github.com/MeKo-Tech/platex/internal/labels"
	"github.com/MeKo-Tech/platex/internal/pdf"
	"github.com/MeKo-Tech/platex/internal/pipeline"
	"github.com/spf13/cobra"
)

func newPDFCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pdf [flags] FILE...",
		Short: "Extract document fields or plates from images embedded in PDFs",
		Long: `Extract the images embedded in PDF pages and run them through the pipeline.

Works with scanned PDFs. Password protected files are opened with
--password or --owner-password.

Examples:
  platex pdf scans.pdf
  platex pdf scans.pdf --pages 1-3 --format json
  platex pdf locked.pdf --password secret --text`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPDF(cmd, args)
		},
	}
	f := cmd.Flags()
	f.String("kind", string(pipeline.KindDocument), "deployment to run (plate, document)")
	f.String("pages", "", "page range to process (e.g., '1-5', '1,3,5')")
	f.String("password", "", "user password for encrypted PDFs")
	f.String("owner-password", "", "owner password for encrypted PDFs")
	f.Bool("text", false, "include each page's text layer")
	f.StringP("format", "f", "text", "output format (text, json)")
	f.StringP("output", "o", "", "output file (default: stdout)")
	f.IntP("workers", "w", 0, "number of parallel workers")
	return cmd
}

func (a *app) runPDF(cmd *cobra.Command, args []string) error {
	kind, err := kindFlag(cmd, "")
	if err != nil {
		return err
	}
	format := stringFlag(cmd, "format", a.cfg.Output.Format)
	if format != "text" && format != "json" {
		return fmt.Errorf("unsupported format %q for pdf (use text or json)", format)
	}

	pcfg := pdf.ProcessorConfig{Kind: kind}
	pcfg.ExtractText, _ = cmd.Flags().GetBool("text")
	user, _ := cmd.Flags().GetString("password")
	owner, _ := cmd.Flags().GetString("owner-password")
	if user != "" || owner != "" {
		pcfg.Credentials = &pdf.PasswordCredentials{UserPassword: user, OwnerPassword: owner}
	}
	pages, _ := cmd.Flags().GetString("pages")

	pool, err := a.openPool(cmd, nil)
	if err != nil {
		return err
	}
	defer func() { _ = pool.Context().Close() }()

	docs, err := pdf.NewProcessor(pool, pcfg).ProcessFiles(cmd.Context(), args, pages)
	if err != nil {
		if errors.Is(err, pdf.ErrPasswordRequired) {
			return fmt.Errorf("%w (use --password)", err)
		}
		return err
	}

	var out string
	if format == "json" {
		b, err := json.MarshalIndent(docs, "", "  ")
		if err != nil {
			return err
		}
		out = string(b)
	} else {
		out = formatPDFText(docs)
	}
	return writeOutput(cmd, stringFlag(cmd, "output", a.cfg.Output.File), out)
}

func formatPDFText(docs []*pdf.DocumentResult) string {
	var b strings.Builder
	for i, doc := range docs {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "# %s (%d pages)\n", doc.Filename, doc.TotalPages)
		for _, page := range doc.Pages {
			fmt.Fprintf(&b, "## page %d\n", page.PageNumber)
			for _, img := range page.Images {
				if img.Error != "" {
					fmt.Fprintf(&b, "image %d error: %s\n", img.ImageIndex, img.Error)
					continue
				}
				fmt.Fprintf(&b, "image %d\n", img.ImageIndex)
				b.WriteString(batch.FormatText(img.Result))
			}
			if page.Text != "" {
				fmt.Fprintf(&b, "text: %s\n", strings.TrimSpace(page.Text))
			}
		}
		if doc.Best != nil {
			fmt.Fprintf(&b, "best (page %d): %s (%.3f)\n", doc.BestPage, bestText(doc.Best), doc.Best.Confidence)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// bestText summarizes a result on one line.
func bestText(res *pipeline.Result) string {
	if res.Kind != pipeline.KindDocument {
		return res.Text
	}
	var parts []string
	for _, role := range labels.KnownRoles {
		if f, ok := res.Fields[string(role)]; ok {
			parts = append(parts, f.Text)
		}
	}
	return strings.Join(parts, " ")
}
