package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/platex/internal/labels"
	"github.com/MeKo-Tech/platex/internal/pipeline"
)

// FormatResults formats the batch results as text, json or csv.
func (r *Result) FormatResults(format string) (string, error) {
	switch format {
	case "json":
		return formatJSON(r)
	case "csv":
		return formatCSV(r)
	case "text", "":
		return formatText(r), nil
	default:
		return "", fmt.Errorf("unsupported output format %q", format)
	}
}

type jsonEntry struct {
	File       string           `json:"file"`
	Result     *pipeline.Result `json:"result,omitempty"`
	Error      string           `json:"error,omitempty"`
	DurationMS int64            `json:"duration_ms"`
}

func formatJSON(r *Result) (string, error) {
	out := struct {
		Kind    pipeline.Kind `json:"kind"`
		Images  []jsonEntry   `json:"images"`
		Summary Stats         `json:"summary"`
	}{Kind: r.Kind, Images: make([]jsonEntry, len(r.Results)), Summary: r.Stats()}

	for i, jr := range r.Results {
		e := jsonEntry{File: jr.Name, Result: jr.Result, DurationMS: jr.Duration.Milliseconds()}
		if jr.Err != nil {
			e.Error = jr.Err.Error()
		}
		out.Images[i] = e
	}

	bts, err := json.MarshalIndent(out, "", "  ")
	return string(bts), err
}

// csvHeader returns the columns of the csv output for kind.
func csvHeader(kind pipeline.Kind) []string {
	if kind == pipeline.KindDocument {
		return []string{"file", "success", "id_number", "name", "lastname", "confidence", "outcome", "error"}
	}
	return []string{"file", "success", "plate_number", "confidence", "outcome", "raw_sequence", "error"}
}

func formatCSV(r *Result) (string, error) {
	var output strings.Builder
	writer := csv.NewWriter(&output)
	if err := writer.Write(csvHeader(r.Kind)); err != nil {
		return "", err
	}

	for _, jr := range r.Results {
		if err := writer.Write(csvRow(r.Kind, jr)); err != nil {
			return "", err
		}
	}
	writer.Flush()
	return output.String(), writer.Error()
}

func csvRow(kind pipeline.Kind, jr pipeline.JobResult) []string {
	res := jr.Result
	if res == nil {
		res = &pipeline.Result{}
	}
	msg := res.ErrorReason
	if jr.Err != nil {
		msg = jr.Err.Error()
	}
	conf := fmt.Sprintf("%.3f", res.Confidence)
	success := strconv.FormatBool(jr.Err == nil && res.Success)

	if kind == pipeline.KindDocument {
		f := func(role labels.Role) string { return res.Fields[string(role)].Text }
		return []string{jr.Name, success, f(labels.RoleIDNumber), f(labels.RoleName), f(labels.RoleLastName),
			conf, string(res.Outcome), msg}
	}
	return []string{jr.Name, success, res.Text, conf, string(res.Outcome), strings.Join(res.RawSequence, " "), msg}
}

func formatText(r *Result) string {
	var output strings.Builder
	for i, jr := range r.Results {
		if i > 0 {
			output.WriteString("\n")
		}
		fmt.Fprintf(&output, "# %s\n", jr.Name)
		if jr.Err != nil {
			fmt.Fprintf(&output, "error: %v\n", jr.Err)
			continue
		}
		output.WriteString(FormatText(jr.Result))
	}
	return output.String()
}

// FormatText renders one result as human readable lines.
func FormatText(res *pipeline.Result) string {
	var b strings.Builder
	if res.Kind == pipeline.KindDocument {
		for _, role := range labels.KnownRoles {
			if f, ok := res.Fields[string(role)]; ok {
				fmt.Fprintf(&b, "%s: %s (%.3f)\n", role, f.Text, f.Confidence)
			}
		}
	} else if res.Text != "" {
		fmt.Fprintf(&b, "plate: %s (%.3f)\n", res.Text, res.Confidence)
	}
	fmt.Fprintf(&b, "success: %t outcome: %s\n", res.Success, res.Outcome)
	if res.ErrorReason != "" {
		fmt.Fprintf(&b, "reason: %s\n", res.ErrorReason)
	}
	return b.String()
}

// FormatStats renders run statistics.
func FormatStats(s Stats) string {
	var b strings.Builder
	b.WriteString("\nProcessing Statistics:\n")
	fmt.Fprintf(&b, "  Total images: %d\n", s.Total)
	fmt.Fprintf(&b, "  Succeeded: %d\n", s.Succeeded)
	fmt.Fprintf(&b, "  Unsuccessful: %d\n", s.Unsuccessful)
	fmt.Fprintf(&b, "  Failed: %d\n", s.Failed)
	fmt.Fprintf(&b, "  Workers: %d\n", s.WorkerCount)
	fmt.Fprintf(&b, "  Duration: %v\n", s.TotalDuration.Round(time.Millisecond))
	fmt.Fprintf(&b, "  Avg per image: %v\n", s.AveragePerImage.Round(time.Millisecond))
	fmt.Fprintf(&b, "  Throughput: %.1f images/sec\n", s.ThroughputPerSec)
	return b.String()
}
