package batch

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MeKo-Tech/platex/internal/pipeline"
	"github.com/MeKo-Tech/platex/internal/testutil"
	"github.com/MeKo-Tech/platex/internal/testutil/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPool(t *testing.T) *pipeline.Pool {
	t.Helper()
	pc := fixtures.Context(t, fixtures.PlateScene(), fixtures.DocumentScene(), fixtures.ScriptedOCR("1234", "Ben", 0.9))
	return pipeline.NewPool(pc, pipeline.PoolConfig{MaxWorkers: 2})
}

// plateDir writes two plate frames and one broken file.
func plateDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	frame := testutil.EncodePNG(t, fixtures.PlateScene().Frame())
	testutil.WriteFile(t, dir, "01.png", frame)
	testutil.WriteFile(t, dir, "02.png", frame)
	testutil.WriteFile(t, dir, "03.png", []byte("broken"))
	return dir
}

func TestProcessBatch_Plates(t *testing.T) {
	dir := plateDir(t)
	res, err := ProcessBatch(context.Background(), newPool(t), []string{dir}, &Config{ContinueOnError: true})
	require.NoError(t, err)

	assert.Equal(t, pipeline.KindPlate, res.Kind)
	assert.Equal(t, 2, res.WorkerCount)
	require.Len(t, res.Results, 3)
	for i, jr := range res.Results[:2] {
		require.NoError(t, jr.Err, i)
		assert.Equal(t, res.ImagePaths[i], jr.Name)
		assert.Equal(t, "RS 1234", jr.Result.Text)
	}
	assert.ErrorIs(t, res.Results[2].Err, pipeline.ErrImageDecode)

	s := res.Stats()
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.Zero(t, s.Unsuccessful)
}

func TestProcessBatch_StopsOnError(t *testing.T) {
	_, err := ProcessBatch(context.Background(), newPool(t), []string{plateDir(t)}, &Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrImageDecode)
	assert.Contains(t, err.Error(), "03.png")
}

func TestProcessBatch_NoImages(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "readme.txt", []byte("hi"))
	_, err := ProcessBatch(context.Background(), newPool(t), []string{dir}, &Config{})
	assert.ErrorIs(t, err, ErrNoImages)
}

func TestProcessBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ProcessBatch(ctx, newPool(t), []string{plateDir(t)}, &Config{ContinueOnError: true})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadJobs_ReadError(t *testing.T) {
	dir := t.TempDir()
	ok := testutil.WriteFile(t, dir, "a.png", []byte("data"))
	jobs, errs := loadJobs([]string{ok, filepath.Join(dir, "gone.png")}, pipeline.KindDocument)
	require.Len(t, jobs, 2)
	assert.Equal(t, []byte("data"), jobs[0].Data)
	assert.Equal(t, pipeline.KindDocument, jobs[1].Kind)
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], os.ErrNotExist)
}

func TestFormatResults(t *testing.T) {
	dir := plateDir(t)
	res, err := ProcessBatch(context.Background(), newPool(t), []string{dir}, &Config{ContinueOnError: true})
	require.NoError(t, err)

	t.Run("text", func(t *testing.T) {
		out, err := res.FormatResults("text")
		require.NoError(t, err)
		assert.Contains(t, out, "# "+filepath.Join(dir, "01.png"))
		assert.Contains(t, out, "plate: RS 1234")
		assert.Contains(t, out, "success: true outcome: success")
		assert.Contains(t, out, "error: ")
	})

	t.Run("json", func(t *testing.T) {
		out, err := res.FormatResults("json")
		require.NoError(t, err)
		var decoded struct {
			Kind   string `json:"kind"`
			Images []struct {
				File   string `json:"file"`
				Error  string `json:"error"`
				Result *struct {
					Text string `json:"text"`
				} `json:"result"`
			} `json:"images"`
			Summary Stats `json:"summary"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &decoded))
		assert.Equal(t, "plate", decoded.Kind)
		require.Len(t, decoded.Images, 3)
		assert.Equal(t, "RS 1234", decoded.Images[0].Result.Text)
		assert.Nil(t, decoded.Images[2].Result)
		assert.NotEmpty(t, decoded.Images[2].Error)
		assert.Equal(t, 2, decoded.Summary.Succeeded)
	})

	t.Run("csv", func(t *testing.T) {
		out, err := res.FormatResults("csv")
		require.NoError(t, err)
		rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 4)
		assert.Equal(t, csvHeader(pipeline.KindPlate), rows[0])
		assert.Equal(t, "true", rows[1][1])
		assert.Equal(t, "RS 1234", rows[1][2])
		assert.Equal(t, "num tun", rows[1][5])
		assert.Equal(t, "false", rows[3][1])
	})

	_, err = res.FormatResults("xml")
	assert.Error(t, err)
}

func TestFormatResults_DocumentCSV(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "card.png", testutil.EncodePNG(t, fixtures.DocumentScene().Frame()))
	res, err := ProcessBatch(context.Background(), newPool(t), []string{dir}, &Config{Kind: pipeline.KindDocument})
	require.NoError(t, err)

	out, err := res.FormatResults("csv")
	require.NoError(t, err)
	rows, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"1234", "Ben", "Ben"}, rows[1][2:5])

	text := FormatText(res.Results[0].Result)
	assert.Contains(t, text, "id_number: 1234 (0.900)")
	assert.Contains(t, text, "lastname: Ben")
}

func TestFormatStats(t *testing.T) {
	out := FormatStats(Stats{Total: 4, Succeeded: 3, Failed: 1, WorkerCount: 2, TotalDuration: 2 * time.Second,
		AveragePerImage: 500 * time.Millisecond, ThroughputPerSec: 2})
	assert.Contains(t, out, "Total images: 4")
	assert.Contains(t, out, "Succeeded: 3")
	assert.Contains(t, out, "Throughput: 2.0 images/sec")

	empty := (&Result{}).Stats()
	assert.Zero(t, empty.AveragePerImage)
	assert.Zero(t, empty.ThroughputPerSec)
}
