package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	return path
}

func TestDiscoverImageFiles_EmptyArgs(t *testing.T) {
	files, err := discoverImageFiles(nil, &Config{})
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDiscoverImageFiles_ExplicitFiles(t *testing.T) {
	dir := t.TempDir()
	png := touch(t, filepath.Join(dir, "a.png"))
	txt := touch(t, filepath.Join(dir, "notes.txt"))

	// Files named explicitly are taken as given.
	files, err := discoverImageFiles([]string{png, txt}, &Config{})
	require.NoError(t, err)
	assert.Equal(t, []string{png, txt}, files)

	_, err = discoverImageFiles([]string{filepath.Join(dir, "missing.png")}, &Config{})
	assert.Error(t, err)
}

func TestDiscoverImageFiles_Directory(t *testing.T) {
	dir := t.TempDir()
	b := touch(t, filepath.Join(dir, "b.JPG"))
	a := touch(t, filepath.Join(dir, "a.png"))
	touch(t, filepath.Join(dir, "notes.txt"))
	nested := touch(t, filepath.Join(dir, "sub", "c.webp"))

	files, err := discoverImageFiles([]string{dir}, &Config{})
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, files)

	files, err = discoverImageFiles([]string{dir}, &Config{Recursive: true})
	require.NoError(t, err)
	assert.Equal(t, []string{a, b, nested}, files)
}

func TestDiscoverImageFiles_Patterns(t *testing.T) {
	dir := t.TempDir()
	keep := touch(t, filepath.Join(dir, "cam1_001.png"))
	touch(t, filepath.Join(dir, "cam1_002_debug.png"))
	touch(t, filepath.Join(dir, "cam2_001.png"))

	cfg := &Config{IncludePatterns: []string{"cam1_*"}, ExcludePatterns: []string{"*_debug.png"}}
	files, err := discoverImageFiles([]string{dir}, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{keep}, files)
}

func TestHasImageExtension(t *testing.T) {
	assert.True(t, HasImageExtension("x.PNG", nil))
	assert.True(t, HasImageExtension("x.tiff", nil))
	assert.False(t, HasImageExtension("x.pdf", nil))
	assert.True(t, HasImageExtension("x.pgm", []string{"pgm"}))
	assert.False(t, HasImageExtension("x.png", []string{".jpg"}))
}
