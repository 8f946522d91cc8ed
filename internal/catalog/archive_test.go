package catalog

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestArchive(t *testing.T, path string, entries map[string]string) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	for name, content := range entries {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func TestExtractArchive(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "product.zip")
	writeTestArchive(t, archive, map[string]string{
		"S2A_MSIL2A_test.SAFE/MTD_MSIL2A.xml":             "<xml/>",
		"S2A_MSIL2A_test.SAFE/GRANULE/L2A_T36MYE/MTD.xml": "<xml/>",
	})

	require.NoError(t, extractArchive(archive, dir))

	raw, err := os.ReadFile(filepath.Join(dir, "S2A_MSIL2A_test.SAFE", "MTD_MSIL2A.xml"))
	require.NoError(t, err)
	assert.Equal(t, "<xml/>", string(raw))

	_, err = os.Stat(filepath.Join(dir, "S2A_MSIL2A_test.SAFE", "GRANULE", "L2A_T36MYE", "MTD.xml"))
	assert.NoError(t, err)
}

func TestExtractArchiveRejectsEscapingEntries(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "bad.zip")
	writeTestArchive(t, archive, map[string]string{
		"../escape.txt": "nope",
	})

	err := extractArchive(archive, filepath.Join(dir, "dest"))
	assert.Error(t, err)
}

func TestSearchRequiresTile(t *testing.T) {
	c := &Client{}
	_, err := c.Search(context.Background(), Query{})
	assert.Error(t, err)
}
