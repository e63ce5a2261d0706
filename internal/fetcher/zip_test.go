package fetcher

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestZIP(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.zip")
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
	return path
}

func TestExtractZIP(t *testing.T) {
	zipPath := writeTestZIP(t, map[string]string{
		"grid.csv":        "x;y;pop\n",
		"docs/readme.txt": "notes",
	})

	dest := t.TempDir()
	extracted, err := ExtractZIP(zipPath, dest)
	require.NoError(t, err)
	assert.Len(t, extracted, 2)

	data, err := os.ReadFile(filepath.Join(dest, "grid.csv"))
	require.NoError(t, err)
	assert.Equal(t, "x;y;pop\n", string(data))
}

func TestExtractZIPFile(t *testing.T) {
	zipPath := writeTestZIP(t, map[string]string{
		"data/Zensus_klassierte_Werte_1km-Gitter.csv": "x;y\n1;2\n",
		"data/metadata.txt":                           "meta",
	})

	dest := t.TempDir()
	path, err := ExtractZIPFile(zipPath, "Zensus_klassierte_Werte_1km-Gitter.csv", dest)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "x;y\n1;2\n", string(data))
}

func TestExtractZIPFileMissing(t *testing.T) {
	zipPath := writeTestZIP(t, map[string]string{"a.csv": "x"})
	_, err := ExtractZIPFile(zipPath, "b.csv", t.TempDir())
	assert.Error(t, err)
}

func TestExtractZIPSlipRejected(t *testing.T) {
	zipPath := writeTestZIP(t, map[string]string{"../evil.txt": "pwned"})
	_, err := ExtractZIP(zipPath, t.TempDir())
	assert.Error(t, err)
}
