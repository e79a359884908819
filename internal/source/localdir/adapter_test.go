package localdir

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestAdapterListsSupportedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "faq.md"), "# FAQ")
	writeFile(t, filepath.Join(root, "policies", "returns.txt"), "30 days")
	writeFile(t, filepath.Join(root, "logo.png"), "png")
	writeFile(t, filepath.Join(root, ".hidden", "notes.txt"), "skip")

	a := NewAdapter(root, "tenant-1")
	items, next, err := a.FetchBatch(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, next)
	require.Len(t, items, 2)

	assert.Equal(t, "faq.md", items[0].SourceID)
	assert.Equal(t, "text/markdown", items[0].ContentType)
	assert.Equal(t, "policies/returns.txt", items[1].SourceID)
	assert.Equal(t, "text/plain", items[1].ContentType)
	assert.Equal(t, "tenant-1", items[1].TenantID)
	assert.Equal(t, int64(7), items[1].Size)

	n, err := a.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestAdapterMissingRoot(t *testing.T) {
	a := NewAdapter(filepath.Join(t.TempDir(), "nope"), "")
	_, _, err := a.FetchBatch(context.Background(), "", 10)
	assert.Error(t, err)
}
