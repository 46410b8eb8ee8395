package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func openParquet(t *testing.T, path string) *parquet.File {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	info, err := f.Stat()
	require.NoError(t, err)
	pf, err := parquet.OpenFile(f, info.Size())
	require.NoError(t, err)
	return pf
}

func TestConvertFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "prices.csv")
	writeFile(t, src, "symbol,price,volume\nAAA,10.5,100\nBBB,11,200\nCCC,12.25,300\n")

	c := NewConverter(1, nil)
	c.ChunkSize = 2
	dst := filepath.Join(dir, "out", "prices.parquet")
	rows, err := c.ConvertFile(src, dst)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rows)

	pf := openParquet(t, dst)
	assert.Equal(t, int64(3), pf.NumRows())
	var names []string
	for _, f := range pf.Schema().Fields() {
		names = append(names, f.Name())
	}
	assert.Equal(t, []string{"symbol", "price", "volume"}, names)

	_, err = os.Stat(dst + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestConvertTree(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "07 Aug Exp", "01 Aug", "24000CE.csv"), "timestamp,price,qty\n2024-08-01 09:15:00,100,5\n")
	writeFile(t, filepath.Join(src, "07 Aug Exp", "01 Aug", "5S", "nse_nifty2580724000ce_min.csv"), "open,close\n1,2\n3,4\n")
	writeFile(t, filepath.Join(src, "07 Aug Exp", "notes.txt"), "ignored")
	writeFile(t, filepath.Join(src, ".cache", "hidden.csv"), "a\n1\n")
	writeFile(t, filepath.Join(src, "broken.csv"), "a,b\n1,2\n3\n")

	stats, err := NewConverter(2, nil).ConvertTree(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Converted)
	assert.Equal(t, int64(3), stats.Rows)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Contains(t, stats.Failures, "broken.csv")

	assert.FileExists(t, filepath.Join(dst, "07 Aug Exp", "01 Aug", "24000CE.parquet"))
	assert.FileExists(t, filepath.Join(dst, "07 Aug Exp", "01 Aug", "5S", "nse_nifty2580724000ce_min.parquet"))
	assert.NoFileExists(t, filepath.Join(dst, ".cache", "hidden.parquet"))
}

func TestConvertTreeCancelled(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.csv"), "a\n1\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewConverter(1, nil).ConvertTree(ctx, src, t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
}
