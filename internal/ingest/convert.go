// Package ingest turns raw intraday CSV exports into the Parquet layouts
// the explorer and the chart endpoints read.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"golang.org/x/sync/errgroup"
)

// ErrEmptyFile is returned for CSV files without data rows.
var ErrEmptyFile = errors.New("csv has no data rows")

// DefaultWorkers is the converter pool size when none is configured.
const DefaultWorkers = 4

// ConvertStats counts the outcome of a tree conversion.
type ConvertStats struct {
	Converted int64             `json:"converted"`
	Skipped   int64             `json:"skipped"`
	Failed    int64             `json:"failed"`
	Rows      int64             `json:"rows"`
	Failures  map[string]string `json:"failures,omitempty"`
}

// Converter rewrites CSV files as Snappy-compressed Parquet, inferring
// column types from the data.
type Converter struct {
	Workers   int
	ChunkSize int
	Logger    *slog.Logger
}

// NewConverter returns a converter running up to workers files at once.
func NewConverter(workers int, log *slog.Logger) *Converter {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if log == nil {
		log = slog.Default()
	}
	return &Converter{Workers: workers, ChunkSize: 1000, Logger: log}
}

// ConvertTree converts every CSV under srcRoot into dstRoot, keeping the
// relative directory structure. Per-file failures are counted, not
// returned; the error is non-nil only when the walk itself fails or ctx is
// cancelled.
func (c *Converter) ConvertTree(ctx context.Context, srcRoot, dstRoot string) (ConvertStats, error) {
	var files []string
	err := filepath.WalkDir(srcRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != srcRoot {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".csv") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return ConvertStats{}, fmt.Errorf("walking %s: %w", srcRoot, err)
	}
	c.Logger.Info("converting csv tree", "source", srcRoot, "dest", dstRoot, "files", len(files), "workers", c.Workers)

	var (
		stats ConvertStats
		mu    sync.Mutex
	)
	stats.Failures = make(map[string]string)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.Workers)
	for _, src := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rel, _ := filepath.Rel(srcRoot, src)
			dst := filepath.Join(dstRoot, strings.TrimSuffix(rel, filepath.Ext(rel))+".parquet")

			rows, err := c.ConvertFile(src, dst)
			switch {
			case errors.Is(err, ErrEmptyFile):
				atomic.AddInt64(&stats.Skipped, 1)
				c.Logger.Debug("skipping empty csv", "file", rel)
			case err != nil:
				atomic.AddInt64(&stats.Failed, 1)
				mu.Lock()
				stats.Failures[filepath.ToSlash(rel)] = err.Error()
				mu.Unlock()
				c.Logger.Warn("csv conversion failed", "file", rel, "error", err)
			default:
				atomic.AddInt64(&stats.Converted, 1)
				atomic.AddInt64(&stats.Rows, rows)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	c.Logger.Info("csv conversion finished",
		"converted", stats.Converted, "skipped", stats.Skipped, "failed", stats.Failed, "rows", stats.Rows)
	return stats, nil
}

// ConvertFile writes src as a Parquet file at dst and returns the number
// of rows written. dst is replaced atomically.
func (c *Converter) ConvertFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	chunk := c.ChunkSize
	if chunk <= 0 {
		chunk = 1000
	}
	mem := memory.NewGoAllocator()
	reader := csv.NewInferringReader(in,
		csv.WithHeader(true),
		csv.WithChunk(chunk),
		csv.WithNullReader(true, "", "NA", "NaN", "null"),
		csv.WithAllocator(mem),
	)
	defer reader.Release()

	if !reader.Next() {
		if err := reader.Err(); err != nil {
			return 0, fmt.Errorf("reading %s: %w", src, err)
		}
		return 0, ErrEmptyFile
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("creating directory: %w", err)
	}
	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", tmp, err)
	}

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())
	writer, err := pqarrow.NewFileWriter(reader.Schema(), out, props, arrowProps)
	if err != nil {
		out.Close()
		os.Remove(tmp)
		return 0, fmt.Errorf("creating parquet writer: %w", err)
	}

	var rows int64
	for {
		rec := reader.Record()
		if err := writer.Write(rec); err != nil {
			writer.Close()
			os.Remove(tmp)
			return 0, fmt.Errorf("writing parquet: %w", err)
		}
		rows += rec.NumRows()
		if !reader.Next() {
			break
		}
	}
	if err := reader.Err(); err != nil {
		writer.Close()
		os.Remove(tmp)
		return 0, fmt.Errorf("reading %s: %w", src, err)
	}
	if err := writer.Close(); err != nil {
		out.Close()
		os.Remove(tmp)
		return 0, fmt.Errorf("closing parquet writer: %w", err)
	}
	out.Close() //nolint:errcheck
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return rows, nil
}
