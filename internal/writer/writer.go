// Package writer implements the CSV batched writer: it consumes the
// event-bus, groups records by (kind, symbol), and flushes to per-day
// files on a size or time trigger. It is a fixed schema per kind
// (schema.go) over stdlib encoding/csv, with no intermediate dataframe
// abstraction between the decoded event and the row on disk.
package writer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/BullionBear/sequex-ingest/internal/market"
	"github.com/BullionBear/sequex-ingest/pkg/eventbus"
)

// ErrDiskFull wraps a flush failure caused by the output volume running
// out of space; that condition is fatal rather than retried. Every
// other write failure is treated as transient: the batch stays in
// memory and is retried on the next flush trigger.
var ErrDiskFull = errors.New("writer: disk full")

func wrapIfDiskFull(err error, path string) error {
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%w: %s: %v", ErrDiskFull, path, err)
	}
	return err
}

type batchKey struct {
	kind   market.RecordKind
	symbol string
}

// Writer batches Records by (kind, symbol) and flushes to disk on a size
// or time trigger.
type Writer struct {
	outputDir     string
	batchSize     int
	flushInterval time.Duration
	logger        zerolog.Logger

	batches map[batchKey][]market.Record
}

// New constructs a Writer. batchSize <= 0 and flushInterval <= 0 fall
// back to defaults of 100 and 1s.
func New(outputDir string, batchSize int, flushInterval time.Duration, logger zerolog.Logger) *Writer {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &Writer{
		outputDir:     outputDir,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger,
		batches:       make(map[batchKey][]market.Record),
	}
}

// Run drains bus until it closes or ctx is cancelled, flushing remaining
// batches before returning. Every flush error is returned to the caller,
// a disk-full one wrapped as ErrDiskFull. A batch that failed to flush
// stays in memory, so running the same Writer again retries it on its
// next flush.
func (w *Writer) Run(ctx context.Context, bus *eventbus.Bus) error {
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case rec, ok := <-bus.Records():
			if !ok {
				return w.flushAll()
			}
			if err := w.ingest(rec); err != nil {
				return err
			}

		case <-ticker.C:
			if err := w.flushAll(); err != nil {
				return err
			}

		case <-ctx.Done():
			if err := w.flushAll(); err != nil {
				return err
			}
			return ctx.Err()
		}
	}
}

func (w *Writer) ingest(rec market.Record) error {
	key := batchKey{kind: rec.Kind, symbol: rec.Symbol}
	w.batches[key] = append(w.batches[key], rec)
	if len(w.batches[key]) >= w.batchSize {
		return w.flushKey(key)
	}
	return nil
}

func (w *Writer) flushAll() error {
	for key := range w.batches {
		if err := w.flushKey(key); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) flushKey(key batchKey) error {
	records := w.batches[key]
	delete(w.batches, key)
	if len(records) == 0 {
		return nil
	}

	byDay := make(map[string][]market.Record)
	order := make([]string, 0, 1)
	for _, rec := range records {
		day := rec.LocalTime.UTC().Format("20060102")
		if _, ok := byDay[day]; !ok {
			order = append(order, day)
		}
		byDay[day] = append(byDay[day], rec)
	}

	for i, day := range order {
		recs := byDay[day]
		var err error
		if key.kind == market.RecordKindSnapshot {
			err = w.writeSnapshotOverwrite(key.symbol, day, recs)
		} else {
			err = w.appendRows(key.kind, key.symbol, day, recs)
		}
		if err != nil {
			// Put the batch back so a transient failure doesn't lose data.
			for _, rest := range order[i:] {
				w.batches[key] = append(w.batches[key], byDay[rest]...)
			}
			return err
		}
	}
	return nil
}

func (w *Writer) filePath(kind market.RecordKind, symbol, day string) string {
	dir := filepath.Join(w.outputDir, symbol)
	var name string
	switch kind {
	case market.RecordKindAggTrade:
		name = fmt.Sprintf("aggtrade_%s_%s.csv", symbol, day)
	case market.RecordKindDepth:
		name = fmt.Sprintf("depth_%s_%s.csv", symbol, day)
	case market.RecordKindKline:
		name = fmt.Sprintf("kline_1m_%s_%s.csv", symbol, day)
	case market.RecordKindSummary:
		name = fmt.Sprintf("orderbook_%s_%s.csv", symbol, day)
	case market.RecordKindSnapshot:
		name = fmt.Sprintf("%s_depth_snapshot_%s.csv", symbol, day)
	}
	return filepath.Join(dir, name)
}

func (w *Writer) appendRows(kind market.RecordKind, symbol, day string, recs []market.Record) error {
	path := w.filePath(kind, symbol, day)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("writer: create directory for %s: %w", path, err)
	}

	needsHeader := false
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return wrapIfDiskFull(fmt.Errorf("writer: open %s: %w", path, err), path)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if needsHeader {
		if err := cw.Write(header(kind)); err != nil {
			return wrapIfDiskFull(fmt.Errorf("writer: write header for %s: %w", path, err), path)
		}
	}
	for _, rec := range recs {
		fields, err := row(rec)
		if err != nil {
			return fmt.Errorf("writer: render row for %s: %w", path, err)
		}
		if err := cw.Write(fields); err != nil {
			return wrapIfDiskFull(fmt.Errorf("writer: write row for %s: %w", path, err), path)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return wrapIfDiskFull(fmt.Errorf("writer: flush %s: %w", path, err), path)
	}
	return nil
}

// writeSnapshotOverwrite truncates the day's snapshot file and rewrites it
// from the most recent Record in recs: each snapshot write is a full
// overwrite for that day, never an append.
func (w *Writer) writeSnapshotOverwrite(symbol, day string, recs []market.Record) error {
	path := w.filePath(market.RecordKindSnapshot, symbol, day)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("writer: create directory for %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return wrapIfDiskFull(fmt.Errorf("writer: open %s: %w", path, err), path)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(header(market.RecordKindSnapshot)); err != nil {
		return wrapIfDiskFull(fmt.Errorf("writer: write header for %s: %w", path, err), path)
	}
	latest := recs[len(recs)-1]
	for _, fields := range snapshotRows(latest) {
		if err := cw.Write(fields); err != nil {
			return wrapIfDiskFull(fmt.Errorf("writer: write row for %s: %w", path, err), path)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return wrapIfDiskFull(fmt.Errorf("writer: flush %s: %w", path, err), path)
	}
	return nil
}
