// Package csvlog appends accepted CSI records to a CSV file, one row per
// record: tag, timestamp, then the amplitudes.
package csvlog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/banshee-data/csi.monitor/internal/csi"
	"github.com/banshee-data/csi.monitor/internal/fsutil"
)

// ErrClosed is returned by Persist after Close.
var ErrClosed = errors.New("csvlog: writer closed")

// Writer is a pipeline.Persister backed by an append-only CSV file. Each
// record is flushed as it is written so a crash loses at most the row in
// flight.
type Writer struct {
	path string

	mu     sync.Mutex
	f      io.WriteCloser
	w      *csv.Writer
	rows   uint64
	closed bool
}

// NewWriter opens path for appending on fsys, creating parent directories
// as needed.
func NewWriter(fsys fsutil.FileSystem, path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." && !fsys.Exists(dir) {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	f, err := fsys.OpenAppend(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Writer{path: path, f: f, w: csv.NewWriter(f)}, nil
}

// Path returns the file being written.
func (w *Writer) Path() string { return w.path }

// Rows returns how many records this writer has appended.
func (w *Writer) Rows() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// Persist appends rec as one CSV row.
func (w *Writer) Persist(_ context.Context, rec csi.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if err := w.w.Write(rec.CSVFields()); err != nil {
		return fmt.Errorf("write %s: %w", w.path, err)
	}
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", w.path, err)
	}
	w.rows++
	return nil
}

// Close flushes and closes the file. Further Persist calls fail.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.w.Flush()
	return errors.Join(w.w.Error(), w.f.Close())
}

// ReadFile parses a CSV record log. Rows may have differing amplitude
// counts. Malformed rows are skipped and counted.
func ReadFile(fsys fsutil.FileSystem, path string) (records []csi.Record, skipped int, err error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses CSV record rows from r. Only I/O errors are returned.
func Read(r io.Reader) (records []csi.Record, skipped int, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	for {
		row, err := cr.Read()
		if err == io.EOF {
			return records, skipped, nil
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			skipped++
			continue
		}
		if err != nil {
			return records, skipped, err
		}
		rec, err := ParseRow(row)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
}

// ParseRow converts one tag,timestamp,amps... row into a record.
func ParseRow(row []string) (csi.Record, error) {
	var rec csi.Record
	if len(row) < 2 {
		return rec, fmt.Errorf("want at least tag and timestamp, got %d fields", len(row))
	}
	var err error
	if rec.Tag, err = strconv.ParseUint(row[0], 10, 64); err != nil {
		return rec, fmt.Errorf("tag: %w", err)
	}
	if rec.Timestamp, err = strconv.ParseUint(row[1], 10, 64); err != nil {
		return rec, fmt.Errorf("timestamp: %w", err)
	}
	rec.Amplitudes = make([]int, len(row)-2)
	for i, s := range row[2:] {
		if rec.Amplitudes[i], err = strconv.Atoi(s); err != nil {
			return rec, fmt.Errorf("amplitude %d: %w", i, err)
		}
	}
	return rec, nil
}
