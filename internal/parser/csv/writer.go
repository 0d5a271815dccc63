package csv

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Writer writes records of a fixed width behind a header. It counts data
// records so callers can report what was written.
type Writer struct {
	w     *csv.Writer
	bw    *bufio.Writer
	width int
	rows  int64
}

// NewWriter writes header to w and returns a Writer for records of the same
// width.
func NewWriter(w io.Writer, header []string) (*Writer, error) {
	bw := bufio.NewWriterSize(w, 64<<10)
	cw := csv.NewWriter(bw)
	if err := cw.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return &Writer{w: cw, bw: bw, width: len(header)}, nil
}

// Write appends one record.
func (w *Writer) Write(rec []string) error {
	if len(rec) != w.width {
		return fmt.Errorf("record has %d fields, header has %d", len(rec), w.width)
	}
	if err := w.w.Write(rec); err != nil {
		return err
	}
	w.rows++
	return nil
}

// Rows returns the number of data records written.
func (w *Writer) Rows() int64 { return w.rows }

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error {
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		return err
	}
	return w.bw.Flush()
}

// FileWriter streams records into a temporary file that replaces the
// destination on Commit. Readers never observe a half-written file.
type FileWriter struct {
	*Writer
	f    *os.File
	path string
	done bool
}

// Create opens a FileWriter for path and writes header. Missing parent
// directories are created.
func Create(path string, header []string) (*FileWriter, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	w, err := NewWriter(f, header)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, err
	}
	return &FileWriter{Writer: w, f: f, path: path}, nil
}

// Commit flushes, closes and renames the temporary file over the
// destination.
func (fw *FileWriter) Commit() error {
	if fw.done {
		return fmt.Errorf("%s: already closed", fw.path)
	}
	fw.done = true
	tmp := fw.f.Name()
	if err := fw.Flush(); err != nil {
		_ = fw.f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("flush %s: %w", fw.path, err)
	}
	if err := fw.f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close %s: %w", fw.path, err)
	}
	if err := os.Rename(tmp, fw.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", fw.path, err)
	}
	return nil
}

// Abort discards the temporary file. It is a no-op after Commit.
func (fw *FileWriter) Abort() {
	if fw.done {
		return
	}
	fw.done = true
	_ = fw.f.Close()
	_ = os.Remove(fw.f.Name())
}

// WriteFile writes header and rows to path through a FileWriter.
func WriteFile(path string, header []string, rows [][]string) error {
	fw, err := Create(path, header)
	if err != nil {
		return err
	}
	for i, rec := range rows {
		if err := fw.Write(rec); err != nil {
			fw.Abort()
			return fmt.Errorf("%s row %d: %w", path, i+1, err)
		}
	}
	return fw.Commit()
}
