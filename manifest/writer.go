package manifest

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
)

// Writer appends records to a manifest in two phases. Lines go to a temp file
// next to the destination; Commit renames it into place and Abort removes it.
// Abort after Commit does nothing, so callers can always defer Abort.
type Writer struct {
	path  string
	tmp   *os.File
	buf   *bufio.Writer
	count int
	done  bool
}

// Create starts a manifest at path. The directory must exist.
func Create(path string) (*Writer, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest %s: %w", path, err)
	}
	return &Writer{path: path, tmp: tmp, buf: bufio.NewWriter(tmp)}, nil
}

// Append writes rec as the next line.
func (w *Writer) Append(rec Record) error {
	if w.done {
		return fmt.Errorf("manifest %s already closed", w.path)
	}
	raw, err := rec.Raw()
	if err != nil {
		return fmt.Errorf("failed to encode record %d: %w", rec.Index, err)
	}
	if _, err := w.buf.Write(raw); err != nil {
		return fmt.Errorf("failed to write %s: %w", w.path, err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write %s: %w", w.path, err)
	}
	w.count++
	return nil
}

// Count is the number of records appended so far.
func (w *Writer) Count() int { return w.count }

// Path is the final destination of the manifest.
func (w *Writer) Path() string { return w.path }

// Commit flushes the records and moves the manifest to its destination. On
// failure the temp file is removed.
func (w *Writer) Commit() error {
	if w.done {
		return fmt.Errorf("manifest %s already closed", w.path)
	}
	w.done = true
	name := w.tmp.Name()

	err := w.buf.Flush()
	if err == nil {
		err = w.tmp.Sync()
	}
	if cerr := w.tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(name, w.path)
	}
	if err != nil {
		os.Remove(name)
		return fmt.Errorf("failed to commit manifest %s: %w", w.path, err)
	}
	return nil
}

// Abort discards everything written so far.
func (w *Writer) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.tmp.Close()
	os.Remove(w.tmp.Name())
}

// Write stores records at path in the given order. Either the whole manifest
// is written or no file is created.
func Write(records []Record, path string) error {
	w, err := Create(path)
	if err != nil {
		return err
	}
	defer w.Abort()

	for _, rec := range records {
		if err := w.Append(rec); err != nil {
			return err
		}
	}
	return w.Commit()
}
