// Package logfile provides a size-rotated log file for the search CLI's slog
// output. The live file is {path}; rotated copies are {path}.1 (newest)
// through {path}.N (oldest).
package logfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Writer is a goroutine-safe io.WriteCloser that rotates its file once the
// next write would push it past maxBytes.
type Writer struct {
	path     string
	maxBytes int64
	maxFiles int

	mu   sync.Mutex
	file *os.File
	size int64
}

// Open creates the parent directory if needed and opens path for appending.
// The existing size counts toward maxBytes so a restarted process keeps the
// rotation schedule.
//
//	w, err := logfile.Open("/var/log/tweezer/tweezer-search.log", 64<<20, 8)
//	if err != nil { ... }
//	defer w.Close()
func Open(path string, maxBytes int64, maxFiles int) (*Writer, error) {
	if maxFiles < 1 {
		maxFiles = 1
	}
	w := &Writer{path: path, maxBytes: maxBytes, maxFiles: maxFiles}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logfile: mkdir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logfile: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("logfile: stat %s: %w", path, err)
	}

	w.file = f
	w.size = info.Size()
	return w, nil
}

// Write implements io.Writer. A single write larger than maxBytes goes to a
// fresh file whole; the next write rotates again.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, fmt.Errorf("logfile: write to closed %s", w.path)
	}
	if w.size > 0 && w.size+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the live file. Further writes fail; Close itself is idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *Writer) rotated(i int) string {
	return w.path + "." + strconv.Itoa(i)
}

// rotate shifts path.i to path.i+1, dropping the oldest, moves the live file
// to path.1 and opens a fresh one. Caller must hold w.mu.
func (w *Writer) rotate() error {
	_ = w.file.Close()
	w.file = nil

	_ = os.Remove(w.rotated(w.maxFiles))
	for i := w.maxFiles - 1; i >= 1; i-- {
		_ = os.Rename(w.rotated(i), w.rotated(i+1))
	}
	_ = os.Rename(w.path, w.rotated(1))

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("logfile: reopen %s: %w", w.path, err)
	}
	w.file = f
	w.size = 0
	return nil
}
