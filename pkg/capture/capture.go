// Package capture records observed messages to a CSV file for debugging.
// The capture stops for good once Close is called.
package capture

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"chatkat/pkg/platform"
	"chatkat/pkg/state/logger"
)

var header = []string{
	"community_id", "room_id", "message_id", "ts", "time",
	"author_id", "author_name", "bot", "has_content", "content",
}

type Writer struct {
	mu      sync.Mutex
	f       *os.File
	cw      *csv.Writer
	path    string
	maxSize int64
	written int64
	rows    int
	closed  bool
}

// Open creates <dir>/<unix>_capture.csv. maxSize caps the file; zero is
// unbounded.
func Open(dir string, maxSize int64, now time.Time) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create capture dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%d_capture.csv", now.Unix()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	w := &Writer{f: f, cw: csv.NewWriter(f), path: path, maxSize: maxSize}
	if err := w.write(header); err != nil {
		_ = f.Close()
		return nil, err
	}
	logger.Info("capture_opened", "path", path, "max_size", humanize.IBytes(uint64(maxSize)))
	return w, nil
}

func (w *Writer) Path() string { return w.path }

// Add appends a message with content. Messages without content are skipped.
func (w *Writer) Add(m platform.MessageEvent) {
	if w == nil || !m.HasContent {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.maxSize > 0 && w.written >= w.maxSize {
		return
	}
	row := []string{
		m.CommunityID,
		m.RoomID,
		m.MessageID,
		strconv.FormatInt(m.TS, 10),
		time.UnixMilli(m.TS).UTC().Format(time.RFC3339Nano),
		m.AuthorID,
		m.AuthorName,
		strconv.FormatBool(m.Bot),
		strconv.FormatBool(m.HasContent),
		m.Content,
	}
	if err := w.write(row); err != nil {
		logger.Error("capture_write_failed", "path", w.path, "error", err)
		return
	}
	w.rows++
	if w.maxSize > 0 && w.written >= w.maxSize {
		logger.Warn("capture_size_limit_reached", "path", w.path, "size", humanize.IBytes(uint64(w.written)))
	}
}

func (w *Writer) write(row []string) error {
	if err := w.cw.Write(row); err != nil {
		return err
	}
	w.cw.Flush()
	if err := w.cw.Error(); err != nil {
		return err
	}
	st, err := w.f.Stat()
	if err == nil {
		w.written = st.Size()
	}
	return nil
}

// Close flushes and closes the file. Later calls are no-ops.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.cw.Flush()
	err := w.f.Close()
	logger.Info("capture_closed", "path", w.path, "rows", w.rows, "size", humanize.IBytes(uint64(w.written)))
	return err
}
