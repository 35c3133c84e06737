package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var Log *slog.Logger

var (
	sinkMu   sync.Mutex
	sinkFile *os.File
)

// parses "debug" | "info" | "warn" | "error"; anything else is info
func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init installs the global text logger. sink is "" / "stdout" or "file:<path>".
func Init(level string, sink string) {
	sinkMu.Lock()
	defer sinkMu.Unlock()

	var w io.Writer = os.Stdout
	if strings.HasPrefix(sink, "file:") {
		path := strings.TrimPrefix(sink, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
		} else {
			sinkFile = f
			w = f
		}
	}
	Log = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
}

// InitWriter points the global logger at w; used by tests and the cli.
func InitWriter(w io.Writer, level string) {
	Log = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)}))
}

// Sync closes the file sink if one was opened.
func Sync() {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	if sinkFile != nil {
		_ = sinkFile.Sync()
		_ = sinkFile.Close()
		sinkFile = nil
	}
}

func Debug(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Debug(msg, args...)
}

func Info(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Info(msg, args...)
}

func Warn(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Warn(msg, args...)
}

func Error(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Error(msg, args...)
}

// LogConfigSummary prints a readable "== title ===" block followed by one
// hyphenated line per item. Printed to stdout regardless of level so startup
// dumps stay visible.
func LogConfigSummary(title string, items []string) {
	if len(items) == 0 {
		return
	}
	header := "== " + strings.ReplaceAll(title, "_", " ") + " "
	const width = 60
	if len(header) < width {
		header += strings.Repeat("=", width-len(header))
	}
	fmt.Fprintln(os.Stdout, header)
	for _, it := range items {
		fmt.Fprintln(os.Stdout, "- "+it)
	}
	fmt.Fprintln(os.Stdout)
}
