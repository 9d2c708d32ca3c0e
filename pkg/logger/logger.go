package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var Log *slog.Logger

// Events is an optional dedicated sink for exchange completion records.
// When nil, completion records go to Log.
var Events *slog.Logger

// ParseLevel maps "debug", "info", "warn", "error" to a slog level. Unknown
// values select info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// Init initializes the global logger at the given level ("debug", "info",
// "warn", "error"). ASSETBRIDGE_LOG_LEVEL wins over level when set, and
// ASSETBRIDGE_LOG_SINK=file:/path writes logs to a file instead of stdout.
func Init(level string) {
	sink := os.Getenv("ASSETBRIDGE_LOG_SINK") // e.g. "file:/path/to/log"
	if env := strings.TrimSpace(os.Getenv("ASSETBRIDGE_LOG_LEVEL")); env != "" {
		level = env
	}
	lv := ParseLevel(level)

	var out io.Writer = os.Stdout
	if strings.HasPrefix(sink, "file:") {
		path := strings.TrimPrefix(sink, "file:")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err == nil {
			out = f
		} else {
			// fallback to stdout
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", path, err)
		}
	}
	Log = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lv}))
}

// AttachEventFileSink configures a JSON-lines logger writing completion
// records to <dir>/events.jsonl. Symlinked or non-directory paths are
// rejected. On error Events is left unchanged.
func AttachEventFileSink(dir string) error {
	if dir == "" {
		return fmt.Errorf("empty events dir")
	}
	if fi, err := os.Lstat(dir); err == nil {
		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("events path is a symlink: %s", dir)
		}
		if !fi.IsDir() {
			return fmt.Errorf("events path exists and is not a directory: %s", dir)
		}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create events directory: %w", err)
	}
	fname := filepath.Join(dir, "events.jsonl")
	// If existing file too large, rotate it.
	if fi, err := os.Stat(fname); err == nil {
		const maxSize = 10 * 1024 * 1024 // 10MB
		if fi.Size() > maxSize {
			bak := fname + "." + fi.ModTime().UTC().Format("20060102T150405Z")
			_ = os.Rename(fname, bak)
		}
	}
	f, err := os.OpenFile(fname, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open events file: %w", err)
	}
	Events = slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	Events.Info("event_sink_attached", "path", fname)
	return nil
}

// Debug logs with slog-style key/value pairs.
func Debug(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Debug(msg, args...)
}

// Info logs with slog-style key/value pairs.
func Info(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Info(msg, args...)
}

// Warn logs with slog-style key/value pairs.
func Warn(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Warn(msg, args...)
}

// Error logs with slog-style key/value pairs.
func Error(msg string, args ...any) {
	if Log == nil {
		return
	}
	Log.Error(msg, args...)
}
