package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"fhirsync/internal/fhir"
)

const logFileName = "fhirsync.log"

// tabHandler is a slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<opID>\t<message>\t<key=value ...>
type tabHandler struct {
	w     io.Writer
	opID  string
	attrs []slog.Attr
}

func (h *tabHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *tabHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")
	if _, err := fmt.Fprintf(h.w, "%s\t%s\t%s\t%s", ts, r.Level, h.opID, r.Message); err != nil {
		return err
	}

	for _, a := range h.attrs {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(h.w, "\t%s=%v", a.Key, a.Value)
		return true
	})

	_, err := fmt.Fprintln(h.w)
	return err
}

func (h *tabHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &tabHandler{
		w:     h.w,
		opID:  h.opID,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *tabHandler) WithGroup(string) slog.Handler { return h }

// newLogger opens logDir/fhirsync.log and returns a logger writing to it and
// to stderr. format selects the tab-separated text layout ("text" or "") or
// zerolog JSON lines ("json"). The caller closes the returned file.
func newLogger(logDir, opID, format string, stderr io.Writer) (fhir.Logger, *os.File, error) {
	if format != "" && format != "text" && format != "json" {
		return nil, nil, fmt.Errorf("unknown log format: %q", format)
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(logDir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	w := io.MultiWriter(f, stderr)
	if format == "json" {
		return newZerologAdapter(w, opID), f, nil
	}
	return &slogAdapter{l: slog.New(&tabHandler{w: w, opID: opID})}, f, nil
}

// slogAdapter wraps *slog.Logger to satisfy fhir.Logger.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }

// zerologAdapter emits one JSON object per record. The slog-style key/value
// args become top-level fields.
type zerologAdapter struct {
	l zerolog.Logger
}

func newZerologAdapter(w io.Writer, opID string) *zerologAdapter {
	return &zerologAdapter{
		l: zerolog.New(zerolog.SyncWriter(w)).With().Timestamp().Str("op", opID).Logger(),
	}
}

func (a *zerologAdapter) Debug(msg string, args ...any) { a.l.Debug().Fields(args).Msg(msg) }
func (a *zerologAdapter) Info(msg string, args ...any)  { a.l.Info().Fields(args).Msg(msg) }
func (a *zerologAdapter) Warn(msg string, args ...any)  { a.l.Warn().Fields(args).Msg(msg) }
func (a *zerologAdapter) Error(msg string, args ...any) { a.l.Error().Fields(args).Msg(msg) }

var (
	_ fhir.Logger = (*slogAdapter)(nil)
	_ fhir.Logger = (*zerologAdapter)(nil)
)
