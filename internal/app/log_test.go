package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTabHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		opID    string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			opID:    "20240615T143045Z",
			level:   slog.LevelInfo,
			message: "created resources",
			want:    "2024-06-15T14:30:45Z\tINFO\t20240615T143045Z\tcreated resources\n",
		},
		{
			name:    "debug level",
			opID:    "op-456",
			level:   slog.LevelDebug,
			message: "skipping response without location",
			want:    "2024-06-15T14:30:45Z\tDEBUG\top-456\tskipping response without location\n",
		},
		{
			name:    "with record attrs",
			opID:    "op-789",
			level:   slog.LevelWarn,
			message: "incomplete metadata",
			attrs:   []slog.Attr{slog.String("resource", "Patient/p1"), slog.Int("changes", 2)},
			want:    "2024-06-15T14:30:45Z\tWARN\top-789\tincomplete metadata\tresource=Patient/p1\tchanges=2\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &tabHandler{w: &buf, opID: tt.opID}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			r.AddAttrs(tt.attrs...)

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestTabHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &tabHandler{w: &buf, opID: "op-1", attrs: []slog.Attr{slog.String("a", "1")}}

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "consolidator")}).(*tabHandler)
	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}

	r := slog.NewRecord(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), slog.LevelInfo, "consolidated", 0)
	r.AddAttrs(slog.String("strategy", "metadata"))
	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	for _, want := range []string{"a=1", "component=consolidator", "strategy=metadata"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q: %q", want, got)
		}
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		dir := t.TempDir()
		var stderr bytes.Buffer

		logger, f, err := newLogger(dir, "op-text", "text", &stderr)
		if err != nil {
			t.Fatalf("newLogger() error = %v", err)
		}
		logger.Info("pushed changes", "count", 3)
		f.Close()

		data, err := os.ReadFile(filepath.Join(dir, logFileName))
		if err != nil {
			t.Fatalf("reading log file: %v", err)
		}
		if !strings.Contains(string(data), "\tINFO\top-text\tpushed changes\tcount=3\n") {
			t.Errorf("log file = %q", data)
		}
		if stderr.String() != string(data) {
			t.Errorf("stderr = %q, want the log file contents", stderr.String())
		}
	})

	t.Run("json", func(t *testing.T) {
		dir := t.TempDir()
		var stderr bytes.Buffer

		logger, f, err := newLogger(dir, "op-json", "json", &stderr)
		if err != nil {
			t.Fatalf("newLogger() error = %v", err)
		}
		defer f.Close()
		logger.Warn("incomplete metadata", "resource", "Patient/p1")

		var record map[string]any
		if err := json.Unmarshal(bytes.TrimSpace(stderr.Bytes()), &record); err != nil {
			t.Fatalf("stderr is not a JSON record: %v: %q", err, stderr.String())
		}
		want := map[string]string{
			"level":    "warn",
			"op":       "op-json",
			"message":  "incomplete metadata",
			"resource": "Patient/p1",
		}
		for k, v := range want {
			if record[k] != v {
				t.Errorf("record[%q] = %v, want %q", k, record[k], v)
			}
		}
		if _, ok := record["time"]; !ok {
			t.Error("record has no time field")
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		if _, _, err := newLogger(t.TempDir(), "op", "xml", &bytes.Buffer{}); err == nil {
			t.Error("newLogger() with unknown format should return error")
		}
	})
}
