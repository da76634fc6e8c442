package utils

import (
	"bytes"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerJSONRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "info", "json")

	r := httptest.NewRequest("POST", "/_apis/public/gallery/extensionquery", nil)
	r.Header.Set("User-Agent", "VSCode 1.95.0")
	logger.LogRequest(r)
	logger.LogResponse(r, 200, time.Now())

	out := buf.String()
	if !strings.Contains(out, `"path":"/_apis/public/gallery/extensionquery"`) {
		t.Fatalf("missing path attr: %s", out)
	}
	if !strings.Contains(out, `"status":200`) {
		t.Fatalf("missing status attr: %s", out)
	}
}

func TestNilLoggerFallsBack(t *testing.T) {
	var l *Logger
	if l.Slog() == nil {
		t.Fatal("expected default logger")
	}
	l.LogInfo("does not panic %d", 1)
}

func TestLogPerformance(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "debug", "text")

	logger.LogPerformance("gallery query", 5*time.Millisecond)
	if out := buf.String(); !strings.Contains(out, "level=DEBUG") || !strings.Contains(out, "operation timing") {
		t.Fatalf("fast operation not logged at debug: %s", out)
	}

	buf.Reset()
	logger.LogPerformance("gallery query", 2*time.Second)
	if out := buf.String(); !strings.Contains(out, "level=WARN") || !strings.Contains(out, "slow operation") {
		t.Fatalf("slow operation not logged as warning: %s", out)
	}
}
