package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLevelFilterAndTextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := &logger{min: warnLevel, console: &buf, format: logFormatText}

	l.logf(infoLevel, "dropped %d", 1)
	l.logf(errorLevel, "kept %d", 2)

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, ":ERROR:") || !strings.Contains(out, "kept 2") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := &logger{min: debugLevel, console: &buf, format: logFormatJSON}
	l.logf(warnLevel, "disk %s", "full")

	var payload map[string]string
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &payload); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	if payload["level"] != "WARN" || payload["message"] != "disk full" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestRotateMovesFullFileAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	l := &logger{min: debugLevel, console: &bytes.Buffer{}, format: logFormatText, filePath: path, maxSizeBytes: 64}

	for i := 0; i < 5; i++ {
		l.logf(infoLevel, "line %d with some padding to overflow", i)
	}
	if l.file != nil {
		_ = l.file.Close()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected rotated files, got %d entries", len(entries))
	}
}

func TestNextRotatedPathSkipsExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	first, err := nextRotatedPath(path, now)
	if err != nil {
		t.Fatalf("nextRotatedPath: %v", err)
	}
	if err := os.WriteFile(first, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	second, err := nextRotatedPath(path, now)
	if err != nil {
		t.Fatalf("nextRotatedPath: %v", err)
	}
	if first == second || !strings.HasSuffix(second, "_2.log") {
		t.Fatalf("expected a fresh index, got %q then %q", first, second)
	}
}
