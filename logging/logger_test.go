package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	dir := t.TempDir()
	l, err := NewLogger(dir, DEBUG, nil)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLoggerWritesJSONLine(t *testing.T) {
	l := newTestLogger(t)
	l.Info("zone started", map[string]interface{}{"zone_id": 7})

	data, err := os.ReadFile(l.logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d", len(lines))
	}
	var entry LogEntry
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not valid JSON: %v", err)
	}
	if entry.Level != "INFO" || entry.Message != "zone started" {
		t.Errorf("entry = %+v, want level INFO message 'zone started'", entry)
	}
	if entry.Data["zone_id"].(float64) != 7 {
		t.Errorf("entry.Data[zone_id] = %v, want 7", entry.Data["zone_id"])
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	l := newTestLogger(t)
	l.SetLevel(WARN)
	l.Info("should be dropped")
	l.Warn("should be kept")

	data, err := os.ReadFile(l.logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line after filtering, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], "should be kept") {
		t.Errorf("unexpected surviving line: %s", lines[0])
	}
}

func TestSetLevelFromStringRejectsUnknown(t *testing.T) {
	l := newTestLogger(t)
	if err := l.SetLevelFromString("bogus"); err == nil {
		t.Fatal("expected error for unknown level name")
	}
	if err := l.SetLevelFromString("warn"); err != nil {
		t.Fatalf("SetLevelFromString(warn): %v", err)
	}
}

func TestTraceGatedByModule(t *testing.T) {
	l := newTestLogger(t)
	l.SetLevel(TRACE)
	l.Trace("physics", "tick stepped")
	if _, err := os.ReadFile(l.logPath); err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	data, _ := os.ReadFile(l.logPath)
	if strings.TrimSpace(string(data)) != "" {
		t.Fatal("expected no output for a module that was never enabled")
	}

	l.EnableTrace([]string{"physics"})
	if !l.IsTraceEnabled("physics") {
		t.Fatal("expected physics module to be trace-enabled")
	}
	l.Trace("physics", "tick stepped again")
	data, _ = os.ReadFile(l.logPath)
	if !strings.Contains(string(data), "tick stepped again") {
		t.Fatal("expected trace line once module enabled")
	}

	l.DisableTrace([]string{"physics"})
	if l.IsTraceEnabled("physics") {
		t.Fatal("expected physics module to be disabled")
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	if ParseLevel("warn") != WARN {
		t.Error("expected case-insensitive match for 'warn'")
	}
	if ParseLevel("nonsense") != INFO {
		t.Error("expected unknown level name to default to INFO")
	}
}

func TestReadLogEntriesReturnsWrittenLines(t *testing.T) {
	l := newTestLogger(t)
	l.Info("first")
	l.Info("second")

	entries, err := l.ReadLogEntries(10)
	if err != nil {
		t.Fatalf("ReadLogEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestNewLoggerCreatesLogDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	l, err := NewLogger(dir, INFO, nil)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer l.Close()
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("expected log dir to be created: %v", err)
	}
}
