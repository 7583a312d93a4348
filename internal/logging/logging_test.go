// ABOUTME: Tests for logger construction
// ABOUTME: Checks level filtering, JSON output and file-only mode
package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := New(Config{Level: "warn", Format: "json", Stdout: &buf})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("Capture armed")
	cleanup()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["msg"] != "Capture armed" || entry["level"] != "warn" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewFileOnly(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "recorder.log")
	logger, cleanup, err := New(Config{File: path, FileOnly: true, Stdout: &buf})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("Server starting")
	cleanup()

	if buf.Len() != 0 {
		t.Errorf("stdout received %q", buf.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Server starting") {
		t.Errorf("log file = %q", data)
	}
}

func TestNewInvalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"level", Config{Level: "loud"}},
		{"format", Config{Format: "xml"}},
		{"file", Config{File: filepath.Join(t.TempDir(), "missing", "x.log")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := New(tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}
