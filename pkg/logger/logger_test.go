package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatalf("expected unknown level to fail")
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dealroom.log")
	log, err := New(Options{Environment: "production", Level: "info", File: path})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	log.Info("document registered")
	log.Debug("hidden")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"msg":"document registered"`) || !strings.Contains(out, `"timestamp"`) {
		t.Fatalf("unexpected log file contents: %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug entry should be filtered at info level")
	}
}
