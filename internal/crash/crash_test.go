package crash

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteReportCreatesFileInTemp(t *testing.T) {
	path, err := writeReport("", "boom", []byte("stacktrace"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("report file missing: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "SceneVault Crash Report") {
		t.Fatalf("report header missing")
	}
	if !strings.Contains(s, "Panic: boom") {
		t.Fatalf("panic content missing: %s", s)
	}
}

func TestWriteReportCreatesFileInDataDir(t *testing.T) {
	root := t.TempDir()

	path, err := writeReport(root, "kaboom", []byte("stack"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	if !strings.Contains(path, filepath.Join(root, "crash")) {
		t.Fatalf("expected crash report under data dir, got %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("report file missing: %v", err)
	}
}
