package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDescribeReportsSizeAndModTime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shot.png")
	if err := os.WriteFile(path, []byte("fake png bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	desc, err := Describe(path)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if desc.Path != path {
		t.Errorf("got path %s, want %s", desc.Path, path)
	}
	if desc.SizeBytes != int64(len("fake png bytes")) {
		t.Errorf("got size %d, want %d", desc.SizeBytes, len("fake png bytes"))
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if !desc.CreatedAt.Equal(info.ModTime()) {
		t.Errorf("got createdAt %v, want mod time %v", desc.CreatedAt, info.ModTime())
	}
}

func TestDescribeMissingFile(t *testing.T) {
	if _, err := Describe(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestCleanupRemovesOnlyOldFiles(t *testing.T) {
	dir := t.TempDir()

	oldPath := filepath.Join(dir, "old.png")
	newPath := filepath.Join(dir, "new.png")
	writeFileWithAge(t, oldPath, "old bytes", 2*time.Hour)
	writeFileWithAge(t, newPath, "new", time.Minute)

	result, err := Cleanup(dir, time.Hour)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if result.Scanned != 2 {
		t.Errorf("got scanned %d, want 2", result.Scanned)
	}
	if result.Removed != 1 {
		t.Errorf("got removed %d, want 1", result.Removed)
	}
	if result.BytesFreed != int64(len("old bytes")) {
		t.Errorf("got bytesFreed %d, want %d", result.BytesFreed, len("old bytes"))
	}

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Error("old file should have been removed")
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Error("new file should still exist")
	}
}

func TestCleanupMissingDirectoryIsNotAnError(t *testing.T) {
	result, err := Cleanup(filepath.Join(t.TempDir(), "does-not-exist"), time.Hour)
	if err != nil {
		t.Fatalf("expected no error for a missing directory, got %v", err)
	}
	if result.Scanned != 0 || result.Removed != 0 {
		t.Fatalf("expected a zero-value result, got %+v", result)
	}
}

func TestCleanupSkipsSubdirectories(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0o755); err != nil {
		t.Fatal(err)
	}

	result, err := Cleanup(dir, 0)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if result.Scanned != 0 {
		t.Fatalf("expected subdirectories to be skipped, got scanned=%d", result.Scanned)
	}
}

func writeFileWithAge(t *testing.T, path, content string, age time.Duration) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	mtime := time.Now().Add(-age)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}
