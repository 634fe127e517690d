package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingFileRotatesAndCompresses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bridge.log")

	rf, err := NewRotatingFile(path, 64, 2)
	if err != nil {
		t.Fatalf("new rotating file: %v", err)
	}
	defer rf.Close()

	line := strings.Repeat("x", 32) + "\n"
	for i := 0; i < 5; i++ {
		if _, err := rf.Write([]byte(line)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	if _, err := os.Stat(path + ".1.gz"); err != nil {
		t.Fatalf("expected rotated gzip file: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat current log: %v", err)
	}
	if info.Size() > 64 {
		t.Fatalf("current log file not rotated, size=%d", info.Size())
	}
}
