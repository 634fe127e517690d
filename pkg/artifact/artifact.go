// Package artifact manages the screenshot files the extension writes
// to a local directory when the facade's screenshot operation is
// called in "artifact" return mode, and implements the artifact_cleanup
// operation that age-expires and removes them. Encoding and writing the
// image bytes themselves is the extension's job; this package only
// ever deals with directory entries and their metadata.
package artifact

import (
	"os"
	"path/filepath"
	"time"
)

// CleanupResult reports what a cleanup pass did.
type CleanupResult struct {
	Scanned    int   `json:"scanned"`
	Removed    int   `json:"removed"`
	BytesFreed int64 `json:"bytesFreed"`
}

// Descriptor is the metadata the screenshot operation attaches to a
// written artifact file when returnMode is "artifact".
type Descriptor struct {
	Path      string    `json:"path"`
	SizeBytes int64     `json:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt"`
}

// Describe stats path and returns its artifact descriptor.
func Describe(path string) (Descriptor, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{Path: path, SizeBytes: info.Size(), CreatedAt: info.ModTime()}, nil
}

// Cleanup removes every regular file directly under dir whose
// modification time is older than maxAge: walk once and never abort the
// whole pass because one entry could not be removed. An entry that
// cannot be stat'ed or removed is skipped; such failures are not
// reported in the result or the returned error.
func Cleanup(dir string, maxAge time.Duration) (CleanupResult, error) {
	var result CleanupResult

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return result, err
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		result.Scanned++

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			continue
		}
		result.Removed++
		result.BytesFreed += info.Size()
	}

	return result, nil
}
