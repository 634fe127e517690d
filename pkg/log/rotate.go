package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
)

// RotatingFile is an io.Writer suitable for log.SetOutput that rotates
// the underlying file once it exceeds maxBytes, gzip-compressing the
// rotated copy so a long-running `browserbridge serve` daemon doesn't
// grow an unbounded plaintext log.
//
// Rotation keeps at most keepRotations compressed files; older ones are
// removed. Compression runs synchronously on the writer that triggers
// rotation — acceptable here since rotation is rare relative to the
// line-by-line write volume of the bridge's own logging.
type RotatingFile struct {
	mu            sync.Mutex
	path          string
	maxBytes      int64
	keepRotations int

	file    *os.File
	written int64
}

// NewRotatingFile opens (creating if needed) path for append and returns
// a writer that rotates it past maxBytes, keeping keepRotations gzip
// compressed generations (path.1.gz, path.2.gz, ...).
func NewRotatingFile(path string, maxBytes int64, keepRotations int) (*RotatingFile, error) {
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	if keepRotations <= 0 {
		keepRotations = 3
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	return &RotatingFile{
		path:          path,
		maxBytes:      maxBytes,
		keepRotations: keepRotations,
		file:          f,
		written:       info.Size(),
	}, nil
}

func (r *RotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.written+int64(len(p)) > r.maxBytes {
		if err := r.rotateLocked(); err != nil {
			// Best-effort: keep writing to the existing file rather than
			// lose log lines over a rotation failure. rotateLocked has
			// already closed it, so reopen it for append first.
			if f, ferr := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); ferr == nil {
				r.file = f
			}
			n, werr := r.file.Write(p)
			r.written += int64(n)
			return n, werr
		}
	}

	n, err := r.file.Write(p)
	r.written += int64(n)
	return n, err
}

func (r *RotatingFile) rotateLocked() error {
	if err := r.file.Close(); err != nil {
		return err
	}

	for i := r.keepRotations - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d.gz", r.path, i)
		to := fmt.Sprintf("%s.%d.gz", r.path, i+1)
		if _, err := os.Stat(from); err == nil {
			_ = os.Rename(from, to)
		}
	}
	if err := gzipToFile(r.path, r.path+".1.gz"); err != nil {
		return err
	}
	if err := os.Remove(r.path); err != nil {
		return err
	}

	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	r.file = f
	r.written = 0
	return nil
}

func gzipToFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer dst.Close()

	gw, err := gzip.NewWriterLevel(dst, gzip.BestSpeed)
	if err != nil {
		return err
	}
	gw.ModTime = time.Now()
	if _, err := copyAll(gw, src); err != nil {
		_ = gw.Close()
		return err
	}
	return gw.Close()
}

func copyAll(dst *gzip.Writer, src *os.File) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return total, nil
			}
			return total, err
		}
	}
}

// Close flushes and closes the underlying file.
func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}
