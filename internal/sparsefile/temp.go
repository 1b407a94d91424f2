package sparsefile

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/sqfs/squashdelta/internal/squasherr"
)

// TempWriter is a Writer backed by a temporary file that unlinks
// itself on Close, mirroring TemporarySparseFileWriter. The original
// guards the unlink with a parent-pid check so a forked child that
// inherits the fd doesn't race the parent's cleanup; Go's os/exec
// doesn't fork this process's address space into a long-lived child
// that outlives Close, so that guard has no equivalent here, but the
// unlink-on-close contract is preserved.
type TempWriter struct {
	*Writer
	path string
}

// CreateTemp creates a uniquely named file under dir (TMPDIR by
// convention) and, when expectedSize is positive, pre-allocates it.
func CreateTemp(dir, pattern string, expectedSize int64) (*TempWriter, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, squasherr.IO("unable to create a temporary file", err)
	}
	if expectedSize > 0 {
		_ = unix.Fallocate(int(f.Fd()), 0, 0, expectedSize)
	}
	return &TempWriter{Writer: &Writer{f: f}, path: f.Name()}, nil
}

// Name returns the temporary file's path.
func (w *TempWriter) Name() string { return w.path }

// Close closes and unlinks the temporary file.
func (w *TempWriter) Close() error {
	closeErr := w.Writer.Close()
	if err := os.Remove(w.path); err != nil && closeErr == nil {
		return squasherr.IO("unable to unlink the temporary file", err)
	}
	return closeErr
}
