// Package fs defines the narrow filesystem interface the object store is
// built on, plus the operating-system implementation. The interface exists so
// tests can substitute an in-memory filesystem (see MemFS).
package fs

import (
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/cartonstore/carton/internal/uid"
)

// tempPrefix marks in-flight atomic writes. Files with this prefix are never
// visible through the object store.
const tempPrefix = ".tmp-"

// ErrNotEmpty reports a directory removal that failed because the directory
// still has entries. Both implementations return it wrapped in a PathError so
// callers can tell "not empty" apart from real I/O failures.
var ErrNotEmpty = errors.New("directory not empty")

// ByteRange is an inclusive byte window [Start, End] within a file.
// End < 0 means "to end of file".
type ByteRange struct {
	Start int64
	End   int64
}

// FileSystem is the set of directory/file primitives the object store needs.
// Implementations must be safe for concurrent use; WriteAtomic must publish
// the full file content with a single rename so readers never observe a
// partially-written file.
type FileSystem interface {
	// Mkdir creates the directory at path, along with any missing parents.
	Mkdir(path string) error

	// Rmdir removes the directory at path. It fails if the directory is
	// not empty.
	Rmdir(path string) error

	// ReadDir lists the immediate entries of the directory at path,
	// sorted by name.
	ReadDir(path string) ([]iofs.DirEntry, error)

	// Stat returns file information for path.
	Stat(path string) (iofs.FileInfo, error)

	// OpenRead opens the file at path for reading. When rng is non-nil the
	// returned stream is positioned at rng.Start and, if rng.End >= 0,
	// yields only the bytes up to and including rng.End. The caller is
	// responsible for closing the stream.
	OpenRead(path string, rng *ByteRange) (io.ReadCloser, error)

	// WriteAtomic streams r into a temporary file and renames it into place
	// at path, creating parent directories as needed. Returns the number of
	// bytes written. On error the temporary file is discarded and the
	// previous content of path, if any, is left intact.
	WriteAtomic(path string, r io.Reader) (int64, error)

	// Remove deletes the file at path.
	Remove(path string) error
}

// IsTempName reports whether a directory entry name belongs to an in-flight
// atomic write and should be skipped by listings.
func IsTempName(name string) bool {
	return strings.HasPrefix(name, tempPrefix)
}

// OSFileSystem implements FileSystem on the local operating-system filesystem.
type OSFileSystem struct{}

// NewOS returns a FileSystem backed by the operating system.
func NewOS() *OSFileSystem {
	return &OSFileSystem{}
}

// Mkdir creates the directory at path with any missing parents.
func (*OSFileSystem) Mkdir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// Rmdir removes the directory at path. os.Remove only removes empty
// directories; the not-empty failure is normalized to ErrNotEmpty.
func (*OSFileSystem) Rmdir(path string) error {
	if err := os.Remove(path); err != nil {
		// Some platforms report EEXIST instead of ENOTEMPTY.
		if errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST) {
			return &iofs.PathError{Op: "rmdir", Path: path, Err: ErrNotEmpty}
		}
		return err
	}
	return nil
}

// ReadDir lists the immediate entries of the directory at path.
func (*OSFileSystem) ReadDir(path string) ([]iofs.DirEntry, error) {
	return os.ReadDir(path)
}

// Stat returns file information for path.
func (*OSFileSystem) Stat(path string) (iofs.FileInfo, error) {
	return os.Stat(path)
}

// OpenRead opens the file at path, optionally restricted to the given range.
func (*OSFileSystem) OpenRead(path string, rng *ByteRange) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		return f, nil
	}
	if _, err := f.Seek(rng.Start, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("seeking to range start %d: %w", rng.Start, err)
	}
	if rng.End < 0 {
		return f, nil
	}
	return &limitedFile{
		Reader: io.LimitReader(f, rng.End-rng.Start+1),
		file:   f,
	}, nil
}

// WriteAtomic writes r to a temp file next to the target and renames it into
// place. The temp file lives in the target's directory so the rename never
// crosses a filesystem boundary.
func (*OSFileSystem) WriteAtomic(path string, r io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("creating parent directories for %q: %w", path, err)
	}

	tmpPath := filepath.Join(dir, tempPrefix+uid.New())
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}

	n, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("writing temp file: %w", err)
	}

	// Fsync before rename to guarantee durability.
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("syncing temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("renaming temp file into place: %w", err)
	}

	return n, nil
}

// Remove deletes the file at path.
func (*OSFileSystem) Remove(path string) error {
	return os.Remove(path)
}

// limitedFile is a range-restricted read view over an open file.
type limitedFile struct {
	io.Reader
	file *os.File
}

func (l *limitedFile) Close() error {
	return l.file.Close()
}
