package fs

import (
	"bytes"
	"io"
	iofs "io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemFS is an in-memory FileSystem implementation used for testing. It mirrors
// the semantics of OSFileSystem: directories must exist before ReadDir/Rmdir,
// Rmdir fails on non-empty directories, and WriteAtomic replaces the whole
// file content in one step under the lock.
type MemFS struct {
	mu    sync.RWMutex
	files map[string]*memFile
	dirs  map[string]time.Time
}

type memFile struct {
	data    []byte
	modTime time.Time
}

// NewMem returns an empty in-memory filesystem.
func NewMem() *MemFS {
	return &MemFS{
		files: make(map[string]*memFile),
		dirs:  make(map[string]time.Time),
	}
}

// clean normalizes a path to slash-separated, cleaned form.
func clean(p string) string {
	return path.Clean(filepath.ToSlash(p))
}

// Mkdir creates the directory at p and any missing parents.
func (m *MemFS) Mkdir(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mkdirLocked(clean(p))
	return nil
}

func (m *MemFS) mkdirLocked(p string) {
	for dir := p; dir != "." && dir != "/"; dir = path.Dir(dir) {
		if _, ok := m.dirs[dir]; !ok {
			m.dirs[dir] = time.Now()
		}
	}
}

// Rmdir removes the directory at p, failing if it is not empty.
func (m *MemFS) Rmdir(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p = clean(p)
	if _, ok := m.dirs[p]; !ok {
		return &iofs.PathError{Op: "rmdir", Path: p, Err: iofs.ErrNotExist}
	}
	prefix := p + "/"
	for f := range m.files {
		if strings.HasPrefix(f, prefix) {
			return &iofs.PathError{Op: "rmdir", Path: p, Err: ErrNotEmpty}
		}
	}
	for d := range m.dirs {
		if strings.HasPrefix(d, prefix) {
			return &iofs.PathError{Op: "rmdir", Path: p, Err: ErrNotEmpty}
		}
	}
	delete(m.dirs, p)
	return nil
}

// ReadDir lists the immediate entries of the directory at p, sorted by name.
func (m *MemFS) ReadDir(p string) ([]iofs.DirEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p = clean(p)
	if _, ok := m.dirs[p]; !ok {
		return nil, &iofs.PathError{Op: "readdir", Path: p, Err: iofs.ErrNotExist}
	}

	prefix := p + "/"
	seen := make(map[string]iofs.DirEntry)
	for f, file := range m.files {
		if !strings.HasPrefix(f, prefix) {
			continue
		}
		rest := f[len(prefix):]
		if i := strings.IndexByte(rest, '/'); i < 0 {
			seen[rest] = memDirEntry{memInfo{
				name: rest, size: int64(len(file.data)), mtime: file.modTime,
			}}
		}
	}
	for d, mtime := range m.dirs {
		if !strings.HasPrefix(d, prefix) {
			continue
		}
		rest := d[len(prefix):]
		if !strings.Contains(rest, "/") {
			seen[rest] = memDirEntry{memInfo{
				name: rest, dir: true, mtime: mtime,
			}}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]iofs.DirEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, seen[name])
	}
	return entries, nil
}

// Stat returns file information for p.
func (m *MemFS) Stat(p string) (iofs.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p = clean(p)
	if f, ok := m.files[p]; ok {
		return memInfo{name: path.Base(p), size: int64(len(f.data)), mtime: f.modTime}, nil
	}
	if mtime, ok := m.dirs[p]; ok {
		return memInfo{name: path.Base(p), dir: true, mtime: mtime}, nil
	}
	return nil, &iofs.PathError{Op: "stat", Path: p, Err: iofs.ErrNotExist}
}

// OpenRead opens the file at p, optionally restricted to the given range.
func (m *MemFS) OpenRead(p string, rng *ByteRange) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p = clean(p)
	f, ok := m.files[p]
	if !ok {
		return nil, &iofs.PathError{Op: "open", Path: p, Err: iofs.ErrNotExist}
	}

	data := f.data
	if rng != nil {
		start := rng.Start
		if start > int64(len(data)) {
			start = int64(len(data))
		}
		end := int64(len(data)) - 1
		if rng.End >= 0 && rng.End < end {
			end = rng.End
		}
		data = data[start : end+1]
	}

	// Copy so a concurrent WriteAtomic cannot mutate the reader's view.
	return io.NopCloser(bytes.NewReader(append([]byte(nil), data...))), nil
}

// WriteAtomic buffers r fully, then swaps it in as the file content under the
// lock. Parent directories are created as needed.
func (m *MemFS) WriteAtomic(p string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p = clean(p)
	m.mkdirLocked(path.Dir(p))
	m.files[p] = &memFile{data: data, modTime: time.Now()}
	return int64(len(data)), nil
}

// Remove deletes the file at p.
func (m *MemFS) Remove(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p = clean(p)
	if _, ok := m.files[p]; !ok {
		return &iofs.PathError{Op: "remove", Path: p, Err: iofs.ErrNotExist}
	}
	delete(m.files, p)
	return nil
}

// memInfo implements iofs.FileInfo for MemFS entries.
type memInfo struct {
	name  string
	size  int64
	dir   bool
	mtime time.Time
}

func (i memInfo) Name() string       { return i.name }
func (i memInfo) Size() int64        { return i.size }
func (i memInfo) ModTime() time.Time { return i.mtime }
func (i memInfo) IsDir() bool        { return i.dir }
func (i memInfo) Sys() any           { return nil }

func (i memInfo) Mode() iofs.FileMode {
	if i.dir {
		return iofs.ModeDir | 0o755
	}
	return 0o644
}

// memDirEntry implements iofs.DirEntry for MemFS entries.
type memDirEntry struct {
	info memInfo
}

func (e memDirEntry) Name() string                 { return e.info.name }
func (e memDirEntry) IsDir() bool                  { return e.info.dir }
func (e memDirEntry) Type() iofs.FileMode          { return e.info.Mode().Type() }
func (e memDirEntry) Info() (iofs.FileInfo, error) { return e.info, nil }
