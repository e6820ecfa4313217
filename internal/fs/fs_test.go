package fs

import (
	"bytes"
	"errors"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOSWriteAtomicRoundTrip(t *testing.T) {
	osfs := NewOS()
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "file.txt")

	n, err := osfs.WriteAtomic(path, strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("WriteAtomic() failed: %v", err)
	}
	if n != 11 {
		t.Errorf("WriteAtomic() wrote %d bytes, want 11", n)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading written file: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("file content = %q, want %q", data, "hello world")
	}
}

func TestOSWriteAtomicLeavesNoTempFiles(t *testing.T) {
	osfs := NewOS()
	dir := t.TempDir()

	if _, err := osfs.WriteAtomic(filepath.Join(dir, "a"), strings.NewReader("x")); err != nil {
		t.Fatalf("WriteAtomic() failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() failed: %v", err)
	}
	for _, e := range entries {
		if IsTempName(e.Name()) {
			t.Errorf("temp file %q left behind after successful write", e.Name())
		}
	}
}

func TestOSWriteAtomicFailedReadDiscardsTemp(t *testing.T) {
	osfs := NewOS()
	dir := t.TempDir()
	path := filepath.Join(dir, "target")

	if _, err := osfs.WriteAtomic(path, strings.NewReader("original")); err != nil {
		t.Fatalf("seeding target: %v", err)
	}

	failing := io.MultiReader(strings.NewReader("part"), &failingReader{})
	if _, err := osfs.WriteAtomic(path, failing); err == nil {
		t.Fatal("WriteAtomic() with failing reader should error")
	}

	// Previous content intact, no temp debris.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading target: %v", err)
	}
	if string(data) != "original" {
		t.Errorf("target content = %q, want %q", data, "original")
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if IsTempName(e.Name()) {
			t.Errorf("temp file %q left behind after failed write", e.Name())
		}
	}
}

type failingReader struct{}

func (*failingReader) Read([]byte) (int, error) {
	return 0, errors.New("boom")
}

func TestOSOpenReadRanges(t *testing.T) {
	osfs := NewOS()
	path := filepath.Join(t.TempDir(), "data")
	if _, err := osfs.WriteAtomic(path, strings.NewReader("0123456789")); err != nil {
		t.Fatalf("WriteAtomic() failed: %v", err)
	}

	tests := []struct {
		name string
		rng  *ByteRange
		want string
	}{
		{"full", nil, "0123456789"},
		{"middle", &ByteRange{Start: 2, End: 5}, "2345"},
		{"open end", &ByteRange{Start: 7, End: -1}, "789"},
		{"single byte", &ByteRange{Start: 0, End: 0}, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, err := osfs.OpenRead(path, tt.rng)
			if err != nil {
				t.Fatalf("OpenRead() failed: %v", err)
			}
			defer rc.Close()
			data, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("reading: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("read %q, want %q", data, tt.want)
			}
		})
	}
}

func TestOSOpenReadMissing(t *testing.T) {
	osfs := NewOS()
	_, err := osfs.OpenRead(filepath.Join(t.TempDir(), "nope"), nil)
	if !errors.Is(err, iofs.ErrNotExist) {
		t.Errorf("OpenRead() on missing file: got %v, want ErrNotExist", err)
	}
}

func TestOSRmdirNonEmpty(t *testing.T) {
	osfs := NewOS()
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := osfs.Mkdir(sub); err != nil {
		t.Fatalf("Mkdir() failed: %v", err)
	}
	if _, err := osfs.WriteAtomic(filepath.Join(sub, "f"), bytes.NewReader([]byte("x"))); err != nil {
		t.Fatalf("WriteAtomic() failed: %v", err)
	}

	if err := osfs.Rmdir(sub); !errors.Is(err, ErrNotEmpty) {
		t.Errorf("Rmdir() on non-empty directory = %v, want ErrNotEmpty", err)
	}

	if err := osfs.Remove(filepath.Join(sub, "f")); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if err := osfs.Rmdir(sub); err != nil {
		t.Errorf("Rmdir() on empty directory failed: %v", err)
	}
}

func TestIsTempName(t *testing.T) {
	if !IsTempName(tempPrefix + "abc") {
		t.Error("IsTempName should recognize temp prefix")
	}
	if IsTempName("regular.txt") {
		t.Error("IsTempName should not match regular names")
	}
}
