package fs

import (
	"errors"
	"io"
	iofs "io/fs"
	"strings"
	"testing"
)

func TestMemWriteAndRead(t *testing.T) {
	m := NewMem()

	n, err := m.WriteAtomic("/root/bucket/key", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("WriteAtomic() failed: %v", err)
	}
	if n != 7 {
		t.Errorf("WriteAtomic() wrote %d bytes, want 7", n)
	}

	rc, err := m.OpenRead("/root/bucket/key", nil)
	if err != nil {
		t.Fatalf("OpenRead() failed: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "payload" {
		t.Errorf("read %q, want %q", data, "payload")
	}
}

func TestMemRangeRead(t *testing.T) {
	m := NewMem()
	m.WriteAtomic("/f", strings.NewReader("0123456789"))

	rc, err := m.OpenRead("/f", &ByteRange{Start: 3, End: 6})
	if err != nil {
		t.Fatalf("OpenRead() failed: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "3456" {
		t.Errorf("range read = %q, want %q", data, "3456")
	}
}

func TestMemStatMissing(t *testing.T) {
	m := NewMem()
	if _, err := m.Stat("/nope"); !errors.Is(err, iofs.ErrNotExist) {
		t.Errorf("Stat() on missing path: got %v, want ErrNotExist", err)
	}
}

func TestMemWriteCreatesParents(t *testing.T) {
	m := NewMem()
	m.WriteAtomic("/root/b/nested/deep/key", strings.NewReader("x"))

	info, err := m.Stat("/root/b/nested")
	if err != nil {
		t.Fatalf("Stat() on implicit parent failed: %v", err)
	}
	if !info.IsDir() {
		t.Error("implicit parent should be a directory")
	}
}

func TestMemReadDirSorted(t *testing.T) {
	m := NewMem()
	m.Mkdir("/root/dir")
	m.WriteAtomic("/root/dir/b", strings.NewReader("1"))
	m.WriteAtomic("/root/dir/a", strings.NewReader("2"))
	m.Mkdir("/root/dir/c")

	entries, err := m.ReadDir("/root/dir")
	if err != nil {
		t.Fatalf("ReadDir() failed: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	want := []string{"a", "b", "c"}
	if len(names) != len(want) {
		t.Fatalf("ReadDir() returned %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestMemRmdir(t *testing.T) {
	m := NewMem()
	m.Mkdir("/root/d")
	m.WriteAtomic("/root/d/f", strings.NewReader("x"))

	if err := m.Rmdir("/root/d"); !errors.Is(err, ErrNotEmpty) {
		t.Errorf("Rmdir() on non-empty directory = %v, want ErrNotEmpty", err)
	}
	if err := m.Remove("/root/d/f"); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if err := m.Rmdir("/root/d"); err != nil {
		t.Errorf("Rmdir() on empty directory failed: %v", err)
	}
	if _, err := m.Stat("/root/d"); !errors.Is(err, iofs.ErrNotExist) {
		t.Error("directory should be gone after Rmdir")
	}
}

func TestMemConcurrentReaderKeepsView(t *testing.T) {
	m := NewMem()
	m.WriteAtomic("/k", strings.NewReader("first"))

	rc, err := m.OpenRead("/k", nil)
	if err != nil {
		t.Fatalf("OpenRead() failed: %v", err)
	}
	defer rc.Close()

	m.WriteAtomic("/k", strings.NewReader("second"))

	data, _ := io.ReadAll(rc)
	if string(data) != "first" {
		t.Errorf("open reader observed %q, want the pre-write view %q", data, "first")
	}
}
