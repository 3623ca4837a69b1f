package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"testing"
)

func TestMemoryFileSystem_AppendAndRead(t *testing.T) {
	m := NewMemoryFileSystem()
	if err := m.MkdirAll("logs", 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	w, err := m.OpenAppend("logs/a.csv")
	if err != nil {
		t.Fatalf("OpenAppend: %v", err)
	}
	io.WriteString(w, "one\n")
	w.Close()

	w, _ = m.OpenAppend("logs/a.csv")
	io.WriteString(w, "two\n")
	w.Close()

	got, err := m.ReadFile("logs/a.csv")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "one\ntwo\n" {
		t.Errorf("contents = %q, want %q", got, "one\ntwo\n")
	}

	f, err := m.Open("logs/a.csv")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if string(data) != "one\ntwo\n" {
		t.Errorf("Open contents = %q", data)
	}
}

func TestMemoryFileSystem_WriteAfterClose(t *testing.T) {
	m := NewMemoryFileSystem()
	w, _ := m.OpenAppend("x")
	w.Close()
	if _, err := w.Write([]byte("late")); err == nil {
		t.Error("expected error writing to closed file")
	}
}

func TestMemoryFileSystem_OpenMissing(t *testing.T) {
	m := NewMemoryFileSystem()
	if _, err := m.Open("missing"); err == nil {
		t.Error("expected error opening missing file")
	}
	if m.Exists("missing") {
		t.Error("missing file reported as existing")
	}
}

func TestMemoryFileSystem_MkdirAll(t *testing.T) {
	m := NewMemoryFileSystem()
	m.MkdirAll("a/b/c", 0755)
	for _, p := range []string{"a", "a/b", "a/b/c"} {
		if !m.Exists(p) {
			t.Errorf("expected %q to exist", p)
		}
	}
}

func TestMemoryFileSystem_AppendNeedsParent(t *testing.T) {
	m := NewMemoryFileSystem()
	if _, err := m.OpenAppend("logs/a.csv"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("OpenAppend without parent: err = %v, want ErrNotExist", err)
	}
	m.MkdirAll("logs", 0o755)
	if _, err := m.OpenAppend("logs"); err == nil {
		t.Error("expected error appending to a directory")
	}
	if _, err := m.OpenAppend("logs/a.csv"); err != nil {
		t.Errorf("OpenAppend after MkdirAll: %v", err)
	}
	if err := m.MkdirAll("logs/a.csv/x", 0o755); err == nil {
		t.Error("expected error creating a directory under a file")
	}
}

func TestMemoryFileSystem_WriteErr(t *testing.T) {
	m := NewMemoryFileSystem()
	w, _ := m.OpenAppend("x.csv")
	m.WriteErr = errors.New("disk full")
	if _, err := w.Write([]byte("row\n")); err == nil || err.Error() != "disk full" {
		t.Errorf("Write err = %v, want disk full", err)
	}
	if got, _ := m.ReadFile("x.csv"); len(got) != 0 {
		t.Errorf("failed write left %q", got)
	}
}

func TestMemoryFileSystem_WriteFileCreatesParents(t *testing.T) {
	m := NewMemoryFileSystem()
	m.WriteFile("a/b/c.csv", []byte("1,2,3\n"))
	if !m.Exists("a/b") {
		t.Error("parent not created")
	}
	got, err := m.ReadFile("a/b/c.csv")
	if err != nil || string(got) != "1,2,3\n" {
		t.Errorf("ReadFile = %q, %v", got, err)
	}
}

func TestOSFileSystem_Append(t *testing.T) {
	fsys := OSFileSystem{}
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "out.csv")

	if err := fsys.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	for _, line := range []string{"a\n", "b\n"} {
		w, err := fsys.OpenAppend(path)
		if err != nil {
			t.Fatalf("OpenAppend: %v", err)
		}
		io.WriteString(w, line)
		w.Close()
	}
	if !fsys.Exists(path) {
		t.Fatal("file not created")
	}
	f, err := fsys.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if string(data) != "a\nb\n" {
		t.Errorf("contents = %q", data)
	}
}
