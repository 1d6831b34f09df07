package vfs

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func newTempLocal(t *testing.T) *LocalFileSystem {
	t.Helper()
	fs := NewLocalFileSystem(t.TempDir())
	t.Cleanup(func() { fs.Close() })
	return fs
}

func TestLocalRoundTrip(t *testing.T) {
	fs := newTempLocal(t)

	if err := fs.MkDirs("sub/dir"); err != nil {
		t.Fatal(err)
	}
	payload := []byte("local bytes")
	if _, err := WriteAll(fs, "sub/dir/f.bin", payload); err != nil {
		t.Fatal(err)
	}
	data, err := ReadAll(fs, "sub/dir/f.bin")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, payload) {
		t.Fatalf("expected %q but got %q", payload, data)
	}

	entry, err := fs.Stat("sub/dir/f.bin")
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || entry.Kind != KindFile || entry.Size != int64(len(payload)) {
		t.Fatalf("expected the file entry but got %v", entry)
	}

	entries, err := fs.ReadDir("sub")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name != "dir" || !entries[0].IsDir() {
		t.Fatalf("expected the dir entry but got %v", entries)
	}
}

func TestLocalOpenModes(t *testing.T) {
	fs := newTempLocal(t)

	if _, err := fs.Open("missing", ModeOpen, ReadAccess, ShareRead); !IsNotFound(err) {
		t.Fatalf("expected not-found but got %v", err)
	}
	stream, err := fs.Open("f", ModeCreateNew, WriteAccess, ShareNone)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := stream.Write([]byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := stream.Close(); err != nil {
		t.Fatal(err)
	}
	var exists *FileExistsError
	if _, err := fs.Open("f", ModeCreateNew, WriteAccess, ShareNone); !errors.As(err, &exists) {
		t.Fatalf("expected FileExistsError but got %v", err)
	}

	appender, err := fs.Open("f", ModeAppend, WriteAccess, ShareNone)
	if err != nil {
		t.Fatal(err)
	}
	if appender.Position() != 3 {
		t.Fatalf("expected the position at the end but got %v", appender.Position())
	}
	if _, err := appender.Write([]byte("two")); err != nil {
		t.Fatal(err)
	}
	if err := appender.Close(); err != nil {
		t.Fatal(err)
	}
	data, err := ReadAll(fs, "f")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "onetwo" {
		t.Fatalf("expected onetwo but got %q", data)
	}
}

func TestLocalStreamAccess(t *testing.T) {
	fs := newTempLocal(t)

	if _, err := WriteAll(fs, "f", []byte("data")); err != nil {
		t.Fatal(err)
	}
	reader, err := fs.Open("f", ModeOpen, ReadAccess, ShareRead)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	if _, err := reader.Write([]byte{1}); !IsNoAccess(err) {
		t.Fatalf("expected NoAccessError but got %v", err)
	}
	if reader.Length() != 4 {
		t.Fatalf("expected length 4 but got %v", reader.Length())
	}
}

func TestLocalDelete(t *testing.T) {
	fs := newTempLocal(t)

	if err := fs.MkDirs("full/child"); err != nil {
		t.Fatal(err)
	}
	var ioErr *IOError
	if err := fs.Delete("full", false); !errors.As(err, &ioErr) {
		t.Fatalf("expected IOError for a non-empty directory but got %v", err)
	}
	if err := fs.Delete("full", true); err != nil {
		t.Fatal(err)
	}
	if entry, _ := fs.Stat("full"); entry != nil {
		t.Fatal("expected the directory to be gone")
	}
	if err := fs.Delete("missing", false); !IsNotFound(err) {
		t.Fatalf("expected not-found but got %v", err)
	}
	if err := fs.Delete("", true); err == nil {
		t.Fatal("expected refusal to delete the root")
	}
}

func TestLocalRenameRefusesExistingTarget(t *testing.T) {
	fs := newTempLocal(t)

	if _, err := WriteAll(fs, "a", []byte("a")); err != nil {
		t.Fatal(err)
	}
	if _, err := WriteAll(fs, "b", []byte("b")); err != nil {
		t.Fatal(err)
	}
	var ioErr *IOError
	if err := fs.Rename("a", "b"); !errors.As(err, &ioErr) {
		t.Fatalf("expected IOError but got %v", err)
	}
	if err := fs.Rename("a", "c"); err != nil {
		t.Fatal(err)
	}
	if entry, _ := fs.Stat("c"); entry == nil {
		t.Fatal("expected the renamed file")
	}
	if err := fs.Rename("missing", "x"); !IsNotFound(err) {
		t.Fatalf("expected not-found but got %v", err)
	}
}

func TestLocalObserve(t *testing.T) {
	fs := newTempLocal(t)

	sink := &recordingSink{}
	observer, err := fs.Observe(MatchAll, sink, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer observer.Close()

	events := sink.Events()
	if len(events) != 1 || events[0] != "START" {
		t.Fatalf("expected a single START but got %v", events)
	}

	if _, err := WriteAll(fs, "watched.txt", []byte("x")); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, event := range sink.Events() {
			if event == "CREATE /watched.txt" {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	// Native watchers are platform dependent; missing delivery is diagnosed, not
	// asserted, to keep the suite portable.
	t.Skipf("native watcher delivered no create event, got %v", sink.Events())
}
