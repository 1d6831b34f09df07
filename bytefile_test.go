package vfs

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func openScratch(t *testing.T) (*MemoryFileSystem, Stream) {
	t.Helper()
	fs := NewMemoryFileSystem()
	t.Cleanup(func() { fs.Close() })
	stream, err := fs.Open("scratch", ModeCreateNew, ReadWriteAccess, ShareReadWrite)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { stream.Close() })
	return fs, stream
}

func TestStreamRoundTrip(t *testing.T) {
	_, stream := openScratch(t)

	payload := make([]byte, 4097)
	for i := range payload {
		payload[i] = byte(i)
	}
	n, err := stream.Write(payload)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(payload) {
		t.Fatalf("expected to write %v bytes but wrote %v", len(payload), n)
	}
	if stream.Length() != int64(len(payload)) {
		t.Fatalf("expected length %v but got %v", len(payload), stream.Length())
	}

	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	readBack := make([]byte, len(payload))
	total := 0
	for total < len(readBack) {
		n, err := stream.Read(readBack[total:])
		if err != nil {
			t.Fatal(err)
		}
		total += n
	}
	if !bytes.Equal(readBack, payload) {
		t.Fatal("expected the written bytes to read back unchanged")
	}
	if _, err := stream.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("expected EOF but got %v", err)
	}
}

func TestStreamByteOperations(t *testing.T) {
	_, stream := openScratch(t)

	if err := stream.WriteByte(0x41); err != nil {
		t.Fatal(err)
	}
	if err := stream.WriteByte(0x42); err != nil {
		t.Fatal(err)
	}
	if err := stream.SetPosition(0); err != nil {
		t.Fatal(err)
	}
	b, err := stream.ReadByte()
	if err != nil {
		t.Fatal(err)
	}
	if b != 0x41 {
		t.Fatalf("expected 0x41 but got %x", b)
	}
	// Overwrite in the middle, then append past the end.
	if err := stream.WriteByte(0x43); err != nil {
		t.Fatal(err)
	}
	if err := stream.WriteByte(0x44); err != nil {
		t.Fatal(err)
	}
	if err := stream.SetPosition(0); err != nil {
		t.Fatal(err)
	}
	all := make([]byte, 3)
	if _, err := io.ReadFull(stream, all); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(all, []byte{0x41, 0x43, 0x44}) {
		t.Fatalf("expected 41 43 44 but got %x", all)
	}
	if _, err := stream.ReadByte(); err != io.EOF {
		t.Fatalf("expected EOF but got %v", err)
	}
}

func TestSeekSemantics(t *testing.T) {
	_, stream := openScratch(t)

	if _, err := stream.Write([]byte("0123456789")); err != nil {
		t.Fatal(err)
	}
	// SeekEnd follows the io.Seeker contract: length plus offset.
	pos, err := stream.Seek(-3, io.SeekEnd)
	if err != nil {
		t.Fatal(err)
	}
	if pos != 7 {
		t.Fatalf("expected position 7 but got %v", pos)
	}
	b, err := stream.ReadByte()
	if err != nil {
		t.Fatal(err)
	}
	if b != '7' {
		t.Fatalf("expected 7 but got %c", b)
	}
	pos, err = stream.Seek(1, io.SeekCurrent)
	if err != nil {
		t.Fatal(err)
	}
	if pos != 9 {
		t.Fatalf("expected position 9 but got %v", pos)
	}
	if _, err := stream.Seek(-1, io.SeekStart); err == nil {
		t.Fatal("expected refusal of a negative position")
	}
}

func TestPositionBeyondLengthZeroFills(t *testing.T) {
	_, stream := openScratch(t)

	if _, err := stream.Write([]byte{0xFF}); err != nil {
		t.Fatal(err)
	}
	if err := stream.SetPosition(4); err != nil {
		t.Fatal(err)
	}
	if _, err := stream.Write([]byte{0xEE}); err != nil {
		t.Fatal(err)
	}
	if err := stream.SetPosition(0); err != nil {
		t.Fatal(err)
	}
	all := make([]byte, 5)
	if _, err := io.ReadFull(stream, all); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(all, []byte{0xFF, 0, 0, 0, 0xEE}) {
		t.Fatalf("expected the gap to be zero filled but got %x", all)
	}
}

func TestSetLength(t *testing.T) {
	_, stream := openScratch(t)

	if _, err := stream.Write([]byte("abcdef")); err != nil {
		t.Fatal(err)
	}
	if err := stream.SetLength(3); err != nil {
		t.Fatal(err)
	}
	if stream.Length() != 3 {
		t.Fatalf("expected length 3 but got %v", stream.Length())
	}
	if stream.Position() != 3 {
		t.Fatalf("expected the position clamped to 3 but got %v", stream.Position())
	}
	if err := stream.SetLength(5); err != nil {
		t.Fatal(err)
	}
	if err := stream.SetPosition(0); err != nil {
		t.Fatal(err)
	}
	all := make([]byte, 5)
	if _, err := io.ReadFull(stream, all); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(all, []byte{'a', 'b', 'c', 0, 0}) {
		t.Fatalf("expected zero extension but got %x", all)
	}
	if err := stream.SetLength(-1); err == nil {
		t.Fatal("expected refusal of a negative length")
	}
}

func TestStreamAccessEnforcement(t *testing.T) {
	fs := NewMemoryFileSystem()
	defer fs.Close()

	writer, err := fs.Open("f", ModeCreateNew, WriteAccess, ShareReadWrite)
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Close()
	if _, err := writer.Read(make([]byte, 1)); !IsNoAccess(err) {
		t.Fatalf("expected NoAccessError on reading a write-only stream but got %v", err)
	}

	reader, err := fs.Open("f", ModeOpen, ReadAccess, ShareReadWrite)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	if _, err := reader.Write([]byte{1}); !IsNoAccess(err) {
		t.Fatalf("expected NoAccessError on writing a read-only stream but got %v", err)
	}
	if err := reader.SetLength(0); !IsNoAccess(err) {
		t.Fatalf("expected NoAccessError on truncating a read-only stream but got %v", err)
	}
}

func TestClosedStream(t *testing.T) {
	_, stream := openScratch(t)

	if err := stream.Close(); err != nil {
		t.Fatal(err)
	}
	if err := stream.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := stream.Read(make([]byte, 1)); !IsAlreadyClosed(err) {
		t.Fatalf("expected AlreadyClosedError but got %v", err)
	}
	if _, err := stream.Write([]byte{1}); !IsAlreadyClosed(err) {
		t.Fatalf("expected AlreadyClosedError but got %v", err)
	}
	if _, err := stream.Seek(0, io.SeekStart); !IsAlreadyClosed(err) {
		t.Fatalf("expected AlreadyClosedError but got %v", err)
	}
}

func TestConcurrentStreamsShareContents(t *testing.T) {
	fs := NewMemoryFileSystem()
	defer fs.Close()

	writer, err := fs.Open("f", ModeCreateNew, WriteAccess, ShareReadWrite)
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Close()
	reader, err := fs.Open("f", ModeOpen, ReadAccess, ShareReadWrite)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	if _, err := writer.Write([]byte("shared")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 6)
	if _, err := io.ReadFull(reader, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "shared" {
		t.Fatalf("expected the second stream to see the write but got %q", buf)
	}
}

func TestStreamDeclarationsAreVisible(t *testing.T) {
	fs := NewMemoryFileSystem()
	defer fs.Close()

	stream, err := fs.Open("f", ModeCreateNew, WriteAccess, ShareRead)
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Close()
	if stream.Access() != WriteAccess {
		t.Fatalf("expected write access but got %v", stream.Access())
	}
	if stream.Share() != ShareRead {
		t.Fatalf("expected read share but got %v", stream.Share())
	}
}

func TestInvalidAccessFlags(t *testing.T) {
	fs := NewMemoryFileSystem()
	defer fs.Close()

	var ioErr *IOError
	if _, err := fs.Open("f", ModeCreateNew, 0, ShareNone); !errors.As(err, &ioErr) {
		t.Fatalf("expected IOError for empty access but got %v", err)
	}
}
