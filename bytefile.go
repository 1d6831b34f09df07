package vfs

import (
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultModifyWindow is the debounce window for Change notifications of a memory
// file: modifications within the window are coalesced into one event.
const DefaultModifyWindow = 500 * time.Millisecond

// A byteFile is the shared storage behind a memory file node. The contents are
// guarded by a reader-writer lock, the stream registry and the share arbitration by a
// separate critical section. The registry lock is taken at open and close of streams,
// on release, and by the released check that precedes every read, write, seek and
// length change; it is never taken while the data lock is held.
type byteFile struct {
	dataMu sync.RWMutex
	data   []byte
	mod    time.Time

	regMu    sync.Mutex
	streams  []*memStream
	released bool

	// modification publisher, debounced by window. onModify is the weak back
	// reference to the owning file node and may be nil for detached files.
	notifyMu   sync.Mutex
	window     time.Duration
	lastNotify time.Time
	pending    *time.Timer
	onModify   func()
}

func newByteFile(window time.Duration) *byteFile {
	if window <= 0 {
		window = DefaultModifyWindow
	}
	return &byteFile{mod: time.Now(), window: window}
}

// openStream admits a new view if every open stream's share mask permits the new
// access and the new share mask permits every open stream's access.
func (f *byteFile) openStream(path Path, access Access, share Share, truncate bool, atEnd bool) (*memStream, error) {
	if access == 0 || access&^ReadWriteAccess != 0 {
		return nil, &IOError{Message: "invalid access flags", Path: path}
	}
	if truncate && !access.CanWrite() {
		return nil, &NoAccessError{Path: path, Access: WriteAccess}
	}
	f.regMu.Lock()
	defer f.regMu.Unlock()
	if f.released {
		return nil, &ResourceNotFoundError{Path: path}
	}
	for _, open := range f.streams {
		if !open.share.Permits(access) {
			return nil, &NoAccessError{Path: path, Access: access &^ Access(open.share)}
		}
		if !share.Permits(open.access) {
			return nil, &NoAccessError{Path: path, Access: open.access &^ Access(share)}
		}
	}
	s := &memStream{file: f, path: path, access: access, share: share}
	if truncate {
		f.dataMu.Lock()
		f.data = f.data[:0]
		f.mod = time.Now()
		f.dataMu.Unlock()
	}
	if atEnd {
		s.pos = f.length()
	}
	f.streams = append(f.streams, s)
	return s, nil
}

func (f *byteFile) closeStream(s *memStream) {
	f.regMu.Lock()
	defer f.regMu.Unlock()
	for i, open := range f.streams {
		if open == s {
			f.streams = append(f.streams[:i], f.streams[i+1:]...)
			return
		}
	}
}

// release marks the storage dead. Open streams stay registered, but reads, writes,
// seeks and length changes on them fail with *ResourceNotFoundError.
func (f *byteFile) release() {
	f.regMu.Lock()
	f.released = true
	f.regMu.Unlock()
	f.notifyMu.Lock()
	if f.pending != nil {
		f.pending.Stop()
		f.pending = nil
	}
	f.onModify = nil
	f.notifyMu.Unlock()
}

func (f *byteFile) isReleased() bool {
	f.regMu.Lock()
	defer f.regMu.Unlock()
	return f.released
}

func (f *byteFile) length() int64 {
	f.dataMu.RLock()
	defer f.dataMu.RUnlock()
	return int64(len(f.data))
}

func (f *byteFile) modTime() time.Time {
	f.dataMu.RLock()
	defer f.dataMu.RUnlock()
	return f.mod
}

// signalModified is called after every mutating stream operation, outside the data
// lock. If the window since the last delivered notification has elapsed the
// subscriber is invoked synchronously, otherwise the signal is coalesced into one
// pending delivery at the end of the window.
func (f *byteFile) signalModified() {
	f.notifyMu.Lock()
	if f.onModify == nil {
		f.notifyMu.Unlock()
		return
	}
	now := time.Now()
	elapsed := now.Sub(f.lastNotify)
	if elapsed >= f.window {
		f.lastNotify = now
		notify := f.onModify
		f.notifyMu.Unlock()
		notify()
		return
	}
	if f.pending == nil {
		f.pending = time.AfterFunc(f.window-elapsed, f.firePending)
	}
	f.notifyMu.Unlock()
}

func (f *byteFile) firePending() {
	f.notifyMu.Lock()
	f.pending = nil
	f.lastNotify = time.Now()
	notify := f.onModify
	f.notifyMu.Unlock()
	if notify != nil {
		notify()
	}
}

// A memStream is a positioned view over a byteFile. The position is owned by the
// stream's user: a single stream must not be shared between goroutines, but any
// number of streams over the same byteFile may run concurrently.
type memStream struct {
	file   *byteFile
	path   Path
	access Access
	share  Share
	pos    int64
	closed int32
}

var _ Stream = (*memStream)(nil)

func (s *memStream) check(access Access) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return &AlreadyClosedError{What: "Stream " + s.path.String()}
	}
	if s.file.isReleased() {
		return &ResourceNotFoundError{Path: s.path}
	}
	if s.access&access != access {
		return &NoAccessError{Path: s.path, Access: access}
	}
	return nil
}

func (s *memStream) Read(p []byte) (int, error) {
	if err := s.check(ReadAccess); err != nil {
		return 0, err
	}
	s.file.dataMu.RLock()
	defer s.file.dataMu.RUnlock()
	if s.pos >= int64(len(s.file.data)) {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, s.file.data[s.pos:])
	s.pos += int64(n)
	return n, nil
}

func (s *memStream) ReadByte() (byte, error) {
	var buf [1]byte
	n, err := s.Read(buf[:])
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return buf[0], nil
}

func (s *memStream) Write(p []byte) (int, error) {
	if err := s.check(WriteAccess); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	s.file.dataMu.Lock()
	if s.pos+int64(len(p)) > MaxFileLength {
		s.file.dataMu.Unlock()
		return 0, &IOError{Message: "file too large", Path: s.path}
	}
	// Zero-fill the gap if the position was moved beyond the end.
	if gap := s.pos - int64(len(s.file.data)); gap > 0 {
		s.file.data = append(s.file.data, make([]byte, gap)...)
	}
	n := copy(s.file.data[s.pos:], p)
	if n < len(p) {
		s.file.data = append(s.file.data, p[n:]...)
	}
	s.pos += int64(len(p))
	s.file.mod = time.Now()
	s.file.dataMu.Unlock()
	s.file.signalModified()
	return len(p), nil
}

func (s *memStream) WriteByte(b byte) error {
	var buf [1]byte
	buf[0] = b
	_, err := s.Write(buf[:])
	return err
}

func (s *memStream) Seek(offset int64, whence int) (int64, error) {
	if atomic.LoadInt32(&s.closed) == 1 {
		return 0, &AlreadyClosedError{What: "Stream " + s.path.String()}
	}
	if s.file.isReleased() {
		return 0, &ResourceNotFoundError{Path: s.path}
	}
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = s.pos + offset
	case io.SeekEnd:
		next = s.file.length() + offset
	default:
		return 0, &IOError{Message: "invalid whence", Path: s.path}
	}
	if next < 0 {
		return 0, &IOError{Message: "negative position", Path: s.path}
	}
	s.pos = next
	return next, nil
}

func (s *memStream) Position() int64 {
	return s.pos
}

func (s *memStream) SetPosition(pos int64) error {
	_, err := s.Seek(pos, io.SeekStart)
	return err
}

func (s *memStream) Length() int64 {
	return s.file.length()
}

func (s *memStream) SetLength(length int64) error {
	if err := s.check(WriteAccess); err != nil {
		return err
	}
	if length < 0 || length > MaxFileLength {
		return &IOError{Message: "length out of range", Path: s.path}
	}
	s.file.dataMu.Lock()
	if length <= int64(len(s.file.data)) {
		s.file.data = s.file.data[:length]
	} else {
		s.file.data = append(s.file.data, make([]byte, length-int64(len(s.file.data)))...)
	}
	if s.pos > length {
		s.pos = length
	}
	s.file.mod = time.Now()
	s.file.dataMu.Unlock()
	s.file.signalModified()
	return nil
}

func (s *memStream) Access() Access {
	return s.access
}

func (s *memStream) Share() Share {
	return s.share
}

func (s *memStream) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	s.file.closeStream(s)
	return nil
}
