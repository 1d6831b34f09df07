package vfs

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

var _ FileSystem = (*LocalFileSystem)(nil)

// A LocalFileSystem works against a directory of the local disk. All paths are rooted
// at the configured prefix. Observe uses the platform's native watcher. Share modes are
// recorded on the returned stream but not enforced: they are neither passed to the OS
// nor checked against other open streams.
type LocalFileSystem struct {
	baseFileSystem
	prefix string

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
}

// NewLocalFileSystem creates a filesystem over the given OS directory.
func NewLocalFileSystem(dir string) *LocalFileSystem {
	return &LocalFileSystem{prefix: filepath.Clean(dir)}
}

func (l *LocalFileSystem) String() string {
	return "local(" + l.prefix + ")"
}

// Options advertises the full capability set with the platform's case regime left to
// the caller: the local filesystem itself cannot know reliably, so it declares
// inherited.
func (l *LocalFileSystem) Options() Option {
	opts := AllOptions()
	opts.Path = &PathFacet{Sensitivity: CaseInherited, EmptyDirName: true}
	return opts
}

// Resolve creates a platform specific filename from the given invariant path by
// adding the prefix and using the platform specific name separator.
func (l *LocalFileSystem) Resolve(path Path) string {
	return filepath.Join(l.prefix, filepath.Join(path.Names()...))
}

// unresolve translates a native filename back into a Path below the prefix.
func (l *LocalFileSystem) unresolve(name string) (Path, bool) {
	rel, err := filepath.Rel(l.prefix, name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	if rel == "." {
		return "", true
	}
	return Path(filepath.ToSlash(rel)), true
}

// ReadDir details: see FileSystem#ReadDir.
func (l *LocalFileSystem) ReadDir(path Path) ([]Entry, error) {
	if l.isClosed() {
		return nil, &AlreadyClosedError{What: l.String()}
	}
	resolved := l.Resolve(path)
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, &DirectoryNotFoundError{Path: path, Cause: err}
	}
	if !info.IsDir() {
		return []Entry{l.entryFor(path, info)}, nil
	}
	listing, err := os.ReadDir(resolved)
	if err != nil {
		return nil, &IOError{Message: "unable to list directory", Path: path, Cause: err}
	}
	entries := make([]Entry, 0, len(listing))
	for _, dirent := range listing {
		info, err := dirent.Info()
		if err != nil {
			continue
		}
		entries = append(entries, l.entryFor(path.Child(dirent.Name()), info))
	}
	return entries, nil
}

// Stat details: see FileSystem#Stat.
func (l *LocalFileSystem) Stat(path Path) (*Entry, error) {
	if l.isClosed() {
		return nil, &AlreadyClosedError{What: l.String()}
	}
	info, err := os.Stat(l.Resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &IOError{Message: "unable to stat", Path: path, Cause: err}
	}
	entry := l.entryFor(path, info)
	return &entry, nil
}

func (l *LocalFileSystem) entryFor(path Path, info fs.FileInfo) Entry {
	kind := KindFile
	var size int64
	if info.IsDir() {
		kind = KindDirectory
	} else {
		size = info.Size()
	}
	return Entry{
		FileSystem: l,
		Path:       path,
		Name:       path.Name(),
		ModTime:    info.ModTime(),
		Kind:       kind,
		Size:       size,
	}
}

// Open details: see FileSystem#Open.
func (l *LocalFileSystem) Open(path Path, mode Mode, access Access, share Share) (Stream, error) {
	if l.isClosed() {
		return nil, &AlreadyClosedError{What: l.String()}
	}
	if access == 0 || access&^ReadWriteAccess != 0 {
		return nil, &IOError{Message: "invalid access flags", Path: path}
	}
	var flag int
	switch {
	case access == ReadAccess:
		flag = os.O_RDONLY
	case access == WriteAccess:
		flag = os.O_WRONLY
	default:
		flag = os.O_RDWR
	}
	switch mode {
	case ModeOpen:
	case ModeOpenOrCreate, ModeAppend:
		flag |= os.O_CREATE
	case ModeCreate:
		flag |= os.O_CREATE | os.O_TRUNC
	case ModeCreateNew:
		flag |= os.O_CREATE | os.O_EXCL
	case ModeTruncate:
		flag |= os.O_TRUNC
	default:
		return nil, &IOError{Message: "invalid mode", Path: path}
	}
	if mode.truncates() && !access.CanWrite() {
		return nil, &NoAccessError{Path: path, Access: WriteAccess}
	}
	file, err := os.OpenFile(l.Resolve(path), flag, 0644)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return nil, &ResourceNotFoundError{Path: path, Cause: err}
		case os.IsExist(err):
			return nil, &FileExistsError{Path: path}
		default:
			return nil, &IOError{Message: "unable to open", Path: path, Cause: err}
		}
	}
	s := &osStream{file: file, path: path, access: access, share: share}
	if mode == ModeAppend {
		if _, err := s.Seek(0, io.SeekEnd); err != nil {
			_ = file.Close()
			return nil, err
		}
	}
	return s, nil
}

// MkDirs details: see FileSystem#MkDirs.
func (l *LocalFileSystem) MkDirs(path Path) error {
	if l.isClosed() {
		return &AlreadyClosedError{What: l.String()}
	}
	if err := os.MkdirAll(l.Resolve(path), 0755); err != nil {
		return &IOError{Message: "unable to create directories", Path: path, Cause: err}
	}
	return nil
}

// Delete details: see FileSystem#Delete.
func (l *LocalFileSystem) Delete(path Path, recursive bool) error {
	if l.isClosed() {
		return &AlreadyClosedError{What: l.String()}
	}
	if path.IsRoot() {
		return &IOError{Message: "cannot delete the root", Path: path}
	}
	resolved := l.Resolve(path)
	if _, err := os.Lstat(resolved); err != nil {
		if os.IsNotExist(err) {
			return &ResourceNotFoundError{Path: path, Cause: err}
		}
		return &IOError{Message: "unable to stat", Path: path, Cause: err}
	}
	if recursive {
		if err := os.RemoveAll(resolved); err != nil {
			return &IOError{Message: "unable to delete", Path: path, Cause: err}
		}
		return nil
	}
	if err := os.Remove(resolved); err != nil {
		return &IOError{Message: "unable to delete", Path: path, Cause: err}
	}
	return nil
}

// Rename details: see FileSystem#Rename. In contrast to os.Rename an existing target
// is refused, matching the memory filesystem.
func (l *LocalFileSystem) Rename(oldPath Path, newPath Path) error {
	if l.isClosed() {
		return &AlreadyClosedError{What: l.String()}
	}
	if _, err := os.Lstat(l.Resolve(newPath)); err == nil {
		return &IOError{Message: "target already exists", Path: newPath}
	}
	if err := os.Rename(l.Resolve(oldPath), l.Resolve(newPath)); err != nil {
		if os.IsNotExist(err) {
			return &ResourceNotFoundError{Path: oldPath, Cause: err}
		}
		return &IOError{Message: "unable to rename", Path: oldPath, Cause: err}
	}
	return nil
}

// SetEventDispatcher details: see FileSystem#SetEventDispatcher.
func (l *LocalFileSystem) SetEventDispatcher(dispatcher Dispatcher) error {
	if l.isClosed() {
		return &AlreadyClosedError{What: l.String()}
	}
	l.setDispatcher(dispatcher)
	return nil
}

// Observe details: see FileSystem#Observe. The first subscription starts one native
// watcher over the whole prefix; directories created later are added to it.
func (l *LocalFileSystem) Observe(filter string, sink EventSink, state interface{}) (*Observer, error) {
	if err := l.ensureWatcher(); err != nil {
		return nil, err
	}
	return l.observe(l, filter, sink, state)
}

func (l *LocalFileSystem) ensureWatcher() error {
	l.watchMu.Lock()
	defer l.watchMu.Unlock()
	if l.watcher != nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "unable to create native watcher")
	}
	// Watch the prefix and every directory below it; fsnotify itself is not
	// recursive.
	walkErr := filepath.WalkDir(l.prefix, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(name)
		}
		return nil
	})
	if walkErr != nil {
		_ = watcher.Close()
		return errors.Wrap(walkErr, "unable to watch directory tree")
	}
	l.watcher = watcher
	l.addCloser(watcher)
	go l.drainWatcher(watcher)
	return nil
}

func (l *LocalFileSystem) drainWatcher(watcher *fsnotify.Watcher) {
	for {
		select {
		case native, ok := <-watcher.Events:
			if !ok {
				return
			}
			l.publishNative(watcher, native)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if pubErr := l.publish([]Event{newErrorEvent("", err)}); pubErr != nil {
				errorf("%s: error delivery failed: %v", l.String(), pubErr)
			}
		}
	}
}

// publishNative maps a native notification onto the event model. A rename-away is
// reported as a delete, because the native watcher does not tell where the entry
// went.
func (l *LocalFileSystem) publishNative(watcher *fsnotify.Watcher, native fsnotify.Event) {
	path, ok := l.unresolve(native.Name)
	if !ok {
		return
	}
	var event Event
	switch {
	case native.Op&fsnotify.Create != 0:
		event = newCreateEvent(path)
		if info, err := os.Stat(native.Name); err == nil && info.IsDir() {
			if err := watcher.Add(native.Name); err != nil {
				debugf("%s: unable to watch new directory %s: %v", l.String(), path.String(), err)
			}
		}
	case native.Op&fsnotify.Write != 0:
		event = newChangeEvent(path)
	case native.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		event = newDeleteEvent(path)
	default:
		return
	}
	if err := l.publish([]Event{event}); err != nil {
		errorf("%s: event delivery failed: %v", l.String(), err)
	}
}

// Close releases the watcher and completes all observers.
func (l *LocalFileSystem) Close() error {
	return l.closeAll()
}

// An osStream adapts an *os.File to the Stream contract.
type osStream struct {
	file   *os.File
	path   Path
	access Access
	share  Share
	closed int32
}

var _ Stream = (*osStream)(nil)

func (s *osStream) check(access Access) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return &AlreadyClosedError{What: "Stream " + s.path.String()}
	}
	if s.access&access != access {
		return &NoAccessError{Path: s.path, Access: access}
	}
	return nil
}

func (s *osStream) Read(p []byte) (int, error) {
	if err := s.check(ReadAccess); err != nil {
		return 0, err
	}
	return s.file.Read(p)
}

func (s *osStream) ReadByte() (byte, error) {
	var buf [1]byte
	n, err := s.Read(buf[:])
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, errors.New("short read")
	}
	return buf[0], nil
}

func (s *osStream) Write(p []byte) (int, error) {
	if err := s.check(WriteAccess); err != nil {
		return 0, err
	}
	return s.file.Write(p)
}

func (s *osStream) WriteByte(b byte) error {
	var buf [1]byte
	buf[0] = b
	_, err := s.Write(buf[:])
	return err
}

func (s *osStream) Seek(offset int64, whence int) (int64, error) {
	if atomic.LoadInt32(&s.closed) == 1 {
		return 0, &AlreadyClosedError{What: "Stream " + s.path.String()}
	}
	return s.file.Seek(offset, whence)
}

func (s *osStream) Position() int64 {
	pos, err := s.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0
	}
	return pos
}

func (s *osStream) SetPosition(pos int64) error {
	_, err := s.Seek(pos, io.SeekStart)
	return err
}

func (s *osStream) Length() int64 {
	info, err := s.file.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

func (s *osStream) SetLength(length int64) error {
	if err := s.check(WriteAccess); err != nil {
		return err
	}
	if length < 0 || length > MaxFileLength {
		return &IOError{Message: "length out of range", Path: s.path}
	}
	if err := s.file.Truncate(length); err != nil {
		return &IOError{Message: "unable to truncate", Path: s.path, Cause: err}
	}
	if s.Position() > length {
		return s.SetPosition(length)
	}
	return nil
}

func (s *osStream) Access() Access {
	return s.access
}

func (s *osStream) Share() Share {
	return s.share
}

func (s *osStream) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	return s.file.Close()
}
