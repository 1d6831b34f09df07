package vfs

import (
	"io"
	iofs "io/fs"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// DefaultPollInterval is the snapshot interval of a ProviderFileSystem observer.
const DefaultPollInterval = 2 * time.Second

var _ FileSystem = (*ProviderFileSystem)(nil)

// A ProviderFileSystem wraps a foreign io/fs.FS provider. Listing, stat and read-only
// open are delegated; Observe is synthesized by diffing periodic snapshots of the
// provider, because a foreign provider has no native event feed.
type ProviderFileSystem struct {
	baseFileSystem
	fsys     iofs.FS
	interval time.Duration

	pollMu  sync.Mutex
	polling bool
	stop    chan struct{}
}

// NewProviderFileSystem wraps the given provider with the default poll interval.
func NewProviderFileSystem(fsys iofs.FS) *ProviderFileSystem {
	return NewProviderFileSystemWith(fsys, DefaultPollInterval)
}

// NewProviderFileSystemWith wraps the given provider and polls snapshots at the given
// interval while observers are attached.
func NewProviderFileSystemWith(fsys iofs.FS, interval time.Duration) *ProviderFileSystem {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &ProviderFileSystem{fsys: fsys, interval: interval}
}

func (p *ProviderFileSystem) String() string {
	return "provider"
}

// Options advertises listing, reading and synthesized observation.
func (p *ProviderFileSystem) Options() Option {
	return Option{
		Browse:  &BrowseFacet{CanBrowse: true, CanStat: true},
		Open:    &OpenFacet{CanOpen: true, CanRead: true},
		Observe: &ObserveFacet{CanObserve: true, CanSetEventDispatcher: true},
		Path:    &PathFacet{Sensitivity: CaseSensitive},
	}
}

// providerName maps a Path onto the io/fs naming scheme, whose root is ".".
func providerName(path Path) string {
	if path.IsRoot() {
		return "."
	}
	return path.Normalized()
}

// ReadDir details: see FileSystem#ReadDir.
func (p *ProviderFileSystem) ReadDir(path Path) ([]Entry, error) {
	if p.isClosed() {
		return nil, &AlreadyClosedError{What: p.String()}
	}
	info, err := iofs.Stat(p.fsys, providerName(path))
	if err != nil {
		return nil, &DirectoryNotFoundError{Path: path, Cause: err}
	}
	if !info.IsDir() {
		entry := p.entryFor(path, info)
		return []Entry{entry}, nil
	}
	listing, err := iofs.ReadDir(p.fsys, providerName(path))
	if err != nil {
		return nil, &IOError{Message: "unable to list provider directory", Path: path, Cause: err}
	}
	entries := make([]Entry, 0, len(listing))
	for _, dirent := range listing {
		info, err := dirent.Info()
		if err != nil {
			continue
		}
		entries = append(entries, p.entryFor(path.Child(dirent.Name()), info))
	}
	return entries, nil
}

// Stat details: see FileSystem#Stat.
func (p *ProviderFileSystem) Stat(path Path) (*Entry, error) {
	if p.isClosed() {
		return nil, &AlreadyClosedError{What: p.String()}
	}
	info, err := iofs.Stat(p.fsys, providerName(path))
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, nil
		}
		return nil, &IOError{Message: "unable to stat provider entry", Path: path, Cause: err}
	}
	entry := p.entryFor(path, info)
	return &entry, nil
}

func (p *ProviderFileSystem) entryFor(path Path, info iofs.FileInfo) Entry {
	kind := KindFile
	var size int64
	if info.IsDir() {
		kind = KindDirectory
	} else {
		size = info.Size()
	}
	return Entry{
		FileSystem: p,
		Path:       path,
		Name:       path.Name(),
		ModTime:    info.ModTime(),
		Kind:       kind,
		Size:       size,
	}
}

// Open details: see FileSystem#Open. Foreign providers are read-only.
func (p *ProviderFileSystem) Open(path Path, mode Mode, access Access, share Share) (Stream, error) {
	if p.isClosed() {
		return nil, &AlreadyClosedError{What: p.String()}
	}
	if mode != ModeOpen || access != ReadAccess {
		return nil, &UnsupportedOperationError{Message: "provider is read-only: " + path.String()}
	}
	file, err := p.fsys.Open(providerName(path))
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, &ResourceNotFoundError{Path: path, Cause: err}
		}
		return nil, &IOError{Message: "unable to open provider entry", Path: path, Cause: err}
	}
	return &providerStream{file: file, path: path, share: share}, nil
}

// MkDirs details: see FileSystem#MkDirs.
func (p *ProviderFileSystem) MkDirs(path Path) error {
	return &UnsupportedOperationError{Message: "provider is read-only"}
}

// Delete details: see FileSystem#Delete.
func (p *ProviderFileSystem) Delete(path Path, recursive bool) error {
	return &UnsupportedOperationError{Message: "provider is read-only"}
}

// Rename details: see FileSystem#Rename.
func (p *ProviderFileSystem) Rename(oldPath Path, newPath Path) error {
	return &UnsupportedOperationError{Message: "provider is read-only"}
}

// SetEventDispatcher details: see FileSystem#SetEventDispatcher.
func (p *ProviderFileSystem) SetEventDispatcher(dispatcher Dispatcher) error {
	if p.isClosed() {
		return &AlreadyClosedError{What: p.String()}
	}
	p.setDispatcher(dispatcher)
	return nil
}

// Observe details: see FileSystem#Observe. The first subscription starts the snapshot
// loop.
func (p *ProviderFileSystem) Observe(filter string, sink EventSink, state interface{}) (*Observer, error) {
	observer, err := p.observe(p, filter, sink, state)
	if err != nil {
		return nil, err
	}
	p.ensurePolling()
	return observer, nil
}

func (p *ProviderFileSystem) ensurePolling() {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()
	if p.polling {
		return
	}
	p.polling = true
	p.stop = make(chan struct{})
	stop := p.stop
	go p.pollLoop(stop)
	p.addCloser(closerFunc(func() error {
		close(stop)
		return nil
	}))
}

func (p *ProviderFileSystem) pollLoop(stop chan struct{}) {
	previous, err := snapshotProvider(p.fsys)
	if err != nil {
		errorf("%s: snapshot failed: %v", p.String(), err)
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			current, err := snapshotProvider(p.fsys)
			if err != nil {
				if pubErr := p.publish([]Event{newErrorEvent("", err)}); pubErr != nil {
					errorf("%s: error delivery failed: %v", p.String(), pubErr)
				}
				continue
			}
			events := diffSnapshots(previous, current)
			previous = current
			if err := p.publish(events); err != nil {
				errorf("%s: event delivery failed: %v", p.String(), err)
			}
		}
	}
}

// Close stops polling and completes all observers.
func (p *ProviderFileSystem) Close() error {
	return p.closeAll()
}

// A snapshotEntry is the comparable state of one provider entry.
type snapshotEntry struct {
	size    int64
	modTime time.Time
	isDir   bool
}

// snapshotProvider walks the provider and records every entry.
func snapshotProvider(fsys iofs.FS) (map[Path]snapshotEntry, error) {
	snapshot := make(map[Path]snapshotEntry)
	err := iofs.WalkDir(fsys, ".", func(name string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if name == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		snapshot[Path(name)] = snapshotEntry{size: info.Size(), modTime: info.ModTime(), isDir: d.IsDir()}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to snapshot provider")
	}
	return snapshot, nil
}

// diffSnapshots synthesizes Create, Change and Delete events between two snapshots.
func diffSnapshots(previous, current map[Path]snapshotEntry) []Event {
	var events []Event
	for path, state := range current {
		before, existed := previous[path]
		if !existed {
			events = append(events, newCreateEvent(path))
			continue
		}
		if !state.isDir && (state.size != before.size || !state.modTime.Equal(before.modTime)) {
			events = append(events, newChangeEvent(path))
		}
	}
	for path := range previous {
		if _, exists := current[path]; !exists {
			events = append(events, newDeleteEvent(path))
		}
	}
	return events
}

// A providerStream adapts a read-only iofs.File to the Stream contract. Length and
// seeking depend on what the foreign file actually implements.
type providerStream struct {
	file   iofs.File
	path   Path
	share  Share
	pos    int64
	closed bool
}

var _ Stream = (*providerStream)(nil)

func (s *providerStream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, &AlreadyClosedError{What: "Stream " + s.path.String()}
	}
	n, err := s.file.Read(p)
	s.pos += int64(n)
	return n, err
}

func (s *providerStream) ReadByte() (byte, error) {
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

func (s *providerStream) Write(p []byte) (int, error) {
	return 0, &NoAccessError{Path: s.path, Access: WriteAccess}
}

func (s *providerStream) WriteByte(b byte) error {
	return &NoAccessError{Path: s.path, Access: WriteAccess}
}

func (s *providerStream) Seek(offset int64, whence int) (int64, error) {
	if s.closed {
		return 0, &AlreadyClosedError{What: "Stream " + s.path.String()}
	}
	if seeker, ok := s.file.(io.Seeker); ok {
		pos, err := seeker.Seek(offset, whence)
		if err == nil {
			s.pos = pos
		}
		return pos, err
	}
	return 0, &UnsupportedOperationError{Message: "provider stream is not seekable: " + s.path.String()}
}

func (s *providerStream) Position() int64 {
	return s.pos
}

func (s *providerStream) SetPosition(pos int64) error {
	_, err := s.Seek(pos, io.SeekStart)
	return err
}

func (s *providerStream) Length() int64 {
	info, err := s.file.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

func (s *providerStream) SetLength(length int64) error {
	return &NoAccessError{Path: s.path, Access: WriteAccess}
}

func (s *providerStream) Access() Access {
	return ReadAccess
}

func (s *providerStream) Share() Share {
	return s.share
}

func (s *providerStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

// closerFunc adapts a function to io.Closer for the dispose list.
type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}
