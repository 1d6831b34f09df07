package vfs

import (
	"sort"
	"time"
)

var _ FileSystem = (*EmbeddedFileSystem)(nil)

// An EmbeddedFileSystem serves a fixed, flat namespace of named byte blobs, like
// resources compiled into a binary. It only lists, stats and opens for reading; no
// directory structure is synthesized and every other capability reports
// *UnsupportedOperationError.
type EmbeddedFileSystem struct {
	baseFileSystem
	files map[string]*byteFile
	order []string
	mod   time.Time
}

// NewEmbeddedFileSystem creates a read-only filesystem over the given resources. The
// byte slices are used as is and must not be mutated afterwards.
func NewEmbeddedFileSystem(resources map[string][]byte) *EmbeddedFileSystem {
	e := &EmbeddedFileSystem{
		files: make(map[string]*byteFile, len(resources)),
		mod:   time.Now(),
	}
	for name, data := range resources {
		file := newByteFile(0)
		file.data = data
		e.files[name] = file
		e.order = append(e.order, name)
	}
	sort.Strings(e.order)
	return e
}

func (e *EmbeddedFileSystem) String() string {
	return "embedded"
}

// Options advertises the read-only listing surface.
func (e *EmbeddedFileSystem) Options() Option {
	return Option{
		Browse: &BrowseFacet{CanBrowse: true, CanStat: true},
		Open:   &OpenFacet{CanOpen: true, CanRead: true},
		Path:   &PathFacet{Sensitivity: CaseSensitive},
	}
}

// ReadDir details: see FileSystem#ReadDir. The root is the only directory, because the
// namespace is flat; a resource name yields its single file entry.
func (e *EmbeddedFileSystem) ReadDir(path Path) ([]Entry, error) {
	if e.isClosed() {
		return nil, &AlreadyClosedError{What: e.String()}
	}
	if !path.IsRoot() {
		if file, ok := e.files[path.Normalized()]; ok {
			return []Entry{e.entryFor(path.Normalized(), file)}, nil
		}
		return nil, &DirectoryNotFoundError{Path: path}
	}
	entries := make([]Entry, 0, len(e.order))
	for _, name := range e.order {
		entries = append(entries, e.entryFor(name, e.files[name]))
	}
	return entries, nil
}

// Stat details: see FileSystem#Stat.
func (e *EmbeddedFileSystem) Stat(path Path) (*Entry, error) {
	if e.isClosed() {
		return nil, &AlreadyClosedError{What: e.String()}
	}
	if path.IsRoot() {
		return &Entry{FileSystem: e, Path: "", Kind: KindDirectory, ModTime: e.mod}, nil
	}
	file, ok := e.files[path.Normalized()]
	if !ok {
		return nil, nil
	}
	entry := e.entryFor(path.Normalized(), file)
	return &entry, nil
}

func (e *EmbeddedFileSystem) entryFor(name string, file *byteFile) Entry {
	return Entry{
		FileSystem: e,
		Path:       Path(name),
		Name:       name,
		ModTime:    e.mod,
		Kind:       KindFile,
		Size:       file.length(),
	}
}

// Open details: see FileSystem#Open. Only ModeOpen with plain read access is
// supported; share arbitration between concurrent readers still applies.
func (e *EmbeddedFileSystem) Open(path Path, mode Mode, access Access, share Share) (Stream, error) {
	if e.isClosed() {
		return nil, &AlreadyClosedError{What: e.String()}
	}
	if mode != ModeOpen || access != ReadAccess {
		return nil, &UnsupportedOperationError{Message: "embedded resources are read-only: " + path.String()}
	}
	file, ok := e.files[path.Normalized()]
	if !ok {
		return nil, &ResourceNotFoundError{Path: path}
	}
	return file.openStream(path, access, share, false, false)
}

// MkDirs details: see FileSystem#MkDirs.
func (e *EmbeddedFileSystem) MkDirs(path Path) error {
	return &UnsupportedOperationError{Message: "embedded resources are read-only"}
}

// Delete details: see FileSystem#Delete.
func (e *EmbeddedFileSystem) Delete(path Path, recursive bool) error {
	return &UnsupportedOperationError{Message: "embedded resources are read-only"}
}

// Rename details: see FileSystem#Rename.
func (e *EmbeddedFileSystem) Rename(oldPath Path, newPath Path) error {
	return &UnsupportedOperationError{Message: "embedded resources are read-only"}
}

// Observe details: see FileSystem#Observe. The namespace never changes, so there is
// nothing to observe.
func (e *EmbeddedFileSystem) Observe(filter string, sink EventSink, state interface{}) (*Observer, error) {
	return nil, &UnsupportedOperationError{Message: "embedded resources emit no events"}
}

// SetEventDispatcher details: see FileSystem#SetEventDispatcher.
func (e *EmbeddedFileSystem) SetEventDispatcher(dispatcher Dispatcher) error {
	return &UnsupportedOperationError{Message: "embedded resources emit no events"}
}

// Close releases the filesystem.
func (e *EmbeddedFileSystem) Close() error {
	return e.closeAll()
}
