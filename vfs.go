// Package vfs provides a capability driven virtual filesystem abstraction: a single
// interface through which callers browse directories, open byte streams, create, delete
// and move entries, observe change events and compose multiple backing filesystems into
// one. It is meant to be embedded into applications which want to treat disparate
// sources (in-memory trees, embedded resources, real disk, foreign providers, unions of
// the above) identically.
package vfs

import (
	"io"
	"time"
)

// The PathSeparator is always / and platform independent.
const PathSeparator = "/"

// MaxFileLength is the largest byte length a single file may have. Larger files are out
// of scope for this library and rejected with an *IOError.
const MaxFileLength = int64(1<<31 - 1)

// A Mode tells Open how to treat existing and missing files.
type Mode int32

const (
	// ModeOpen requires an existing file.
	ModeOpen Mode = iota
	// ModeOpenOrCreate opens an existing file or creates an empty one.
	ModeOpenOrCreate
	// ModeCreate creates a new file or truncates an existing one.
	ModeCreate
	// ModeCreateNew creates a new file and fails with *FileExistsError if one exists.
	ModeCreateNew
	// ModeTruncate requires an existing file and discards its contents.
	ModeTruncate
	// ModeAppend opens or creates a file and positions the stream at its end.
	ModeAppend
)

// requiresCreate tells if the mode may bring a missing file into existence.
func (m Mode) requiresCreate() bool {
	return m == ModeOpenOrCreate || m == ModeCreate || m == ModeCreateNew || m == ModeAppend
}

// truncates tells if the mode discards existing contents.
func (m Mode) truncates() bool {
	return m == ModeCreate || m == ModeTruncate
}

// An Access declares which I/O directions a Stream is used for.
type Access uint8

const (
	// ReadAccess permits Read and ReadByte.
	ReadAccess Access = 1 << iota
	// WriteAccess permits Write, WriteByte and SetLength.
	WriteAccess
)

// ReadWriteAccess permits both directions.
const ReadWriteAccess = ReadAccess | WriteAccess

// CanRead tells if the read bit is set.
func (a Access) CanRead() bool {
	return a&ReadAccess != 0
}

// CanWrite tells if the write bit is set.
func (a Access) CanWrite() bool {
	return a&WriteAccess != 0
}

func (a Access) String() string {
	switch a {
	case ReadAccess:
		return "read"
	case WriteAccess:
		return "write"
	case ReadWriteAccess:
		return "read/write"
	default:
		return "none"
	}
}

// A Share declares which accesses other streams are permitted to hold concurrently on
// the same file while this stream is open.
type Share uint8

const (
	// ShareNone permits no concurrent stream at all.
	ShareNone Share = 0
	// ShareRead permits concurrent readers.
	ShareRead Share = Share(ReadAccess)
	// ShareWrite permits concurrent writers.
	ShareWrite Share = Share(WriteAccess)
	// ShareReadWrite permits any concurrent stream.
	ShareReadWrite = ShareRead | ShareWrite
)

// Permits tells if the share mask allows another stream with the given access.
func (s Share) Permits(a Access) bool {
	return Share(a)&s == Share(a)
}

// A Stream is a positioned view over the bytes of a single file. Multiple streams may
// be open against the same file at the same time, arbitrated by the Share declarations
// given at Open. A Stream is not safe for concurrent use by multiple goroutines; open
// one stream per goroutine instead, which is explicitly supported.
type Stream interface {
	io.Reader
	io.ByteReader
	io.Writer
	io.ByteWriter
	io.Seeker
	io.Closer

	// Position returns the current raw offset.
	Position() int64

	// SetPosition moves the raw offset. The position may exceed the current length, in
	// which case a subsequent write zero-fills the gap.
	SetPosition(pos int64) error

	// Length returns the current byte length of the underlying file.
	Length() int64

	// SetLength truncates or zero-extends the underlying file and clamps the position
	// to the new length. Requires write access.
	SetLength(length int64) error

	// Access returns the declared access of this stream.
	Access() Access

	// Share returns the declared share mask of this stream.
	Share() Share
}

// An EventSink receives the events of an observed filesystem. See FileSystem#Observe.
//
// A sink which panics inside OnEvent gets the failure reported through its own OnError.
// If OnError panics as well, both failures are combined into an *AggregateError which
// is returned by the operation that produced the event (or accumulated by a background
// dispatcher).
type EventSink interface {
	// OnEvent delivers the next event. Per observer, events arrive in the order they
	// were produced on the originating filesystem.
	OnEvent(event Event)

	// OnError reports a delivery or backend failure. The subscription stays alive.
	OnError(err error)

	// OnCompleted is called exactly once, when the observer or its filesystem is
	// closed. No further calls follow.
	OnCompleted()
}

// The FileSystem interface is the core contract to provide access to hierarchical
// structures using a compound key logic.
//
// Design decisions
//
// There are the following opinionated decisions:
//
//  * It is an interface, because it cannot be expected to have a reasonable code reuse
//    between implementations but we need a common behavior.
//
//  * Capabilities are values, not methods-that-fail: every implementation advertises
//    what it can do through Options(), and compositions compute their surface from
//    that. Operations outside the advertised set return *UnsupportedOperationError.
//
//  * It contains both read and write contracts, because a distinction between
//    read-only and write-only filesystems are edge cases, expressed through the
//    Option facets instead of separate interfaces.
//
//  * Every implementation must be safe for concurrent use. Mutations on a single
//    filesystem are linearizable with respect to one another.
type FileSystem interface {
	// Options returns the advertised capability set. The returned value is a
	// snapshot; mutating it has no effect on the filesystem.
	Options() Option

	// ReadDir resolves the path and returns a snapshot of the children if it denotes
	// a directory, or a single-element list if it denotes a file. The listing order
	// is the insertion order of the directory. A missing path yields a
	// *DirectoryNotFoundError.
	ReadDir(path Path) ([]Entry, error)

	// Stat resolves the path and returns a snapshot of the entry. The empty path
	// returns the synthetic root directory entry. A missing path returns (nil, nil):
	// absence is an answer, not a failure.
	Stat(path Path) (*Entry, error)

	// Open returns a stream over the file at path. The mode decides how existing and
	// missing files are treated, access declares the I/O directions of the new stream
	// and share declares what concurrent streams are permitted while it is open. The
	// new stream is admitted only if every already open stream's share mask permits
	// the requested access and the requested share mask permits every already open
	// stream's access; otherwise a *NoAccessError is returned. LocalFileSystem and
	// ProviderFileSystem record the share mask on the stream without arbitrating it.
	Open(path Path, mode Mode, access Access, share Share) (Stream, error)

	// MkDirs creates the directory at path including all missing parents. It succeeds
	// silently if the directory already exists and fails with an *IOError if a file
	// occupies one of the segments.
	MkDirs(path Path) error

	// Delete removes the entry at path. Deleting a non-empty directory requires
	// recursive, otherwise an *IOError is returned. The root cannot be deleted.
	Delete(path Path, recursive bool) error

	// Rename moves the entry from oldPath to newPath. It refuses to overwrite an
	// existing entry and to move the root.
	Rename(oldPath Path, newPath Path) error

	// Observe subscribes the sink to the events of this filesystem. The filter is a
	// glob over /-separated paths where * matches within a segment, ** matches any
	// number of segments and ? matches a single character; "**" accepts everything.
	// state is handed back through Observer#State and may be nil. A Start event is
	// delivered synchronously before Observe returns. Closing the returned handle
	// unsubscribes and completes the sink.
	Observe(filter string, sink EventSink, state interface{}) (*Observer, error)

	// SetEventDispatcher installs the dispatcher used to deliver events to observers,
	// or restores the inline dispatcher when nil is given.
	SetEventDispatcher(dispatcher Dispatcher) error

	// Close releases the filesystem. All attached observers are completed and all
	// registered resources are released. Subsequent operations fail with an
	// *AlreadyClosedError.
	io.Closer

	// String returns a short description of this filesystem.
	String() string
}

// An EntryKind discriminates the variants of an Entry.
type EntryKind int32

const (
	// KindFile is a regular file carrying a byte length.
	KindFile EntryKind = iota
	// KindDirectory is a container of further entries.
	KindDirectory
	// KindDrive is a root with capacity information.
	KindDrive
	// KindMount is a virtual directory synthesized by a composition for the segments
	// of a mount path.
	KindMount
)

// An Entry is an immutable snapshot of a filesystem node at a point in time. It has no
// lifecycle: holding an Entry keeps nothing alive and the described node may be gone by
// the time the Entry is inspected.
type Entry struct {
	// FileSystem is the filesystem which produced the snapshot. Compositions rewrite
	// this reference, so callers always see the outermost filesystem they talked to.
	FileSystem FileSystem
	// Path is the full path of the entry within FileSystem.
	Path Path
	// Name is the last path segment, empty only for the root.
	Name string
	// ModTime is the last modification time.
	ModTime time.Time
	// AccessTime is the last access time, if the backend tracks one.
	AccessTime time.Time
	// Kind discriminates the variant.
	Kind EntryKind
	// Size is the byte length for KindFile entries.
	Size int64
	// Drive carries capacity information for KindDrive entries.
	Drive *DriveInfo
	// Mounts carries the child assignments for KindMount entries.
	Mounts []MountAssignment
}

// IsDir tells if the entry can be listed with ReadDir.
func (e *Entry) IsDir() bool {
	return e.Kind == KindDirectory || e.Kind == KindDrive || e.Kind == KindMount
}

// A MountAssignment names a child filesystem attached below a mount path.
type MountAssignment struct {
	Path       Path
	FileSystem FileSystem
}
