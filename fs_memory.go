package vfs

import (
	"strings"
	"sync"
	"time"
)

var _ FileSystem = (*MemoryFileSystem)(nil)

// A MemoryConfig tunes a MemoryFileSystem at construction time.
type MemoryConfig struct {
	// CaseInsensitive folds names for lookups and uniqueness. Listings still report
	// the exact names entries were created with.
	CaseInsensitive bool
	// ModifyWindow is the coalescing window for Change events of a single file.
	// Zero means DefaultModifyWindow.
	ModifyWindow time.Duration
	// StrictTrailingSlash rejects paths with a trailing separator instead of
	// tolerating them.
	StrictTrailingSlash bool
	// Name is used by String and in log lines. Empty means "memfs".
	Name string
}

// A MemoryFileSystem keeps a hierarchical tree of directories and files entirely in
// main memory. It supports any number of concurrent readers and writers, multiple
// simultaneous streams per file with share-mode arbitration, and event emission for
// every mutation. All operations are atomic with respect to each other under one
// tree-level reader-writer lock.
type MemoryFileSystem struct {
	baseFileSystem
	mu   sync.RWMutex
	root *memDir
	cfg  MemoryConfig
}

// NewMemoryFileSystem creates an empty, case sensitive memory filesystem with the
// default modify window.
func NewMemoryFileSystem() *MemoryFileSystem {
	return NewMemoryFileSystemWith(MemoryConfig{})
}

// NewMemoryFileSystemWith creates an empty memory filesystem with the given tuning.
func NewMemoryFileSystemWith(cfg MemoryConfig) *MemoryFileSystem {
	if cfg.Name == "" {
		cfg.Name = "memfs"
	}
	fs := &MemoryFileSystem{cfg: cfg}
	fs.root = &memDir{memBase: memBase{mod: time.Now()}, folded: cfg.CaseInsensitive}
	return fs
}

func (fs *MemoryFileSystem) String() string {
	return fs.cfg.Name
}

// Options advertises the full capability set. The path facet reflects the configured
// case regime and trailing-slash policy.
func (fs *MemoryFileSystem) Options() Option {
	opts := AllOptions()
	sensitivity := CaseSensitive
	if fs.cfg.CaseInsensitive {
		sensitivity = CaseInsensitive
	}
	opts.Path = &PathFacet{Sensitivity: sensitivity, EmptyDirName: !fs.cfg.StrictTrailingSlash}
	return opts
}

// SetEventDispatcher details: see FileSystem#SetEventDispatcher.
func (fs *MemoryFileSystem) SetEventDispatcher(dispatcher Dispatcher) error {
	if fs.isClosed() {
		return &AlreadyClosedError{What: fs.String()}
	}
	fs.setDispatcher(dispatcher)
	return nil
}

// Observe details: see FileSystem#Observe.
func (fs *MemoryFileSystem) Observe(filter string, sink EventSink, state interface{}) (*Observer, error) {
	return fs.observe(fs, filter, sink, state)
}

// Close completes all observers and releases every file's storage.
func (fs *MemoryFileSystem) Close() error {
	err := fs.closeAll()
	fs.mu.Lock()
	releaseTree(fs.root)
	fs.root = &memDir{memBase: memBase{mod: time.Now()}, folded: fs.cfg.CaseInsensitive}
	fs.mu.Unlock()
	return err
}

func releaseTree(d *memDir) {
	for _, name := range d.order {
		switch child := d.children[d.key(name)].(type) {
		case *memDir:
			releaseTree(child)
		case *memFile:
			child.file.release()
		}
	}
}

// ReadDir details: see FileSystem#ReadDir.
func (fs *MemoryFileSystem) ReadDir(path Path) ([]Entry, error) {
	if err := fs.checkPath(path); err != nil {
		return nil, err
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	node, ok := fs.resolve(path)
	if !ok {
		return nil, &DirectoryNotFoundError{Path: path}
	}
	switch n := node.(type) {
	case *memDir:
		entries := make([]Entry, 0, len(n.order))
		for _, name := range n.order {
			entries = append(entries, fs.entryFor(n.children[n.key(name)]))
		}
		return entries, nil
	case *memFile:
		return []Entry{fs.entryFor(n)}, nil
	default:
		return nil, &DirectoryNotFoundError{Path: path}
	}
}

// Stat details: see FileSystem#Stat.
func (fs *MemoryFileSystem) Stat(path Path) (*Entry, error) {
	if err := fs.checkPath(path); err != nil {
		return nil, err
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	node, ok := fs.resolve(path)
	if !ok {
		return nil, nil
	}
	entry := fs.entryFor(node)
	return &entry, nil
}

// MkDirs details: see FileSystem#MkDirs. One Create event is emitted per directory
// that actually came into existence.
func (fs *MemoryFileSystem) MkDirs(path Path) error {
	if err := fs.checkPath(path); err != nil {
		return err
	}
	fs.mu.Lock()
	parent := fs.root
	var events []Event
	var failure error
	for _, name := range path.Names() {
		child := parent.lookup(name)
		if child == nil {
			now := time.Now()
			dir := &memDir{memBase: memBase{name: name, parent: parent, mod: now}}
			parent.link(dir)
			parent.mod = now
			events = append(events, newCreateEvent(fs.pathOf(dir)))
			parent = dir
			continue
		}
		dir, ok := child.(*memDir)
		if !ok {
			failure = &IOError{Message: "a file occupies the path", Path: path}
			break
		}
		parent = dir
	}
	fs.mu.Unlock()
	if err := fs.publish(events); err != nil {
		return err
	}
	return failure
}

// Delete details: see FileSystem#Delete. A recursive delete emits one Delete event
// per node of the subtree, children before their parent.
func (fs *MemoryFileSystem) Delete(path Path, recursive bool) error {
	if err := fs.checkPath(path); err != nil {
		return err
	}
	if path.IsRoot() {
		return &IOError{Message: "cannot delete the root", Path: path}
	}
	fs.mu.Lock()
	node, ok := fs.resolve(path)
	if !ok {
		fs.mu.Unlock()
		return &ResourceNotFoundError{Path: path}
	}
	if dir, isDir := node.(*memDir); isDir && len(dir.order) > 0 && !recursive {
		fs.mu.Unlock()
		return &IOError{Message: "directory not empty", Path: path}
	}
	var events []Event
	fs.deleteSubtree(node, &events)
	parent := node.base().parent
	parent.unlink(node.base().name)
	parent.mod = time.Now()
	node.base().parent = nil
	fs.mu.Unlock()
	return fs.publish(events)
}

// deleteSubtree marks every node of the subtree deleted, bottom up, releasing file
// storage and recording one Delete event per node.
func (fs *MemoryFileSystem) deleteSubtree(node memNode, events *[]Event) {
	if dir, ok := node.(*memDir); ok {
		for _, name := range dir.order {
			fs.deleteSubtree(dir.children[dir.key(name)], events)
		}
	}
	if file, ok := node.(*memFile); ok {
		file.file.release()
	}
	node.base().deleted = true
	*events = append(*events, newDeleteEvent(fs.pathOf(node)))
}

// Rename details: see FileSystem#Rename. One Rename event is emitted for the moved
// node and every descendant, each carrying its own old and new path.
func (fs *MemoryFileSystem) Rename(oldPath Path, newPath Path) error {
	if err := fs.checkPath(oldPath); err != nil {
		return err
	}
	if err := fs.checkPath(newPath); err != nil {
		return err
	}
	if oldPath.IsRoot() || newPath.IsRoot() {
		return &IOError{Message: "cannot move the root", Path: oldPath}
	}
	fs.mu.Lock()
	node, ok := fs.resolve(oldPath)
	if !ok {
		fs.mu.Unlock()
		return &ResourceNotFoundError{Path: oldPath}
	}
	if _, exists := fs.resolve(newPath); exists {
		fs.mu.Unlock()
		return &IOError{Message: "target already exists", Path: newPath}
	}
	parentNode, ok := fs.resolve(newPath.Parent())
	if !ok {
		fs.mu.Unlock()
		return &ResourceNotFoundError{Path: newPath.Parent()}
	}
	newParent, isDir := parentNode.(*memDir)
	if !isDir {
		fs.mu.Unlock()
		return &IOError{Message: "target parent is a file", Path: newPath.Parent()}
	}
	// Refuse to move a directory below itself.
	for cursor := newParent; cursor != nil; cursor = cursor.parent {
		if memNode(cursor) == node {
			fs.mu.Unlock()
			return &IOError{Message: "cannot move a directory below itself", Path: newPath}
		}
	}

	var oldPaths []Path
	var moved []memNode
	collectSubtree(node, &moved)
	for _, n := range moved {
		oldPaths = append(oldPaths, fs.pathOf(n))
	}

	now := time.Now()
	oldParent := node.base().parent
	oldParent.unlink(node.base().name)
	oldParent.mod = now
	node.base().name = newPath.Name()
	node.base().parent = newParent
	newParent.link(node)
	newParent.mod = now
	invalidatePaths(node)

	events := make([]Event, 0, len(moved))
	for i, n := range moved {
		events = append(events, newRenameEvent(oldPaths[i], fs.pathOf(n)))
	}
	fs.mu.Unlock()
	return fs.publish(events)
}

func collectSubtree(node memNode, out *[]memNode) {
	*out = append(*out, node)
	if dir, ok := node.(*memDir); ok {
		for _, name := range dir.order {
			collectSubtree(dir.children[dir.key(name)], out)
		}
	}
}

func invalidatePaths(node memNode) {
	b := node.base()
	b.pathMu.Lock()
	b.pathValid = false
	b.pathMu.Unlock()
	if dir, ok := node.(*memDir); ok {
		for _, name := range dir.order {
			invalidatePaths(dir.children[dir.key(name)])
		}
	}
}

// Open details: see FileSystem#Open. A lookup happens under the read lock; if the
// mode requires creating the file, the read lock is dropped and the write lock taken,
// re-resolving the path because the tree may have changed in between.
func (fs *MemoryFileSystem) Open(path Path, mode Mode, access Access, share Share) (Stream, error) {
	if err := fs.checkPath(path); err != nil {
		return nil, err
	}
	if path.IsRoot() {
		return nil, &IOError{Message: "cannot open the root", Path: path}
	}
	if access == 0 || access&^ReadWriteAccess != 0 {
		return nil, &IOError{Message: "invalid access flags", Path: path}
	}

	fs.mu.RLock()
	node, ok := fs.resolve(path)
	fs.mu.RUnlock()
	if ok {
		file, isFile := node.(*memFile)
		if !isFile {
			return nil, &IOError{Message: "is a directory", Path: path}
		}
		if mode == ModeCreateNew {
			return nil, &FileExistsError{Path: path}
		}
		return file.file.openStream(path, access, share, mode.truncates(), mode == ModeAppend)
	}
	if !mode.requiresCreate() {
		return nil, &ResourceNotFoundError{Path: path}
	}
	if !access.CanWrite() {
		return nil, &NoAccessError{Path: path, Access: WriteAccess}
	}

	fs.mu.Lock()
	// Re-resolve: another goroutine may have created the file while no lock was
	// held.
	node, ok = fs.resolve(path)
	if ok {
		fs.mu.Unlock()
		file, isFile := node.(*memFile)
		if !isFile {
			return nil, &IOError{Message: "is a directory", Path: path}
		}
		if mode == ModeCreateNew {
			return nil, &FileExistsError{Path: path}
		}
		return file.file.openStream(path, access, share, mode.truncates(), mode == ModeAppend)
	}
	parentNode, ok := fs.resolve(path.Parent())
	if !ok {
		fs.mu.Unlock()
		return nil, &DirectoryNotFoundError{Path: path.Parent()}
	}
	parent, isDir := parentNode.(*memDir)
	if !isDir {
		fs.mu.Unlock()
		return nil, &DirectoryNotFoundError{Path: path.Parent()}
	}
	now := time.Now()
	file := &memFile{
		memBase: memBase{name: path.Name(), parent: parent, mod: now},
		file:    newByteFile(fs.cfg.ModifyWindow),
	}
	file.file.onModify = fs.fileModified(file)
	parent.link(file)
	parent.mod = now
	events := []Event{newCreateEvent(fs.pathOf(file))}
	fs.mu.Unlock()

	stream, err := file.file.openStream(path, access, share, false, false)
	if pubErr := fs.publish(events); pubErr != nil && err == nil {
		err = pubErr
	}
	return stream, err
}

// fileModified is the debounced subscriber of a file's storage: it queues one Change
// event for the node's current path.
func (fs *MemoryFileSystem) fileModified(file *memFile) func() {
	return func() {
		fs.mu.RLock()
		if file.deleted {
			fs.mu.RUnlock()
			return
		}
		path := fs.pathOf(file)
		fs.mu.RUnlock()
		if err := fs.publish([]Event{newChangeEvent(path)}); err != nil {
			errorf("%s: change delivery failed: %v", fs.String(), err)
		}
	}
}

// checkPath applies the constructed policy before any resolution happens.
func (fs *MemoryFileSystem) checkPath(path Path) error {
	if fs.isClosed() {
		return &AlreadyClosedError{What: fs.String()}
	}
	if fs.cfg.StrictTrailingSlash && path.HasTrailingSeparator() {
		return &InvalidPathError{Path: path, Message: "trailing separator not allowed"}
	}
	return nil
}

// resolve walks the tree; the caller must hold the tree lock. The empty path resolves
// to the root.
func (fs *MemoryFileSystem) resolve(path Path) (memNode, bool) {
	var node memNode = fs.root
	for _, name := range path.Names() {
		dir, ok := node.(*memDir)
		if !ok {
			return nil, false
		}
		child := dir.lookup(name)
		if child == nil {
			return nil, false
		}
		node = child
	}
	return node, true
}

// pathOf returns the node's full path. The caller must hold the tree lock, read
// suffices; the cache has its own tiny lock because concurrent readers may rebuild it
// at the same time.
func (fs *MemoryFileSystem) pathOf(node memNode) Path {
	b := node.base()
	b.pathMu.Lock()
	if b.pathValid {
		p := b.cachedPath
		b.pathMu.Unlock()
		return p
	}
	b.pathMu.Unlock()
	var names []string
	for n := node; ; {
		nb := n.base()
		if nb.parent == nil {
			break
		}
		names = append(names, nb.name)
		n = nb.parent
	}
	// reverse
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	p := Path(strings.Join(names, PathSeparator))
	b.pathMu.Lock()
	b.cachedPath = p
	b.pathValid = true
	b.pathMu.Unlock()
	return p
}

func (fs *MemoryFileSystem) entryFor(node memNode) Entry {
	switch n := node.(type) {
	case *memFile:
		return Entry{
			FileSystem: fs,
			Path:       fs.pathOf(n),
			Name:       n.name,
			ModTime:    n.file.modTime(),
			Kind:       KindFile,
			Size:       n.file.length(),
		}
	default:
		b := node.base()
		entry := Entry{
			FileSystem: fs,
			Path:       fs.pathOf(node),
			Name:       b.name,
			ModTime:    b.mod,
			Kind:       KindDirectory,
		}
		if b.parent == nil {
			// The root doubles as the ram drive of this filesystem.
			entry.Kind = KindDrive
			entry.Drive = &DriveInfo{Type: "ram", Free: -1, Total: -1, Label: fs.cfg.Name, Format: "memfs"}
		}
		return entry
	}
}

// memNode is a live element of the tree, either a *memDir or a *memFile.
type memNode interface {
	base() *memBase
}

type memBase struct {
	name    string
	parent  *memDir
	mod     time.Time
	deleted bool

	pathMu     sync.Mutex
	cachedPath Path
	pathValid  bool
}

func (b *memBase) base() *memBase {
	return b
}

// A memDir keeps its children in a name-keyed map plus the insertion order, because
// listings must preserve it. Keys are folded when the filesystem is case insensitive;
// the stored nodes keep their exact names.
type memDir struct {
	memBase
	children map[string]memNode
	order    []string
	folded   bool
}

func (d *memDir) key(name string) string {
	if d.folded {
		return strings.ToLower(name)
	}
	return name
}

func (d *memDir) lookup(name string) memNode {
	if d.children == nil {
		return nil
	}
	return d.children[d.key(name)]
}

func (d *memDir) link(child memNode) {
	if d.children == nil {
		d.children = make(map[string]memNode)
	}
	name := child.base().name
	d.children[d.key(name)] = child
	d.order = append(d.order, name)
	if dir, ok := child.(*memDir); ok {
		dir.folded = d.folded
	}
}

func (d *memDir) unlink(name string) {
	if d.children == nil {
		return
	}
	delete(d.children, d.key(name))
	for i, n := range d.order {
		if d.key(n) == d.key(name) {
			d.order = append(d.order[:i], d.order[i+1:]...)
			return
		}
	}
}

type memFile struct {
	memBase
	file *byteFile
}
