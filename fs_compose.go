package vfs

import (
	"sync"
	"sync/atomic"
)

var _ FileSystem = (*ComposeFileSystem)(nil)

// A Component describes one child of a composition: the child filesystem, the
// decoration mask applied to its advertised capabilities and an optional mount path
// translation. Operations on MountPoint/... are rewritten to ChildRoot/... before
// reaching the child; returned entries and events are rewritten back and dropped if
// their child path cannot be re-expressed below the mount point.
type Component struct {
	FileSystem FileSystem
	// Mask reduces the child's advertised capabilities. The zero Option is
	// transparent and keeps the advertisement as is.
	Mask Option
	// MountPoint is the path prefix this component answers below. Empty mounts the
	// child at the composition root.
	MountPoint Path
	// ChildRoot is the prefix prepended on the child side. Empty uses the child's
	// root.
	ChildRoot Path
}

// component is the resolved internal form.
type component struct {
	fs        FileSystem
	effective Option
	mount     Path
	childRoot Path
}

// translateIn rewrites a composition path into the child's namespace. ok is false if
// the path does not lie below the mount point.
func (c *component) translateIn(path Path) (Path, bool) {
	if c.mount.IsRoot() {
		return ConcatPaths(c.childRoot, path), true
	}
	if !path.StartsWith(c.mount) {
		return "", false
	}
	return ConcatPaths(c.childRoot, path.TrimPrefix(c.mount)), true
}

// translateOut rewrites a child path back below the mount point. ok is false if the
// child path lies outside the child root and therefore has no name in the
// composition.
func (c *component) translateOut(path Path) (Path, bool) {
	if !c.childRoot.IsRoot() && !path.StartsWith(c.childRoot) {
		return "", false
	}
	return ConcatPaths(c.mount, path.TrimPrefix(c.childRoot)), true
}

// A ComposeFileSystem unifies an ordered list of child filesystems into one. Its
// capability set is the union of the children's effective capabilities; every
// operation is a deterministic fold over the components in mount order. Entries and
// events surfaced by children are rewritten so callers only ever see the composition.
//
// A composition shares its children: closing it completes its own observers and child
// subscriptions but never closes the children themselves, because several
// compositions may front the same child.
type ComposeFileSystem struct {
	baseFileSystem
	mu         sync.Mutex   // guards mounting
	components atomic.Value // []*component
	name       string
}

// NewComposeFileSystem builds a composition over the given components, in order. The
// order decides which child wins on duplicate names and which child answers an
// operation first.
func NewComposeFileSystem(components ...Component) *ComposeFileSystem {
	c := &ComposeFileSystem{name: "compose"}
	resolved := make([]*component, 0, len(components))
	for _, comp := range components {
		resolved = append(resolved, resolveComponent(comp))
	}
	c.components.Store(resolved)
	return c
}

// Decorate reduces a single child to the capabilities permitted by mask. It is a
// composition of exactly one component.
func Decorate(child FileSystem, mask Option) *ComposeFileSystem {
	fs := NewComposeFileSystem(Component{FileSystem: child, Mask: mask})
	fs.name = "decorate"
	return fs
}

func resolveComponent(comp Component) *component {
	advertised := comp.FileSystem.Options()
	effective := advertised.Intersect(comp.Mask)
	mount := comp.MountPoint
	childRoot := comp.ChildRoot
	if effective.MountPath != nil {
		if mount.IsRoot() {
			mount = effective.MountPath.Parent
		}
		if childRoot.IsRoot() {
			childRoot = effective.MountPath.Child
		}
	}
	return &component{
		fs:        comp.FileSystem,
		effective: effective,
		mount:     mount,
		childRoot: childRoot,
	}
}

// Mount attaches a further child at runtime, behind the already mounted components.
func (c *ComposeFileSystem) Mount(mountPoint Path, child FileSystem, mask Option) error {
	if c.isClosed() {
		return &AlreadyClosedError{What: c.String()}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.snapshot()
	next := make([]*component, 0, len(old)+1)
	next = append(next, old...)
	next = append(next, resolveComponent(Component{FileSystem: child, Mask: mask, MountPoint: mountPoint}))
	c.components.Store(next)
	debugf("%s: mounted %s at %s", c.String(), child.String(), mountPoint.String())
	return nil
}

func (c *ComposeFileSystem) snapshot() []*component {
	if v := c.components.Load(); v != nil {
		return v.([]*component)
	}
	return nil
}

func (c *ComposeFileSystem) String() string {
	return c.name
}

// Options returns the union of the components' effective capabilities, plus the mount
// and event dispatcher facets of the composition itself.
func (c *ComposeFileSystem) Options() Option {
	opts := Option{
		Mount:   &MountFacet{CanMount: true},
		Observe: &ObserveFacet{CanSetEventDispatcher: true},
	}
	for _, comp := range c.snapshot() {
		opts = opts.Union(comp.effective)
	}
	return opts
}

// SetEventDispatcher details: see FileSystem#SetEventDispatcher.
func (c *ComposeFileSystem) SetEventDispatcher(dispatcher Dispatcher) error {
	if c.isClosed() {
		return &AlreadyClosedError{What: c.String()}
	}
	c.setDispatcher(dispatcher)
	return nil
}

// Close completes the composition's observers, which also tears down their child
// subscriptions. The children stay untouched.
func (c *ComposeFileSystem) Close() error {
	return c.closeAll()
}

// fold is the common fan-out skeleton: it walks the capable components in order and
// categorizes each child result, so a terminal failure can distinguish "nobody
// supports this" from "everybody supported it but nothing was found". Unexpected
// child errors abort the fold and propagate untouched.
type fold struct {
	supported bool
	found     bool
}

// step categorizes err. done is true for unexpected errors, which the caller returns
// as is.
func (f *fold) step(err error) (done bool) {
	switch {
	case err == nil:
		f.supported = true
		f.found = true
		return false
	case IsNotSupported(err):
		return false
	case IsNotFound(err):
		f.supported = true
		return false
	default:
		return true
	}
}

// finish translates the categorization into the terminal error of the fan-out.
func (f *fold) finish(path Path, notFound error) error {
	if !f.supported {
		return &UnsupportedOperationError{Message: "no component supports the operation on " + path.String()}
	}
	if !f.found {
		return notFound
	}
	return nil
}

// ReadDir details: see FileSystem#ReadDir. Entries of all browse-capable components
// are merged; on duplicate names the first component wins. Virtual directories are
// synthesized for mount points below path.
func (c *ComposeFileSystem) ReadDir(path Path) ([]Entry, error) {
	if c.isClosed() {
		return nil, &AlreadyClosedError{What: c.String()}
	}
	components := c.snapshot()
	var entries []Entry
	seen := make(map[string]bool)
	f := &fold{}
	for _, comp := range components {
		if virtual, ok := c.virtualChildName(comp, path); ok {
			f.supported = true
			f.found = true
			if !seen[virtual] {
				seen[virtual] = true
				entries = append(entries, c.mountEntry(path.Child(virtual), components))
			}
			continue
		}
		if !comp.effective.CanBrowse() {
			continue
		}
		childPath, ok := comp.translateIn(path)
		if !ok {
			continue
		}
		childEntries, err := comp.fs.ReadDir(childPath)
		if f.step(err) {
			return nil, err
		}
		if err != nil {
			continue
		}
		for _, entry := range childEntries {
			parentPath, ok := comp.translateOut(entry.Path)
			if !ok {
				continue
			}
			if seen[entry.Name] {
				continue
			}
			seen[entry.Name] = true
			entry.FileSystem = c
			entry.Path = parentPath
			entries = append(entries, entry)
		}
	}
	if err := f.finish(path, &DirectoryNotFoundError{Path: path}); err != nil {
		return nil, err
	}
	return entries, nil
}

// virtualChildName returns the next mount segment below path if the component's mount
// point lies strictly below it.
func (c *ComposeFileSystem) virtualChildName(comp *component, path Path) (string, bool) {
	if comp.mount.IsRoot() {
		return "", false
	}
	if !comp.mount.StartsWith(path) {
		return "", false
	}
	names := comp.mount.Names()
	depth := path.NameCount()
	if depth >= len(names) {
		return "", false
	}
	return names[depth], true
}

// mountEntry synthesizes the entry of a virtual directory, listing which children are
// reachable below it.
func (c *ComposeFileSystem) mountEntry(path Path, components []*component) Entry {
	var assignments []MountAssignment
	for _, comp := range components {
		if comp.mount.StartsWith(path) && !comp.mount.IsRoot() {
			assignments = append(assignments, MountAssignment{Path: comp.mount, FileSystem: comp.fs})
		}
	}
	return Entry{
		FileSystem: c,
		Path:       path,
		Name:       path.Name(),
		Kind:       KindMount,
		Mounts:     assignments,
	}
}

// Stat details: see FileSystem#Stat. The first component which knows the path wins.
func (c *ComposeFileSystem) Stat(path Path) (*Entry, error) {
	if c.isClosed() {
		return nil, &AlreadyClosedError{What: c.String()}
	}
	if path.IsRoot() {
		return &Entry{FileSystem: c, Path: "", Kind: KindDirectory}, nil
	}
	components := c.snapshot()
	f := &fold{}
	for _, comp := range components {
		if _, ok := c.virtualChildName(comp, path.Parent()); ok && comp.mount.StartsWith(path) {
			entry := c.mountEntry(path, components)
			return &entry, nil
		}
		if !comp.effective.CanStat() {
			continue
		}
		childPath, ok := comp.translateIn(path)
		if !ok {
			continue
		}
		entry, err := comp.fs.Stat(childPath)
		if f.step(err) {
			return nil, err
		}
		if err != nil || entry == nil {
			continue
		}
		parentPath, ok := comp.translateOut(entry.Path)
		if !ok {
			continue
		}
		rewritten := *entry
		rewritten.FileSystem = c
		rewritten.Path = parentPath
		return &rewritten, nil
	}
	if !f.supported {
		return nil, &UnsupportedOperationError{Message: "no component supports Stat on " + path.String()}
	}
	return nil, nil
}

// Open details: see FileSystem#Open. The first component which opens the stream wins;
// components which do not know the file keep the fan-out going.
func (c *ComposeFileSystem) Open(path Path, mode Mode, access Access, share Share) (Stream, error) {
	if c.isClosed() {
		return nil, &AlreadyClosedError{What: c.String()}
	}
	f := &fold{}
	for _, comp := range c.snapshot() {
		if !c.openCapable(comp, mode, access) {
			continue
		}
		childPath, ok := comp.translateIn(path)
		if !ok {
			continue
		}
		stream, err := comp.fs.Open(childPath, mode, access, share)
		if f.step(err) {
			return nil, err
		}
		if err != nil {
			continue
		}
		return stream, nil
	}
	if !f.supported {
		return nil, &UnsupportedOperationError{Message: "no component supports Open on " + path.String()}
	}
	return nil, &ResourceNotFoundError{Path: path}
}

func (c *ComposeFileSystem) openCapable(comp *component, mode Mode, access Access) bool {
	opts := comp.effective
	if !opts.CanOpen() {
		return false
	}
	if access.CanRead() && !opts.CanRead() {
		return false
	}
	if access.CanWrite() && !opts.CanWrite() {
		return false
	}
	if mode.requiresCreate() && !opts.CanCreateFile() {
		return false
	}
	return true
}

// MkDirs details: see FileSystem#MkDirs. The first capable component which succeeds
// makes the whole operation succeed.
func (c *ComposeFileSystem) MkDirs(path Path) error {
	if c.isClosed() {
		return &AlreadyClosedError{What: c.String()}
	}
	f := &fold{}
	for _, comp := range c.snapshot() {
		if !comp.effective.CanCreateDirectory() {
			continue
		}
		childPath, ok := comp.translateIn(path)
		if !ok {
			continue
		}
		err := comp.fs.MkDirs(childPath)
		if f.step(err) {
			return err
		}
		if err == nil {
			return nil
		}
	}
	return f.finish(path, &DirectoryNotFoundError{Path: path})
}

// Delete details: see FileSystem#Delete. Same fan-out rule as MkDirs.
func (c *ComposeFileSystem) Delete(path Path, recursive bool) error {
	if c.isClosed() {
		return &AlreadyClosedError{What: c.String()}
	}
	f := &fold{}
	for _, comp := range c.snapshot() {
		if !comp.effective.CanDelete() {
			continue
		}
		childPath, ok := comp.translateIn(path)
		if !ok {
			continue
		}
		err := comp.fs.Delete(childPath, recursive)
		if f.step(err) {
			return err
		}
		if err == nil {
			return nil
		}
	}
	return f.finish(path, &ResourceNotFoundError{Path: path})
}

// Rename details: see FileSystem#Rename. Both paths must translate into the same
// component; moving across mount points is not supported.
func (c *ComposeFileSystem) Rename(oldPath Path, newPath Path) error {
	if c.isClosed() {
		return &AlreadyClosedError{What: c.String()}
	}
	f := &fold{}
	crossMount := false
	for _, comp := range c.snapshot() {
		if !comp.effective.CanMove() {
			continue
		}
		childOld, okOld := comp.translateIn(oldPath)
		childNew, okNew := comp.translateIn(newPath)
		if okOld != okNew {
			crossMount = true
			continue
		}
		if !okOld {
			continue
		}
		err := comp.fs.Rename(childOld, childNew)
		if f.step(err) {
			return err
		}
		if err == nil {
			return nil
		}
	}
	if !f.supported && crossMount {
		return &UnsupportedOperationError{
			Message: "cannot move across mount points: " + oldPath.String() + " -> " + newPath.String(),
		}
	}
	return f.finish(oldPath, &ResourceNotFoundError{Path: oldPath})
}

// Observe details: see FileSystem#Observe. The composition subscribes a multiplexing
// adapter to every observe-capable component; events arriving through the adapter are
// rewritten to carry the composition and the composition's observer handle, filtered
// by the caller's glob and delivered through the installed dispatcher. Closing the
// returned handle also closes every child subscription and aggregates their errors.
func (c *ComposeFileSystem) Observe(filter string, sink EventSink, state interface{}) (*Observer, error) {
	if c.isClosed() {
		return nil, &AlreadyClosedError{What: c.String()}
	}
	observer, err := newObserver(c, filter, sink, state)
	if err != nil {
		return nil, err
	}
	observer.unregister = c.observers.remove

	subscribed := 0
	for _, comp := range c.snapshot() {
		if !comp.effective.CanObserve() {
			continue
		}
		adapter := &composeSink{compose: c, observer: observer, comp: comp}
		child, err := comp.fs.Observe(MatchAll, adapter, nil)
		if err != nil {
			if IsNotSupported(err) {
				continue
			}
			observer.Close()
			return nil, err
		}
		observer.attach(child)
		subscribed++
	}
	if subscribed == 0 {
		return nil, &UnsupportedOperationError{Message: "no component supports Observe"}
	}
	c.observers.add(observer)
	if err := observer.deliver(retarget(newStartEvent(), observer, nil)); err != nil {
		return observer, err
	}
	debugf("%s: observer %s multiplexes %d child subscriptions", c.String(), observer.ID(), subscribed)
	return observer, nil
}

// A composeSink is the adapter between one component's event feed and a composition
// observer. Child Start events are swallowed, because the composition emits exactly
// one Start itself; everything else is retargeted, filtered and dispatched.
type composeSink struct {
	compose  *ComposeFileSystem
	observer *Observer
	comp     *component
}

func (s *composeSink) OnEvent(event Event) {
	if _, isStart := event.(*StartEvent); isStart {
		return
	}
	if s.observer.isClosed() {
		return
	}
	rewritten := retarget(event, s.observer, s.comp.translateOut)
	if rewritten == nil {
		return
	}
	if !s.observer.Matches(rewritten.Path()) {
		return
	}
	dispatcher := s.observer.dispatcher
	if dispatcher == nil {
		dispatcher = s.compose.currentDispatcher()
	}
	if err := dispatcher.Dispatch(s.observer, rewritten); err != nil {
		errorf("%s: delivery to observer %s failed: %v", s.compose.String(), s.observer.ID(), err)
	}
}

func (s *composeSink) OnError(err error) {
	if s.observer.isClosed() {
		return
	}
	if delivery := s.observer.safeOnError(err); delivery != nil {
		errorf("%s: observer %s sink failed in OnError: %v", s.compose.String(), s.observer.ID(), delivery)
	}
}

// OnCompleted of a child is ignored: the composition completes the caller's sink when
// its own handle or the composition itself is closed.
func (s *composeSink) OnCompleted() {}
