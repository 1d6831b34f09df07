package vfs

import "time"

// An Event describes a change observed on a filesystem. Events are immutable values;
// compositions deliver rewritten copies which carry the composition's observer and the
// translated path.
type Event interface {
	// Path returns the affected path, or the empty path if the event is not bound to
	// one (Start, some Error events). Events without a path are delivered to every
	// observer regardless of its filter.
	Path() Path

	// Time returns when the event was produced.
	Time() time.Time

	// Observer returns the handle the event is delivered to, or nil before delivery.
	Observer() *Observer

	// String returns a short description, e.g. "CREATE /a/b".
	String() string
}

type eventBase struct {
	observer *Observer
	time     time.Time
	path     Path
}

func (e eventBase) Path() Path {
	return e.path
}

func (e eventBase) Time() time.Time {
	return e.time
}

func (e eventBase) Observer() *Observer {
	return e.observer
}

// A StartEvent is delivered exactly once per subscription, before any other event.
type StartEvent struct {
	eventBase
}

func (e *StartEvent) String() string {
	return "START"
}

// A CreateEvent tells that a new entry appeared at Path.
type CreateEvent struct {
	eventBase
}

func (e *CreateEvent) String() string {
	return "CREATE " + e.path.String()
}

// A ChangeEvent tells that the contents of the file at Path were modified. Rapid
// modifications are coalesced by the producing filesystem.
type ChangeEvent struct {
	eventBase
}

func (e *ChangeEvent) String() string {
	return "CHANGE " + e.path.String()
}

// A DeleteEvent tells that the entry at Path is gone.
type DeleteEvent struct {
	eventBase
}

func (e *DeleteEvent) String() string {
	return "DELETE " + e.path.String()
}

// A RenameEvent tells that an entry moved. Path returns the new path; OldPath the
// previous one. A moved directory produces one RenameEvent per relocated node.
type RenameEvent struct {
	eventBase
	oldPath Path
}

// OldPath returns the path the entry had before the move.
func (e *RenameEvent) OldPath() Path {
	return e.oldPath
}

// NewPath returns the path the entry has now, identical to Path.
func (e *RenameEvent) NewPath() Path {
	return e.path
}

func (e *RenameEvent) String() string {
	return "RENAME " + e.oldPath.String() + " -> " + e.path.String()
}

// An ErrorEvent reports a backend failure to the observers, e.g. a broken native
// watcher.
type ErrorEvent struct {
	eventBase
	cause error
}

// Cause returns the underlying failure.
func (e *ErrorEvent) Cause() error {
	return e.cause
}

func (e *ErrorEvent) String() string {
	return "ERROR " + e.cause.Error()
}

func newStartEvent() Event {
	return &StartEvent{eventBase{time: time.Now()}}
}

func newCreateEvent(path Path) Event {
	return &CreateEvent{eventBase{time: time.Now(), path: path}}
}

func newChangeEvent(path Path) Event {
	return &ChangeEvent{eventBase{time: time.Now(), path: path}}
}

func newDeleteEvent(path Path) Event {
	return &DeleteEvent{eventBase{time: time.Now(), path: path}}
}

func newRenameEvent(oldPath, newPath Path) Event {
	return &RenameEvent{eventBase{time: time.Now(), path: newPath}, oldPath}
}

func newErrorEvent(path Path, cause error) Event {
	return &ErrorEvent{eventBase{time: time.Now(), path: path}, cause}
}

// retarget returns a copy of e bound to the given observer, with all carried paths put
// through translate. translate may be nil for identity. A failed translation (ok false)
// drops a Create, Change or Delete event and returns nil. A Rename is dropped only if
// both of its paths fail to translate; Start and Error events are never dropped.
func retarget(e Event, observer *Observer, translate func(Path) (Path, bool)) Event {
	identity := func(p Path) (Path, bool) { return p, true }
	if translate == nil {
		translate = identity
	}
	switch ev := e.(type) {
	case *StartEvent:
		return &StartEvent{eventBase{observer, ev.time, ev.path}}
	case *CreateEvent:
		p, ok := translate(ev.path)
		if !ok {
			return nil
		}
		return &CreateEvent{eventBase{observer, ev.time, p}}
	case *ChangeEvent:
		p, ok := translate(ev.path)
		if !ok {
			return nil
		}
		return &ChangeEvent{eventBase{observer, ev.time, p}}
	case *DeleteEvent:
		p, ok := translate(ev.path)
		if !ok {
			return nil
		}
		return &DeleteEvent{eventBase{observer, ev.time, p}}
	case *RenameEvent:
		oldPath, okOld := translate(ev.oldPath)
		newPath, okNew := translate(ev.path)
		if !okOld && !okNew {
			return nil
		}
		return &RenameEvent{eventBase{observer, ev.time, newPath}, oldPath}
	case *ErrorEvent:
		p, _ := translate(ev.path)
		return &ErrorEvent{eventBase{observer, ev.time, p}, ev.cause}
	default:
		return nil
	}
}
