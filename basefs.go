package vfs

import (
	"io"
	"sync"
)

// baseFileSystem is the lifecycle plumbing every filesystem of this package embeds:
// a dispose list of attached resources, the copy-on-write observer collection and the
// installed dispatcher. Closing the base completes all observers and releases the
// attached resources in reverse attach order.
type baseFileSystem struct {
	mu         sync.Mutex
	closed     bool
	closers    []io.Closer
	observers  observerList
	dispatcher Dispatcher
}

// addCloser attaches a resource which is released when the filesystem closes.
func (b *baseFileSystem) addCloser(c io.Closer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closers = append(b.closers, c)
}

func (b *baseFileSystem) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// setDispatcher installs the delivery strategy, nil restores the inline default.
func (b *baseFileSystem) setDispatcher(d Dispatcher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dispatcher = d
}

func (b *baseFileSystem) currentDispatcher() Dispatcher {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dispatcher == nil {
		return defaultDispatcher
	}
	return b.dispatcher
}

// observe compiles the filter, registers the handle and emits the Start event
// synchronously, as every filesystem of this package does it. owner is the filesystem
// the handle reports through Observer#FileSystem.
func (b *baseFileSystem) observe(owner FileSystem, filter string, sink EventSink, state interface{}) (*Observer, error) {
	if b.isClosed() {
		return nil, &AlreadyClosedError{What: owner.String()}
	}
	observer, err := newObserver(owner, filter, sink, state)
	if err != nil {
		return nil, err
	}
	observer.unregister = b.observers.remove
	b.observers.add(observer)
	if err := observer.deliver(retarget(newStartEvent(), observer, nil)); err != nil {
		return observer, err
	}
	debugf("%s: observer %s subscribed with filter %q", owner.String(), observer.ID(), filter)
	return observer, nil
}

// publish delivers the events of one operation to every matching observer, in the
// order they were produced. Delivery failures (a sink whose OnError panicked as well)
// are returned as is when there is one and combined into an *AggregateError when there
// are several; the mutation itself has already happened when publish runs.
func (b *baseFileSystem) publish(events []Event) error {
	if len(events) == 0 {
		return nil
	}
	observers := b.observers.snapshot()
	if len(observers) == 0 {
		return nil
	}
	fallback := b.currentDispatcher()
	var errs []error
	for _, event := range events {
		for _, observer := range observers {
			if observer.isClosed() || !observer.Matches(event.Path()) {
				continue
			}
			dispatcher := observer.dispatcher
			if dispatcher == nil {
				dispatcher = fallback
			}
			if err := dispatcher.Dispatch(observer, retarget(event, observer, nil)); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return aggregate(errs)
}

// closeAll marks the filesystem closed, completes the observers in reverse attach
// order and releases the dispose list, combining all failures.
func (b *baseFileSystem) closeAll() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	closers := b.closers
	b.closers = nil
	b.mu.Unlock()

	var errs []error
	observers := b.observers.snapshot()
	for i := len(observers) - 1; i >= 0; i-- {
		if err := observers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return aggregate(errs)
}
