package vfs

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// An Observer is the handle returned by FileSystem#Observe. It carries the compiled
// filter, the sink and the user state. Closing the handle unsubscribes, completes the
// sink exactly once and releases any attached child subscriptions.
type Observer struct {
	id         uuid.UUID
	filesystem FileSystem
	filter     string
	match      func(string) bool
	sink       EventSink
	state      interface{}
	dispatcher Dispatcher

	// unregister detaches the handle from the owning filesystem's list.
	unregister func(*Observer)
	// attached are child subscriptions of a composition, closed together with the
	// handle.
	attachedMu sync.Mutex
	attached   []io.Closer

	closed int32
}

func newObserver(filesystem FileSystem, filter string, sink EventSink, state interface{}) (*Observer, error) {
	match, err := compileFilter(filter)
	if err != nil {
		return nil, err
	}
	return &Observer{
		id:         uuid.New(),
		filesystem: filesystem,
		filter:     filter,
		match:      match,
		sink:       sink,
		state:      state,
	}, nil
}

// ID returns the stable identity of this subscription.
func (o *Observer) ID() string {
	return o.id.String()
}

// FileSystem returns the filesystem the handle was obtained from.
func (o *Observer) FileSystem() FileSystem {
	return o.filesystem
}

// Filter returns the glob pattern given at subscription time.
func (o *Observer) Filter() string {
	return o.filter
}

// State returns the user state given at subscription time, which may be nil.
func (o *Observer) State() interface{} {
	return o.state
}

// Matches tells if the filter accepts the given path. Events without a path always
// match.
func (o *Observer) Matches(path Path) bool {
	if path.IsRoot() {
		return true
	}
	return o.match(path.Normalized())
}

// attach registers a child subscription which is closed together with this handle.
func (o *Observer) attach(c io.Closer) {
	o.attachedMu.Lock()
	o.attached = append(o.attached, c)
	o.attachedMu.Unlock()
}

// Close unsubscribes. The sink receives OnCompleted exactly once. A single error of the
// attached child subscriptions is returned as is; several are combined into an
// *AggregateError.
func (o *Observer) Close() error {
	if !atomic.CompareAndSwapInt32(&o.closed, 0, 1) {
		return nil
	}
	if o.unregister != nil {
		o.unregister(o)
	}
	o.attachedMu.Lock()
	attached := o.attached
	o.attached = nil
	o.attachedMu.Unlock()
	var errs []error
	for i := len(attached) - 1; i >= 0; i-- {
		if err := attached[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	o.completeSink()
	return aggregate(errs)
}

func (o *Observer) isClosed() bool {
	return atomic.LoadInt32(&o.closed) == 1
}

// deliver hands one event to the sink. A panic inside OnEvent is reported through
// OnError on the same sink; if that panics too, both failures are returned as an
// *AggregateError.
func (o *Observer) deliver(event Event) error {
	if o.isClosed() {
		return nil
	}
	primary := o.safeOnEvent(event)
	if primary == nil {
		return nil
	}
	debugf("observer %s: sink failed on %s: %v", o.ID(), event, primary)
	secondary := o.safeOnError(primary)
	if secondary == nil {
		return nil
	}
	return &AggregateError{Errors: []error{primary, secondary}}
}

func (o *Observer) safeOnEvent(event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoveredError(r)
		}
	}()
	o.sink.OnEvent(event)
	return nil
}

func (o *Observer) safeOnError(cause error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoveredError(r)
		}
	}()
	o.sink.OnError(cause)
	return nil
}

func (o *Observer) completeSink() {
	defer func() {
		if r := recover(); r != nil {
			errorf("observer %s: sink panicked in OnCompleted: %v", o.ID(), r)
		}
	}()
	o.sink.OnCompleted()
}

func recoveredError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("sink panic: %v", r)
}

// An observerList is the copy-on-write collection of active subscriptions. Readers
// take the current snapshot without locking, so event delivery never holds the list
// lock.
type observerList struct {
	mu   sync.Mutex
	list atomic.Value // []*Observer
}

func (l *observerList) snapshot() []*Observer {
	if v := l.list.Load(); v != nil {
		return v.([]*Observer)
	}
	return nil
}

func (l *observerList) add(o *Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	old := l.snapshot()
	next := make([]*Observer, 0, len(old)+1)
	next = append(next, old...)
	next = append(next, o)
	l.list.Store(next)
}

func (l *observerList) remove(o *Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	old := l.snapshot()
	next := make([]*Observer, 0, len(old))
	for _, candidate := range old {
		if candidate != o {
			next = append(next, candidate)
		}
	}
	l.list.Store(next)
}

// A Dispatcher is the strategy which hands events to observer sinks. The default is
// the inline dispatcher; a background executor can be installed per filesystem with
// SetEventDispatcher.
type Dispatcher interface {
	// Dispatch delivers a single event to the observer's sink. Implementations must
	// preserve per-observer ordering.
	Dispatch(observer *Observer, event Event) error

	// DispatchBatch delivers several events of one operation in order.
	DispatchBatch(observer *Observer, events []Event) error
}

// The InlineDispatcher delivers on the calling goroutine, which preserves the order
// of events produced by an operation and makes delivery failures visible to the
// operation itself.
type InlineDispatcher struct{}

func (InlineDispatcher) Dispatch(observer *Observer, event Event) error {
	return observer.deliver(event)
}

func (InlineDispatcher) DispatchBatch(observer *Observer, events []Event) error {
	var errs []error
	for _, event := range events {
		if err := observer.deliver(event); err != nil {
			errs = append(errs, err)
		}
	}
	return aggregate(errs)
}

var defaultDispatcher Dispatcher = InlineDispatcher{}

// An ExecutorDispatcher delivers events on background goroutines, one serial queue
// per observer, so per-observer ordering is kept. Producers do not wait for sinks until
// an observer's queue holds backlog undelivered events; then submission blocks. Delivery
// failures are accumulated and available through Err.
type ExecutorDispatcher struct {
	mu      sync.Mutex
	queues  map[*Observer]chan Event
	wg      sync.WaitGroup
	closed  bool
	errsMu  sync.Mutex
	errs    []error
	backlog int
}

// NewExecutorDispatcher creates a background dispatcher whose per-observer queues
// buffer up to backlog events before submission blocks. A backlog below 1 falls back
// to 64.
func NewExecutorDispatcher(backlog int) *ExecutorDispatcher {
	if backlog < 1 {
		backlog = 64
	}
	return &ExecutorDispatcher{
		queues:  make(map[*Observer]chan Event),
		backlog: backlog,
	}
}

func (d *ExecutorDispatcher) Dispatch(observer *Observer, event Event) error {
	queue, err := d.queue(observer)
	if err != nil {
		return err
	}
	queue <- event
	return nil
}

func (d *ExecutorDispatcher) DispatchBatch(observer *Observer, events []Event) error {
	queue, err := d.queue(observer)
	if err != nil {
		return err
	}
	for _, event := range events {
		queue <- event
	}
	return nil
}

func (d *ExecutorDispatcher) queue(observer *Observer) (chan Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, &AlreadyClosedError{What: "ExecutorDispatcher"}
	}
	queue, ok := d.queues[observer]
	if !ok {
		queue = make(chan Event, d.backlog)
		d.queues[observer] = queue
		d.wg.Add(1)
		go d.drain(observer, queue)
	}
	return queue, nil
}

func (d *ExecutorDispatcher) drain(observer *Observer, queue chan Event) {
	defer d.wg.Done()
	for event := range queue {
		if err := observer.deliver(event); err != nil {
			d.errsMu.Lock()
			d.errs = append(d.errs, err)
			d.errsMu.Unlock()
			errorf("dispatcher: delivery to observer %s failed: %v", observer.ID(), err)
		}
	}
}

// Err returns nil, the single accumulated delivery failure, or an *AggregateError of
// several.
func (d *ExecutorDispatcher) Err() error {
	d.errsMu.Lock()
	defer d.errsMu.Unlock()
	return aggregate(d.errs)
}

// Close drains all queues and waits for the background deliveries to finish.
// Subsequent Dispatch calls fail with an *AlreadyClosedError.
func (d *ExecutorDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for _, queue := range d.queues {
		close(queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
	return d.Err()
}
