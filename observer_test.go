package vfs

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// A recordingSink keeps everything it receives, safe for concurrent delivery.
type recordingSink struct {
	mu        sync.Mutex
	events    []string
	errs      []error
	completed int
}

func (s *recordingSink) OnEvent(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event.String())
}

func (s *recordingSink) OnError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *recordingSink) OnCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed++
}

func (s *recordingSink) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func (s *recordingSink) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

func (s *recordingSink) Completed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

func TestObserverReceivesStartFirst(t *testing.T) {
	fs := NewMemoryFileSystem()
	defer fs.Close()

	sink := &recordingSink{}
	observer, err := fs.Observe(MatchAll, sink, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer observer.Close()

	events := sink.Events()
	if len(events) != 1 || events[0] != "START" {
		t.Fatalf("expected a single START but got %v", events)
	}
}

func TestObserverFilter(t *testing.T) {
	fs := NewMemoryFileSystem()
	defer fs.Close()

	sink := &recordingSink{}
	observer, err := fs.Observe("a/**", sink, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer observer.Close()

	if err := fs.MkDirs("a/inside"); err != nil {
		t.Fatal(err)
	}
	if err := fs.MkDirs("b/outside"); err != nil {
		t.Fatal(err)
	}

	events := sink.Events()
	matched := false
	for _, event := range events {
		if strings.Contains(event, "/b") {
			t.Fatalf("expected no event outside the filter but got %v", events)
		}
		if event == "CREATE /a/inside" {
			matched = true
		}
	}
	if !matched {
		t.Fatalf("expected CREATE /a/inside to pass the filter but got %v", events)
	}
}

func TestObserverInvalidFilter(t *testing.T) {
	fs := NewMemoryFileSystem()
	defer fs.Close()

	if _, err := fs.Observe("", &recordingSink{}, nil); err == nil {
		t.Fatal("expected error for empty filter")
	}
	if _, err := fs.Observe("[", &recordingSink{}, nil); err == nil {
		t.Fatal("expected error for broken pattern")
	}
}

func TestObserverState(t *testing.T) {
	fs := NewMemoryFileSystem()
	defer fs.Close()

	observer, err := fs.Observe(MatchAll, &recordingSink{}, "my-state")
	if err != nil {
		t.Fatal(err)
	}
	defer observer.Close()

	if observer.State() != "my-state" {
		t.Fatalf("expected state to round trip but got %v", observer.State())
	}
	if observer.FileSystem() != fs {
		t.Fatal("expected the observer to reference its filesystem")
	}
	if observer.Filter() != MatchAll {
		t.Fatalf("expected filter to round trip but got %v", observer.Filter())
	}
}

func TestObserverCloseCompletesOnce(t *testing.T) {
	fs := NewMemoryFileSystem()
	defer fs.Close()

	sink := &recordingSink{}
	observer, err := fs.Observe(MatchAll, sink, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := observer.Close(); err != nil {
		t.Fatal(err)
	}
	if err := observer.Close(); err != nil {
		t.Fatal(err)
	}
	if sink.Completed() != 1 {
		t.Fatalf("expected exactly one completion but got %v", sink.Completed())
	}

	// No further deliveries after close.
	if err := fs.MkDirs("late"); err != nil {
		t.Fatal(err)
	}
	for _, event := range sink.Events() {
		if event == "CREATE /late" {
			t.Fatal("expected no delivery after close")
		}
	}
}

func TestFileSystemCloseCompletesAllObservers(t *testing.T) {
	fs := NewMemoryFileSystem()
	first := &recordingSink{}
	second := &recordingSink{}
	if _, err := fs.Observe(MatchAll, first, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Observe(MatchAll, second, nil); err != nil {
		t.Fatal(err)
	}
	if err := fs.Close(); err != nil {
		t.Fatal(err)
	}
	if first.Completed() != 1 || second.Completed() != 1 {
		t.Fatalf("expected every observer completed exactly once, got %v and %v", first.Completed(), second.Completed())
	}
	if _, err := fs.Stat("x"); !IsAlreadyClosed(err) {
		t.Fatalf("expected AlreadyClosedError but got %v", err)
	}
}

// panicSink fails in configurable ways to exercise the delivery error contract.
type panicSink struct {
	recordingSink
	panicOnEvent bool
	panicOnError bool
}

func (s *panicSink) OnEvent(event Event) {
	if _, isStart := event.(*StartEvent); !isStart && s.panicOnEvent {
		panic(errors.New("sink exploded"))
	}
	s.recordingSink.OnEvent(event)
}

func (s *panicSink) OnError(err error) {
	if s.panicOnError {
		panic(errors.New("error handler exploded"))
	}
	s.recordingSink.OnError(err)
}

func TestSinkPanicIsReportedViaOnError(t *testing.T) {
	fs := NewMemoryFileSystem()
	defer fs.Close()

	sink := &panicSink{panicOnEvent: true}
	observer, err := fs.Observe(MatchAll, sink, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer observer.Close()

	if err := fs.MkDirs("a"); err != nil {
		t.Fatal(err)
	}
	errs := sink.Errors()
	if len(errs) != 1 {
		t.Fatalf("expected one reported error but got %v", errs)
	}
}

func TestSinkDoubleFailureBecomesAggregate(t *testing.T) {
	fs := NewMemoryFileSystem()
	defer fs.Close()

	sink := &panicSink{panicOnEvent: true, panicOnError: true}
	observer, err := fs.Observe(MatchAll, sink, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer observer.Close()

	err = fs.MkDirs("a")
	var aggregate *AggregateError
	if !errors.As(err, &aggregate) {
		t.Fatalf("expected AggregateError but got %v", err)
	}
	if len(aggregate.Errors) != 2 {
		t.Fatalf("expected both failures captured but got %v", aggregate.Errors)
	}
	// The mutation itself has happened regardless.
	entry, statErr := fs.Stat("a")
	if statErr != nil || entry == nil {
		t.Fatalf("expected the directory to exist, got %v %v", entry, statErr)
	}
}

func TestExecutorDispatcherKeepsPerObserverOrder(t *testing.T) {
	fs := NewMemoryFileSystem()
	defer fs.Close()

	dispatcher := NewExecutorDispatcher(16)
	if err := fs.SetEventDispatcher(dispatcher); err != nil {
		t.Fatal(err)
	}

	sink := &recordingSink{}
	observer, err := fs.Observe(MatchAll, sink, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer observer.Close()

	for _, dir := range []Path{"a", "a/b", "a/b/c", "d"} {
		if err := fs.MkDirs(dir); err != nil {
			t.Fatal(err)
		}
	}
	if err := dispatcher.Close(); err != nil {
		t.Fatal(err)
	}

	events := sink.Events()
	want := []string{"START", "CREATE /a", "CREATE /a/b", "CREATE /a/b/c", "CREATE /d"}
	if len(events) != len(want) {
		t.Fatalf("expected %v but got %v", want, events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("expected %v but got %v", want, events)
		}
	}
}

func TestExecutorDispatcherRejectsAfterClose(t *testing.T) {
	dispatcher := NewExecutorDispatcher(1)
	if err := dispatcher.Close(); err != nil {
		t.Fatal(err)
	}
	fs := NewMemoryFileSystem()
	defer fs.Close()
	observer, err := fs.Observe(MatchAll, &recordingSink{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer observer.Close()
	if err := dispatcher.Dispatch(observer, newCreateEvent("x")); !IsAlreadyClosed(err) {
		t.Fatalf("expected AlreadyClosedError but got %v", err)
	}
}

func TestInlineDispatcherBatch(t *testing.T) {
	fs := NewMemoryFileSystem()
	defer fs.Close()
	sink := &recordingSink{}
	observer, err := fs.Observe(MatchAll, sink, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer observer.Close()

	events := []Event{
		retarget(newCreateEvent("a"), observer, nil),
		retarget(newChangeEvent("a"), observer, nil),
	}
	if err := (InlineDispatcher{}).DispatchBatch(observer, events); err != nil {
		t.Fatal(err)
	}
	got := sink.Events()
	if len(got) != 3 || got[1] != "CREATE /a" || got[2] != "CHANGE /a" {
		t.Fatalf("expected batch in order but got %v", got)
	}
}

func TestObserverListSnapshotIsolation(t *testing.T) {
	list := &observerList{}
	fs := NewMemoryFileSystem()
	defer fs.Close()

	a, err := newObserver(fs, MatchAll, &recordingSink{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := newObserver(fs, MatchAll, &recordingSink{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	list.add(a)
	snapshot := list.snapshot()
	list.add(b)
	if len(snapshot) != 1 {
		t.Fatalf("expected the snapshot to stay untouched but got %v entries", len(snapshot))
	}
	if len(list.snapshot()) != 2 {
		t.Fatalf("expected 2 observers but got %v", len(list.snapshot()))
	}
	list.remove(a)
	if len(list.snapshot()) != 1 || list.snapshot()[0] != b {
		t.Fatal("expected only the second observer to remain")
	}
}

func TestEventTimesAreSet(t *testing.T) {
	before := time.Now()
	event := newCreateEvent("a")
	if event.Time().Before(before.Add(-time.Second)) {
		t.Fatalf("expected a recent event time but got %v", event.Time())
	}
}
