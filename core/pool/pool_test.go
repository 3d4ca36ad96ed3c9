package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingHandler struct {
	mu    sync.Mutex
	snaps []Snapshot
	err   error
}

func (h *recordingHandler) HandleRejection(_ Task, snap Snapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snaps = append(h.snaps, snap)
	return h.err
}

func (h *recordingHandler) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.snaps)
}

func (h *recordingHandler) last() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snaps[len(h.snaps)-1]
}

func shutdownPool(t *testing.T, p *Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestNewStartsCoreWorkers(t *testing.T) {
	p := New(Config{Label: "core", Core: 3, Max: 5, QueueSize: 4}, nil, nil)
	snap := p.Snapshot()
	if snap.PoolSize != 3 {
		t.Fatalf("PoolSize = %d, want 3", snap.PoolSize)
	}
	if snap.Core != 3 || snap.Max != 5 {
		t.Fatalf("Core/Max = %d/%d, want 3/5", snap.Core, snap.Max)
	}
	if snap.Largest != 3 {
		t.Fatalf("Largest = %d, want 3", snap.Largest)
	}
	shutdownPool(t, p)
}

func TestSubmitNilTask(t *testing.T) {
	p := New(Config{Label: "nil", Core: 1, Max: 1, QueueSize: 1}, nil, nil)
	defer shutdownPool(t, p)
	if err := p.Submit(nil); !errors.Is(err, ErrNilTask) {
		t.Fatalf("Submit(nil) error = %v, want ErrNilTask", err)
	}
}

func TestSubmitExecutesTask(t *testing.T) {
	p := New(Config{Label: "exec", Core: 2, Max: 2, QueueSize: 4}, nil, nil)
	done := make(chan struct{})
	if err := p.Submit(func() { close(done) }); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("task never ran")
	}
	shutdownPool(t, p)
	snap := p.Snapshot()
	if snap.Completed != 1 {
		t.Fatalf("Completed = %d, want 1", snap.Completed)
	}
}

func TestSubmitRejectsWhenSaturated(t *testing.T) {
	want := errors.New("rejected")
	h := &recordingHandler{err: want}
	p := New(Config{Label: "sat", Core: 1, Max: 1, QueueSize: 1}, h, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	if err := p.Submit(func() { close(started); <-release }); err != nil {
		t.Fatalf("Submit(blocking) error = %v", err)
	}
	<-started
	if err := p.Submit(func() {}); err != nil {
		t.Fatalf("Submit(queued) error = %v", err)
	}
	err := p.Submit(func() {})
	if !errors.Is(err, want) {
		t.Fatalf("Submit() error = %v, want handler error", err)
	}
	if h.calls() != 1 {
		t.Fatalf("handler calls = %d, want 1", h.calls())
	}
	snap := h.last()
	if snap.PoolSize != 1 || snap.Max != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Shutdown || snap.Terminated || snap.Terminating {
		t.Fatalf("snapshot flags should all be false: %+v", snap)
	}
	close(release)
	shutdownPool(t, p)
}

func TestSubmitWithoutHandlerReturnsQueueFull(t *testing.T) {
	p := New(Config{Label: "nohandler", Core: 1, Max: 1, QueueSize: 1}, nil, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	if err := p.Submit(func() { close(started); <-release }); err != nil {
		t.Fatalf("Submit(blocking) error = %v", err)
	}
	<-started
	if err := p.Submit(func() {}); err != nil {
		t.Fatalf("Submit(queued) error = %v", err)
	}
	if err := p.Submit(func() {}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Submit() error = %v, want ErrQueueFull", err)
	}
	close(release)
	shutdownPool(t, p)
}

func TestSurgeWorkerSpawns(t *testing.T) {
	p := New(Config{Label: "surge", Core: 1, Max: 2, QueueSize: 1}, nil, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	if err := p.Submit(func() { close(started); <-release }); err != nil {
		t.Fatalf("Submit(blocking) error = %v", err)
	}
	<-started
	if err := p.Submit(func() {}); err != nil {
		t.Fatalf("Submit(queued) error = %v", err)
	}
	surged := make(chan struct{})
	if err := p.Submit(func() { close(surged) }); err != nil {
		t.Fatalf("Submit(surge) error = %v", err)
	}
	select {
	case <-surged:
	case <-time.After(5 * time.Second):
		t.Fatalf("surge task never ran")
	}
	if snap := p.Snapshot(); snap.Largest != 2 {
		t.Fatalf("Largest = %d, want 2", snap.Largest)
	}
	close(release)
	shutdownPool(t, p)
}

func TestTaskPanicIsContained(t *testing.T) {
	p := New(Config{Label: "panic", Core: 1, Max: 1, QueueSize: 4}, nil, nil)
	if err := p.Submit(func() { panic("boom") }); err != nil {
		t.Fatalf("Submit(panicking) error = %v", err)
	}
	done := make(chan struct{})
	if err := p.Submit(func() { close(done) }); err != nil {
		t.Fatalf("Submit(after panic) error = %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("pool stopped executing after a panic")
	}
	shutdownPool(t, p)
	if snap := p.Snapshot(); snap.Completed != 2 {
		t.Fatalf("Completed = %d, want 2", snap.Completed)
	}
}

func TestShutdownDrainsQueue(t *testing.T) {
	p := New(Config{Label: "drain", Core: 1, Max: 1, QueueSize: 8}, nil, nil)
	var mu sync.Mutex
	ran := 0
	for i := 0; i < 5; i++ {
		if err := p.Submit(func() {
			mu.Lock()
			ran++
			mu.Unlock()
		}); err != nil {
			t.Fatalf("Submit(%d) error = %v", i, err)
		}
	}
	shutdownPool(t, p)
	mu.Lock()
	defer mu.Unlock()
	if ran != 5 {
		t.Fatalf("ran = %d, want 5", ran)
	}
}

func TestSubmitAfterShutdownRejects(t *testing.T) {
	want := errors.New("rejected")
	h := &recordingHandler{err: want}
	p := New(Config{Label: "late", Core: 1, Max: 1, QueueSize: 1}, h, nil)
	shutdownPool(t, p)
	if err := p.Submit(func() {}); !errors.Is(err, want) {
		t.Fatalf("Submit() error = %v, want handler error", err)
	}
	snap := h.last()
	if !snap.Shutdown || !snap.Terminated {
		t.Fatalf("snapshot = %+v, want shutdown and terminated", snap)
	}
}

func TestShutdownIdempotent(t *testing.T) {
	p := New(Config{Label: "twice", Core: 1, Max: 1, QueueSize: 1}, nil, nil)
	shutdownPool(t, p)
	shutdownPool(t, p)
	snap := p.Snapshot()
	if !snap.Terminated || snap.Terminating {
		t.Fatalf("snapshot = %+v, want terminated", snap)
	}
	if snap.PoolSize != 0 {
		t.Fatalf("PoolSize = %d, want 0 after shutdown", snap.PoolSize)
	}
}
