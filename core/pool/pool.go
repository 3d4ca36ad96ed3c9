package pool

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"poolguard/core/utils"
)

var (
	ErrNilTask   = errors.New("pool: task is nil")
	ErrQueueFull = errors.New("pool: queue is full")
)

// surge workers retire after sitting idle for this long.
const surgeIdleTimeout = 30 * time.Second

type Task func()

// RejectionHandler is invoked when a submission cannot be queued or executed.
// The returned error is handed back to the submitter unchanged.
type RejectionHandler interface {
	HandleRejection(task Task, snap Snapshot) error
}

type Config struct {
	Label     string
	Core      int
	Max       int
	QueueSize int
}

// Pool is a bounded executor with a fixed core worker set and surge workers
// up to Max. It exists to host a RejectionHandler; it is not a
// general-purpose pool.
type Pool struct {
	cfg     Config
	handler RejectionHandler
	logger  *utils.Logger

	queue chan Task

	mu          sync.Mutex
	workers     int
	largest     int
	shutdown    bool
	terminating bool
	terminated  bool

	active    atomic.Int64
	submitted atomic.Int64
	completed atomic.Int64

	wg sync.WaitGroup
}

func New(cfg Config, handler RejectionHandler, logger *utils.Logger) *Pool {
	if cfg.Core <= 0 {
		cfg.Core = 1
	}
	if cfg.Max < cfg.Core {
		cfg.Max = cfg.Core
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	p := &Pool{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		queue:   make(chan Task, cfg.QueueSize),
	}
	p.mu.Lock()
	for i := 0; i < cfg.Core; i++ {
		p.spawnLocked(nil, false)
	}
	p.mu.Unlock()
	return p
}

func (p *Pool) Label() string {
	if p == nil {
		return ""
	}
	return p.cfg.Label
}

// Submit hands the task to the pool. When the queue is full and no surge
// worker slot is free, the rejection handler decides the returned error.
func (p *Pool) Submit(task Task) error {
	if p == nil {
		return ErrQueueFull
	}
	if task == nil {
		return ErrNilTask
	}
	p.mu.Lock()
	if p.shutdown {
		return p.rejectLocked(task)
	}
	select {
	case p.queue <- task:
		p.submitted.Add(1)
		p.mu.Unlock()
		return nil
	default:
	}
	if p.workers < p.cfg.Max {
		p.submitted.Add(1)
		p.spawnLocked(task, true)
		p.mu.Unlock()
		return nil
	}
	return p.rejectLocked(task)
}

// rejectLocked releases the mutex; the handler must not run under it.
func (p *Pool) rejectLocked(task Task) error {
	snap := p.snapshotLocked()
	handler := p.handler
	p.mu.Unlock()
	if handler == nil {
		return ErrQueueFull
	}
	return handler.HandleRejection(task, snap)
}

func (p *Pool) spawnLocked(first Task, surge bool) {
	p.workers++
	if p.workers > p.largest {
		p.largest = p.workers
	}
	p.wg.Add(1)
	go p.runWorker(first, surge)
}

func (p *Pool) runWorker(first Task, surge bool) {
	defer func() {
		p.mu.Lock()
		p.workers--
		p.mu.Unlock()
		p.wg.Done()
	}()
	if first != nil {
		p.execute(first)
	}
	if surge {
		p.runSurgeLoop()
		return
	}
	for task := range p.queue {
		p.execute(task)
	}
}

func (p *Pool) runSurgeLoop() {
	idle := time.NewTimer(surgeIdleTimeout)
	defer idle.Stop()
	for {
		select {
		case task, ok := <-p.queue:
			if !ok {
				return
			}
			p.execute(task)
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(surgeIdleTimeout)
		case <-idle.C:
			return
		}
	}
}

func (p *Pool) execute(task Task) {
	p.active.Add(1)
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			if p.logger != nil {
				p.logger.Errorf("pool %s: task panic: %v\n%s", p.cfg.Label, r, buf[:n])
			}
		}
		p.active.Add(-1)
		p.completed.Add(1)
	}()
	task()
}

// Shutdown stops intake, drains the queue, and waits for workers until ctx
// expires. Submissions racing with Shutdown are rejected through the handler.
func (p *Pool) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil
	}
	p.shutdown = true
	p.terminating = true
	close(p.queue)
	p.mu.Unlock()

	waitDone := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
		p.mu.Lock()
		p.terminating = false
		p.terminated = true
		p.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Pool) snapshotLocked() Snapshot {
	return Snapshot{
		PoolSize:    p.workers,
		Active:      int(p.active.Load()),
		Core:        p.cfg.Core,
		Max:         p.cfg.Max,
		Largest:     p.largest,
		Tasks:       p.submitted.Load(),
		Completed:   p.completed.Load(),
		Shutdown:    p.shutdown,
		Terminated:  p.terminated,
		Terminating: p.terminating,
	}
}
