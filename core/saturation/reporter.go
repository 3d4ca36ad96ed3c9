package saturation

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"poolguard/core/pool"
	"poolguard/core/store"
	"poolguard/core/utils"
)

// warnTemplate matches the diagnostic line format used by the wider tooling;
// the rejection error carries the identical text.
const warnTemplate = "Thread pool is EXHAUSTED!" +
	" Thread Name: %s, Pool Size: %d (active: %d, core: %d, max: %d, largest: %d), Task: %d (completed: %d)," +
	" Executor status:(isShutdown:%v, isTerminated:%v, isTerminating:%v)!"

const defaultCooldown = 10 * time.Minute

// ErrPoolExhausted is the sentinel behind every rejection error returned by
// a Reporter; match it with errors.Is.
var ErrPoolExhausted = errors.New("thread pool is exhausted")

type ExhaustedError struct {
	msg string
}

func (e *ExhaustedError) Error() string { return e.msg }

func (e *ExhaustedError) Unwrap() error { return ErrPoolExhausted }

type Options struct {
	DumpDir  string
	Cooldown time.Duration
	Journal  store.DumpReportStore
}

// Reporter is the rejection policy of one guarded pool: it logs a warning
// built from the pool snapshot, triggers a rate-limited stack dump in the
// background, and surfaces the rejection to the submitter. One Reporter per
// pool; the cooldown and gate are not shared between pools.
type Reporter struct {
	label    string
	dumpDir  string
	cooldown time.Duration
	journal  store.DumpReportStore
	logger   *utils.Logger

	gate     chan struct{}
	lastDump atomic.Int64 // unix nanos of the last finished dump, 0 = never

	rejections atomic.Int64
	dumps      atomic.Int64
	dumpErrors atomic.Int64
	dumpSkips  atomic.Int64
}

func NewReporter(label string, opt Options, logger *utils.Logger) *Reporter {
	cooldown := opt.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	dir := opt.DumpDir
	if dir == "" {
		dir = homeDir()
	}
	return &Reporter{
		label:    label,
		dumpDir:  dir,
		cooldown: cooldown,
		journal:  opt.Journal,
		logger:   logger,
		gate:     make(chan struct{}, 1),
	}
}

func (r *Reporter) Label() string {
	if r == nil {
		return ""
	}
	return r.label
}

// HandleRejection implements pool.RejectionHandler. The task is never
// inspected or executed; exactly one error is returned per call no matter
// how the dump attempt goes.
func (r *Reporter) HandleRejection(_ pool.Task, snap pool.Snapshot) error {
	msg := fmt.Sprintf(warnTemplate,
		r.label, snap.PoolSize, snap.Active, snap.Core, snap.Max, snap.Largest,
		snap.Tasks, snap.Completed, snap.Shutdown, snap.Terminated, snap.Terminating)
	r.rejections.Add(1)
	if r.logger != nil {
		r.logger.Warnf("%s", msg)
	}
	r.maybeDump()
	return &ExhaustedError{msg: msg}
}

// maybeDump starts at most one background dump per cooldown window. It never
// blocks: the cooldown check is a single atomic load and the gate probe is a
// non-blocking channel send.
func (r *Reporter) maybeDump() {
	if last := r.lastDump.Load(); last != 0 && time.Since(time.Unix(0, last)) < r.cooldown {
		r.dumpSkips.Add(1)
		return
	}
	select {
	case r.gate <- struct{}{}:
	default:
		r.dumpSkips.Add(1)
		return
	}
	r.dumps.Add(1)
	go r.writeDump()
}

type Stats struct {
	Label           string
	RejectionsTotal int64
	DumpsTotal      int64
	DumpErrorsTotal int64
	DumpSkipsTotal  int64
	LastDumpAtUTC   *time.Time
}

func (r *Reporter) StatsSnapshot() Stats {
	if r == nil {
		return Stats{}
	}
	s := Stats{
		Label:           r.label,
		RejectionsTotal: r.rejections.Load(),
		DumpsTotal:      r.dumps.Load(),
		DumpErrorsTotal: r.dumpErrors.Load(),
		DumpSkipsTotal:  r.dumpSkips.Load(),
	}
	if last := r.lastDump.Load(); last != 0 {
		t := time.Unix(0, last).UTC()
		s.LastDumpAtUTC = &t
	}
	return s
}
