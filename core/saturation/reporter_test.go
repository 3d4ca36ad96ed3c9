package saturation

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"poolguard/core/pool"
	"poolguard/core/utils"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func dumpFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir(%s): %v", dir, err)
	}
	var res []string
	for _, e := range entries {
		if strings.Contains(e.Name(), "_JStack.log.") {
			res = append(res, e.Name())
		}
	}
	return res
}

func exhaustedSnapshot() pool.Snapshot {
	return pool.Snapshot{
		PoolSize: 10, Active: 10, Core: 10, Max: 10, Largest: 10,
		Tasks: 500, Completed: 490,
	}
}

func TestRejectionMessageFormat(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter("worker-A", Options{DumpDir: t.TempDir(), Cooldown: time.Hour}, utils.NewLoggerTo(&buf))

	err := r.HandleRejection(nil, exhaustedSnapshot())
	if err == nil {
		t.Fatalf("HandleRejection() returned nil")
	}
	want := "Thread pool is EXHAUSTED!" +
		" Thread Name: worker-A, Pool Size: 10 (active: 10, core: 10, max: 10, largest: 10), Task: 500 (completed: 490)," +
		" Executor status:(isShutdown:false, isTerminated:false, isTerminating:false)!"
	if err.Error() != want {
		t.Fatalf("error = %q\nwant   %q", err.Error(), want)
	}
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("errors.Is(err, ErrPoolExhausted) = false")
	}
	waitFor(t, "dump to finish", func() bool { return r.StatsSnapshot().LastDumpAtUTC != nil })
	if !strings.Contains(buf.String(), "Thread pool is EXHAUSTED!") {
		t.Fatalf("warning not logged: %s", buf.String())
	}
}

func TestRejectionMessageReflectsFlags(t *testing.T) {
	r := NewReporter("worker-B", Options{DumpDir: t.TempDir(), Cooldown: time.Hour}, nil)
	snap := exhaustedSnapshot()
	snap.Shutdown = true
	snap.Terminating = true
	err := r.HandleRejection(nil, snap)
	if !strings.Contains(err.Error(), "isShutdown:true") || !strings.Contains(err.Error(), "isTerminating:true") {
		t.Fatalf("error = %q", err.Error())
	}
	if !strings.Contains(err.Error(), "isTerminated:false") {
		t.Fatalf("error = %q", err.Error())
	}
}

func TestFirstRejectionWritesOneDump(t *testing.T) {
	dir := t.TempDir()
	r := NewReporter("worker-A", Options{DumpDir: dir, Cooldown: time.Hour}, nil)

	if err := r.HandleRejection(nil, exhaustedSnapshot()); err == nil {
		t.Fatalf("HandleRejection() returned nil")
	}
	waitFor(t, "dump file", func() bool { return len(dumpFiles(t, dir)) == 1 })

	name := dumpFiles(t, dir)[0]
	const prefix = "worker-A_JStack.log."
	if !strings.HasPrefix(name, prefix) {
		t.Fatalf("dump name = %q, want prefix %q", name, prefix)
	}
	if _, err := time.Parse(stampLayout(), strings.TrimPrefix(name, prefix)); err != nil {
		t.Fatalf("dump timestamp %q: %v", strings.TrimPrefix(name, prefix), err)
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	body := string(data)
	if !strings.Contains(body, "pool: worker-A") || !strings.Contains(body, "goroutine") {
		t.Fatalf("dump body missing header or stacks:\n%s", body)
	}

	s := r.StatsSnapshot()
	if s.RejectionsTotal != 1 || s.DumpsTotal != 1 || s.DumpErrorsTotal != 0 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestCooldownSuppressesDumps(t *testing.T) {
	dir := t.TempDir()
	r := NewReporter("worker-A", Options{DumpDir: dir, Cooldown: time.Hour}, nil)

	_ = r.HandleRejection(nil, exhaustedSnapshot())
	waitFor(t, "first dump", func() bool { return r.StatsSnapshot().LastDumpAtUTC != nil })
	first := *r.StatsSnapshot().LastDumpAtUTC

	for i := 0; i < 10; i++ {
		if err := r.HandleRejection(nil, exhaustedSnapshot()); err == nil {
			t.Fatalf("HandleRejection(%d) returned nil", i)
		}
	}
	s := r.StatsSnapshot()
	if s.DumpsTotal != 1 {
		t.Fatalf("DumpsTotal = %d, want 1", s.DumpsTotal)
	}
	if s.DumpSkipsTotal != 10 {
		t.Fatalf("DumpSkipsTotal = %d, want 10", s.DumpSkipsTotal)
	}
	if !s.LastDumpAtUTC.Equal(first) {
		t.Fatalf("LastDumpAtUTC moved: %v -> %v", first, *s.LastDumpAtUTC)
	}
	if got := len(dumpFiles(t, dir)); got != 1 {
		t.Fatalf("dump files = %d, want 1", got)
	}
}

func TestConcurrentRejectionsSingleDump(t *testing.T) {
	dir := t.TempDir()
	r := NewReporter("worker-A", Options{DumpDir: dir, Cooldown: time.Hour}, nil)

	const n = 100
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.HandleRejection(nil, exhaustedSnapshot())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			t.Fatalf("rejection %d returned nil error", i)
		}
		if !errors.Is(err, ErrPoolExhausted) {
			t.Fatalf("rejection %d: errors.Is = false, err = %v", i, err)
		}
	}
	waitFor(t, "dump to finish", func() bool { return r.StatsSnapshot().LastDumpAtUTC != nil })

	s := r.StatsSnapshot()
	if s.RejectionsTotal != n {
		t.Fatalf("RejectionsTotal = %d, want %d", s.RejectionsTotal, n)
	}
	if s.DumpsTotal != 1 {
		t.Fatalf("DumpsTotal = %d, want 1", s.DumpsTotal)
	}
	if got := len(dumpFiles(t, dir)); got != 1 {
		t.Fatalf("dump files = %d, want 1", got)
	}
}

func TestDumpFailureReleasesGate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does-not-exist")
	r := NewReporter("worker-A", Options{DumpDir: dir, Cooldown: time.Nanosecond}, nil)

	if err := r.HandleRejection(nil, exhaustedSnapshot()); err == nil {
		t.Fatalf("HandleRejection() returned nil")
	}
	waitFor(t, "first failed dump", func() bool { return r.StatsSnapshot().DumpErrorsTotal == 1 })

	// A released gate plus an elapsed cooldown lets the next trigger through.
	if err := r.HandleRejection(nil, exhaustedSnapshot()); err == nil {
		t.Fatalf("HandleRejection() returned nil")
	}
	waitFor(t, "second failed dump", func() bool { return r.StatsSnapshot().DumpErrorsTotal == 2 })

	s := r.StatsSnapshot()
	if s.DumpsTotal != 2 {
		t.Fatalf("DumpsTotal = %d, want 2", s.DumpsTotal)
	}
	if s.RejectionsTotal != 2 {
		t.Fatalf("RejectionsTotal = %d, want 2", s.RejectionsTotal)
	}
}

func TestReporterGuardsPool(t *testing.T) {
	dir := t.TempDir()
	r := NewReporter("worker-A", Options{DumpDir: dir, Cooldown: time.Hour}, nil)
	p := pool.New(pool.Config{Label: "worker-A", Core: 1, Max: 1, QueueSize: 1}, r, nil)

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
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("Submit() error = %v, want ErrPoolExhausted", err)
	}
	if !strings.Contains(err.Error(), "Thread Name: worker-A") {
		t.Fatalf("error = %q", err.Error())
	}
	waitFor(t, "dump file", func() bool { return len(dumpFiles(t, dir)) == 1 })

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestReporterDefaults(t *testing.T) {
	r := NewReporter("d", Options{}, nil)
	if r.cooldown != defaultCooldown {
		t.Fatalf("cooldown = %v, want %v", r.cooldown, defaultCooldown)
	}
	if r.dumpDir == "" {
		t.Fatalf("dumpDir should default to the home directory")
	}
}
