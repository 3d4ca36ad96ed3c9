package saturation

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"time"

	"poolguard/core/store"

	"github.com/gofrs/uuid/v5"
)

const journalTimeout = 5 * time.Second

// writeDump runs detached from the rejecting caller. Whatever happens, the
// last-dump timestamp is advanced only after the capture has finished, and
// the gate is released last so a racing trigger sees the fresh timestamp.
func (r *Reporter) writeDump() {
	defer func() {
		r.lastDump.Store(time.Now().UnixNano())
		<-r.gate
	}()

	id := dumpID()
	now := time.Now()
	path := filepath.Join(r.dumpDir, r.label+"_JStack.log."+now.Format(stampLayout()))

	f, err := os.Create(path)
	if err != nil {
		r.dumpErrors.Add(1)
		if r.logger != nil {
			r.logger.Errorf("saturation %s: dump create %s: %v", r.label, path, err)
		}
		r.recordDump(id, path, err)
		return
	}
	err = captureStacks(f, id, r.label, now)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		r.dumpErrors.Add(1)
		if r.logger != nil {
			r.logger.Errorf("saturation %s: dump write %s: %v", r.label, path, err)
		}
	} else if r.logger != nil {
		r.logger.Printf("saturation %s: dump written to %s", r.label, path)
	}
	r.recordDump(id, path, err)
}

// captureStacks writes a short header followed by every live goroutine with
// its full stack.
func captureStacks(w io.Writer, id, label string, now time.Time) error {
	if _, err := fmt.Fprintf(w, "report: %s\npool: %s\ntime: %s\ngoroutines: %d\n\n",
		id, label, now.UTC().Format(time.RFC3339), runtime.NumGoroutine()); err != nil {
		return err
	}
	profile := pprof.Lookup("goroutine")
	if profile == nil {
		return fmt.Errorf("goroutine profile unavailable")
	}
	return profile.WriteTo(w, 2)
}

// Windows disallows ":" in file names.
func stampLayout() string {
	if runtime.GOOS == "windows" {
		return "2006-01-02_15-04-05"
	}
	return "2006-01-02_15:04:05"
}

func dumpID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return id.String()
}

// recordDump is best-effort: journal failures are logged and contained.
func (r *Reporter) recordDump(id, path string, captureErr error) {
	if r.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	rec := store.DumpReport{
		ID:        id,
		PoolLabel: r.label,
		Path:      path,
		OK:        captureErr == nil,
		CreatedAt: time.Now().UTC(),
	}
	if captureErr != nil {
		rec.Error = captureErr.Error()
	}
	if err := r.journal.Record(ctx, rec); err != nil && r.logger != nil {
		r.logger.Errorf("saturation %s: journal record: %v", r.label, err)
	}
}

func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}
