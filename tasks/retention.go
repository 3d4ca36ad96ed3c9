package tasks

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"poolguard/config"
	"poolguard/core/store"
	"poolguard/core/utils"

	"github.com/robfig/cron/v3"
)

// Journal rows outlive their files by this factor so the ops endpoint can
// still show what was pruned.
const journalKeepFactor = 4

const dumpFileMarker = "_JStack.log."

type RetentionPruner struct {
	cfg     config.RetentionConfig
	dumpDir string
	journal store.DumpReportStore
	logger  *utils.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup

	ticksTotal   atomic.Int64
	tickErrors   atomic.Int64
	filesRemoved atomic.Int64
	lastTick     atomic.Int64
}

func NewRetentionPruner(cfg config.RetentionConfig, dumpDir string, journal store.DumpReportStore, logger *utils.Logger) *RetentionPruner {
	return &RetentionPruner{
		cfg:     cfg,
		dumpDir: dumpDir,
		journal: journal,
		logger:  logger,
	}
}

func (p *RetentionPruner) Start() {
	p.StartWithContext(context.Background())
}

func (p *RetentionPruner) StartWithContext(ctx context.Context) {
	if p == nil || !p.cfg.Enabled {
		return
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sch, err := parser.Parse(strings.TrimSpace(p.cfg.CronExpression))
	if err != nil {
		if p.logger != nil {
			p.logger.Errorf("retention: bad cron expression %q: %v", p.cfg.CronExpression, err)
		}
		return
	}
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		for {
			next := sch.Next(time.Now())
			timer := time.NewTimer(time.Until(next))
			select {
			case <-timer.C:
				_ = p.PruneOnce(runCtx, time.Now().UTC())
			case <-runCtx.Done():
				timer.Stop()
				return
			}
		}
	}()
}

func (p *RetentionPruner) Stop() {
	_ = p.StopWithContext(context.Background())
}

func (p *RetentionPruner) StopWithContext(ctx context.Context) error {
	if p == nil || !p.cfg.Enabled {
		return nil
	}
	p.mu.Lock()
	if p.cancel == nil || !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	cancel()
	waitDone := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PruneOnce removes dump files older than the configured age and marks the
// matching journal rows. Only files carrying the dump marker are touched.
func (p *RetentionPruner) PruneOnce(ctx context.Context, now time.Time) error {
	if p == nil || strings.TrimSpace(p.dumpDir) == "" {
		return nil
	}
	p.ticksTotal.Add(1)
	p.lastTick.Store(now.UnixNano())

	maxAge := time.Duration(p.cfg.MaxAgeHours) * time.Hour
	if maxAge <= 0 {
		maxAge = 7 * 24 * time.Hour
	}
	cutoff := now.Add(-maxAge)

	entries, err := os.ReadDir(p.dumpDir)
	if err != nil {
		p.tickErrors.Add(1)
		p.logError("retention.readdir", err)
		return err
	}
	var firstErr error
	for _, entry := range entries {
		if entry.IsDir() || !strings.Contains(entry.Name(), dumpFileMarker) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		full := filepath.Join(p.dumpDir, entry.Name())
		if err := os.Remove(full); err != nil {
			p.tickErrors.Add(1)
			p.logError("retention.remove", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		p.filesRemoved.Add(1)
		if p.journal != nil {
			if err := p.journal.MarkPruned(ctx, full); err != nil {
				p.logError("retention.journal", err)
			}
		}
	}
	if p.journal != nil {
		if _, err := p.journal.DeleteOlderThan(ctx, now.Add(-journalKeepFactor*maxAge)); err != nil {
			p.logError("retention.journal_trim", err)
		}
	}
	return firstErr
}

type PrunerStats struct {
	TicksTotal        int64
	TickErrorsTotal   int64
	FilesRemovedTotal int64
	LastTickAtUTC     *time.Time
}

func (p *RetentionPruner) StatsSnapshot() PrunerStats {
	if p == nil {
		return PrunerStats{}
	}
	s := PrunerStats{
		TicksTotal:        p.ticksTotal.Load(),
		TickErrorsTotal:   p.tickErrors.Load(),
		FilesRemovedTotal: p.filesRemoved.Load(),
	}
	if last := p.lastTick.Load(); last != 0 {
		t := time.Unix(0, last).UTC()
		s.LastTickAtUTC = &t
	}
	return s
}

func (p *RetentionPruner) logError(scope string, err error) {
	if p.logger == nil || err == nil {
		return
	}
	p.logger.Errorf("pruner %s: %v", scope, err)
}
