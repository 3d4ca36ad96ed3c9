package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"poolguard/api"
	"poolguard/config"
	"poolguard/core/pool"
	"poolguard/core/saturation"
	"poolguard/core/store"
	"poolguard/core/utils"
	"poolguard/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logger := utils.NewLogger()

	var db *sql.DB
	var journal store.DumpReportStore
	if cfg.Journal.Enabled {
		db, err = store.Open(cfg.Journal.Path, logger)
		if err != nil {
			logger.Fatalf("journal init: %v", err)
		}
		defer db.Close()
		if err := store.ApplyMigrations(context.Background(), db, logger); err != nil {
			logger.Fatalf("migrations: %v", err)
		}
		journal = store.NewDumpReportStore(db)
	}

	cooldown := time.Duration(cfg.Dump.CooldownSeconds) * time.Second
	pools := make([]*pool.Pool, 0, len(cfg.Pools))
	reporters := make([]*saturation.Reporter, 0, len(cfg.Pools))
	for _, pc := range cfg.Pools {
		reporter := saturation.NewReporter(pc.Label, saturation.Options{
			DumpDir:  cfg.Dump.Dir,
			Cooldown: cooldown,
			Journal:  journal,
		}, logger)
		p := pool.New(pool.Config{
			Label:     pc.Label,
			Core:      pc.Core,
			Max:       pc.Max,
			QueueSize: pc.QueueSize,
		}, reporter, logger)
		pools = append(pools, p)
		reporters = append(reporters, reporter)
		logger.Printf("pool %s: core=%d max=%d queue=%d", pc.Label, pc.Core, pc.Max, pc.QueueSize)
	}

	pruner := tasks.NewRetentionPruner(cfg.Retention, cfg.Dump.Dir, journal, logger)
	pruner.Start()

	var srv *api.Server
	if cfg.Observability.Enabled {
		srv = api.NewServer(cfg, db, logger, pools, reporters, pruner)
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				logger.Fatalf("server: %v", err)
			}
		}()
		logger.Printf("observability listening on %s", cfg.ListenAddr)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if srv != nil {
		if err := srv.Stop(ctx); err != nil {
			logger.Errorf("graceful shutdown: %v", err)
		}
	}
	pruner.Stop()
	for _, p := range pools {
		if err := p.Shutdown(ctx); err != nil {
			logger.Errorf("pool %s shutdown: %v", p.Label(), err)
		}
	}
}
