package main

import (
	"context"
	"log"

	"poolguard/config"
	"poolguard/core/store"
	"poolguard/core/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	logger := utils.NewLogger()
	if !cfg.Journal.Enabled {
		logger.Fatalf("journal is disabled; nothing to migrate")
	}
	db, err := store.Open(cfg.Journal.Path, logger)
	if err != nil {
		logger.Fatalf("journal: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(context.Background(), db, logger); err != nil {
		logger.Fatalf("migrations: %v", err)
	}
	logger.Printf("migrations applied")
}
