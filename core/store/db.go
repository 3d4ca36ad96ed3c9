package store

import (
	"database/sql"
	"errors"
	"strings"

	"poolguard/core/utils"

	_ "modernc.org/sqlite"
)

// Open opens the embedded journal database. The journal is local by design;
// nothing here talks to an external server.
func Open(path string, logger *utils.Logger) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("journal path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		if logger != nil {
			logger.Errorf("journal open failed: %v", err)
		}
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if logger != nil {
		logger.Printf("journal open sqlite %s", path)
	}
	return db, nil
}
