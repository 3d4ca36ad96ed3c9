package store

import (
	"context"
	"database/sql"
	"time"
)

type DumpReportStore interface {
	Record(ctx context.Context, rec DumpReport) error
	ListRecent(ctx context.Context, limit int) ([]DumpReport, error)
	MarkPruned(ctx context.Context, path string) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type DumpReport struct {
	ID        string    `json:"id"`
	PoolLabel string    `json:"pool_label"`
	Path      string    `json:"path"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error"`
	Pruned    bool      `json:"pruned"`
	CreatedAt time.Time `json:"created_at"`
}

type dumpReportStore struct {
	db *sql.DB
}

func NewDumpReportStore(db *sql.DB) DumpReportStore {
	return &dumpReportStore{db: db}
}

func (s *dumpReportStore) Record(ctx context.Context, rec DumpReport) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dump_reports(id, pool_label, path, ok, error, pruned, created_at) VALUES(?,?,?,?,?,?,?)`,
		rec.ID, rec.PoolLabel, rec.Path, boolToInt(rec.OK), rec.Error, boolToInt(rec.Pruned), rec.CreatedAt.UTC())
	return err
}

func (s *dumpReportStore) ListRecent(ctx context.Context, limit int) ([]DumpReport, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pool_label, path, ok, error, pruned, created_at FROM dump_reports ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []DumpReport
	for rows.Next() {
		var r DumpReport
		var ok, pruned int
		if err := rows.Scan(&r.ID, &r.PoolLabel, &r.Path, &ok, &r.Error, &pruned, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.OK = ok != 0
		r.Pruned = pruned != 0
		res = append(res, r)
	}
	return res, rows.Err()
}

func (s *dumpReportStore) MarkPruned(ctx context.Context, path string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE dump_reports SET pruned=1 WHERE path=?`, path)
	return err
}

func (s *dumpReportStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dump_reports WHERE created_at<?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
