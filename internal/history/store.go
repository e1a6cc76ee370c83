// Package history keeps a SQLite record of every finished obfuscation job.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"xeterbot/internal/bus"
	"xeterbot/internal/domain"
)

// SQLiteStore implements domain.JobHistory using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Record(ctx context.Context, rec domain.JobRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO jobs
			(id, channel, chat_id, author_id, author_name, preset, origin,
			 input_bytes, output_name, status, detail, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Channel, rec.ChatID, rec.AuthorID, rec.AuthorName, rec.Preset, rec.Origin,
		rec.InputBytes, rec.OutputName, string(rec.Status), rec.Detail, rec.DurationMs,
		rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record job %s: %w", rec.ID, err)
	}
	return nil
}

// Recent returns up to limit jobs, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]domain.JobRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel, chat_id, author_id, author_name, preset, origin,
		       input_bytes, output_name, status, detail, duration_ms, created_at
		FROM jobs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.JobRecord
	for rows.Next() {
		var (
			r       domain.JobRecord
			status  string
			created int64
		)
		if err := rows.Scan(&r.ID, &r.Channel, &r.ChatID, &r.AuthorID, &r.AuthorName, &r.Preset, &r.Origin,
			&r.InputBytes, &r.OutputName, &status, &r.Detail, &r.DurationMs, &created); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		r.Status = domain.JobStatus(status)
		r.CreatedAt = time.UnixMilli(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Stats(ctx context.Context) (domain.JobStats, error) {
	stats := domain.JobStats{ByStatus: make(map[domain.JobStatus]int64)}
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM jobs GROUP BY status")
	if err != nil {
		return stats, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return stats, fmt.Errorf("scan stats: %w", err)
		}
		stats.ByStatus[domain.JobStatus(status)] = n
		stats.Total += n
	}
	return stats, rows.Err()
}

// Prune deletes jobs created before cutoff and returns how many were removed.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM jobs WHERE created_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Observe records every finished job published on eb until the returned func
// is called. Write failures are logged; they never affect the job itself.
func Observe(eb *bus.EventBus, h domain.JobHistory, logger *slog.Logger) (stop func()) {
	if logger == nil {
		logger = slog.Default()
	}
	return eb.On(bus.EventJobFinished, func(e bus.JobEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.Record(ctx, e.Job); err != nil {
			logger.Warn("history write failed", "job_id", e.Job.ID, "err", err)
		}
	})
}

var _ domain.JobHistory = (*SQLiteStore)(nil)
