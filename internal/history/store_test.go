package history

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"xeterbot/internal/bus"
	"xeterbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "history.db"), testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func job(id string, status domain.JobStatus, at time.Time) domain.JobRecord {
	return domain.JobRecord{
		ID:         id,
		Channel:    "discord",
		ChatID:     "chan-1",
		AuthorID:   "u1",
		AuthorName: "alice",
		Preset:     "Medium",
		Origin:     "attachment",
		InputBytes: 1234,
		OutputName: "Xeter_1.txt",
		Status:     status,
		DurationMs: 420,
		CreatedAt:  at,
	}
}

func TestRecordAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := s.Record(ctx, job(id, domain.JobReplied, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(got))
	}
	if got[0].ID != "c" || got[1].ID != "b" {
		t.Fatalf("expected newest first, got %s, %s", got[0].ID, got[1].ID)
	}

	r := got[0]
	if r.Preset != "Medium" || r.Origin != "attachment" || r.InputBytes != 1234 || r.OutputName != "Xeter_1.txt" {
		t.Fatalf("fields not round-tripped: %+v", r)
	}
	if !r.CreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("created_at mismatch: %v", r.CreatedAt)
	}
}

func TestRecord_DefaultsCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := job("x", domain.JobReplied, time.Time{})
	if err := s.Record(ctx, rec); err != nil {
		t.Fatal(err)
	}
	got, _ := s.Recent(ctx, 1)
	if got[0].CreatedAt.IsZero() || time.Since(got[0].CreatedAt) > time.Minute {
		t.Fatalf("created_at not defaulted: %v", got[0].CreatedAt)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	statuses := []domain.JobStatus{domain.JobReplied, domain.JobReplied, domain.JobEngineFailure, domain.JobSizeExceeded}
	for i, st := range statuses {
		if err := s.Record(ctx, job(string(rune('a'+i)), st, now)); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 4 {
		t.Fatalf("expected total 4, got %d", stats.Total)
	}
	if stats.ByStatus[domain.JobReplied] != 2 || stats.ByStatus[domain.JobEngineFailure] != 1 {
		t.Fatalf("unexpected breakdown: %v", stats.ByStatus)
	}
}

func TestPrune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	s.Record(ctx, job("old", domain.JobReplied, now.Add(-48*time.Hour)))
	s.Record(ctx, job("new", domain.JobReplied, now))

	n, err := s.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned, got %d", n)
	}
	got, _ := s.Recent(ctx, 10)
	if len(got) != 1 || got[0].ID != "new" {
		t.Fatalf("unexpected remaining jobs: %+v", got)
	}
}

func TestObserve_RecordsFinishedJobs(t *testing.T) {
	s := newTestStore(t)
	eb := bus.NewEventBus(testLogger())
	Observe(eb, s, testLogger())

	eb.Emit(bus.JobEvent{Type: bus.EventJobStarted, Job: job("started-only", "", time.Now())})
	eb.Emit(bus.JobEvent{Type: bus.EventJobFinished, Job: job("done", domain.JobEngineFailure, time.Now())})

	got, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "done" || got[0].Status != domain.JobEngineFailure {
		t.Fatalf("expected only the finished job, got %+v", got)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if v, _ := GetSchemaVersion(db); v != 0 {
		t.Fatalf("expected version 0 for empty db, got %d", v)
	}
	for i := 0; i < 2; i++ {
		if err := RunMigrations(db, testLogger()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	v, err := GetSchemaVersion(db)
	if err != nil {
		t.Fatal(err)
	}
	if v != schemaVersion {
		t.Fatalf("expected schema version %d, got %d", schemaVersion, v)
	}
}

func TestSplitSQL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"empty", "", 0},
		{"single", "CREATE TABLE t (id INT)", 1},
		{"multiple", "CREATE TABLE t1 (id INT); CREATE TABLE t2 (id INT)", 2},
		{"trailing semicolon", "CREATE TABLE t (id INT);", 1},
		{"whitespace", "  CREATE TABLE t (id INT)  ;  ", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := splitSQL(tt.input); len(got) != tt.want {
				t.Errorf("expected %d statements, got %d: %v", tt.want, len(got), got)
			}
		})
	}
}
