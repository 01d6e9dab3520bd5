package assistant

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"datachat/internal/config"
	"datachat/internal/storage"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"app": {Driver: "sqlite3", DSN: ":memory:"},
		},
	}
	db, err := storage.Open("app", cfg)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	// each new sqlite :memory: connection is a fresh database
	db.SetMaxOpenConns(1)
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func TestEnsureSessionCreatesOnce(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	ctx := context.Background()

	se, created, err := svc.EnsureSession(ctx, "abc-123")
	if err != nil {
		t.Fatalf("ensure session: %v", err)
	}
	if !created {
		t.Fatalf("expected session to be created")
	}
	if se.Title != "untitled" || se.TotalTokens != 0 {
		t.Fatalf("unexpected new session: %+v", se)
	}

	again, created, err := svc.EnsureSession(ctx, "abc-123")
	if err != nil {
		t.Fatalf("ensure session twice: %v", err)
	}
	if created {
		t.Fatalf("expected existing session to be reused")
	}
	if again.ID != se.ID {
		t.Fatalf("session id mismatch: %s vs %s", again.ID, se.ID)
	}
}

func TestEnsureSessionConcurrentFirstRequests(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)

	const callers = 8
	var (
		wg      sync.WaitGroup
		created atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, wasNew, err := svc.EnsureSession(context.Background(), "same-fresh-id")
			if err != nil {
				t.Errorf("ensure session: %v", err)
				return
			}
			if wasNew {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	if created.Load() != 1 {
		t.Fatalf("expected exactly one creation, got %d", created.Load())
	}
	var rows int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE id = 'same-fresh-id'`).Scan(&rows); err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected one session row, got %d", rows)
	}
}

func TestEnsureSessionRejectsEmptyID(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)

	if _, _, err := svc.EnsureSession(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty session id")
	}
}

func TestRecordExchangeKeepsTokenInvariant(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	ctx := context.Background()

	if _, _, err := svc.EnsureSession(ctx, "s1"); err != nil {
		t.Fatalf("ensure session: %v", err)
	}

	totals := []int{12, 7, 31}
	for i, n := range totals {
		ex, err := svc.RecordExchange(ctx, "s1", "question", "answer", n)
		if err != nil {
			t.Fatalf("record exchange %d: %v", i, err)
		}
		if ex.ID <= 0 {
			t.Fatalf("expected autoincrement exchange id, got %d", ex.ID)
		}
	}

	se, err := svc.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	sum, err := svc.SessionTokenSum(ctx, "s1")
	if err != nil {
		t.Fatalf("token sum: %v", err)
	}
	want := 12 + 7 + 31
	if se.TotalTokens != want || sum != want {
		t.Fatalf("token invariant broken: counter=%d sum=%d want=%d", se.TotalTokens, sum, want)
	}

	exchanges, err := svc.SessionExchanges(ctx, "s1")
	if err != nil {
		t.Fatalf("list exchanges: %v", err)
	}
	if len(exchanges) != len(totals) {
		t.Fatalf("expected %d exchanges, got %d", len(totals), len(exchanges))
	}
}

func TestRecordExchangeUnknownSession(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)

	if _, err := svc.RecordExchange(context.Background(), "missing", "q", "a", 5); err == nil {
		t.Fatalf("expected error for unknown session")
	}

	// neither table may hold a partial write
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&count); err != nil {
		t.Fatalf("count conversations: %v", err)
	}
	if count != 0 {
		t.Fatalf("partial write: %d orphan conversation rows", count)
	}
}

func TestEndSession(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	ctx := context.Background()

	if _, _, err := svc.EnsureSession(ctx, "s2"); err != nil {
		t.Fatalf("ensure session: %v", err)
	}
	if err := svc.EndSession(ctx, "s2"); err != nil {
		t.Fatalf("end session: %v", err)
	}
	se, err := svc.GetSession(ctx, "s2")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if se.EndedAt == nil {
		t.Fatalf("expected ended_at to be set")
	}
	first := *se.EndedAt

	if err := svc.EndSession(ctx, "s2"); err != nil {
		t.Fatalf("end session twice: %v", err)
	}
	se, err = svc.GetSession(ctx, "s2")
	if err != nil {
		t.Fatalf("get session after second end: %v", err)
	}
	if !se.EndedAt.Equal(first) {
		t.Fatalf("ended_at changed on second end")
	}

	if err := svc.EndSession(ctx, "nope"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for unknown session, got %v", err)
	}
}
