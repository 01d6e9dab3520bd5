package assistant

import (
	"context"
	"testing"
	"time"
)

func TestCleanupEndedSessions(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	ctx := context.Background()

	for _, id := range []string{"old-ended", "fresh-ended", "still-open"} {
		if _, _, err := svc.EnsureSession(ctx, id); err != nil {
			t.Fatalf("ensure %s: %v", id, err)
		}
		if _, err := svc.RecordExchange(ctx, id, "q", "a", 5); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}
	if err := svc.EndSession(ctx, "old-ended"); err != nil {
		t.Fatalf("end session: %v", err)
	}
	if err := svc.EndSession(ctx, "fresh-ended"); err != nil {
		t.Fatalf("end session: %v", err)
	}
	// push one ended_at past the retention window
	stale := time.Now().UTC().Add(-48 * time.Hour)
	if _, err := db.Exec(`UPDATE sessions SET ended_at = ? WHERE id = ?`, stale, "old-ended"); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	n, err := svc.CleanupEndedSessions(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned session, got %d", n)
	}

	var sessions int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&sessions); err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	if sessions != 2 {
		t.Fatalf("expected 2 surviving sessions, got %d", sessions)
	}

	var orphans int
	if err := db.QueryRow(`SELECT COUNT(*) FROM conversations WHERE session_id = ?`, "old-ended").Scan(&orphans); err != nil {
		t.Fatalf("count conversations: %v", err)
	}
	if orphans != 0 {
		t.Fatalf("exchanges of the pruned session were not cascaded, %d left", orphans)
	}
}
