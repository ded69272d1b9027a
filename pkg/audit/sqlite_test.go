package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/fluxorio/stormsocket/pkg/storm"
)

func TestSQLiteSink_RecordDisconnect(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	sink, err := NewSQLiteSink(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteSink failed: %v", err)
	}
	defer sink.Close()

	if err := sink.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}

	id := storm.ConnectionId{Slot: 3, Generation: 1}
	if err := sink.RecordDisconnect(id, storm.FrontendId(42)); err != nil {
		t.Fatalf("RecordDisconnect failed: %v", err)
	}

	var count int
	row := sink.db.QueryRow(`SELECT COUNT(*) FROM disconnect_events WHERE connection_slot = ? AND frontend_id = ?`, 3, 42)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestNewSQLiteSink_RejectsEmptyPath(t *testing.T) {
	if _, err := NewSQLiteSink(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
