package database

import (
	"context"
	"path/filepath"
	"testing"

	"nextup/models"
)

// setupTestRepo creates a test database and show row repository.
func setupTestRepo(t *testing.T) *ShowRowRepository {
	t.Helper()
	tmpDir := t.TempDir()
	db, err := NewDB(Config{DatabasePath: filepath.Join(tmpDir, "test.db")})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewShowRowRepository(db.Connection())
}

func TestUpsertAndFetchRows(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	rows := []models.SyncSummary{
		{ID: "82", Name: "Game of Thrones", TypeCode: "t", Watched: false, Priority: true},
		{ID: "431", Name: "Friends", TypeCode: "t", Watched: true},
	}
	if err := repo.UpsertRows(ctx, "shows_alice", rows); err != nil {
		t.Fatalf("UpsertRows failed: %v", err)
	}

	got, err := repo.FetchRows(ctx, "shows_alice")
	if err != nil {
		t.Fatalf("FetchRows failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].ID != "431" || got[1].ID != "82" {
		t.Fatalf("expected rows ordered by show id, got %q then %q", got[0].ID, got[1].ID)
	}
	if !got[1].Priority {
		t.Error("expected priority flag to persist")
	}
	if !got[0].Watched {
		t.Error("expected watched flag to persist")
	}
}

func TestUpsertRowsOverwritesOnConflict(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.UpsertRows(ctx, "shows_alice", []models.SyncSummary{
		{ID: "82", Name: "Game of Thrones", TypeCode: "t"},
	}); err != nil {
		t.Fatalf("UpsertRows failed: %v", err)
	}
	if err := repo.UpsertRows(ctx, "shows_alice", []models.SyncSummary{
		{ID: "82", Name: "GoT", TypeCode: "t", Watched: true},
	}); err != nil {
		t.Fatalf("second UpsertRows failed: %v", err)
	}

	got, err := repo.FetchRows(ctx, "shows_alice")
	if err != nil {
		t.Fatalf("FetchRows failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 row after conflict update, got %d", len(got))
	}
	if got[0].Name != "GoT" || !got[0].Watched {
		t.Fatalf("expected conflict to overwrite fields, got %+v", got[0])
	}
}

func TestFetchRowsIsolatesUsers(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.UpsertRows(ctx, "shows_alice", []models.SyncSummary{{ID: "1", TypeCode: "t"}}); err != nil {
		t.Fatalf("UpsertRows failed: %v", err)
	}

	got, err := repo.FetchRows(ctx, "shows_bob")
	if err != nil {
		t.Fatalf("FetchRows failed: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no rows for other user, got %d", len(got))
	}
}

func TestDeleteRowsNotIn(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if err := repo.UpsertRows(ctx, "shows_alice", []models.SyncSummary{
		{ID: "1", TypeCode: "t"},
		{ID: "2", TypeCode: "a"},
		{ID: "3", TypeCode: "m"},
	}); err != nil {
		t.Fatalf("UpsertRows failed: %v", err)
	}

	if err := repo.DeleteRowsNotIn(ctx, "shows_alice", []string{"2"}); err != nil {
		t.Fatalf("DeleteRowsNotIn failed: %v", err)
	}

	got, err := repo.FetchRows(ctx, "shows_alice")
	if err != nil {
		t.Fatalf("FetchRows failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("expected only row 2 to remain, got %+v", got)
	}
}
