package credstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hitoshi/snoozeclient/internal/database"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "credentials.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLoad_Empty_ReturnsNil(t *testing.T) {
	store := openTestStore(t)

	cred, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cred != nil {
		t.Errorf("expected nil, got %+v", cred)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	savedAt := time.Date(2026, 3, 4, 5, 6, 7, 890, time.UTC)

	if err := store.Save(ctx, Credential{Username: "alice", Token: "tok-1", SavedAt: savedAt}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	cred, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cred == nil {
		t.Fatal("expected credential, got nil")
	}
	if cred.Username != "alice" || cred.Token != "tok-1" {
		t.Errorf("unexpected credential: %+v", cred)
	}
	if !cred.SavedAt.Equal(savedAt) {
		t.Errorf("SavedAt = %v, want %v", cred.SavedAt, savedAt)
	}
}

func TestSave_ReplacesPrevious(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.Save(ctx, Credential{Username: "alice", Token: "tok-1"})
	store.Save(ctx, Credential{Username: "bob", Token: "tok-2"})

	cred, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cred == nil || cred.Username != "bob" || cred.Token != "tok-2" {
		t.Errorf("expected bob's credential, got %+v", cred)
	}
	if cred.SavedAt.IsZero() {
		t.Error("SavedAt should default to now")
	}

	var count int
	if err := store.db.QueryRow(`SELECT COUNT(*) FROM credentials`).Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("credentials rows = %d, want 1", count)
	}
}

func TestSave_RequiresUsernameAndToken(t *testing.T) {
	store := openTestStore(t)

	if err := store.Save(context.Background(), Credential{Username: "alice"}); err == nil {
		t.Error("expected error for missing token")
	}
	if err := store.Save(context.Background(), Credential{Token: "tok"}); err == nil {
		t.Error("expected error for missing username")
	}
}

func TestClear_RemovesCredential(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.Save(ctx, Credential{Username: "alice", Token: "tok-1"})
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	cred, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cred != nil {
		t.Errorf("expected nil after Clear, got %+v", cred)
	}
}

func TestOpen_ReopenKeepsCredential(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.db")
	ctx := context.Background()

	first, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	first.Save(ctx, Credential{Username: "alice", Token: "tok-1"})
	first.Close()

	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer second.Close()

	cred, err := second.Load(ctx)
	if err != nil || cred == nil || cred.Token != "tok-1" {
		t.Errorf("Load after reopen = (%+v, %v)", cred, err)
	}
}

func TestPlaceholder_ByDialect(t *testing.T) {
	pg := NewSQLStore(nil, database.DialectPostgres)
	lite := NewSQLStore(nil, database.DialectSQLite)

	if got := pg.placeholder(2); got != "$2" {
		t.Errorf("postgres placeholder = %q, want $2", got)
	}
	if got := lite.placeholder(2); got != "?" {
		t.Errorf("sqlite placeholder = %q, want ?", got)
	}
}
