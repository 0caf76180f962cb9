package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	storage, err := NewStorage(db)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	return storage
}

func TestStorageSaveFillsDefaults(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	e := &Entry{MailingID: 7, Subject: "Profile", Recipients: 3, Sent: 3}
	if err := storage.Save(ctx, e); err != nil {
		t.Fatalf("failed to save entry: %v", err)
	}

	if e.ID == "" {
		t.Error("expected generated ID")
	}
	if e.SentAt.IsZero() {
		t.Error("expected SentAt to be set")
	}

	entries, err := storage.List(ctx, 0)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].MailingID != 7 || entries[0].Subject != "Profile" {
		t.Errorf("unexpected entry: %+v", entries[0])
	}
}

func TestStorageListNewestFirst(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		e := &Entry{MailingID: int64(i + 1), SentAt: base.Add(time.Duration(i) * time.Hour)}
		if err := storage.Save(ctx, e); err != nil {
			t.Fatalf("failed to save entry %d: %v", i, err)
		}
	}

	entries, err := storage.List(ctx, 3)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []int64{5, 4, 3} {
		if entries[i].MailingID != want {
			t.Errorf("entries[%d].MailingID = %d, want %d", i, entries[i].MailingID, want)
		}
	}

	count, err := storage.Count(ctx)
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 5 {
		t.Errorf("expected count 5, got %d", count)
	}
}

func TestStoragePrune(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	old := &Entry{MailingID: 1, SentAt: time.Now().Add(-48 * time.Hour)}
	fresh := &Entry{MailingID: 2, SentAt: time.Now()}
	for _, e := range []*Entry{old, fresh} {
		if err := storage.Save(ctx, e); err != nil {
			t.Fatalf("failed to save entry: %v", err)
		}
	}

	removed, err := storage.Prune(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("failed to prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}

	entries, _ := storage.List(ctx, 0)
	if len(entries) != 1 || entries[0].MailingID != 2 {
		t.Errorf("unexpected remaining entries: %+v", entries)
	}
}
