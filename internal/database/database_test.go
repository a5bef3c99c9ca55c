package database

import (
	"context"
	"log/slog"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"vea/internal/domain"
)

func newTestDatabase(t *testing.T) (*Database, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "vea.sqlite")

	db, err := New(context.Background(), dbPath, slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close db: %v", err)
		}
	})

	return db, dbPath
}

func TestReplaceSnapshotRoundTrip(t *testing.T) {
	db, _ := newTestDatabase(t)
	ctx := context.Background()

	published := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	entries := []domain.Entry{
		{Source: "A", Title: "Ransomware hits hospital", Summary: "down", Link: "https://example.com/l1", Published: &published},
		{Source: "B", Title: "Fortinet patch", Link: "https://example.com/l2"},
	}
	stats := domain.RunStats{SourcesAttempted: 3, SourcesFailed: 1, EntriesMatched: 3, EntriesEmitted: 2}

	if err := db.ReplaceSnapshot(ctx, "2024-03-01", entries, stats); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := db.snapshot(ctx, "2024-03-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(got, entries) {
		t.Fatalf("unexpected snapshot:\n got %+v\nwant %+v", got, entries)
	}

	gotStats, ok, err := db.runStats(ctx, "2024-03-01")
	if err != nil || !ok {
		t.Fatalf("expected run stats, got ok=%v err=%v", ok, err)
	}

	if gotStats != stats {
		t.Fatalf("unexpected stats: got %+v want %+v", gotStats, stats)
	}
}

func TestReplaceSnapshotOverwritesSameDay(t *testing.T) {
	db, _ := newTestDatabase(t)
	ctx := context.Background()

	first := []domain.Entry{
		{Source: "A", Title: "one", Link: "https://example.com/1"},
		{Source: "A", Title: "two", Link: "https://example.com/2"},
	}
	second := []domain.Entry{{Source: "B", Title: "three", Link: "https://example.com/3"}}
	other := []domain.Entry{{Source: "C", Title: "other day", Link: "https://example.com/4"}}

	for _, step := range []struct {
		dateKey string
		entries []domain.Entry
	}{
		{"2024-03-01", first},
		{"2024-03-02", other},
		{"2024-03-01", second},
	} {
		if err := db.ReplaceSnapshot(ctx, step.dateKey, step.entries, domain.RunStats{EntriesEmitted: len(step.entries)}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, err := db.snapshot(ctx, "2024-03-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(got, second) {
		t.Fatalf("expected latest snapshot, got %+v", got)
	}

	got, err = db.snapshot(ctx, "2024-03-02")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(got, other) {
		t.Fatalf("expected other day untouched, got %+v", got)
	}
}

func TestReplaceSnapshotEmptyDateKey(t *testing.T) {
	db, _ := newTestDatabase(t)

	if err := db.ReplaceSnapshot(context.Background(), " ", nil, domain.RunStats{}); err == nil {
		t.Fatalf("expected error for empty date key")
	}
}

func TestRunStatsMissingDay(t *testing.T) {
	db, _ := newTestDatabase(t)

	_, ok, err := db.runStats(context.Background(), "1999-01-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ok {
		t.Fatalf("expected no stats for missing day")
	}
}

func TestNewIsIdempotent(t *testing.T) {
	db, dbPath := newTestDatabase(t)
	ctx := context.Background()

	entries := []domain.Entry{{Source: "A", Title: "kept", Link: "https://example.com/kept"}}
	if err := db.ReplaceSnapshot(ctx, "2024-03-01", entries, domain.RunStats{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reopened, err := New(ctx, dbPath, slog.Default())
	if err != nil {
		t.Fatalf("unexpected error on reopen: %v", err)
	}
	defer func() {
		if err = reopened.Close(); err != nil {
			t.Errorf("failed to close db: %v", err)
		}
	}()

	got, err := reopened.snapshot(ctx, "2024-03-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(got, entries) {
		t.Fatalf("expected data to survive reopen, got %+v", got)
	}
}
