package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"paperpost/internal/storage"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "paperpost.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	mark, err := s.Read(ctx)
	if err != nil || mark != nil {
		t.Fatalf("fresh database should have no checkpoint, got %+v, %v", mark, err)
	}

	first := storage.Mark{PublishedAt: time.Date(2024, 1, 5, 18, 0, 0, 0, time.UTC), ItemID: "2401.00001v1"}
	second := storage.Mark{PublishedAt: first.PublishedAt, ItemID: "2401.00002v1"}

	for _, m := range []storage.Mark{first, second} {
		if err := s.Write(ctx, m); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	got, err := s.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !got.PublishedAt.Equal(second.PublishedAt) || got.ItemID != second.ItemID {
		t.Fatalf("got %+v, want %+v", got, second)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got, _ := s.Read(ctx); got != nil {
		t.Fatalf("expected cleared checkpoint, got %+v", got)
	}
}

func TestPublishLedger(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	ledger := storage.LedgerOf(s)
	if ledger == nil {
		t.Fatalf("sqlite store should expose a ledger")
	}

	ok, err := ledger.IsPublished(ctx, "2401.00001v1", "discord")
	if err != nil || ok {
		t.Fatalf("expected unpublished item, got %v, %v", ok, err)
	}

	for i := 0; i < 2; i++ {
		if err := ledger.MarkPublished(ctx, "2401.00001v1", "discord"); err != nil {
			t.Fatalf("MarkPublished: %v", err)
		}
	}

	ok, err = ledger.IsPublished(ctx, "2401.00001v1", "discord")
	if err != nil || !ok {
		t.Fatalf("expected published item, got %v, %v", ok, err)
	}
	ok, _ = ledger.IsPublished(ctx, "2401.00001v1", "zotero")
	if ok {
		t.Fatalf("ledger entries are per sink")
	}
}

func TestWriteErrorIsWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	boom := errors.New("disk I/O error")
	mock.ExpectExec("INSERT INTO checkpoint").WillReturnError(boom)

	s := NewWithDB(db)
	err = s.Write(context.Background(), storage.Mark{PublishedAt: time.Now()})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReadErrorIsWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT published_at, item_id FROM checkpoint").
		WillReturnRows(sqlmock.NewRows([]string{"published_at", "item_id"}).AddRow("not a time", ""))

	if _, err := NewWithDB(db).Read(context.Background()); err == nil {
		t.Fatalf("expected invalid timestamp error")
	}
}
