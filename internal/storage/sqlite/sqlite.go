package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"paperpost/internal/config"
	"paperpost/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

func init() {
	storage.RegisterFactory("sqlite", func(cfg config.StorageConfig) (storage.CheckpointStore, error) {
		return New(cfg.Path)
	})
}

// Store keeps the checkpoint in a single-row table next to the publish ledger.
type Store struct {
	conn *sql.DB
}

func New(dbPath string) (*Store, error) {
	slog.Info("Initializing SQLite storage", "path", dbPath)

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", dbPath)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}

	slog.Info("Storage initialized successfully")
	return &Store{conn: conn}, nil
}

// NewWithDB wraps an already migrated connection.
func NewWithDB(conn *sql.DB) *Store {
	return &Store{conn: conn}
}

func runMigrations(conn *sql.DB) error {
	slog.Debug("Running database migrations")

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(conn, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Debug("Migrations completed successfully")
	return nil
}

func (s *Store) Read(ctx context.Context) (*storage.Mark, error) {
	var publishedAt, itemID string
	err := s.conn.QueryRowContext(ctx, `SELECT published_at, item_id FROM checkpoint WHERE id = 1`).Scan(&publishedAt, &itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, publishedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid checkpoint timestamp %q: %w", publishedAt, err)
	}

	return &storage.Mark{PublishedAt: ts.UTC(), ItemID: itemID}, nil
}

func (s *Store) Write(ctx context.Context, mark storage.Mark) error {
	query := `
		INSERT INTO checkpoint (id, published_at, item_id, updated_at)
		VALUES (1, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			published_at = excluded.published_at,
			item_id = excluded.item_id,
			updated_at = excluded.updated_at
	`

	_, err := s.conn.ExecContext(ctx, query, mark.PublishedAt.UTC().Format(time.RFC3339Nano), mark.ItemID)
	if err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM checkpoint`); err != nil {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	return nil
}

func (s *Store) MarkPublished(ctx context.Context, itemID, sink string) error {
	query := `
		INSERT INTO published (item_id, sink)
		VALUES (?, ?)
		ON CONFLICT(item_id, sink) DO NOTHING
	`

	if _, err := s.conn.ExecContext(ctx, query, itemID, sink); err != nil {
		return fmt.Errorf("failed to mark as published: %w", err)
	}
	return nil
}

func (s *Store) IsPublished(ctx context.Context, itemID, sink string) (bool, error) {
	var count int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM published WHERE item_id = ? AND sink = ?`, itemID, sink).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check published status: %w", err)
	}
	return count > 0, nil
}

func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
