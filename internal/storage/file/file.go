package file

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"paperpost/internal/config"
	"paperpost/internal/storage"
)

func init() {
	storage.RegisterFactory("file", func(cfg config.StorageConfig) (storage.CheckpointStore, error) {
		return New(cfg.Path)
	})
}

// Store keeps the watermark in a small text file: the RFC 3339 timestamp on
// the first line and, optionally, the item id on the second.
type Store struct {
	path string
	mu   sync.Mutex
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("checkpoint path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	slog.Info("Using file checkpoint", "path", path)
	return &Store{path: path}, nil
}

func (s *Store) Read(ctx context.Context) (*storage.Mark, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	return parse(data)
}

func parse(data []byte) (*storage.Mark, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	var lines []string
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
	}
	if len(lines) == 0 {
		return nil, nil
	}

	ts, err := parseTime(lines[0])
	if err != nil {
		return nil, fmt.Errorf("invalid checkpoint timestamp %q: %w", lines[0], err)
	}

	mark := &storage.Mark{PublishedAt: ts.UTC()}
	if len(lines) > 1 {
		mark.ItemID = lines[1]
	}
	return mark, nil
}

// parseTime accepts RFC 3339 and the space separated form older checkpoint
// files were written in.
func parseTime(value string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05-07:00",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	var firstErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// Write replaces the file atomically so a crash leaves either the old or the
// new watermark on disk.
func (s *Store) Write(ctx context.Context, mark storage.Mark) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	content := mark.PublishedAt.UTC().Format(time.RFC3339Nano) + "\n"
	if mark.ItemID != "" {
		content += mark.ItemID + "\n"
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}
