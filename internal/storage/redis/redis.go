package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"paperpost/internal/config"
	"paperpost/internal/storage"
)

func init() {
	storage.RegisterFactory("redis", func(cfg config.StorageConfig) (storage.CheckpointStore, error) {
		return New(context.Background(), cfg.Redis)
	})
}

// Store keeps the checkpoint in a hash and the publish ledger in one set per
// item, all under a common key prefix.
type Store struct {
	client *redis.Client
	prefix string
}

func New(ctx context.Context, cfg config.RedisConfig) (*Store, error) {
	slog.Info("Initializing Redis storage", "addr", cfg.Addr, "db", cfg.DB)

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewWithClient(client, cfg.Prefix), nil
}

func NewWithClient(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "paperpost"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) checkpointKey() string {
	return s.prefix + ":checkpoint"
}

func (s *Store) publishedKey(itemID string) string {
	return fmt.Sprintf("%s:published:%s", s.prefix, itemID)
}

func (s *Store) Read(ctx context.Context) (*storage.Mark, error) {
	fields, err := s.client.HGetAll(ctx, s.checkpointKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	raw, ok := fields["published_at"]
	if !ok || raw == "" {
		return nil, nil
	}

	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid checkpoint timestamp %q: %w", raw, err)
	}

	return &storage.Mark{PublishedAt: ts.UTC(), ItemID: fields["item_id"]}, nil
}

func (s *Store) Write(ctx context.Context, mark storage.Mark) error {
	err := s.client.HSet(ctx, s.checkpointKey(),
		"published_at", mark.PublishedAt.UTC().Format(time.RFC3339Nano),
		"item_id", mark.ItemID,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.checkpointKey()).Err(); err != nil {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	return nil
}

func (s *Store) MarkPublished(ctx context.Context, itemID, sink string) error {
	if err := s.client.SAdd(ctx, s.publishedKey(itemID), sink).Err(); err != nil {
		return fmt.Errorf("failed to mark as published: %w", err)
	}
	return nil
}

func (s *Store) IsPublished(ctx context.Context, itemID, sink string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.publishedKey(itemID), sink).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check published status: %w", err)
	}
	return ok, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
