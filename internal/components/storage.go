package components

import (
	"context"
	"fmt"

	"paperpost/internal/config"
	"paperpost/internal/storage"
)

type StorageComponent struct {
	config config.StorageConfig
	store  storage.CheckpointStore
}

func NewStorageComponent(cfg config.StorageConfig) *StorageComponent {
	return &StorageComponent{
		config: cfg,
	}
}

func (c *StorageComponent) Name() string {
	return StorageComponentName
}

func (c *StorageComponent) Dependencies() []string {
	return []string{}
}

func (c *StorageComponent) Validate() error {
	switch c.config.Type {
	case "", "file", "sqlite":
		if c.config.Path == "" {
			return fmt.Errorf("storage: path is required for %q storage", c.config.Type)
		}
	case "redis":
		if c.config.Redis.Addr == "" {
			return fmt.Errorf("storage: redis address is required")
		}
	}
	return nil
}

func (c *StorageComponent) Initialize(ctx context.Context) error {
	store, err := storage.New(c.config)
	if err != nil {
		return fmt.Errorf("storage: failed to initialize store: %w", err)
	}

	c.store = store
	return nil
}

func (c *StorageComponent) Close(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

func (c *StorageComponent) Store() storage.CheckpointStore {
	return c.store
}
