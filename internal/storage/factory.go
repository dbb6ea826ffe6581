package storage

import (
	"fmt"

	"paperpost/internal/config"
)

var factoryFuncs = map[string]func(config.StorageConfig) (CheckpointStore, error){}

func RegisterFactory(storageType string, fn func(config.StorageConfig) (CheckpointStore, error)) {
	factoryFuncs[storageType] = fn
}

func New(cfg config.StorageConfig) (CheckpointStore, error) {
	storageType := cfg.Type
	if storageType == "" {
		storageType = "file"
	}

	fn, exists := factoryFuncs[storageType]
	if !exists {
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}

	return fn(cfg)
}

// LedgerOf returns the store's publish ledger, or nil if it has none.
func LedgerOf(store CheckpointStore) Ledger {
	ledger, _ := store.(Ledger)
	return ledger
}
