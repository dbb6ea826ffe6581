package storage

import (
	"context"
	"time"

	"paperpost/internal/types"
)

// Mark is the durable watermark: everything at or before it has been handled.
// ItemID breaks ties between items published at the same instant; an empty
// ItemID (legacy checkpoint) admits only strictly newer items.
type Mark struct {
	PublishedAt time.Time
	ItemID      string
}

func MarkOf(item types.Item) Mark {
	return Mark{PublishedAt: item.PublishedAt.UTC(), ItemID: item.ID}
}

// Admits reports whether item is past the watermark. Items sharing a
// timestamp are ordered by ID, the same order sources return them in.
func (m *Mark) Admits(item types.Item) bool {
	if m == nil {
		return true
	}
	switch {
	case item.PublishedAt.After(m.PublishedAt):
		return true
	case item.PublishedAt.Equal(m.PublishedAt):
		return m.ItemID != "" && item.ID > m.ItemID
	default:
		return false
	}
}

// Before reports whether m sorts strictly before other.
func (m Mark) Before(other Mark) bool {
	if !m.PublishedAt.Equal(other.PublishedAt) {
		return m.PublishedAt.Before(other.PublishedAt)
	}
	return m.ItemID < other.ItemID
}

type CheckpointStore interface {
	// Read returns nil when no checkpoint has been written yet.
	Read(ctx context.Context) (*Mark, error)
	Write(ctx context.Context, mark Mark) error
	Clear(ctx context.Context) error
	Close() error
}

// Ledger records which sinks already received an item so a run restarted
// after a crash does not publish twice. Backends implement it optionally.
type Ledger interface {
	IsPublished(ctx context.Context, itemID, sink string) (bool, error)
	MarkPublished(ctx context.Context, itemID, sink string) error
}
