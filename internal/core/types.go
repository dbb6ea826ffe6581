package core

import (
	"context"

	"paperpost/internal/storage"
	"paperpost/internal/types"
)

type Source interface {
	Name() string
	// Fetch returns every item past since, oldest first.
	Fetch(ctx context.Context, since *storage.Mark) ([]types.Item, error)
}

type Ranker interface {
	// Select returns at most limit items, in input order.
	Select(ctx context.Context, items []types.Item, limit int) ([]types.Item, error)
}

type Enricher interface {
	// Enrich calls fn exactly once, with nil when nothing could be derived.
	// Resources handed to fn are released when fn returns.
	Enrich(ctx context.Context, item types.Item, fn func(*types.Enrichment) error) error
}

type Publisher interface {
	Name() string
	Publish(ctx context.Context, item types.Item, enrichment *types.Enrichment) error
}

// Announcer delivers run-level messages that are not tied to an item.
type Announcer interface {
	Announce(ctx context.Context, text string) error
}

type State string

const (
	StateInit       State = "INIT"
	StateFetching   State = "FETCHING"
	StateRanking    State = "RANKING"
	StateProcessing State = "PROCESSING"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
)
