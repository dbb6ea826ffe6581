package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"paperpost/internal/metrics"
	"paperpost/internal/retry"
	"paperpost/internal/storage"
	"paperpost/internal/types"
	"paperpost/internal/utils"
)

const (
	NoNewItemsMessage = "本日の新着論文はありません。"
	countsMessage     = "新着論文：%d本\n関心度の高い論文：%d本"
)

type RetryPolicies struct {
	Fetch   retry.Policy
	Rank    retry.Policy
	Publish retry.Policy
}

type PipelineConfig struct {
	Source   Source
	Ranker   Ranker
	Enricher Enricher
	// Publishers run in slice order for every selected item.
	Publishers []Publisher
	Announcer  Announcer
	Store      storage.CheckpointStore

	MaxSelected int
	// ItemTimeout bounds enrichment and publishing of a single item.
	ItemTimeout time.Duration
	// DryRun processes at most one selected item and never writes the
	// checkpoint or the publish ledger.
	DryRun bool

	Retry   RetryPolicies
	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

// Pipeline moves the checkpoint forward one item at a time. An item is only
// checkpointed after it was skipped, or after enrichment and every publisher
// were attempted.
type Pipeline struct {
	source      Source
	ranker      Ranker
	enricher    Enricher
	publishers  []Publisher
	announcer   Announcer
	store       storage.CheckpointStore
	ledger      storage.Ledger
	maxSelected int
	itemTimeout time.Duration
	dryRun      bool
	retry       RetryPolicies
	metrics     *metrics.Recorder
	logger      *slog.Logger

	mu      sync.Mutex
	running bool
	state   State
	mark    *storage.Mark
}

func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	var missing []string
	if cfg.Source == nil {
		missing = append(missing, "source")
	}
	if cfg.Ranker == nil {
		missing = append(missing, "ranker")
	}
	if cfg.Enricher == nil {
		missing = append(missing, "enricher")
	}
	if cfg.Store == nil {
		missing = append(missing, "checkpoint store")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("pipeline is missing %v", missing)
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "pipeline")

	policies := cfg.Retry
	for _, p := range []struct {
		policy *retry.Policy
		name   string
	}{
		{&policies.Fetch, "fetch"},
		{&policies.Rank, "rank"},
		{&policies.Publish, "publish"},
	} {
		if p.policy.Name == "" {
			p.policy.Name = p.name
		}
		if p.policy.Logger == nil {
			p.policy.Logger = logger
		}
	}

	p := &Pipeline{
		source:      cfg.Source,
		ranker:      cfg.Ranker,
		enricher:    cfg.Enricher,
		publishers:  cfg.Publishers,
		announcer:   cfg.Announcer,
		store:       cfg.Store,
		maxSelected: cfg.MaxSelected,
		itemTimeout: cfg.ItemTimeout,
		dryRun:      cfg.DryRun,
		retry:       policies,
		metrics:     cfg.Metrics,
		logger:      logger,
		state:       StateInit,
	}
	if !cfg.DryRun {
		p.ledger = storage.LedgerOf(cfg.Store)
	}
	return p, nil
}

func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) transition(state State, args ...any) {
	p.mu.Lock()
	from := p.state
	p.state = state
	p.mu.Unlock()

	attrs := append([]any{"from", from, "to", state}, args...)
	if state == StateFailed {
		p.logger.Error("Pipeline state changed", attrs...)
		return
	}
	p.logger.Info("Pipeline state changed", attrs...)
}

// Run executes one pass. Fetch and ranking failures are fatal and leave the
// checkpoint untouched; failures while processing a single item are logged
// and counted.
func (p *Pipeline) Run(ctx context.Context) (summary types.RunSummary, err error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return summary, fmt.Errorf("pipeline already running")
	}
	p.running = true
	p.mu.Unlock()

	start := time.Now()
	p.transition(StateInit, "source", p.source.Name(), "dry_run", p.dryRun)

	defer func() {
		summary.Duration = time.Since(start)
		if err != nil {
			p.transition(StateFailed, "error", err)
		} else {
			p.transition(StateDone,
				"fetched", summary.Fetched,
				"selected", summary.Selected,
				"processed", summary.Processed,
				"skipped", summary.Skipped,
				"failed", summary.Failed,
				"duration", summary.Duration,
			)
		}
		p.metrics.RunFinished(summary, err)

		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	mark, err := p.store.Read(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	p.mark = mark

	p.transition(StateFetching, "since", describeMark(mark))
	items, err := retry.DoValue(ctx, p.retry.Fetch, func(ctx context.Context) ([]types.Item, error) {
		return p.source.Fetch(ctx, mark)
	})
	if err != nil {
		return summary, fmt.Errorf("fetch from %s: %w", p.source.Name(), err)
	}
	summary.Fetched = len(items)

	if len(items) == 0 {
		p.announce(ctx, NoNewItemsMessage)
		return summary, nil
	}

	p.transition(StateRanking, "items", len(items), "limit", p.maxSelected)
	selected, err := retry.DoValue(ctx, p.retry.Rank, func(ctx context.Context) ([]types.Item, error) {
		return p.ranker.Select(ctx, items, p.maxSelected)
	})
	if err != nil {
		return summary, fmt.Errorf("rank: %w", err)
	}
	if p.dryRun && len(selected) > 1 {
		selected = selected[:1]
	}
	summary.Selected = len(selected)

	p.announce(ctx, fmt.Sprintf(countsMessage, len(items), len(selected)))

	chosen := make(map[string]struct{}, len(selected))
	for _, item := range selected {
		chosen[item.ID] = struct{}{}
	}

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if _, ok := chosen[item.ID]; ok {
			p.transition(StateProcessing, "index", i, "item_id", item.ID)
			if p.processItem(ctx, item) {
				summary.Processed++
			} else {
				summary.Failed++
			}
		} else {
			p.logger.Debug("Item not selected", "item_id", item.ID)
			summary.Skipped++
		}

		if err := p.advance(ctx, item); err != nil {
			return summary, err
		}
	}

	return summary, nil
}

// processItem reports whether enrichment and every publisher succeeded.
func (p *Pipeline) processItem(ctx context.Context, item types.Item) bool {
	logger := p.logger.With("item_id", item.ID)

	itemCtx := ctx
	if p.itemTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, p.itemTimeout)
		defer cancel()
	}

	ok := true
	published := false
	publish := func(enrichment *types.Enrichment) error {
		published = true
		if !enrichment.HasSummary() {
			ok = false
			logger.Warn("Item has no summary, publishing without it")
		}
		if p.publishAll(itemCtx, item, enrichment) > 0 {
			ok = false
		}
		return nil
	}

	if err := p.enrich(itemCtx, item, publish); err != nil {
		ok = false
		logger.Error("Enrichment failed", "error", err)
	}

	// An enricher that failed before reaching the callback still owes the
	// publishers a chance to report the item.
	if !published {
		_ = publish(nil)
	}

	return ok
}

func (p *Pipeline) enrich(ctx context.Context, item types.Item, fn func(*types.Enrichment) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("enricher panicked: %v", r)
		}
	}()
	return p.enricher.Enrich(ctx, item, fn)
}

// publishAll runs every publisher in order and returns the number that failed.
// Sinks already recorded in the ledger for this item are skipped.
func (p *Pipeline) publishAll(ctx context.Context, item types.Item, enrichment *types.Enrichment) int {
	logger := p.logger.With("item_id", item.ID)

	pending := utils.FilterArray(p.publishers, func(pub Publisher) bool {
		if p.ledger == nil {
			return true
		}
		done, err := p.ledger.IsPublished(ctx, item.ID, pub.Name())
		if err != nil {
			logger.Warn("Failed to read publish ledger", "sink", pub.Name(), "error", err)
			return true
		}
		if done {
			logger.Info("Item already published to sink, skipping", "sink", pub.Name())
		}
		return !done
	})

	failures := 0
	for _, pub := range pending {
		err := retry.Do(ctx, p.retry.Publish, func(ctx context.Context) error {
			return safePublish(ctx, pub, item, enrichment)
		})
		if err != nil {
			failures++
			p.metrics.SinkFailed(pub.Name())
			logger.Error("Publish failed", "sink", pub.Name(), "error", types.NewSinkError(pub.Name(), item.ID, err))
			continue
		}

		logger.Info("Published item", "sink", pub.Name())
		if p.ledger != nil {
			if err := p.ledger.MarkPublished(ctx, item.ID, pub.Name()); err != nil {
				logger.Warn("Failed to record publish", "sink", pub.Name(), "error", err)
			}
		}
	}
	return failures
}

func safePublish(ctx context.Context, pub Publisher, item types.Item, enrichment *types.Enrichment) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.NonRetryable(fmt.Errorf("%s panicked: %v", pub.Name(), r))
		}
	}()
	return pub.Publish(ctx, item, enrichment)
}

func (p *Pipeline) announce(ctx context.Context, text string) {
	if p.announcer == nil {
		return
	}
	err := retry.Do(ctx, p.retry.Publish, func(ctx context.Context) error {
		return p.announcer.Announce(ctx, text)
	})
	if err != nil {
		p.logger.Warn("Failed to send announcement", "error", err)
	}
}

// advance moves the checkpoint to item. It never moves backwards. A failed
// write aborts the run because later items could no longer be guaranteed
// to be delivered only once.
func (p *Pipeline) advance(ctx context.Context, item types.Item) error {
	next := storage.MarkOf(item)
	if p.mark != nil && !p.mark.Before(next) {
		p.logger.Warn("Refusing to move checkpoint backwards", "item_id", item.ID, "checkpoint", describeMark(p.mark))
		return nil
	}

	if p.dryRun {
		p.logger.Debug("Dry run, checkpoint not written", "item_id", item.ID)
		return nil
	}

	// The write must land even if the run was cancelled mid-item.
	if err := p.store.Write(context.WithoutCancel(ctx), next); err != nil {
		return fmt.Errorf("failed to advance checkpoint to %s: %w", item.ID, err)
	}
	p.mark = &next
	p.metrics.CheckpointAdvanced(next.PublishedAt)
	return nil
}

func describeMark(mark *storage.Mark) string {
	if mark == nil {
		return "beginning"
	}
	if mark.ItemID == "" {
		return mark.PublishedAt.Format(time.RFC3339)
	}
	return mark.PublishedAt.Format(time.RFC3339) + " " + mark.ItemID
}

// IsCanceled reports whether err is a context cancellation or deadline.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
