package processors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"paperpost/internal/retry"
	"paperpost/internal/types"
)

type EnricherOptions struct {
	Client          *http.Client
	TempDir         string
	MaxTextChars    int
	Timeout         time.Duration
	DownloadPolicy  retry.Policy
	SummarizePolicy retry.Policy
	Logger          *slog.Logger
}

// PaperEnricher downloads the full text of an item, extracts it and asks the
// summarizer for a structured summary.
type PaperEnricher struct {
	summarizer *Summarizer
	opts       EnricherOptions
	logger     *slog.Logger
}

func NewPaperEnricher(summarizer *Summarizer, opts EnricherOptions) *PaperEnricher {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 2 * time.Minute}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	logger := opts.Logger.With("component", "enricher")
	if opts.DownloadPolicy.Name == "" {
		opts.DownloadPolicy.Name = "download"
	}
	if opts.SummarizePolicy.Name == "" {
		opts.SummarizePolicy.Name = "summarize"
	}
	opts.DownloadPolicy.Logger = logger
	opts.SummarizePolicy.Logger = logger

	return &PaperEnricher{
		summarizer: summarizer,
		opts:       opts,
		logger:     logger,
	}
}

// Enrich calls fn exactly once. The downloaded file lives in a temporary
// directory that is removed after fn returns. When the download fails fn
// receives nil and the download error is returned alongside fn's.
func (e *PaperEnricher) Enrich(ctx context.Context, item types.Item, fn func(*types.Enrichment) error) error {
	logger := e.logger.With("item_id", item.ID)

	dir, err := os.MkdirTemp(e.opts.TempDir, "paperpost-*")
	if err != nil {
		return errors.Join(fmt.Errorf("create temp dir: %w", err), fn(nil))
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn("Failed to remove temp dir", "dir", dir, "error", err)
		}
	}()

	workCtx := ctx
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		workCtx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	path := filepath.Join(dir, item.FileName())
	err = retry.Do(workCtx, e.opts.DownloadPolicy, func(ctx context.Context) error {
		return e.download(ctx, item.ContentURL, path)
	})
	if err != nil {
		logger.Warn("Failed to download paper", "url", item.ContentURL, "error", err)
		return errors.Join(fmt.Errorf("download %s: %w", item.ID, err), fn(nil))
	}

	text, err := ExtractText(path)
	if err != nil {
		logger.Warn("Failed to extract text", "error", err)
	}
	if text == "" {
		text = item.Abstract
	}
	text = truncateRunes(text, e.opts.MaxTextChars)

	summary, err := retry.DoValue(workCtx, e.opts.SummarizePolicy, func(ctx context.Context) (*types.Summary, error) {
		return e.summarizer.Summarize(ctx, item.Title, text)
	})
	if err != nil {
		logger.Warn("Failed to summarize paper", "error", err)
		summary = nil
	}

	logger.Debug("Paper enriched", "chars", len(text), "summarized", summary != nil)
	return fn(&types.Enrichment{
		FullText:    text,
		Summary:     summary,
		ContentPath: path,
	})
}

func (e *PaperEnricher) download(ctx context.Context, url, dst string) error {
	if url == "" {
		return types.NonRetryable(fmt.Errorf("no content url: %w", types.ErrContentFetch))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.NonRetryable(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", "paperpost/1.0")

	resp, err := e.opts.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrContentFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%s returned %s: %w", url, resp.Status, types.ErrContentFetch)
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			return types.NonRetryable(err)
		}
		return err
	}

	f, err := os.Create(dst)
	if err != nil {
		return types.NonRetryable(fmt.Errorf("create %s: %w", dst, err))
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("%w: %w", types.ErrContentFetch, err)
	}
	return f.Close()
}
