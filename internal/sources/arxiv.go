package sources

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed/atom"
	"golang.org/x/text/unicode/norm"

	"paperpost/internal/storage"
	"paperpost/internal/types"
)

const arxivQueryTime = "200601021504"

type ArxivSource struct {
	endpoint   string
	category   string
	maxResults int
	client     *http.Client
	parser     *atom.Parser
	logger     *slog.Logger
	now        func() time.Time
}

func NewArxivSource(endpoint, category string, maxResults int, client *http.Client, logger *slog.Logger) *ArxivSource {
	if maxResults <= 0 {
		maxResults = 50
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ArxivSource{
		endpoint:   endpoint,
		category:   category,
		maxResults: maxResults,
		client:     client,
		parser:     &atom.Parser{},
		logger:     logger.With("source", "arxiv", "category", category),
		now:        time.Now,
	}
}

func (a *ArxivSource) Name() string {
	return "arxiv:" + a.category
}

// Query builds the search expression. arXiv only filters submission dates
// to the minute, so the lower bound is rounded down and exact filtering
// happens after parsing.
func (a *ArxivSource) Query(since *storage.Mark) string {
	query := "cat:" + a.category
	if since == nil {
		return query
	}
	from := since.PublishedAt.UTC().Truncate(time.Minute)
	to := a.now().UTC()
	return fmt.Sprintf("%s AND submittedDate:[%s TO %s]", query, from.Format(arxivQueryTime), to.Format(arxivQueryTime))
}

func (a *ArxivSource) requestURL(since *storage.Mark) string {
	params := url.Values{}
	params.Set("search_query", a.Query(since))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(a.maxResults))
	return a.endpoint + "?" + params.Encode()
}

// Fetch returns the papers past since in ascending publication order.
func (a *ArxivSource) Fetch(ctx context.Context, since *storage.Mark) ([]types.Item, error) {
	reqURL := a.requestURL(since)
	a.logger.Debug("Fetching arXiv feed", "url", reqURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, types.NonRetryable(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", "paperpost/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arxiv: %w: %w", types.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("arxiv returned %s: %w", resp.Status, types.ErrSourceUnavailable)
	}

	feed, err := a.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("arxiv: parse feed: %w: %w", types.ErrSourceUnavailable, err)
	}

	if since != nil && len(feed.Entries) >= a.maxResults {
		a.logger.Warn("arXiv result cap reached, older papers in the window are not fetched", "max_results", a.maxResults)
	}

	items := make([]types.Item, 0, len(feed.Entries))
	for i := len(feed.Entries) - 1; i >= 0; i-- {
		item, ok := convertEntry(feed.Entries[i])
		if !ok {
			a.logger.Warn("Skipping arXiv entry without id or date", "entry", feed.Entries[i].ID)
			continue
		}
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].PublishedAt.Equal(items[j].PublishedAt) {
			return items[i].PublishedAt.Before(items[j].PublishedAt)
		}
		return items[i].ID < items[j].ID
	})

	fresh := items[:0]
	for _, item := range items {
		if since.Admits(item) {
			fresh = append(fresh, item)
		}
	}

	a.logger.Info("Fetched arXiv papers", "entries", len(feed.Entries), "new", len(fresh))
	return fresh, nil
}

func convertEntry(entry *atom.Entry) (types.Item, bool) {
	id := shortID(entry.ID)
	if id == "" {
		return types.Item{}, false
	}

	var published time.Time
	switch {
	case entry.PublishedParsed != nil:
		published = *entry.PublishedParsed
	case entry.UpdatedParsed != nil:
		published = *entry.UpdatedParsed
	default:
		return types.Item{}, false
	}

	item := types.Item{
		ID:          id,
		Title:       cleanText(entry.Title),
		Abstract:    cleanText(entry.Summary),
		PublishedAt: published.UTC(),
		ExternalRef: strings.TrimSpace(entry.ID),
	}

	for _, author := range entry.Authors {
		if author == nil {
			continue
		}
		if name := cleanText(author.Name); name != "" {
			item.Authors = append(item.Authors, name)
		}
	}

	for _, link := range entry.Links {
		if link == nil {
			continue
		}
		switch {
		case link.Title == "pdf" || link.Type == "application/pdf":
			item.ContentURL = link.Href
		case link.Rel == "alternate" && link.Href != "":
			item.ExternalRef = link.Href
		}
	}
	if item.ContentURL == "" {
		item.ContentURL = strings.Replace(item.ExternalRef, "/abs/", "/pdf/", 1)
	}

	for _, category := range entry.Categories {
		if category != nil && category.Term != "" {
			item.Categories = append(item.Categories, category.Term)
		}
	}

	if ext, ok := entry.Extensions["arxiv"]; ok {
		if doi := ext["doi"]; len(doi) > 0 {
			item.DOI = strings.TrimSpace(doi[0].Value)
		}
	}

	return item, true
}

// shortID turns http://arxiv.org/abs/2401.01234v2 into 2401.01234v2.
func shortID(raw string) string {
	raw = strings.TrimSpace(raw)
	if idx := strings.Index(raw, "/abs/"); idx >= 0 {
		return raw[idx+len("/abs/"):]
	}
	return raw
}

var htmlStripper = bluemonday.StrictPolicy()

// cleanText strips markup, decodes entities, collapses the hard line
// wrapping arXiv puts in titles and abstracts, and normalizes to NFC.
func cleanText(s string) string {
	s = htmlStripper.Sanitize(s)
	s = html.UnescapeString(s)
	s = strings.Join(strings.Fields(s), " ")
	return norm.NFC.String(s)
}
