package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"paperpost/internal/types"
)

const zoteroPageSize = 100

type ZoteroCreator struct {
	CreatorType string `json:"creatorType"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Name        string `json:"name,omitempty"`
}

// ZoteroItem covers the fields of the preprint and attachment item types
// that are written here.
type ZoteroItem struct {
	ItemType       string          `json:"itemType"`
	Title          string          `json:"title,omitempty"`
	Creators       []ZoteroCreator `json:"creators,omitempty"`
	AbstractNote   string          `json:"abstractNote,omitempty"`
	Repository     string          `json:"repository,omitempty"`
	ArchiveID      string          `json:"archiveID,omitempty"`
	Date           string          `json:"date,omitempty"`
	DOI            string          `json:"DOI,omitempty"`
	URL            string          `json:"url,omitempty"`
	LibraryCatalog string          `json:"libraryCatalog,omitempty"`
	Collections    []string        `json:"collections,omitempty"`

	ParentItem  string `json:"parentItem,omitempty"`
	LinkMode    string `json:"linkMode,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Path        string `json:"path,omitempty"`
}

type ZoteroCollection struct {
	Key  string
	Name string
}

type zoteroCollectionEntry struct {
	Key  string `json:"key"`
	Data struct {
		Name string `json:"name"`
	} `json:"data"`
}

type zoteroWriteResponse struct {
	Success map[string]string `json:"success"`
	Failed  map[string]struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"failed"`
}

// ZoteroPlatform is a minimal client for the Zotero Web API v3.
type ZoteroPlatform struct {
	baseURL     string
	libraryPath string
	apiKey      string
	client      *http.Client
}

func NewZoteroPlatform(baseURL, libraryType, libraryID, apiKey string, client *http.Client) (*ZoteroPlatform, error) {
	var missing []string
	if apiKey == "" {
		missing = append(missing, "zotero.api_key (ZOTERO_API_KEY)")
	}
	if libraryID == "" {
		missing = append(missing, "zotero.library_id (ZOTERO_LIBRARY_ID)")
	}
	if len(missing) > 0 {
		return nil, types.NewConfigurationError("zotero", missing...)
	}

	prefix := "users"
	if libraryType == "group" {
		prefix = "groups"
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &ZoteroPlatform{
		baseURL:     strings.TrimRight(baseURL, "/"),
		libraryPath: fmt.Sprintf("/%s/%s", prefix, url.PathEscape(libraryID)),
		apiKey:      apiKey,
		client:      client,
	}, nil
}

func (z *ZoteroPlatform) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, z.baseURL+z.libraryPath+path, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Zotero-API-Key", z.apiKey)
	req.Header.Set("Zotero-API-Version", "3")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (z *ZoteroPlatform) do(req *http.Request, out any) error {
	resp, err := z.client.Do(req)
	if err != nil {
		return fmt.Errorf("zotero: %w: %v", types.ErrSinkUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("zotero returned %s: %s: %w", resp.Status, strings.TrimSpace(string(msg)), types.ErrSinkUnavailable)
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusBadRequest:
			return types.NonRetryable(err)
		}
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("zotero: decode response: %w", err)
	}
	return nil
}

func (z *ZoteroPlatform) Collections(ctx context.Context) ([]ZoteroCollection, error) {
	var collections []ZoteroCollection

	for start := 0; ; start += zoteroPageSize {
		path := "/collections?" + url.Values{
			"limit": {strconv.Itoa(zoteroPageSize)},
			"start": {strconv.Itoa(start)},
		}.Encode()

		req, err := z.newRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}

		var page []zoteroCollectionEntry
		if err := z.do(req, &page); err != nil {
			return nil, err
		}

		for _, entry := range page {
			collections = append(collections, ZoteroCollection{Key: entry.Key, Name: entry.Data.Name})
		}
		if len(page) < zoteroPageSize {
			return collections, nil
		}
	}
}

// FindCollection returns the key of the collection called name.
func (z *ZoteroPlatform) FindCollection(ctx context.Context, name string) (string, error) {
	collections, err := z.Collections(ctx)
	if err != nil {
		return "", err
	}
	for _, c := range collections {
		if c.Name == name {
			return c.Key, nil
		}
	}
	return "", types.NonRetryable(fmt.Errorf("zotero collection %q: %w", name, types.ErrCollectionNotFound))
}

// CreateItems writes items in one request and returns their keys in order.
func (z *ZoteroPlatform) CreateItems(ctx context.Context, items []ZoteroItem) ([]string, error) {
	body, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("zotero: encode items: %w", err)
	}

	req, err := z.newRequest(ctx, http.MethodPost, "/items", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var resp zoteroWriteResponse
	if err := z.do(req, &resp); err != nil {
		return nil, err
	}

	keys := make([]string, len(items))
	for i := range items {
		idx := strconv.Itoa(i)
		if failure, ok := resp.Failed[idx]; ok {
			return nil, fmt.Errorf("zotero rejected item %d (%d %s): %w", i, failure.Code, failure.Message, types.ErrSinkUnavailable)
		}
		key, ok := resp.Success[idx]
		if !ok {
			return nil, fmt.Errorf("zotero: no key returned for item %d: %w", i, types.ErrMalformedResponse)
		}
		keys[i] = key
	}
	return keys, nil
}
