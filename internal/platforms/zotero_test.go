package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"paperpost/internal/types"
)

func newZotero(t *testing.T, handler http.HandlerFunc) *ZoteroPlatform {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	z, err := NewZoteroPlatform(srv.URL, "user", "777", "key", srv.Client())
	if err != nil {
		t.Fatalf("NewZoteroPlatform: %v", err)
	}
	return z
}

func TestNewZoteroPlatformMissingCredentials(t *testing.T) {
	_, err := NewZoteroPlatform("https://api.zotero.org", "user", "", "", nil)
	var cfgErr *types.ConfigurationError
	if !errors.As(err, &cfgErr) || len(cfgErr.Missing) != 2 {
		t.Fatalf("expected both settings reported, got %v", err)
	}
}

func TestFindCollectionPaginates(t *testing.T) {
	z := newZotero(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Zotero-API-Key") != "key" || r.Header.Get("Zotero-API-Version") != "3" {
			t.Errorf("missing api headers")
		}
		if r.URL.Path != "/users/777/collections" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		var page []map[string]any
		if r.URL.Query().Get("start") == "0" {
			for i := 0; i < zoteroPageSize; i++ {
				page = append(page, map[string]any{"key": fmt.Sprintf("K%d", i), "data": map[string]any{"name": fmt.Sprintf("c%d", i)}})
			}
		} else {
			page = append(page, map[string]any{"key": "DAILY1", "data": map[string]any{"name": "daily"}})
		}
		json.NewEncoder(w).Encode(page)
	})

	key, err := z.FindCollection(context.Background(), "daily")
	if err != nil {
		t.Fatalf("FindCollection: %v", err)
	}
	if key != "DAILY1" {
		t.Fatalf("unexpected key %q", key)
	}
}

func TestFindCollectionNotFound(t *testing.T) {
	z := newZotero(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	_, err := z.FindCollection(context.Background(), "daily")
	if !errors.Is(err, types.ErrCollectionNotFound) {
		t.Fatalf("expected collection not found, got %v", err)
	}
	if types.IsRetryable(err) {
		t.Fatalf("a missing collection is not transient")
	}
}

func TestCreateItems(t *testing.T) {
	var posted []ZoteroItem
	z := newZotero(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/users/777/items" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&posted); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"success": {"0": "ABCD1234"}, "failed": {}}`))
	})

	keys, err := z.CreateItems(context.Background(), []ZoteroItem{{ItemType: "preprint", Title: "Attention"}})
	if err != nil {
		t.Fatalf("CreateItems: %v", err)
	}
	if len(keys) != 1 || keys[0] != "ABCD1234" {
		t.Fatalf("unexpected keys %v", keys)
	}
	if len(posted) != 1 || posted[0].ItemType != "preprint" {
		t.Fatalf("unexpected payload %+v", posted)
	}
}

func TestCreateItemsFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
	}{
		{"rejected entry", http.StatusOK, `{"success": {}, "failed": {"0": {"code": 400, "message": "bad field"}}}`, true},
		{"forbidden", http.StatusForbidden, `Forbidden`, false},
		{"server error", http.StatusServiceUnavailable, `try later`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			z := newZotero(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := z.CreateItems(context.Background(), []ZoteroItem{{ItemType: "preprint"}})
			if !errors.Is(err, types.ErrSinkUnavailable) {
				t.Fatalf("expected sink error, got %v", err)
			}
			if types.IsRetryable(err) != tt.retryable {
				t.Fatalf("retryable = %v, want %v", types.IsRetryable(err), tt.retryable)
			}
		})
	}
}
