package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"paperpost/internal/storage"
	"paperpost/internal/types"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <title>arXiv Query</title>
  <entry>
    <id>http://arxiv.org/abs/2401.00003v1</id>
    <published>2024-01-05T18:00:00Z</published>
    <updated>2024-01-05T18:00:00Z</updated>
    <title>Third   Paper:
  Scaling &amp; Things</title>
    <summary>  An abstract with &lt;b&gt;markup&lt;/b&gt;
    over two lines. </summary>
    <author><name>Ada Lovelace</name></author>
    <author><name>Alan Turing</name></author>
    <arxiv:doi>10.1000/xyz</arxiv:doi>
    <link href="http://arxiv.org/abs/2401.00003v1" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/2401.00003v1" rel="related" type="application/pdf"/>
    <category term="cs.LG" scheme="http://arxiv.org/schemas/atom"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2401.00002v1</id>
    <published>2024-01-05T18:00:00Z</published>
    <title>Second Paper</title>
    <summary>Second.</summary>
    <author><name>Grace Hopper</name></author>
    <link href="http://arxiv.org/abs/2401.00002v1" rel="alternate" type="text/html"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2401.00001v2</id>
    <published>2024-01-05T17:59:58Z</published>
    <title>First Paper</title>
    <summary>First.</summary>
    <author><name>Edsger Dijkstra</name></author>
    <link title="pdf" href="http://arxiv.org/pdf/2401.00001v2" rel="related" type="application/pdf"/>
  </entry>
</feed>`

func newTestSource(t *testing.T, handler http.HandlerFunc) *ArxivSource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s := NewArxivSource(srv.URL+"/api/query", "cs.LG", 50, srv.Client(), nil)
	s.now = func() time.Time { return time.Date(2024, 1, 6, 12, 30, 45, 0, time.UTC) }
	return s
}

func TestQuery(t *testing.T) {
	s := NewArxivSource("https://export.arxiv.org/api/query", "cs.LG", 10, nil, nil)
	s.now = func() time.Time { return time.Date(2024, 1, 6, 12, 30, 45, 0, time.UTC) }

	if got := s.Query(nil); got != "cat:cs.LG" {
		t.Fatalf("unexpected query without checkpoint: %s", got)
	}

	mark := &storage.Mark{PublishedAt: time.Date(2024, 1, 5, 17, 59, 58, 0, time.UTC)}
	want := "cat:cs.LG AND submittedDate:[202401051759 TO 202401061230]"
	if got := s.Query(mark); got != want {
		t.Fatalf("Query = %q, want %q", got, want)
	}
}

func TestFetchParsesAndOrders(t *testing.T) {
	t.Parallel()
	var query string
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Write([]byte(sampleFeed))
	})

	items, err := s.Fetch(context.Background(), nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.Contains(query, "sortBy=submittedDate") || !strings.Contains(query, "sortOrder=descending") || !strings.Contains(query, "max_results=50") {
		t.Fatalf("unexpected query string %s", query)
	}

	var ids []string
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	if strings.Join(ids, ",") != "2401.00001v2,2401.00002v1,2401.00003v1" {
		t.Fatalf("unexpected order %v", ids)
	}

	third := items[2]
	if third.Title != "Third Paper: Scaling & Things" {
		t.Fatalf("title not cleaned: %q", third.Title)
	}
	if third.Abstract != "An abstract with markup over two lines." {
		t.Fatalf("abstract not cleaned: %q", third.Abstract)
	}
	if third.FirstAuthor() != "Ada Lovelace" || len(third.Authors) != 2 {
		t.Fatalf("unexpected authors %v", third.Authors)
	}
	if third.ContentURL != "http://arxiv.org/pdf/2401.00003v1" || third.ExternalRef != "http://arxiv.org/abs/2401.00003v1" {
		t.Fatalf("unexpected links %q %q", third.ContentURL, third.ExternalRef)
	}
	if third.DOI != "10.1000/xyz" {
		t.Fatalf("unexpected doi %q", third.DOI)
	}
	if len(third.Categories) != 1 || third.Categories[0] != "cs.LG" {
		t.Fatalf("unexpected categories %v", third.Categories)
	}

	if items[1].ContentURL != "http://arxiv.org/pdf/2401.00002v1" {
		t.Fatalf("pdf link fallback not applied: %q", items[1].ContentURL)
	}
}

func TestFetchFiltersByMark(t *testing.T) {
	t.Parallel()
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleFeed))
	})

	mark := &storage.Mark{PublishedAt: time.Date(2024, 1, 5, 18, 0, 0, 0, time.UTC), ItemID: "2401.00002v1"}
	items, err := s.Fetch(context.Background(), mark)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 1 || items[0].ID != "2401.00003v1" {
		t.Fatalf("expected only the item after the mark, got %+v", items)
	}

	legacy := &storage.Mark{PublishedAt: time.Date(2024, 1, 5, 17, 59, 58, 0, time.UTC)}
	items, err = s.Fetch(context.Background(), legacy)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected the two items after the legacy mark, got %d", len(items))
	}
}

func TestFetchEmptyFeed(t *testing.T) {
	t.Parallel()
	s := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<?xml version="1.0"?><feed xmlns="http://www.w3.org/2005/Atom"><title>empty</title></feed>`))
	})

	items, err := s.Fetch(context.Background(), nil)
	if err != nil {
		t.Fatalf("empty result is not an error: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no items, got %d", len(items))
	}
}

func TestFetchErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}},
		{"garbage", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html><body>rate limited"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSource(t, tt.handler)
			_, err := s.Fetch(context.Background(), nil)
			if !errors.Is(err, types.ErrSourceUnavailable) {
				t.Fatalf("expected source unavailable, got %v", err)
			}
			if !types.IsRetryable(err) {
				t.Fatalf("source errors should be retryable")
			}
		})
	}
}
