package types

import (
	"regexp"
	"strings"
	"time"
)

var versionSuffix = regexp.MustCompile(`v[0-9]+$`)

// Item is one paper discovered by a source. It is not modified after Fetch.
type Item struct {
	ID          string
	Title       string
	Authors     []string
	Abstract    string
	PublishedAt time.Time
	ContentURL  string
	ExternalRef string
	DOI         string
	Categories  []string
}

// FirstAuthor returns the first listed author or an empty string.
func (i Item) FirstAuthor() string {
	if len(i.Authors) == 0 {
		return ""
	}
	return i.Authors[0]
}

// CanonicalID strips the arXiv version suffix, "2401.01234v3" -> "2401.01234".
func (i Item) CanonicalID() string {
	return StripVersion(i.ID)
}

// FileName is the name used for the downloaded full-text artifact.
func (i Item) FileName() string {
	name := strings.ReplaceAll(i.ID, "/", "_")
	return name + ".pdf"
}

func StripVersion(s string) string {
	return versionSuffix.ReplaceAllString(s, "")
}

type Decision struct {
	Index  int    `json:"idx"`
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

type Decisions struct {
	Papers []Decision `json:"papers"`
}

type Keyword struct {
	Keyword     string `json:"keyword"`
	Explanation string `json:"explanation"`
}

// Summary is the structured output of the summarization model.
type Summary struct {
	TranslatedTitle string    `json:"japanese_title"`
	Summary         string    `json:"summary"`
	Merit           string    `json:"merit"`
	Method          string    `json:"method"`
	Validation      string    `json:"valid"`
	Discussion      string    `json:"discussion"`
	Keywords        []Keyword `json:"keywords"`
}

// Complete reports whether every narrative field was filled in.
func (s *Summary) Complete() bool {
	if s == nil {
		return false
	}
	for _, field := range []string{s.TranslatedTitle, s.Summary, s.Merit, s.Method, s.Validation, s.Discussion} {
		if strings.TrimSpace(field) == "" {
			return false
		}
	}
	return true
}

// Enrichment is derived per item and lives only while that item is processed.
// A nil Summary means summarization failed; ContentPath is empty when the
// full text could not be downloaded.
type Enrichment struct {
	FullText    string
	Summary     *Summary
	ContentPath string
}

func (e *Enrichment) HasSummary() bool {
	return e != nil && e.Summary != nil
}

func (e *Enrichment) HasContent() bool {
	return e != nil && e.ContentPath != ""
}

// RunSummary counts what a single pipeline run did.
type RunSummary struct {
	Fetched   int
	Selected  int
	Processed int
	Skipped   int
	Failed    int
	Duration  time.Duration
}
