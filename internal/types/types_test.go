package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestStripVersion(t *testing.T) {
	cases := map[string]string{
		"2401.01234v2":                      "2401.01234",
		"2401.01234":                        "2401.01234",
		"hep-th/9901001v11":                 "hep-th/9901001",
		"http://arxiv.org/abs/2401.01234v1": "http://arxiv.org/abs/2401.01234",
	}
	for in, want := range cases {
		if got := StripVersion(in); got != want {
			t.Fatalf("StripVersion(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestItemFileName(t *testing.T) {
	item := Item{ID: "hep-th/9901001v1"}
	if got := item.FileName(); got != "hep-th_9901001v1.pdf" {
		t.Fatalf("unexpected file name: %s", got)
	}
}

func TestSummaryComplete(t *testing.T) {
	var missing *Summary
	if missing.Complete() {
		t.Fatalf("nil summary must not be complete")
	}
	s := &Summary{TranslatedTitle: "t", Summary: "s", Merit: "m", Method: "m", Validation: "v", Discussion: "d"}
	if !s.Complete() {
		t.Fatalf("expected complete summary")
	}
	s.Discussion = "  "
	if s.Complete() {
		t.Fatalf("blank discussion should make summary incomplete")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"source", fmt.Errorf("fetch: %w", ErrSourceUnavailable), true},
		{"malformed", fmt.Errorf("rank: %w", ErrMalformedResponse), false},
		{"config", NewConfigurationError("notify", "discord.webhook_url"), false},
		{"wrapped config", fmt.Errorf("init: %w", NewConfigurationError("rank", "llm.api_key")), false},
		{"non retryable", NonRetryable(errors.New("unauthorized")), false},
		{"wrapped non retryable", fmt.Errorf("x: %w", NonRetryable(ErrSinkUnavailable)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Fatalf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNonRetryableKeepsCause(t *testing.T) {
	err := NonRetryable(fmt.Errorf("zotero: %w", ErrCollectionNotFound))
	if !errors.Is(err, ErrCollectionNotFound) {
		t.Fatalf("expected wrapped cause to be preserved")
	}
}

func TestConfigurationErrorMessage(t *testing.T) {
	err := NewConfigurationError("zotero", "zotero.api_key", "zotero.library_id")
	want := "configuration error for zotero: missing zotero.api_key, zotero.library_id"
	if err.Error() != want {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}
