package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSourceUnavailable  = errors.New("source unavailable")
	ErrRanking            = errors.New("ranking failed")
	ErrContentFetch       = errors.New("content fetch failed")
	ErrMalformedResponse  = errors.New("malformed model response")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrSinkUnavailable    = errors.New("sink unavailable")
)

// ConfigurationError names the settings that are missing for an operation.
// It is never retried.
type ConfigurationError struct {
	Operation string
	Missing   []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %s: missing %s", e.Operation, strings.Join(e.Missing, ", "))
}

func NewConfigurationError(operation string, missing ...string) *ConfigurationError {
	return &ConfigurationError{
		Operation: operation,
		Missing:   missing,
	}
}

func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

type nonRetryableError struct {
	err error
}

func (e *nonRetryableError) Error() string {
	return e.err.Error()
}

func (e *nonRetryableError) Unwrap() error {
	return e.err
}

// NonRetryable marks err so retry loops give up immediately.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryableError{err: err}
}

// IsRetryable is the default retry predicate: configuration errors, malformed
// responses and anything wrapped with NonRetryable are fatal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var nr *nonRetryableError
	if errors.As(err, &nr) {
		return false
	}
	if IsConfigurationError(err) {
		return false
	}
	if errors.Is(err, ErrMalformedResponse) {
		return false
	}
	return true
}

// SinkError is returned by publishers so failures carry the sink name.
type SinkError struct {
	Sink   string
	ItemID string
	Err    error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s failed for item %s: %v", e.Sink, e.ItemID, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

func NewSinkError(sink, itemID string, err error) *SinkError {
	return &SinkError{
		Sink:   sink,
		ItemID: itemID,
		Err:    err,
	}
}
