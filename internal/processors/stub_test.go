package processors

import (
	"context"
	"sync"

	"paperpost/internal/platforms"
)

type stubLLM struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	requests  []platforms.Request
}

func (s *stubLLM) Name() string { return "stub" }

func (s *stubLLM) Generate(ctx context.Context, req platforms.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.requests)
	s.requests = append(s.requests, req)

	if n < len(s.errs) && s.errs[n] != nil {
		return "", s.errs[n]
	}
	if len(s.responses) == 0 {
		return "", nil
	}
	if n >= len(s.responses) {
		n = len(s.responses) - 1
	}
	return s.responses[n], nil
}

func (s *stubLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}
