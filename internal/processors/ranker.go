package processors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"paperpost/internal/platforms"
	"paperpost/internal/types"
)

// LLMRanker asks a language model which titles match the interest profile.
type LLMRanker struct {
	llm      platforms.LLM
	keywords []string
	prompt   string
	logger   *slog.Logger
}

// NewLLMRanker builds a ranker. prompt may contain a {keywords} placeholder;
// an empty prompt selects the built-in one.
func NewLLMRanker(llm platforms.LLM, keywords []string, prompt string, logger *slog.Logger) *LLMRanker {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMRanker{
		llm:      llm,
		keywords: keywords,
		prompt:   orDefault(prompt, defaultRankPrompt),
		logger:   logger.With("component", "ranker"),
	}
}

// Select returns at most limit items in input order. Without keywords the
// ranker is the identity and the limit does not apply. A response that cannot be parsed falls back to the first
// limit items; transport failures are returned wrapped in ErrRanking.
func (r *LLMRanker) Select(ctx context.Context, items []types.Item, limit int) ([]types.Item, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if len(r.keywords) == 0 {
		r.logger.Info("No keywords configured, selecting all papers", "count", len(items))
		return items, nil
	}

	if limit <= 0 || limit > len(items) {
		limit = len(items)
	}

	raw, err := r.llm.Generate(ctx, platforms.Request{
		Prompt: r.BuildPrompt(items),
		JSON:   true,
	})
	if err != nil {
		if errors.Is(err, types.ErrMalformedResponse) {
			return r.fallback(items, limit, err), nil
		}
		return nil, fmt.Errorf("%w: %w", types.ErrRanking, err)
	}

	decisions, err := ParseDecisions(raw)
	if err != nil {
		return r.fallback(items, limit, err), nil
	}

	selected := applyDecisions(items, decisions, limit)
	for _, d := range decisions {
		r.logger.Debug("Paper selected", "idx", d.Index, "title", d.Title, "reason", d.Reason)
	}
	r.logger.Info("Ranked papers", "candidates", len(items), "selected", len(selected))
	return selected, nil
}

func (r *LLMRanker) fallback(items []types.Item, limit int, cause error) []types.Item {
	r.logger.Warn("Ranking response unusable, falling back to first papers", "count", limit, "error", cause)
	return items[:limit]
}

// BuildPrompt renders the instruction followed by the numbered title list.
func (r *LLMRanker) BuildPrompt(items []types.Item) string {
	var kw strings.Builder
	for _, keyword := range r.keywords {
		kw.WriteString("- " + keyword + "\n")
	}

	var sb strings.Builder
	sb.WriteString(strings.ReplaceAll(r.prompt, "{keywords}", kw.String()))
	for i, item := range items {
		fmt.Fprintf(&sb, "%d. %s\n", i, item.Title)
	}
	return sb.String()
}

func ParseDecisions(raw string) ([]types.Decision, error) {
	var decisions types.Decisions
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &decisions); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedResponse, err)
	}
	return decisions.Papers, nil
}

// applyDecisions maps decision indices back to items, dropping duplicates
// and out-of-range indices, and keeps the original input order.
func applyDecisions(items []types.Item, decisions []types.Decision, limit int) []types.Item {
	seen := make(map[int]struct{}, len(decisions))
	idxs := make([]int, 0, len(decisions))
	for _, d := range decisions {
		if d.Index < 0 || d.Index >= len(items) {
			continue
		}
		if _, dup := seen[d.Index]; dup {
			continue
		}
		seen[d.Index] = struct{}{}
		idxs = append(idxs, d.Index)
	}
	sort.Ints(idxs)

	if len(idxs) > limit {
		idxs = idxs[:limit]
	}

	selected := make([]types.Item, 0, len(idxs))
	for _, idx := range idxs {
		selected = append(selected, items[idx])
	}
	return selected
}

// stripCodeFence removes a ```json fence some models wrap around output.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
