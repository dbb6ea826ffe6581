package processors

import (
	"context"
	"encoding/json"
	"fmt"

	"paperpost/internal/platforms"
	"paperpost/internal/types"
)

type Summarizer struct {
	llm    platforms.LLM
	prompt string
}

func NewSummarizer(llm platforms.LLM, prompt string) *Summarizer {
	return &Summarizer{
		llm:    llm,
		prompt: orDefault(prompt, defaultSummarizePrompt),
	}
}

func (s *Summarizer) BuildPrompt(title, text string) string {
	return s.prompt + fmt.Sprintf("[タイトル]\n%s\n[本文]\n%s", title, text)
}

// Summarize returns ErrMalformedResponse when the model output is not a
// summary object; that error is not retried.
func (s *Summarizer) Summarize(ctx context.Context, title, text string) (*types.Summary, error) {
	raw, err := s.llm.Generate(ctx, platforms.Request{
		Prompt: s.BuildPrompt(title, text),
		JSON:   true,
	})
	if err != nil {
		return nil, err
	}

	var summary types.Summary
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &summary); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrMalformedResponse, err)
	}
	if summary.TranslatedTitle == "" && summary.Summary == "" {
		return nil, fmt.Errorf("%w: summary is empty", types.ErrMalformedResponse)
	}
	return &summary, nil
}
