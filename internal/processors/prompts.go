package processors

import (
	_ "embed"
	"strings"
)

//go:embed prompts/rank.txt
var defaultRankPrompt string

//go:embed prompts/summarize.txt
var defaultSummarizePrompt string

func orDefault(prompt, def string) string {
	if strings.TrimSpace(prompt) == "" {
		return def
	}
	return prompt
}
