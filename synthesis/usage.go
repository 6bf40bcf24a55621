package synthesis

import (
	"github.com/theimaginaryfoundation/nextturn-synth/synthesis/fileutils"
	"github.com/theimaginaryfoundation/nextturn-synth/synthesis/provider"
)

// TokenUsage counts tokens spent on model calls. The zero value is the identity for Add.
type TokenUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
	}
}

func usageOf(r provider.Response) TokenUsage {
	return TokenUsage{
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
		TotalTokens:      r.TotalTokens,
	}
}

// SumUsageFile re-scans a synthesized JSONL file and totals the usage of every line.
func SumUsageFile(path string) (TokenUsage, int, error) {
	var total TokenUsage
	n, err := fileutils.ScanUsage(path, func(prompt, completion, all int64) {
		total = total.Add(TokenUsage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: all})
	})
	return total, n, err
}
