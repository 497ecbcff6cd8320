package llm

import "strings"

// ModelCosts is USD per 1K tokens. Zero for local models.
type ModelCosts struct {
	InputPer1K  float64
	OutputPer1K float64
}

var knownCosts = map[string]ModelCosts{
	"gpt-4o":      {InputPer1K: 0.0025, OutputPer1K: 0.01},
	"gpt-4o-mini": {InputPer1K: 0.00015, OutputPer1K: 0.0006},
	"gpt-4.1":     {InputPer1K: 0.002, OutputPer1K: 0.008},
	"o3-mini":     {InputPer1K: 0.0011, OutputPer1K: 0.0044},
}

// CostsFor resolves pricing for a model name, matching on the longest known
// prefix so dated snapshots like gpt-4o-2024-08-06 price as gpt-4o. Unknown
// models (local ones included) cost nothing.
func CostsFor(model string) ModelCosts {
	if c, ok := knownCosts[model]; ok {
		return c
	}
	var best string
	for name := range knownCosts {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	return knownCosts[best]
}

// SessionStats accumulates token and cost totals across one chat session.
type SessionStats struct {
	Requests         int
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
}

func (s *SessionStats) Update(model string, u Usage) {
	s.Requests++
	s.PromptTokens += u.PromptTokens
	s.CompletionTokens += u.CompletionTokens
	c := CostsFor(model)
	s.CostUSD += float64(u.PromptTokens)/1000*c.InputPer1K +
		float64(u.CompletionTokens)/1000*c.OutputPer1K
}

func (s *SessionStats) TotalTokens() int {
	return s.PromptTokens + s.CompletionTokens
}

// EstimateTokens approximates a token count from whitespace-separated words
// when the backend reports none.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(float64(words) * 1.3)
}
