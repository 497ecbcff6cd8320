package llm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCostsForMatchesLongestPrefix(t *testing.T) {
	t.Parallel()

	require.Equal(t, knownCosts["gpt-4o-mini"], CostsFor("gpt-4o-mini-2024-07-18"))
	require.Equal(t, knownCosts["gpt-4o"], CostsFor("gpt-4o-2024-08-06"))
	require.Zero(t, CostsFor("llama3.2"))
}

func TestSessionStatsAccumulates(t *testing.T) {
	t.Parallel()

	var s SessionStats
	s.Update("gpt-4o-mini", Usage{PromptTokens: 1000, CompletionTokens: 1000, TotalTokens: 2000})
	s.Update("llama3.2", Usage{PromptTokens: 500, CompletionTokens: 500, TotalTokens: 1000})

	require.Equal(t, 2, s.Requests)
	require.Equal(t, 3000, s.TotalTokens())
	// local model contributes nothing to cost
	require.InDelta(t, 0.00015+0.0006, s.CostUSD, 1e-9)
}

func TestEstimateTokens(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, EstimateTokens(""))
	require.Equal(t, 13, EstimateTokens("one two three four five six seven eight nine ten"))
}
