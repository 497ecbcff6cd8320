package tui

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHelpListsEveryCommand(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, echoClient())
	a.dispatch("/help")

	require.Len(t, a.entries, 1)
	help := a.entries[0].text
	for _, c := range commandHelp {
		require.Contains(t, help, c[0])
	}
}

func TestUnknownCommandSuggestsClosest(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, echoClient())
	a.dispatch("/hlep")

	require.Len(t, a.entries, 1)
	require.Equal(t, entryError, a.entries[0].kind)
	require.Contains(t, a.entries[0].text, "did you mean /help?")
}

func TestUnknownCommandFarFromEverythingGetsNoSuggestion(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, echoClient())
	a.dispatch("/xyzzyqwerty")

	require.Len(t, a.entries, 1)
	require.NotContains(t, a.entries[0].text, "did you mean")
}

func TestModelCommandSwitchesModel(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, echoClient())
	a.provider = "ollama"
	a.dispatch("/model qwen2.5-coder")

	require.Equal(t, "ollama", a.provider)
	require.Equal(t, "qwen2.5-coder", a.model)
	require.Contains(t, a.entries[0].text, "switched to")
}

func TestProviderCommandRejectsUnknown(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, echoClient())
	a.dispatch("/provider anthropic")

	require.Equal(t, "fake", a.provider, "provider unchanged on error")
	require.Equal(t, entryError, a.entries[0].kind)
}

func TestModelsCommandQueriesProvider(t *testing.T) {
	t.Parallel()

	c := echoClient()
	c.models = []string{"alpha", "beta"}
	a := newTestApp(t, c)

	_, cmd := a.dispatch("/models")
	require.NotNil(t, cmd)
	msg := cmd()
	m, ok := msg.(modelsMsg)
	require.True(t, ok)
	require.Equal(t, []string{"alpha", "beta"}, m.names)

	a.Update(m)
	require.Contains(t, a.entries[0].text, "alpha")
	require.Contains(t, a.entries[0].text, "beta")
}

func TestCostCommandReportsSessionStats(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, echoClient())
	a.stats.Requests = 3
	a.stats.PromptTokens = 120
	a.stats.CompletionTokens = 80
	a.dispatch("/cost")

	require.Contains(t, a.entries[0].text, "3 requests")
	require.Contains(t, a.entries[0].text, "120 prompt")
}

func TestClearCommandEmptiesTranscript(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, echoClient())
	_, cmd := a.dispatch("quick question")
	a.Update(outcomeFrom(t, collectMsgs(t, cmd)))
	require.NotEmpty(t, a.entries)

	a.dispatch("/clear")
	require.Empty(t, a.entries)
}

func TestConfigCommandShowsActiveSettings(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, echoClient())
	a.dispatch("/config")

	require.Contains(t, a.entries[0].text, "provider: fake")
	require.Contains(t, a.entries[0].text, "model: fake-model")
}
