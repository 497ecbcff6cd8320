package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/agnivade/levenshtein"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jask/chatfuse/internal/config"
	"github.com/jask/chatfuse/internal/llm"
)

var commandHelp = [][2]string{
	{"/help", "show this help"},
	{"/model <name>", "switch the model"},
	{"/models", "list models the provider serves"},
	{"/provider <name>", "switch provider (ollama, openai, lmstudio)"},
	{"/config", "show the active configuration"},
	{"/cost", "session token and cost totals"},
	{"/clear", "clear the transcript"},
	{"/history", "list recent sessions"},
	{"/quit", "exit"},
}

func commandNames() []string {
	names := make([]string, len(commandHelp))
	for i, c := range commandHelp {
		names[i] = strings.Fields(c[0])[0]
	}
	return names
}

func (a *App) handleCommand(line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(line)
	name := fields[0]
	args := fields[1:]

	switch name {
	case "/help":
		var b strings.Builder
		b.WriteString("commands:\n")
		for _, c := range commandHelp {
			fmt.Fprintf(&b, "  %-18s %s\n", c[0], c[1])
		}
		b.WriteString("  !<cmd>             run a guarded shell command\n")
		b.WriteString("  esc                cancel the running task")
		a.appendEntry(entrySystem, b.String())
		return a, nil

	case "/quit":
		return a, tea.Quit

	case "/clear":
		a.entries = nil
		a.refreshTranscript()
		a.status = "transcript cleared"
		if a.store != nil && a.sessionID != "" {
			store, ctx, session := a.store, a.ctx, a.sessionID
			return a, func() tea.Msg {
				if err := store.ClearSession(ctx, session); err != nil {
					return errMsg{fmt.Errorf("clear session: %w", err)}
				}
				return nil
			}
		}
		return a, nil

	case "/model":
		if len(args) != 1 {
			a.appendEntry(entryError, "usage: /model <name>")
			return a, nil
		}
		return a.switchProvider(a.provider, args[0])

	case "/provider":
		if len(args) != 1 {
			a.appendEntry(entryError, "usage: /provider <name>")
			return a, nil
		}
		return a.switchProvider(args[0], a.model)

	case "/models":
		client, ctx := a.client, a.ctx
		return a, func() tea.Msg {
			names, err := client.Models(ctx)
			return modelsMsg{names: names, err: err}
		}

	case "/config":
		a.appendEntry(entrySystem, a.describeConfig())
		return a, nil

	case "/cost":
		a.appendEntry(entrySystem, fmt.Sprintf(
			"session: %d requests, %d prompt + %d completion tokens, $%.4f",
			a.stats.Requests, a.stats.PromptTokens, a.stats.CompletionTokens, a.stats.CostUSD))
		return a, nil

	case "/history":
		if a.store == nil {
			a.appendEntry(entryError, "history persistence is disabled")
			return a, nil
		}
		store, ctx := a.store, a.ctx
		return a, func() tea.Msg {
			sessions, err := store.RecentSessions(ctx, 10)
			return sessionsMsg{sessions: sessions, err: err}
		}

	default:
		msg := fmt.Sprintf("unknown command %s", name)
		if suggestion := suggestCommand(name); suggestion != "" {
			msg += fmt.Sprintf(" (did you mean %s?)", suggestion)
		}
		a.appendEntry(entryError, msg)
		return a, nil
	}
}

func (a *App) switchProvider(provider, model string) (tea.Model, tea.Cmd) {
	apiKey := resolveAPIKey(a.cfg, provider)
	client, err := llm.ClientFor(provider, a.cfg.LLM.Endpoint, apiKey, model)
	if err != nil {
		a.appendEntry(entryError, err.Error())
		return a, nil
	}
	a.setClient(provider, model, client)
	a.appendEntry(entrySystem, fmt.Sprintf("switched to %s/%s", provider, model))
	return a, nil
}

func (a *App) describeConfig() string {
	key := "not set"
	if resolveAPIKey(a.cfg, a.provider) != "" {
		key = "configured"
	}
	return fmt.Sprintf(
		"provider: %s\nmodel: %s\nendpoint: %s\napi key: %s\nrequest timeout: %ds\nshell timeout: %ds\nhistory: %s",
		a.provider, a.model, valueOr(a.cfg.LLM.Endpoint, "(default)"), key,
		a.cfg.LLM.TimeoutSeconds, a.cfg.Shell.TimeoutSeconds, valueOr(a.cfg.History.Path, "(disabled)"))
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// suggestCommand proposes the closest command for a typo, within an edit
// distance small enough to be plausible.
func suggestCommand(input string) string {
	best, bestDist := "", 3
	for _, name := range commandNames() {
		if d := levenshtein.ComputeDistance(input, name); d < bestDist {
			best, bestDist = name, d
		}
	}
	return best
}

// resolveAPIKey prefers the env var named in config, then the inline value.
// The encrypted key store is consulted at startup in main, where a miss is
// not an error.
func resolveAPIKey(cfg config.Config, provider string) string {
	if provider == "ollama" {
		return ""
	}
	if key := envKey(cfg.LLM.APIKeyEnv); key != "" {
		return key
	}
	return cfg.LLM.APIKey
}

func envKey(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
