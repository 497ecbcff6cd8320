package tui

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jask/chatfuse/internal/config"
	"github.com/jask/chatfuse/internal/history"
	"github.com/jask/chatfuse/internal/llm"
	"github.com/jask/chatfuse/internal/shell"
	"github.com/jask/chatfuse/internal/task"
)

// spinnerFrames is indexed by the reporter's monotonic frame counter, so the
// spinner advances only while a task is running.
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

type entryKind int

const (
	entryUser entryKind = iota
	entryAssistant
	entryShell
	entrySystem
	entryError
)

type entry struct {
	kind entryKind
	text string
}

// App is the event loop model. Every mutation of chat state happens inside
// Update; task bodies communicate exclusively through typed messages.
type App struct {
	ctx    context.Context
	cfg    config.Config
	sup    *task.Supervisor
	client llm.CompletionClient
	sh     *shell.Runner
	store  *history.Store // nil disables persistence
	logger *log.Logger

	sessionID string
	stats     llm.SessionStats

	input      textinput.Model
	transcript viewport.Model
	ready      bool
	width      int
	height     int

	entries       []entry
	status        string
	frame         int
	partial       string
	cancelPending bool

	provider string
	model    string
}

type (
	progressMsg task.ProgressTick
	outcomeMsg  task.Outcome
	modelsMsg   struct {
		names []string
		err   error
	}
	sessionsMsg struct {
		sessions []history.Session
		err      error
	}
	errMsg struct{ err error }
)

// New builds the app and wires the task runners. The supervisor's cancel
// policy is cancel-and-replace: a new submission while a task runs aborts
// the old one.
func New(ctx context.Context, cfg config.Config, client llm.CompletionClient, store *history.Store, logger *log.Logger) *App {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 4000
	input.Placeholder = "Ask anything. !cmd runs a shell command, /help lists commands."
	input.Focus()

	sh := &shell.Runner{Timeout: time.Duration(cfg.Shell.TimeoutSeconds) * time.Second}

	sup := task.NewSupervisor(map[task.Kind]task.Runner{
		task.KindAIRequest:    &aiRunner{client: client, system: cfg.LLM.SystemPrompt, sh: sh},
		task.KindShellCommand: &shellRunner{sh: sh},
	}, task.Options{
		Policy:       task.PolicyCancelAndReplace,
		TickInterval: time.Duration(cfg.UI.TickMS) * time.Millisecond,
		Logf:         logger.Printf,
	})

	return &App{
		ctx:        ctx,
		cfg:        cfg,
		sup:        sup,
		client:     client,
		sh:         sh,
		store:      store,
		logger:     logger,
		input:      input,
		transcript: viewport.New(0, 0),
		provider:   cfg.LLM.Provider,
		model:      cfg.LLM.Model,
		status:     "ready",
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.waitProgress(), a.openSession(), textinput.Blink)
}

// waitProgress pumps one reporter tick into the loop; Update re-issues it
// after each tick so there is always exactly one reader on the channel.
func (a *App) waitProgress() tea.Cmd {
	ch := a.sup.Progress()
	return func() tea.Msg {
		return progressMsg(<-ch)
	}
}

// awaitOutcome blocks on one task's outcome channel. The channel delivers
// exactly once, so the command returns exactly one message.
func awaitOutcome(h *task.Handle) tea.Cmd {
	return func() tea.Msg {
		return outcomeMsg(<-h.Outcome())
	}
}

func (a *App) openSession() tea.Cmd {
	if a.store == nil {
		return nil
	}
	store, ctx := a.store, a.ctx
	provider, model := a.provider, a.model
	return func() tea.Msg {
		id, err := store.CreateSession(ctx, provider, model)
		if err != nil {
			return errMsg{fmt.Errorf("open session: %w", err)}
		}
		return sessionOpenedMsg(id)
	}
}

type sessionOpenedMsg string

func (a *App) persist(role history.Role, content string, usage task.Usage) tea.Cmd {
	if a.store == nil || a.sessionID == "" {
		return nil
	}
	store, ctx, session := a.store, a.ctx, a.sessionID
	return func() tea.Msg {
		err := store.AppendMessage(ctx, history.Message{
			SessionID:        session,
			Role:             role,
			Content:          content,
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
		})
		if err != nil {
			return errMsg{fmt.Errorf("persist message: %w", err)}
		}
		return nil
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = m.Width, m.Height
		a.layout()
		a.ready = true
		return a, nil

	case progressMsg:
		// a superseded task's last tick may still be buffered; drop it
		if m.TaskID == a.sup.ActiveID() {
			a.frame = m.Frame
			a.partial = a.sup.Snapshot().PartialText
			a.refreshTranscript()
		}
		return a, a.waitProgress()

	case outcomeMsg:
		return a.applyOutcome(task.Outcome(m))

	case sessionOpenedMsg:
		a.sessionID = string(m)
		return a, nil

	case modelsMsg:
		if m.err != nil {
			a.appendEntry(entryError, "could not list models: "+m.err.Error())
		} else {
			a.appendEntry(entrySystem, "available models:\n  "+strings.Join(m.names, "\n  "))
		}
		return a, nil

	case sessionsMsg:
		if m.err != nil {
			a.appendEntry(entryError, "could not load history: "+m.err.Error())
			return a, nil
		}
		var b strings.Builder
		b.WriteString("recent sessions:\n")
		for _, s := range m.sessions {
			fmt.Fprintf(&b, "  %s  %s  %s/%s\n", s.StartedAt.Format("2006-01-02 15:04"), s.ID[:8], s.Provider, s.Model)
		}
		a.appendEntry(entrySystem, strings.TrimRight(b.String(), "\n"))
		return a, nil

	case errMsg:
		if m.err != nil {
			a.logger.Printf("background error: %v", m.err)
			a.status = m.err.Error()
		}
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(m)
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a *App) handleKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.String() {
	case "ctrl+c":
		return a, tea.Quit

	case "esc":
		if a.sup.CancelActive() {
			a.cancelPending = true
			a.status = "cancelling..."
		}
		return a, nil

	case "enter":
		line := strings.TrimSpace(a.input.Value())
		if line == "" {
			return a, nil
		}
		a.input.SetValue("")
		return a.dispatch(line)

	case "pgup", "pgdown":
		var cmd tea.Cmd
		a.transcript, cmd = a.transcript.Update(m)
		return a, cmd
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(m)
	return a, cmd
}

// dispatch routes one input line: slash commands handle locally, a leading
// "!" runs a shell task, anything else is a prompt for the model.
func (a *App) dispatch(line string) (tea.Model, tea.Cmd) {
	if strings.HasPrefix(line, "/") {
		return a.handleCommand(line)
	}
	if strings.HasPrefix(line, "!") {
		return a.submit(task.KindShellCommand, line)
	}
	return a.submit(task.KindAIRequest, line)
}

func (a *App) submit(kind task.Kind, line string) (tea.Model, tea.Cmd) {
	deadline := time.Duration(a.cfg.LLM.TimeoutSeconds) * time.Second
	if kind == task.KindShellCommand {
		deadline = time.Duration(a.cfg.Shell.TimeoutSeconds) * time.Second
	}

	h, err := a.sup.Submit(kind, line, deadline)
	if err != nil {
		if errors.Is(err, task.ErrAlreadyRunning) {
			a.status = "a task is already running (esc to cancel)"
			return a, nil
		}
		a.appendEntry(entryError, err.Error())
		return a, nil
	}

	a.appendEntry(entryUser, line)
	a.partial = ""
	a.cancelPending = false
	a.status = "working"
	a.logger.Printf("submitted %s task %s", kind, h.ID.Short())

	role := history.RoleUser
	return a, tea.Batch(awaitOutcome(h), a.persist(role, line, task.Usage{}))
}

// applyOutcome folds one terminal outcome into chat state. Stale outcomes
// from superseded tasks are dropped by the id check.
func (a *App) applyOutcome(o task.Outcome) (tea.Model, tea.Cmd) {
	if !a.sup.Resolve(o) {
		return a, nil
	}
	a.cancelPending = false
	a.partial = ""

	var persistCmd tea.Cmd
	elapsed := o.Duration.Round(time.Millisecond * 100)

	switch o.State {
	case task.StateCompleted:
		switch o.Kind {
		case task.KindShellCommand:
			a.appendEntry(entryShell, o.Text)
			persistCmd = a.persist(history.RoleShell, o.Text, o.Usage)
		default:
			a.appendEntry(entryAssistant, o.Text)
			a.stats.Update(a.model, llm.Usage{
				PromptTokens:     o.Usage.PromptTokens,
				CompletionTokens: o.Usage.CompletionTokens,
				TotalTokens:      o.Usage.TotalTokens,
			})
			persistCmd = a.persist(history.RoleAssistant, o.Text, o.Usage)
		}
		a.status = fmt.Sprintf("done in %s", elapsed)

	case task.StateCancelled:
		// lightweight acknowledgment, not an error
		a.status = fmt.Sprintf("cancelled after %s", elapsed)

	case task.StateTimedOut:
		a.appendEntry(entryError, fmt.Sprintf("request timed out after %s", elapsed))
		a.status = "timed out"

	case task.StateFailed:
		a.appendEntry(entryError, a.describeFailure(o.Err))
		a.status = "failed"
	}

	a.refreshTranscript()
	return a, persistCmd
}

// describeFailure formats the error taxonomy for the transcript. Provider
// problems are user-visible messages, never loop-terminating.
func (a *App) describeFailure(err error) string {
	var perr *llm.ProviderError
	switch {
	case err == nil:
		return "request failed"
	case errors.Is(err, llm.ErrNoAPIKey):
		return fmt.Sprintf("no api key configured for %s: set $%s or run /config", a.provider, a.cfg.LLM.APIKeyEnv)
	case errors.Is(err, llm.ErrUnavailable):
		return "provider unavailable: " + err.Error()
	case errors.As(err, &perr):
		return fmt.Sprintf("provider error from %s (status %d): %s", perr.Provider, perr.Status, perr.Message)
	default:
		return "error: " + err.Error()
	}
}

func (a *App) appendEntry(kind entryKind, text string) {
	a.entries = append(a.entries, entry{kind: kind, text: text})
	a.refreshTranscript()
	a.transcript.GotoBottom()
}

func (a *App) layout() {
	a.input.Width = a.width - 4
	a.transcript.Width = a.width
	a.transcript.Height = a.height - 4
	a.refreshTranscript()
}

// setClient swaps the provider at runtime: a new completion client and a
// fresh AI runner. A running task keeps its old runner; only new
// submissions see the swap.
func (a *App) setClient(provider, model string, client llm.CompletionClient) {
	a.provider = provider
	a.model = model
	a.client = client
	a.sup.SetRunner(task.KindAIRequest, &aiRunner{client: client, system: a.cfg.LLM.SystemPrompt, sh: a.sh})
	a.logger.Printf("provider set to %s/%s", provider, model)
}
