package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jask/chatfuse/internal/task"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	shellStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("179"))
	systemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	spinnerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	partialStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
)

func (a *App) View() string {
	if !a.ready {
		return "starting..."
	}
	var b strings.Builder
	b.WriteString(a.headerView())
	b.WriteString("\n")
	b.WriteString(a.transcript.View())
	b.WriteString("\n")
	b.WriteString(a.footerView())
	return b.String()
}

func (a *App) headerView() string {
	left := headerStyle.Render(fmt.Sprintf("chatfuse  %s/%s", a.provider, a.model))
	right := statusStyle.Render(a.status)
	gap := a.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func (a *App) footerView() string {
	snap := a.sup.Snapshot()
	if snap.TaskRunning {
		frame := spinnerFrames[a.frame%len(spinnerFrames)]
		label := "thinking"
		if snap.TaskKind == task.KindShellCommand {
			label = "running"
		}
		if a.cancelPending {
			label += " (cancelling...)"
		}
		line := spinnerStyle.Render(fmt.Sprintf("%s %s %s", frame, label, snap.Elapsed.Round(100*time.Millisecond)))
		return line + "\n" + a.input.View()
	}
	return " \n" + a.input.View()
}

// refreshTranscript re-renders the transcript viewport. Bubbletea coalesces
// repaints, so re-rendering per message is cheap relative to terminal I/O.
func (a *App) refreshTranscript() {
	var b strings.Builder
	for _, e := range a.entries {
		switch e.kind {
		case entryUser:
			b.WriteString(userStyle.Render("you ❯ ") + e.text)
		case entryAssistant:
			b.WriteString(assistantStyle.Render(e.text))
		case entryShell:
			b.WriteString(shellStyle.Render(e.text))
		case entrySystem:
			b.WriteString(systemStyle.Render(e.text))
		case entryError:
			b.WriteString(errorStyle.Render("✗ " + e.text))
		}
		b.WriteString("\n\n")
	}
	if a.partial != "" && a.sup.Running() {
		b.WriteString(partialStyle.Render(a.partial))
		b.WriteString("\n")
	}
	a.transcript.SetContent(b.String())
}
