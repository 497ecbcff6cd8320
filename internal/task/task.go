package task

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ID uniquely identifies a task for the lifetime of the process.
type ID string

// NewID returns a fresh random task ID.
func NewID() ID { return ID(uuid.NewString()) }

// Short returns the first uuid segment, for log lines and status displays.
func (id ID) Short() string {
	s := string(id)
	if i := strings.IndexByte(s, '-'); i > 0 {
		return s[:i]
	}
	return s
}

func (id ID) String() string { return string(id) }

// Kind classifies what a task does.
type Kind int

const (
	KindAIRequest Kind = iota
	KindShellCommand
)

func (k Kind) String() string {
	switch k {
	case KindAIRequest:
		return "ai-request"
	case KindShellCommand:
		return "shell-command"
	default:
		return "task"
	}
}

// State is a task's lifecycle state. Tasks enter at Running and move exactly
// once to one of the four terminal states.
type State int

const (
	StateRunning State = iota
	StateCompleted
	StateFailed
	StateCancelled
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	case StateTimedOut:
		return "timed out"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is one of the four end states.
func (s State) Terminal() bool { return s != StateRunning }

var (
	// ErrAlreadyRunning is returned by Submit under PolicyReject when a task
	// is still active.
	ErrAlreadyRunning = errors.New("task: a task is already running")
	// ErrCancelled marks a user-triggered abort.
	ErrCancelled = errors.New("task: cancelled")
	// ErrTimedOut marks deadline expiry, distinct from ErrCancelled.
	ErrTimedOut = errors.New("task: deadline exceeded")
)

// Usage carries token accounting reported by a completion backend. Zero for
// shell tasks.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Request is what a Runner receives for one task.
type Request struct {
	Kind   Kind
	Prompt string
	// Publish replaces the task's partial-output buffer. Streaming runners
	// call it with the accumulated text so the render layer can show
	// in-flight output. Never nil.
	Publish func(partial string)
}

// Result is a runner's successful payload.
type Result struct {
	Text  string
	Usage Usage
}

// Outcome is the immutable terminal record of a task, tagged with the task id
// it belongs to so stale deliveries can be dropped.
type Outcome struct {
	TaskID   ID
	Kind     Kind
	State    State
	Text     string
	Usage    Usage
	Err      error
	Duration time.Duration
}

// Task is one unit of cancellable background work.
type Task struct {
	ID        ID
	Kind      Kind
	Prompt    string
	StartedAt time.Time
	Deadline  time.Duration // 0 means none
	Token     *AbortToken

	partial atomic.Pointer[string]
}

func newTask(kind Kind, prompt string, deadline time.Duration) *Task {
	return &Task{
		ID:        NewID(),
		Kind:      kind,
		Prompt:    prompt,
		StartedAt: time.Now(),
		Deadline:  deadline,
		Token:     NewAbortToken(),
	}
}

func (t *Task) setPartial(s string) { t.partial.Store(&s) }

// Partial returns the most recent streamed partial output, or "".
func (t *Task) Partial() string {
	if p := t.partial.Load(); p != nil {
		return *p
	}
	return ""
}
