package llm

import (
	"context"
	"errors"
	"fmt"
)

// CompletionClient is the capability interface every backend provider
// implements. The provider is selected at configuration time; the task
// supervisor and the event loop only ever see this interface.
type CompletionClient interface {
	// Generate performs one completion request, observing the abort token
	// cooperatively: before issuing the call and once per streamed chunk.
	Generate(ctx context.Context, req GenerateRequest) (*Response, error)
	// Models lists the model names the backend currently serves.
	Models(ctx context.Context) ([]string, error)
	// CheckAvailability probes cheaply whether the backend is reachable and
	// configured, without running a generation.
	CheckAvailability(ctx context.Context) error
	Name() string
}

// Aborter is the read side of a cancellation flag.
type Aborter interface {
	Aborted() bool
}

// GenerateRequest describes one completion call.
type GenerateRequest struct {
	Prompt string
	System string
	// Abort may be nil. Streamed providers poll it per chunk and unwind with
	// ErrAborted as soon as it reads true.
	Abort Aborter
	// OnChunk may be nil. Streamed providers call it with the accumulated
	// text after each chunk.
	OnChunk func(accumulated string)
}

// Usage is the token accounting reported by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is a completed generation.
type Response struct {
	Content string
	Model   string
	Usage   Usage
}

var (
	ErrNoAPIKey = errors.New("llm: api key not configured")
	// ErrUnavailable marks a connection-level failure: the backend could not
	// be reached at all.
	ErrUnavailable = errors.New("llm: provider unavailable")
	// ErrAborted marks a generation abandoned because the abort token
	// tripped mid-flight.
	ErrAborted = errors.New("llm: generation aborted")
)

// ProviderError is a failure response from the backend itself, as opposed to
// a connection-level failure.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Message)
}

func wantsAbort(a Aborter) bool { return a != nil && a.Aborted() }
