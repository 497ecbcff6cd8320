package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/jask/chatfuse/internal/llm"
	"github.com/jask/chatfuse/internal/shell"
	"github.com/jask/chatfuse/internal/task"
)

// aiRunner executes one completion request as a task body: availability
// probe, generation with streamed partials, then bash-block expansion. All
// of it happens off the event loop; partial text reaches the view through
// Publish only.
type aiRunner struct {
	client llm.CompletionClient
	system string
	sh     *shell.Runner
}

func (r *aiRunner) Run(ctx context.Context, tok *task.AbortToken, req task.Request) (task.Result, error) {
	if err := r.client.CheckAvailability(ctx); err != nil {
		return task.Result{}, mapLLMErr(err)
	}
	resp, err := r.client.Generate(ctx, llm.GenerateRequest{
		Prompt:  req.Prompt,
		System:  r.system,
		Abort:   tok,
		OnChunk: req.Publish,
	})
	if err != nil {
		return task.Result{}, mapLLMErr(err)
	}
	text := r.sh.ExpandBlocks(ctx, tok, resp.Content)
	if tok.Aborted() {
		return task.Result{}, task.ErrCancelled
	}
	return task.Result{
		Text: text,
		Usage: task.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func mapLLMErr(err error) error {
	switch {
	case errors.Is(err, llm.ErrAborted), errors.Is(err, context.Canceled):
		return task.ErrCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return task.ErrTimedOut
	default:
		return err
	}
}

// shellRunner executes one guarded shell command as a task body.
type shellRunner struct {
	sh *shell.Runner
}

func (r *shellRunner) Run(ctx context.Context, tok *task.AbortToken, req task.Request) (task.Result, error) {
	command := strings.TrimSpace(strings.TrimPrefix(req.Prompt, "!"))
	out, err := r.sh.Run(ctx, tok, command)
	switch {
	case errors.Is(err, context.Canceled):
		return task.Result{}, task.ErrCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return task.Result{}, task.ErrTimedOut
	case err != nil:
		return task.Result{}, err
	}
	return task.Result{Text: out}, nil
}
