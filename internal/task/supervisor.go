package task

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// Runner executes one task body on its own goroutine. Implementations must
// observe both the context (deadline) and the abort token, returning
// ErrCancelled/ErrTimedOut-wrapped errors when they unwind early.
type Runner interface {
	Run(ctx context.Context, tok *AbortToken, req Request) (Result, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, tok *AbortToken, req Request) (Result, error)

func (f RunnerFunc) Run(ctx context.Context, tok *AbortToken, req Request) (Result, error) {
	return f(ctx, tok, req)
}

// Policy decides what Submit does while a task is still active.
type Policy int

const (
	// PolicyCancelAndReplace trips the active task's abort token and makes
	// the new task active immediately; the superseded outcome is discarded.
	PolicyCancelAndReplace Policy = iota
	// PolicyReject refuses the new submission with ErrAlreadyRunning.
	PolicyReject
)

// Handle is the caller's reference to a submitted task: its id plus a
// one-shot outcome channel.
type Handle struct {
	ID  ID
	out chan Outcome
}

// Outcome delivers the task's terminal record exactly once.
func (h *Handle) Outcome() <-chan Outcome { return h.out }

type running struct {
	task    *Task
	handle  *Handle
	settled atomic.Bool
}

// Options configures a Supervisor. Zero values take defaults.
type Options struct {
	Policy Policy
	// Grace bounds how long a cancelled task may keep unwinding before the
	// supervisor synthesizes a Cancelled outcome and forgets it.
	Grace time.Duration
	// TickInterval is the progress reporter period.
	TickInterval time.Duration
	Logf         func(format string, args ...any)
}

const (
	defaultGrace        = 250 * time.Millisecond
	defaultTickInterval = 100 * time.Millisecond
	// abortPollInterval bounds how quickly the supervisor notices a tripped
	// token when the runner itself is not cooperating.
	abortPollInterval = 25 * time.Millisecond
)

// Supervisor owns at most one active task. It never performs network I/O on
// its own path; task bodies run on separate goroutines and deliver an
// id-tagged outcome over a per-task one-shot channel. The active slot and the
// abort token are the only state crossing goroutine boundaries and both are
// mutated through atomics only, so a misbehaving task body can never stall
// the event loop.
type Supervisor struct {
	policy   Policy
	grace    time.Duration
	runners  map[Kind]Runner
	reporter *Reporter
	active   atomic.Pointer[running]
	logf     func(format string, args ...any)
}

func NewSupervisor(runners map[Kind]Runner, opts Options) *Supervisor {
	if opts.Grace <= 0 {
		opts.Grace = defaultGrace
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	if opts.Logf == nil {
		opts.Logf = func(string, ...any) {}
	}
	return &Supervisor{
		policy:   opts.Policy,
		grace:    opts.Grace,
		runners:  runners,
		reporter: newReporter(opts.TickInterval),
		logf:     opts.Logf,
	}
}

// SetRunner installs or replaces the runner for a kind. Used when the
// completion provider is swapped at runtime. The runner table is confined to
// the goroutine that calls Submit and SetRunner; a task in flight keeps the
// runner it was submitted with.
func (s *Supervisor) SetRunner(kind Kind, r Runner) { s.runners[kind] = r }

// Progress exposes the reporter's tick channel for the event loop to pump.
func (s *Supervisor) Progress() <-chan ProgressTick { return s.reporter.Ticks() }

// Submit creates a task and hands it to its runner on a fresh goroutine.
// Under PolicyCancelAndReplace an active task is aborted and superseded;
// under PolicyReject Submit fails with ErrAlreadyRunning instead.
func (s *Supervisor) Submit(kind Kind, prompt string, deadline time.Duration) (*Handle, error) {
	if prev := s.active.Load(); prev != nil && !prev.settled.Load() {
		if s.policy == PolicyReject {
			return nil, ErrAlreadyRunning
		}
		prev.task.Token.Trip()
		s.logf("task %s superseded", prev.task.ID.Short())
	}

	t := newTask(kind, prompt, deadline)
	r := &running{
		task:   t,
		handle: &Handle{ID: t.ID, out: make(chan Outcome, 1)},
	}

	if old := s.active.Swap(r); old != nil && !old.settled.Load() && s.policy == PolicyReject {
		// A second active task should have been caught above; restore the
		// single-active-task invariant instead of propagating a crash.
		s.logf("internal: unexpected active task %s while submitting; clearing", old.task.ID.Short())
		old.task.Token.Trip()
	}

	// resolve the runner here so supervise's goroutine never touches the
	// runner table
	s.reporter.start(t.ID)
	go s.supervise(r, s.runners[kind])
	return r.handle, nil
}

// CancelActive trips the active task's abort token. It reports whether this
// call changed anything: repeated calls, or calls with no active task, are
// no-ops returning false. Cancellation takes effect logically at once; the
// network unwind is bounded separately by the grace period.
func (s *Supervisor) CancelActive() bool {
	r := s.active.Load()
	if r == nil || r.settled.Load() {
		return false
	}
	return r.task.Token.Trip()
}

// Poll returns the active task's outcome if one has been delivered, clearing
// the active slot. It never blocks.
func (s *Supervisor) Poll() (Outcome, bool) {
	r := s.active.Load()
	if r == nil {
		return Outcome{}, false
	}
	select {
	case o := <-r.handle.out:
		s.active.CompareAndSwap(r, nil)
		return o, true
	default:
		return Outcome{}, false
	}
}

// Resolve applies an outcome that arrived through a handle: it verifies the
// outcome still belongs to the active task and clears the slot. A false
// return means the outcome is stale (its task was superseded or forcibly
// forgotten) and must be discarded by the caller.
func (s *Supervisor) Resolve(o Outcome) bool {
	r := s.active.Load()
	if r == nil || r.task.ID != o.TaskID {
		s.logf("dropping stale outcome for task %s (%s)", o.TaskID.Short(), o.State)
		return false
	}
	s.active.CompareAndSwap(r, nil)
	return true
}

// Running reports whether a non-terminal task is active.
func (s *Supervisor) Running() bool {
	r := s.active.Load()
	return r != nil && !r.settled.Load()
}

// ActiveID returns the active task's id, or "".
func (s *Supervisor) ActiveID() ID {
	if r := s.active.Load(); r != nil {
		return r.task.ID
	}
	return ""
}

// Snapshot is the read-only view handed to the render layer.
type Snapshot struct {
	TaskRunning  bool
	TaskKind     Kind
	SpinnerFrame int
	PartialText  string
	Elapsed      time.Duration
}

func (s *Supervisor) Snapshot() Snapshot {
	r := s.active.Load()
	if r == nil || r.settled.Load() {
		return Snapshot{}
	}
	return Snapshot{
		TaskRunning:  true,
		TaskKind:     r.task.Kind,
		SpinnerFrame: s.reporter.Frame(),
		PartialText:  r.task.Partial(),
		Elapsed:      time.Since(r.task.StartedAt),
	}
}

// supervise runs on its own goroutine: it starts the runner, then races the
// runner's completion against the deadline and the abort token. Exactly one
// outcome is settled per task; a runner that keeps going after being
// abandoned writes into a buffered channel nobody reads and cannot touch
// shared state again.
func (s *Supervisor) supervise(r *running, runner Runner) {
	ctx := context.Background()
	var cancel context.CancelFunc
	if r.task.Deadline > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.task.Deadline)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan Outcome, 1)
	go func() {
		if runner == nil {
			done <- s.outcomeFor(r.task, Result{}, errors.New("task: no runner registered for "+r.task.Kind.String()))
			return
		}
		req := Request{Kind: r.task.Kind, Prompt: r.task.Prompt, Publish: r.task.setPartial}
		res, err := runner.Run(ctx, r.task.Token, req)
		done <- s.outcomeFor(r.task, res, err)
	}()

	poll := time.NewTicker(abortPollInterval)
	defer poll.Stop()
	for {
		select {
		case o := <-done:
			s.settle(r, o)
			return
		case <-ctx.Done():
			s.settle(r, Outcome{
				TaskID: r.task.ID,
				Kind:   r.task.Kind,
				State:  StateTimedOut,
				Err:    ErrTimedOut,
			})
			return
		case <-poll.C:
			if !r.task.Token.Aborted() {
				continue
			}
			// Bounded window for the runner to unwind cooperatively, then
			// the bookkeeping is cleared regardless.
			select {
			case o := <-done:
				s.settle(r, o)
			case <-time.After(s.grace):
				s.settle(r, Outcome{
					TaskID: r.task.ID,
					Kind:   r.task.Kind,
					State:  StateCancelled,
					Err:    ErrCancelled,
				})
			case <-ctx.Done():
				s.settle(r, Outcome{
					TaskID: r.task.ID,
					Kind:   r.task.Kind,
					State:  StateTimedOut,
					Err:    ErrTimedOut,
				})
			}
			return
		}
	}
}

// settle records the terminal outcome exactly once, stops progress ticks and
// delivers through the one-shot channel.
func (s *Supervisor) settle(r *running, o Outcome) {
	if !r.settled.CompareAndSwap(false, true) {
		return
	}
	if o.Duration == 0 {
		o.Duration = time.Since(r.task.StartedAt)
	}
	s.reporter.stopFor(o.TaskID)
	s.logf("task %s %s after %s", o.TaskID.Short(), o.State, o.Duration.Round(time.Millisecond))
	r.handle.out <- o
}

func (s *Supervisor) outcomeFor(t *Task, res Result, err error) Outcome {
	o := Outcome{
		TaskID: t.ID,
		Kind:   t.Kind,
		Text:   res.Text,
		Usage:  res.Usage,
		Err:    err,
	}
	switch {
	case err == nil:
		o.State = StateCompleted
	case errors.Is(err, ErrCancelled):
		o.State = StateCancelled
	case errors.Is(err, ErrTimedOut), errors.Is(err, context.DeadlineExceeded):
		o.State = StateTimedOut
		o.Err = ErrTimedOut
	case t.Token.Aborted():
		// The runner failed while unwinding from an abort; report the abort.
		o.State = StateCancelled
		o.Err = ErrCancelled
	default:
		o.State = StateFailed
	}
	// Cancelled and timed-out tasks discard any partial payload.
	if o.State == StateCancelled || o.State == StateTimedOut {
		o.Text = ""
	}
	return o
}
