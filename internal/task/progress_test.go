package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenTripsExactlyOnce(t *testing.T) {
	t.Parallel()

	tok := NewAbortToken()
	require.False(t, tok.Aborted())
	require.True(t, tok.Trip())
	require.True(t, tok.Aborted())
	require.False(t, tok.Trip(), "second trip is a no-op")
	require.True(t, tok.Aborted())
}

func TestTicksOnlyWhileTaskRuns(t *testing.T) {
	t.Parallel()

	runner := RunnerFunc(func(ctx context.Context, tok *AbortToken, req Request) (Result, error) {
		time.Sleep(500 * time.Millisecond)
		return Result{Text: "done"}, nil
	})
	s := NewSupervisor(map[Kind]Runner{KindAIRequest: runner}, Options{TickInterval: 100 * time.Millisecond})

	h, err := s.Submit(KindAIRequest, "run", 0)
	require.NoError(t, err)

	ticks := 0
	lastFrame := 0
	for {
		select {
		case tick := <-s.Progress():
			require.Equal(t, h.ID, tick.TaskID)
			require.Greater(t, tick.Frame, lastFrame, "frames are monotonic")
			lastFrame = tick.Frame
			ticks++
			continue
		case o := <-h.Outcome():
			require.Equal(t, StateCompleted, o.State)
		case <-time.After(2 * time.Second):
			t.Fatal("task never finished")
		}
		break
	}
	// 500ms at 100ms per tick, with scheduler jitter either side
	require.GreaterOrEqual(t, ticks, 3)
	require.LessOrEqual(t, ticks, 6)

	// terminal task: ticking has stopped
	select {
	case tick := <-s.Progress():
		// at most one tick may already be buffered from the race with settle
		require.Equal(t, h.ID, tick.TaskID)
		select {
		case extra := <-s.Progress():
			t.Fatalf("tick %d after task left running state", extra.Frame)
		case <-time.After(300 * time.Millisecond):
		}
	case <-time.After(300 * time.Millisecond):
	}
}

func TestNoTicksWhileIdle(t *testing.T) {
	t.Parallel()

	s := NewSupervisor(map[Kind]Runner{}, Options{TickInterval: 100 * time.Millisecond})
	select {
	case tick := <-s.Progress():
		t.Fatalf("tick %d with no active task", tick.Frame)
	case <-time.After(500 * time.Millisecond):
	}
}
