package hiwin_arm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
)

func newTestWaiter(t *testing.T, gw *fakeGateway, opts WaitOptions) *CompletionWaiter {
	t.Helper()
	conn, _ := newTestConnection(t, gw)
	require.NoError(t, conn.Connect(context.Background()))
	t.Cleanup(func() { conn.Disconnect(context.Background()) })
	w, err := NewCompletionWaiter(conn, gw, opts, logging.NewTestLogger(t))
	require.NoError(t, err)
	return w
}

func TestWaiterMode(t *testing.T) {
	gw := newFakeGateway()
	conn, _ := newTestConnection(t, gw)
	logger := logging.NewTestLogger(t)

	w, err := NewCompletionWaiter(conn, gw, WaitOptions{}, logger)
	require.NoError(t, err)
	assert.Equal(t, WaitMotionState, w.Mode())
	assert.False(t, w.NeedsTarget())

	gw.caps.MotionState = false
	w, err = NewCompletionWaiter(conn, gw, WaitOptions{}, logger)
	require.NoError(t, err)
	assert.Equal(t, WaitReadback, w.Mode())
	assert.True(t, w.NeedsTarget())

	_, err = NewCompletionWaiter(conn, gw, WaitOptions{Mode: WaitMotionState}, logger)
	assert.Error(t, err)

	_, err = NewCompletionWaiter(conn, gw, WaitOptions{Timeout: -time.Second}, logger)
	assert.True(t, IsValidation(err))
}

func TestWaitReadback(t *testing.T) {
	ctx := context.Background()
	target := PositionVector{10, 388, 324, 180, 0, 90}

	t.Run("converging readback returns", func(t *testing.T) {
		gw := newFakeGateway()
		gw.pose[Cartesian] = target
		gw.reads = []PositionVector{CartesianHome, {5, 378, 309, 180, 0, 90}, {9.995, 388, 324, -180, 0, 90}}
		w := newTestWaiter(t, gw, WaitOptions{PollInterval: time.Millisecond, Mode: WaitReadback})

		require.NoError(t, w.Wait(ctx, target, Cartesian))
		assert.Empty(t, gw.reads)
		assert.False(t, w.Waiting())
	})

	t.Run("read failures are retried", func(t *testing.T) {
		gw := newFakeGateway()
		gw.readCode = -1
		w := newTestWaiter(t, gw, WaitOptions{PollInterval: time.Millisecond, Timeout: 50 * time.Millisecond, Mode: WaitReadback})

		err := w.Wait(ctx, target, Cartesian)
		assert.True(t, IsTimeout(err))
	})

	t.Run("never converging times out", func(t *testing.T) {
		gw := newFakeGateway()
		w := newTestWaiter(t, gw, WaitOptions{PollInterval: 200 * time.Millisecond, Timeout: 2 * time.Second, Mode: WaitReadback})

		start := time.Now()
		err := w.Wait(ctx, target, Cartesian)
		elapsed := time.Since(start)

		require.True(t, IsTimeout(err), "got %v", err)
		assert.GreaterOrEqual(t, elapsed, 2*time.Second)
		assert.Less(t, elapsed, 2200*time.Millisecond)
	})
}

func TestWaitMotionState(t *testing.T) {
	ctx := context.Background()

	t.Run("idle returns immediately", func(t *testing.T) {
		gw := newFakeGateway()
		w := newTestWaiter(t, gw, WaitOptions{PollInterval: time.Millisecond})
		assert.NoError(t, w.Wait(ctx, PositionVector{}, Joint))
	})

	t.Run("busy until idle", func(t *testing.T) {
		gw := newFakeGateway()
		gw.motionIdle = false
		w := newTestWaiter(t, gw, WaitOptions{PollInterval: time.Millisecond})

		go func() {
			time.Sleep(20 * time.Millisecond)
			gw.mu.Lock()
			gw.motionIdle = true
			gw.mu.Unlock()
		}()
		assert.NoError(t, w.Wait(ctx, PositionVector{}, Joint))
	})

	t.Run("cancel ends the wait", func(t *testing.T) {
		gw := newFakeGateway()
		gw.motionIdle = false
		w := newTestWaiter(t, gw, WaitOptions{PollInterval: time.Millisecond})

		errc := make(chan error, 1)
		go func() { errc <- w.Wait(ctx, PositionVector{}, Joint) }()
		require.Eventually(t, w.Waiting, time.Second, time.Millisecond)
		w.Cancel(ctx)

		select {
		case err := <-errc:
			assert.ErrorIs(t, err, context.Canceled)
			assert.False(t, IsTimeout(err))
		case <-time.After(time.Second):
			t.Fatal("wait was not cancelled")
		}
	})

	t.Run("caller context ends the wait", func(t *testing.T) {
		gw := newFakeGateway()
		gw.motionIdle = false
		w := newTestWaiter(t, gw, WaitOptions{PollInterval: time.Millisecond, Timeout: time.Minute})

		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		err := w.Wait(cctx, PositionVector{}, Joint)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.False(t, IsTimeout(err))
	})

	t.Run("not connected", func(t *testing.T) {
		gw := newFakeGateway()
		conn, _ := newTestConnection(t, gw)
		w, err := NewCompletionWaiter(conn, gw, WaitOptions{}, logging.NewTestLogger(t))
		require.NoError(t, err)
		assert.ErrorIs(t, w.Wait(ctx, PositionVector{}, Joint), ErrNotConnected)
	})
}
