package hiwin_arm

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
)

const testSettle = time.Millisecond

func newTestConnection(t *testing.T, gw Gateway) (*ConnectionManager, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	return NewConnectionManager(gw, "192.168.0.1", testSettle, notifier, logging.NewTestLogger(t)), notifier
}

func TestConnect(t *testing.T) {
	ctx := context.Background()

	t.Run("valid handle becomes ready", func(t *testing.T) {
		gw := newFakeGateway()
		conn, notifier := newTestConnection(t, gw)
		defer conn.Disconnect(ctx)

		require.NoError(t, conn.Connect(ctx))
		assert.Equal(t, Ready, conn.State())
		assert.Equal(t, 5, conn.Handle())
		assert.Equal(t, []string{"open 192.168.0.1 1", "clear_alarm", "set_motor true"}, gw.Calls())

		reports := notifier.Reports()
		require.NotEmpty(t, reports)
		last := reports[len(reports)-1]
		assert.Equal(t, SeverityInfo, last.severity)
		assert.Contains(t, last.text, "id 5")
		assert.Contains(t, last.text, "motor on")
		assert.Contains(t, last.text, "level operator")
	})

	t.Run("connect on an open session does nothing", func(t *testing.T) {
		gw := newFakeGateway()
		conn, _ := newTestConnection(t, gw)
		defer conn.Disconnect(ctx)

		require.NoError(t, conn.Connect(ctx))
		calls := len(gw.Calls())
		require.NoError(t, conn.Connect(ctx))
		assert.Len(t, gw.Calls(), calls)
	})

	t.Run("unreachable device", func(t *testing.T) {
		gw := newFakeGateway()
		gw.openCode = -3
		conn, notifier := newTestConnection(t, gw)

		err := conn.Connect(ctx)
		var connErr *ConnectionError
		require.True(t, errors.As(err, &connErr))
		assert.Equal(t, DeviceUnreachable, connErr.Cause)
		assert.Equal(t, -3, connErr.Code)
		assert.Equal(t, Disconnected, conn.State())
		assert.Equal(t, -1, conn.Handle())
		assert.Equal(t, 1, notifier.count(SeverityError))
		assert.Equal(t, []string{"open 192.168.0.1 1"}, gw.Calls())
	})

	t.Run("connect failure codes", func(t *testing.T) {
		for code, want := range map[int]ConnectFailure{
			-1: ConnectFailed,
			-2: CallbackCreationFailed,
			-3: DeviceUnreachable,
			-4: VersionMismatch,
			-9: ConnectUnknown,
		} {
			assert.Equal(t, want, classifyConnectCode(code), "code %d", code)
		}
	})

	t.Run("uncleared alarm leaves the session faulted", func(t *testing.T) {
		gw := newFakeGateway()
		gw.clearCode = 7
		conn, _ := newTestConnection(t, gw)
		defer conn.Disconnect(ctx)

		err := conn.Connect(ctx)
		var gwErr *GatewayError
		require.True(t, errors.As(err, &gwErr))
		assert.Equal(t, OpClearAlarm, gwErr.Op)
		assert.Equal(t, 7, gwErr.Code)
		assert.Equal(t, Faulted, conn.State())

		_, err = conn.ReadyHandle()
		assert.ErrorIs(t, err, ErrNotConnected)

		gw.mu.Lock()
		gw.clearCode = 0
		gw.mu.Unlock()
		require.NoError(t, conn.ClearAlarm())
		assert.Equal(t, Ready, conn.State())
	})

	t.Run("cancelled context aborts the open", func(t *testing.T) {
		gw := newFakeGateway()
		conn := NewConnectionManager(gw, "192.168.0.1", time.Hour, &recordingNotifier{}, logging.NewTestLogger(t))
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		err := conn.Connect(cctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, Disconnected, conn.State())
		assert.Equal(t, []int{5}, gw.closed)
		assert.NotContains(t, sessionEvents.boundHandles(), 5)
	})
}

func TestDisconnect(t *testing.T) {
	ctx := context.Background()

	t.Run("never connected", func(t *testing.T) {
		gw := newFakeGateway()
		conn, _ := newTestConnection(t, gw)
		assert.True(t, conn.Disconnect(ctx))
		assert.True(t, conn.Disconnect(ctx))
		assert.Empty(t, gw.Calls())
	})

	t.Run("shutdown order", func(t *testing.T) {
		gw := newFakeGateway()
		conn, _ := newTestConnection(t, gw)
		require.NoError(t, conn.Connect(ctx))
		assert.Contains(t, sessionEvents.boundHandles(), 5)

		assert.True(t, conn.Disconnect(ctx))
		calls := gw.Calls()
		assert.Equal(t, []string{"set_motor false", "clear_alarm", "close 5"}, calls[len(calls)-3:])
		assert.Equal(t, Disconnected, conn.State())
		assert.Equal(t, -1, conn.Handle())
		assert.NotContains(t, sessionEvents.boundHandles(), 5)

		assert.True(t, conn.Disconnect(ctx))
		assert.Len(t, gw.Calls(), len(calls))
	})

	t.Run("not connected calls fail without contacting the controller", func(t *testing.T) {
		gw := newFakeGateway()
		conn, _ := newTestConnection(t, gw)
		assert.ErrorIs(t, conn.ClearAlarm(), ErrNotConnected)
		_, err := conn.ReadyHandle()
		assert.ErrorIs(t, err, ErrNotConnected)
		assert.Empty(t, gw.Calls())
	})
}

func TestControllerEvents(t *testing.T) {
	ctx := context.Background()
	gw := newFakeGateway()
	conn, notifier := newTestConnection(t, gw)
	require.NoError(t, conn.Connect(ctx))
	defer conn.Disconnect(ctx)

	before := notifier.count(SeverityWarn)
	gw.events(4011, 0, nil)
	assert.Equal(t, before, notifier.count(SeverityWarn))

	gw.events(4011, 3, []uint16{1, 2})
	assert.Equal(t, before+1, notifier.count(SeverityWarn))
	reports := notifier.Reports()
	assert.True(t, strings.Contains(reports[len(reports)-1].text, "update failed"))

	gw.events(4702, 1, nil)
	assert.Equal(t, before+2, notifier.count(SeverityWarn))
}
