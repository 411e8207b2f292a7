package hiwin_arm

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
)

func newTestGuard(t *testing.T, gw *fakeGateway, connect bool) (*ParameterGuard, *recordingNotifier) {
	t.Helper()
	conn, notifier := newTestConnection(t, gw)
	if connect {
		require.NoError(t, conn.Connect(context.Background()))
		t.Cleanup(func() { conn.Disconnect(context.Background()) })
	}
	return NewParameterGuard(conn, gw, notifier, logging.NewTestLogger(t)), notifier
}

func TestParameterGuardRange(t *testing.T) {
	gw := newFakeGateway()
	guard, notifier := newTestGuard(t, gw, true)
	before := len(gw.Calls())

	for _, v := range []int{0, -1, 101, 1000} {
		err := guard.SetSpeed(v)
		assert.True(t, IsValidation(err), "speed %d", v)
		err = guard.SetAcceleration(v)
		assert.True(t, IsValidation(err), "acceleration %d", v)
	}
	assert.Len(t, gw.Calls(), before, "out of range values must not reach the controller")
	assert.Equal(t, 8, notifier.count(SeverityWarn))
}

func TestParameterGuardSet(t *testing.T) {
	t.Run("speed", func(t *testing.T) {
		gw := newFakeGateway()
		guard, _ := newTestGuard(t, gw, true)
		require.NoError(t, guard.SetSpeed(1))
		require.NoError(t, guard.SetSpeed(100))
		v, err := guard.Speed()
		require.NoError(t, err)
		assert.Equal(t, 100, v)
	})

	t.Run("acceleration acknowledged with 4000", func(t *testing.T) {
		gw := newFakeGateway()
		guard, _ := newTestGuard(t, gw, true)
		require.NoError(t, guard.SetAcceleration(40))
		v, err := guard.Acceleration()
		require.NoError(t, err)
		assert.Equal(t, 40, v)
	})

	t.Run("unexpected code", func(t *testing.T) {
		gw := newFakeGateway()
		gw.ratioCode[SpeedRatio] = 4000
		guard, notifier := newTestGuard(t, gw, true)
		err := guard.SetSpeed(50)
		var gwErr *GatewayError
		require.True(t, errors.As(err, &gwErr))
		assert.Equal(t, OpSetSpeed, gwErr.Op)
		assert.Equal(t, 1, notifier.count(SeverityError))
	})

	t.Run("failed read", func(t *testing.T) {
		gw := newFakeGateway()
		gw.ratios[SpeedRatio] = -1
		guard, _ := newTestGuard(t, gw, true)
		v, err := guard.Speed()
		assert.Equal(t, -1, v)
		var gwErr *GatewayError
		assert.True(t, errors.As(err, &gwErr))
	})

	t.Run("not connected", func(t *testing.T) {
		gw := newFakeGateway()
		guard, _ := newTestGuard(t, gw, false)
		assert.ErrorIs(t, guard.SetSpeed(50), ErrNotConnected)
		v, err := guard.Acceleration()
		assert.ErrorIs(t, err, ErrNotConnected)
		assert.Equal(t, -1, v)
		assert.Empty(t, gw.Calls())
	})
}

func TestValidateSmoothing(t *testing.T) {
	assert.NoError(t, ValidateSmoothing(DefaultSmoothing))
	assert.True(t, IsValidation(ValidateSmoothing(SmoothingSpec{Type: SmoothType(9)})))
	assert.True(t, IsValidation(ValidateSmoothing(SmoothingSpec{Type: SmoothBezierPercent, Value: -1})))
	assert.True(t, IsValidation(ValidatePositionType(PositionType(3))))
	assert.True(t, IsValidation(ValidateCoordinateType(CoordinateType(-1))))
}
