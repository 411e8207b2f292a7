package hiwin_arm

import (
	"context"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"golang.org/x/sync/semaphore"
)

// Controller is one arm session: connection, parameter guard, dispatcher and
// completion waiter wired over a single Gateway. Every surface sharing the
// session goes through its motion slot, so at most one motion is in flight.
type Controller struct {
	gw       Gateway
	notifier Notifier
	logger   logging.Logger

	conn  *ConnectionManager
	guard *ParameterGuard

	// motion is held for the whole of a move, including its wait.
	motion *semaphore.Weighted

	// settingsMu guards the fields below. Writers also hold the motion slot.
	settingsMu sync.RWMutex
	cfg        *Config
	waiter     *CompletionWaiter
	dispatcher *MotionDispatcher
	smoothing  SmoothingSpec
}

// NewGateway picks the simulator or the vendor library from the config.
func NewGateway(cfg *Config) (Gateway, error) {
	if cfg.Simulate {
		return NewSimGateway(SimOptions{
			MotionDuration: time.Duration(cfg.SimMotionMs) * time.Millisecond,
			NativeRelative: map[PositionType]bool{Cartesian: true, Joint: true},
		}), nil
	}
	return NewSDKGateway()
}

// NewController builds a disconnected controller. A nil notifier reports through logger.
func NewController(gw Gateway, cfg *Config, notifier Notifier, logger logging.Logger) (*Controller, error) {
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	conn := NewConnectionManager(gw, cfg.Address(), cfg.settleDelay(), notifier, logger)
	c := &Controller{
		gw:       gw,
		notifier: notifier,
		logger:   logger,
		conn:     conn,
		guard:    NewParameterGuard(conn, gw, notifier, logger),
		motion:   semaphore.NewWeighted(1),
	}
	if err := c.applySettings(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Controller) applySettings(cfg *Config) error {
	waiter, err := NewCompletionWaiter(c.conn, c.gw, cfg.waitOptions(), c.logger)
	if err != nil {
		return err
	}
	dispatcher, err := NewMotionDispatcher(c.conn, c.gw, waiter, cfg.relativePolicy(), c.notifier, c.logger)
	if err != nil {
		return err
	}
	c.settingsMu.Lock()
	defer c.settingsMu.Unlock()
	c.cfg = cfg
	c.waiter = waiter
	c.dispatcher = dispatcher
	c.smoothing = cfg.smoothing()
	return nil
}

func (c *Controller) parts() (*Config, *CompletionWaiter, *MotionDispatcher) {
	c.settingsMu.RLock()
	defer c.settingsMu.RUnlock()
	return c.cfg, c.waiter, c.dispatcher
}

// Reconfigure replaces the motion settings of a live session once no motion is
// in flight, and applies the new ratios if the session is ready.
func (c *Controller) Reconfigure(ctx context.Context, cfg *Config) error {
	if cfg.Address() != c.conn.Address() {
		return errors.Errorf("cannot move session %s to %s", c.conn.Address(), cfg.Address())
	}
	if err := c.motion.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.motion.Release(1)

	if err := c.applySettings(cfg); err != nil {
		return err
	}
	c.conn.setSettle(cfg.settleDelay())
	if c.conn.State() != Ready {
		return nil
	}
	return c.applyRatios(cfg)
}

// Connect opens the session and applies configured ratios.
func (c *Controller) Connect(ctx context.Context) error {
	if err := c.conn.Connect(ctx); err != nil {
		return err
	}
	cfg, waiter, dispatcher := c.parts()
	if err := c.applyRatios(cfg); err != nil {
		return err
	}
	c.logger.Infof("HIWIN arm ready at %s (completion: %s, relative cartesian native: %v, joint native: %v)",
		c.conn.Address(), waiter.Mode(), dispatcher.NativeRelative(Cartesian), dispatcher.NativeRelative(Joint))
	return nil
}

func (c *Controller) applyRatios(cfg *Config) error {
	if cfg.Speed != 0 {
		if err := c.guard.SetSpeed(cfg.Speed); err != nil {
			return errors.Wrap(err, "applying configured speed")
		}
	}
	if cfg.Acceleration != 0 {
		if err := c.guard.SetAcceleration(cfg.Acceleration); err != nil {
			return errors.Wrap(err, "applying configured acceleration")
		}
	}
	return nil
}

// Disconnect ends any wait in progress and shuts the session down.
func (c *Controller) Disconnect(ctx context.Context) bool {
	c.CancelWait(ctx)
	return c.conn.Disconnect(ctx)
}

func (c *Controller) State() ConnectionState {
	return c.conn.State()
}

func (c *Controller) Handle() int {
	return c.conn.Handle()
}

// ClearAlarm clears latched alarms. A session recovering from Faulted gets the
// configured ratios it missed while connecting.
func (c *Controller) ClearAlarm() error {
	wasFaulted := c.conn.State() == Faulted
	if err := c.conn.ClearAlarm(); err != nil {
		return err
	}
	if !wasFaulted || c.conn.State() != Ready {
		return nil
	}
	cfg, _, _ := c.parts()
	return c.applyRatios(cfg)
}

func (c *Controller) SetSpeed(v int) error        { return c.guard.SetSpeed(v) }
func (c *Controller) SetAcceleration(v int) error { return c.guard.SetAcceleration(v) }
func (c *Controller) Speed() (int, error)         { return c.guard.Speed() }
func (c *Controller) Acceleration() (int, error)  { return c.guard.Acceleration() }

// acquireMotion takes the motion slot, queuing behind the motion in flight.
func (c *Controller) acquireMotion(ctx context.Context) (func(), error) {
	if err := c.motion.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { c.motion.Release(1) }, nil
}

func (c *Controller) Home(ctx context.Context, space PositionType, wait bool) error {
	release, err := c.acquireMotion(ctx)
	if err != nil {
		return err
	}
	defer release()
	_, _, dispatcher := c.parts()
	return c.report(dispatcher.Home(ctx, space, wait))
}

// MoveLinear moves in a straight line. A nil smoothing uses the configured default.
func (c *Controller) MoveLinear(ctx context.Context, target PositionVector, space PositionType, frame CoordinateType, smoothing *SmoothingSpec, wait bool) error {
	release, err := c.acquireMotion(ctx)
	if err != nil {
		return err
	}
	defer release()
	_, _, dispatcher := c.parts()
	return c.report(dispatcher.MoveLinear(ctx, target, space, frame, c.smoothingOrDefault(smoothing), wait))
}

// MovePointToPoint moves without a defined path. A nil smoothing uses the configured default.
func (c *Controller) MovePointToPoint(ctx context.Context, target PositionVector, space PositionType, frame CoordinateType, smoothing *SmoothingSpec, wait bool) error {
	release, err := c.acquireMotion(ctx)
	if err != nil {
		return err
	}
	defer release()
	_, _, dispatcher := c.parts()
	return c.report(dispatcher.MovePointToPoint(ctx, target, space, frame, c.smoothingOrDefault(smoothing), wait))
}

// Jog moves the tool by delta along x, y and z without waiting.
func (c *Controller) Jog(ctx context.Context, delta r3.Vector) error {
	offset := PoseFromVectors(delta, r3.Vector{})
	return c.MoveLinear(ctx, offset, Cartesian, Relative, nil, false)
}

func (c *Controller) Position(space PositionType) (PositionVector, error) {
	_, _, dispatcher := c.parts()
	return dispatcher.Position(space)
}

// Wait blocks until the arm is idle, or at target in readback mode.
func (c *Controller) Wait(ctx context.Context, target PositionVector, space PositionType) error {
	release, err := c.acquireMotion(ctx)
	if err != nil {
		return err
	}
	defer release()
	_, waiter, _ := c.parts()
	return c.report(waiter.Wait(ctx, target, space))
}

// CancelWait abandons a wait in progress without stopping the arm.
func (c *Controller) CancelWait(ctx context.Context) {
	_, waiter, _ := c.parts()
	waiter.Cancel(ctx)
}

func (c *Controller) smoothingOrDefault(s *SmoothingSpec) SmoothingSpec {
	if s != nil {
		return *s
	}
	c.settingsMu.RLock()
	defer c.settingsMu.RUnlock()
	return c.smoothing
}

func (c *Controller) report(err error) error {
	if IsTimeout(err) {
		c.notifier.Report(err.Error(), SeverityWarn)
	}
	return err
}

// Status is a point-in-time view of the session.
type Status struct {
	Address         string
	State           ConnectionState
	Handle          int
	MotorState      int
	ConnectionLevel int
	MotionState     int
	Speed           int
	Acceleration    int
	Waiting         bool
	Pose            *PositionVector
	Joints          *PositionVector
}

// Status samples the controller. Fields that need an open session hold -1 otherwise.
func (c *Controller) Status() Status {
	_, waiter, _ := c.parts()
	st := Status{
		Address:         c.conn.Address(),
		State:           c.conn.State(),
		Handle:          c.conn.Handle(),
		MotorState:      -1,
		ConnectionLevel: -1,
		MotionState:     -1,
		Speed:           -1,
		Acceleration:    -1,
		Waiting:         waiter.Waiting(),
	}
	if !validHandle(st.Handle) {
		return st
	}
	st.MotorState = c.gw.MotorState(st.Handle)
	st.ConnectionLevel = c.gw.ConnectionLevel(st.Handle)
	st.MotionState = c.gw.MotionState(st.Handle)
	if st.State != Ready {
		return st
	}
	st.Speed, _ = c.guard.Speed()
	st.Acceleration, _ = c.guard.Acceleration()
	if pose, code := c.gw.ReadPosition(st.Handle, Cartesian); code == codeSuccess {
		st.Pose = &pose
	}
	if joints, code := c.gw.ReadPosition(st.Handle, Joint); code == codeSuccess {
		st.Joints = &joints
	}
	return st
}

// Map renders the status for DoCommand and sensor readings.
func (s Status) Map() map[string]interface{} {
	out := map[string]interface{}{
		"address":          s.Address,
		"state":            s.State.String(),
		"handle":           s.Handle,
		"motor_state":      s.MotorState,
		"connection_level": s.ConnectionLevel,
		"motion_state":     s.MotionState,
		"speed":            s.Speed,
		"acceleration":     s.Acceleration,
		"waiting":          s.Waiting,
	}
	if s.Pose != nil {
		out["pose"] = s.Pose.Slice()
	}
	if s.Joints != nil {
		out["joints"] = s.Joints.Slice()
	}
	return out
}
