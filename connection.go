package hiwin_arm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.viam.com/rdk/logging"
	goutils "go.viam.com/utils"
)

// DefaultSettleDelay is the pause after opening a session and after each motor
// power transition before controller state is trusted.
const DefaultSettleDelay = 500 * time.Millisecond

// eventSoftwareUpdate is the event command carrying a controller software update result.
const eventSoftwareUpdate = 4011

// ConnectionState is the session lifecycle state.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Ready
	// Faulted means the session is open but an alarm could not be cleared.
	// ClearAlarm returns it to Ready.
	Faulted
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ConnectionManager owns the session handle and the connection state machine.
// It is the only writer of either.
type ConnectionManager struct {
	gw       Gateway
	address  string
	settle   time.Duration
	logger   logging.Logger
	notifier Notifier
	router   *eventRouter
	onEvent  EventFunc

	mu     sync.RWMutex
	state  ConnectionState
	handle int
}

// NewConnectionManager returns a manager in the Disconnected state.
func NewConnectionManager(gw Gateway, address string, settle time.Duration, notifier Notifier, logger logging.Logger) *ConnectionManager {
	m := &ConnectionManager{
		gw:       gw,
		address:  address,
		settle:   settle,
		logger:   logger,
		notifier: notifier,
		router:   sessionEvents,
		state:    Disconnected,
		handle:   -1,
	}
	m.onEvent = m.handleEvent
	return m
}

// Connect opens a session, clears any pending alarm and powers the motors.
// Calling it on a Ready session does nothing; on a Faulted one it returns ErrFaulted.
func (m *ConnectionManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Ready:
		return nil
	case Faulted:
		return ErrFaulted
	}
	m.state = Connecting

	finish := m.router.bind(m.onEvent)
	handle := m.gw.Open(m.address, ModeOperator, routeEvent)
	finish(handle)
	m.handle = handle

	if !goutils.SelectContextOrWait(ctx, m.settle) {
		m.abortLocked()
		return ctx.Err()
	}

	if !validHandle(handle) {
		m.state = Disconnected
		m.handle = -1
		err := &ConnectionError{Address: m.address, Code: handle, Cause: classifyConnectCode(handle)}
		m.notifier.Report(fmt.Sprintf("HIWIN arm connection failed: %s", err.Cause), SeverityError)
		return err
	}

	var alarmErr error
	if code := m.gw.ClearAlarm(handle); !Accepted(OpClearAlarm, code) {
		alarmErr = &GatewayError{Op: OpClearAlarm, Code: code}
		m.notifier.Report(alarmErr.Error(), SeverityError)
	}
	if code := m.gw.SetMotor(handle, true); !Accepted(OpSetMotor, code) {
		m.logger.Warnf("motor enable returned code %d", code)
	}

	if !goutils.SelectContextOrWait(ctx, m.settle) {
		m.abortLocked()
		return ctx.Err()
	}

	motor := m.gw.MotorState(handle)
	level := m.gw.ConnectionLevel(handle)

	if alarmErr != nil {
		m.state = Faulted
		m.reportSummaryLocked("connected with an uncleared alarm", motor, level)
		return alarmErr
	}
	m.state = Ready
	m.reportSummaryLocked("connected", motor, level)
	return nil
}

// Disconnect powers the motors off, clears alarms and closes the session. It
// always succeeds from the caller's point of view and may be called repeatedly.
func (m *ConnectionManager) Disconnect(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle < 0 {
		m.state = Disconnected
		return true
	}
	handle := m.handle

	if code := m.gw.SetMotor(handle, false); !Accepted(OpSetMotor, code) {
		m.logger.Warnf("motor disable returned code %d", code)
	}
	// A cancelled context only shortens the settle; shutdown continues.
	goutils.SelectContextOrWait(ctx, m.settle)
	if code := m.gw.ClearAlarm(handle); !Accepted(OpClearAlarm, code) {
		m.logger.Warnf("clear alarm during disconnect returned code %d", code)
	}
	motor := m.gw.MotorState(handle)

	m.gw.Close(handle)
	m.router.release(handle)
	m.handle = -1
	m.state = Disconnected

	m.notifier.Report(fmt.Sprintf("HIWIN arm disconnected from %s, motor state %d", m.address, motor), SeverityInfo)
	return true
}

// ClearAlarm clears latched controller alarms. "Nothing to clear" counts as success.
func (m *ConnectionManager) ClearAlarm() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != Ready && m.state != Faulted {
		return ErrNotConnected
	}
	code := m.gw.ClearAlarm(m.handle)
	if err := checkCode(OpClearAlarm, code); err != nil {
		m.notifier.Report(err.Error(), SeverityError)
		return err
	}
	if m.state == Faulted {
		m.logger.Info("alarm cleared, arm ready")
		m.state = Ready
	}
	return nil
}

func (m *ConnectionManager) State() ConnectionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Handle returns the session handle, or -1 when no session is open.
func (m *ConnectionManager) Handle() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handle
}

func (m *ConnectionManager) setSettle(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settle = d
}

func (m *ConnectionManager) Address() string {
	return m.address
}

// ReadyHandle returns the session handle, or ErrNotConnected unless the state is Ready.
func (m *ConnectionManager) ReadyHandle() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != Ready {
		return -1, ErrNotConnected
	}
	return m.handle, nil
}

func (m *ConnectionManager) abortLocked() {
	if validHandle(m.handle) {
		m.gw.Close(m.handle)
		m.router.release(m.handle)
	}
	m.handle = -1
	m.state = Disconnected
}

func (m *ConnectionManager) reportSummaryLocked(what string, motor, level int) {
	role := "operator"
	if level == ModeObserver {
		role = "observer"
	}
	motorText := "off"
	if motor == 1 {
		motorText = "on"
	}
	m.notifier.Report(fmt.Sprintf("HIWIN arm %s: address %s, id %d, motor %s, level %s",
		what, m.address, m.handle, motorText, role), SeverityInfo)
}

// handleEvent runs on the gateway's event context. It only logs and reports.
func (m *ConnectionManager) handleEvent(command, result uint16, message []uint16) {
	m.logger.Debugf("controller event: command %d result %d (%d words)", command, result, len(message))
	if result == 0 {
		return
	}
	if command == eventSoftwareUpdate {
		m.notifier.Report(fmt.Sprintf("controller update failed: result %d", result), SeverityWarn)
		return
	}
	m.notifier.Report(fmt.Sprintf("controller event %d reported result %d", command, result), SeverityWarn)
}
