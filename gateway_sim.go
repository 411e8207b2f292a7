package hiwin_arm

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// Return codes produced by the simulator for calls a real controller would refuse.
const (
	simCodeRejected    = -1
	simCodeUnsupported = -2
)

// simHandles hands out session handles across all simulators, like the vendor
// library does across connections in one process.
var simHandles atomic.Int64

// SimOptions configures a SimGateway.
type SimOptions struct {
	// MotionDuration is how long every move takes. Zero completes moves instantly.
	MotionDuration time.Duration
	// NativeRelative lists spaces with controller-side relative moves.
	NativeRelative map[PositionType]bool
	// NoMotionState hides the motion-state flag, forcing readback completion.
	NoMotionState bool
	// OpenCode, when negative, makes every Open fail with that code.
	OpenCode int
	// Clock drives motion timing; defaults to the wall clock.
	Clock clock.Clock
}

// SimGateway is an in-process stand-in for the controller. Cartesian and joint
// spaces are tracked independently; there is no kinematic model.
type SimGateway struct {
	opts  SimOptions
	clock clock.Clock

	mu       sync.Mutex
	sessions map[int]*simSession
	events   EventFunc
}

type simSession struct {
	mode    int
	motor   bool
	alarm   bool
	speed   int
	accel   int
	motions map[PositionType]*simMotion
}

type simMotion struct {
	from, to PositionVector
	start    time.Time
	end      time.Time
}

func (m *simMotion) at(now time.Time) PositionVector {
	if !now.Before(m.end) {
		return m.to
	}
	total := m.end.Sub(m.start)
	if total <= 0 {
		return m.to
	}
	frac := float64(now.Sub(m.start)) / float64(total)
	var out PositionVector
	for i := range out {
		out[i] = m.from[i] + (m.to[i]-m.from[i])*frac
	}
	return out
}

// NewSimGateway returns a simulator with every session starting at home.
func NewSimGateway(opts SimOptions) *SimGateway {
	c := opts.Clock
	if c == nil {
		c = clock.New()
	}
	return &SimGateway{opts: opts, clock: c, sessions: make(map[int]*simSession)}
}

func (s *SimGateway) Capabilities() Capabilities {
	native := map[PositionType]bool{}
	for k, v := range s.opts.NativeRelative {
		native[k] = v
	}
	return Capabilities{NativeRelative: native, MotionState: !s.opts.NoMotionState}
}

func (s *SimGateway) Open(address string, mode int, cb EventFunc) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opts.OpenCode < 0 {
		return s.opts.OpenCode
	}
	handle := int((simHandles.Add(1) - 1) % 65536)
	now := s.clock.Now()
	s.sessions[handle] = &simSession{
		mode:  mode,
		speed: 10,
		accel: 100,
		motions: map[PositionType]*simMotion{
			Cartesian: {from: CartesianHome, to: CartesianHome, start: now, end: now},
			Joint:     {from: JointHome, to: JointHome, start: now, end: now},
		},
	}
	s.events = cb
	return handle
}

func (s *SimGateway) Close(handle int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, handle)
}

func (s *SimGateway) session(handle int) *simSession {
	return s.sessions[handle]
}

func (s *SimGateway) ClearAlarm(handle int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.session(handle)
	if sess == nil {
		return simCodeRejected
	}
	if !sess.alarm {
		return codeNoAlarm
	}
	sess.alarm = false
	return codeSuccess
}

func (s *SimGateway) SetMotor(handle int, on bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.session(handle)
	if sess == nil {
		return simCodeRejected
	}
	sess.motor = on
	return codeSuccess
}

func (s *SimGateway) MotorState(handle int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.session(handle); sess != nil && sess.motor {
		return 1
	}
	return 0
}

func (s *SimGateway) ConnectionLevel(handle int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.session(handle); sess != nil {
		return sess.mode
	}
	return simCodeRejected
}

func (s *SimGateway) MotionState(handle int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.session(handle)
	if sess == nil {
		return simCodeRejected
	}
	now := s.clock.Now()
	for _, m := range sess.motions {
		if now.Before(m.end) {
			return 2
		}
	}
	return motionStateIdle
}

func (s *SimGateway) Ratio(handle int, kind RatioKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.session(handle)
	if sess == nil {
		return codeReadFailed
	}
	if kind == AccelerationRatio {
		return sess.accel
	}
	return sess.speed
}

func (s *SimGateway) SetRatio(handle int, kind RatioKind, value int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.session(handle)
	if sess == nil {
		return simCodeRejected
	}
	if kind == AccelerationRatio {
		sess.accel = value
		return codeAccRatioAck
	}
	sess.speed = value
	return codeSuccess
}

func (s *SimGateway) MoveAbsolute(handle int, kind MotionKind, space PositionType, smoothing SmoothingSpec, target PositionVector) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startMotion(handle, space, func(PositionVector) PositionVector { return target })
}

func (s *SimGateway) MoveRelative(handle int, kind MotionKind, space PositionType, smoothing SmoothingSpec, offset PositionVector) int {
	if !s.opts.NativeRelative[space] {
		return simCodeUnsupported
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startMotion(handle, space, func(current PositionVector) PositionVector { return current.Add(offset) })
}

func (s *SimGateway) startMotion(handle int, space PositionType, targetFn func(PositionVector) PositionVector) int {
	sess := s.session(handle)
	if sess == nil || !sess.motor || sess.alarm {
		return simCodeRejected
	}
	m, ok := sess.motions[space]
	if !ok {
		return simCodeRejected
	}
	now := s.clock.Now()
	current := m.at(now)
	sess.motions[space] = &simMotion{
		from:  current,
		to:    targetFn(current),
		start: now,
		end:   now.Add(s.opts.MotionDuration),
	}
	return codeSuccess
}

func (s *SimGateway) ReadPosition(handle int, space PositionType) (PositionVector, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.session(handle)
	if sess == nil {
		return PositionVector{}, simCodeRejected
	}
	m, ok := sess.motions[space]
	if !ok {
		return PositionVector{}, simCodeRejected
	}
	return m.at(s.clock.Now()), codeSuccess
}

// RaiseAlarm latches an alarm on a session; moves are refused until it is cleared.
func (s *SimGateway) RaiseAlarm(handle int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.session(handle); sess != nil {
		sess.alarm = true
	}
}

// InjectEvent delivers an event through the callback registered at Open.
func (s *SimGateway) InjectEvent(command, result uint16, message []uint16) {
	s.mu.Lock()
	cb := s.events
	s.mu.Unlock()
	if cb != nil {
		cb(command, result, message)
	}
}
