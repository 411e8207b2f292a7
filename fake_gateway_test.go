package hiwin_arm

import (
	"fmt"
	"sync"
)

// fakeGateway records every call and answers with scripted codes.
type fakeGateway struct {
	mu sync.Mutex

	openCode   int
	clearCode  int
	motorCode  int
	ratioCode  map[RatioKind]int
	moveCode   int
	readCode   int
	motionIdle bool
	caps       Capabilities

	ratios  map[RatioKind]int
	motor   int
	level   int
	pose    map[PositionType]PositionVector
	reads   []PositionVector // consumed by ReadPosition before falling back to pose
	calls   []string
	events  EventFunc
	handles []int
	closed  []int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		openCode:   5,
		clearCode:  codeNoAlarm,
		ratioCode:  map[RatioKind]int{SpeedRatio: 0, AccelerationRatio: codeAccRatioAck},
		motionIdle: true,
		caps:       Capabilities{NativeRelative: map[PositionType]bool{}, MotionState: true},
		ratios:     map[RatioKind]int{SpeedRatio: 10, AccelerationRatio: 100},
		level:      ModeOperator,
		pose: map[PositionType]PositionVector{
			Cartesian: CartesianHome,
			Joint:     JointHome,
		},
	}
}

func (f *fakeGateway) record(format string, args ...interface{}) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeGateway) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeGateway) Open(address string, mode int, cb EventFunc) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("open %s %d", address, mode)
	f.events = cb
	if f.openCode >= 0 {
		f.handles = append(f.handles, f.openCode)
	}
	return f.openCode
}

func (f *fakeGateway) Close(handle int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("close %d", handle)
	f.closed = append(f.closed, handle)
}

func (f *fakeGateway) ClearAlarm(handle int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("clear_alarm")
	return f.clearCode
}

func (f *fakeGateway) SetMotor(handle int, on bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("set_motor %v", on)
	if on {
		f.motor = 1
	} else {
		f.motor = 0
	}
	return f.motorCode
}

func (f *fakeGateway) MotorState(handle int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.motor
}

func (f *fakeGateway) ConnectionLevel(handle int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.level
}

func (f *fakeGateway) MotionState(handle int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.motionIdle {
		return motionStateIdle
	}
	return 2
}

func (f *fakeGateway) Ratio(handle int, kind RatioKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("get_ratio %s", kind)
	return f.ratios[kind]
}

func (f *fakeGateway) SetRatio(handle int, kind RatioKind, value int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("set_ratio %s %d", kind, value)
	f.ratios[kind] = value
	return f.ratioCode[kind]
}

func (f *fakeGateway) MoveAbsolute(handle int, kind MotionKind, space PositionType, smoothing SmoothingSpec, target PositionVector) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("move_abs %s %s %s %v", kind, space, smoothing.Type, target)
	if f.moveCode == 0 {
		f.pose[space] = target
	}
	return f.moveCode
}

func (f *fakeGateway) MoveRelative(handle int, kind MotionKind, space PositionType, smoothing SmoothingSpec, offset PositionVector) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("move_rel %s %s %s %v", kind, space, smoothing.Type, offset)
	if f.moveCode == 0 {
		f.pose[space] = f.pose[space].Add(offset)
	}
	return f.moveCode
}

func (f *fakeGateway) ReadPosition(handle int, space PositionType) (PositionVector, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("read %s", space)
	if f.readCode != 0 {
		return PositionVector{}, f.readCode
	}
	if len(f.reads) > 0 {
		p := f.reads[0]
		f.reads = f.reads[1:]
		return p, codeSuccess
	}
	return f.pose[space], codeSuccess
}

func (f *fakeGateway) Capabilities() Capabilities {
	return f.caps
}

type report struct {
	text     string
	severity Severity
}

// recordingNotifier keeps every report for inspection.
type recordingNotifier struct {
	mu      sync.Mutex
	reports []report
}

func (n *recordingNotifier) Report(text string, severity Severity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reports = append(n.reports, report{text, severity})
}

func (n *recordingNotifier) Reports() []report {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]report(nil), n.reports...)
}

func (n *recordingNotifier) count(severity Severity) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, r := range n.reports {
		if r.severity == severity {
			c++
		}
	}
	return c
}
