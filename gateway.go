package hiwin_arm

// EventFunc receives out-of-band controller events such as firmware update
// results. It runs on a gateway-owned goroutine or thread and must not block.
type EventFunc func(command, result uint16, message []uint16)

// RatioKind selects which motion ratio a Ratio/SetRatio call addresses.
type RatioKind int

const (
	SpeedRatio RatioKind = iota
	AccelerationRatio
)

func (k RatioKind) String() string {
	if k == AccelerationRatio {
		return "acceleration"
	}
	return "speed"
}

// Connection modes passed to Open.
const (
	ModeObserver = 0
	ModeOperator = 1
)

// motionStateIdle is the MotionState value reported when the arm is at rest.
const motionStateIdle = 1

// Capabilities describes the optional parts of a Gateway.
type Capabilities struct {
	// NativeRelative lists the spaces in which MoveRelative is implemented.
	NativeRelative map[PositionType]bool
	// MotionState is false when MotionState cannot be trusted to report idle.
	MotionState bool
}

// SupportsRelative reports native relative support for space.
func (c Capabilities) SupportsRelative(space PositionType) bool {
	return c.NativeRelative[space]
}

// Gateway is the only thing that talks to the physical controller. All integer
// results are the controller's raw return codes; interpretation happens above.
type Gateway interface {
	// Open returns a session handle in [0,65535] or a negative failure code.
	Open(address string, mode int, cb EventFunc) int
	Close(handle int)

	ClearAlarm(handle int) int
	SetMotor(handle int, on bool) int
	MotorState(handle int) int
	ConnectionLevel(handle int) int
	MotionState(handle int) int

	Ratio(handle int, kind RatioKind) int
	SetRatio(handle int, kind RatioKind, value int) int

	MoveAbsolute(handle int, kind MotionKind, space PositionType, smoothing SmoothingSpec, target PositionVector) int
	MoveRelative(handle int, kind MotionKind, space PositionType, smoothing SmoothingSpec, offset PositionVector) int
	ReadPosition(handle int, space PositionType) (PositionVector, int)

	Capabilities() Capabilities
}
