package hiwin_arm

import (
	"fmt"
	"math"
	"strings"

	"github.com/golang/geo/r3"
)

// Tolerance is the absolute tolerance used for every position comparison, in
// the controller's native units.
const Tolerance = 0.01

// DefaultSmoothValue is the blending magnitude sent with linear moves when none is given.
const DefaultSmoothValue = 50.0

// PositionVector is a Cartesian pose (x, y, z, a, b, c) or a six-joint configuration,
// depending on the PositionType it travels with.
type PositionVector [6]float64

// PositionType selects how a PositionVector is interpreted.
type PositionType int

const (
	Cartesian PositionType = iota
	Joint
)

func (p PositionType) String() string {
	switch p {
	case Cartesian:
		return "cartesian"
	case Joint:
		return "joint"
	default:
		return fmt.Sprintf("position_type(%d)", int(p))
	}
}

// ParsePositionType accepts "cartesian" (or "descartes") and "joint".
func ParsePositionType(s string) (PositionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cartesian", "descartes", "":
		return Cartesian, nil
	case "joint", "joints":
		return Joint, nil
	default:
		return 0, newValidationError("position_type", s, "must be cartesian or joint")
	}
}

// CoordinateType says whether a target is absolute or an offset from the current pose.
type CoordinateType int

const (
	Absolute CoordinateType = iota
	Relative
)

func (c CoordinateType) String() string {
	switch c {
	case Absolute:
		return "absolute"
	case Relative:
		return "relative"
	default:
		return fmt.Sprintf("coordinate_type(%d)", int(c))
	}
}

func ParseCoordinateType(s string) (CoordinateType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "absolute", "abs", "":
		return Absolute, nil
	case "relative", "rel":
		return Relative, nil
	default:
		return 0, newValidationError("coordinate_type", s, "must be absolute or relative")
	}
}

// MotionKind is the path shape of a move.
type MotionKind int

const (
	Linear MotionKind = iota
	PointToPoint
)

func (m MotionKind) String() string {
	switch m {
	case Linear:
		return "linear"
	case PointToPoint:
		return "ptp"
	default:
		return fmt.Sprintf("motion_kind(%d)", int(m))
	}
}

func ParseMotionKind(s string) (MotionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "linear", "lin":
		return Linear, nil
	case "ptp", "point_to_point":
		return PointToPoint, nil
	default:
		return 0, newValidationError("kind", s, "must be linear or ptp")
	}
}

// SmoothType is the controller-side blending mode. The numeric values are the
// controller's own mode numbers for linear moves.
type SmoothType int

const (
	SmoothDisable SmoothType = iota
	SmoothBezierPercent
	SmoothBezierRadius
	SmoothTwoSegmentSpeed
)

func (s SmoothType) String() string {
	switch s {
	case SmoothDisable:
		return "disable"
	case SmoothBezierPercent:
		return "bezier_percent"
	case SmoothBezierRadius:
		return "bezier_radius"
	case SmoothTwoSegmentSpeed:
		return "two_segment_speed"
	default:
		return fmt.Sprintf("smooth_type(%d)", int(s))
	}
}

func ParseSmoothType(s string) (SmoothType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disable", "none", "":
		return SmoothDisable, nil
	case "bezier_percent":
		return SmoothBezierPercent, nil
	case "bezier_radius":
		return SmoothBezierRadius, nil
	case "two_segment_speed", "two_lines_speed":
		return SmoothTwoSegmentSpeed, nil
	default:
		return 0, newValidationError("smoothing", s, "unknown smoothing mode")
	}
}

// SmoothingSpec pairs a blending mode with its magnitude. Value only matters for
// the Bezier modes.
type SmoothingSpec struct {
	Type  SmoothType
	Value float64
}

// DefaultSmoothing is used by moves that do not name a blending mode.
var DefaultSmoothing = SmoothingSpec{Type: SmoothTwoSegmentSpeed, Value: DefaultSmoothValue}

// LinearMode returns the mode number and magnitude for a linear move.
func (s SmoothingSpec) LinearMode() (int, float64) {
	return int(s.Type), s.Value
}

// PointToPointMode returns the mode number for a point-to-point move. Only the
// two-segment speed mode has a point-to-point equivalent.
func (s SmoothingSpec) PointToPointMode() int {
	if s.Type == SmoothTwoSegmentSpeed {
		return 1
	}
	return 0
}

var (
	// CartesianHome is the home pose in Cartesian space.
	CartesianHome = PositionVector{0, 368, 294, 180, 0, 90}
	// JointHome is the home configuration in joint space.
	JointHome = PositionVector{0, 0, 0, 0, 0, 0}
)

// HomePosition returns the home vector for a position type.
func HomePosition(p PositionType) (PositionVector, error) {
	switch p {
	case Cartesian:
		return CartesianHome, nil
	case Joint:
		return JointHome, nil
	default:
		return PositionVector{}, newValidationError("position_type", p.String(), "no home position")
	}
}

// Add returns the component-wise sum of p and offset.
func (p PositionVector) Add(offset PositionVector) PositionVector {
	var out PositionVector
	for i := range p {
		out[i] = p[i] + offset[i]
	}
	return out
}

// WithinTolerance reports whether p matches target to within Tolerance on every
// component. Cartesian orientation components are compared by magnitude so a
// sign flip on a +/-180 degree axis still counts as arrived.
func (p PositionVector) WithinTolerance(target PositionVector, space PositionType) bool {
	for i := range p {
		a, b := p[i], target[i]
		if space == Cartesian && i >= 3 {
			a, b = math.Abs(a), math.Abs(b)
		}
		if math.Abs(a-b) > Tolerance {
			return false
		}
	}
	return true
}

// Point returns the translational part of a Cartesian pose.
func (p PositionVector) Point() r3.Vector {
	return r3.Vector{X: p[0], Y: p[1], Z: p[2]}
}

// Orientation returns the three orientation angles of a Cartesian pose.
func (p PositionVector) Orientation() r3.Vector {
	return r3.Vector{X: p[3], Y: p[4], Z: p[5]}
}

// PoseFromVectors builds a Cartesian PositionVector from a point and orientation.
func PoseFromVectors(point, orientation r3.Vector) PositionVector {
	return PositionVector{point.X, point.Y, point.Z, orientation.X, orientation.Y, orientation.Z}
}

// PositionFromSlice converts a decoded JSON array into a PositionVector.
func PositionFromSlice(values []float64) (PositionVector, error) {
	var p PositionVector
	if len(values) != len(p) {
		return p, newValidationError("position", fmt.Sprint(values), fmt.Sprintf("expected %d values, got %d", len(p), len(values)))
	}
	copy(p[:], values)
	return p, nil
}

// Slice returns the components as a new slice.
func (p PositionVector) Slice() []float64 {
	out := make([]float64, len(p))
	copy(out, p[:])
	return out
}
