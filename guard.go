package hiwin_arm

import (
	"strconv"

	"go.viam.com/rdk/logging"
)

const (
	minRatio = 1
	maxRatio = 100
)

// ParameterGuard range-checks speed and acceleration ratios before they reach the
// controller and checks what the controller says back.
type ParameterGuard struct {
	conn     *ConnectionManager
	gw       Gateway
	notifier Notifier
	logger   logging.Logger
}

func NewParameterGuard(conn *ConnectionManager, gw Gateway, notifier Notifier, logger logging.Logger) *ParameterGuard {
	return &ParameterGuard{conn: conn, gw: gw, notifier: notifier, logger: logger}
}

// SetSpeed sets the override (speed) ratio, 1-100 percent.
func (g *ParameterGuard) SetSpeed(v int) error {
	return g.setRatio(SpeedRatio, OpSetSpeed, v)
}

// SetAcceleration sets the acceleration/deceleration ratio, 1-100 percent.
func (g *ParameterGuard) SetAcceleration(v int) error {
	return g.setRatio(AccelerationRatio, OpSetAcceleration, v)
}

// Speed reads the speed ratio. A failed read returns -1 alongside the error.
func (g *ParameterGuard) Speed() (int, error) {
	return g.ratio(SpeedRatio, OpGetSpeed)
}

// Acceleration reads the acceleration ratio. A failed read returns -1 alongside the error.
func (g *ParameterGuard) Acceleration() (int, error) {
	return g.ratio(AccelerationRatio, OpGetAcceleration)
}

func (g *ParameterGuard) setRatio(kind RatioKind, op Operation, v int) error {
	if err := ValidateRatio(kind, v); err != nil {
		g.notifier.Report(err.Error(), SeverityWarn)
		return err
	}
	handle, err := g.conn.ReadyHandle()
	if err != nil {
		g.notifier.Report("cannot set "+kind.String()+": "+err.Error(), SeverityWarn)
		return err
	}
	code := g.gw.SetRatio(handle, kind, v)
	if err := checkCode(op, code); err != nil {
		g.notifier.Report(err.Error(), SeverityError)
		return err
	}
	g.logger.Debugf("%s ratio set to %d (code %d)", kind, v, code)
	return nil
}

func (g *ParameterGuard) ratio(kind RatioKind, op Operation) (int, error) {
	handle, err := g.conn.ReadyHandle()
	if err != nil {
		return codeReadFailed, err
	}
	v := g.gw.Ratio(handle, kind)
	if err := checkCode(op, v); err != nil {
		g.notifier.Report(err.Error(), SeverityError)
		return v, err
	}
	return v, nil
}

// ValidateRatio rejects ratios outside 1-100. -1 is a read sentinel and is never settable.
func ValidateRatio(kind RatioKind, v int) error {
	if v < minRatio || v > maxRatio {
		return newValidationError(kind.String(), strconv.Itoa(v), "must be between 1 and 100")
	}
	return nil
}

// ValidatePositionType rejects unknown position types.
func ValidatePositionType(p PositionType) error {
	if p != Cartesian && p != Joint {
		return newValidationError("position_type", p.String(), "must be cartesian or joint")
	}
	return nil
}

// ValidateCoordinateType rejects unknown coordinate types.
func ValidateCoordinateType(c CoordinateType) error {
	if c != Absolute && c != Relative {
		return newValidationError("coordinate_type", c.String(), "must be absolute or relative")
	}
	return nil
}

// ValidateSmoothing rejects unknown modes and negative magnitudes.
func ValidateSmoothing(s SmoothingSpec) error {
	if s.Type < SmoothDisable || s.Type > SmoothTwoSegmentSpeed {
		return newValidationError("smoothing", s.Type.String(), "unknown smoothing mode")
	}
	if s.Value < 0 {
		return newValidationError("smooth_value", strconv.FormatFloat(s.Value, 'f', -1, 64), "must not be negative")
	}
	return nil
}
