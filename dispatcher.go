package hiwin_arm

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

// RelativePolicy decides how relative targets are resolved. It is fixed when the
// dispatcher is built.
type RelativePolicy int

const (
	// RelativeAuto uses the controller's relative moves where it has them and
	// converts on the client elsewhere.
	RelativeAuto RelativePolicy = iota
	// RelativeNative requires controller relative moves in every space.
	RelativeNative
	// RelativeClient always reads the current pose, adds the offset and moves absolutely.
	RelativeClient
)

func (p RelativePolicy) String() string {
	switch p {
	case RelativeNative:
		return "native"
	case RelativeClient:
		return "client"
	default:
		return "auto"
	}
}

func ParseRelativePolicy(s string) (RelativePolicy, error) {
	switch s {
	case "", "auto":
		return RelativeAuto, nil
	case "native":
		return RelativeNative, nil
	case "client":
		return RelativeClient, nil
	default:
		return 0, newValidationError("relative_moves", s, "must be auto, native or client")
	}
}

type motionKey struct {
	kind  MotionKind
	space PositionType
	frame CoordinateType
}

// primitive issues one controller move and returns the absolute target it aimed
// for (when known), the controller's code, and any error raised before the move.
type primitive func(handle int, smoothing SmoothingSpec, v PositionVector) (PositionVector, int, error)

// MotionDispatcher turns motion requests into exactly one controller move each.
type MotionDispatcher struct {
	conn     *ConnectionManager
	gw       Gateway
	waiter   *CompletionWaiter
	notifier Notifier
	logger   logging.Logger

	native map[PositionType]bool
	table  map[motionKey]primitive
}

func NewMotionDispatcher(
	conn *ConnectionManager,
	gw Gateway,
	waiter *CompletionWaiter,
	policy RelativePolicy,
	notifier Notifier,
	logger logging.Logger,
) (*MotionDispatcher, error) {
	caps := gw.Capabilities()
	native := map[PositionType]bool{}
	for _, space := range []PositionType{Cartesian, Joint} {
		switch policy {
		case RelativeNative:
			if !caps.SupportsRelative(space) {
				return nil, errors.Errorf("controller has no native relative %s moves", space)
			}
			native[space] = true
		case RelativeAuto:
			native[space] = caps.SupportsRelative(space)
		}
	}

	d := &MotionDispatcher{
		conn:     conn,
		gw:       gw,
		waiter:   waiter,
		notifier: notifier,
		logger:   logger,
		native:   native,
	}
	d.table = d.buildTable()
	return d, nil
}

func (d *MotionDispatcher) buildTable() map[motionKey]primitive {
	table := make(map[motionKey]primitive, 8)
	for _, kind := range []MotionKind{Linear, PointToPoint} {
		for _, space := range []PositionType{Cartesian, Joint} {
			table[motionKey{kind, space, Absolute}] = d.absolute(kind, space)
			if d.native[space] {
				table[motionKey{kind, space, Relative}] = d.nativeRelative(kind, space)
			} else {
				table[motionKey{kind, space, Relative}] = d.clientRelative(kind, space)
			}
		}
	}
	return table
}

func (d *MotionDispatcher) absolute(kind MotionKind, space PositionType) primitive {
	return func(handle int, smoothing SmoothingSpec, target PositionVector) (PositionVector, int, error) {
		return target, d.gw.MoveAbsolute(handle, kind, space, smoothing, target), nil
	}
}

func (d *MotionDispatcher) nativeRelative(kind MotionKind, space PositionType) primitive {
	return func(handle int, smoothing SmoothingSpec, offset PositionVector) (PositionVector, int, error) {
		var target PositionVector
		if d.waiter.NeedsTarget() {
			current, err := d.readPosition(handle, space)
			if err != nil {
				return PositionVector{}, 0, err
			}
			target = current.Add(offset)
		}
		return target, d.gw.MoveRelative(handle, kind, space, smoothing, offset), nil
	}
}

func (d *MotionDispatcher) clientRelative(kind MotionKind, space PositionType) primitive {
	return func(handle int, smoothing SmoothingSpec, offset PositionVector) (PositionVector, int, error) {
		current, err := d.readPosition(handle, space)
		if err != nil {
			return PositionVector{}, 0, err
		}
		target := current.Add(offset)
		d.logger.Debugf("relative %s %s %v resolved to %v", kind, space, offset, target)
		return target, d.gw.MoveAbsolute(handle, kind, space, smoothing, target), nil
	}
}

// NativeRelative reports whether relative moves in space go to the controller as-is.
func (d *MotionDispatcher) NativeRelative(space PositionType) bool {
	return d.native[space]
}

// Home moves point-to-point to the fixed home vector of space, without blending.
func (d *MotionDispatcher) Home(ctx context.Context, space PositionType, wait bool) error {
	home, err := HomePosition(space)
	if err != nil {
		d.notifier.Report(err.Error(), SeverityWarn)
		return err
	}
	return d.move(ctx, OpHome, PointToPoint, home, space, Absolute, SmoothingSpec{Type: SmoothDisable}, wait)
}

// MoveLinear moves along a straight line.
func (d *MotionDispatcher) MoveLinear(
	ctx context.Context,
	target PositionVector,
	space PositionType,
	frame CoordinateType,
	smoothing SmoothingSpec,
	wait bool,
) error {
	return d.move(ctx, OpMoveLinear, Linear, target, space, frame, smoothing, wait)
}

// MovePointToPoint moves without a defined path shape.
func (d *MotionDispatcher) MovePointToPoint(
	ctx context.Context,
	target PositionVector,
	space PositionType,
	frame CoordinateType,
	smoothing SmoothingSpec,
	wait bool,
) error {
	return d.move(ctx, OpMovePointToPoint, PointToPoint, target, space, frame, smoothing, wait)
}

// Position reads the arm's current pose or joints.
func (d *MotionDispatcher) Position(space PositionType) (PositionVector, error) {
	if err := ValidatePositionType(space); err != nil {
		d.notifier.Report(err.Error(), SeverityWarn)
		return PositionVector{}, err
	}
	handle, err := d.conn.ReadyHandle()
	if err != nil {
		return PositionVector{}, err
	}
	return d.readPosition(handle, space)
}

func (d *MotionDispatcher) readPosition(handle int, space PositionType) (PositionVector, error) {
	pos, code := d.gw.ReadPosition(handle, space)
	if err := checkCode(OpReadPosition, code); err != nil {
		d.notifier.Report(err.Error(), SeverityError)
		return PositionVector{}, err
	}
	return pos, nil
}

func (d *MotionDispatcher) move(
	ctx context.Context,
	op Operation,
	kind MotionKind,
	target PositionVector,
	space PositionType,
	frame CoordinateType,
	smoothing SmoothingSpec,
	wait bool,
) error {
	if err := d.validate(space, frame, smoothing); err != nil {
		d.notifier.Report(fmt.Sprintf("%s rejected: %v", op, err), SeverityWarn)
		return err
	}
	issue, ok := d.table[motionKey{kind, space, frame}]
	if !ok {
		err := newValidationError("motion", fmt.Sprintf("%s/%s/%s", kind, space, frame), "unsupported combination")
		d.notifier.Report(err.Error(), SeverityWarn)
		return err
	}
	handle, err := d.conn.ReadyHandle()
	if err != nil {
		d.notifier.Report(fmt.Sprintf("%s: %v", op, err), SeverityWarn)
		return err
	}

	absTarget, code, err := issue(handle, smoothing, target)
	if err != nil {
		return errors.Wrap(err, op.String())
	}
	if err := checkCode(op, code); err != nil {
		d.notifier.Report(err.Error(), SeverityError)
		return err
	}
	d.logger.Debugf("%s %s %s %v accepted (code %d)", op, space, frame, target, code)

	if !wait {
		return nil
	}
	return d.waiter.Wait(ctx, absTarget, space)
}

func (d *MotionDispatcher) validate(space PositionType, frame CoordinateType, smoothing SmoothingSpec) error {
	if err := ValidatePositionType(space); err != nil {
		return err
	}
	if err := ValidateCoordinateType(frame); err != nil {
		return err
	}
	return ValidateSmoothing(smoothing)
}
