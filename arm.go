package hiwin_arm

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
)

var HiwinArmModel = resource.NewModel("devrel", "hiwin", "arm")

func init() {
	resource.RegisterComponent(generic.API, HiwinArmModel,
		resource.Registration[resource.Resource, *Config]{
			Constructor: newHiwinArm,
		},
	)
}

// hiwinArm exposes a controller session through DoCommand.
type hiwinArm struct {
	resource.Named
	resource.AlwaysRebuild

	logger   logging.Logger
	cfg      *Config
	sessions *SessionRegistry
	ctrl     *Controller
}

func newHiwinArm(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (resource.Resource, error) {
	conf, err := resource.NativeConfig[*Config](rawConf)
	if err != nil {
		return nil, err
	}
	conf.Logger = logger
	return NewHiwinArm(ctx, sessions, rawConf.ResourceName(), conf, logger)
}

// NewHiwinArm acquires a session from reg and wraps it as a resource.
func NewHiwinArm(ctx context.Context, reg *SessionRegistry, name resource.Name, conf *Config, logger logging.Logger) (resource.Resource, error) {
	ctrl, err := reg.Acquire(ctx, conf, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open HIWIN arm session: %w", err)
	}
	logger.Infof("HIWIN arm %s using controller at %s", name.ShortName(), conf.Address())
	return &hiwinArm{
		Named:    name.AsNamed(),
		logger:   logger,
		cfg:      conf,
		sessions: reg,
		ctrl:     ctrl,
	}, nil
}

func (a *hiwinArm) Close(ctx context.Context) error {
	a.logger.Info("Closing HIWIN arm")
	a.ctrl.CancelWait(ctx)
	a.sessions.Release(ctx, a.cfg.Address())
	return nil
}

func (a *hiwinArm) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	switch cmd["command"] {
	case "connect":
		err := a.ctrl.Connect(ctx)
		return map[string]interface{}{"success": err == nil, "state": a.ctrl.State().String()}, err

	case "disconnect":
		return map[string]interface{}{"success": a.ctrl.Disconnect(ctx)}, nil

	case "clear_alarm":
		err := a.ctrl.ClearAlarm()
		return map[string]interface{}{"success": err == nil}, err

	case "status":
		return a.ctrl.Status().Map(), nil

	case "home":
		space, err := positionTypeArg(cmd)
		if err != nil {
			return nil, err
		}
		err = a.ctrl.Home(ctx, space, boolArg(cmd, "wait", true))
		return map[string]interface{}{"success": err == nil}, err

	case "move_linear", "move_ptp":
		req, err := parseMoveRequest(cmd)
		if err != nil {
			return nil, err
		}
		if cmd["command"] == "move_linear" {
			err = a.ctrl.MoveLinear(ctx, req.Target, req.Space, req.Frame, req.Smoothing, req.Wait)
		} else {
			err = a.ctrl.MovePointToPoint(ctx, req.Target, req.Space, req.Frame, req.Smoothing, req.Wait)
		}
		return map[string]interface{}{"success": err == nil}, err

	case "jog":
		delta := r3.Vector{X: floatArg(cmd, "x"), Y: floatArg(cmd, "y"), Z: floatArg(cmd, "z")}
		err := a.ctrl.Jog(ctx, delta)
		return map[string]interface{}{"success": err == nil}, err

	case "get_position":
		space, err := positionTypeArg(cmd)
		if err != nil {
			return nil, err
		}
		pos, err := a.ctrl.Position(space)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"position_type": space.String(), "position": pos.Slice()}, nil

	case "set_speed", "set_acceleration":
		v, err := ratioArg(cmd)
		if err != nil {
			return nil, err
		}
		if cmd["command"] == "set_speed" {
			err = a.ctrl.SetSpeed(v)
		} else {
			err = a.ctrl.SetAcceleration(v)
		}
		return map[string]interface{}{"success": err == nil}, err

	case "get_speed":
		v, err := a.ctrl.Speed()
		return map[string]interface{}{"speed": v}, err

	case "get_acceleration":
		v, err := a.ctrl.Acceleration()
		return map[string]interface{}{"acceleration": v}, err

	default:
		return nil, fmt.Errorf("unknown command: %v", cmd["command"])
	}
}

// MoveRequest is a decoded move command, shared by DoCommand and the HTTP facade.
type MoveRequest struct {
	Target    PositionVector
	Space     PositionType
	Frame     CoordinateType
	Smoothing *SmoothingSpec
	Wait      bool
}

func parseMoveRequest(cmd map[string]interface{}) (MoveRequest, error) {
	var req MoveRequest
	raw, ok := cmd["target"].([]interface{})
	if !ok {
		return req, fmt.Errorf("move command requires 'target' array of 6 numbers")
	}
	values := make([]float64, 0, len(raw))
	for i, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return req, fmt.Errorf("target[%d] is not a number: %v", i, v)
		}
		values = append(values, f)
	}
	target, err := PositionFromSlice(values)
	if err != nil {
		return req, err
	}
	req.Target = target

	if req.Space, err = positionTypeArg(cmd); err != nil {
		return req, err
	}
	frame, _ := cmd["coordinate_type"].(string)
	if req.Frame, err = ParseCoordinateType(frame); err != nil {
		return req, err
	}
	if name, ok := cmd["smoothing"].(string); ok {
		st, err := ParseSmoothType(name)
		if err != nil {
			return req, err
		}
		value := DefaultSmoothValue
		if v, ok := cmd["smooth_value"].(float64); ok {
			value = v
		}
		req.Smoothing = &SmoothingSpec{Type: st, Value: value}
	}
	req.Wait = boolArg(cmd, "wait", true)
	return req, nil
}

func positionTypeArg(cmd map[string]interface{}) (PositionType, error) {
	s, _ := cmd["position_type"].(string)
	return ParsePositionType(s)
}

func boolArg(cmd map[string]interface{}, key string, def bool) bool {
	if v, ok := cmd[key].(bool); ok {
		return v
	}
	return def
}

// ratioArg reads a whole-number percentage from cmd["value"].
func ratioArg(cmd map[string]interface{}) (int, error) {
	v, ok := cmd["value"].(float64)
	if !ok {
		return 0, fmt.Errorf("%v command requires numeric 'value' parameter", cmd["command"])
	}
	if v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		return 0, newValidationError("value", strconv.FormatFloat(v, 'f', -1, 64), "must be a whole number between 1 and 100")
	}
	return int(v), nil
}

func floatArg(cmd map[string]interface{}, key string) float64 {
	v, _ := cmd[key].(float64)
	return v
}
