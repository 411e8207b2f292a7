package hiwin_arm

import (
	"context"
	"fmt"

	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
)

var HiwinStatusSensorModel = resource.NewModel("devrel", "hiwin", "status")

func init() {
	resource.RegisterComponent(sensor.API, HiwinStatusSensorModel,
		resource.Registration[sensor.Sensor, *Config]{
			Constructor: newHiwinStatusSensor,
		},
	)
}

// hiwinStatusSensor reports session and controller state as sensor readings,
// sharing the session of any arm configured with the same host. Its motion
// settings are ignored; the arm's govern the session.
type hiwinStatusSensor struct {
	resource.Named
	resource.AlwaysRebuild

	logger   logging.Logger
	cfg      *Config
	sessions *SessionRegistry
	ctrl     *Controller
}

func newHiwinStatusSensor(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (sensor.Sensor, error) {
	conf, err := resource.NativeConfig[*Config](rawConf)
	if err != nil {
		return nil, err
	}
	conf.Logger = logger
	return NewHiwinStatusSensor(ctx, sessions, rawConf.ResourceName(), conf, logger)
}

func NewHiwinStatusSensor(ctx context.Context, reg *SessionRegistry, name resource.Name, conf *Config, logger logging.Logger) (sensor.Sensor, error) {
	ctrl, err := reg.Join(ctx, conf, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to get shared HIWIN session: %w", err)
	}
	return &hiwinStatusSensor{
		Named:    name.AsNamed(),
		logger:   logger,
		cfg:      conf,
		sessions: reg,
		ctrl:     ctrl,
	}, nil
}

func (s *hiwinStatusSensor) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	readings := s.ctrl.Status().Map()
	refs, _, _ := s.sessions.Status(s.cfg.Address())
	readings["session_users"] = refs
	return readings, nil
}

func (s *hiwinStatusSensor) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	switch cmd["command"] {
	case "clear_alarm":
		err := s.ctrl.ClearAlarm()
		return map[string]interface{}{"success": err == nil}, err
	default:
		return nil, fmt.Errorf("unknown command: %v", cmd["command"])
	}
}

func (s *hiwinStatusSensor) Close(ctx context.Context) error {
	s.sessions.Release(ctx, s.cfg.Address())
	return nil
}
