package hiwin_arm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

// simAddress is the session address reported by simulated arms.
const simAddress = "simulated"

// Config is the arm connection and motion configuration shared by every surface.
type Config struct {
	Host     string `json:"host,omitempty"`     // Controller IP address
	Simulate bool   `json:"simulate,omitempty"` // Use the in-process simulator instead of HRSDK

	// Ratios applied after connecting; 0 leaves the controller's values alone.
	Speed        int `json:"speed,omitempty"`
	Acceleration int `json:"acceleration,omitempty"`

	SettleMs       int     `json:"settle_ms,omitempty"`
	PollIntervalMs int     `json:"poll_interval_ms,omitempty"`
	WaitTimeoutSec float64 `json:"wait_timeout_sec,omitempty"` // 0 waits without bound

	Completion    string  `json:"completion,omitempty"`     // auto, motion_state or readback
	RelativeMoves string  `json:"relative_moves,omitempty"` // auto, native or client
	Smoothing     string  `json:"smoothing,omitempty"`
	SmoothValue   float64 `json:"smooth_value,omitempty"`

	SimMotionMs int `json:"sim_motion_ms,omitempty"`

	// Not serialized
	Logger logging.Logger `json:"-"`
}

// Validate ensures all parts of the config are valid
func (cfg *Config) Validate(path string) ([]string, []string, error) {
	if cfg.Host == "" && !cfg.Simulate {
		return nil, nil, fmt.Errorf("%s: must specify host unless simulate is true", path)
	}

	if cfg.SettleMs == 0 {
		cfg.SettleMs = int(DefaultSettleDelay / time.Millisecond)
	}
	if cfg.PollIntervalMs == 0 {
		cfg.PollIntervalMs = int(DefaultPollInterval / time.Millisecond)
	}
	if cfg.SmoothValue == 0 {
		cfg.SmoothValue = DefaultSmoothValue
	}
	if cfg.Smoothing == "" {
		cfg.Smoothing = DefaultSmoothing.Type.String()
	}

	if cfg.Speed != 0 {
		if err := ValidateRatio(SpeedRatio, cfg.Speed); err != nil {
			return nil, nil, err
		}
	}
	if cfg.Acceleration != 0 {
		if err := ValidateRatio(AccelerationRatio, cfg.Acceleration); err != nil {
			return nil, nil, err
		}
	}
	if cfg.SettleMs < 0 || cfg.PollIntervalMs < 0 || cfg.SimMotionMs < 0 {
		return nil, nil, fmt.Errorf("settle_ms, poll_interval_ms and sim_motion_ms must not be negative")
	}
	if cfg.WaitTimeoutSec < 0 {
		return nil, nil, fmt.Errorf("wait_timeout_sec must not be negative, got %v", cfg.WaitTimeoutSec)
	}
	if _, err := ParseWaitMode(cfg.Completion); err != nil {
		return nil, nil, err
	}
	if _, err := ParseRelativePolicy(cfg.RelativeMoves); err != nil {
		return nil, nil, err
	}
	if _, err := ParseSmoothType(cfg.Smoothing); err != nil {
		return nil, nil, err
	}

	return nil, nil, nil
}

// Address is the session key: the controller host, or a fixed name when simulated.
func (cfg *Config) Address() string {
	if cfg.Simulate {
		if cfg.Host != "" {
			return simAddress + ":" + cfg.Host
		}
		return simAddress
	}
	return cfg.Host
}

func (cfg *Config) settleDelay() time.Duration {
	return time.Duration(cfg.SettleMs) * time.Millisecond
}

func (cfg *Config) waitOptions() WaitOptions {
	mode, _ := ParseWaitMode(cfg.Completion)
	return WaitOptions{
		PollInterval: time.Duration(cfg.PollIntervalMs) * time.Millisecond,
		Timeout:      time.Duration(cfg.WaitTimeoutSec * float64(time.Second)),
		Mode:         mode,
	}
}

func (cfg *Config) smoothing() SmoothingSpec {
	t, err := ParseSmoothType(cfg.Smoothing)
	if err != nil || cfg.Smoothing == "" {
		t = DefaultSmoothing.Type
	}
	v := cfg.SmoothValue
	if v == 0 {
		v = DefaultSmoothValue
	}
	return SmoothingSpec{Type: t, Value: v}
}

func (cfg *Config) relativePolicy() RelativePolicy {
	p, _ := ParseRelativePolicy(cfg.RelativeMoves)
	return p
}

// FileConfig is the configuration file read by the command line tool.
type FileConfig struct {
	Arm    Config       `json:"arm"`
	Teleop TeleopConfig `json:"teleop"`
	Addr   string       `json:"addr"` // HTTP listen address for serve
}

// DefaultFileConfig is used for any key absent from the file and environment.
var DefaultFileConfig = FileConfig{
	Arm: Config{
		SettleMs:       int(DefaultSettleDelay / time.Millisecond),
		PollIntervalMs: int(DefaultPollInterval / time.Millisecond),
		SmoothValue:    DefaultSmoothValue,
	},
	Teleop: TeleopConfig{
		BaudRate: DefaultTeleopBaud,
		Step:     DefaultJogStep,
	},
	Addr: ":8080",
}

// envPrefix selects environment overrides, e.g. HIWIN_ARM__HOST=10.0.0.5.
const envPrefix = "HIWIN_"

// LoadFileConfig layers defaults, a YAML or JSON file and HIWIN_ environment
// variables. A missing file is not an error when optional is true.
func LoadFileConfig(path string, optional bool) (*FileConfig, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(DefaultFileConfig, "json"), nil); err != nil {
		return nil, errors.Wrap(err, "loading defaults")
	}

	if path != "" {
		path = resolveDataPath(path)
		var parser koanf.Parser = yaml.Parser()
		if strings.EqualFold(filepath.Ext(path), ".json") {
			parser = json.Parser()
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			missing := os.IsNotExist(err) || strings.Contains(err.Error(), "no such")
			if !optional || !missing {
				return nil, errors.Wrapf(err, "loading %s", path)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, errors.Wrap(err, "loading environment")
	}

	var out FileConfig
	if err := k.UnmarshalWithConf("", &out, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	return &out, nil
}

// resolveDataPath resolves a relative path against VIAM_MODULE_DATA when the file
// is not found in the working directory.
func resolveDataPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	moduleDataDir := os.Getenv("VIAM_MODULE_DATA")
	if moduleDataDir == "" {
		return path
	}
	return filepath.Join(moduleDataDir, path)
}
