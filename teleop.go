package hiwin_arm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.bug.st/serial"
	"go.uber.org/multierr"
	"go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	goutils "go.viam.com/utils"
	"golang.org/x/time/rate"
)

const (
	DefaultTeleopBaud = 38400
	DefaultJogStep    = 50.0
	defaultJogRate    = 5.0

	// maxLineLength bounds a keypad line; longer input without a newline is discarded.
	maxLineLength = 256

	serialSettle      = 50 * time.Millisecond
	serialReadTimeout = 200 * time.Millisecond

	poseFrameStart = 0x01
	poseFrameEnd   = 0xff
)

var HiwinTeleopModel = resource.NewModel("devrel", "hiwin", "teleop")

func init() {
	resource.RegisterComponent(generic.API, HiwinTeleopModel,
		resource.Registration[resource.Resource, *TeleopConfig]{
			Constructor: newHiwinTeleop,
		},
	)
}

// TeleopConfig configures the serial keypad bridge.
type TeleopConfig struct {
	Host     string `json:"host,omitempty"`
	Simulate bool   `json:"simulate,omitempty"`

	Port           string  `json:"port,omitempty"`
	BaudRate       int     `json:"baud_rate,omitempty"`
	Step           float64 `json:"step,omitempty"`             // jog distance per key
	MaxJogsPerSec  float64 `json:"max_jogs_per_sec,omitempty"` // keys beyond this are dropped
	PoseIntervalMs int     `json:"pose_interval_ms,omitempty"` // 0 disables pose frames
}

// Validate ensures all parts of the config are valid
func (cfg *TeleopConfig) Validate(path string) ([]string, []string, error) {
	if cfg.Port == "" {
		return nil, nil, fmt.Errorf("%s: must specify port for the teleop serial link", path)
	}
	if cfg.Host == "" && !cfg.Simulate {
		return nil, nil, fmt.Errorf("%s: must specify host unless simulate is true", path)
	}
	cfg.applyDefaults()
	if cfg.Step <= 0 {
		return nil, nil, fmt.Errorf("step must be positive, got %v", cfg.Step)
	}
	if cfg.PoseIntervalMs < 0 {
		return nil, nil, fmt.Errorf("pose_interval_ms must not be negative, got %d", cfg.PoseIntervalMs)
	}
	return nil, nil, nil
}

func (cfg *TeleopConfig) applyDefaults() {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultTeleopBaud
	}
	if cfg.Step == 0 {
		cfg.Step = DefaultJogStep
	}
	if cfg.MaxJogsPerSec == 0 {
		cfg.MaxJogsPerSec = defaultJogRate
	}
}

// sessionConfig names the arm session to join. Its defaults only apply until an
// arm resource for the same host takes the session over.
func (cfg *TeleopConfig) sessionConfig() *Config {
	return &Config{
		Host:           cfg.Host,
		Simulate:       cfg.Simulate,
		SettleMs:       int(DefaultSettleDelay / time.Millisecond),
		PollIntervalMs: int(DefaultPollInterval / time.Millisecond),
		SmoothValue:    DefaultSmoothValue,
	}
}

// DecodeJogKey maps a keypad line to a jog vector: X/x, Y/y and Z/z move plus
// or minus step along that axis.
func DecodeJogKey(line string, step float64) (r3.Vector, bool) {
	switch strings.TrimSpace(line) {
	case "X":
		return r3.Vector{X: step}, true
	case "x":
		return r3.Vector{X: -step}, true
	case "Y":
		return r3.Vector{Y: step}, true
	case "y":
		return r3.Vector{Y: -step}, true
	case "Z":
		return r3.Vector{Z: step}, true
	case "z":
		return r3.Vector{Z: -step}, true
	default:
		return r3.Vector{}, false
	}
}

// EncodePoseFrame encodes a Cartesian pose for the keypad display: 0x01, six
// rounded values as big-endian 16-bit integers, 0xff.
func EncodePoseFrame(p PositionVector) []byte {
	frame := make([]byte, 0, 2+2*len(p))
	frame = append(frame, poseFrameStart)
	for _, v := range p {
		n := uint16(int16(int64(math.RoundToEven(v))))
		frame = append(frame, byte(n>>8), byte(n))
	}
	return append(frame, poseFrameEnd)
}

// Jogger is the part of a Controller the bridge drives.
type Jogger interface {
	Jog(ctx context.Context, delta r3.Vector) error
	Position(space PositionType) (PositionVector, error)
}

// PortOpener opens the keypad's serial link.
type PortOpener func(name string, baud int) (io.ReadWriteCloser, error)

func openSerialPort(name string, baud int) (io.ReadWriteCloser, error) {
	p, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	if err := p.SetReadTimeout(serialReadTimeout); err != nil {
		return nil, multierr.Combine(err, p.Close())
	}
	time.Sleep(serialSettle)
	return p, nil
}

// TeleopBridge turns keypad lines into jogs and optionally streams the pose back.
type TeleopBridge struct {
	cfg     TeleopConfig
	jogger  Jogger
	open    PortOpener
	limiter *rate.Limiter
	logger  logging.Logger

	portMu sync.Mutex
	port   io.ReadWriteCloser

	jogs     atomic.Int64
	dropped  atomic.Int64
	failed   atomic.Int64
	unknown  atomic.Int64
	overruns atomic.Int64
}

// NewTeleopBridge returns a stopped bridge. A nil opener uses the system serial port.
func NewTeleopBridge(cfg TeleopConfig, jogger Jogger, open PortOpener, logger logging.Logger) *TeleopBridge {
	cfg.applyDefaults()
	if open == nil {
		open = openSerialPort
	}
	return &TeleopBridge{
		cfg:     cfg,
		jogger:  jogger,
		open:    open,
		limiter: rate.NewLimiter(rate.Limit(cfg.MaxJogsPerSec), 1),
		logger:  logger,
	}
}

// HandleLine processes one keypad line. Keys arriving faster than the limit are dropped.
func (b *TeleopBridge) HandleLine(ctx context.Context, line string) error {
	delta, ok := DecodeJogKey(line, b.cfg.Step)
	if !ok {
		b.unknown.Add(1)
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			b.logger.Warnf("unknown teleop input %q", trimmed)
		}
		return nil
	}
	if !b.limiter.Allow() {
		b.dropped.Add(1)
		return nil
	}
	if err := b.jogger.Jog(ctx, delta); err != nil {
		b.failed.Add(1)
		return errors.Wrapf(err, "jog %q", strings.TrimSpace(line))
	}
	b.jogs.Add(1)
	return nil
}

// SendPose writes the current Cartesian pose to the keypad.
func (b *TeleopBridge) SendPose() error {
	pose, err := b.jogger.Position(Cartesian)
	if err != nil {
		return err
	}
	b.portMu.Lock()
	defer b.portMu.Unlock()
	if b.port == nil {
		return errors.New("teleop port not open")
	}
	_, err = b.port.Write(EncodePoseFrame(pose))
	return err
}

// Run reads the keypad until ctx is done, reopening the port with backoff when it fails.
func (b *TeleopBridge) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	if b.cfg.PoseIntervalMs > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.poseLoop(ctx)
		}()
	}

	for {
		if err := b.connect(ctx); err != nil {
			return err
		}
		err := b.readLines(ctx)
		b.closePort()
		if ctx.Err() != nil {
			return nil
		}
		b.logger.Warnf("teleop port %s lost: %v", b.cfg.Port, err)
	}
}

func (b *TeleopBridge) connect(ctx context.Context) error {
	op := func() error {
		p, err := b.open(b.cfg.Port, b.cfg.BaudRate)
		if err != nil {
			b.logger.Debugf("opening %s: %v", b.cfg.Port, err)
			return err
		}
		b.portMu.Lock()
		b.port = p
		b.portMu.Unlock()
		return nil
	}
	bo := &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         2 * time.Second,
		MaxElapsedTime:      0,
		Clock:               backoff.SystemClock,
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrapf(err, "opening teleop port %s", b.cfg.Port)
	}
	b.logger.Infof("teleop listening on %s at %d baud", b.cfg.Port, b.cfg.BaudRate)
	return nil
}

func (b *TeleopBridge) readLines(ctx context.Context) error {
	b.portMu.Lock()
	port := b.port
	b.portMu.Unlock()

	buf := make([]byte, 64)
	var pending []byte
	for ctx.Err() == nil {
		n, err := port.Read(buf)
		if err != nil {
			return err
		}
		pending = append(pending, buf[:n]...)
		for {
			i := bytes.IndexByte(pending, '\n')
			if i < 0 {
				break
			}
			line := string(pending[:i])
			pending = pending[i+1:]
			if err := b.HandleLine(ctx, line); err != nil {
				b.logger.Warnf("teleop: %v", err)
			}
		}
		if len(pending) > maxLineLength {
			b.overruns.Add(1)
			b.logger.Warnf("teleop: discarding %d bytes without a line break", len(pending))
			pending = pending[:0]
		}
	}
	return ctx.Err()
}

func (b *TeleopBridge) poseLoop(ctx context.Context) {
	interval := time.Duration(b.cfg.PoseIntervalMs) * time.Millisecond
	for goutils.SelectContextOrWait(ctx, interval) {
		if err := b.SendPose(); err != nil {
			b.logger.Debugf("pose frame: %v", err)
		}
	}
}

func (b *TeleopBridge) closePort() error {
	b.portMu.Lock()
	defer b.portMu.Unlock()
	if b.port == nil {
		return nil
	}
	err := b.port.Close()
	b.port = nil
	return err
}

// Stats returns keypress counters.
func (b *TeleopBridge) Stats() map[string]interface{} {
	b.portMu.Lock()
	open := b.port != nil
	b.portMu.Unlock()
	return map[string]interface{}{
		"port":      b.cfg.Port,
		"port_open": open,
		"jogs":      b.jogs.Load(),
		"dropped":   b.dropped.Load(),
		"failed":    b.failed.Load(),
		"unknown":   b.unknown.Load(),
		"overruns":  b.overruns.Load(),
	}
}

// hiwinTeleop runs a TeleopBridge against a shared arm session.
type hiwinTeleop struct {
	resource.Named
	resource.AlwaysRebuild

	logger   logging.Logger
	cfg      *TeleopConfig
	sessions *SessionRegistry
	ctrl     *Controller
	bridge   *TeleopBridge

	cancel context.CancelFunc
	done   chan struct{}
}

func newHiwinTeleop(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (resource.Resource, error) {
	conf, err := resource.NativeConfig[*TeleopConfig](rawConf)
	if err != nil {
		return nil, err
	}
	return NewHiwinTeleop(ctx, sessions, rawConf.ResourceName(), conf, nil, logger)
}

// NewHiwinTeleop acquires the arm session and starts the bridge.
func NewHiwinTeleop(
	ctx context.Context,
	reg *SessionRegistry,
	name resource.Name,
	conf *TeleopConfig,
	open PortOpener,
	logger logging.Logger,
) (resource.Resource, error) {
	ctrl, err := reg.Join(ctx, conf.sessionConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to get shared HIWIN session: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	t := &hiwinTeleop{
		Named:    name.AsNamed(),
		logger:   logger,
		cfg:      conf,
		sessions: reg,
		ctrl:     ctrl,
		bridge:   NewTeleopBridge(*conf, ctrl, open, logger),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go func() {
		defer close(t.done)
		if err := t.bridge.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("teleop stopped: %v", err)
		}
	}()
	return t, nil
}

func (t *hiwinTeleop) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	switch cmd["command"] {
	case "status":
		return t.bridge.Stats(), nil
	case "jog":
		key, ok := cmd["key"].(string)
		if !ok {
			return nil, fmt.Errorf("jog command requires 'key' string parameter")
		}
		err := t.bridge.HandleLine(ctx, key)
		return map[string]interface{}{"success": err == nil}, err
	case "send_pose":
		err := t.bridge.SendPose()
		return map[string]interface{}{"success": err == nil}, err
	default:
		return nil, fmt.Errorf("unknown command: %v", cmd["command"])
	}
}

func (t *hiwinTeleop) Close(ctx context.Context) error {
	t.cancel()
	<-t.done
	t.sessions.Release(ctx, t.cfg.sessionConfig().Address())
	return t.bridge.closePort()
}
