package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/theckman/yacspin"
	yml "gopkg.in/yaml.v2"

	hiwin "hiwin_arm"

	"go.viam.com/rdk/logging"
)

type options struct {
	config *string
	debug  *bool

	joint     *bool
	relative  *bool
	noWait    *bool
	kind      *string
	target    *string
	smoothing *string
	addr      *string
	port      *string
	x, y, z   *float64
	set       *int
}

type command struct {
	extra     []string
	run       func(ctx context.Context, ctrl *hiwin.Controller, cfg *hiwin.FileConfig, opts options) error
	offline   bool // no controller session
	faultedOK bool // runs against a session whose alarm could not be cleared
}

var commands = map[string]command{
	"status":      {run: runStatus, faultedOK: true},
	"clear-alarm": {run: runClearAlarm, faultedOK: true},
	"home":        {extra: []string{"joint", "nowait"}, run: runHome},
	"move":        {extra: []string{"joint", "nowait", "kind", "target", "relative", "smoothing"}, run: runMove},
	"jog":         {extra: []string{"x", "y", "z"}, run: runJog},
	"position":    {extra: []string{"joint"}, run: runPosition},
	"speed":       {extra: []string{"set"}, run: runRatio(hiwin.SpeedRatio)},
	"acc":         {extra: []string{"set"}, run: runRatio(hiwin.AccelerationRatio)},
	"serve":       {extra: []string{"addr"}, run: runServe, faultedOK: true},
	"teleop":      {extra: []string{"port"}, run: runTeleop},
	"conf":        {run: runConf, offline: true},
	"mkconf":      {run: runMkconf, offline: true},
}

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

func (c command) flags(fs *flag.FlagSet) options {
	opts := options{
		config: fs.String("config", ConfigFileName, "configuration file (yaml or json)"),
		debug:  fs.Bool("debug", false, "debug logging"),
	}
	for _, name := range c.extra {
		switch name {
		case "joint":
			opts.joint = fs.Bool("joint", false, "use joint space instead of Cartesian")
		case "nowait":
			opts.noWait = fs.Bool("nowait", false, "return once the move is accepted")
		case "kind":
			opts.kind = fs.String("kind", "ptp", "motion kind: linear or ptp")
		case "target":
			opts.target = fs.String("target", "", "six comma separated values")
		case "relative":
			opts.relative = fs.Bool("relative", false, "target is an offset from the current position")
		case "smoothing":
			opts.smoothing = fs.String("smoothing", "", "disable, bezier_percent, bezier_radius or two_segment_speed")
		case "addr":
			opts.addr = fs.String("addr", "", "HTTP listen address (defaults to the config file)")
		case "port":
			opts.port = fs.String("port", "", "keypad serial port (defaults to the config file)")
		case "x":
			opts.x = fs.Float64("x", 0, "x offset (mm)")
		case "y":
			opts.y = fs.Float64("y", 0, "y offset (mm)")
		case "z":
			opts.z = fs.Float64("z", 0, "z offset (mm)")
		case "set":
			opts.set = fs.Int("set", 0, "new ratio (1-100)")
		}
	}
	return opts
}

func (o options) space() hiwin.PositionType {
	if o.joint != nil && *o.joint {
		return hiwin.Joint
	}
	return hiwin.Cartesian
}

func (o options) wait() bool {
	return o.noWait == nil || !*o.noWait
}

// spin shows a spinner on a terminal while fn blocks.
func spin(msg string, fn func() error) error {
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		Message:           msg,
		StopCharacter:     "✓",
		StopMessage:       "done",
		StopFailCharacter: "✗",
		StopFailMessage:   "failed",
	})
	if err != nil {
		return fn()
	}
	if err := spinner.Start(); err != nil {
		return fn()
	}
	if err := fn(); err != nil {
		_ = spinner.StopFail()
		return err
	}
	return spinner.Stop()
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runStatus(ctx context.Context, ctrl *hiwin.Controller, cfg *hiwin.FileConfig, opts options) error {
	return printJSON(ctrl.Status().Map())
}

func runClearAlarm(ctx context.Context, ctrl *hiwin.Controller, cfg *hiwin.FileConfig, opts options) error {
	if err := ctrl.ClearAlarm(); err != nil {
		return err
	}
	fmt.Println("alarm cleared")
	return nil
}

func runHome(ctx context.Context, ctrl *hiwin.Controller, cfg *hiwin.FileConfig, opts options) error {
	space := opts.space()
	return spin(fmt.Sprintf("homing (%s)", space), func() error {
		return ctrl.Home(ctx, space, opts.wait())
	})
}

func parseTarget(s string) (hiwin.PositionVector, error) {
	fields := strings.Split(s, ",")
	values := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return hiwin.PositionVector{}, errors.Wrapf(err, "target value %q", f)
		}
		values = append(values, v)
	}
	return hiwin.PositionFromSlice(values)
}

func runMove(ctx context.Context, ctrl *hiwin.Controller, cfg *hiwin.FileConfig, opts options) error {
	target, err := parseTarget(*opts.target)
	if err != nil {
		return err
	}
	kind, err := hiwin.ParseMotionKind(*opts.kind)
	if err != nil {
		return err
	}
	frame := hiwin.Absolute
	if *opts.relative {
		frame = hiwin.Relative
	}
	var smoothing *hiwin.SmoothingSpec
	if *opts.smoothing != "" {
		st, err := hiwin.ParseSmoothType(*opts.smoothing)
		if err != nil {
			return err
		}
		smoothing = &hiwin.SmoothingSpec{Type: st, Value: cfg.Arm.SmoothValue}
	}

	space := opts.space()
	return spin(fmt.Sprintf("%s move to %v", kind, target.Slice()), func() error {
		if kind == hiwin.Linear {
			return ctrl.MoveLinear(ctx, target, space, frame, smoothing, opts.wait())
		}
		return ctrl.MovePointToPoint(ctx, target, space, frame, smoothing, opts.wait())
	})
}

func runJog(ctx context.Context, ctrl *hiwin.Controller, cfg *hiwin.FileConfig, opts options) error {
	return ctrl.Jog(ctx, r3.Vector{X: *opts.x, Y: *opts.y, Z: *opts.z})
}

func runPosition(ctx context.Context, ctrl *hiwin.Controller, cfg *hiwin.FileConfig, opts options) error {
	pos, err := ctrl.Position(opts.space())
	if err != nil {
		return err
	}
	return printJSON(pos.Slice())
}

func runRatio(kind hiwin.RatioKind) func(context.Context, *hiwin.Controller, *hiwin.FileConfig, options) error {
	return func(ctx context.Context, ctrl *hiwin.Controller, cfg *hiwin.FileConfig, opts options) error {
		if *opts.set != 0 {
			if kind == hiwin.SpeedRatio {
				return ctrl.SetSpeed(*opts.set)
			}
			return ctrl.SetAcceleration(*opts.set)
		}
		var (
			v   int
			err error
		)
		if kind == hiwin.SpeedRatio {
			v, err = ctrl.Speed()
		} else {
			v, err = ctrl.Acceleration()
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s ratio: %d\n", kind, v)
		return nil
	}
}

func runServe(ctx context.Context, ctrl *hiwin.Controller, cfg *hiwin.FileConfig, opts options) error {
	addr := cfg.Addr
	if *opts.addr != "" {
		addr = *opts.addr
	}
	logger := logging.NewLogger("hiwin-http")
	srv := &http.Server{Addr: addr, Handler: hiwin.NewHTTPServer(ctrl, logger).Routes()}

	errc := make(chan error, 1)
	go func() {
		logger.Infof("now listening for requests at %s", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func runTeleop(ctx context.Context, ctrl *hiwin.Controller, cfg *hiwin.FileConfig, opts options) error {
	tcfg := cfg.Teleop
	if *opts.port != "" {
		tcfg.Port = *opts.port
	}
	if tcfg.Port == "" {
		return errors.New("no teleop port configured; pass -port or set teleop.port")
	}
	bridge := hiwin.NewTeleopBridge(tcfg, ctrl, nil, logging.NewLogger("hiwin-teleop"))
	err := bridge.Run(ctx)
	fmt.Println(bridge.Stats())
	return err
}

// yamlDoc converts the config into a map keyed by its json names so the yaml
// output matches what LoadFileConfig reads.
func yamlDoc(cfg *hiwin.FileConfig) (map[string]interface{}, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	err = json.Unmarshal(raw, &doc)
	return doc, err
}

func runConf(ctx context.Context, ctrl *hiwin.Controller, cfg *hiwin.FileConfig, opts options) error {
	doc, err := yamlDoc(cfg)
	if err != nil {
		return err
	}
	return yml.NewEncoder(os.Stdout).Encode(doc)
}

func runMkconf(ctx context.Context, ctrl *hiwin.Controller, cfg *hiwin.FileConfig, opts options) error {
	doc, err := yamlDoc(cfg)
	if err != nil {
		return err
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		return err
	}
	defer f.Close()
	return yml.NewEncoder(f).Encode(doc)
}
