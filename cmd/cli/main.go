package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	hiwin "hiwin_arm"

	"go.viam.com/rdk/logging"
)

var (
	// Version is the version number, typically injected via ldflags
	Version = "dev"

	// ConfigFileName is read from the working directory unless -config is given
	ConfigFileName = "hiwin.yml"
)

func root() {
	str := `hiwin drives a HIWIN arm controller from the command line and can expose
it over HTTP.

Usage:
	hiwin <command> [flags]

Commands:
	status       connect and print the controller status
	home         move to the home position (-joint for joint space)
	move         move to a target (-kind linear|ptp, -target x,y,z,a,b,c)
	jog          relative Cartesian move (-x, -y, -z)
	position     print the current position (-joint for joint space)
	speed        read or set the speed ratio (-set 1..100)
	acc          read or set the acceleration ratio (-set 1..100)
	clear-alarm  clear the controller alarm
	serve        expose the arm over HTTP
	teleop       bridge a serial keypad to jog moves
	ports        list candidate keypad serial ports
	conf         print the effective configuration
	mkconf       write the effective configuration to hiwin.yml
	version

Every command accepts -config <file>. Environment variables prefixed with
HIWIN_ override file values, e.g. HIWIN_ARM__HOST=192.168.0.1.`
	fmt.Println(str)
}

func main() {
	if len(os.Args) < 2 {
		root()
		return
	}
	if err := realMain(strings.ToLower(os.Args[1]), os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func realMain(cmd string, args []string) error {
	switch cmd {
	case "help", "-h", "--help":
		root()
		return nil
	case "version":
		fmt.Printf("hiwin version %v\n", Version)
		return nil
	case "ports":
		for _, p := range hiwin.CandidateSerialPorts() {
			fmt.Println(p)
		}
		return nil
	}

	c, ok := commands[cmd]
	if !ok {
		return fmt.Errorf("unknown command %q", cmd)
	}
	fs := newFlagSet(cmd)
	opts := c.flags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := hiwin.LoadFileConfig(*opts.config, *opts.config == ConfigFileName)
	if err != nil {
		return err
	}
	if c.offline {
		return c.run(context.Background(), nil, cfg, opts)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := logging.NewLogger("hiwin-cli")
	if *opts.debug {
		logger = logging.NewDebugLogger("hiwin-cli")
	}
	if _, _, err := cfg.Arm.Validate("arm"); err != nil {
		return err
	}
	gw, err := hiwin.NewGateway(&cfg.Arm)
	if err != nil {
		return err
	}
	ctrl, err := hiwin.NewController(gw, &cfg.Arm, nil, logger)
	if err != nil {
		return err
	}
	if err := ctrl.Connect(ctx); err != nil {
		if ctrl.State() != hiwin.Faulted || !c.faultedOK {
			ctrl.Disconnect(context.Background())
			return err
		}
	}
	defer ctrl.Disconnect(context.Background())

	return c.run(ctx, ctrl, cfg, opts)
}
