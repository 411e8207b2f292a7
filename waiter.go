package hiwin_arm

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/operation"
)

// DefaultPollInterval is the pause between two controller samples while waiting.
const DefaultPollInterval = 200 * time.Millisecond

// WaitMode selects how completion is detected.
type WaitMode int

const (
	// WaitAuto uses the motion-state flag when the gateway has one, readback otherwise.
	WaitAuto WaitMode = iota
	WaitMotionState
	WaitReadback
)

func (m WaitMode) String() string {
	switch m {
	case WaitMotionState:
		return "motion_state"
	case WaitReadback:
		return "readback"
	default:
		return "auto"
	}
}

func ParseWaitMode(s string) (WaitMode, error) {
	switch s {
	case "", "auto":
		return WaitAuto, nil
	case "motion_state":
		return WaitMotionState, nil
	case "readback":
		return WaitReadback, nil
	default:
		return 0, newValidationError("completion", s, "must be auto, motion_state or readback")
	}
}

// WaitOptions configures a CompletionWaiter. A zero Timeout waits without bound.
type WaitOptions struct {
	PollInterval time.Duration
	Timeout      time.Duration
	Mode         WaitMode
}

// CompletionWaiter blocks until the arm is at rest. Only one wait runs at a time;
// starting a new one cancels the previous.
type CompletionWaiter struct {
	conn   *ConnectionManager
	gw     Gateway
	opts   WaitOptions
	mode   WaitMode
	opMgr  *operation.SingleOperationManager
	logger logging.Logger
}

func NewCompletionWaiter(conn *ConnectionManager, gw Gateway, opts WaitOptions, logger logging.Logger) (*CompletionWaiter, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Timeout < 0 {
		return nil, newValidationError("wait_timeout", opts.Timeout.String(), "must not be negative")
	}
	mode := opts.Mode
	caps := gw.Capabilities()
	switch mode {
	case WaitAuto:
		mode = WaitReadback
		if caps.MotionState {
			mode = WaitMotionState
		}
	case WaitMotionState:
		if !caps.MotionState {
			return nil, errors.New("controller does not report motion state, use readback completion")
		}
	}
	return &CompletionWaiter{
		conn:   conn,
		gw:     gw,
		opts:   opts,
		mode:   mode,
		opMgr:  operation.NewSingleOperationManager(),
		logger: logger,
	}, nil
}

// Mode returns the protocol in use after resolving WaitAuto.
func (w *CompletionWaiter) Mode() WaitMode {
	return w.mode
}

// NeedsTarget reports whether waits compare against an absolute target.
func (w *CompletionWaiter) NeedsTarget() bool {
	return w.mode == WaitReadback
}

// Waiting reports whether a wait is in progress.
func (w *CompletionWaiter) Waiting() bool {
	return w.opMgr.OpRunning()
}

// Cancel ends any wait in progress. The arm is not stopped.
func (w *CompletionWaiter) Cancel(ctx context.Context) {
	w.opMgr.CancelRunning(ctx)
}

// Wait blocks until the arm reports idle, or in readback mode until the reported
// position matches target within Tolerance.
func (w *CompletionWaiter) Wait(ctx context.Context, target PositionVector, space PositionType) error {
	handle, err := w.conn.ReadyHandle()
	if err != nil {
		return err
	}

	waitCtx := ctx
	if w.opts.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, w.opts.Timeout)
		defer cancel()
	}

	var arrived func(context.Context) (bool, error)
	switch w.mode {
	case WaitReadback:
		arrived = func(context.Context) (bool, error) {
			pos, code := w.gw.ReadPosition(handle, space)
			if code != codeSuccess {
				w.logger.Debugf("position readback returned code %d, retrying", code)
				return false, nil
			}
			return pos.WithinTolerance(target, space), nil
		}
	default:
		arrived = func(context.Context) (bool, error) {
			return w.gw.MotionState(handle) == motionStateIdle, nil
		}
	}

	start := time.Now()
	err = w.opMgr.WaitForSuccess(waitCtx, w.opts.PollInterval, arrived)
	if err == nil {
		w.logger.Debugf("motion complete after %v (%s)", time.Since(start), w.mode)
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return &TimeoutError{Budget: w.opts.Timeout}
	}
	return errors.Wrap(err, fmt.Sprintf("waiting for %s completion", w.mode))
}
