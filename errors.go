package hiwin_arm

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrNotConnected is returned by every motion and parameter call made while the
// session is not Ready. The gateway is not contacted.
var ErrNotConnected = errors.New("arm not connected")

// ErrFaulted means the session is open but a latched alarm could not be cleared.
// Motion is refused until ClearAlarm succeeds.
var ErrFaulted = errors.New("arm connected with an uncleared alarm")

// ValidationError is an out-of-range parameter or unknown enumerant, caught before
// any controller call.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func newValidationError(field, value, reason string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// ConnectFailure classifies a failed session open.
type ConnectFailure int

const (
	ConnectFailed ConnectFailure = iota
	CallbackCreationFailed
	DeviceUnreachable
	VersionMismatch
	ConnectUnknown
)

func (c ConnectFailure) String() string {
	switch c {
	case ConnectFailed:
		return "connect failed"
	case CallbackCreationFailed:
		return "callback channel creation failed"
	case DeviceUnreachable:
		return "device unreachable"
	case VersionMismatch:
		return "protocol version mismatch"
	default:
		return "unknown connection error"
	}
}

// classifyConnectCode maps the negative handle returned by a failed open.
func classifyConnectCode(code int) ConnectFailure {
	switch code {
	case -1:
		return ConnectFailed
	case -2:
		return CallbackCreationFailed
	case -3:
		return DeviceUnreachable
	case -4:
		return VersionMismatch
	default:
		return ConnectUnknown
	}
}

// ConnectionError is a failed connect attempt. It is never retried automatically.
type ConnectionError struct {
	Address string
	Code    int
	Cause   ConnectFailure
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to %s: %s (code %d)", e.Address, e.Cause, e.Code)
}

// GatewayError is a controller return code outside the accepted set of the call
// that produced it. The attempted state change should be assumed not to have happened.
type GatewayError struct {
	Op   Operation
	Code int
}

func (e *GatewayError) Error() string {
	if rule, ok := acceptedCodes[e.Op]; ok {
		return fmt.Sprintf("%s: controller returned code %d, accepted %s", e.Op, e.Code, rule.describeRule)
	}
	return fmt.Sprintf("%s: controller returned code %d", e.Op, e.Code)
}

// TimeoutError is returned when a completion wait outlives its budget. The arm is
// wherever the controller left it.
type TimeoutError struct {
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("motion did not complete within %v", e.Budget)
}

// IsValidation reports whether err is, or wraps, a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsTimeout reports whether err is, or wraps, a *TimeoutError.
func IsTimeout(err error) bool {
	var t *TimeoutError
	return errors.As(err, &t)
}
