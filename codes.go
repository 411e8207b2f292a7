package hiwin_arm

import "fmt"

// Operation names a controller call for return-code checking.
type Operation int

const (
	OpClearAlarm Operation = iota
	OpSetMotor
	OpSetSpeed
	OpSetAcceleration
	OpGetSpeed
	OpGetAcceleration
	OpHome
	OpMoveLinear
	OpMovePointToPoint
	OpReadPosition
)

var operationNames = map[Operation]string{
	OpClearAlarm:       "clear_alarm",
	OpSetMotor:         "set_motor",
	OpSetSpeed:         "set_speed",
	OpSetAcceleration:  "set_acceleration",
	OpGetSpeed:         "get_speed",
	OpGetAcceleration:  "get_acceleration",
	OpHome:             "home",
	OpMoveLinear:       "move_linear",
	OpMovePointToPoint: "move_ptp",
	OpReadPosition:     "read_position",
}

func (o Operation) String() string {
	if name, ok := operationNames[o]; ok {
		return name
	}
	return fmt.Sprintf("operation(%d)", int(o))
}

const (
	codeSuccess = 0
	// codeNoAlarm is returned by clear_alarm when there is nothing to clear.
	codeNoAlarm = 300
	// codeAccRatioAck is returned by every successful set_acc_dec_ratio call.
	codeAccRatioAck = 4000
	// codeReadFailed is the ratio read sentinel.
	codeReadFailed = -1
)

// codeRule decides whether a return code counts as success.
type codeRule struct {
	exact        []int
	nonNegative  bool
	describeRule string
}

func (r codeRule) accepts(code int) bool {
	if r.nonNegative && code >= 0 {
		return true
	}
	for _, c := range r.exact {
		if c == code {
			return true
		}
	}
	return false
}

// acceptedCodes is the single source of truth for what each call may return on success.
var acceptedCodes = map[Operation]codeRule{
	OpClearAlarm:       {exact: []int{codeSuccess, codeNoAlarm}, describeRule: "{0,300}"},
	OpSetMotor:         {exact: []int{codeSuccess}, describeRule: "{0}"},
	OpSetSpeed:         {exact: []int{codeSuccess}, describeRule: "{0}"},
	OpSetAcceleration:  {exact: []int{codeSuccess, codeAccRatioAck}, describeRule: "{0,4000}"},
	OpGetSpeed:         {nonNegative: true, describeRule: ">=0"},
	OpGetAcceleration:  {nonNegative: true, describeRule: ">=0"},
	OpHome:             {nonNegative: true, describeRule: ">=0"},
	OpMoveLinear:       {exact: []int{codeSuccess}, describeRule: "{0}"},
	OpMovePointToPoint: {nonNegative: true, describeRule: ">=0"},
	OpReadPosition:     {exact: []int{codeSuccess}, describeRule: "{0}"},
}

// Accepted reports whether code is a success for op.
func Accepted(op Operation, code int) bool {
	rule, ok := acceptedCodes[op]
	if !ok {
		return code == codeSuccess
	}
	return rule.accepts(code)
}

// checkCode returns a *GatewayError when code is outside op's accepted set.
func checkCode(op Operation, code int) error {
	if Accepted(op, code) {
		return nil
	}
	return &GatewayError{Op: op, Code: code}
}
