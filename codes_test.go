package hiwin_arm

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcceptedCodes(t *testing.T) {
	tests := []struct {
		op       Operation
		accepted []int
		rejected []int
	}{
		{OpClearAlarm, []int{0, 300}, []int{-1, 1, 299, 4000}},
		{OpSetMotor, []int{0}, []int{-1, 1}},
		{OpSetSpeed, []int{0}, []int{-1, 4000}},
		{OpSetAcceleration, []int{0, 4000}, []int{-1, 1, 300}},
		{OpGetSpeed, []int{0, 1, 100}, []int{-1}},
		{OpGetAcceleration, []int{0, 50}, []int{-1}},
		{OpHome, []int{0, 1, 7}, []int{-1, -2}},
		{OpMoveLinear, []int{0}, []int{-1, 1}},
		{OpMovePointToPoint, []int{0, 2}, []int{-1}},
		{OpReadPosition, []int{0}, []int{-1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			for _, code := range tt.accepted {
				assert.True(t, Accepted(tt.op, code), "code %d", code)
				assert.NoError(t, checkCode(tt.op, code))
			}
			for _, code := range tt.rejected {
				assert.False(t, Accepted(tt.op, code), "code %d", code)
				err := checkCode(tt.op, code)
				var gwErr *GatewayError
				require.True(t, errors.As(err, &gwErr), "code %d", code)
				assert.Equal(t, tt.op, gwErr.Op)
				assert.Equal(t, code, gwErr.Code)
			}
		})
	}
}

func TestGatewayErrorMessage(t *testing.T) {
	err := &GatewayError{Op: OpSetAcceleration, Code: 12}
	assert.Equal(t, "set_acceleration: controller returned code 12, accepted {0,4000}", err.Error())
}
