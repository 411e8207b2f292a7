//go:build hrsdk && cgo

package hiwin_arm

/*
#cgo CFLAGS: -I${SRCDIR}/third_party/hrsdk/include
#cgo LDFLAGS: -L${SRCDIR}/third_party/hrsdk/lib -lHRSDK
#include <stdint.h>
#include <stdlib.h>
#include "HRSDK.h"

extern void hrsdkEventTrampoline(uint16_t cmd, uint16_t rlt, uint16_t* msg, int len);
*/
import "C"

import (
	"sync"
	"unsafe"
)

// sdkEvents holds the EventFunc handed to the most recent Open. The vendor
// library keeps a raw pointer to hrsdkEventTrampoline for the life of the
// process, so this must never be reset to a dangling value.
var (
	sdkEventsMu sync.RWMutex
	sdkEvents   EventFunc
)

//export hrsdkEventTrampoline
func hrsdkEventTrampoline(cmd, rlt C.uint16_t, msg *C.uint16_t, length C.int) {
	sdkEventsMu.RLock()
	fn := sdkEvents
	sdkEventsMu.RUnlock()
	if fn == nil {
		return
	}
	var words []uint16
	if msg != nil && length > 0 {
		words = append(words, unsafe.Slice((*uint16)(unsafe.Pointer(msg)), int(length))...)
	}
	fn(uint16(cmd), uint16(rlt), words)
}

// SDKGateway drives a real controller through the vendor HRSDK library.
type SDKGateway struct{}

// NewSDKGateway returns the HRSDK-backed gateway.
func NewSDKGateway() (Gateway, error) {
	return &SDKGateway{}, nil
}

func (g *SDKGateway) Capabilities() Capabilities {
	return Capabilities{
		NativeRelative: map[PositionType]bool{Cartesian: true, Joint: true},
		MotionState:    true,
	}
}

func (g *SDKGateway) Open(address string, mode int, cb EventFunc) int {
	sdkEventsMu.Lock()
	sdkEvents = cb
	sdkEventsMu.Unlock()

	caddr := C.CString(address)
	defer C.free(unsafe.Pointer(caddr))
	return int(C.open_connection(caddr, C.int(mode), (C.callback_function)(C.hrsdkEventTrampoline)))
}

func (g *SDKGateway) Close(handle int) {
	C.disconnect(C.HROBOT(handle))
}

func (g *SDKGateway) ClearAlarm(handle int) int {
	return int(C.clear_alarm(C.HROBOT(handle)))
}

func (g *SDKGateway) SetMotor(handle int, on bool) int {
	state := 0
	if on {
		state = 1
	}
	return int(C.set_motor_state(C.HROBOT(handle), C.int(state)))
}

func (g *SDKGateway) MotorState(handle int) int {
	return int(C.get_motor_state(C.HROBOT(handle)))
}

func (g *SDKGateway) ConnectionLevel(handle int) int {
	return int(C.get_connection_level(C.HROBOT(handle)))
}

func (g *SDKGateway) MotionState(handle int) int {
	return int(C.get_motion_state(C.HROBOT(handle)))
}

func (g *SDKGateway) Ratio(handle int, kind RatioKind) int {
	if kind == AccelerationRatio {
		return int(C.get_acc_dec_ratio(C.HROBOT(handle)))
	}
	return int(C.get_override_ratio(C.HROBOT(handle)))
}

func (g *SDKGateway) SetRatio(handle int, kind RatioKind, value int) int {
	if kind == AccelerationRatio {
		return int(C.set_acc_dec_ratio(C.HROBOT(handle), C.int(value)))
	}
	return int(C.set_override_ratio(C.HROBOT(handle), C.int(value)))
}

func (g *SDKGateway) MoveAbsolute(handle int, kind MotionKind, space PositionType, smoothing SmoothingSpec, target PositionVector) int {
	return g.move(handle, kind, space, false, smoothing, target)
}

func (g *SDKGateway) MoveRelative(handle int, kind MotionKind, space PositionType, smoothing SmoothingSpec, offset PositionVector) int {
	return g.move(handle, kind, space, true, smoothing, offset)
}

func (g *SDKGateway) move(handle int, kind MotionKind, space PositionType, relative bool, smoothing SmoothingSpec, v PositionVector) int {
	h := C.HROBOT(handle)
	p := (*C.double)(unsafe.Pointer(&v[0]))

	if kind == PointToPoint {
		mode := C.int(smoothing.PointToPointMode())
		switch {
		case space == Cartesian && !relative:
			return int(C.ptp_pos(h, mode, p))
		case space == Cartesian:
			return int(C.ptp_rel_pos(h, mode, p))
		case !relative:
			return int(C.ptp_axis(h, mode, p))
		default:
			return int(C.ptp_rel_axis(h, mode, p))
		}
	}

	mode, value := smoothing.LinearMode()
	cmode, cvalue := C.int(mode), C.double(value)
	switch {
	case space == Cartesian && !relative:
		return int(C.lin_pos(h, cmode, cvalue, p))
	case space == Cartesian:
		return int(C.lin_rel_pos(h, cmode, cvalue, p))
	case !relative:
		return int(C.lin_axis(h, cmode, cvalue, p))
	default:
		return int(C.lin_rel_axis(h, cmode, cvalue, p))
	}
}

func (g *SDKGateway) ReadPosition(handle int, space PositionType) (PositionVector, int) {
	var out PositionVector
	p := (*C.double)(unsafe.Pointer(&out[0]))
	var code C.int
	if space == Joint {
		code = C.get_current_joint(C.HROBOT(handle), p)
	} else {
		code = C.get_current_position(C.HROBOT(handle), p)
	}
	return out, int(code)
}
