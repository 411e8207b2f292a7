//go:build !hrsdk || !cgo

package hiwin_arm

import "github.com/pkg/errors"

// NewSDKGateway fails in builds without the vendor library. Build with
// CGO_ENABLED=1 and -tags hrsdk to drive a real controller.
func NewSDKGateway() (Gateway, error) {
	return nil, errors.New("built without HRSDK support (build with -tags hrsdk)")
}
