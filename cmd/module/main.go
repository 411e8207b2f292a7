package main

import (
	hiwin "hiwin_arm"

	"go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/module"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/discovery"
)

func main() {
	// ModularMain can take multiple APIModel arguments, if your module implements multiple models.
	module.ModularMain(
		resource.APIModel{API: generic.API, Model: hiwin.HiwinArmModel},
		resource.APIModel{API: sensor.API, Model: hiwin.HiwinStatusSensorModel},
		resource.APIModel{API: generic.API, Model: hiwin.HiwinTeleopModel},
		resource.APIModel{API: discovery.API, Model: hiwin.HiwinDiscoveryModel},
	)
}
