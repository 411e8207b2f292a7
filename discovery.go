// discovery.go
package hiwin_arm

import (
	"context"
	"path/filepath"
	"strings"

	"go.bug.st/serial/enumerator"
	"go.viam.com/rdk/components/generic"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/services/discovery"
)

var HiwinDiscoveryModel = resource.NewModel("devrel", "hiwin", "discovery")

func init() {
	resource.RegisterService(
		discovery.API,
		HiwinDiscoveryModel,
		resource.Registration[discovery.Service, *HiwinDiscoveryConfig]{
			Constructor: newHiwinDiscovery,
		})
}

// HiwinDiscoveryConfig is the configuration for the discovery service
type HiwinDiscoveryConfig struct {
	// Host is copied into every proposed teleop config.
	Host string `json:"host,omitempty"`
}

// Validate ensures the config is valid
func (cfg *HiwinDiscoveryConfig) Validate(path string) ([]string, []string, error) {
	return nil, nil, nil
}

// hiwinDiscovery proposes teleop keypad configs for serial ports that look like
// USB or Bluetooth serial links.
type hiwinDiscovery struct {
	resource.Named
	resource.AlwaysRebuild
	resource.TriviallyCloseable
	logger    logging.Logger
	host      string
	listPorts func() []string
}

func newHiwinDiscovery(
	ctx context.Context,
	deps resource.Dependencies,
	conf resource.Config,
	logger logging.Logger,
) (discovery.Service, error) {
	cfg, err := resource.NativeConfig[*HiwinDiscoveryConfig](conf)
	if err != nil {
		return nil, err
	}

	return &hiwinDiscovery{
		Named:     conf.ResourceName().AsNamed(),
		logger:    logger,
		host:      cfg.Host,
		listPorts: enumerateSerialPorts,
	}, nil
}

// DiscoverResources returns one teleop config per candidate serial port. extra["host"]
// overrides the configured controller host.
func (dis *hiwinDiscovery) DiscoverResources(ctx context.Context, extra map[string]any) ([]resource.Config, error) {
	host := dis.host
	if h, ok := extra["host"].(string); ok && h != "" {
		host = h
	}

	allPorts := dis.listPorts()
	dis.logger.Debugf("Found %d total serial ports", len(allPorts))

	candidates := filterCandidatePorts(allPorts)
	dis.logger.Debugf("Filtered to %d candidate ports", len(candidates))

	var configs []resource.Config
	for _, portPath := range candidates {
		select {
		case <-ctx.Done():
			return configs, ctx.Err()
		default:
		}
		configs = append(configs, teleopConfigFor(portPath, host))
	}

	if len(configs) == 0 {
		dis.logger.Info("No teleop serial ports discovered")
	} else {
		dis.logger.Infof("Discovered %d teleop port candidates", len(configs))
	}
	return configs, nil
}

func teleopConfigFor(portPath, host string) resource.Config {
	attrs := map[string]interface{}{
		"port":      portPath,
		"baud_rate": DefaultTeleopBaud,
	}
	if host != "" {
		attrs["host"] = host
	} else {
		attrs["simulate"] = true
	}
	return resource.Config{
		Name:       "hiwin-teleop-" + extractPortSuffix(portPath),
		API:        generic.API,
		Model:      HiwinTeleopModel,
		Attributes: attrs,
	}
}

// filterCandidatePorts filters serial ports by platform-specific naming patterns
func filterCandidatePorts(ports []string) []string {
	candidates := []string{}
	for _, port := range ports {
		if isCandidatePort(port) {
			candidates = append(candidates, port)
		}
	}
	return candidates
}

// isCandidatePort checks for USB serial adapters and Bluetooth serial links
func isCandidatePort(port string) bool {
	// Linux: /dev/ttyUSB*, /dev/ttyACM*, /dev/rfcomm*
	if strings.HasPrefix(port, "/dev/ttyUSB") || strings.HasPrefix(port, "/dev/ttyACM") || strings.HasPrefix(port, "/dev/rfcomm") {
		return true
	}
	// macOS: usb adapters and paired Bluetooth serial devices
	for _, prefix := range []string{"/dev/tty.usbmodem", "/dev/tty.usbserial", "/dev/cu.usbmodem", "/dev/cu.usbserial"} {
		if strings.HasPrefix(port, prefix) {
			return true
		}
	}
	if (strings.HasPrefix(port, "/dev/tty.") || strings.HasPrefix(port, "/dev/cu.")) && strings.Contains(strings.ToUpper(port), "HC-0") {
		return true
	}
	// Windows: COM*
	return strings.HasPrefix(port, "COM")
}

// extractPortSuffix extracts a friendly suffix from port path for naming
// /dev/ttyUSB0 -> "ttyUSB0"
// COM3 -> "COM3"
// /dev/tty.usbmodem123 -> "usbmodem123"
func extractPortSuffix(portPath string) string {
	base := filepath.Base(portPath)
	for _, prefix := range []string{"tty.", "cu."} {
		if strings.HasPrefix(base, prefix) {
			return strings.TrimPrefix(base, prefix)
		}
	}
	return base
}

// enumerateSerialPorts returns a list of all serial ports on the system
func enumerateSerialPorts() []string {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return []string{}
	}

	var portPaths []string
	for _, port := range ports {
		portPaths = append(portPaths, port.Name)
	}
	return portPaths
}

// CandidateSerialPorts lists serial ports that could carry the teleop keypad.
func CandidateSerialPorts() []string {
	return filterCandidatePorts(enumerateSerialPorts())
}
