package vidscale

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
)

var ErrorUnknownHardwareDevice = errors.New("unknown hardware device type")

// createHardwareDeviceContext opens a hardware device by its FFmpeg name,
// e.g. "cuda" or "vaapi".
func createHardwareDeviceContext(name string) (*astiav.HardwareDeviceContext, error) {
	deviceType := astiav.FindHardwareDeviceTypeByName(name)
	if deviceType == astiav.HardwareDeviceTypeNone {
		return nil, fmt.Errorf("%w: %q", ErrorUnknownHardwareDevice, name)
	}

	hardwareContext, err := astiav.CreateHardwareDeviceContext(deviceType, "", nil, 0)
	if err != nil {
		return nil, fmt.Errorf("creating %s hardware device context failed: %w", name, err)
	}
	return hardwareContext, nil
}
