// Package device declares what spectrod needs from a spectrometer driver.
//
// Drivers live outside this module; device/emulator provides an in-process
// backend for tests and for running the server without hardware.
package device

// Instance is one attached spectrometer. Any method may fail, for example when
// the device was unplugged; the server reports every such failure the same way.
type Instance interface {
	Name() string
	IntegrationTimeMicros() (int, error)
	SetIntegrationTimeMicros(micros int) (int, error)
	Intensities() ([]float64, error)
	Wavelengths() ([]float64, error)
	SerialNumber() (string, error)
}

// Backend enumerates attached instances in a stable order.
type Backend interface {
	Instances() ([]Instance, error)
}

// Names lists the instance names of b in order.
func Names(b Backend) ([]string, error) {
	instances, err := b.Instances()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(instances))
	for i, inst := range instances {
		names[i] = inst.Name()
	}
	return names, nil
}
