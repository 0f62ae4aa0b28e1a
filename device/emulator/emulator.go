// Package emulator is a fake spectrometer backend.
//
// The spectrum is a gaussian line at 500nm on a flat baseline, scaled by the
// integration time, with gaussian read noise, clipped to the 12-bit detector range.
// An acquisition blocks for the integration time, like real hardware.
package emulator

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"spectro-rpc/device"
)

const (
	DefaultIntegrationMicros = 100 * 1000
	MinIntegrationMicros     = 3 * 1000
	MaxIntegrationMicros     = 10 * 1000 * 1000

	wavelengthStart = 300.0
	wavelengthStop  = 1001.0
	wavelengthStep  = 0.17

	peakCenter   = 500.0
	peakWidth    = 100.0
	baseline     = 100.0
	noiseSigma   = 20.0
	maxIntensity = 4001.0
)

var ErrDisconnected = errors.New("emulator: device is disconnected")

// Options tune the emulator for tests.
type Options struct {
	// Devices is the number of spectrometers; zero means one.
	Devices int
	// Seed makes the noise reproducible.
	Seed uint64
	// AcquireDelay scales the acquisition sleep; 1 sleeps the full integration time,
	// 0 does not sleep.
	AcquireDelay float64
}

func DefaultOptions() Options {
	return Options{Devices: 1, AcquireDelay: 1}
}

// Backend is a fixed set of emulated spectrometers.
type Backend struct {
	spectrometers []*Spectrometer
}

var _ device.Backend = (*Backend)(nil)

func New(opts Options) *Backend {
	n := opts.Devices
	if n <= 0 {
		n = 1
	}
	b := &Backend{spectrometers: make([]*Spectrometer, n)}
	for i := range n {
		b.spectrometers[i] = newSpectrometer(i, opts)
	}
	return b
}

func (b *Backend) Instances() ([]device.Instance, error) {
	out := make([]device.Instance, len(b.spectrometers))
	for i, s := range b.spectrometers {
		out[i] = s
	}
	return out, nil
}

// Spectrometer returns the i-th emulated device, for tests that need to poke it.
func (b *Backend) Spectrometer(i int) *Spectrometer {
	return b.spectrometers[i]
}

// Spectrometer is safe for concurrent use.
type Spectrometer struct {
	index       int
	wavelengths []float64
	shape       []float64
	delay       float64

	mu          sync.Mutex
	integration int
	connected   bool
	rng         *rand.Rand
}

var _ device.Instance = (*Spectrometer)(nil)

func newSpectrometer(index int, opts Options) *Spectrometer {
	n := int(math.Ceil((wavelengthStop - wavelengthStart) / wavelengthStep))
	w := make([]float64, n)
	s := make([]float64, n)
	for i := range w {
		w[i] = wavelengthStart + float64(i)*wavelengthStep
		d := (w[i] - peakCenter) / peakWidth
		s[i] = math.Exp(-d * d)
	}
	return &Spectrometer{
		index:       index,
		wavelengths: w,
		shape:       s,
		delay:       opts.AcquireDelay,
		integration: DefaultIntegrationMicros,
		connected:   true,
		rng:         rand.New(rand.NewPCG(opts.Seed, uint64(index))),
	}
}

func (s *Spectrometer) Name() string {
	return fmt.Sprintf("<Emulated Spectrometer %d>", s.index)
}

func (s *Spectrometer) SerialNumber() (string, error) {
	return fmt.Sprintf("EMU%05d", s.index), nil
}

// IntegrationTimeMicros does not check the connection; the stored value is local.
func (s *Spectrometer) IntegrationTimeMicros() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.integration, nil
}

// SetIntegrationTimeMicros clamps micros to the supported range and returns the
// value actually stored.
func (s *Spectrometer) SetIntegrationTimeMicros(micros int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return 0, ErrDisconnected
	}
	s.integration = min(max(micros, MinIntegrationMicros), MaxIntegrationMicros)
	return s.integration, nil
}

func (s *Spectrometer) Wavelengths() ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, ErrDisconnected
	}
	out := make([]float64, len(s.wavelengths))
	copy(out, s.wavelengths)
	return out, nil
}

func (s *Spectrometer) Intensities() ([]float64, error) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil, ErrDisconnected
	}
	it := float64(s.integration)
	out := make([]float64, len(s.shape))
	for i, v := range s.shape {
		x := baseline + it*v/100 + s.rng.NormFloat64()*noiseSigma
		out[i] = min(max(x, 0), maxIntensity)
	}
	s.mu.Unlock()

	if s.delay > 0 {
		time.Sleep(time.Duration(it * s.delay * float64(time.Microsecond)))
	}
	return out, nil
}

// Close disconnects the device. Later reads and writes fail with ErrDisconnected.
func (s *Spectrometer) Close() {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
}
