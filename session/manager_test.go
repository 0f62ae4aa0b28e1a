package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"spectro-rpc/device"
	"spectro-rpc/device/emulator"
	"spectro-rpc/message"
	"spectro-rpc/operation"
)

func newManager(t *testing.T, devices int) (*Manager, *emulator.Backend) {
	t.Helper()
	b := emulator.New(emulator.Options{Devices: devices})
	return NewManager(b, operation.Default()), b
}

func dispatch(m *Manager, name string, args ...any) (any, error) {
	return m.Dispatch(context.Background(), &message.Call{Name: name, Args: args})
}

type emptyBackend struct{}

func (emptyBackend) Instances() ([]device.Instance, error) { return nil, nil }

func TestInitialSelection(t *testing.T) {
	m, _ := newManager(t, 2)
	if index, ok := m.Selected(); !ok || index != 0 {
		t.Fatalf("expect first instance selected, got (%d, %v)", index, ok)
	}

	empty := NewManager(emptyBackend{}, operation.Default())
	if index, ok := empty.Selected(); ok || index != operation.NoSelection {
		t.Fatalf("expect no selection on empty backend, got (%d, %v)", index, ok)
	}
	if _, err := dispatch(empty, "get_integration_time_micros"); !errors.Is(err, ErrNoDeviceSelected) {
		t.Fatalf("expect ErrNoDeviceSelected, got %v", err)
	}
}

func TestStateMachine(t *testing.T) {
	m, _ := newManager(t, 1)
	m.Deselect()

	if _, err := dispatch(m, "get_serial_number"); !errors.Is(err, ErrNoDeviceSelected) {
		t.Fatalf("unselected: expect ErrNoDeviceSelected, got %v", err)
	}

	if err := m.Select(0); err != nil {
		t.Fatalf("Select(0) failed: %v", err)
	}
	v, err := dispatch(m, "get_serial_number")
	if err != nil {
		t.Fatalf("selected: dispatch failed: %v", err)
	}
	if v != "EMU00000" {
		t.Errorf("serial: got %v, want EMU00000", v)
	}

	m.Deselect()
	if _, err := dispatch(m, "get_serial_number"); !errors.Is(err, ErrNoDeviceSelected) {
		t.Fatalf("after deselect: expect ErrNoDeviceSelected, got %v", err)
	}
}

func TestSelectOutOfRangeKeepsState(t *testing.T) {
	m, _ := newManager(t, 2)
	if err := m.Select(1); err != nil {
		t.Fatal(err)
	}
	for _, bad := range []int{2, 99, -2} {
		if err := m.Select(bad); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("Select(%d): expect ErrIndexOutOfRange, got %v", bad, err)
		}
	}
	if index, ok := m.Selected(); !ok || index != 1 {
		t.Errorf("selection changed by failed select: (%d, %v)", index, ok)
	}

	m.Deselect()
	if err := m.Select(5); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatal(err)
	}
	if _, ok := m.Selected(); ok {
		t.Errorf("failed select must not leave Unselected")
	}
}

func TestSetAndGetIntegrationTime(t *testing.T) {
	m, b := newManager(t, 1)
	v, err := dispatch(m, "set_integration_time_micros", 10000)
	if err != nil {
		t.Fatal(err)
	}
	if v != 10000 {
		t.Errorf("set returned %v, want 10000", v)
	}
	stored, _ := b.Spectrometer(0).IntegrationTimeMicros()
	if stored != 10000 {
		t.Errorf("backend stored %d, want 10000", stored)
	}
	v, _ = dispatch(m, "get_integration_time_micros")
	if v != 10000 {
		t.Errorf("get returned %v, want 10000", v)
	}
}

func TestBackendErrorsAreWrapped(t *testing.T) {
	m, b := newManager(t, 1)
	b.Spectrometer(0).Close()

	_, err := dispatch(m, "get_wavelengths")
	if !errors.Is(err, ErrBackendCall) {
		t.Fatalf("expect ErrBackendCall, got %v", err)
	}
	if !errors.Is(err, emulator.ErrDisconnected) {
		t.Errorf("expect cause to be kept for logging, got %v", err)
	}
	var be *BackendError
	if !errors.As(err, &be) || be.Call != "get_wavelengths" {
		t.Errorf("expect *BackendError for get_wavelengths, got %#v", err)
	}
}

type panicking struct{ device.Instance }

func (panicking) SerialNumber() (string, error) { panic("driver exploded") }

type panicBackend struct{ inst device.Instance }

func (p panicBackend) Instances() ([]device.Instance, error) {
	return []device.Instance{p.inst}, nil
}

func TestBackendPanicIsRecovered(t *testing.T) {
	inst, _ := emulator.New(emulator.Options{}).Instances()
	m := NewManager(panicBackend{panicking{inst[0]}}, operation.Default())

	_, err := dispatch(m, "get_serial_number")
	if !errors.Is(err, ErrBackendCall) {
		t.Fatalf("expect ErrBackendCall after panic, got %v", err)
	}
	// The manager must still be usable.
	if _, err := dispatch(m, "get_integration_time_micros"); err != nil {
		t.Fatalf("dispatch after panic failed: %v", err)
	}
}

// brokenEnumeration enumerates normally until armed, then panics.
type brokenEnumeration struct {
	device.Backend
	armed atomic.Bool
}

func (b *brokenEnumeration) Instances() ([]device.Instance, error) {
	if b.armed.Load() {
		panic("usb enumeration exploded")
	}
	return b.Backend.Instances()
}

func TestSessionRowPanicIsRecovered(t *testing.T) {
	b := &brokenEnumeration{Backend: emulator.New(emulator.Options{Devices: 2})}
	m := NewManager(b, operation.Default())
	b.armed.Store(true)

	for _, call := range []struct {
		name string
		args []any
	}{
		{"get_device_list", nil},
		{"set_spectrometer", []any{1}},
	} {
		_, err := dispatch(m, call.name, call.args...)
		if !errors.Is(err, ErrBackendCall) {
			t.Errorf("%s: expect ErrBackendCall after panic, got %v", call.name, err)
		}
	}
	if index, ok := m.Selected(); !ok || index != 0 {
		t.Errorf("selection changed by panicking select: (%d, %v)", index, ok)
	}

	b.armed.Store(false)
	if _, err := dispatch(m, "get_device_list"); err != nil {
		t.Fatalf("dispatch after panic failed: %v", err)
	}
}

func TestSessionOperations(t *testing.T) {
	m, _ := newManager(t, 3)

	v, err := dispatch(m, "get_device_list")
	if err != nil {
		t.Fatal(err)
	}
	want := "<Emulated Spectrometer 0>,<Emulated Spectrometer 1>,<Emulated Spectrometer 2>"
	if v != want {
		t.Errorf("device list: got %q, want %q", v, want)
	}

	if v, _ := dispatch(m, "set_spectrometer", 2); v != 2 {
		t.Errorf("set_spectrometer(2) returned %v", v)
	}
	if v, _ := dispatch(m, "get_spectrometer"); v != 2 {
		t.Errorf("get_spectrometer returned %v, want 2", v)
	}
	if v, _ := dispatch(m, "set_spectrometer", operation.NoSelection); v != operation.NoSelection {
		t.Errorf("deselect returned %v", v)
	}
	if _, ok := m.Selected(); ok {
		t.Errorf("expect no selection after set_spectrometer(-1)")
	}
	// Session operations work while unselected.
	if v, err := dispatch(m, "get_spectrometer"); err != nil || v != operation.NoSelection {
		t.Errorf("get_spectrometer unselected: (%v, %v)", v, err)
	}
	if _, err := dispatch(m, "set_spectrometer", 3); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expect ErrIndexOutOfRange, got %v", err)
	}
}

func TestDispatchRejectsBadCalls(t *testing.T) {
	m, _ := newManager(t, 1)
	if _, err := dispatch(m, "get_boxcar_width"); !errors.Is(err, operation.ErrUnknownOperation) {
		t.Errorf("expect ErrUnknownOperation, got %v", err)
	}
	if _, err := dispatch(m, "set_intensities", 1); !errors.Is(err, operation.ErrUnsupportedDirection) {
		t.Errorf("expect ErrUnsupportedDirection, got %v", err)
	}
	if _, err := dispatch(m, "set_integration_time_micros", "fast"); err == nil || errors.Is(err, ErrBackendCall) {
		t.Errorf("expect argument error not classed as backend failure, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Dispatch(ctx, &message.Call{Name: "get_serial_number"}); !errors.Is(err, context.Canceled) {
		t.Errorf("expect context.Canceled, got %v", err)
	}
}
