// Package session owns which backend instance remote calls are forwarded to.
//
// There is one Manager per server, shared by every connection: a client selects
// a spectrometer and later calls act on it, whichever connection they arrive on.
// The manager's mutex is held for the whole of a dispatch, including the backend
// call, so selection changes never interleave with a call in progress.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"spectro-rpc/device"
	"spectro-rpc/message"
	"spectro-rpc/operation"
)

var (
	ErrNoDeviceSelected = errors.New("session: no device selected")
	ErrIndexOutOfRange  = errors.New("session: device index out of range")
	ErrBackendCall      = errors.New("session: backend call failed")
)

// BackendError records which call the backend failed and why. Servers log it;
// clients only ever see the opaque error signal.
type BackendError struct {
	Call string
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("session: backend call %s failed: %v", e.Call, e.Err)
}

func (e *BackendError) Unwrap() []error {
	return []error{ErrBackendCall, e.Err}
}

// Manager is the session state machine: Unselected or Selected(instance).
type Manager struct {
	mu       sync.Mutex
	backend  device.Backend
	table    *operation.Table
	selected device.Instance
	index    int
}

// NewManager selects the first enumerated instance, if there is one.
func NewManager(backend device.Backend, table *operation.Table) *Manager {
	m := &Manager{
		backend: backend,
		table:   table,
		index:   operation.NoSelection,
	}
	if instances, err := backend.Instances(); err == nil && len(instances) > 0 {
		m.selected = instances[0]
		m.index = 0
	}
	return m
}

// Select attaches the index-th instance of the backend's current enumeration.
// On failure the previous state is kept.
func (m *Manager) Select(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectLocked(index)
}

func (m *Manager) selectLocked(index int) error {
	instances, err := m.backend.Instances()
	if err != nil {
		return &BackendError{Call: "list_instances", Err: err}
	}
	if index < 0 || index >= len(instances) {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(instances))
	}
	m.selected = instances[index]
	m.index = index
	return nil
}

func (m *Manager) Deselect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deselectLocked()
}

func (m *Manager) deselectLocked() {
	m.selected = nil
	m.index = operation.NoSelection
}

// Selected returns the index of the selected instance.
func (m *Manager) Selected() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index, m.selected != nil
}

// Devices lists the names of the backend's instances.
func (m *Manager) Devices() ([]string, error) {
	return device.Names(m.backend)
}

// Dispatch runs one call against the session. Backend failures and panics come
// back as *BackendError.
func (m *Manager) Dispatch(ctx context.Context, call *message.Call) (value any, err error) {
	_, d, err := m.table.Resolve(call.Name)
	if err != nil {
		return nil, err
	}
	h, ok := handlers[d.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: no handler for %s", operation.ErrUnknownOperation, call.Name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Session rows reach the backend too (enumeration, instance names).
	defer func() {
		if r := recover(); r != nil {
			value, err = nil, &BackendError{Call: call.Name, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if d.Kind.Session() {
		return h.invoke(sessionTarget{m}, call)
	}
	if m.selected == nil {
		return nil, ErrNoDeviceSelected
	}

	value, err = h.invoke(instanceTarget{m.selected}, call)
	if err != nil {
		var argErr *argumentError
		if !errors.As(err, &argErr) {
			err = &BackendError{Call: call.Name, Err: err}
		}
		return nil, err
	}
	return value, nil
}

// deviceList joins instance names for the device_list text payload.
func (m *Manager) deviceList() (string, error) {
	names, err := device.Names(m.backend)
	if err != nil {
		return "", &BackendError{Call: "list_instances", Err: err}
	}
	return strings.Join(names, operation.DeviceListSeparator), nil
}
