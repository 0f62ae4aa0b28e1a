package session

import (
	"fmt"

	"spectro-rpc/device"
	"spectro-rpc/message"
	"spectro-rpc/operation"
)

// target is either the selected instance or the manager itself; each handler
// knows which one its kind expects.
type target interface{ isTarget() }

type instanceTarget struct{ device.Instance }

type sessionTarget struct{ m *Manager }

func (instanceTarget) isTarget() {}
func (sessionTarget) isTarget()  {}

type handler struct {
	get func(t target) (any, error)
	set func(t target, arg any) (any, error)
}

// argumentError marks a call whose argument was unusable before the backend was
// reached, so it is not reported as a backend failure.
type argumentError struct {
	call string
	arg  any
}

func (e *argumentError) Error() string {
	return fmt.Sprintf("session: %s: unusable argument %v (%T)", e.call, e.arg, e.arg)
}

func (h handler) invoke(t target, call *message.Call) (any, error) {
	dir, _, err := operation.ParseCallName(call.Name)
	if err != nil {
		return nil, err
	}
	if dir == operation.DirectionSet {
		if h.set == nil {
			return nil, fmt.Errorf("%w: %s", operation.ErrUnsupportedDirection, call.Name)
		}
		return h.set(t, call.Arg())
	}
	if h.get == nil {
		return nil, fmt.Errorf("%w: %s", operation.ErrUnsupportedDirection, call.Name)
	}
	return h.get(t)
}

func intArg(call string, arg any) (int, error) {
	n, ok := arg.(int)
	if !ok {
		return 0, &argumentError{call: call, arg: arg}
	}
	return n, nil
}

// handlers is the closed dispatch table, one entry per operation.Kind.
var handlers = map[operation.Kind]handler{
	operation.KindIntegrationTime: {
		get: func(t target) (any, error) {
			return t.(instanceTarget).IntegrationTimeMicros()
		},
		set: func(t target, arg any) (any, error) {
			micros, err := intArg("set_integration_time_micros", arg)
			if err != nil {
				return nil, err
			}
			return t.(instanceTarget).SetIntegrationTimeMicros(micros)
		},
	},
	operation.KindIntensities: {
		get: func(t target) (any, error) {
			return t.(instanceTarget).Intensities()
		},
	},
	operation.KindWavelengths: {
		get: func(t target) (any, error) {
			return t.(instanceTarget).Wavelengths()
		},
	},
	operation.KindSerialNumber: {
		get: func(t target) (any, error) {
			return t.(instanceTarget).SerialNumber()
		},
	},
	operation.KindDeviceList: {
		get: func(t target) (any, error) {
			return t.(sessionTarget).m.deviceList()
		},
	},
	operation.KindSelection: {
		get: func(t target) (any, error) {
			return t.(sessionTarget).m.index, nil
		},
		set: func(t target, arg any) (any, error) {
			m := t.(sessionTarget).m
			index, err := intArg("set_spectrometer", arg)
			if err != nil {
				return nil, err
			}
			if index == operation.NoSelection {
				m.deselectLocked()
				return operation.NoSelection, nil
			}
			if err := m.selectLocked(index); err != nil {
				return nil, err
			}
			return m.index, nil
		},
	},
}
