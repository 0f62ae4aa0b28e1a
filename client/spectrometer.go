package client

import (
	"context"
	"fmt"
	"strings"

	"spectro-rpc/operation"
)

func (c *Client) IntegrationTimeMicros(ctx context.Context) (int, error) {
	return callAs[int](ctx, c, operation.CallName(operation.DirectionGet, operation.IntegrationTimeMicros), nil)
}

// SetIntegrationTimeMicros returns the value the device actually stored,
// which may be clamped.
func (c *Client) SetIntegrationTimeMicros(ctx context.Context, micros int) (int, error) {
	return callAs[int](ctx, c, operation.CallName(operation.DirectionSet, operation.IntegrationTimeMicros), micros)
}

func (c *Client) Intensities(ctx context.Context) ([]float64, error) {
	return callAs[[]float64](ctx, c, operation.CallName(operation.DirectionGet, operation.Intensities), nil)
}

func (c *Client) Wavelengths(ctx context.Context) ([]float64, error) {
	return callAs[[]float64](ctx, c, operation.CallName(operation.DirectionGet, operation.Wavelengths), nil)
}

func (c *Client) SerialNumber(ctx context.Context) (string, error) {
	return callAs[string](ctx, c, operation.CallName(operation.DirectionGet, operation.SerialNumber), nil)
}

// ListDevices returns the names of the server's spectrometers in index order.
func (c *Client) ListDevices(ctx context.Context) ([]string, error) {
	joined, err := callAs[string](ctx, c, operation.CallName(operation.DirectionGet, operation.DeviceList), nil)
	if err != nil || joined == "" {
		return nil, err
	}
	return strings.Split(joined, operation.DeviceListSeparator), nil
}

// SelectDevice makes later calls act on the index-th spectrometer.
func (c *Client) SelectDevice(ctx context.Context, index int) error {
	_, err := callAs[int](ctx, c, operation.CallName(operation.DirectionSet, operation.Spectrometer), index)
	return err
}

func (c *Client) DeselectDevice(ctx context.Context) error {
	_, err := callAs[int](ctx, c, operation.CallName(operation.DirectionSet, operation.Spectrometer), operation.NoSelection)
	return err
}

// SelectedDevice reports the selected index; ok is false when none is selected.
func (c *Client) SelectedDevice(ctx context.Context) (index int, ok bool, err error) {
	index, err = callAs[int](ctx, c, operation.CallName(operation.DirectionGet, operation.Spectrometer), nil)
	if err != nil {
		return 0, false, err
	}
	return index, index != operation.NoSelection, nil
}

func callAs[T any](ctx context.Context, c *Client, callName string, value any) (T, error) {
	var zero T
	ret, err := c.Call(ctx, callName, value)
	if err != nil {
		return zero, err
	}
	v, ok := ret.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s returned %T, want %T", ErrServer, callName, ret, zero)
	}
	return v, nil
}
