// Package registry lets spectrod servers advertise themselves and clients find them.
package registry

import (
	"context"
	"errors"
)

var ErrNoInstances = errors.New("registry: no instances registered")

// ServiceInstance is one advertised server.
type ServiceInstance struct {
	ID      string   `json:"id"`
	Addr    string   `json:"addr"`
	Weight  int      `json:"weight"`  // Weight for load balancing
	Version string   `json:"version"` // Protocol version the server speaks
	Devices []string `json:"devices,omitempty"`
}

type Registry interface {
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, serviceName string, addr string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	// Watch emits the full instance list after every change until ctx ends.
	Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance
}
