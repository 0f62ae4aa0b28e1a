// Package loadbalance picks which spectrod instance a client talks to.
//
// Strategies:
//   - RoundRobin:      equal-capacity servers, stateless calls
//   - WeightedRandom:  servers advertising different weights
//   - Affinity:        one client always lands on the same server, so the
//     device it selected stays selected for its later calls
package loadbalance

import (
	"errors"
	"fmt"

	"spectro-rpc/registry"
)

var ErrNoInstances = errors.New("loadbalance: no instances available")

// Balancer is consulted before every call; implementations must be goroutine-safe.
type Balancer interface {
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)
	Name() string
}

// New returns the balancer registered under name. key is only used by Affinity.
func New(name, key string) (Balancer, error) {
	switch name {
	case "", "round_robin", "RoundRobin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random", "WeightedRandom":
		return &WeightedRandomBalancer{}, nil
	case "affinity", "Affinity":
		return NewAffinityBalancer(key), nil
	default:
		return nil, fmt.Errorf("loadbalance: unknown balancer %q", name)
	}
}
