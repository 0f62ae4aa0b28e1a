package loadbalance

import (
	"slices"
	"sync"

	"spectro-rpc/registry"
)

// AffinityBalancer routes every call of one client to the same server. Session
// state (the selected spectrometer) lives on the server, so a client that
// hopped between servers would lose its selection.
type AffinityBalancer struct {
	key string

	mu    sync.Mutex
	addrs []string
	ring  *ConsistentHashBalancer
}

func NewAffinityBalancer(key string) *AffinityBalancer {
	return &AffinityBalancer{key: key, ring: NewConsistentHashBalancer()}
}

func (b *AffinityBalancer) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	addrs := make([]string, len(instances))
	for i, inst := range instances {
		addrs[i] = inst.Addr
	}
	slices.Sort(addrs)

	b.mu.Lock()
	defer b.mu.Unlock()
	if !slices.Equal(addrs, b.addrs) {
		b.ring.Reset(instances)
		b.addrs = addrs
	}
	return b.ring.PickKey(b.key)
}

func (b *AffinityBalancer) Name() string {
	return "Affinity"
}
