package loadbalance

import (
	"fmt"
	"hash/crc32"
	"sort"
	"sync"

	"spectro-rpc/registry"
)

// ConsistentHashBalancer maps keys onto a hash ring of instances. A key keeps
// its instance until the ring changes, and only keys near a changed node move.
//
// Each instance occupies replicas virtual nodes hashed from "{addr}#{i}" so
// that a handful of servers still spread evenly around the ring.
type ConsistentHashBalancer struct {
	mu       sync.RWMutex
	replicas int
	ring     []uint32
	nodes    map[uint32]registry.ServiceInstance
}

func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: 100,
		nodes:    make(map[uint32]registry.ServiceInstance),
	}
}

func (b *ConsistentHashBalancer) Add(instance registry.ServiceInstance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < b.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", instance.Addr, i)))
		if _, ok := b.nodes[hash]; !ok {
			b.ring = append(b.ring, hash)
		}
		b.nodes[hash] = instance
	}
	sort.Slice(b.ring, func(i, j int) bool { return b.ring[i] < b.ring[j] })
}

// Reset rebuilds the ring from instances.
func (b *ConsistentHashBalancer) Reset(instances []registry.ServiceInstance) {
	b.mu.Lock()
	b.ring = b.ring[:0]
	b.nodes = make(map[uint32]registry.ServiceInstance)
	b.mu.Unlock()
	for _, inst := range instances {
		b.Add(inst)
	}
}

// PickKey returns the first node clockwise from the key's hash.
func (b *ConsistentHashBalancer) PickKey(key string) (*registry.ServiceInstance, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.ring) == 0 {
		return nil, ErrNoInstances
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	inst := b.nodes[b.ring[idx]]
	return &inst, nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
