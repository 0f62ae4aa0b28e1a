package registry

import (
	"context"
	"sort"
	"sync"
)

// Static is an in-process Registry. It serves fixed address lists and tests;
// TTLs are ignored.
type Static struct {
	mu       sync.Mutex
	services map[string]map[string]ServiceInstance
	watchers map[string][]chan []ServiceInstance
}

func NewStatic() *Static {
	return &Static{
		services: make(map[string]map[string]ServiceInstance),
		watchers: make(map[string][]chan []ServiceInstance),
	}
}

// StaticFromAddrs registers one instance per address under serviceName.
func StaticFromAddrs(serviceName string, addrs ...string) *Static {
	s := NewStatic()
	for _, addr := range addrs {
		s.Register(context.Background(), serviceName, ServiceInstance{Addr: addr, Weight: 1}, 0)
	}
	return s
}

func (s *Static) Register(_ context.Context, serviceName string, instance ServiceInstance, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.services[serviceName] == nil {
		s.services[serviceName] = make(map[string]ServiceInstance)
	}
	s.services[serviceName][instance.Addr] = instance
	s.notifyLocked(serviceName)
	return nil
}

func (s *Static) Deregister(_ context.Context, serviceName string, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.services[serviceName], addr)
	s.notifyLocked(serviceName)
	return nil
}

func (s *Static) Discover(_ context.Context, serviceName string) ([]ServiceInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(serviceName), nil
}

func (s *Static) Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)

	s.mu.Lock()
	s.watchers[serviceName] = append(s.watchers[serviceName], ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		watchers := s.watchers[serviceName]
		for i, w := range watchers {
			if w == ch {
				s.watchers[serviceName] = append(watchers[:i], watchers[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

func (s *Static) listLocked(serviceName string) []ServiceInstance {
	instances := make([]ServiceInstance, 0, len(s.services[serviceName]))
	for _, inst := range s.services[serviceName] {
		instances = append(instances, inst)
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].Addr < instances[j].Addr })
	return instances
}

// notifyLocked replaces any undelivered list with the latest one.
func (s *Static) notifyLocked(serviceName string) {
	list := s.listLocked(serviceName)
	for _, w := range s.watchers[serviceName] {
		select {
		case <-w:
		default:
		}
		w <- list
	}
}
