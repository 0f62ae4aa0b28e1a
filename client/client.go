// Package client calls a spectrod server.
//
// A Client turns a call name and value into a request event, carries it to a
// server and decodes the response. Servers report every failure with the same
// opaque error signal, which surfaces here as a *CallError.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"spectro-rpc/loadbalance"
	"spectro-rpc/operation"
	"spectro-rpc/protocol"
	"spectro-rpc/registry"
	"spectro-rpc/transport"
)

// Mode selects how calls reach the server.
type Mode int

const (
	// ModeOneShot opens a connection per call and reads the response to EOF.
	ModeOneShot Mode = iota
	// ModePooled sends envelopes over pooled persistent connections.
	ModePooled
)

func (m Mode) String() string {
	switch m {
	case ModeOneShot:
		return "oneshot"
	case ModePooled:
		return "pooled"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "oneshot":
		return ModeOneShot, nil
	case "pooled":
		return ModePooled, nil
	default:
		return 0, fmt.Errorf("client: unknown mode %q", s)
	}
}

var (
	// ErrServer is the category of every failure reported by or read from a server.
	ErrServer = errors.New("client: server error")
	// ErrNoAddress means neither a static address nor a registry was configured.
	ErrNoAddress = errors.New("client: no server address")
)

// CallError is the server's error signal. It carries no detail beyond which
// call failed; it matches both ErrServer and protocol.ErrCallFailed.
type CallError struct {
	Call string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("client: server failed %s", e.Call)
}

func (e *CallError) Is(target error) bool {
	return target == ErrServer || target == protocol.ErrCallFailed
}

type Client struct {
	addr   string
	mode   Mode
	table  *operation.Table
	dialer transport.Dialer
	limits protocol.Limits
	logger zerolog.Logger

	registry    registry.Registry
	serviceName string
	balancer    loadbalance.Balancer
	stopWatch   context.CancelFunc

	instMu    sync.RWMutex
	instances []registry.ServiceInstance // latest list from the registry watch

	poolSize int
	mu       sync.Mutex
	pools    map[string]*transport.ConnPool // pooled mode, one per server address
}

type Option func(*Client)

func WithMode(mode Mode) Option {
	return func(c *Client) { c.mode = mode }
}

func WithPoolSize(n int) Option {
	return func(c *Client) { c.poolSize = n }
}

func WithTable(table *operation.Table) Option {
	return func(c *Client) { c.table = table }
}

func WithDialer(d transport.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

func WithLimits(limits protocol.Limits) Option {
	return func(c *Client) { c.limits = limits }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithDiscovery resolves the server per call from reg instead of a fixed address.
// The client keeps a watched copy of the instance list and only queries reg
// directly while that copy is empty.
func WithDiscovery(reg registry.Registry, serviceName string, bal loadbalance.Balancer) Option {
	return func(c *Client) {
		c.registry = reg
		c.serviceName = serviceName
		c.balancer = bal
	}
}

// NewClient returns a client for addr. addr may be empty when WithDiscovery is given.
func NewClient(addr string, opts ...Option) *Client {
	c := &Client{
		addr:     addr,
		table:    operation.Default(),
		dialer:   &net.Dialer{},
		limits:   protocol.DefaultLimits(),
		logger:   zerolog.Nop(),
		poolSize: 4,
		pools:    make(map[string]*transport.ConnPool),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.balancer == nil {
		c.balancer = &loadbalance.RoundRobinBalancer{}
	}
	if c.registry != nil {
		c.watch()
	}
	return c
}

// watch keeps c.instances in step with the registry until Close.
func (c *Client) watch() {
	ctx, cancel := context.WithCancel(context.Background())
	c.stopWatch = cancel
	updates := c.registry.Watch(ctx, c.serviceName)

	go func() {
		// Watches only report changes; seed the list once subscribed.
		if instances, err := c.registry.Discover(ctx, c.serviceName); err == nil {
			c.setInstances(instances)
		}
		for instances := range updates {
			c.setInstances(instances)
			c.logger.Debug().
				Str("service", c.serviceName).
				Int("instances", len(instances)).
				Msg("service instances changed")
		}
		// The watch is gone; fall back to querying the registry per call.
		c.setInstances(nil)
	}()
}

func (c *Client) setInstances(instances []registry.ServiceInstance) {
	c.instMu.Lock()
	c.instances = instances
	c.instMu.Unlock()
}

func (c *Client) cachedInstances() []registry.ServiceInstance {
	c.instMu.RLock()
	defer c.instMu.RUnlock()
	return c.instances
}

// Call performs callName ("get_x" or "set_x") with an optional value and
// returns the decoded return value.
func (c *Client) Call(ctx context.Context, callName string, value any) (any, error) {
	req, err := protocol.NewRequest(c.table, callName, value)
	if err != nil {
		return nil, err
	}
	addr, err := c.resolve(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.exchange(ctx, addr, req)
	if err != nil {
		return nil, err
	}

	name, ret, err := resp.ResolveReturn(c.table)
	switch {
	case errors.Is(err, protocol.ErrCallFailed):
		c.logger.Debug().Str("call", callName).Str("addr", addr).Msg("server sent error signal")
		return nil, &CallError{Call: callName}
	case err != nil:
		return nil, fmt.Errorf("%w: %s: %w", ErrServer, callName, err)
	case name != callName:
		return nil, fmt.Errorf("%w: %w: %s answered with %s", ErrServer, operation.ErrProtocol, callName, name)
	}
	return ret, nil
}

func (c *Client) exchange(ctx context.Context, addr string, req protocol.Request) (protocol.Response, error) {
	if c.mode == ModePooled {
		pool := c.pool(addr)
		t, err := pool.Get(ctx)
		if err != nil {
			return protocol.Response{}, err
		}
		body, err := t.RoundTrip(ctx, req.Bytes())
		pool.Put(t)
		if err != nil {
			return protocol.Response{}, err
		}
		ev, err := protocol.DecodeEvent(body)
		if err != nil {
			return protocol.Response{}, fmt.Errorf("%w: %w", ErrServer, err)
		}
		return protocol.Response{Event: ev}, nil
	}

	raw, err := transport.Exchange(ctx, c.dialer, addr, req.Encode())
	if err != nil {
		return protocol.Response{}, err
	}
	resp, err := protocol.ParseResponse(raw)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("%w: %w", ErrServer, err)
	}
	return resp, nil
}

func (c *Client) resolve(ctx context.Context) (string, error) {
	if c.registry == nil {
		if c.addr == "" {
			return "", ErrNoAddress
		}
		return c.addr, nil
	}
	instances := c.cachedInstances()
	if len(instances) == 0 {
		var err error
		if instances, err = c.registry.Discover(ctx, c.serviceName); err != nil {
			return "", err
		}
	}
	inst, err := c.balancer.Pick(instances)
	if err != nil {
		return "", fmt.Errorf("client: %s: %w", c.serviceName, err)
	}
	return inst.Addr, nil
}

func (c *Client) pool(addr string) *transport.ConnPool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pools[addr]
	if !ok {
		p = transport.NewConnPool(addr, c.poolSize, c.dialer, c.limits)
		c.pools[addr] = p
	}
	return p
}

// Close stops the registry watch and releases pooled connections.
func (c *Client) Close() error {
	if c.stopWatch != nil {
		c.stopWatch()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for addr, p := range c.pools {
		p.Close()
		delete(c.pools, addr)
	}
	return nil
}
