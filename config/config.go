// Package config loads spectrod and spectroctl TOML files.
//
// Every key is optional: loading starts from the defaults and only keys present
// in the file override them.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"spectro-rpc/observability"
)

var ErrInvalid = errors.New("config: invalid")

type ServerConfig struct {
	Addr            string
	AdvertiseAddr   string
	ServiceName     string
	MaxFrameBytes   int
	ShutdownTimeout time.Duration
	Backend         BackendConfig
	Registry        RegistryConfig
	Limits          LimitsConfig
	Admin           AdminConfig
	Log             observability.LogConfig
}

type BackendConfig struct {
	Emulate      bool
	Devices      int
	Seed         uint64
	AcquireDelay float64
}

// RegistryConfig enables etcd registration when Endpoints is non-empty.
type RegistryConfig struct {
	Endpoints   []string
	TTL         int64 // seconds
	DialTimeout time.Duration
}

// LimitsConfig: a zero Rate disables rate limiting, a zero CallTimeout
// disables the call timeout.
type LimitsConfig struct {
	Rate        float64
	Burst       int
	CallTimeout time.Duration
}

// AdminConfig enables the HTTP admin endpoints when Addr is non-empty.
type AdminConfig struct {
	Addr string
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            "127.0.0.1:7500",
		ServiceName:     "spectrod",
		MaxFrameBytes:   8 * 1024 * 1024,
		ShutdownTimeout: 5 * time.Second,
		Backend: BackendConfig{
			Emulate:      true,
			Devices:      1,
			AcquireDelay: 1,
		},
		Registry: RegistryConfig{
			TTL:         10,
			DialTimeout: 3 * time.Second,
		},
		Limits: LimitsConfig{Burst: 1},
		Log:    observability.DefaultLogConfig(),
	}
}

func (c ServerConfig) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Addr) == "" {
		problems = append(problems, "addr is empty")
	}
	if c.MaxFrameBytes < 16 {
		problems = append(problems, fmt.Sprintf("max_frame_bytes %d is too small", c.MaxFrameBytes))
	}
	if c.ShutdownTimeout <= 0 {
		problems = append(problems, "shutdown_timeout must be positive")
	}
	if !c.Backend.Emulate {
		problems = append(problems, "backend.emulate = false: no hardware backend is built in")
	}
	if c.Backend.Devices < 1 {
		problems = append(problems, "backend.devices must be at least 1")
	}
	if c.Backend.AcquireDelay < 0 {
		problems = append(problems, "backend.acquire_delay must not be negative")
	}
	if len(c.Registry.Endpoints) > 0 {
		if c.Registry.TTL < 1 {
			problems = append(problems, "registry.ttl must be at least 1 second")
		}
		if strings.TrimSpace(c.ServiceName) == "" {
			problems = append(problems, "service_name is required with a registry")
		}
	}
	if c.Limits.Rate < 0 || (c.Limits.Rate > 0 && c.Limits.Burst < 1) {
		problems = append(problems, "limits.rate must be >= 0 and limits.burst >= 1 when rate is set")
	}
	if c.Limits.CallTimeout < 0 {
		problems = append(problems, "limits.call_timeout must not be negative")
	}
	if _, ok := observability.ParseLevel(c.Log.Level); !ok {
		problems = append(problems, fmt.Sprintf("log.level %q is unknown", c.Log.Level))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

type serverFile struct {
	Addr            string                  `toml:"addr"`
	AdvertiseAddr   string                  `toml:"advertise_addr"`
	ServiceName     string                  `toml:"service_name"`
	MaxFrameBytes   int                     `toml:"max_frame_bytes"`
	ShutdownTimeout string                  `toml:"shutdown_timeout"`
	Backend         backendFile             `toml:"backend"`
	Registry        registryFile            `toml:"registry"`
	Limits          limitsFile              `toml:"limits"`
	Admin           adminFile               `toml:"admin"`
	Log             observability.LogConfig `toml:"log"`
}

type backendFile struct {
	Emulate      bool    `toml:"emulate"`
	Devices      int     `toml:"devices"`
	Seed         uint64  `toml:"seed"`
	AcquireDelay float64 `toml:"acquire_delay"`
}

type limitsFile struct {
	Rate        float64 `toml:"rate"`
	Burst       int     `toml:"burst"`
	CallTimeout string  `toml:"call_timeout"`
}

type adminFile struct {
	Addr string `toml:"addr"`
}

type registryFile struct {
	Endpoints   []string `toml:"endpoints"`
	TTL         int64    `toml:"ttl"`
	DialTimeout string   `toml:"dial_timeout"`
}

// LoadServer reads a spectrod config file over DefaultServerConfig and validates it.
func LoadServer(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()

	var raw serverFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ServerConfig{}, fmt.Errorf("load server config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return ServerConfig{}, fmt.Errorf("%w: unknown key %s", ErrInvalid, undecoded[0])
	}

	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("advertise_addr") {
		cfg.AdvertiseAddr = strings.TrimSpace(raw.AdvertiseAddr)
	}
	if meta.IsDefined("service_name") {
		cfg.ServiceName = strings.TrimSpace(raw.ServiceName)
	}
	if meta.IsDefined("max_frame_bytes") {
		cfg.MaxFrameBytes = raw.MaxFrameBytes
	}
	if meta.IsDefined("shutdown_timeout") {
		if cfg.ShutdownTimeout, err = parseDuration("shutdown_timeout", raw.ShutdownTimeout); err != nil {
			return ServerConfig{}, err
		}
	}

	if meta.IsDefined("backend", "emulate") {
		cfg.Backend.Emulate = raw.Backend.Emulate
	}
	if meta.IsDefined("backend", "devices") {
		cfg.Backend.Devices = raw.Backend.Devices
	}
	if meta.IsDefined("backend", "seed") {
		cfg.Backend.Seed = raw.Backend.Seed
	}
	if meta.IsDefined("backend", "acquire_delay") {
		cfg.Backend.AcquireDelay = raw.Backend.AcquireDelay
	}

	if err := applyRegistry(meta, raw.Registry, &cfg.Registry); err != nil {
		return ServerConfig{}, err
	}

	if meta.IsDefined("limits", "rate") {
		cfg.Limits.Rate = raw.Limits.Rate
	}
	if meta.IsDefined("limits", "burst") {
		cfg.Limits.Burst = raw.Limits.Burst
	}
	if meta.IsDefined("limits", "call_timeout") {
		if cfg.Limits.CallTimeout, err = parseDuration("limits.call_timeout", raw.Limits.CallTimeout); err != nil {
			return ServerConfig{}, err
		}
	}

	if meta.IsDefined("admin", "addr") {
		cfg.Admin.Addr = strings.TrimSpace(raw.Admin.Addr)
	}
	applyLog(meta, raw.Log, &cfg.Log)

	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

type ClientConfig struct {
	Addr        string
	Mode        string // "oneshot" or "pooled"
	PoolSize    int
	Timeout     time.Duration // zero waits as long as the server takes
	ServiceName string
	Balancer    string
	AffinityKey string
	Registry    RegistryConfig
	Log         observability.LogConfig
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Addr:        "127.0.0.1:7500",
		Mode:        "oneshot",
		PoolSize:    4,
		ServiceName: "spectrod",
		Balancer:    "affinity",
		Registry: RegistryConfig{
			DialTimeout: 3 * time.Second,
		},
		Log: observability.LogConfig{Level: "warn"},
	}
}

func (c ClientConfig) Validate() error {
	var problems []string
	switch c.Mode {
	case "oneshot", "pooled":
	default:
		problems = append(problems, fmt.Sprintf("mode %q is not oneshot or pooled", c.Mode))
	}
	if c.PoolSize < 1 {
		problems = append(problems, "pool_size must be at least 1")
	}
	if c.Timeout < 0 {
		problems = append(problems, "timeout must not be negative")
	}
	if len(c.Registry.Endpoints) == 0 && strings.TrimSpace(c.Addr) == "" {
		problems = append(problems, "either addr or registry.endpoints is required")
	}
	switch c.Balancer {
	case "round_robin", "weighted_random", "affinity":
	default:
		problems = append(problems, fmt.Sprintf("balancer %q is unknown", c.Balancer))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

type clientFile struct {
	Addr        string                  `toml:"addr"`
	Mode        string                  `toml:"mode"`
	PoolSize    int                     `toml:"pool_size"`
	Timeout     string                  `toml:"timeout"`
	ServiceName string                  `toml:"service_name"`
	Balancer    string                  `toml:"balancer"`
	AffinityKey string                  `toml:"affinity_key"`
	Registry    registryFile            `toml:"registry"`
	Log         observability.LogConfig `toml:"log"`
}

// LoadClient reads a spectroctl config file over DefaultClientConfig and validates it.
func LoadClient(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()

	var raw clientFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("load client config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return ClientConfig{}, fmt.Errorf("%w: unknown key %s", ErrInvalid, undecoded[0])
	}

	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("mode") {
		cfg.Mode = strings.ToLower(strings.TrimSpace(raw.Mode))
	}
	if meta.IsDefined("pool_size") {
		cfg.PoolSize = raw.PoolSize
	}
	if meta.IsDefined("timeout") {
		if cfg.Timeout, err = parseDuration("timeout", raw.Timeout); err != nil {
			return ClientConfig{}, err
		}
	}
	if meta.IsDefined("service_name") {
		cfg.ServiceName = strings.TrimSpace(raw.ServiceName)
	}
	if meta.IsDefined("balancer") {
		cfg.Balancer = strings.ToLower(strings.TrimSpace(raw.Balancer))
	}
	if meta.IsDefined("affinity_key") {
		cfg.AffinityKey = strings.TrimSpace(raw.AffinityKey)
	}
	if err := applyRegistry(meta, raw.Registry, &cfg.Registry); err != nil {
		return ClientConfig{}, err
	}
	applyLog(meta, raw.Log, &cfg.Log)

	if err := cfg.Validate(); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func applyRegistry(meta toml.MetaData, raw registryFile, cfg *RegistryConfig) error {
	if meta.IsDefined("registry", "endpoints") {
		cfg.Endpoints = normalizeList(raw.Endpoints)
	}
	if meta.IsDefined("registry", "ttl") {
		cfg.TTL = raw.TTL
	}
	if meta.IsDefined("registry", "dial_timeout") {
		d, err := parseDuration("registry.dial_timeout", raw.DialTimeout)
		if err != nil {
			return err
		}
		cfg.DialTimeout = d
	}
	return nil
}

func applyLog(meta toml.MetaData, raw observability.LogConfig, cfg *observability.LogConfig) {
	if meta.IsDefined("log", "level") {
		cfg.Level = strings.TrimSpace(raw.Level)
	}
	if meta.IsDefined("log", "json") {
		cfg.JSON = raw.JSON
	}
	if meta.IsDefined("log", "no_color") {
		cfg.NoColor = raw.NoColor
	}
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
