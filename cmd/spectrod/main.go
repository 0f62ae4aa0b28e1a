// Command spectrod serves spectrometers over the remote-call protocol.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"spectro-rpc/admin"
	"spectro-rpc/config"
	"spectro-rpc/device/emulator"
	"spectro-rpc/middleware"
	"spectro-rpc/observability"
	"spectro-rpc/protocol"
	"spectro-rpc/registry"
	"spectro-rpc/server"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "spectrod: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("spectrod", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a spectrod TOML config")
	addr := fs.String("addr", "", "listen address (overrides config)")
	emulate := fs.Bool("emulate", true, "serve emulated spectrometers")
	devices := fs.Int("devices", 0, "number of emulated spectrometers (overrides config)")
	initPath := fs.String("init", "", "write a config template to this path and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *initPath != "" {
		if err := config.WriteTemplate(*initPath, "server", false); err != nil {
			return err
		}
		fmt.Printf("wrote server config template to %s\n", *initPath)
		return nil
	}

	cfg := config.DefaultServerConfig()
	if *configPath != "" {
		loaded, err := config.LoadServer(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "emulate":
			cfg.Backend.Emulate = *emulate
		case "devices":
			cfg.Backend.Devices = *devices
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := observability.InitLogger("spectrod", cfg.Log)
	observability.RegisterMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serve(ctx, cfg, logger)
}

func serve(ctx context.Context, cfg config.ServerConfig, logger zerolog.Logger) error {
	backend := emulator.New(emulator.Options{
		Devices:      cfg.Backend.Devices,
		Seed:         cfg.Backend.Seed,
		AcquireDelay: cfg.Backend.AcquireDelay,
	})

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithLimits(protocol.Limits{MaxFrameBytes: cfg.MaxFrameBytes}),
	}
	if len(cfg.Registry.Endpoints) > 0 {
		reg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints, cfg.Registry.DialTimeout)
		if err != nil {
			return err
		}
		defer reg.Close()
		opts = append(opts, server.WithRegistry(reg, cfg.ServiceName, cfg.AdvertiseAddr, cfg.Registry.TTL))
	}

	svr := server.NewServer(backend, opts...)
	svr.Use(middleware.Logging(logger))
	svr.Use(middleware.Metrics())
	if cfg.Limits.Rate > 0 {
		svr.Use(middleware.RateLimit(cfg.Limits.Rate, cfg.Limits.Burst))
	}
	if cfg.Limits.CallTimeout > 0 {
		svr.Use(middleware.Timeout(cfg.Limits.CallTimeout, logger))
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() { errCh <- svr.ServeListener(listener) }()

	var adm *admin.Server
	if cfg.Admin.Addr != "" {
		adminListener, err := net.Listen("tcp", cfg.Admin.Addr)
		if err != nil {
			svr.Shutdown(cfg.ShutdownTimeout)
			return fmt.Errorf("admin listen: %w", err)
		}
		adm = admin.New(svr.Session(), logger)
		go func() { errCh <- adm.Serve(adminListener) }()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error().Err(serveErr).Msg("serve failed")
		}
	}

	shutdownErr := svr.Shutdown(cfg.ShutdownTimeout)
	if adm != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		shutdownErr = errors.Join(shutdownErr, adm.Shutdown(shutdownCtx))
	}
	if shutdownErr != nil {
		logger.Warn().Err(shutdownErr).Dur("timeout", cfg.ShutdownTimeout).Msg("unclean shutdown")
	}
	return serveErr
}
