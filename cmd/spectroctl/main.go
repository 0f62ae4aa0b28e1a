// Command spectroctl performs one remote call against spectrod and prints the
// result.
//
//	spectroctl [flags] <call> [value]
//	spectroctl get_intensities
//	spectroctl -mode pooled set_integration_time_micros 10000
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"spectro-rpc/client"
	"spectro-rpc/codec"
	"spectro-rpc/config"
	"spectro-rpc/loadbalance"
	"spectro-rpc/observability"
	"spectro-rpc/operation"
	"spectro-rpc/registry"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "spectroctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("spectroctl", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a spectroctl TOML config")
	addr := fs.String("addr", "", "server address (overrides config)")
	mode := fs.String("mode", "", "oneshot or pooled (overrides config)")
	timeout := fs.Duration("timeout", 0, "give up after this long; 0 waits for the server")
	initPath := fs.String("init", "", "write a config template to this path and exit")
	list := fs.Bool("list", false, "print the available calls and exit")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: spectroctl [flags] <call> [value]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	table := operation.Default()
	if *initPath != "" {
		if err := config.WriteTemplate(*initPath, "client", false); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote client config template to %s\n", *initPath)
		return nil
	}
	if *list {
		printCalls(out, table)
		return nil
	}

	cfg := config.DefaultClientConfig()
	if *configPath != "" {
		loaded, err := config.LoadClient(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "mode":
			cfg.Mode = *mode
		case "timeout":
			cfg.Timeout = *timeout
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	if fs.NArg() < 1 || fs.NArg() > 2 {
		fs.Usage()
		return errors.New("expected a call name and at most one value")
	}
	callName := fs.Arg(0)
	value, err := parseValue(table, callName, fs.Args()[1:])
	if err != nil {
		return err
	}

	c, closeClient, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer closeClient()

	ctx := context.Background()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	ret, err := c.Call(ctx, callName, value)
	if err != nil {
		return err
	}
	printValue(out, ret)
	return nil
}

func newClient(cfg config.ClientConfig) (*client.Client, func(), error) {
	mode, err := client.ParseMode(cfg.Mode)
	if err != nil {
		return nil, nil, err
	}
	logger := observability.InitLogger("spectroctl", cfg.Log)
	opts := []client.Option{
		client.WithMode(mode),
		client.WithPoolSize(cfg.PoolSize),
		client.WithLogger(logger),
	}
	cleanup := func() {}

	if len(cfg.Registry.Endpoints) > 0 {
		reg, err := registry.NewEtcdRegistry(cfg.Registry.Endpoints, cfg.Registry.DialTimeout)
		if err != nil {
			return nil, nil, err
		}
		key := cfg.AffinityKey
		if key == "" {
			key, _ = os.Hostname()
		}
		bal, err := loadbalance.New(cfg.Balancer, key)
		if err != nil {
			reg.Close()
			return nil, nil, err
		}
		opts = append(opts, client.WithDiscovery(reg, cfg.ServiceName, bal))
		cleanup = func() { reg.Close() }
	}

	c := client.NewClient(cfg.Addr, opts...)
	return c, func() {
		c.Close()
		cleanup()
	}, nil
}

// parseValue converts the command-line value with the call's argument codec.
func parseValue(table *operation.Table, callName string, args []string) (any, error) {
	dir, d, err := table.Resolve(callName)
	if err != nil {
		return nil, err
	}
	argCodec, err := d.ArgCodec(dir)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		if argCodec.Type() != codec.CodecTypeEmpty {
			return nil, fmt.Errorf("%s needs a value", callName)
		}
		return nil, nil
	}

	raw := args[0]
	switch argCodec.Type() {
	case codec.CodecTypeEmpty:
		return nil, fmt.Errorf("%s takes no value", callName)
	case codec.CodecTypeInteger:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not an integer", callName, raw)
		}
		return n, nil
	case codec.CodecTypeArray:
		fields := strings.Split(raw, ",")
		values := make([]float64, len(fields))
		for i, f := range fields {
			if values[i], err = strconv.ParseFloat(strings.TrimSpace(f), 64); err != nil {
				return nil, fmt.Errorf("%s: %q is not a number", callName, f)
			}
		}
		return values, nil
	default:
		return raw, nil
	}
}

func printValue(out io.Writer, v any) {
	switch v := v.(type) {
	case nil:
	case []float64:
		for _, f := range v {
			fmt.Fprintln(out, strconv.FormatFloat(f, 'g', -1, 64))
		}
	default:
		fmt.Fprintln(out, v)
	}
}

func printCalls(out io.Writer, table *operation.Table) {
	for _, d := range table.Descriptors() {
		for _, dir := range []operation.Direction{operation.DirectionGet, operation.DirectionSet} {
			if !d.Supports(dir) {
				continue
			}
			argCodec, _ := d.ArgCodec(dir)
			retCodec, _ := d.ReturnCodec(dir)
			fmt.Fprintf(out, "%-30s %-8s -> %s\n", operation.CallName(dir, d.Name), argCodec.Type(), retCodec.Type())
		}
	}
}
