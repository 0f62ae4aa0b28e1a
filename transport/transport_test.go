package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"spectro-rpc/device/emulator"
	"spectro-rpc/protocol"
	"spectro-rpc/server"
)

func startServer(t *testing.T) string {
	t.Helper()
	svr := server.NewServer(emulator.New(emulator.Options{Devices: 1}), server.WithLogger(zerolog.Nop()))
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go svr.ServeListener(l)
	t.Cleanup(func() { svr.Shutdown(3 * time.Second) })
	return l.Addr().String()
}

// silentListener accepts connections and never answers.
func silentListener(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		l.Close()
		mu.Lock()
		for _, c := range conns {
			c.Close()
		}
		mu.Unlock()
	})
	return l.Addr().String()
}

func closedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestExchange(t *testing.T) {
	addr := startServer(t)

	resp, err := Exchange(context.Background(), &net.Dialer{}, addr, []byte("1c\n"))
	if err != nil {
		t.Fatal(err)
	}
	if string(resp) != "1cEMU00000\n" {
		t.Fatalf("got %q", resp)
	}
}

func TestExchangeDialFailure(t *testing.T) {
	_, err := Exchange(context.Background(), &net.Dialer{}, closedAddr(t), []byte("1c\n"))
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expect ErrTransport, got %v", err)
	}
}

func TestExchangeHonoursDeadline(t *testing.T) {
	addr := silentListener(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := Exchange(ctx, &net.Dialer{}, addr, []byte("1a\n"))
	if !errors.Is(err, ErrTransport) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expect transport deadline error, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("exchange ignored the deadline")
	}
}

func dialTransport(t *testing.T, addr string) *ClientTransport {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	ct := NewClientTransport(conn, protocol.DefaultLimits())
	t.Cleanup(func() { ct.Close() })
	return ct
}

func TestClientTransportSerial(t *testing.T) {
	ct := dialTransport(t, startServer(t))

	cases := []struct {
		req, want string
	}{
		{"1c", "1cEMU00000"},
		{"2050000", "2050000"},
		{"10", "1050000"},
		{"1z", "00"},
	}
	for _, tc := range cases {
		body, err := ct.RoundTrip(context.Background(), []byte(tc.req))
		if err != nil {
			t.Fatal(err)
		}
		if string(body) != tc.want {
			t.Fatalf("%s: expect %q, got %q", tc.req, tc.want, body)
		}
	}
}

func TestClientTransportConcurrent(t *testing.T) {
	ct := dialTransport(t, startServer(t))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			micros := 3000 + n
			req := fmt.Sprintf("20%d", micros)
			body, err := ct.RoundTrip(context.Background(), []byte(req))
			if err != nil {
				t.Errorf("round trip %d: %v", n, err)
				return
			}
			if string(body) != req {
				t.Errorf("expect %q, got %q", req, body)
			}
		}(i)
	}
	wg.Wait()
}

func TestClientTransportBrokenConnection(t *testing.T) {
	client, peer := net.Pipe()
	ct := NewClientTransport(client, protocol.DefaultLimits())

	done := make(chan error, 1)
	go func() {
		_, err := ct.RoundTrip(context.Background(), []byte("1c"))
		done <- err
	}()

	// Read the request, then hang up without answering.
	if _, _, err := protocol.Decode(peer, protocol.DefaultLimits()); err != nil {
		t.Fatal(err)
	}
	peer.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrTransport) {
			t.Fatalf("expect ErrTransport, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending caller not released")
	}
	if ct.Usable() {
		t.Fatal("expect transport unusable after peer hung up")
	}
	if _, err := ct.RoundTrip(context.Background(), []byte("1c")); !errors.Is(err, ErrTransport) {
		t.Fatalf("expect ErrTransport on broken transport, got %v", err)
	}
}

func TestClientTransportContextCancel(t *testing.T) {
	ct := dialTransport(t, silentListener(t))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := ct.RoundTrip(ctx, []byte("1a")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expect deadline exceeded, got %v", err)
	}
}

func TestConnPoolReuseAndLimit(t *testing.T) {
	addr := startServer(t)
	pool := NewConnPool(addr, 2, &net.Dialer{}, protocol.DefaultLimits())
	defer pool.Close()
	ctx := context.Background()

	a, err := pool.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	b, err := pool.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if pool.Len() != 2 {
		t.Fatalf("expect 2 transports, got %d", pool.Len())
	}

	// At the limit, Get waits.
	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := pool.Get(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expect wait to time out, got %v", err)
	}

	pool.Put(a)
	c, err := pool.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if c != a {
		t.Fatal("expect the returned transport to be reused")
	}

	// Broken transports are discarded and their slot is freed.
	b.Close()
	pool.Put(b)
	if pool.Len() != 1 {
		t.Fatalf("expect broken transport discarded, %d left", pool.Len())
	}
	pool.Put(c)

	d, err := pool.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if body, err := d.RoundTrip(ctx, []byte("1c")); err != nil || string(body) != "1cEMU00000" {
		t.Fatalf("pooled round trip: %q, %v", body, err)
	}
	pool.Put(d)
}

func TestConnPoolClosed(t *testing.T) {
	pool := NewConnPool(closedAddr(t), 1, &net.Dialer{}, protocol.DefaultLimits())
	if _, err := pool.Get(context.Background()); !errors.Is(err, ErrTransport) {
		t.Fatalf("expect dial failure, got %v", err)
	}
	if pool.Len() != 0 {
		t.Fatalf("failed dial must release its slot, got %d", pool.Len())
	}
	pool.Close()
	if _, err := pool.Get(context.Background()); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expect ErrPoolClosed, got %v", err)
	}
}
