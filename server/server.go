// Package server runs the spectrometer remote-call server.
//
// Request processing pipeline:
//
//	Accept conn → handleConn (one goroutine per connection, peeks the first byte)
//	  line:     ReadLine → handleEvent → write response + '\n' → close
//	  envelope: loop { Decode → handleEvent → Encode with the same seq }
//
// handleEvent decodes the request into a message.Call, runs the middleware
// chain around the session dispatcher and encodes the Result. Every failure
// on the way becomes the opaque error signal; the cause is only logged.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"spectro-rpc/device"
	"spectro-rpc/middleware"
	"spectro-rpc/observability"
	"spectro-rpc/operation"
	"spectro-rpc/protocol"
	"spectro-rpc/registry"
	"spectro-rpc/session"
)

const (
	modeLine     = "line"
	modeEnvelope = "envelope"
)

// Server serves one backend to any number of connections. All connections
// share a single session.
type Server struct {
	session     *session.Manager
	table       *operation.Table
	limits      protocol.Limits
	logger      zerolog.Logger
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc // middleware(...(businessHandler)), built in Serve

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}

	wg       sync.WaitGroup // in-flight exchanges
	shutdown atomic.Bool

	registry      registry.Registry
	serviceName   string
	advertiseAddr string
	ttl           int64
}

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

func WithLimits(limits protocol.Limits) Option {
	return func(s *Server) { s.limits = limits }
}

func WithTable(table *operation.Table) Option {
	return func(s *Server) { s.table = table }
}

// WithRegistry advertises the server under serviceName while it serves.
// An empty advertiseAddr falls back to the listener's address.
func WithRegistry(reg registry.Registry, serviceName, advertiseAddr string, ttl int64) Option {
	return func(s *Server) {
		s.registry = reg
		s.serviceName = serviceName
		s.advertiseAddr = advertiseAddr
		s.ttl = ttl
	}
}

func NewServer(backend device.Backend, opts ...Option) *Server {
	s := &Server{
		table:  operation.Default(),
		limits: protocol.DefaultLimits(),
		logger: zerolog.Nop(),
		conns:  make(map[net.Conn]struct{}),
		ttl:    10,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.session = session.NewManager(backend, s.table)
	return s
}

// Session exposes the shared session, e.g. to the admin endpoints.
func (svr *Server) Session() *session.Manager {
	return svr.session
}

// Use registers a middleware. Middlewares run in the order they are added and
// must be registered before Serve.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Serve listens on address and serves until Shutdown.
func (svr *Server) Serve(network, address string) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return svr.ServeListener(listener)
}

// ServeListener serves connections accepted from listener until Shutdown,
// after which it returns nil.
func (svr *Server) ServeListener(listener net.Listener) error {
	svr.mu.Lock()
	svr.listener = listener
	svr.mu.Unlock()
	if svr.shutdown.Load() {
		listener.Close()
		return nil
	}

	svr.handler = middleware.Chain(svr.middlewares...)(svr.businessHandler)

	if err := svr.advertise(listener.Addr().String()); err != nil {
		listener.Close()
		return err
	}
	svr.logger.Info().Str("addr", listener.Addr().String()).Msg("serving")

	for {
		conn, err := listener.Accept()
		if err != nil {
			// Closing the listener in Shutdown makes Accept fail; that is not an error.
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		if !svr.track(conn) {
			conn.Close()
			continue
		}
		go svr.handleConn(conn)
	}
}

// Addr returns the listener address, or nil before Serve.
func (svr *Server) Addr() net.Addr {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.listener == nil {
		return nil
	}
	return svr.listener.Addr()
}

func (svr *Server) advertise(listenAddr string) error {
	if svr.registry == nil {
		return nil
	}
	if svr.advertiseAddr == "" {
		svr.advertiseAddr = listenAddr
	}
	devices, err := svr.session.Devices()
	if err != nil {
		svr.logger.Warn().Err(err).Msg("could not list devices for registration")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = svr.registry.Register(ctx, svr.serviceName, registry.ServiceInstance{
		ID:      uuid.NewString(),
		Addr:    svr.advertiseAddr,
		Weight:  1,
		Version: fmt.Sprint(protocol.Version),
		Devices: devices,
	}, svr.ttl)
	if err != nil {
		return fmt.Errorf("server: register %s: %w", svr.advertiseAddr, err)
	}
	svr.logger.Info().Str("service", svr.serviceName).Str("advertise", svr.advertiseAddr).Msg("registered")
	return nil
}

func (svr *Server) track(conn net.Conn) bool {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.shutdown.Load() {
		return false
	}
	svr.conns[conn] = struct{}{}
	return true
}

func (svr *Server) untrack(conn net.Conn) {
	svr.mu.Lock()
	delete(svr.conns, conn)
	svr.mu.Unlock()
}

// peer identifies a connection in calls and log lines.
type peer struct {
	id     string
	logger zerolog.Logger
}

// handleConn picks the framing discipline from the first byte and serves the
// connection with it.
func (svr *Server) handleConn(conn net.Conn) {
	defer func() {
		conn.Close()
		svr.untrack(conn)
	}()

	id := uuid.NewString()
	logger := svr.logger.With().
		Str("conn", id).
		Str("remote", conn.RemoteAddr().String()).
		Logger()

	br := bufio.NewReader(conn)
	first, err := br.Peek(1)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			logger.Debug().Err(err).Msg("connection closed before first byte")
		}
		return
	}

	if protocol.IsEnvelope(first[0]) {
		observability.RecordConnection(modeEnvelope)
		svr.serveEnvelope(conn, br, peer{id: id, logger: logger.With().Str("mode", modeEnvelope).Logger()})
		return
	}
	observability.RecordConnection(modeLine)
	svr.serveLine(conn, br, peer{id: id, logger: logger.With().Str("mode", modeLine).Logger()})
}

// serveLine answers exactly one request, then the deferred close tells the
// client the response is complete.
func (svr *Server) serveLine(conn net.Conn, br *bufio.Reader, p peer) {
	frame, err := protocol.ReadLine(br, svr.limits)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		if errors.Is(err, operation.ErrProtocol) {
			p.logger.Warn().Err(err).Msg("unreadable request, sending error signal")
			observability.RecordProtocolError()
			conn.Write(protocol.ErrorResponse().Encode())
			return
		}
		p.logger.Debug().Err(err).Msg("read request")
		return
	}

	if !svr.begin() {
		p.logger.Debug().Msg("shutting down, refusing request")
		conn.Write(protocol.ErrorResponse().Encode())
		return
	}
	defer svr.wg.Done()

	var resp protocol.Response
	if ev, err := protocol.ParseEvent(frame); err != nil {
		resp = svr.reject(p, err)
	} else {
		resp = svr.handleEvent(p, ev)
	}
	if _, err := conn.Write(resp.Encode()); err != nil {
		p.logger.Debug().Err(err).Msg("write response")
	}
}

// serveEnvelope answers envelopes in order, echoing each request's seq, until
// the peer closes or sends something unreadable.
func (svr *Server) serveEnvelope(conn net.Conn, br *bufio.Reader, p peer) {
	for {
		header, body, err := protocol.Decode(br, svr.limits)
		if err != nil {
			if !errors.Is(err, io.EOF) && !svr.shutdown.Load() {
				p.logger.Warn().Err(err).Msg("unreadable envelope, closing")
				observability.RecordProtocolError()
			}
			return
		}
		if header.MsgType != protocol.MsgTypeRequest {
			p.logger.Warn().Uint32("seq", header.Seq).Msg("response envelope sent to server, closing")
			return
		}

		if !svr.exchangeEnvelope(conn, header.Seq, body, p) {
			return
		}
	}
}

func (svr *Server) exchangeEnvelope(conn net.Conn, seq uint32, body []byte, p peer) bool {
	if !svr.begin() {
		p.logger.Debug().Uint32("seq", seq).Msg("shutting down, dropping request")
		return false
	}
	defer svr.wg.Done()

	var resp protocol.Response
	if ev, err := protocol.DecodeEvent(body); err != nil {
		resp = svr.reject(p, err)
	} else {
		resp = svr.handleEvent(p, ev)
	}

	reply := protocol.Header{MsgType: protocol.MsgTypeResponse, Seq: seq}
	if err := protocol.Encode(conn, &reply, resp.Bytes()); err != nil {
		p.logger.Debug().Err(err).Uint32("seq", seq).Msg("write response")
		return false
	}
	return true
}

// begin registers an in-flight exchange. It fails once Shutdown has started,
// so Shutdown's wait never races a late Add.
func (svr *Server) begin() bool {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.shutdown.Load() {
		return false
	}
	svr.wg.Add(1)
	return true
}

// Shutdown stops the server:
//  1. deregister, so discovering clients stop picking this server
//  2. flag shutdown, then close the listener
//  3. wait for in-flight exchanges, bounded by timeout
//  4. close the connections still open (idle envelope connections)
func (svr *Server) Shutdown(timeout time.Duration) error {
	if svr.registry != nil && svr.advertiseAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := svr.registry.Deregister(ctx, svr.serviceName, svr.advertiseAddr); err != nil {
			svr.logger.Warn().Err(err).Msg("deregister")
		}
		cancel()
	}

	svr.mu.Lock()
	svr.shutdown.Store(true)
	if svr.listener != nil {
		svr.listener.Close()
	}
	svr.mu.Unlock()

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("server: timeout waiting for in-flight calls to finish")
	}

	svr.mu.Lock()
	for conn := range svr.conns {
		conn.Close()
	}
	svr.mu.Unlock()
	return err
}
