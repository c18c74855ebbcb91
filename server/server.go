// Package server implements the forwarding listener. It accepts client
// connections, snapshots the currently selected route, dials the backend
// and relays bytes in both directions until either side finishes.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"optipath/logger"
	"optipath/pkg/metrics"
	"optipath/pkg/selector"
)

// acceptRetryDelay is the pause after a transient accept error, long
// enough to let a descriptor-exhaustion condition clear.
const acceptRetryDelay = 100 * time.Millisecond

// ServerOptions configures a forwarding Server.
type ServerOptions struct {
	// Addr is the listen address, host:port.
	Addr string
	// Routes provides the active route snapshot per accepted connection.
	Routes *selector.State
	// ProxyProtocol enables sending a PROXY v2 header on each backend
	// connection before relaying payload bytes.
	ProxyProtocol bool
	// ConnectTimeout bounds the backend dial.
	ConnectTimeout time.Duration
	// Health, when set, records outbound dial outcomes per target.
	Health *BackendHealth
}

// Server is a TCP forwarder. The route is fixed per connection at accept
// time; a later route switch affects new connections only.
type Server struct {
	addr           string
	routes         *selector.State
	proxyProtocol  bool
	connectTimeout time.Duration

	health *BackendHealth

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

func New(opts ServerOptions) *Server {
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	health := opts.Health
	if health == nil {
		health = NewBackendHealth()
	}
	return &Server{
		addr:           opts.Addr,
		routes:         opts.Routes,
		proxyProtocol:  opts.ProxyProtocol,
		connectTimeout: timeout,
		health:         health,
	}
}

// Addr returns the bound listen address, or nil before Start has bound.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds the listener and serves until ctx is cancelled. A bind
// failure is returned immediately; callers treat it as fatal.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	logger.Info("forwarder listening", "addr", s.addr, "proxy_protocol", s.proxyProtocol)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.acceptConnections(ctx, listener)
	s.wg.Wait()
	return nil
}

func (s *Server) acceptConnections(ctx context.Context, listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				logger.Info("forwarder shutting down", "addr", s.addr)
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				logger.Info("forwarder listener closed", "addr", s.addr)
				return
			}
			// Transient accept errors (EMFILE, aborted handshakes) must not
			// take the data plane down; the listener itself is still healthy.
			logger.Warn("failed to accept connection", "addr", s.addr, "error", err)
			time.Sleep(acceptRetryDelay)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.Error("panic handling connection", "remote", GetAddrString(conn.RemoteAddr()), "panic", r)
					conn.Close()
				}
			}()
			s.handleConnection(ctx, conn)
		}()
	}
}

// handleConnection snapshots the route, dials the backend and relays.
// Failures close the client connection; there is no in-connection retry
// or failover, the next probe cycle is the recovery path.
func (s *Server) handleConnection(ctx context.Context, clientConn net.Conn) {
	metrics.ConnectionsTotal.Inc()
	metrics.ConnectionsCurrent.Inc()
	defer metrics.ConnectionsCurrent.Dec()

	remote := GetAddrString(clientConn.RemoteAddr())

	route := s.routes.Current()
	if route == nil {
		metrics.ConnectionsRejected.WithLabelValues("no_route").Inc()
		logger.Warn("no route available, closing client", "remote", remote)
		clientConn.Close()
		return
	}

	dialer := net.Dialer{Timeout: s.connectTimeout}
	backendConn, err := dialer.DialContext(ctx, "tcp", route.Addr)
	if err != nil {
		metrics.OutboundConnects.WithLabelValues(route.Name, "failure").Inc()
		metrics.ConnectionsRejected.WithLabelValues("dial_failure").Inc()
		s.health.RecordFailure(route.Name, err)
		logger.Warn("backend dial failed, closing client",
			"remote", remote,
			"target", route.Name,
			"addr", route.Addr,
			"error", err)
		clientConn.Close()
		return
	}
	metrics.OutboundConnects.WithLabelValues(route.Name, "success").Inc()
	s.health.RecordSuccess(route.Name)

	if tcpConn, ok := clientConn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}
	if tcpConn, ok := backendConn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}

	if s.proxyProtocol {
		if err := WriteProxyV2Header(backendConn, clientConn); err != nil {
			logger.Warn("PROXY header write failed, closing client",
				"remote", remote,
				"target", route.Name,
				"error", err)
			backendConn.Close()
			clientConn.Close()
			return
		}
	}

	logger.Debug("forwarding connection", "remote", remote, "target", route.Name, "addr", route.Addr)

	session := newSession(clientConn, backendConn, route.Name)
	session.run(ctx)
}
