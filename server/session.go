package server

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"optipath/logger"
	"optipath/pkg/metrics"
)

// session relays bytes between a client and a backend connection.
type session struct {
	clientConn  net.Conn
	backendConn net.Conn
	target      string
	started     time.Time
}

func newSession(clientConn, backendConn net.Conn, target string) *session {
	return &session{
		clientConn:  clientConn,
		backendConn: backendConn,
		target:      target,
		started:     time.Now(),
	}
}

// run copies in both directions until both sides are done. When one
// direction hits EOF the write side of its peer is half-closed, so the
// other direction can still drain. Cancellation tears both sides down.
func (s *session) run(ctx context.Context) {
	defer s.clientConn.Close()
	defer s.backendConn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.clientConn.Close()
			s.backendConn.Close()
		case <-done:
		}
	}()

	errChan := make(chan error, 2)
	var clientToBackend, backendToClient int64

	go func() {
		n, err := io.Copy(s.backendConn, s.clientConn)
		clientToBackend = n
		closeWrite(s.backendConn)
		errChan <- err
	}()

	go func() {
		n, err := io.Copy(s.clientConn, s.backendConn)
		backendToClient = n
		closeWrite(s.clientConn)
		errChan <- err
	}()

	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-errChan; err != nil && firstErr == nil && !isClosingError(err) {
			firstErr = err
		}
	}

	duration := time.Since(s.started)
	metrics.ConnectionDuration.Observe(duration.Seconds())
	metrics.BytesThroughput.WithLabelValues("in").Add(float64(clientToBackend))
	metrics.BytesThroughput.WithLabelValues("out").Add(float64(backendToClient))

	if firstErr != nil {
		logger.Debug("session ended with error",
			"remote", GetAddrString(s.clientConn.RemoteAddr()),
			"target", s.target,
			"error", firstErr)
		return
	}
	logger.Debug("session completed",
		"remote", GetAddrString(s.clientConn.RemoteAddr()),
		"target", s.target,
		"bytes_in", clientToBackend,
		"bytes_out", backendToClient,
		"duration", duration)
}

// closeWrite half-closes the write side of conn so the peer sees EOF
// while its own writes can still drain.
func closeWrite(conn net.Conn) {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.CloseWrite()
		return
	}
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite()
	}
}

// isClosingError reports whether err is an expected teardown error.
func isClosingError(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
