// Package prober measures reachability and connect latency of backend
// endpoints. A measurement round is a fixed number of raw TCP connect
// attempts; the handshake is the whole payload, no bytes are exchanged.
package prober

import (
	"context"
	"net"
	"time"
)

const (
	// ProbeCount is the number of connect attempts per target per cycle.
	ProbeCount = 10

	// Penalty is the latency charged for a failed attempt when averaging.
	Penalty = 300 * time.Millisecond

	// ConnectTimeout bounds a single connect attempt.
	ConnectTimeout = 1 * time.Second

	// attemptGap is the pause between consecutive attempts against one
	// target, so a round does not hammer the backend's accept queue.
	attemptGap = 10 * time.Millisecond
)

// Sample is the outcome of one connect attempt. Latency is only meaningful
// when Success is true.
type Sample struct {
	Success bool
	Latency time.Duration
}

// Attempt performs a single TCP connect against addr, bounded by timeout,
// and closes the socket immediately on success.
func Attempt(ctx context.Context, addr string, timeout time.Duration) Sample {
	dialer := net.Dialer{Timeout: timeout}

	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Sample{}
	}
	elapsed := time.Since(start)
	conn.Close()

	return Sample{Success: true, Latency: elapsed}
}

// Run performs one full measurement round against addr: ProbeCount
// sequential attempts with a short gap between them. Attempts within a
// round are sequential so each measures an undisturbed handshake; rounds
// for different targets run concurrently in the selector. Run always
// returns ProbeCount samples unless ctx is cancelled mid-round, in which
// case the remaining attempts are reported as failures.
func Run(ctx context.Context, addr string) []Sample {
	samples := make([]Sample, 0, ProbeCount)

	for i := 0; i < ProbeCount; i++ {
		if ctx.Err() != nil {
			for len(samples) < ProbeCount {
				samples = append(samples, Sample{})
			}
			return samples
		}

		samples = append(samples, Attempt(ctx, addr, ConnectTimeout))

		if i < ProbeCount-1 {
			select {
			case <-ctx.Done():
			case <-time.After(attemptGap):
			}
		}
	}

	return samples
}

// ResolveAddr resolves the host part of a "host:port" address once and
// returns the address rewritten with the first resolved IP. Targets
// configured by IP come back unchanged. Resolving once per round keeps all
// attempts of that round, and the subsequent forwarding, on the same
// backend instance even for multi-homed hostnames.
func ResolveAddr(addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}
	if ip := net.ParseIP(host); ip != nil {
		return addr, nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return "", err
	}

	return net.JoinHostPort(ips[0].String(), port), nil
}
