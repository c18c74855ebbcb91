package server

import (
	"net"
	"strconv"
)

// GetHostPortFromAddr extracts the host and port from a net.Addr.
// If parsing fails, it returns best-effort values.
func GetHostPortFromAddr(addr net.Addr) (string, int) {
	if addr == nil {
		return "", 0
	}
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), 0
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 0
	}
	return host, port
}

// GetAddrString returns the string form of addr, tolerating nil.
func GetAddrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
