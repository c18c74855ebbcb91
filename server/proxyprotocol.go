package server

import (
	"fmt"
	"io"
	"net"

	"optipath/logger"
)

// proxyV2Signature is the fixed 12-byte PROXY protocol v2 preamble.
var proxyV2Signature = []byte{0x0D, 0x0A, 0x0D, 0x0A, 0x00, 0x0D, 0x0A, 0x51, 0x55, 0x49, 0x54, 0x0A}

// ProxyInfo carries the address tuple from a PROXY protocol v2 header.
type ProxyInfo struct {
	SrcIP    string
	DstIP    string
	SrcPort  int
	DstPort  int
	Protocol string          // TCP4 or TCP6
	TLVs     map[byte][]byte // type -> value, empty when none present
}

// GenerateProxyV2HeaderWithTLVs builds a PROXY protocol v2 header with
// optional TLV extensions appended after the address block. Both addresses
// must be IP literals; the address family is IPv4 only when both sides are
// IPv4, otherwise both are encoded as IPv6.
func GenerateProxyV2HeaderWithTLVs(clientIP string, clientPort int, serverIP string, serverPort int, tlvs map[byte][]byte) ([]byte, error) {
	clientAddr := net.ParseIP(clientIP)
	serverAddr := net.ParseIP(serverIP)
	if clientAddr == nil || serverAddr == nil {
		return nil, fmt.Errorf("invalid IP addresses: client=%s, server=%s", clientIP, serverIP)
	}

	header := make([]byte, 16)
	copy(header[0:12], proxyV2Signature)

	// Byte 12: version=2 (high nibble), command=PROXY (low nibble)
	header[12] = 0x21

	var addressFamily byte
	var addressData []byte

	clientV4 := clientAddr.To4()
	serverV4 := serverAddr.To4()

	if clientV4 != nil && serverV4 != nil {
		addressFamily = 0x1 // AF_INET
		addressData = make([]byte, 12)
		copy(addressData[0:4], clientV4)
		copy(addressData[4:8], serverV4)
		addressData[8] = byte(clientPort >> 8)
		addressData[9] = byte(clientPort & 0xFF)
		addressData[10] = byte(serverPort >> 8)
		addressData[11] = byte(serverPort & 0xFF)
	} else {
		addressFamily = 0x2 // AF_INET6
		addressData = make([]byte, 36)
		copy(addressData[0:16], clientAddr.To16())
		copy(addressData[16:32], serverAddr.To16())
		addressData[32] = byte(clientPort >> 8)
		addressData[33] = byte(clientPort & 0xFF)
		addressData[34] = byte(serverPort >> 8)
		addressData[35] = byte(serverPort & 0xFF)
	}

	// Byte 13: address family (high nibble), transport=TCP (low nibble)
	header[13] = (addressFamily << 4) | 0x1

	var tlvData []byte
	for tlvType, tlvValue := range tlvs {
		tlvData = append(tlvData, tlvType, byte(len(tlvValue)>>8), byte(len(tlvValue)&0xFF))
		tlvData = append(tlvData, tlvValue...)
	}

	// Bytes 14-15: address block + TLV length, big endian
	totalLen := len(addressData) + len(tlvData)
	header[14] = byte(totalLen >> 8)
	header[15] = byte(totalLen & 0xFF)

	result := append(header, addressData...)
	return append(result, tlvData...), nil
}

// GenerateProxyV2Header builds a plain PROXY protocol v2 header with no
// TLV extensions, which is what the forwarder sends.
func GenerateProxyV2Header(clientIP string, clientPort int, serverIP string, serverPort int) ([]byte, error) {
	return GenerateProxyV2HeaderWithTLVs(clientIP, clientPort, serverIP, serverPort, nil)
}

// WriteProxyV2Header writes a PROXY protocol v2 header describing conn's
// client to the backend connection. It must be called before any payload
// bytes are relayed.
func WriteProxyV2Header(backend net.Conn, clientConn net.Conn) error {
	clientIP, clientPort := GetHostPortFromAddr(clientConn.RemoteAddr())
	serverIP, serverPort := GetHostPortFromAddr(clientConn.LocalAddr())

	header, err := GenerateProxyV2Header(clientIP, clientPort, serverIP, serverPort)
	if err != nil {
		return fmt.Errorf("failed to generate PROXY v2 header: %w", err)
	}

	if _, err := backend.Write(header); err != nil {
		return fmt.Errorf("failed to write PROXY v2 header: %w", err)
	}

	logger.Debug("sent PROXY v2 header", "client", clientConn.RemoteAddr(), "backend", backend.RemoteAddr())
	return nil
}

// ParseProxyV2Header reads and decodes a PROXY protocol v2 header from r.
func ParseProxyV2Header(r io.Reader) (*ProxyInfo, error) {
	header := make([]byte, 16)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("failed to read PROXY v2 header: %w", err)
	}

	for i, b := range proxyV2Signature {
		if header[i] != b {
			return nil, fmt.Errorf("invalid PROXY v2 signature")
		}
	}

	if header[12] != 0x21 {
		return nil, fmt.Errorf("unsupported PROXY v2 version/command: 0x%02x", header[12])
	}

	addressFamily := header[13] >> 4
	length := (int(header[14]) << 8) | int(header[15])

	addrData := make([]byte, length)
	if _, err := io.ReadFull(r, addrData); err != nil {
		return nil, fmt.Errorf("failed to read PROXY v2 address block: %w", err)
	}

	var info *ProxyInfo
	var addrLen int

	switch addressFamily {
	case 0x1: // AF_INET
		addrLen = 12
		if length < addrLen {
			return nil, fmt.Errorf("insufficient data for IPv4 addresses")
		}
		info = &ProxyInfo{
			SrcIP:    net.IP(addrData[0:4]).String(),
			DstIP:    net.IP(addrData[4:8]).String(),
			SrcPort:  (int(addrData[8]) << 8) | int(addrData[9]),
			DstPort:  (int(addrData[10]) << 8) | int(addrData[11]),
			Protocol: "TCP4",
		}
	case 0x2: // AF_INET6
		addrLen = 36
		if length < addrLen {
			return nil, fmt.Errorf("insufficient data for IPv6 addresses")
		}
		info = &ProxyInfo{
			SrcIP:    net.IP(addrData[0:16]).String(),
			DstIP:    net.IP(addrData[16:32]).String(),
			SrcPort:  (int(addrData[32]) << 8) | int(addrData[33]),
			DstPort:  (int(addrData[34]) << 8) | int(addrData[35]),
			Protocol: "TCP6",
		}
	default:
		return nil, fmt.Errorf("unsupported address family: %d", addressFamily)
	}

	tlvs, err := parseTLVs(addrData[addrLen:])
	if err != nil {
		return nil, err
	}
	info.TLVs = tlvs
	return info, nil
}

// parseTLVs decodes PROXY v2 type-length-value extensions.
func parseTLVs(data []byte) (map[byte][]byte, error) {
	tlvs := make(map[byte][]byte)
	for offset := 0; offset < len(data); {
		if offset+3 > len(data) {
			return nil, fmt.Errorf("truncated TLV header at offset %d", offset)
		}
		tlvType := data[offset]
		tlvLen := (int(data[offset+1]) << 8) | int(data[offset+2])
		offset += 3
		if offset+tlvLen > len(data) {
			return nil, fmt.Errorf("TLV length exceeds available data: type=0x%02x, len=%d", tlvType, tlvLen)
		}
		tlvs[tlvType] = append([]byte(nil), data[offset:offset+tlvLen]...)
		offset += tlvLen
	}
	return tlvs, nil
}
