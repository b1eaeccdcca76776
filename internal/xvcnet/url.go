// Package xvcnet implements the TCP accept loop that binds a proto.Client
// to each incoming connection, one connection at a time.
package xvcnet

import (
	"fmt"
	"strings"
)

// ParseURL splits a "[transport:]host:port" server URL. Only the tcp
// transport (case-insensitive) is accepted; anything else is rejected so
// callers can surface ExitInvalidTransport.
func ParseURL(url string) (transport, host, port string, err error) {
	parts := strings.Split(url, ":")

	switch len(parts) {
	case 2:
		transport = "tcp"
		host, port = parts[0], parts[1]
	case 3:
		transport, host, port = parts[0], parts[1], parts[2]
	default:
		return "", "", "", fmt.Errorf("xvcnet: malformed url %q", url)
	}

	if !strings.EqualFold(transport, "tcp") {
		return "", "", "", fmt.Errorf("xvcnet: unsupported transport %q", transport)
	}
	if port == "" {
		return "", "", "", fmt.Errorf("xvcnet: missing port in %q", url)
	}
	// An empty host (the "tcp::2542" form) means "listen on all interfaces",
	// matching the documented default transport URL.

	return "tcp", host, port, nil
}
