package netutil

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"syscall"
)

// Listen binds addr. When the port is taken and fallback > 0, the next
// fallback ports on the same host are tried in order. The returned listener
// is already bound, so the chosen port cannot be lost to another process.
func Listen(addr string, fallback int) (net.Listener, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid bind address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return nil, fmt.Errorf("invalid bind port %q", portStr)
	}

	ln, err := net.Listen("tcp", addr)
	if err == nil || !errors.Is(err, syscall.EADDRINUSE) || fallback <= 0 || port == 0 {
		return ln, err
	}

	for i := 1; i <= fallback && port+i <= 65535; i++ {
		candidate := net.JoinHostPort(host, strconv.Itoa(port+i))
		ln, err := net.Listen("tcp", candidate)
		if err == nil {
			slog.Warn("Preferred bind address in use, using fallback", "preferred", addr, "addr", candidate)
			return ln, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("no available bind address from %s (+%d)", addr, fallback)
}
