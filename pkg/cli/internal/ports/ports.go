// Package ports provides port availability checking.
package ports

import (
	"net"
	"strconv"
)

// Check returns the bind error for host:port, or nil when the port is free.
func Check(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	_ = ln.Close()
	return nil
}

// IsAvailable reports whether host:port can be bound right now.
func IsAvailable(host string, port int) bool {
	return Check(host, port) == nil
}
