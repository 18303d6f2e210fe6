package network

import (
	"errors"
	"net"
	"strconv"
	"strings"
)

// Address is a host:port string as it comes from configs and flags.
type Address string

func (a Address) Port() (int, error) {
	if len(a) == 0 {
		return 0, errors.New("no address")
	}
	parts := strings.Split(string(a), ":")
	port := parts[len(parts)-1]
	if val, err := strconv.Atoi(port); err == nil {
		return val, nil
	}
	return 0, errors.New("port is not a number")
}

// SplitHostPort returns the host and the port number, 0 when there is no port.
func (a Address) SplitHostPort() (string, int) {
	host, port, err := net.SplitHostPort(string(a))
	if err != nil {
		return string(a), 0
	}
	p, _ := strconv.Atoi(port)
	return host, p
}
