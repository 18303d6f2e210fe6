package webrtc

import (
	"errors"
	"net"
	"os"
	"runtime"
	"syscall"
)

const listenAttempts = 42
const udpBufferSize = 16 * 1024 * 1024

// listenUDP opens a UDP socket on the port or on one of the next free ones.
func listenUDP(port int) (*net.UDPConn, error) {
	l, err := udpSocket(port)
	if err == nil {
		return l, nil
	}
	if !isPortBusy(err) {
		return nil, err
	}
	for i := port + 1; i < port+listenAttempts; i++ {
		if l, err := udpSocket(i); err == nil {
			return l, nil
		}
	}
	return nil, errors.New("no available ports")
}

func udpSocket(port int) (*net.UDPConn, error) {
	l, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, err
	}
	_ = l.SetReadBuffer(udpBufferSize)
	_ = l.SetWriteBuffer(udpBufferSize)
	return l, nil
}

func isPortBusy(err error) bool {
	var sys *os.SyscallError
	if !errors.As(err, &sys) {
		return false
	}
	var errno syscall.Errno
	if !errors.As(sys, &errno) {
		return false
	}
	const WSAEADDRINUSE = 10048
	return errno == syscall.EADDRINUSE || (runtime.GOOS == "windows" && errno == WSAEADDRINUSE)
}
