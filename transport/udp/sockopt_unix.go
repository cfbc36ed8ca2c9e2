//go:build !windows
// +build !windows

package udp

import (
	"net"
	"syscall"
)

func setBroadcast(c *net.UDPConn, enable bool) error {
	rc, err := c.SyscallConn()
	if err != nil {
		return err
	}
	val := 0
	if enable {
		val = 1
	}
	var serr error
	err = rc.Control(func(fd uintptr) {
		serr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, val)
	})
	if err != nil {
		return err
	}
	return serr
}
