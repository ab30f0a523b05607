package tws

import (
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

func tuneTCP(conn net.Conn, config Config) error {
	if config.TCPTimeout == 0 {
		return nil
	}
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	raw, err := tcp.SyscallConn()
	if err != nil {
		return fmt.Errorf("failed to tune TCP socket: %w", err)
	}
	if cerr := raw.Control(func(fd uintptr) {
		err = syscall.SetsockoptInt(int(fd), syscall.IPPROTO_TCP, unix.TCP_USER_TIMEOUT,
			int(config.TCPTimeout/time.Millisecond))
	}); cerr != nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to tune TCP socket: %w", err)
	}
	return nil
}
