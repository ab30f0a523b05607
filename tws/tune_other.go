//go:build !linux

package tws

import "net"

// TCP_USER_TIMEOUT is Linux-only; elsewhere the kernel defaults apply
func tuneTCP(conn net.Conn, config Config) error {
	return nil
}
