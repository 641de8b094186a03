//go:build !linux

package daemon

import "net"

// enableCredentials is a no-op where SO_PASSCRED does not exist. Messages
// are still received, just without sender attribution.
func enableCredentials(conn *net.UnixConn) error {
	return nil
}

func senderPID(oob []byte) int {
	return 0
}
