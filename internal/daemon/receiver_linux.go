package daemon

import (
	"net"

	"golang.org/x/sys/unix"
)

// enableCredentials asks the kernel to attach sender credentials to every
// datagram on conn, so messages can be attributed to a pid the sender
// cannot fake.
func enableCredentials(conn *net.UnixConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_PASSCRED, 1)
	}); err != nil {
		return err
	}
	return sockErr
}

// senderPID extracts the sender pid from SCM_CREDENTIALS ancillary data.
// Any SCM_RIGHTS descriptors riding along (fd store messages) are closed;
// the listener observes the protocol but holds no fd store.
func senderPID(oob []byte) int {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return 0
	}

	pid := 0
	for i := range msgs {
		if cred, err := unix.ParseUnixCredentials(&msgs[i]); err == nil {
			pid = int(cred.Pid)
			continue
		}
		if fds, err := unix.ParseUnixRights(&msgs[i]); err == nil {
			for _, fd := range fds {
				unix.Close(fd)
			}
		}
	}
	return pid
}
