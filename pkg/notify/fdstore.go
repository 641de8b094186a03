package notify

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// NotifyWithFDs sends state together with open files in the same datagram.
// The files travel as SCM_RIGHTS ancillary data, the mechanism behind the
// supervisor fd store. With no files it behaves exactly like Notify.
func (c *Client) NotifyWithFDs(state string, files ...*os.File) error {
	if state == "" {
		return ErrEmptyState
	}
	if len(files) == 0 {
		return c.Notify(state)
	}
	if c.conn == nil {
		return nil
	}

	fds := make([]int, len(files))
	for i, file := range files {
		fds[i] = int(file.Fd())
	}
	oob := unix.UnixRights(fds...)

	if _, _, err := c.conn.WriteMsgUnix([]byte(state), oob, nil); err != nil && c.debug {
		return fmt.Errorf("failed to send notification with file descriptors: %w", err)
	}
	return nil
}

// StoreFDs asks the supervisor to hold the given files in its fd store under
// name, so the service can collect them again after a restart.
func (c *Client) StoreFDs(name string, files ...*os.File) error {
	return c.NotifyWithFDs(StateFDStore+"\n"+KeyFDName+"="+name, files...)
}

// RemoveFDs drops every file stored under name from the supervisor fd store.
func (c *Client) RemoveFDs(name string) error {
	return c.Notify(StateFDStoreRemove + "\n" + KeyFDName + "=" + name)
}
