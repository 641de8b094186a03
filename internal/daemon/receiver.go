package daemon

import (
	"fmt"
	"net"
	"os"
	"time"

	"go.olrik.dev/lifeline/pkg/notify"
)

// maxDatagram bounds one notification datagram. Supervisors read with a
// buffer this size; anything longer is a protocol violation anyway.
const maxDatagram = 4096

// Receiver owns the bound notification socket and turns datagrams into
// messages.
type Receiver struct {
	conn *net.UnixConn
	addr notify.Address
	path string // socket file to unlink on close, empty for abstract
}

// Listen binds a unixgram socket at addr. A stale socket file left behind
// by a dead listener is removed and the bind retried once. Path sockets are
// made world writable, since notifying services run as arbitrary users.
func Listen(addr notify.Address) (*Receiver, error) {
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: addr.Name, Net: "unixgram"})
	if err != nil && addr.Kind == notify.AddressPath {
		if probeSocket(addr.Name) != nil {
			// Nobody answers on the path, the file is a leftover.
			os.Remove(addr.Name)
			conn, err = net.ListenUnixgram("unixgram", &net.UnixAddr{Name: addr.Name, Net: "unixgram"})
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	receiver := &Receiver{conn: conn, addr: addr}
	if addr.Kind == notify.AddressPath {
		receiver.path = addr.Name
		os.Chmod(addr.Name, 0o666)
	}

	if err := enableCredentials(conn); err != nil {
		conn.Close()
		receiver.removeSocketFile()
		return nil, fmt.Errorf("failed to enable sender credentials: %w", err)
	}

	return receiver, nil
}

// probeSocket reports nil when a live listener answers on the path.
func probeSocket(path string) error {
	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		return err
	}
	conn.Close()
	return nil
}

// ReadMessage blocks for one datagram and parses it. The sender pid is
// filled in from socket credentials where the platform provides them.
func (r *Receiver) ReadMessage() (*Message, error) {
	buf := make([]byte, maxDatagram)
	oob := make([]byte, 256)

	n, oobn, _, _, err := r.conn.ReadMsgUnix(buf, oob)
	if err != nil {
		return nil, err
	}

	msg := ParseMessage(buf[:n])
	if oobn > 0 {
		msg.PID = senderPID(oob[:oobn])
	}
	return msg, nil
}

// SetReadDeadline bounds the next ReadMessage call.
func (r *Receiver) SetReadDeadline(t time.Time) error {
	return r.conn.SetReadDeadline(t)
}

// Addr returns the bound address.
func (r *Receiver) Addr() notify.Address {
	return r.addr
}

// Close shuts the socket down and removes its file.
func (r *Receiver) Close() error {
	err := r.conn.Close()
	r.removeSocketFile()
	return err
}

func (r *Receiver) removeSocketFile() {
	if r.path != "" {
		os.Remove(r.path)
	}
}
