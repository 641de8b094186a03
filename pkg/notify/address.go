package notify

import (
	"fmt"
	"strings"
)

// AddressKind identifies how a notification socket address is interpreted.
type AddressKind int

const (
	// AddressPath is a unix datagram socket bound to a filesystem path.
	AddressPath AddressKind = iota
	// AddressAbstract is a socket in the abstract namespace (Linux only).
	AddressAbstract
)

func (k AddressKind) String() string {
	switch k {
	case AddressPath:
		return "path"
	case AddressAbstract:
		return "abstract"
	default:
		return fmt.Sprintf("AddressKind(%d)", int(k))
	}
}

// Address is a resolved notification socket address.
type Address struct {
	Kind AddressKind
	// Name is the dialable socket name. For abstract addresses it carries
	// the leading NUL byte the kernel expects.
	Name string
}

// ResolveAddress interprets a NOTIFY_SOCKET style value. A value starting
// with '/' names a socket on the filesystem and is used verbatim; a value
// starting with '@' names an abstract namespace socket and is rewritten with
// a leading NUL byte. Anything else, the empty string included, is rejected
// with ErrUnsupportedAddress.
func ResolveAddress(raw string) (Address, error) {
	switch {
	case strings.HasPrefix(raw, "/"):
		return Address{Kind: AddressPath, Name: raw}, nil
	case strings.HasPrefix(raw, "@"):
		return Address{Kind: AddressAbstract, Name: "\x00" + raw[1:]}, nil
	default:
		return Address{}, fmt.Errorf("%w: %q", ErrUnsupportedAddress, raw)
	}
}

// String renders the address back in NOTIFY_SOCKET notation, safe to log.
func (a Address) String() string {
	if a.Kind == AddressAbstract {
		return "@" + strings.TrimPrefix(a.Name, "\x00")
	}
	return a.Name
}
