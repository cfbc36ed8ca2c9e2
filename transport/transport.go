package transport

import (
	"net"
	"strings"
	"sync"

	"github.com/webee/gramsock/options"
)

type (
	// PacketConn is a bound datagram endpoint: message oriented, one
	// Write is one datagram, best effort.
	PacketConn interface {
		ReadFrom(b []byte) (n int, from net.Addr, err error)
		WriteTo(b []byte, to net.Addr) (n int, err error)
		LocalAddr() net.Addr
		// SetBroadcast enable or disable sending to the transport's
		// broadcast address. Transports without a broadcast notion
		// return errs.ErrOperationNotSupported.
		SetBroadcast(enable bool) error
		// BroadcastAddr the address reaching all peers on port.
		BroadcastAddr(port int) (net.Addr, error)
		Close() error
	}

	// Transport is a datagram transport provider, registered by scheme.
	Transport interface {
		Scheme() string
		// Bind create a PacketConn on addr; an empty host/port binds an
		// ephemeral endpoint.
		Bind(addr string, opts options.Options) (PacketConn, error)
		// Resolve parse a peer address of this transport.
		Resolve(addr string) (net.Addr, error)
	}
)

// StripScheme removes the leading "scheme://" from an address string.
func StripScheme(t Transport, addr string) (string, error) {
	if !strings.HasPrefix(addr, t.Scheme()+"://") {
		return addr, ErrBadTran
	}
	return addr[len(t.Scheme()+"://"):], nil
}

// ParseScheme parse scheme from address.
func ParseScheme(addr string) (scheme string) {
	var i int
	if i = strings.Index(addr, "://"); i < 0 {
		return
	}
	scheme = addr[:i]
	return
}

var (
	lock       sync.RWMutex
	transports = map[string]Transport{}
)

// GetTransportFromAddr get transport for the address scheme.
func GetTransportFromAddr(addr string) Transport {
	return GetTransport(ParseScheme(addr))
}

// RegisterTransport is used to register the transport globally,
// after which it will be available for all sockets. The
// transport will override any others registered for the same
// scheme.
func RegisterTransport(t Transport) {
	lock.Lock()
	transports[t.Scheme()] = t
	lock.Unlock()
}

// GetTransport is used by a socket to lookup the transport
// for a given scheme.
func GetTransport(scheme string) Transport {
	lock.RLock()
	t := transports[scheme]
	lock.RUnlock()
	return t
}
