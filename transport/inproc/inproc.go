// Package inproc implements an in-process datagram transport. Endpoints
// are named, datagrams are delivered over buffered channels, and a drop
// hook can inject packet loss, which makes the reliability machinery
// testable without real sockets. To enable it simply import it.
package inproc

import (
	"fmt"
	"net"
	"sync"

	"github.com/webee/gramsock/errs"
	"github.com/webee/gramsock/options"
	"github.com/webee/gramsock/transport"
	"github.com/webee/gramsock/utils"
)

const (
	// Transport is a transport.Transport for in-process messaging.
	Transport = inprocTran(0)
)

func init() {
	transport.RegisterTransport(Transport)
}

type (
	inprocTran int

	// Addr is an inproc endpoint name.
	Addr string

	// DropFunc decides whether an outbound datagram is dropped, standing
	// in for a lossy link.
	DropFunc func(b []byte, to net.Addr) bool

	packet struct {
		from Addr
		data []byte
	}

	endpoint struct {
		name  Addr
		recvq chan packet
		drop  DropFunc

		sync.Mutex
		closedq chan struct{}
		closed  bool
	}
)

// broadcastAddr reaches every bound endpoint except the sender.
const broadcastAddr = Addr("*")

var (
	lock      sync.RWMutex
	endpoints = map[Addr]*endpoint{}
	ephemeral = utils.NewRecyclableIDGenerator()
)

func (a Addr) Network() string {
	return "inproc"
}

func (a Addr) String() string {
	return string(a)
}

func (t inprocTran) Scheme() string {
	return "inproc"
}

func (t inprocTran) Resolve(addr string) (net.Addr, error) {
	name, err := transport.StripScheme(t, addr)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, transport.ErrBadAddr
	}
	return Addr(name), nil
}

func (t inprocTran) Bind(addr string, opts options.Options) (transport.PacketConn, error) {
	name, err := transport.StripScheme(t, addr)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = fmt.Sprintf("ephemeral.%d", ephemeral.NextID())
	}
	ep := &endpoint{
		name:    Addr(name),
		recvq:   make(chan packet, OptionRecvQueueSize.ValueFrom(opts)),
		closedq: make(chan struct{}),
	}
	if drop := OptionDropFunc.ValueFrom(opts); drop != nil {
		ep.drop = drop.(DropFunc)
	}

	lock.Lock()
	if _, ok := endpoints[ep.name]; ok {
		lock.Unlock()
		return nil, errs.ErrAddrInUse
	}
	endpoints[ep.name] = ep
	lock.Unlock()
	return ep, nil
}

func (ep *endpoint) LocalAddr() net.Addr {
	return ep.name
}

func (ep *endpoint) ReadFrom(b []byte) (int, net.Addr, error) {
	select {
	case <-ep.closedq:
		return 0, nil, errs.ErrClosed
	case pkt := <-ep.recvq:
		return copy(b, pkt.data), pkt.from, nil
	}
}

func (ep *endpoint) WriteTo(b []byte, to net.Addr) (int, error) {
	ep.Lock()
	closed := ep.closed
	ep.Unlock()
	if closed {
		return 0, errs.ErrClosed
	}
	if ep.drop != nil && ep.drop(b, to) {
		// dropped on the floor, as a real datagram would be
		return len(b), nil
	}

	dest, ok := to.(Addr)
	if !ok {
		return 0, transport.ErrBadAddr
	}
	if dest == broadcastAddr {
		lock.RLock()
		for name, peer := range endpoints {
			if name == ep.name {
				continue
			}
			peer.deliver(ep.name, b)
		}
		lock.RUnlock()
		return len(b), nil
	}

	lock.RLock()
	peer, ok := endpoints[dest]
	lock.RUnlock()
	if !ok {
		// unreachable peers lose datagrams silently
		return len(b), nil
	}
	peer.deliver(ep.name, b)
	return len(b), nil
}

func (ep *endpoint) deliver(from Addr, b []byte) {
	data := make([]byte, len(b))
	copy(data, b)
	select {
	case ep.recvq <- packet{from: from, data: data}:
	default:
		// full queue drops, datagram semantics
	}
}

func (ep *endpoint) SetBroadcast(enable bool) error {
	return nil
}

func (ep *endpoint) BroadcastAddr(port int) (net.Addr, error) {
	return broadcastAddr, nil
}

func (ep *endpoint) Close() error {
	ep.Lock()
	if ep.closed {
		ep.Unlock()
		return errs.ErrClosed
	}
	ep.closed = true
	close(ep.closedq)
	ep.Unlock()

	lock.Lock()
	delete(endpoints, ep.name)
	lock.Unlock()
	return nil
}

// options
var (
	// OptionRecvQueueSize depth of an endpoint's receive queue.
	OptionRecvQueueSize = options.NewIntOption("inproc.recvQueueSize", 64)
	// OptionDropFunc outbound loss injection hook, a DropFunc.
	OptionDropFunc = options.NewAnyOption("inproc.dropFunc", nil)
)
