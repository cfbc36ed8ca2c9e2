//go:build windows
// +build windows

package ipc

import (
	"fmt"
	"net"
	"sync"

	"github.com/Microsoft/go-winio"

	"github.com/webee/gramsock/errs"
	"github.com/webee/gramsock/options"
	"github.com/webee/gramsock/transport"
	"github.com/webee/gramsock/utils"
)

const (
	// Transport is a transport.Transport over message-mode named pipes.
	Transport = ipcTran(0)

	pipePrefix = `\\.\pipe\`

	// one pipe message is one datagram
	maxMessageSize = 64 * 1024
)

func init() {
	transport.RegisterTransport(Transport)
}

type (
	ipcTran int

	address string

	packet struct {
		from address
		data []byte
	}

	peer struct {
		sync.Mutex // serialize writes
		nc net.Conn
	}

	conn struct {
		local    address
		listener net.Listener
		recvq    chan packet

		sync.Mutex
		peers   map[address]*peer
		closedq chan struct{}
		closed  bool
	}
)

var clientID = utils.NewRecyclableIDGenerator()

func (a address) Network() string {
	return scheme
}

func (a address) String() string {
	return string(a)
}

func (t ipcTran) Scheme() string {
	return scheme
}

func (t ipcTran) Resolve(addr string) (net.Addr, error) {
	name, err := transport.StripScheme(t, addr)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, transport.ErrBadAddr
	}
	return address(name), nil
}

func (t ipcTran) Bind(addr string, opts options.Options) (transport.PacketConn, error) {
	name, err := transport.StripScheme(t, addr)
	if err != nil {
		return nil, err
	}
	c := &conn{
		recvq:   make(chan packet, OptionRecvQueueSize.ValueFrom(opts)),
		peers:   make(map[address]*peer),
		closedq: make(chan struct{}),
	}
	if name == "" {
		// client only endpoint, no pipe listener
		c.local = address(fmt.Sprintf("client.%d", clientID.NextID()))
		return c, nil
	}

	config := &winio.PipeConfig{
		MessageMode:      true,
		InputBufferSize:  maxMessageSize,
		OutputBufferSize: maxMessageSize,
	}
	if c.listener, err = winio.ListenPipe(pipePrefix+name, config); err != nil {
		return nil, err
	}
	c.local = address(name)
	go c.acceptLoop()
	return c, nil
}

func (c *conn) acceptLoop() {
	for {
		nc, err := c.listener.Accept()
		if err != nil {
			return
		}
		// accepted clients have no pipe name of their own; key them
		// by a synthetic address so replies find the right pipe.
		from := address(fmt.Sprintf("%s#%d", c.local, clientID.NextID()))
		p := &peer{nc: nc}
		if !c.addPeer(from, p) {
			nc.Close()
			return
		}
		go c.readPump(from, p)
	}
}

func (c *conn) addPeer(a address, p *peer) bool {
	c.Lock()
	defer c.Unlock()
	if c.closed {
		return false
	}
	if old, ok := c.peers[a]; ok {
		old.nc.Close()
	}
	c.peers[a] = p
	return true
}

func (c *conn) remPeer(a address, p *peer) {
	c.Lock()
	if c.peers[a] == p {
		delete(c.peers, a)
	}
	c.Unlock()
	p.nc.Close()
}

// readPump turns each inbound pipe message into one datagram.
func (c *conn) readPump(from address, p *peer) {
	buf := make([]byte, maxMessageSize)
	for {
		n, err := p.nc.Read(buf)
		if err != nil {
			c.remPeer(from, p)
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case c.recvq <- packet{from: from, data: data}:
		case <-c.closedq:
			c.remPeer(from, p)
			return
		default:
			// full queue drops, datagram semantics
		}
	}
}

func (c *conn) LocalAddr() net.Addr {
	return c.local
}

func (c *conn) ReadFrom(b []byte) (int, net.Addr, error) {
	select {
	case <-c.closedq:
		return 0, nil, errs.ErrClosed
	case pkt := <-c.recvq:
		return copy(b, pkt.data), pkt.from, nil
	}
}

func (c *conn) WriteTo(b []byte, to net.Addr) (int, error) {
	dest, ok := to.(address)
	if !ok {
		return 0, transport.ErrBadAddr
	}
	c.Lock()
	if c.closed {
		c.Unlock()
		return 0, errs.ErrClosed
	}
	p := c.peers[dest]
	c.Unlock()

	if p == nil {
		nc, err := winio.DialPipe(pipePrefix+dest.String(), nil)
		if err != nil {
			return 0, err
		}
		p = &peer{nc: nc}
		if !c.addPeer(dest, p) {
			nc.Close()
			return 0, errs.ErrClosed
		}
		go c.readPump(dest, p)
	}

	p.Lock()
	n, err := p.nc.Write(b)
	p.Unlock()
	if err != nil {
		c.remPeer(dest, p)
		return n, err
	}
	return n, nil
}

func (c *conn) SetBroadcast(enable bool) error {
	return errs.ErrOperationNotSupported
}

func (c *conn) BroadcastAddr(port int) (net.Addr, error) {
	return nil, errs.ErrOperationNotSupported
}

func (c *conn) Close() error {
	c.Lock()
	if c.closed {
		c.Unlock()
		return errs.ErrClosed
	}
	c.closed = true
	close(c.closedq)
	peers := c.peers
	c.peers = nil
	c.Unlock()

	for _, p := range peers {
		p.nc.Close()
	}
	if c.listener != nil {
		c.listener.Close()
	}
	return nil
}
