// Package ws implements a datagram transport emulated over websockets:
// every websocket binary message is one datagram. The bind side serves an
// HTTP upgrader; the write side lazily dials one connection per
// destination and keeps it cached. To enable it simply import it.
package ws

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/webee/gramsock/errs"
	"github.com/webee/gramsock/options"
	"github.com/webee/gramsock/transport"
	"github.com/webee/gramsock/utils"
)

const (
	// Transport is a transport.Transport emulating datagrams over websocket.
	Transport = wsTran("ws")

	// DefaultPath is the upgrade endpoint when an address has no path.
	DefaultPath = "/gramsock"
)

func init() {
	transport.RegisterTransport(Transport)
}

type (
	wsTran string

	address string

	packet struct {
		from address
		data []byte
	}

	peer struct {
		sync.Mutex // serialize writes
		wc *websocket.Conn
	}

	conn struct {
		local    address
		path     string
		upgrader websocket.Upgrader
		htsvr    *http.Server
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
	return string(Transport)
}

func (a address) String() string {
	return string(a)
}

func (t wsTran) Scheme() string {
	return string(t)
}

func (t wsTran) Resolve(addr string) (net.Addr, error) {
	u, err := url.Parse(addr)
	if err != nil || u.Scheme != string(t) || u.Host == "" {
		return nil, transport.ErrBadAddr
	}
	if u.Path == "" {
		u.Path = DefaultPath
	}
	return address(u.String()), nil
}

func (t wsTran) Bind(addr string, opts options.Options) (transport.PacketConn, error) {
	raw, err := transport.StripScheme(t, addr)
	if err != nil {
		return nil, err
	}
	c := &conn{
		path:    DefaultPath,
		recvq:   make(chan packet, OptionRecvQueueSize.ValueFrom(opts)),
		peers:   make(map[address]*peer),
		closedq: make(chan struct{}),
	}
	if raw == "" {
		// client only endpoint, no listener
		c.local = address(fmt.Sprintf("ws://client.%d", clientID.NextID()))
		return c, nil
	}

	u, err := url.Parse(addr)
	if err != nil || u.Host == "" {
		return nil, transport.ErrBadAddr
	}
	if u.Path != "" {
		c.path = u.Path
	}
	if c.listener, err = net.Listen("tcp", u.Host); err != nil {
		return nil, err
	}
	c.local = address("ws://" + c.listener.Addr().String() + c.path)
	c.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc(c.path, c.handleUpgrade)
	c.htsvr = &http.Server{Handler: mux}
	go c.htsvr.Serve(c.listener)
	return c, nil
}

func (c *conn) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	wc, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithField("domain", "transport.ws").
			WithField("err", err).Info("upgrade")
		return
	}
	from := address("ws://" + wc.RemoteAddr().String() + c.path)
	p := &peer{wc: wc}
	if !c.addPeer(from, p) {
		wc.Close()
		return
	}
	c.readPump(from, p)
}

func (c *conn) addPeer(a address, p *peer) bool {
	c.Lock()
	defer c.Unlock()
	if c.closed {
		return false
	}
	if old, ok := c.peers[a]; ok {
		old.wc.Close()
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
	p.wc.Close()
}

// readPump turns each inbound websocket message into one datagram.
func (c *conn) readPump(from address, p *peer) {
	for {
		t, data, err := p.wc.ReadMessage()
		if err != nil {
			c.remPeer(from, p)
			return
		}
		if t != websocket.BinaryMessage {
			continue
		}
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
		wc, _, err := websocket.DefaultDialer.Dial(dest.String(), nil)
		if err != nil {
			return 0, err
		}
		p = &peer{wc: wc}
		if !c.addPeer(dest, p) {
			wc.Close()
			return 0, errs.ErrClosed
		}
		go c.readPump(dest, p)
	}

	p.Lock()
	err := p.wc.WriteMessage(websocket.BinaryMessage, b)
	p.Unlock()
	if err != nil {
		c.remPeer(dest, p)
		return 0, err
	}
	return len(b), nil
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
		p.wc.Close()
	}
	if c.htsvr != nil {
		c.htsvr.Close()
	}
	return nil
}

// options
var (
	// OptionRecvQueueSize depth of the endpoint's receive queue.
	OptionRecvQueueSize = options.NewIntOption("ws.recvQueueSize", 64)
)
