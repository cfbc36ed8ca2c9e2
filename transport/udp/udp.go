// Package udp implements the canonical datagram transport on UDP. To
// enable it simply import it.
package udp

import (
	"net"

	"github.com/webee/gramsock/options"
	"github.com/webee/gramsock/transport"
)

const (
	// Transport is a transport.Transport for UDP.
	Transport = udpTran(0)
)

func init() {
	transport.RegisterTransport(Transport)
}

type (
	udpTran int

	conn struct {
		*net.UDPConn
	}
)

func (t udpTran) Scheme() string {
	return "udp"
}

func (t udpTran) Resolve(addr string) (net.Addr, error) {
	var err error
	if addr, err = transport.StripScheme(t, addr); err != nil {
		return nil, err
	}
	return net.ResolveUDPAddr("udp", addr)
}

func (t udpTran) Bind(addr string, opts options.Options) (transport.PacketConn, error) {
	var err error
	if addr, err = transport.StripScheme(t, addr); err != nil {
		return nil, err
	}
	if addr == "" {
		addr = ":0"
	}
	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	uc, err := net.ListenUDP("udp", ua)
	if err != nil {
		return nil, err
	}
	c := &conn{UDPConn: uc}
	if OptionBroadcast.ValueFrom(opts) {
		// best effort, platform policy may refuse it
		c.SetBroadcast(true)
	}
	return c, nil
}

func (c *conn) ReadFrom(b []byte) (int, net.Addr, error) {
	return c.UDPConn.ReadFrom(b)
}

func (c *conn) WriteTo(b []byte, to net.Addr) (int, error) {
	return c.UDPConn.WriteTo(b, to)
}

func (c *conn) SetBroadcast(enable bool) error {
	return setBroadcast(c.UDPConn, enable)
}

func (c *conn) BroadcastAddr(port int) (net.Addr, error) {
	return &net.UDPAddr{IP: net.IPv4bcast, Port: port}, nil
}

// options
var (
	// OptionBroadcast enable SO_BROADCAST at bind.
	OptionBroadcast = options.NewBoolOption("udp.broadcast", true)
)
