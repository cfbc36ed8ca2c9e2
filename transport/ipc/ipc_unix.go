//go:build !windows
// +build !windows

package ipc

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/webee/gramsock/errs"
	"github.com/webee/gramsock/options"
	"github.com/webee/gramsock/transport"
	"github.com/webee/gramsock/utils"
)

const (
	// Transport is a transport.Transport over unixgram sockets.
	Transport = ipcTran(0)
)

func init() {
	transport.RegisterTransport(Transport)
}

type (
	ipcTran int

	conn struct {
		*net.UnixConn
		path string
	}
)

var ephemeral = utils.NewRecyclableIDGenerator()

func (t ipcTran) Scheme() string {
	return scheme
}

func (t ipcTran) Resolve(addr string) (net.Addr, error) {
	path, err := transport.StripScheme(t, addr)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, transport.ErrBadAddr
	}
	return &net.UnixAddr{Name: path, Net: "unixgram"}, nil
}

func (t ipcTran) Bind(addr string, opts options.Options) (transport.PacketConn, error) {
	path, err := transport.StripScheme(t, addr)
	if err != nil {
		return nil, err
	}
	if path == "" {
		// unixgram needs a local name to receive replies
		path = filepath.Join(os.TempDir(), fmt.Sprintf("gramsock.%d.sock", ephemeral.NextID()))
	}
	if stat, err := os.Stat(path); err == nil {
		if stat.Mode()&os.ModeSocket == 0 {
			return nil, errs.ErrAddrInUse
		}
		if err := os.Remove(path); err != nil {
			return nil, errs.ErrAddrInUse
		}
	}
	uc, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		return nil, err
	}
	return &conn{UnixConn: uc, path: path}, nil
}

func (c *conn) ReadFrom(b []byte) (int, net.Addr, error) {
	return c.UnixConn.ReadFrom(b)
}

func (c *conn) WriteTo(b []byte, to net.Addr) (int, error) {
	return c.UnixConn.WriteTo(b, to)
}

func (c *conn) SetBroadcast(enable bool) error {
	return errs.ErrOperationNotSupported
}

func (c *conn) BroadcastAddr(port int) (net.Addr, error) {
	return nil, errs.ErrOperationNotSupported
}

func (c *conn) Close() error {
	err := c.UnixConn.Close()
	os.Remove(c.path)
	return err
}
