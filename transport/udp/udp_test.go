package udp

import (
	"net"
	"testing"
	"time"

	"github.com/webee/gramsock/transport"
)

func TestUDPRoundTrip(t *testing.T) {
	a, err := Transport.Bind("udp://127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("bind a: %s", err)
	}
	defer a.Close()
	b, err := Transport.Bind("udp://127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("bind b: %s", err)
	}
	defer b.Close()

	if _, err := a.WriteTo([]byte("ping"), b.LocalAddr()); err != nil {
		t.Fatalf("write: %s", err)
	}
	buf := make([]byte, 16)
	n, from, err := b.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read: %s", err)
	}
	if string(buf[:n]) != "ping" {
		t.Errorf("payload = %q", buf[:n])
	}
	if from.String() != a.LocalAddr().String() {
		t.Errorf("from = %s, want %s", from, a.LocalAddr())
	}
}

func TestUDPEphemeralBind(t *testing.T) {
	c, err := Transport.Bind("udp://", nil)
	if err != nil {
		t.Fatalf("ephemeral bind: %s", err)
	}
	defer c.Close()
	if c.LocalAddr().(*net.UDPAddr).Port == 0 {
		t.Error("no port assigned")
	}
}

func TestUDPResolve(t *testing.T) {
	addr, err := Transport.Resolve("udp://127.0.0.1:9000")
	if err != nil {
		t.Fatal(err)
	}
	ua := addr.(*net.UDPAddr)
	if !ua.IP.Equal(net.IPv4(127, 0, 0, 1)) || ua.Port != 9000 {
		t.Errorf("resolved %v", ua)
	}
	if _, err := Transport.Resolve("tcp://127.0.0.1:9000"); err != transport.ErrBadTran {
		t.Errorf("foreign scheme: %v, want ErrBadTran", err)
	}
}

func TestUDPBroadcastAddr(t *testing.T) {
	c, err := Transport.Bind("udp://127.0.0.1:0", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ba, err := c.BroadcastAddr(7777)
	if err != nil {
		t.Fatal(err)
	}
	ua := ba.(*net.UDPAddr)
	if !ua.IP.Equal(net.IPv4bcast) || ua.Port != 7777 {
		t.Errorf("broadcast addr = %v", ua)
	}
}

func TestUDPReadDeadlineIndependence(t *testing.T) {
	// a bound conn with nothing inbound must not return spuriously
	c, err := Transport.Bind("udp://127.0.0.1:0", nil)
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		buf := make([]byte, 4)
		c.ReadFrom(buf)
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("ReadFrom returned with no traffic")
	case <-time.After(30 * time.Millisecond):
	}
	c.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ReadFrom did not unblock on close")
	}
}
