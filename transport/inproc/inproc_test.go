package inproc

import (
	"net"
	"testing"
	"time"

	"github.com/webee/gramsock/errs"
	"github.com/webee/gramsock/options"
)

func bindOrFail(t *testing.T, addr string, opts options.Options) *endpoint {
	t.Helper()
	pc, err := Transport.Bind(addr, opts)
	if err != nil {
		t.Fatalf("bind %s: %s", addr, err)
	}
	t.Cleanup(func() { pc.Close() })
	return pc.(*endpoint)
}

func TestInprocRoundTrip(t *testing.T) {
	a := bindOrFail(t, "inproc://rt.a", nil)
	b := bindOrFail(t, "inproc://rt.b", nil)

	to, err := Transport.Resolve("inproc://rt.b")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.WriteTo([]byte("ping"), to); err != nil {
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
	if from.String() != "rt.a" {
		t.Errorf("from = %s, want rt.a", from)
	}
}

func TestInprocAddrInUse(t *testing.T) {
	bindOrFail(t, "inproc://dup", nil)
	if _, err := Transport.Bind("inproc://dup", nil); err != errs.ErrAddrInUse {
		t.Errorf("second bind: %v, want ErrAddrInUse", err)
	}
}

func TestInprocEphemeralNames(t *testing.T) {
	a := bindOrFail(t, "inproc://", nil)
	b := bindOrFail(t, "inproc://", nil)
	if a.LocalAddr().String() == b.LocalAddr().String() {
		t.Errorf("ephemeral endpoints share a name: %s", a.LocalAddr())
	}
}

func TestInprocDropFunc(t *testing.T) {
	opts := options.NewOptionsWithValues(options.OptionValues{
		OptionDropFunc: DropFunc(func(b []byte, to net.Addr) bool { return true }),
	})
	a := bindOrFail(t, "inproc://drop.a", opts)
	b := bindOrFail(t, "inproc://drop.b", nil)

	if _, err := a.WriteTo([]byte("gone"), Addr("drop.b")); err != nil {
		t.Fatalf("write: %s", err)
	}
	select {
	case <-b.recvq:
		t.Error("dropped datagram was delivered")
	case <-time.After(30 * time.Millisecond):
	}
}

func TestInprocUnknownPeerLosesDatagram(t *testing.T) {
	a := bindOrFail(t, "inproc://lonely", nil)
	if _, err := a.WriteTo([]byte("void"), Addr("nobody.home")); err != nil {
		t.Errorf("write to unknown peer: %v, want silent loss", err)
	}
}

func TestInprocBroadcast(t *testing.T) {
	a := bindOrFail(t, "inproc://bc.a", nil)
	b := bindOrFail(t, "inproc://bc.b", nil)
	c := bindOrFail(t, "inproc://bc.c", nil)

	to, err := a.BroadcastAddr(0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.WriteTo([]byte("all"), to); err != nil {
		t.Fatal(err)
	}

	for _, ep := range []*endpoint{b, c} {
		buf := make([]byte, 8)
		n, _, err := ep.ReadFrom(buf)
		if err != nil || string(buf[:n]) != "all" {
			t.Errorf("%s: n=%d err=%v", ep.name, n, err)
		}
	}
	select {
	case <-a.recvq:
		t.Error("broadcast echoed to its sender")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestInprocClose(t *testing.T) {
	a := bindOrFail(t, "inproc://closing", nil)
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != errs.ErrClosed {
		t.Errorf("second close: %v, want ErrClosed", err)
	}
	if _, _, err := a.ReadFrom(make([]byte, 4)); err != errs.ErrClosed {
		t.Errorf("read after close: %v, want ErrClosed", err)
	}
	// the name is free again
	bindOrFail(t, "inproc://closing", nil)
}
