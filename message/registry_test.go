package message

import (
	"encoding/binary"
	"testing"

	"github.com/webee/gramsock/errs"
)

type note struct {
	Text string
}

type mark struct {
	V byte
}

func (m *mark) MarshalBinary() ([]byte, error) {
	return []byte{m.V}, nil
}

func (m *mark) UnmarshalBinary(b []byte) error {
	if len(b) != 1 {
		return errs.ErrBadMsg
	}
	m.V = b[0]
	return nil
}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	if err := r.RegisterJSON(1, func() Message { return new(note) }); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterBinary(2, func() Message { return new(mark) }); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRegistryRoundTrip(t *testing.T) {
	r := newRegistry(t)
	buf := make([]byte, 256)

	n, err := r.EncodeTo(buf, &note{Text: "hi"})
	if err != nil {
		t.Fatalf("encode: %s", err)
	}
	m, typ, rn, err := r.Decode(buf[:n])
	if err != nil {
		t.Fatalf("decode: %s", err)
	}
	if typ != 1 || rn != n {
		t.Errorf("type=%d n=%d, want 1, %d", typ, rn, n)
	}
	if got := m.(*note).Text; got != "hi" {
		t.Errorf("text = %q, want hi", got)
	}

	n, err = r.EncodeTo(buf, &mark{V: 0x7f})
	if err != nil {
		t.Fatalf("encode binary: %s", err)
	}
	m, typ, _, err = r.Decode(buf[:n])
	if err != nil {
		t.Fatalf("decode binary: %s", err)
	}
	if typ != 2 || m.(*mark).V != 0x7f {
		t.Errorf("got type=%d v=%#x", typ, m.(*mark).V)
	}
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	r := newRegistry(t)
	if err := r.RegisterJSON(1, func() Message { return new(note) }); err != errs.ErrTypeExists {
		t.Errorf("duplicate id: %v, want ErrTypeExists", err)
	}
	if err := r.RegisterJSON(9, func() Message { return new(note) }); err != errs.ErrTypeExists {
		t.Errorf("duplicate concrete type: %v, want ErrTypeExists", err)
	}
}

func TestRegistryUnregisteredEncode(t *testing.T) {
	r := newRegistry(t)
	if _, err := r.EncodeTo(make([]byte, 64), "a bare string"); err != errs.ErrUnknownType {
		t.Errorf("encode unregistered: %v, want ErrUnknownType", err)
	}
}

func TestRegistryBufferTooSmall(t *testing.T) {
	r := newRegistry(t)
	if _, err := r.EncodeTo(make([]byte, 8), &note{Text: "does not fit in eight bytes"}); err != errs.ErrMsgTooLong {
		t.Errorf("encode into tiny buffer: %v, want ErrMsgTooLong", err)
	}
}

func TestRegistryDecodeUnknownTypeSkips(t *testing.T) {
	r := newRegistry(t)
	buf := make([]byte, 16)
	binary.BigEndian.PutUint16(buf, 42) // nobody registered 42
	binary.BigEndian.PutUint16(buf[2:], 3)

	m, typ, n, err := r.Decode(buf)
	if err != errs.ErrUnknownType {
		t.Fatalf("err = %v, want ErrUnknownType", err)
	}
	if m != nil || typ != 42 || n != 7 {
		t.Errorf("m=%v typ=%d n=%d, want nil, 42, 7", m, typ, n)
	}
}

func TestRegistryDecodeTruncated(t *testing.T) {
	r := newRegistry(t)
	buf := make([]byte, 16)
	binary.BigEndian.PutUint16(buf, 1)
	binary.BigEndian.PutUint16(buf[2:], 100) // claims more than available

	if _, _, n, err := r.Decode(buf); err != errs.ErrBadMsg || n != 0 {
		t.Errorf("err=%v n=%d, want ErrBadMsg, 0", err, n)
	}
	if _, _, _, err := r.Decode(buf[:3]); err != errs.ErrBadMsg {
		t.Errorf("short header err=%v, want ErrBadMsg", err)
	}
}

func TestRegistryTypeIdOf(t *testing.T) {
	r := newRegistry(t)
	if typ, ok := r.TypeIdOf(&note{}); !ok || typ != 1 {
		t.Errorf("TypeIdOf(note) = %d, %v", typ, ok)
	}
	if _, ok := r.TypeIdOf(3.14); ok {
		t.Error("TypeIdOf on an unregistered type reported ok")
	}
}
