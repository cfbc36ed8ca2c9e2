package message

import (
	"encoding"
	"encoding/binary"
	"encoding/json"
	"reflect"
	"sync"

	"github.com/webee/gramsock/errs"
)

var be = binary.BigEndian

// encoded message layout: u16 type id, u16 payload length, payload.
const headerSize = 4

type (
	// Registry is the default Oracle: a table from TypeId to Codec.
	Registry struct {
		sync.RWMutex
		codecs map[TypeId]Codec
		types  map[reflect.Type]TypeId
	}

	binaryCodec struct {
		factory func() Message
	}

	jsonCodec struct {
		factory func() Message
	}
)

// NewRegistry create an empty message registry.
func NewRegistry() *Registry {
	return &Registry{
		codecs: make(map[TypeId]Codec),
		types:  make(map[reflect.Type]TypeId),
	}
}

// Register bind t to prototype's concrete type, encoded by c. Registering
// a TypeId or a concrete type twice is a programmer error.
func (r *Registry) Register(t TypeId, prototype Message, c Codec) error {
	rt := reflect.TypeOf(prototype)
	r.Lock()
	defer r.Unlock()
	if _, ok := r.codecs[t]; ok {
		return errs.ErrTypeExists
	}
	if _, ok := r.types[rt]; ok {
		return errs.ErrTypeExists
	}
	r.codecs[t] = c
	r.types[rt] = t
	return nil
}

// RegisterBinary bind t to the type produced by factory, encoded through
// its BinaryMarshaler/BinaryUnmarshaler implementation.
func (r *Registry) RegisterBinary(t TypeId, factory func() Message) error {
	return r.Register(t, factory(), &binaryCodec{factory: factory})
}

// RegisterJSON bind t to the type produced by factory, encoded as JSON.
func (r *Registry) RegisterJSON(t TypeId, factory func() Message) error {
	return r.Register(t, factory(), &jsonCodec{factory: factory})
}

func (r *Registry) TypeIdOf(m Message) (TypeId, bool) {
	r.RLock()
	t, ok := r.types[reflect.TypeOf(m)]
	r.RUnlock()
	return t, ok
}

func (r *Registry) codecOf(m Message) (TypeId, Codec, bool) {
	r.RLock()
	defer r.RUnlock()
	t, ok := r.types[reflect.TypeOf(m)]
	if !ok {
		return 0, nil, false
	}
	return t, r.codecs[t], true
}

func (r *Registry) EncodeTo(b []byte, m Message) (n int, err error) {
	t, c, ok := r.codecOf(m)
	if !ok {
		return 0, errs.ErrUnknownType
	}
	payload, err := c.Marshal(m)
	if err != nil {
		return 0, err
	}
	if len(payload) > 0xFFFF || headerSize+len(payload) > len(b) {
		return 0, errs.ErrMsgTooLong
	}
	be.PutUint16(b, uint16(t))
	be.PutUint16(b[2:], uint16(len(payload)))
	n = headerSize + copy(b[headerSize:], payload)
	return
}

func (r *Registry) Decode(b []byte) (m Message, t TypeId, n int, err error) {
	if len(b) < headerSize {
		return nil, 0, 0, errs.ErrBadMsg
	}
	t = TypeId(be.Uint16(b))
	length := int(be.Uint16(b[2:]))
	n = headerSize + length
	if len(b) < n {
		return nil, t, 0, errs.ErrBadMsg
	}
	r.RLock()
	c, ok := r.codecs[t]
	r.RUnlock()
	if !ok {
		// n lets the caller skip past the unknown message
		return nil, t, n, errs.ErrUnknownType
	}
	if m, err = c.Unmarshal(b[headerSize:n]); err != nil {
		return nil, t, n, err
	}
	return
}

// binary codec

func (c *binaryCodec) Marshal(m Message) ([]byte, error) {
	bm, ok := m.(encoding.BinaryMarshaler)
	if !ok {
		return nil, errs.ErrBadMsg
	}
	return bm.MarshalBinary()
}

func (c *binaryCodec) Unmarshal(b []byte) (Message, error) {
	m := c.factory()
	bu, ok := m.(encoding.BinaryUnmarshaler)
	if !ok {
		return nil, errs.ErrBadMsg
	}
	if err := bu.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return m, nil
}

// json codec

func (c *jsonCodec) Marshal(m Message) ([]byte, error) {
	return json.Marshal(m)
}

func (c *jsonCodec) Unmarshal(b []byte) (Message, error) {
	m := c.factory()
	if err := json.Unmarshal(b, m); err != nil {
		return nil, err
	}
	return m, nil
}
