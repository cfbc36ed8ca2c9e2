package message

// TypeId is the stable numeric identifier of a registered message type.
type TypeId uint16

// Message is an application message value. Concrete types are open-ended;
// they are bound to a TypeId through an Oracle.
type Message interface{}

type (
	// Oracle encodes and decodes registered messages. The encoding is
	// self-describing: a decoder recovers the TypeId from the bytes.
	Oracle interface {
		// EncodeTo encode m into b, returning the number of bytes
		// written. It fails with errs.ErrMsgTooLong when b cannot hold
		// the encoded message, leaving b unspecified beyond n.
		EncodeTo(b []byte, m Message) (n int, err error)
		// Decode decode one message from the head of b. On
		// errs.ErrUnknownType n still covers the skipped message so the
		// caller can continue past it.
		Decode(b []byte) (m Message, t TypeId, n int, err error)
		// TypeIdOf report the TypeId m is registered under.
		TypeIdOf(m Message) (TypeId, bool)
	}

	// Codec marshals one concrete message type.
	Codec interface {
		Marshal(m Message) ([]byte, error)
		Unmarshal(b []byte) (Message, error)
	}
)
