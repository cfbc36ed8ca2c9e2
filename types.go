package gramsock

import (
	"net"

	"github.com/webee/gramsock/message"
)

type (
	// Socket owns one datagram endpoint. It routes inbound datagrams to
	// connectionless handlers or to reliable streams, and life-cycles
	// the streams. A socket is either a client (one outbound stream) or
	// a server (inbound streams keyed by remote address), never both.
	Socket interface {
		// RegisterGeneral install the connectionless handler for t.
		RegisterGeneral(t message.TypeId, h GeneralHandler) error
		// RegisterConnect install the accept/reject handler invoked with
		// the first message of a new inbound stream.
		RegisterConnect(t message.TypeId, h ConnectHandler) error
		// RegisterStream install the handler for subsequent messages on
		// established streams.
		RegisterStream(t message.TypeId, h StreamHandler) error
		// RegisterOpen install the handler fired when an inbound stream
		// has been accepted. At most one.
		RegisterOpen(h OpenHandler) error
		// RegisterClose install the handler fired when an established
		// stream ends. At most one.
		RegisterClose(h CloseHandler) error

		// Listen bind the transport and accept inbound streams.
		Listen(addr string) error
		// Connect create the outbound stream with msg as its first item.
		Connect(addr string, msg message.Message) (Stream, error)
		// Send emit one connectionless message to addr.
		Send(addr string, msg message.Message) error
		// Broadcast emit one connectionless message to every peer
		// listening on port, where the transport supports it.
		Broadcast(port int, msg message.Message) error

		Close() error
	}

	// Stream is a reliable ordered channel to one remote endpoint.
	Stream interface {
		Remote() net.Addr
		Version() uint16
		// Enqueue queue msg for reliable in-order delivery. A no-op
		// once the stream is closing.
		Enqueue(msg message.Message)
		// Close flush pending items, tell the peer, then end. Idempotent.
		Close()
	}

	// GeneralHandler handles one connectionless message.
	GeneralHandler func(msg message.Message, from net.Addr)

	// ConnectHandler inspects the first message of a new inbound stream.
	// It may block; returning an error rejects the connection, otherwise
	// the returned user data is attached to the stream.
	ConnectHandler func(msg message.Message, from net.Addr) (interface{}, error)

	// StreamHandler handles one in-order message on an established
	// stream. userData is nil on the client side.
	StreamHandler func(userData interface{}, msg message.Message)

	// OpenHandler is notified of an accepted inbound stream.
	OpenHandler func(st Stream, userData interface{})

	// CloseHandler is notified of an ended stream.
	CloseHandler func(remote net.Addr, userData interface{})
)
