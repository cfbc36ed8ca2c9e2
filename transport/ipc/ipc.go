// Package ipc implements the same-host datagram transport: unixgram
// sockets on unix-like systems, message-mode named pipes on Windows. To
// enable it simply import it.
package ipc

import (
	"github.com/webee/gramsock/options"
)

// scheme is the address scheme, as in "ipc:///tmp/app.sock".
const scheme = "ipc"

// options
var (
	// OptionRecvQueueSize depth of the endpoint's receive queue
	// (Windows pipe fan-in only).
	OptionRecvQueueSize = options.NewIntOption("ipc.recvQueueSize", 64)
)
