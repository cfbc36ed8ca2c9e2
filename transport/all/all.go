// Package all registers every builtin transport. To enable them simply
// import it.
package all

import (
	// udp transport
	_ "github.com/webee/gramsock/transport/udp"

	// inproc transport
	_ "github.com/webee/gramsock/transport/inproc"

	// ipc transport
	_ "github.com/webee/gramsock/transport/ipc"

	// ws transport
	_ "github.com/webee/gramsock/transport/ws"
)
