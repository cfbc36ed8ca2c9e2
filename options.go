package gramsock

import (
	"time"

	"github.com/webee/gramsock/options"
)

type socketOptions struct {
	// Version is the protocol version outbound streams are created with.
	Version options.Uint16Option
	// MinRetryInterval is the initial retransmission back-off.
	MinRetryInterval options.TimeDurationOption
	// MaxRetryInterval caps the retransmission back-off.
	MaxRetryInterval options.TimeDurationOption
	// RetryStep is the back-off increment per retry.
	RetryStep options.TimeDurationOption
	// MaxAttempts is the consecutive unacked sends before a stream is
	// declared dead.
	MaxAttempts options.IntOption
	// ClosingMaxAttempts replaces MaxAttempts once a stream is closing
	// locally.
	ClosingMaxAttempts options.IntOption
	// MaxDatagramSize bounds one outbound frame and one receive buffer.
	MaxDatagramSize options.IntOption
}

// Options for sockets.
var Options = socketOptions{
	Version:            options.NewUint16Option("socket.version", 1),
	MinRetryInterval:   options.NewTimeDurationOption("socket.minRetryInterval", 500*time.Millisecond),
	MaxRetryInterval:   options.NewTimeDurationOption("socket.maxRetryInterval", 3000*time.Millisecond),
	RetryStep:          options.NewTimeDurationOption("socket.retryStep", 500*time.Millisecond),
	MaxAttempts:        options.NewIntOption("socket.maxAttempts", 10),
	ClosingMaxAttempts: options.NewIntOption("socket.closingMaxAttempts", 5),
	MaxDatagramSize:    options.NewIntOption("socket.maxDatagramSize", 8192),
}
