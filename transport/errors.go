package transport

import (
	"github.com/webee/gramsock/errs"
)

// errors
const (
	ErrBadTran     = errs.ErrBadTransport
	ErrBadAddr     = errs.ErrBadAddr
	ErrClosed      = errs.ErrClosed
	ErrNoBroadcast = errs.ErrOperationNotSupported
)
