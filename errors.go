package gramsock

type err string

func (e err) Error() string {
	return string(e)
}

// Predefined error values.
const (
	ErrClosed          = err("socket closed")
	ErrHandlerExists   = err("handler already registered")
	ErrBadOperateState = err("bad operation state")
	ErrBadTran         = err("invalid or unsupported transport")
	ErrConnRefused     = err("connection refused")
	ErrNoBroadcast     = err("transport does not support broadcast")
)
