package gramsock

import (
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/webee/gramsock/bytespool"
	"github.com/webee/gramsock/errs"
	"github.com/webee/gramsock/message"
	"github.com/webee/gramsock/options"
	"github.com/webee/gramsock/transport"
	"github.com/webee/gramsock/utils"
)

type socket struct {
	oracle message.Oracle
	opts   options.Options

	version            uint16
	minRetry           time.Duration
	maxRetry           time.Duration
	retryStep          time.Duration
	maxAttempts        int
	closingMaxAttempts int
	maxDatagram        int

	mu              sync.Mutex
	tran            transport.Transport
	conn            transport.PacketConn
	generalHandlers map[message.TypeId]GeneralHandler
	connectHandlers map[message.TypeId]ConnectHandler
	streamHandlers  map[message.TypeId]StreamHandler
	openHandler     OpenHandler
	closeHandler    CloseHandler
	client          *stream
	streams         map[string]*stream
	listening       bool
	closing         bool
	released        bool
}

// New creates a Socket encoding its traffic through oracle.
func New(oracle message.Oracle, ovs options.OptionValues) Socket {
	opts := options.NewOptionsWithValues(ovs)
	return &socket{
		oracle: oracle,
		opts:   opts,

		version:            Options.Version.ValueFrom(opts),
		minRetry:           Options.MinRetryInterval.ValueFrom(opts),
		maxRetry:           Options.MaxRetryInterval.ValueFrom(opts),
		retryStep:          Options.RetryStep.ValueFrom(opts),
		maxAttempts:        Options.MaxAttempts.ValueFrom(opts),
		closingMaxAttempts: Options.ClosingMaxAttempts.ValueFrom(opts),
		maxDatagram:        Options.MaxDatagramSize.ValueFrom(opts),

		generalHandlers: make(map[message.TypeId]GeneralHandler),
		connectHandlers: make(map[message.TypeId]ConnectHandler),
		streamHandlers:  make(map[message.TypeId]StreamHandler),
	}
}

// registrations

func (s *socket) RegisterGeneral(t message.TypeId, h GeneralHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.generalHandlers[t]; ok {
		return ErrHandlerExists
	}
	s.generalHandlers[t] = h
	return nil
}

func (s *socket) RegisterConnect(t message.TypeId, h ConnectHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connectHandlers[t]; ok {
		return ErrHandlerExists
	}
	s.connectHandlers[t] = h
	return nil
}

func (s *socket) RegisterStream(t message.TypeId, h StreamHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.streamHandlers[t]; ok {
		return ErrHandlerExists
	}
	s.streamHandlers[t] = h
	return nil
}

func (s *socket) RegisterOpen(h OpenHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openHandler != nil {
		return ErrHandlerExists
	}
	s.openHandler = h
	return nil
}

func (s *socket) RegisterClose(h CloseHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeHandler != nil {
		return ErrHandlerExists
	}
	s.closeHandler = h
	return nil
}

// bind attaches the socket to its one transport endpoint and starts the
// receive loop. Caller must hold s.mu.
func (s *socket) bind(tran transport.Transport, addr string) error {
	if s.closing {
		return ErrClosed
	}
	if s.conn != nil {
		if s.tran != tran {
			return ErrBadOperateState
		}
		return nil
	}
	conn, err := tran.Bind(addr, s.opts)
	if err != nil {
		return err
	}
	s.tran, s.conn = tran, conn
	go s.recvLoop(conn)
	return nil
}

func (s *socket) Listen(addr string) error {
	tran := transport.GetTransportFromAddr(addr)
	if tran == nil {
		return ErrBadTran
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil || s.listening || s.conn != nil {
		return ErrBadOperateState
	}
	if err := s.bind(tran, addr); err != nil {
		return err
	}
	if err := s.conn.SetBroadcast(true); err != nil && err != errs.ErrOperationNotSupported {
		log.WithField("domain", "socket").
			WithFields(log.Fields{"addr": addr, "err": err}).
			Info("broadcast enable")
	}
	s.streams = make(map[string]*stream)
	s.listening = true
	log.WithField("domain", "socket").
		WithField("addr", s.conn.LocalAddr().String()).
		Debug("listening")
	return nil
}

func (s *socket) Connect(addr string, msg message.Message) (Stream, error) {
	tran := transport.GetTransportFromAddr(addr)
	if tran == nil {
		return nil, ErrBadTran
	}
	raddr, err := tran.Resolve(addr)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.listening || s.client != nil {
		s.mu.Unlock()
		return nil, ErrBadOperateState
	}
	if err := s.bind(tran, tran.Scheme()+"://"); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	st := s.newStream(raddr, s.version)
	st.deliver = s.streamDeliver(st)
	s.client = st
	s.mu.Unlock()

	st.Enqueue(msg)
	return st, nil
}

func (s *socket) Send(addr string, msg message.Message) error {
	tran := transport.GetTransportFromAddr(addr)
	if tran == nil {
		return ErrBadTran
	}
	to, err := tran.Resolve(addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if err := s.bind(tran, tran.Scheme()+"://"); err != nil {
		s.mu.Unlock()
		return err
	}
	conn := s.conn
	s.mu.Unlock()
	return s.sendGeneral(conn, to, msg)
}

func (s *socket) Broadcast(port int, msg message.Message) error {
	s.mu.Lock()
	tran := s.tran
	if tran == nil {
		// no endpoint yet, broadcast implies the canonical transport
		if tran = transport.GetTransport("udp"); tran == nil {
			s.mu.Unlock()
			return ErrBadTran
		}
	}
	if err := s.bind(tran, tran.Scheme()+"://"); err != nil {
		s.mu.Unlock()
		return err
	}
	conn := s.conn
	s.mu.Unlock()

	to, err := conn.BroadcastAddr(port)
	if err != nil {
		return ErrNoBroadcast
	}
	return s.sendGeneral(conn, to, msg)
}

func (s *socket) sendGeneral(conn transport.PacketConn, to net.Addr, msg message.Message) error {
	buf := bytespool.Alloc(s.maxDatagram)
	defer bytespool.Free(buf)
	buf[0] = tagGeneral
	n, err := s.oracle.EncodeTo(buf[1:], msg)
	if err != nil {
		return err
	}
	_, err = conn.WriteTo(buf[:n+1], to)
	return err
}

func (s *socket) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closing = true
	var sts []*stream
	if s.client != nil {
		sts = append(sts, s.client)
	}
	for _, st := range s.streams {
		sts = append(sts, st)
	}
	var conn transport.PacketConn
	if len(sts) == 0 && s.conn != nil && !s.released {
		// nothing to drain, release the transport now
		s.released = true
		conn = s.conn
	}
	s.mu.Unlock()

	for _, st := range sts {
		st.Close()
	}
	if conn != nil {
		conn.Close()
	}
	return nil
}

// streams

func (s *socket) newStream(remote net.Addr, version uint16) *stream {
	return &stream{
		sk:            s,
		id:            streamID.NextID(),
		remote:        remote,
		key:           remote.String(),
		version:       version,
		retryTimer:    utils.NewTimer(),
		retryInterval: s.minRetry,
		maxAttempts:   s.maxAttempts,
	}
}

// streamDeliver dispatches one decoded in-order item to the registered
// stream handler.
func (s *socket) streamDeliver(st *stream) func(message.TypeId, message.Message) {
	return func(t message.TypeId, m message.Message) {
		s.mu.Lock()
		h := s.streamHandlers[t]
		ud := st.userData
		s.mu.Unlock()
		if h == nil {
			log.WithField("domain", "socket").
				WithFields(log.Fields{"type": t, "remote": st.key}).
				Info("no stream handler")
			return
		}
		h(ud, m)
	}
}

// streamEnded is the stream's one-shot end notification: evict the exact
// stream (never a replacement from a concurrent accept), notify the user,
// and release the transport once a closing socket has drained.
func (s *socket) streamEnded(st *stream) {
	s.mu.Lock()
	fireClose := false
	if st == s.client {
		s.client = nil
		fireClose = true
	} else if st.accepted {
		if cur, ok := s.streams[st.key]; ok && cur == st {
			delete(s.streams, st.key)
		}
		fireClose = true
	}
	closeH := s.closeHandler
	var conn transport.PacketConn
	if s.closing && !s.released && s.client == nil && len(s.streams) == 0 && s.conn != nil {
		s.released = true
		conn = s.conn
	}
	s.mu.Unlock()

	if log.IsLevelEnabled(log.DebugLevel) {
		log.WithField("domain", "socket").
			WithFields(log.Fields{"id": st.id, "remote": st.key, "accepted": st.accepted}).
			Debug("stream ended")
	}
	if fireClose && closeH != nil {
		s.safely("close handler", func() { closeH(st.remote, st.userData) })
	}
	if conn != nil {
		conn.Close()
	}
}

// inbound dispatch

func (s *socket) recvLoop(conn transport.PacketConn) {
	for {
		buf := bytespool.Alloc(s.maxDatagram)
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			bytespool.Free(buf)
			s.mu.Lock()
			quiet := s.released || s.closing
			s.mu.Unlock()
			if !quiet && err != errs.ErrClosed {
				log.WithField("domain", "socket").
					WithField("err", err).
					Error("receive")
			}
			return
		}
		s.dispatch(buf[:n], from)
		bytespool.Free(buf)
	}
}

func (s *socket) dispatch(b []byte, from net.Addr) {
	if len(b) == 0 {
		return
	}
	switch b[0] {
	case tagGeneral:
		s.dispatchGeneral(b[1:], from)
	case tagStream:
		s.dispatchStream(b[1:], from)
	default:
		log.WithField("domain", "socket").
			WithFields(log.Fields{"tag": b[0], "from": from.String()}).
			Info("unknown tag")
	}
}

func (s *socket) dispatchGeneral(b []byte, from net.Addr) {
	m, t, _, err := s.oracle.Decode(b)
	if err != nil {
		log.WithField("domain", "socket").
			WithFields(log.Fields{"type": t, "from": from.String(), "err": err}).
			Info("bad general message")
		return
	}
	s.mu.Lock()
	h := s.generalHandlers[t]
	s.mu.Unlock()
	if h == nil {
		log.WithField("domain", "socket").
			WithFields(log.Fields{"type": t, "from": from.String()}).
			Info("no general handler")
		return
	}
	h(m, from)
}

func (s *socket) dispatchStream(b []byte, from net.Addr) {
	key := from.String()
	s.mu.Lock()
	if s.client != nil {
		st := s.client
		s.mu.Unlock()
		if st.key != key {
			log.WithField("domain", "socket").
				WithField("from", key).
				Info("stray stream frame")
			return
		}
		st.receive(b)
		return
	}
	if s.streams == nil {
		s.mu.Unlock()
		log.WithField("domain", "socket").
			WithField("from", key).
			Info("stream frame while not listening")
		return
	}
	if st, ok := s.streams[key]; ok {
		s.mu.Unlock()
		st.receive(b)
		return
	}
	if s.closing {
		s.mu.Unlock()
		return
	}
	// a new inbound connection: provisional until the connect handler
	// decides; inbound streams keep version 0, the wire format carries
	// no version
	st := s.newStream(from, 0)
	pv := &provisional{sk: s, st: st}
	st.deliver = pv.deliver
	s.mu.Unlock()
	st.receive(b)
}

// provisional tracks an inbound stream between its first frame and the
// connect handler's decision. The handler may block, and more datagrams
// from the same remote may arrive meanwhile (each spawning its own
// provisional stream); the first commit wins, later ones are released
// silently.
type provisional struct {
	sk *socket
	st *stream

	mu       sync.Mutex
	started  bool
	settled  bool
	accepted bool
	backlog  []delivery
}

func (p *provisional) deliver(t message.TypeId, m message.Message) {
	p.mu.Lock()
	if !p.started {
		p.started = true
		p.mu.Unlock()
		go p.decide(t, m)
		return
	}
	if p.settled {
		accepted := p.accepted
		p.mu.Unlock()
		if accepted {
			p.sk.streamDeliver(p.st)(t, m)
		}
		return
	}
	// decision pending, hold on to it
	p.backlog = append(p.backlog, delivery{t: t, m: m})
	p.mu.Unlock()
}

func (p *provisional) decide(t message.TypeId, m message.Message) {
	sk, st := p.sk, p.st
	sk.mu.Lock()
	h := sk.connectHandlers[t]
	sk.mu.Unlock()
	if h == nil {
		log.WithField("domain", "socket").
			WithFields(log.Fields{"type": t, "remote": st.key}).
			Error("no connect handler")
		p.settle(false)
		st.Close()
		return
	}

	ud, err := h(m, st.remote)
	if err != nil {
		log.WithField("domain", "socket").
			WithFields(log.Fields{"remote": st.key, "err": err}).
			Info("connection refused")
		p.settle(false)
		st.Close()
		return
	}

	// the handler suspended us, re-check the registration
	sk.mu.Lock()
	if sk.closing || sk.streams == nil {
		sk.mu.Unlock()
		p.settle(false)
		st.Close()
		return
	}
	if _, ok := sk.streams[st.key]; ok {
		// another stream for this remote won meanwhile
		finish := st.end()
		sk.mu.Unlock()
		p.settle(false)
		if finish != nil {
			finish()
		}
		return
	}
	if st.ended {
		sk.mu.Unlock()
		p.settle(false)
		return
	}
	st.accepted = true
	st.userData = ud
	sk.streams[st.key] = st
	open := sk.openHandler
	sk.mu.Unlock()

	if open != nil {
		sk.safely("open handler", func() { open(st, ud) })
	}

	// flush items that arrived while deciding, in order, before going
	// direct
	deliverTo := sk.streamDeliver(st)
	p.mu.Lock()
	for len(p.backlog) > 0 {
		batch := p.backlog
		p.backlog = nil
		p.mu.Unlock()
		for i := range batch {
			deliverTo(batch[i].t, batch[i].m)
		}
		p.mu.Lock()
	}
	p.settled = true
	p.accepted = true
	p.mu.Unlock()
}

// settle records a non-accepting outcome; held-back items are dropped.
func (p *provisional) settle(accepted bool) {
	p.mu.Lock()
	p.settled = true
	p.accepted = accepted
	p.backlog = nil
	p.mu.Unlock()
}

func (s *socket) safely(what string, f func()) {
	defer func() {
		if e := recover(); e != nil {
			log.WithField("domain", "socket").
				WithFields(log.Fields{"what": what, "err": e}).
				Error("handler panicked")
		}
	}()
	f()
}
