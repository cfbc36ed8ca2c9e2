package gramsock

import (
	"encoding/binary"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/webee/gramsock/bytespool"
	"github.com/webee/gramsock/message"
	"github.com/webee/gramsock/utils"
)

// datagram tags
const (
	tagGeneral = 0
	tagStream  = 1
)

// reserved sequence values. Items are numbered from 1.
const (
	seqTerminator = 0
	closeSentinel = 0xFFFF
)

var be = binary.BigEndian

var streamID = utils.NewRecyclableIDGenerator()

type (
	streamItem struct {
		seq  uint16
		item message.Message
	}

	delivery struct {
		t message.TypeId
		m message.Message
	}

	// stream is the per-peer reliable ordered channel. All mutable state
	// is guarded by the owning socket's mutex; handlers and the close
	// notification always fire outside of it.
	stream struct {
		sk      *socket
		id      uint32
		remote  net.Addr
		key     string
		version uint16

		localSeq      uint16
		remoteSeq     uint16
		pending       []streamItem
		sendScheduled bool
		retryTimer    *utils.Timer
		retryInterval time.Duration
		attempts      int
		maxAttempts   int
		closing       bool
		ended         bool

		accepted bool
		userData interface{}
		deliver  func(t message.TypeId, m message.Message)
	}
)

func (s *stream) Remote() net.Addr {
	return s.remote
}

func (s *stream) Version() uint16 {
	return s.version
}

// Enqueue assign the next sequence and queue msg for delivery. No-op once
// the stream is closing.
func (s *stream) Enqueue(msg message.Message) {
	sk := s.sk
	sk.mu.Lock()
	if s.closing || s.ended {
		sk.mu.Unlock()
		return
	}
	s.localSeq++
	s.pending = append(s.pending, streamItem{seq: s.localSeq, item: msg})
	s.scheduleSend()
	sk.mu.Unlock()
}

// Close drains pending items, transmits the close sentinel and lowers the
// attempts budget. Idempotent.
func (s *stream) Close() {
	sk := s.sk
	sk.mu.Lock()
	if s.closing || s.ended {
		sk.mu.Unlock()
		return
	}
	s.closing = true
	if sk.closingMaxAttempts < s.maxAttempts {
		s.maxAttempts = sk.closingMaxAttempts
	}
	s.scheduleSend()
	sk.mu.Unlock()
}

// scheduleSend coalesces state changes into one upcoming flush. Caller
// must hold sk.mu.
func (s *stream) scheduleSend() {
	if s.sendScheduled || s.ended {
		return
	}
	s.sendScheduled = true
	go s.flush()
}

// end tears the stream down without further protocol traffic: timers
// cancelled, pending discarded. Caller must hold sk.mu; the returned
// finish func must be invoked after unlocking, it notifies the socket
// exactly once.
func (s *stream) end() (finish func()) {
	if s.ended {
		return nil
	}
	s.ended = true
	s.closing = true
	s.pending = nil
	s.retryTimer.Stop()
	streamID.Recycle(s.id)
	return func() { s.sk.streamEnded(s) }
}

func (s *stream) retryExpired() {
	sk := s.sk
	sk.mu.Lock()
	if !s.ended {
		s.scheduleSend()
	}
	sk.mu.Unlock()
}

// flush emits one frame carrying the cumulative ack and as much of the
// pending queue as fits, then arms the retry timer while anything remains
// outstanding.
func (s *stream) flush() {
	sk := s.sk
	sk.mu.Lock()
	s.sendScheduled = false
	if s.ended {
		sk.mu.Unlock()
		return
	}
	s.attempts++
	if s.attempts > s.maxAttempts {
		log.WithField("domain", "stream").
			WithFields(log.Fields{"id": s.id, "remote": s.key, "attempts": s.attempts - 1}).
			Info("peer unreachable")
		finish := s.end()
		sk.mu.Unlock()
		finish()
		return
	}

	buf := bytespool.Alloc(sk.maxDatagram)
	n := s.serialize(buf)

	if len(s.pending) > 0 || s.closing {
		s.retryTimer.Arm(s.retryInterval, s.retryExpired)
		s.retryInterval += sk.retryStep
		if s.retryInterval > sk.maxRetry {
			s.retryInterval = sk.maxRetry
		}
	} else {
		// pure ack, nothing to confirm
		s.attempts = 0
	}
	remote := s.remote
	conn := sk.conn
	sk.mu.Unlock()

	if conn != nil {
		if _, err := conn.WriteTo(buf[:n], remote); err != nil {
			// the retry machinery will come back for it
			log.WithField("domain", "stream").
				WithFields(log.Fields{"id": s.id, "remote": s.key, "err": err}).
				Info("transport send")
		}
	}
	bytespool.Free(buf)
}

// serialize writes the frame body: tag, cumulative ack, pending items,
// terminator. Items that do not fit stay pending; the close sentinel is
// only written once the whole queue fitted, so it is never out of order
// with data. Caller must hold sk.mu.
func (s *stream) serialize(buf []byte) int {
	buf[0] = tagStream
	n := 1
	be.PutUint16(buf[n:], s.remoteSeq)
	n += 2

	wroteAll := true
	limit := len(buf) - 2 // room for the terminator
	for i := range s.pending {
		it := &s.pending[i]
		mark := n
		if n+2 > limit {
			wroteAll = false
			break
		}
		be.PutUint16(buf[n:], it.seq)
		w, err := s.sk.oracle.EncodeTo(buf[n+2:limit], it.item)
		if err != nil {
			// revert the cursor, the item stays pending
			n = mark
			wroteAll = false
			if log.IsLevelEnabled(log.DebugLevel) {
				log.WithField("domain", "stream").
					WithFields(log.Fields{"id": s.id, "seq": it.seq, "err": err}).
					Debug("item deferred")
			}
			break
		}
		n += 2 + w
	}

	if s.closing && wroteAll {
		be.PutUint16(buf[n:], closeSentinel)
	} else {
		be.PutUint16(buf[n:], seqTerminator)
	}
	return n + 2
}

// receive consumes one inbound frame body: cumulative ack first, then
// sequenced items. New items are delivered in order, duplicates are
// silently discarded after scheduling a redundant ack.
func (s *stream) receive(body []byte) {
	sk := s.sk
	sk.mu.Lock()
	if s.ended {
		sk.mu.Unlock()
		return
	}
	if len(body) < 2 {
		sk.mu.Unlock()
		log.WithField("domain", "stream").
			WithFields(log.Fields{"id": s.id, "remote": s.key}).
			Info("truncated frame")
		return
	}
	ack := be.Uint16(body)
	body = body[2:]
	for len(s.pending) > 0 && s.pending[0].seq <= ack {
		s.pending = s.pending[1:]
	}
	s.attempts = 0
	if ack == closeSentinel {
		// peer tore the stream down
		finish := s.end()
		sk.mu.Unlock()
		finish()
		return
	}
	s.retryInterval = sk.minRetry
	s.retryTimer.Stop()
	if len(s.pending) > 0 || s.closing {
		// more to flush: items beyond the last frame's capacity, or an
		// outstanding close sentinel
		s.scheduleSend()
	}

	var deliveries []delivery
	for {
		if len(body) < 2 {
			log.WithField("domain", "stream").
				WithFields(log.Fields{"id": s.id, "remote": s.key}).
				Info("frame missing terminator")
			break
		}
		seq := be.Uint16(body)
		body = body[2:]
		if seq == seqTerminator {
			break
		}
		if seq == closeSentinel {
			// remote initiated close: confirm once, then give up fast
			s.remoteSeq = closeSentinel
			s.closing = true
			s.maxAttempts = 1
			s.scheduleSend()
			break
		}
		m, t, n, err := sk.oracle.Decode(body)
		if n == 0 {
			log.WithField("domain", "stream").
				WithFields(log.Fields{"id": s.id, "seq": seq, "err": err}).
				Info("undecodable item")
			break
		}
		body = body[n:]
		s.scheduleSend() // carry the ack back
		if seq <= s.remoteSeq {
			// duplicate
			continue
		}
		s.remoteSeq = seq
		if err != nil {
			log.WithField("domain", "stream").
				WithFields(log.Fields{"id": s.id, "seq": seq, "type": t, "err": err}).
				Info("item dropped")
			continue
		}
		deliveries = append(deliveries, delivery{t: t, m: m})
	}
	deliver := s.deliver
	sk.mu.Unlock()

	if deliver != nil {
		for i := range deliveries {
			deliver(deliveries[i].t, deliveries[i].m)
		}
	}
}
