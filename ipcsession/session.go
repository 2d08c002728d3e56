package ipcsession

import (
	"encoding/binary"
	"fmt"
	"log/slog"
)

// ErrorKind classifies a session-level failure delivered to a pending result.
type ErrorKind int

const (
	ErrTransientIO ErrorKind = iota
	ErrProtocolViolation
	ErrDisconnected
)

func (k ErrorKind) String() string {
	switch k {
	case ErrTransientIO:
		return "TransientIO"
	case ErrProtocolViolation:
		return "ProtocolViolation"
	case ErrDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// SessionError is the out-parameter error record a Result is delivered with.
type SessionError struct {
	Kind    ErrorKind
	Message string
}

func (e *SessionError) Error() string { return e.Message }

func newSessionError(kind ErrorKind, format string, args ...any) *SessionError {
	return &SessionError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Result is the caller-owned slot a single pending request's response lands
// in. Deliver is invoked once for every response frame carrying Cid while
// the result stays registered, each time with either a decoded payload or
// an error, and never both.
type Result struct {
	Cid     uint64
	Deliver func(payload []byte, err *SessionError)
}

// NewResult builds a Result for the given correlation id.
func NewResult(cid uint64, deliver func(payload []byte, err *SessionError)) *Result {
	return &Result{Cid: cid, Deliver: deliver}
}

// Transport is the byte-level collaborator a Session drives. Read and Write
// never block: they report wouldBlock when no further progress is possible
// right now, and disconnected when the peer has gone away.
type Transport interface {
	Fd() int
	Read(buf []byte) (n int, wouldBlock bool, disconnected bool, err error)
	Write(buf []byte) (n int, wouldBlock bool, disconnected bool, err error)
}

// Poller drives WaitForEvent. An outer event loop normally owns the real
// select/epoll/kqueue call directly via Fd()/WantWrite(); Poller only backs
// the convenience wrapper.
type Poller interface {
	Poll(fd int, wantRead, wantWrite bool, timeoutSeconds float64) (readable, writable bool, err error)
}

// inboundState tracks a length-prefixed frame read that may span several
// on_readable calls.
type inboundState struct {
	lenBuf    [4]byte
	lenFilled int
	length    uint32
	payload   []byte
	filled    int
}

func (in *inboundState) reset() {
	in.lenFilled = 0
	in.length = 0
	in.payload = nil
	in.filled = 0
}

// outboundFrame is one length-prefixed frame waiting in the out-queue,
// possibly partially written already.
type outboundFrame struct {
	data   []byte
	offset int
}

// Session is a non-blocking IPC client session. An outer event loop drives
// it via Fd(), WantWrite(), OnReadable() and OnWritable(); WaitForEvent is a
// convenience wrapper around a caller-supplied Poller.
type Session struct {
	transport Transport
	logger    *slog.Logger

	lockFn   func()
	unlockFn func()

	pending map[uint64]*Result

	outQueue []*outboundFrame
	inbound  inboundState

	disconnected    bool
	disconnectErr   *SessionError
	onDisconnect    func()
	disconnectFired bool

	maxFrame int
}

// NewSession wraps a Transport in a Session. logger defaults to slog.Default
// when nil. maxFrame defaults to DefaultMaxFrame.
func NewSession(transport Transport, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		transport: transport,
		logger:    logger,
		pending:   make(map[uint64]*Result),
		maxFrame:  DefaultMaxFrame,
	}
}

// SetMaxFrame overrides the frame size Send and OnReadable enforce. Values
// above MaxFrameHardLimit are clamped down to it.
func (s *Session) SetMaxFrame(n int) {
	if n > MaxFrameHardLimit {
		n = MaxFrameHardLimit
	}
	s.maxFrame = n
}

// SetLockFuncs installs the optional lock/unlock functors guarding the
// pending-results table. Pass nil, nil for single-threaded use.
func (s *Session) SetLockFuncs(lock, unlock func()) {
	s.lockFn = lock
	s.unlockFn = unlock
}

// SetDisconnectCallback installs the callback fired once on disconnect.
func (s *Session) SetDisconnectCallback(fn func()) {
	s.onDisconnect = fn
}

// Fd returns the underlying descriptor for poll registration.
func (s *Session) Fd() int { return s.transport.Fd() }

// WantWrite reports whether the out-queue is non-empty and the session is
// still connected.
func (s *Session) WantWrite() bool {
	return !s.disconnected && len(s.outQueue) > 0
}

// IsDisconnected reports whether the session has transitioned out of
// Connected. The transition is sticky.
func (s *Session) IsDisconnected() bool { return s.disconnected }

// withLock runs fn guarded by the installed lock functors, if any. Uses
// unlockFn to release the lock, not lockFn.
func (s *Session) withLock(fn func()) {
	if s.lockFn == nil {
		fn()
		return
	}
	s.lockFn()
	defer s.unlockFn()
	fn()
}

// RegisterResult adds a pending result keyed by its cid.
func (s *Session) RegisterResult(r *Result) {
	s.withLock(func() { s.pending[r.Cid] = r })
}

// UnregisterResult removes a pending result.
func (s *Session) UnregisterResult(r *Result) {
	s.withLock(func() { delete(s.pending, r.Cid) })
}

// LookupResult finds the pending result registered for cid, if any.
func (s *Session) LookupResult(cid uint64) (*Result, bool) {
	var r *Result
	var ok bool
	s.withLock(func() { r, ok = s.pending[cid] })
	return r, ok
}

// Send stamps cid on msg and enqueues it at the tail of the out-queue.
// Frames that would encode larger than maxFrame are rejected.
func (s *Session) Send(msg *Frame, cid uint64) bool {
	if s.disconnected {
		return false
	}
	msg.Id = cid
	encoded, err := EncodeFrame(msg)
	if err != nil {
		s.logger.Error("failed to encode outbound ipc frame", "cid", cid, "error", err)
		return false
	}
	if len(encoded) > s.maxFrame {
		s.logger.Error("outbound ipc frame exceeds max_frame", "cid", cid, "size", len(encoded), "max_frame", s.maxFrame)
		return false
	}
	framed := make([]byte, 4+len(encoded))
	binary.BigEndian.PutUint32(framed, uint32(len(encoded)))
	copy(framed[4:], encoded)
	s.outQueue = append(s.outQueue, &outboundFrame{data: framed})
	return true
}

// OnReadable drains as many complete framed messages as the transport has
// buffered. A partial read leaves the in-progress frame in place for the
// next call.
func (s *Session) OnReadable() {
	if s.disconnected {
		return
	}
	for {
		if s.inbound.length == 0 && s.inbound.lenFilled < 4 {
			n, _, disc, err := s.transport.Read(s.inbound.lenBuf[s.inbound.lenFilled:4])
			s.inbound.lenFilled += n
			if disc {
				s.disconnect()
				return
			}
			if err != nil {
				s.logger.Warn("ipc read failed", "error", err)
				s.disconnect()
				return
			}
			if s.inbound.lenFilled < 4 {
				return
			}
			s.inbound.length = binary.BigEndian.Uint32(s.inbound.lenBuf[:])
			if int(s.inbound.length) > s.maxFrame {
				s.logger.Warn("inbound ipc frame exceeds max_frame", "size", s.inbound.length, "max_frame", s.maxFrame)
				s.disconnect()
				return
			}
			s.inbound.payload = make([]byte, s.inbound.length)
			s.inbound.filled = 0
		}

		if s.inbound.filled < int(s.inbound.length) {
			n, _, disc, err := s.transport.Read(s.inbound.payload[s.inbound.filled:])
			s.inbound.filled += n
			if disc {
				s.disconnect()
				return
			}
			if err != nil {
				s.logger.Warn("ipc read failed", "error", err)
				s.disconnect()
				return
			}
			if s.inbound.filled < int(s.inbound.length) {
				return
			}
		}

		raw := s.inbound.payload
		s.inbound.reset()
		frame, err := DecodeFrame(raw)
		if err != nil {
			s.logger.Warn("ipc frame decode failed", "error", err)
			continue
		}
		// Cleared above, before dispatch: a handler invoked from Deliver may
		// call Send/RegisterResult without corrupting reader state.
		s.dispatch(frame)
	}
}

func (s *Session) dispatch(frame *Frame) {
	result, found := s.LookupResult(frame.Id)
	if !found {
		return
	}
	if frame.FrameType == FrameTypeErr {
		result.Deliver(nil, newSessionError(ErrProtocolViolation, "%s", frame.ErrorMessage()))
		return
	}
	result.Deliver(frame.Payload, nil)
}

// OnWritable drains the out-queue while the transport accepts writes. On a
// partial write it leaves the head frame in place and returns.
func (s *Session) OnWritable() {
	if s.disconnected {
		return
	}
	for len(s.outQueue) > 0 {
		head := s.outQueue[0]
		n, _, disc, err := s.transport.Write(head.data[head.offset:])
		head.offset += n
		if disc {
			s.disconnect()
			return
		}
		if err != nil {
			s.logger.Warn("ipc write failed", "error", err)
			s.disconnect()
			return
		}
		if head.offset >= len(head.data) {
			s.outQueue = s.outQueue[1:]
			continue
		}
		return
	}
}

// WaitForEvent builds the poll set via poller and invokes OnReadable /
// OnWritable according to what came back ready.
func (s *Session) WaitForEvent(poller Poller, timeoutSeconds float64) error {
	if s.disconnected {
		return newSessionError(ErrDisconnected, "Disconnected")
	}
	readable, writable, err := poller.Poll(s.transport.Fd(), true, s.WantWrite(), timeoutSeconds)
	if err != nil {
		return err
	}
	if readable {
		s.OnReadable()
	}
	if writable {
		s.OnWritable()
	}
	return nil
}

// Disconnect flips the sticky Connected->Disconnected transition, frees the
// in-progress read, and fires the user's disconnect callback exactly once.
func (s *Session) Disconnect() {
	if s.disconnected {
		return
	}
	s.disconnected = true
	s.inbound.reset()
	s.disconnectErr = newSessionError(ErrDisconnected, "Disconnected")
	if !s.disconnectFired {
		s.disconnectFired = true
		if s.onDisconnect != nil {
			s.onDisconnect()
		}
	}
}

func (s *Session) disconnect() { s.Disconnect() }

// DisconnectError returns the error the session transitioned with, or nil
// while still connected.
func (s *Session) DisconnectError() *SessionError { return s.disconnectErr }
