package websocket

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"cdr.dev/slog"
	"github.com/eapache/queue"
)

// Stream is the byte stream a session runs on. Writes must be delivered
// in order. The session owns the stream and closes it when it ends.
type Stream interface {
	io.Writer
	io.Closer
}

// SessionOptions configures a session.
type SessionOptions struct {
	// ReadLimit is the maximum size in bytes of a received message.
	// A larger message closes the session with StatusProtocolError.
	// Defaults to 32768.
	ReadLimit int64

	// CloseTimeout bounds the wait for the peer's close frame after Close.
	// Defaults to 5 seconds.
	CloseTimeout time.Duration

	// ReadBufferSize is the size of the reads Serve makes.
	// Defaults to 4096.
	ReadBufferSize int

	// Logger receives protocol diagnostics. The zero value discards them.
	Logger slog.Logger
}

func (opts *SessionOptions) cloneWithDefaults() *SessionOptions {
	var o SessionOptions
	if opts != nil {
		o = *opts
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = 5 * time.Second
	}
	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = 4096
	}
	return &o
}

// Session is one side of a WebSocket connection.
//
// Bytes received from the stream are fed to ReadData, by Serve or by the
// caller's own read loop. Complete messages, errors and the end of the
// session are delivered to the handlers registered with OnRead, OnError
// and OnClose. Handlers run one at a time and are never reentered: an
// event raised while a handler runs is delivered after it returns.
//
// All methods are safe for concurrent use.
type Session struct {
	opts   *SessionOptions
	client bool
	addr   string
	log    slog.Logger
	rand   io.Reader
	src    io.Reader
	done   chan struct{}

	// wmu serializes frame writes. It is always acquired before mu.
	wmu sync.Mutex

	// mu guards everything below. No I/O happens while it is held.
	mu         sync.Mutex
	stream     Stream
	r          reassembler
	closing    bool
	closeTimer *time.Timer
	err        error

	onRead  func(Message)
	onClose func(StatusCode)
	onError func(error)

	events      *queue.Queue
	dispatching bool
}

// NewSession returns a session running on stream. Use it when the opening
// handshake was done elsewhere; Upgrade and Dial call it for you. client
// selects the side: a client masks the frames it writes and a server
// requires masked frames. The caller feeds received bytes to ReadData.
func NewSession(stream Stream, client bool, opts *SessionOptions) *Session {
	return newSession(stream, nil, client, opts)
}

func newSession(stream Stream, src io.Reader, client bool, opts *SessionOptions) *Session {
	opts = opts.cloneWithDefaults()

	s := &Session{
		opts:   opts,
		client: client,
		addr:   "unknown",
		rand:   rand.Reader,
		src:    src,
		done:   make(chan struct{}),
		stream: stream,
		events: queue.New(),
	}
	s.r.limit = opts.ReadLimit
	if c, ok := stream.(interface{ RemoteAddr() net.Addr }); ok {
		s.addr = c.RemoteAddr().String()
	}
	s.log = opts.Logger.With(
		slog.F("side", s.side()),
		slog.F("remote_addr", s.addr),
	)
	return s
}

func (s *Session) side() string {
	if s.client {
		return "client"
	}
	return "server"
}

// OnRead sets the handler for complete data messages. It replaces the
// previous handler; nil removes it.
func (s *Session) OnRead(fn func(Message)) {
	s.mu.Lock()
	s.onRead = fn
	s.mu.Unlock()
}

// OnClose sets the handler called exactly once when the session ends,
// with the peer's close code, the code of the violation that failed the
// session or StatusAbnormalClosure.
func (s *Session) OnClose(fn func(StatusCode)) {
	s.mu.Lock()
	s.onClose = fn
	s.mu.Unlock()
}

// OnError sets the handler for protocol and transport errors. Each error
// is followed by OnClose.
func (s *Session) OnError(fn func(error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// IsAlive reports whether the session still owns its stream.
func (s *Session) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

// IsClient reports whether s is the client side of the connection.
func (s *Session) IsClient() bool {
	return s.client
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns why the session ended. It is a CloseError when the peer
// sent a close frame and nil while the session is alive.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) String() string {
	return fmt.Sprintf("websocket %v session with %v", s.side(), s.addr)
}

// releaseLocked detaches the stream and queues OnClose. The caller
// closes the returned stream after unlocking mu. It returns nil when
// the session has already ended.
func (s *Session) releaseLocked(code StatusCode, cause error) Stream {
	stream := s.stream
	if stream == nil {
		return nil
	}
	s.stream = nil
	s.closing = true
	if s.closeTimer != nil {
		s.closeTimer.Stop()
	}
	s.err = cause
	s.events.Add(event{closed: true, code: code})
	close(s.done)

	s.log.Debug(context.Background(), "session ended", slog.F("code", code))
	return stream
}

func (s *Session) closeStream(stream Stream) {
	if stream == nil {
		return
	}
	err := stream.Close()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.Debug(context.Background(), "failed to close stream", slog.Error(err))
	}
}

// transportFailed ends the session after a failed write or read.
func (s *Session) transportFailed(err error) {
	s.mu.Lock()
	if s.stream == nil {
		s.mu.Unlock()
		return
	}
	terr := &TransportError{Err: err}
	s.log.Warn(context.Background(), "transport failed", slog.Error(err))
	s.events.Add(event{err: terr})
	stream := s.releaseLocked(StatusAbnormalClosure, terr)
	s.mu.Unlock()

	s.closeStream(stream)
	s.dispatch()
}

// StreamClosed tells the session its stream was closed by the peer or
// failed. err is nil or io.EOF for an orderly shutdown; anything else is
// reported to OnError. Unless the close handshake already finished, the
// session ends with StatusAbnormalClosure.
func (s *Session) StreamClosed(err error) {
	orderly := err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
	if !orderly {
		s.transportFailed(err)
		return
	}

	s.mu.Lock()
	stream := s.releaseLocked(StatusAbnormalClosure, &TransportError{Err: io.ErrUnexpectedEOF})
	s.mu.Unlock()

	s.closeStream(stream)
	s.dispatch()
}
