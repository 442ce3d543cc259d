package websocket

import (
	"context"
	"time"

	"cdr.dev/slog"
	"golang.org/x/xerrors"

	"github.com/wirekit/websocket/internal/errd"
)

// Close starts the close handshake with code and reason. The reason must
// be valid UTF-8 and at most 123 bytes. The session ends when the peer
// answers with its own close frame or, failing that, after CloseTimeout
// with StatusAbnormalClosure. Either way OnClose is called.
//
// Calling Close while the handshake is under way does nothing. Close
// returns ErrClosed once the session has ended.
func (s *Session) Close(code StatusCode, reason string) (err error) {
	defer errd.Wrap(&err, "failed to close WebSocket")

	p, err := CloseError{Code: code, Reason: reason}.bytes()
	if err != nil {
		return err
	}

	s.wmu.Lock()
	s.mu.Lock()
	stream := s.stream
	switch {
	case stream == nil:
		s.mu.Unlock()
		s.wmu.Unlock()
		return ErrClosed
	case s.closing:
		s.mu.Unlock()
		s.wmu.Unlock()
		return nil
	}
	s.closing = true
	s.closeTimer = time.AfterFunc(s.opts.CloseTimeout, s.closeTimedOut)
	s.mu.Unlock()

	s.log.Debug(context.Background(), "sending close frame",
		slog.F("code", code),
		slog.F("reason", reason),
	)
	err = s.writeFrameTo(stream, OpClose, p)
	s.wmu.Unlock()
	if err != nil {
		s.transportFailed(err)
		return err
	}
	return nil
}

func (s *Session) closeTimedOut() {
	s.mu.Lock()
	if s.stream == nil {
		s.mu.Unlock()
		return
	}
	s.log.Warn(context.Background(), "peer did not answer close frame",
		slog.F("timeout", s.opts.CloseTimeout),
	)
	stream := s.releaseLocked(StatusAbnormalClosure, xerrors.Errorf("close handshake timed out after %v", s.opts.CloseTimeout))
	s.mu.Unlock()

	s.closeStream(stream)
	s.dispatch()
}
