package websocket

import (
	"context"
	"unicode/utf8"

	"cdr.dev/slog"
	"golang.org/x/xerrors"
)

// reply is a frame the session owes the peer after reading.
type reply struct {
	op      Opcode
	payload []byte
}

// ending is how the session ends once the replies are written.
type ending struct {
	code  StatusCode
	cause error
}

// ReadData feeds bytes received from the stream into the session. Chunks
// may split or join frames at any point. Pings are answered, messages and
// errors are delivered to the handlers, and a close frame or a protocol
// violation ends the session, all before ReadData returns unless it was
// called from within a handler. ReadData does not retain p.
func (s *Session) ReadData(p []byte) {
	s.mu.Lock()
	replies, end := s.consumeLocked(p)
	s.mu.Unlock()

	s.finishRead(replies, end)
	s.dispatch()
}

func (s *Session) consumeLocked(p []byte) (replies []reply, end *ending) {
	for len(p) > 0 && s.stream != nil && end == nil {
		n, f, err := s.r.next(p, s.r.budget())
		p = p[n:]
		if err != nil {
			return s.failLocked(protocolError(StatusProtocolError, err), replies)
		}
		if f != nil {
			replies, end = s.frameLocked(f, replies)
		}
	}
	return replies, end
}

func (s *Session) frameLocked(f *frame, replies []reply) ([]reply, *ending) {
	h := f.header
	if h.Masked == s.client {
		if s.client {
			return s.failLocked(protocolError(StatusProtocolError, xerrors.New("received masked frame from server")), replies)
		}
		return s.failLocked(protocolError(StatusProtocolError, xerrors.New("received unmasked frame from client")), replies)
	}

	switch h.Opcode {
	case OpPing:
		if !s.closing {
			replies = append(replies, reply{op: OpPong, payload: f.payload})
		}
		return replies, nil
	case OpPong:
		return replies, nil
	case OpClose:
		ce, err := parseClosePayload(f.payload)
		if err != nil {
			return s.failLocked(protocolError(StatusProtocolError, err), replies)
		}
		return s.closeReceivedLocked(ce, replies)
	}

	m, err := s.r.data(f)
	if err != nil {
		return s.failLocked(protocolError(StatusProtocolError, err), replies)
	}
	if m == nil || s.closing {
		return replies, nil
	}
	if m.Opcode == OpText && !utf8.Valid(m.Payload) {
		return s.failLocked(protocolError(StatusInvalidFramePayloadData, xerrors.New("received text message that is not valid UTF-8")), replies)
	}
	s.events.Add(event{msg: m})
	return replies, nil
}

func (s *Session) closeReceivedLocked(ce CloseError, replies []reply) ([]reply, *ending) {
	s.log.Debug(context.Background(), "received close frame",
		slog.F("code", ce.Code),
		slog.F("reason", ce.Reason),
	)

	end := &ending{code: ce.Code, cause: ce}
	if s.closing {
		// The peer acknowledged our close frame.
		return replies, end
	}
	s.closing = true

	echo := CloseError{Code: ce.Code}
	if echo.Code == StatusNoStatusRcvd {
		echo.Code = StatusNormalClosure
	}
	p, _ := echo.bytes()
	return append(replies, reply{op: OpClose, payload: p}), end
}

// failLocked queues perr for OnError and ends the session with its code,
// sending a close frame unless one was already sent.
func (s *Session) failLocked(perr *ProtocolError, replies []reply) ([]reply, *ending) {
	s.log.Warn(context.Background(), "protocol violation",
		slog.F("code", perr.Code),
		slog.Error(perr.Err),
	)
	s.events.Add(event{err: perr})

	end := &ending{code: perr.Code, cause: perr}
	if s.closing {
		return replies, end
	}
	s.closing = true
	p, _ := CloseError{Code: perr.Code}.bytes()
	return append(replies, reply{op: OpClose, payload: p}), end
}

func (s *Session) finishRead(replies []reply, end *ending) {
	for _, r := range replies {
		err := s.writeFrame(r.op, r.payload, true)
		if err == nil || xerrors.Is(err, errCloseSent) {
			// A pong is dropped once Close sent its frame.
			continue
		}
		if r.op == OpClose {
			// The session ends below either way.
			s.log.Debug(context.Background(), "failed to write close frame", slog.Error(err))
			break
		}
		s.transportFailed(err)
		return
	}

	if end != nil {
		s.mu.Lock()
		stream := s.releaseLocked(end.code, end.cause)
		s.mu.Unlock()
		s.closeStream(stream)
	}
}
