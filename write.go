package websocket

import (
	"errors"
	"io"

	"golang.org/x/xerrors"

	"github.com/wirekit/websocket/internal/bufpool"
	"github.com/wirekit/websocket/internal/errd"
	"github.com/wirekit/websocket/internal/wsframe"
)

// Write sends p as a single final frame with opcode op, which must be
// OpText, OpBinary, OpPing or OpPong. Control payloads are limited to
// 125 bytes. A client masks the frame with a fresh random key.
//
// Write returns ErrClosed once the session has ended. A failed write
// ends the session and is reported to OnError.
func (s *Session) Write(p []byte, op Opcode) (err error) {
	defer errd.Wrap(&err, "failed to write %v frame", op)

	switch {
	case op == OpClose:
		return xerrors.New("close frames are sent with Close")
	case op == OpContinuation:
		return xerrors.New("continuation frames cannot be written directly")
	case !op.Control() && !op.Data():
		return xerrors.Errorf("reserved opcode %v", int(op))
	case op.Control() && len(p) > wsframe.MaxControlPayload:
		return xerrors.Errorf("control frame payload of %v bytes exceeds %v bytes", len(p), wsframe.MaxControlPayload)
	}

	err = s.writeFrame(op, p, false)
	if err != nil && !errors.Is(err, ErrClosed) && !errors.Is(err, errCloseSent) {
		s.transportFailed(err)
	}
	return err
}

// WriteText sends text as a single text frame.
func (s *Session) WriteText(text string) error {
	return s.Write([]byte(text), OpText)
}

// Ping sends a ping frame. The pong is handled by the session and not
// delivered to the handlers.
func (s *Session) Ping(p []byte) error {
	return s.Write(p, OpPing)
}

// writeFrame writes one frame if the session is still alive. Once closing,
// only the close frame owed to the peer as a reply goes out, so a close
// frame is always the last frame written.
func (s *Session) writeFrame(op Opcode, p []byte, reply bool) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.Lock()
	stream, closing := s.stream, s.closing
	s.mu.Unlock()

	switch {
	case stream == nil:
		return ErrClosed
	case closing && !(reply && op == OpClose):
		return errCloseSent
	}
	return s.writeFrameTo(stream, op, p)
}

// writeFrameTo encodes the frame into a pooled buffer and hands it to the
// stream in one Write. wmu must be held.
func (s *Session) writeFrameTo(stream Stream, op Opcode, p []byte) error {
	h := wsframe.Header{
		Fin:           true,
		Opcode:        op,
		PayloadLength: int64(len(p)),
		Masked:        s.client,
	}
	if h.Masked {
		_, err := io.ReadFull(s.rand, h.MaskKey[:])
		if err != nil {
			return xerrors.Errorf("failed to generate mask key: %w", err)
		}
	}

	buf := bufpool.Get()
	defer bufpool.Put(buf)

	var hb [wsframe.MaxHeaderSize]byte
	buf.Write(h.Bytes(hb[:0]))
	start := buf.Len()
	buf.Write(p)
	if h.Masked {
		wsframe.Mask(h.MaskKey, 0, buf.Bytes()[start:])
	}

	_, err := stream.Write(buf.Bytes())
	return err
}
