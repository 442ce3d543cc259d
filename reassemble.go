package websocket

import (
	"golang.org/x/xerrors"

	"github.com/wirekit/websocket/internal/wsframe"
)

// frame is a complete frame with its payload unmasked.
type frame struct {
	header  wsframe.Header
	payload []byte
}

// assembler rebuilds frames from stream bytes that arrive in chunks of
// any size. A partial header waits in hdr until the two leading bytes
// say how long it is and that many bytes are present. Payload bytes are
// unmasked as they arrive.
type assembler struct {
	hdr    [wsframe.MaxHeaderSize]byte
	hdrLen int

	inFrame bool
	h       wsframe.Header
	payload []byte
	keyPos  int
}

// maxPrealloc caps the payload buffer allocated from a frame header alone.
// Larger payloads grow as their bytes arrive.
const maxPrealloc = 4096

func minPrealloc(n int64) int64 {
	if n > maxPrealloc {
		return maxPrealloc
	}
	return n
}

// next consumes bytes from p until a frame completes or p runs out and
// returns how many bytes it consumed. Bytes after a completed frame are
// left in p for the next call. limit caps the payload of data frames.
func (a *assembler) next(p []byte, limit int64) (n int, _ *frame, _ error) {
	if !a.inFrame {
		for {
			need := 2
			if a.hdrLen >= 2 {
				need = wsframe.HeaderSize(a.hdr[0], a.hdr[1])
			}
			if a.hdrLen == need {
				break
			}
			c := copy(a.hdr[a.hdrLen:need], p[n:])
			a.hdrLen += c
			n += c
			if a.hdrLen < need {
				return n, nil, nil
			}
		}

		h, _, err := wsframe.ParseHeader(a.hdr[:a.hdrLen])
		if err != nil {
			return n, nil, err
		}
		if !h.Opcode.Control() && h.PayloadLength > limit {
			return n, nil, xerrors.Errorf("frame payload of %v bytes exceeds the read limit, %v bytes remain", h.PayloadLength, limit)
		}

		a.hdrLen = 0
		a.inFrame = true
		a.h = h
		a.payload = make([]byte, 0, minPrealloc(h.PayloadLength))
		a.keyPos = 0
	}

	want := len(p) - n
	if remain := a.h.PayloadLength - int64(len(a.payload)); remain < int64(want) {
		want = int(remain)
	}
	start := len(a.payload)
	a.payload = append(a.payload, p[n:n+want]...)
	n += want
	if a.h.Masked {
		a.keyPos = wsframe.Mask(a.h.MaskKey, a.keyPos, a.payload[start:])
	}
	if int64(len(a.payload)) < a.h.PayloadLength {
		return n, nil, nil
	}

	f := &frame{
		header:  a.h,
		payload: a.payload,
	}
	a.inFrame = false
	a.payload = nil
	return n, f, nil
}

// reassembler joins data frames into messages. At most one message is
// in flight.
type reassembler struct {
	assembler

	limit int64
	msg   *Message
}

// budget is the payload the next data frame may carry.
func (r *reassembler) budget() int64 {
	if r.msg == nil {
		return r.limit
	}
	return r.limit - int64(len(r.msg.Payload))
}

// data adds a data frame to the message in flight. It returns the
// message once its final frame arrived.
func (r *reassembler) data(f *frame) (*Message, error) {
	op := f.header.Opcode
	switch {
	case op == OpContinuation && r.msg == nil:
		return nil, xerrors.New("received continuation frame without a message in flight")
	case op != OpContinuation && r.msg != nil:
		return nil, xerrors.Errorf("received new %v message while a fragmented %v message is in flight", op, r.msg.Opcode)
	}

	if r.msg == nil {
		m := &Message{
			Opcode:  op,
			Payload: f.payload,
		}
		if f.header.Fin {
			return m, nil
		}
		r.msg = m
		return nil, nil
	}

	r.msg.Payload = append(r.msg.Payload, f.payload...)
	if !f.header.Fin {
		return nil, nil
	}
	m := r.msg
	r.msg = nil
	return m, nil
}
