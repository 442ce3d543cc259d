package websocket_test

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"

	"cdr.dev/slog/sloggers/slogtest"

	"github.com/wirekit/websocket"
	"github.com/wirekit/websocket/internal/test/assert"
	"github.com/wirekit/websocket/internal/test/xrand"
	"github.com/wirekit/websocket/internal/wsframe"
)

// testStream records everything a session writes.
type testStream struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	closed   bool
	writeErr error
}

func (ts *testStream) Write(p []byte) (int, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.writeErr != nil {
		return 0, ts.writeErr
	}
	if ts.closed {
		return 0, errors.New("write on closed stream")
	}
	return ts.buf.Write(p)
}

func (ts *testStream) Close() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.closed = true
	return nil
}

func (ts *testStream) isClosed() bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.closed
}

// frames decodes and unmasks the frames written so far.
func (ts *testStream) frames(t testing.TB) []wireFrame {
	t.Helper()

	ts.mu.Lock()
	b := append([]byte(nil), ts.buf.Bytes()...)
	ts.mu.Unlock()

	var frames []wireFrame
	for len(b) > 0 {
		h, n, err := wsframe.ParseHeader(b)
		assert.Success(t, err)
		if n == 0 || int64(len(b)-n) < h.PayloadLength {
			t.Fatalf("truncated frame in stream: %x", b)
		}
		p := append([]byte(nil), b[n:n+int(h.PayloadLength)]...)
		if h.Masked {
			wsframe.Mask(h.MaskKey, 0, p)
		}
		frames = append(frames, wireFrame{
			op:      h.Opcode,
			fin:     h.Fin,
			masked:  h.Masked,
			payload: p,
		})
		b = b[n+int(h.PayloadLength):]
	}
	return frames
}

// funcStream turns a write function into a Stream.
type funcStream struct {
	io.Writer
}

func (funcStream) Close() error {
	return nil
}

type wireFrame struct {
	op      websocket.Opcode
	fin     bool
	masked  bool
	payload []byte
}

// encodeFrame returns the wire form of a frame, masked with a random key
// when masked is set.
func encodeFrame(op websocket.Opcode, fin, masked bool, payload []byte) []byte {
	h := wsframe.Header{
		Fin:           fin,
		Opcode:        op,
		PayloadLength: int64(len(payload)),
		Masked:        masked,
	}
	if masked {
		copy(h.MaskKey[:], xrand.Bytes(4))
	}
	b := h.Bytes(nil)
	start := len(b)
	b = append(b, payload...)
	if masked {
		wsframe.Mask(h.MaskKey, 0, b[start:])
	}
	return b
}

func closePayload(code websocket.StatusCode, reason string) []byte {
	return append([]byte{byte(code >> 8), byte(code)}, reason...)
}

// recorder collects the events a session delivers.
type recorder struct {
	mu     sync.Mutex
	msgs   []websocket.Message
	errs   []error
	closes []websocket.StatusCode
	order  []string
}

func record(s *websocket.Session) *recorder {
	r := &recorder{}
	s.OnRead(func(m websocket.Message) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.msgs = append(r.msgs, m)
		r.order = append(r.order, "read")
	})
	s.OnError(func(err error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.errs = append(r.errs, err)
		r.order = append(r.order, "error")
	})
	s.OnClose(func(code websocket.StatusCode) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.closes = append(r.closes, code)
		r.order = append(r.order, "close")
	})
	return r
}

func (r *recorder) snapshot() ([]websocket.Message, []error, []websocket.StatusCode, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]websocket.Message(nil), r.msgs...),
		append([]error(nil), r.errs...),
		append([]websocket.StatusCode(nil), r.closes...),
		append([]string(nil), r.order...)
}

func newServerSession(t testing.TB, opts *websocket.SessionOptions) (*websocket.Session, *testStream, *recorder) {
	var o websocket.SessionOptions
	if opts != nil {
		o = *opts
	}
	o.Logger = slogtest.Make(t, nil)

	ts := &testStream{}
	s := websocket.NewSession(ts, false, &o)
	return s, ts, record(s)
}
