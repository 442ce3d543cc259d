package websocket

import (
	"math"
	"testing"

	"github.com/wirekit/websocket/internal/test/assert"
	"github.com/wirekit/websocket/internal/test/xrand"
	"github.com/wirekit/websocket/internal/wsframe"
)

func encode(h wsframe.Header, payload []byte) []byte {
	h.PayloadLength = int64(len(payload))
	b := h.Bytes(nil)
	start := len(b)
	b = append(b, payload...)
	if h.Masked {
		wsframe.Mask(h.MaskKey, 0, b[start:])
	}
	return b
}

func TestAssembler(t *testing.T) {
	t.Parallel()

	t.Run("consumesOneFrame", func(t *testing.T) {
		t.Parallel()

		h := wsframe.Header{Fin: true, Opcode: OpBinary, Masked: true, MaskKey: [4]byte{1, 2, 3, 4}}
		first := encode(h, []byte("first"))
		b := append(first, encode(h, []byte("second"))...)

		var a assembler
		n, f, err := a.next(b, 1<<20)
		assert.Success(t, err)
		assert.Equal(t, "consumed", len(first), n)
		assert.Equal(t, "payload", "first", string(f.payload))

		n, f, err = a.next(b[n:], 1<<20)
		assert.Success(t, err)
		assert.Equal(t, "consumed", len(b)-len(first), n)
		assert.Equal(t, "payload", "second", string(f.payload))
	})

	t.Run("emptyPayload", func(t *testing.T) {
		t.Parallel()

		b := encode(wsframe.Header{Fin: true, Opcode: OpPing, Masked: true}, nil)

		var a assembler
		n, f, err := a.next(b, 0)
		assert.Success(t, err)
		assert.Equal(t, "consumed", len(b), n)
		if f == nil {
			t.Fatal("expected a frame")
		}
		assert.Equal(t, "opcode", OpPing, f.header.Opcode)
	})

	t.Run("partialHeader", func(t *testing.T) {
		t.Parallel()

		payload := xrand.Bytes(70000)
		b := encode(wsframe.Header{Fin: true, Opcode: OpBinary, Masked: true, MaskKey: [4]byte{9, 8, 7, 6}}, payload)
		assert.Equal(t, "header size", 14, len(b)-len(payload))

		var a assembler
		for i := 0; i < 13; i++ {
			n, f, err := a.next(b[i:i+1], 1<<20)
			assert.Success(t, err)
			assert.Equal(t, "consumed", 1, n)
			if f != nil {
				t.Fatalf("unexpected frame after %v header bytes", i+1)
			}
		}

		var got *frame
		for rest := b[13:]; len(rest) > 0; {
			chunk := rest[:1+xrand.Int(len(rest))]
			n, f, err := a.next(chunk, 1<<20)
			assert.Success(t, err)
			assert.Equal(t, "consumed", len(chunk), n)
			rest = rest[n:]
			if f != nil {
				got = f
			}
		}
		if got == nil {
			t.Fatal("expected a frame")
		}
		assert.Equal(t, "payload", payload, got.payload)
	})

	t.Run("limit", func(t *testing.T) {
		t.Parallel()

		b := encode(wsframe.Header{Fin: true, Opcode: OpText}, []byte("12345"))

		var a assembler
		_, _, err := a.next(b, 4)
		assert.Contains(t, err, "read limit")

		// Control frames are bounded by the codec instead.
		a = assembler{}
		_, f, err := a.next(encode(wsframe.Header{Fin: true, Opcode: OpPong}, []byte("12345")), 4)
		assert.Success(t, err)
		assert.Equal(t, "payload", "12345", string(f.payload))
	})

	t.Run("hugeDeclaredLength", func(t *testing.T) {
		t.Parallel()

		h := wsframe.Header{Opcode: OpBinary, PayloadLength: 1 << 62, Masked: true}
		b := h.Bytes(nil)
		b = append(b, "abc"...)

		var a assembler
		n, f, err := a.next(b, math.MaxInt64)
		assert.Success(t, err)
		assert.Equal(t, "consumed", len(b), n)
		if f != nil {
			t.Fatal("unexpected frame")
		}
		assert.Equal(t, "payload", "abc", string(a.payload))
		if cap(a.payload) > maxPrealloc {
			t.Fatalf("preallocated %v bytes", cap(a.payload))
		}
	})
}

func TestReassembler(t *testing.T) {
	t.Parallel()

	frag := func(op Opcode, fin bool, p string) *frame {
		return &frame{
			header:  wsframe.Header{Fin: fin, Opcode: op, PayloadLength: int64(len(p))},
			payload: []byte(p),
		}
	}

	r := reassembler{limit: 10}

	m, err := r.data(frag(OpText, false, "abc"))
	assert.Success(t, err)
	if m != nil {
		t.Fatal("unexpected message before final frame")
	}
	assert.Equal(t, "budget", int64(7), r.budget())

	m, err = r.data(frag(OpContinuation, false, "def"))
	assert.Success(t, err)
	if m != nil {
		t.Fatal("unexpected message before final frame")
	}

	m, err = r.data(frag(OpContinuation, true, "g"))
	assert.Success(t, err)
	assert.Equal(t, "message", &Message{Opcode: OpText, Payload: []byte("abcdefg")}, m)
	assert.Equal(t, "budget", int64(10), r.budget())

	_, err = r.data(frag(OpContinuation, true, "x"))
	assert.Contains(t, err, "without a message in flight")

	_, err = r.data(frag(OpBinary, false, "x"))
	assert.Success(t, err)
	_, err = r.data(frag(OpText, true, "y"))
	assert.Contains(t, err, "while a fragmented BINARY message is in flight")
}
