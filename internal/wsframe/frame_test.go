package wsframe_test

import (
	"bytes"
	"math"
	"strconv"
	"testing"

	"github.com/gobwas/ws"

	"github.com/wirekit/websocket/internal/test/assert"
	"github.com/wirekit/websocket/internal/test/xrand"
	"github.com/wirekit/websocket/internal/wsframe"
)

var opcodes = []wsframe.Opcode{
	wsframe.OpContinuation,
	wsframe.OpText,
	wsframe.OpBinary,
	wsframe.OpClose,
	wsframe.OpPing,
	wsframe.OpPong,
}

func TestHeader(t *testing.T) {
	t.Parallel()

	t.Run("roundTrip", func(t *testing.T) {
		t.Parallel()

		lengths := []int64{0, 1, 125, 126, 65535, 65536, 1 << 20}

		for _, op := range opcodes {
			for _, n := range lengths {
				if op.Control() && n > wsframe.MaxControlPayload {
					continue
				}
				for _, masked := range []bool{false, true} {
					h := wsframe.Header{
						Fin:           true,
						Opcode:        op,
						PayloadLength: n,
						Masked:        masked,
					}
					if masked {
						copy(h.MaskKey[:], xrand.Bytes(4))
					}

					name := op.String() + "/" + strconv.FormatInt(n, 10) + "/" + strconv.FormatBool(masked)
					t.Run(name, func(t *testing.T) {
						t.Parallel()

						b := h.Bytes(nil)
						assert.Equal(t, "header length", h.Len(), len(b))
						assert.Equal(t, "header size", len(b), wsframe.HeaderSize(b[0], b[1]))

						h2, n, err := wsframe.ParseHeader(b)
						assert.Success(t, err)
						assert.Equal(t, "consumed", len(b), n)
						assert.Equal(t, "header", h, h2)
					})
				}
			}
		}
	})

	t.Run("minimalLength", func(t *testing.T) {
		t.Parallel()

		testCases := []struct {
			length int64
			size   int
		}{
			{125, 2},
			{126, 4},
			{math.MaxUint16, 4},
			{math.MaxUint16 + 1, 10},
		}
		for _, tc := range testCases {
			b := wsframe.Header{Opcode: wsframe.OpBinary, PayloadLength: tc.length}.Bytes(nil)
			assert.Equal(t, "size of "+strconv.FormatInt(tc.length, 10), tc.size, len(b))
		}
	})

	t.Run("incomplete", func(t *testing.T) {
		t.Parallel()

		h := wsframe.Header{
			Fin:           true,
			Opcode:        wsframe.OpBinary,
			PayloadLength: 1 << 20,
			Masked:        true,
			MaskKey:       [4]byte{1, 2, 3, 4},
		}
		b := h.Bytes(nil)
		for i := 0; i < len(b); i++ {
			_, n, err := wsframe.ParseHeader(b[:i])
			assert.Success(t, err)
			assert.Equal(t, "consumed of prefix "+strconv.Itoa(i), 0, n)
		}
	})

	t.Run("trailingPayload", func(t *testing.T) {
		t.Parallel()

		b := wsframe.Header{Fin: true, Opcode: wsframe.OpText, PayloadLength: 3}.Bytes(nil)
		b = append(b, "abc"...)

		h, n, err := wsframe.ParseHeader(b)
		assert.Success(t, err)
		assert.Equal(t, "consumed", 2, n)
		assert.Equal(t, "payload length", int64(3), h.PayloadLength)
	})

	t.Run("invalid", func(t *testing.T) {
		t.Parallel()

		testCases := []struct {
			name string
			b    []byte
			err  error
		}{
			{
				name: "rsv1",
				b:    []byte{0x80 | 0x40 | 0x1, 0},
				err:  wsframe.ErrReservedBits,
			},
			{
				name: "rsv3",
				b:    []byte{0x80 | 0x10 | 0x2, 0},
				err:  wsframe.ErrReservedBits,
			},
			{
				name: "reservedDataOpcode",
				b:    []byte{0x80 | 0x3, 0},
				err:  wsframe.ErrReservedOpcode,
			},
			{
				name: "reservedControlOpcode",
				b:    []byte{0x80 | 0xb, 0},
				err:  wsframe.ErrReservedOpcode,
			},
			{
				name: "fragmentedPing",
				b:    []byte{0x9, 0},
				err:  wsframe.ErrFragmentedControl,
			},
			{
				name: "bigClose",
				b:    []byte{0x80 | 0x8, 126, 0, 200},
				err:  wsframe.ErrControlTooLarge,
			},
			{
				name: "overflow",
				b:    []byte{0x82, 127, 0x80, 0, 0, 0, 0, 0, 0, 1},
				err:  wsframe.ErrLengthOverflow,
			},
		}

		for _, tc := range testCases {
			tc := tc
			t.Run(tc.name, func(t *testing.T) {
				t.Parallel()

				_, n, err := wsframe.ParseHeader(tc.b)
				assert.ErrorIs(t, tc.err, err)
				assert.Equal(t, "consumed", 0, n)
			})
		}
	})

	t.Run("negativeLength", func(t *testing.T) {
		t.Parallel()

		defer func() {
			if recover() == nil {
				t.Fatal("failed to induce panic in Bytes with negative payload length")
			}
		}()

		wsframe.Header{PayloadLength: -1}.Bytes(nil)
	})

	t.Run("gobwas", func(t *testing.T) {
		t.Parallel()

		for i := 0; i < 1000; i++ {
			op := opcodes[xrand.Int(len(opcodes))]
			h := wsframe.Header{
				Fin:           true,
				Opcode:        op,
				PayloadLength: int64(xrand.Int(1 << 17)),
				Masked:        xrand.Bool(),
			}
			if op.Control() {
				h.PayloadLength %= wsframe.MaxControlPayload + 1
			}
			if h.Masked {
				copy(h.MaskKey[:], xrand.Bytes(4))
			}

			var buf bytes.Buffer
			err := ws.WriteHeader(&buf, ws.Header{
				Fin:    h.Fin,
				OpCode: ws.OpCode(h.Opcode),
				Masked: h.Masked,
				Mask:   h.MaskKey,
				Length: h.PayloadLength,
			})
			assert.Success(t, err)
			assert.Equal(t, "encoding", buf.Bytes(), h.Bytes(nil))

			gh, err := ws.ReadHeader(bytes.NewReader(h.Bytes(nil)))
			assert.Success(t, err)
			assert.Equal(t, "gobwas length", h.PayloadLength, gh.Length)
			assert.Equal(t, "gobwas mask", h.MaskKey, gh.Mask)
		}
	})
}

func TestOpcode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "text", "TEXT", wsframe.OpText.String())
	assert.Equal(t, "pong", "PONG", wsframe.OpPong.String())
	assert.Equal(t, "reserved", "RESERVED", wsframe.Opcode(5).String())
	assert.Equal(t, "close is control", true, wsframe.OpClose.Control())
	assert.Equal(t, "binary is data", true, wsframe.OpBinary.Data())
	assert.Equal(t, "continuation is data", false, wsframe.OpContinuation.Data())
}
