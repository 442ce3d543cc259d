// Package wsframe implements the WebSocket frame header codec and the
// payload masking algorithm.
//
// See https://tools.ietf.org/html/rfc6455#section-5.2
package wsframe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// First byte contains fin, rsv1, rsv2, rsv3 and the opcode.
// Second byte contains mask flag and payload len.
// Next 8 bytes are the maximum extended payload length.
// Last 4 bytes are the mask key.
const MaxHeaderSize = 1 + 1 + 8 + 4

// MaxControlPayload is the maximum payload length of a control frame.
// See https://tools.ietf.org/html/rfc6455#section-5.5
const MaxControlPayload = 125

// Errors returned by ParseHeader for headers that violate RFC 6455.
var (
	ErrReservedBits      = errors.New("reserved bits set without a negotiated extension")
	ErrReservedOpcode    = errors.New("reserved opcode")
	ErrFragmentedControl = errors.New("fragmented control frame")
	ErrControlTooLarge   = fmt.Errorf("control frame payload larger than %v bytes", MaxControlPayload)
	ErrLengthOverflow    = errors.New("payload length has the most significant bit set")
)

// Header represents a WebSocket frame Header.
// MaskKey is only meaningful when Masked is set.
type Header struct {
	Fin    bool
	RSV1   bool
	RSV2   bool
	RSV3   bool
	Opcode Opcode

	PayloadLength int64

	Masked  bool
	MaskKey [4]byte
}

// HeaderSize returns the length of the header that starts with b0 and b1.
// The two bytes alone determine it.
func HeaderSize(b0, b1 byte) int {
	n := 2
	switch b1 &^ (1 << 7) {
	case 126:
		n += 2
	case 127:
		n += 8
	}
	if b1&(1<<7) != 0 {
		n += 4
	}
	return n
}

// Len returns the encoded length of h.
func (h Header) Len() int {
	n := 2
	switch {
	case h.PayloadLength > math.MaxUint16:
		n += 8
	case h.PayloadLength > 125:
		n += 2
	}
	if h.Masked {
		n += 4
	}
	return n
}

// Bytes appends the encoding of h to b[:0] and returns the result.
// A nil b allocates a buffer of MaxHeaderSize.
func (h Header) Bytes(b []byte) []byte {
	if b == nil {
		b = make([]byte, 0, MaxHeaderSize)
	}
	b = b[:0]

	var b0 byte
	if h.Fin {
		b0 |= 1 << 7
	}
	if h.RSV1 {
		b0 |= 1 << 6
	}
	if h.RSV2 {
		b0 |= 1 << 5
	}
	if h.RSV3 {
		b0 |= 1 << 4
	}
	b0 |= byte(h.Opcode) & 0xf

	var b1 byte
	if h.Masked {
		b1 |= 1 << 7
	}

	switch {
	case h.PayloadLength < 0:
		panic(fmt.Sprintf("websocket: invalid header: negative length: %v", h.PayloadLength))
	case h.PayloadLength <= 125:
		b = append(b, b0, b1|byte(h.PayloadLength))
	case h.PayloadLength <= math.MaxUint16:
		b = append(b, b0, b1|126)
		b = binary.BigEndian.AppendUint16(b, uint16(h.PayloadLength))
	default:
		b = append(b, b0, b1|127)
		b = binary.BigEndian.AppendUint64(b, uint64(h.PayloadLength))
	}

	if h.Masked {
		b = append(b, h.MaskKey[:]...)
	}
	return b
}

// ParseHeader decodes the header at the start of b.
//
// If b does not yet hold the whole header, ParseHeader returns a zero
// Header, n == 0 and a nil error so the caller can wait for more bytes.
// Otherwise n is the header length. Headers that are not valid for a
// peer without extensions return one of the package errors.
func ParseHeader(b []byte) (_ Header, n int, _ error) {
	if len(b) < 2 {
		return Header{}, 0, nil
	}
	n = HeaderSize(b[0], b[1])
	if len(b) < n {
		return Header{}, 0, nil
	}

	var h Header
	h.Fin = b[0]&(1<<7) != 0
	h.RSV1 = b[0]&(1<<6) != 0
	h.RSV2 = b[0]&(1<<5) != 0
	h.RSV3 = b[0]&(1<<4) != 0
	h.Opcode = Opcode(b[0] & 0xf)
	h.Masked = b[1]&(1<<7) != 0

	rest := b[2:n]
	switch payloadLength := b[1] &^ (1 << 7); payloadLength {
	case 126:
		h.PayloadLength = int64(binary.BigEndian.Uint16(rest))
		rest = rest[2:]
	case 127:
		l := binary.BigEndian.Uint64(rest)
		if l > math.MaxInt64 {
			return Header{}, 0, ErrLengthOverflow
		}
		h.PayloadLength = int64(l)
		rest = rest[8:]
	default:
		h.PayloadLength = int64(payloadLength)
	}

	if h.Masked {
		copy(h.MaskKey[:], rest)
	}

	switch {
	case h.RSV1 || h.RSV2 || h.RSV3:
		return Header{}, 0, ErrReservedBits
	case h.Opcode.reserved():
		return Header{}, 0, fmt.Errorf("%w: %d", ErrReservedOpcode, int(h.Opcode))
	case h.Opcode.Control() && !h.Fin:
		return Header{}, 0, ErrFragmentedControl
	case h.Opcode.Control() && h.PayloadLength > MaxControlPayload:
		return Header{}, 0, ErrControlTooLarge
	}

	return h, n, nil
}
