package wsframe

import (
	"encoding/binary"
)

// Mask applies the WebSocket masking algorithm to b in place
// with the given key, starting at key position pos.
// See https://tools.ietf.org/html/rfc6455#section-5.3
//
// The returned value is the key position of the next byte so a
// payload can be unmasked as it arrives rather than all at once.
// Masking is its own inverse.
func Mask(key [4]byte, pos int, b []byte) int {
	pos &= 3

	// Long payloads are xored a word at a time with the key
	// rotated so that it lines up with pos.
	// See https://github.com/golang/go/issues/31586
	if len(b) >= 16 {
		var aligned [8]byte
		for i := range aligned {
			aligned[i] = key[(pos+i)&3]
		}
		k := binary.LittleEndian.Uint64(aligned[:])

		for len(b) >= 32 {
			binary.LittleEndian.PutUint64(b, binary.LittleEndian.Uint64(b)^k)
			binary.LittleEndian.PutUint64(b[8:], binary.LittleEndian.Uint64(b[8:])^k)
			binary.LittleEndian.PutUint64(b[16:], binary.LittleEndian.Uint64(b[16:])^k)
			binary.LittleEndian.PutUint64(b[24:], binary.LittleEndian.Uint64(b[24:])^k)
			b = b[32:]
		}
		for len(b) >= 8 {
			binary.LittleEndian.PutUint64(b, binary.LittleEndian.Uint64(b)^k)
			b = b[8:]
		}
	}

	for i := range b {
		b[i] ^= key[pos]
		pos = (pos + 1) & 3
	}
	return pos
}
