// Package bufpool pools the buffers frames are assembled in before
// they are written to a stream.
package bufpool

import (
	"bytes"
	"sync"
)

var pool sync.Pool

// Get returns an empty buffer from the pool or creates a new one if
// the pool is empty.
func Get() *bytes.Buffer {
	b, ok := pool.Get().(*bytes.Buffer)
	if !ok {
		b = &bytes.Buffer{}
	}
	return b
}

// Put resets b and returns it into the pool.
// Buffers that grew past 64 KiB are dropped so one large message
// does not pin its memory.
func Put(b *bytes.Buffer) {
	if b.Cap() > 64<<10 {
		return
	}
	b.Reset()
	pool.Put(b)
}
