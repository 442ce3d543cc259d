package wstest

import (
	"bytes"
	"context"
	"fmt"

	"github.com/wirekit/websocket"
	"github.com/wirekit/websocket/internal/test/xrand"
	"github.com/wirekit/websocket/internal/xsync"
)

// EchoLoop makes s write every message it receives back to the peer.
func EchoLoop(s *websocket.Session) {
	s.OnRead(func(m websocket.Message) {
		s.Write(m.Payload, m.Opcode)
	})
}

// Collect registers an OnRead handler on s that sends every message on
// the returned channel. The channel holds up to n messages.
func Collect(s *websocket.Session, n int) <-chan websocket.Message {
	msgs := make(chan websocket.Message, n)
	s.OnRead(func(m websocket.Message) {
		msgs <- m
	})
	return msgs
}

// Echo writes a random message of up to max bytes on s and ensures the
// same message arrives on msgs.
func Echo(ctx context.Context, s *websocket.Session, msgs <-chan websocket.Message, max int) error {
	expOp := websocket.OpBinary
	if xrand.Bool() {
		expOp = websocket.OpText
	}

	msg := randMessage(expOp, xrand.Int(max))

	writeErr := xsync.Go(func() error {
		return s.Write(msg, expOp)
	})

	var act websocket.Message
	select {
	case <-ctx.Done():
		return ctx.Err()
	case act = <-msgs:
	}

	err := <-writeErr
	if err != nil {
		return err
	}

	if expOp != act.Opcode {
		return fmt.Errorf("unexpected message opcode (%v): %v", expOp, act.Opcode)
	}

	if !bytes.Equal(msg, act.Payload) {
		return fmt.Errorf("unexpected message read: %#v", act.Payload)
	}

	return nil
}

func randMessage(op websocket.Opcode, n int) []byte {
	if op == websocket.OpBinary {
		return xrand.Bytes(n)
	}
	return []byte(xrand.String(n))
}
