// Package wspb provides helpers for protobuf messages.
package wspb

import (
	"github.com/golang/protobuf/proto"
	"golang.org/x/xerrors"

	"github.com/wirekit/websocket"
	"github.com/wirekit/websocket/internal/errd"
)

// Decode unmarshals the binary message m into v.
func Decode(m websocket.Message, v proto.Message) (err error) {
	defer errd.Wrap(&err, "failed to read protobuf message")

	if m.Opcode != websocket.OpBinary {
		return xerrors.Errorf("expected %v message but got %v", websocket.OpBinary, m.Opcode)
	}

	err = proto.Unmarshal(m.Payload, v)
	if err != nil {
		return xerrors.Errorf("failed to unmarshal protobuf: %w", err)
	}
	return nil
}

// Write writes the protobuf message v to s as a binary message.
func Write(s *websocket.Session, v proto.Message) (err error) {
	defer errd.Wrap(&err, "failed to write protobuf message")

	b, err := proto.Marshal(v)
	if err != nil {
		return xerrors.Errorf("failed to marshal protobuf: %w", err)
	}

	return s.Write(b, websocket.OpBinary)
}
