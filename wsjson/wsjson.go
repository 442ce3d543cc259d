// Package wsjson provides helpers for JSON messages.
package wsjson

import (
	"encoding/json"

	"golang.org/x/xerrors"

	"github.com/wirekit/websocket"
	"github.com/wirekit/websocket/internal/bufpool"
	"github.com/wirekit/websocket/internal/errd"
)

// Decode decodes the JSON text message m into v.
func Decode(m websocket.Message, v interface{}) (err error) {
	defer errd.Wrap(&err, "failed to read JSON message")

	if m.Opcode != websocket.OpText {
		return xerrors.Errorf("expected %v message but got %v", websocket.OpText, m.Opcode)
	}

	err = json.Unmarshal(m.Payload, v)
	if err != nil {
		return xerrors.Errorf("failed to unmarshal JSON: %w", err)
	}
	return nil
}

// Write writes the JSON message v to s as a text message.
func Write(s *websocket.Session, v interface{}) (err error) {
	defer errd.Wrap(&err, "failed to write JSON message")

	b := bufpool.Get()
	defer bufpool.Put(b)

	err = json.NewEncoder(b).Encode(v)
	if err != nil {
		return xerrors.Errorf("failed to marshal JSON: %w", err)
	}

	return s.Write(b.Bytes(), websocket.OpText)
}
