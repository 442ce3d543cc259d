package websocket

import (
	"github.com/wirekit/websocket/internal/wsframe"
)

// Opcode identifies the purpose of a frame.
// Messages delivered to OnRead carry OpText or OpBinary.
// See https://tools.ietf.org/html/rfc6455#section-5.2
type Opcode = wsframe.Opcode

// Opcode constants.
const (
	OpContinuation = wsframe.OpContinuation
	OpText         = wsframe.OpText
	OpBinary       = wsframe.OpBinary
	OpClose        = wsframe.OpClose
	OpPing         = wsframe.OpPing
	OpPong         = wsframe.OpPong
)
