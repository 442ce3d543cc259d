package websocket

import (
	"errors"
	"fmt"
)

// ErrClosed is returned when writing to or closing a session whose
// stream has already been released.
var ErrClosed = errors.New("websocket: session closed")

// errCloseSent is returned by Write after Close sent the close frame.
var errCloseSent = errors.New("websocket: close frame already sent")

// HandshakeError is returned by Upgrade, UpgradeResponse and Dial when the
// opening handshake fails. No session is created.
type HandshakeError struct {
	Err error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("websocket: handshake failed: %v", e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// ProtocolError is reported to OnError when the peer violates RFC 6455.
// The session is closed with StatusProtocolError or, for text that is
// not UTF-8, StatusInvalidFramePayloadData.
type ProtocolError struct {
	Code StatusCode
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("websocket: protocol violation: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// TransportError is reported to OnError when the underlying stream fails.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("websocket: transport failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func protocolError(code StatusCode, err error) *ProtocolError {
	return &ProtocolError{Code: code, Err: err}
}
