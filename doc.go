// Package websocket is an event driven implementation of the WebSocket
// protocol.
//
// A Session runs on a byte stream that was upgraded with the opening
// handshake. Upgrade and Handler perform the server side of the handshake
// on an http.Request, Dial and Connect the client side. The bytes read
// from the stream are fed to Session.ReadData, either by Session.Serve or
// by the caller's own read loop, and complete messages are delivered to
// the OnRead handler. Pings are answered and the close handshake is run
// by the session itself.
//
// Fragmented messages are reassembled. Compression and other extensions
// are not supported.
//
// See https://tools.ietf.org/html/rfc6455
package websocket
