package websocket

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/textproto"
	"time"

	"golang.org/x/net/http/httpguts"
	"golang.org/x/xerrors"
)

// AcceptOptions represents the options available to pass to Upgrade.
type AcceptOptions struct {
	SessionOptions

	// Accept decides whether the handshake from remoteAddr for path may
	// proceed. A declined handshake gets 403 Forbidden. A nil Accept
	// accepts every request.
	Accept func(remoteAddr, path string) bool
}

func verifyClientRequest(w http.ResponseWriter, r *http.Request) error {
	if r.Method != "GET" {
		err := xerrors.Errorf("handshake request method is not GET but %q", r.Method)
		http.Error(w, err.Error(), http.StatusMethodNotAllowed)
		return err
	}

	if !headerValuesContainsToken(r.Header, "Connection", "Upgrade") {
		err := xerrors.Errorf("Connection header %q does not contain Upgrade", r.Header.Get("Connection"))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}

	if !headerValuesContainsToken(r.Header, "Upgrade", "websocket") {
		err := xerrors.Errorf("Upgrade header %q does not contain websocket", r.Header.Get("Upgrade"))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}

	if r.Header.Get("Sec-WebSocket-Version") != "13" {
		w.Header().Set("Sec-WebSocket-Version", "13")
		err := xerrors.Errorf("unsupported WebSocket protocol version (only 13 is supported): %q", r.Header.Get("Sec-WebSocket-Version"))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}

	key := r.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		err := xerrors.New("missing Sec-WebSocket-Key")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}
	b, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(b) != 16 {
		err := xerrors.Errorf("Sec-WebSocket-Key %q is not 16 bytes of base64", key)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}

	return nil
}

// Upgrade accepts a WebSocket handshake from a client and upgrades the
// connection to a server session.
//
// When the request is not a valid handshake or opts.Accept declines it,
// Upgrade writes an HTTP error response and returns a *HandshakeError.
// The 101 response is written to the hijacked connection, so w must
// implement http.Hijacker.
//
// The caller registers its handlers on the session and then runs Serve.
func Upgrade(w http.ResponseWriter, r *http.Request, opts *AcceptOptions) (_ *Session, err error) {
	defer func() {
		if err != nil {
			err = &HandshakeError{Err: err}
		}
	}()

	if opts == nil {
		opts = &AcceptOptions{}
	}

	err = verifyClientRequest(w, r)
	if err != nil {
		return nil, err
	}

	if opts.Accept != nil && !opts.Accept(r.RemoteAddr, r.URL.Path) {
		err = xerrors.Errorf("handshake from %v for %q declined", r.RemoteAddr, r.URL.Path)
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return nil, err
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		err = xerrors.New("http.ResponseWriter does not implement http.Hijacker")
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return nil, err
	}

	h := w.Header()
	h.Set("Upgrade", "websocket")
	h.Set("Connection", "Upgrade")
	h.Set("Sec-WebSocket-Accept", AcceptKey(r.Header.Get("Sec-WebSocket-Key")))

	netConn, brw, err := hj.Hijack()
	if err != nil {
		err = xerrors.Errorf("failed to hijack connection: %w", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return nil, err
	}

	// The http.Server read deadline would otherwise end the session.
	netConn.SetDeadline(time.Time{})

	fmt.Fprintf(brw, "HTTP/1.1 %d %s\r\n", http.StatusSwitchingProtocols, http.StatusText(http.StatusSwitchingProtocols))
	h.Write(brw)
	brw.WriteString("\r\n")
	err = brw.Flush()
	if err != nil {
		netConn.Close()
		return nil, xerrors.Errorf("failed to write handshake response: %w", err)
	}

	return newSession(netConn, brw.Reader, false, &opts.SessionOptions), nil
}

// Handler returns an http.Handler that upgrades every request, passes
// the session to onConnect to register its handlers and then serves it
// until it ends.
func Handler(onConnect func(*Session), opts *AcceptOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := Upgrade(w, r, opts)
		if err != nil {
			return
		}
		onConnect(s)
		s.Serve(r.Context())
	})
}

func headerValuesContainsToken(h http.Header, key, val string) bool {
	key = textproto.CanonicalMIMEHeaderKey(key)
	return httpguts.HeaderValuesContainsToken(h[key], val)
}

var keyGUID = []byte("258EAFA5-E914-47DA-95CA-C5AB0DC85B11")

// AcceptKey returns the Sec-WebSocket-Accept value for the client's
// Sec-WebSocket-Key.
func AcceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write(keyGUID)

	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
