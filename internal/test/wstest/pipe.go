package wstest

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"

	"github.com/wirekit/websocket"
	"github.com/wirekit/websocket/internal/errd"
)

// Pipe returns a client and a server session connected in memory through
// net.Pipe. The handshake runs through Dial and Upgrade. Neither session
// is served yet.
//
// net.Pipe is unbuffered: a write blocks until the peer's Serve reads it.
func Pipe(dialOpts *websocket.DialOptions, acceptOpts *websocket.AcceptOptions) (client, server *websocket.Session, err error) {
	defer errd.Wrap(&err, "failed to create session pipe")

	var upgradeErr error
	tt := fakeTransport{
		h: func(w http.ResponseWriter, r *http.Request) {
			server, upgradeErr = websocket.Upgrade(w, r, acceptOpts)
		},
	}

	var opts websocket.DialOptions
	if dialOpts != nil {
		opts = *dialOpts
	}
	opts.HTTPClient = &http.Client{
		Transport: tt,
	}

	client, _, err = websocket.Dial(context.Background(), "ws://example.com", &opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial with fake transport: %w", err)
	}

	if server == nil {
		return nil, nil, fmt.Errorf("failed to get server session from fake transport: %w", upgradeErr)
	}

	return client, server, nil
}

// fakeTransport serves every request with h over a fresh net.Pipe.
type fakeTransport struct {
	h http.HandlerFunc
}

func (t fakeTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	clientConn, serverConn := net.Pipe()

	hj := &testHijacker{
		ResponseRecorder: httptest.NewRecorder(),
		serverConn:       serverConn,
	}

	t.h.ServeHTTP(hj, r)

	if !hj.hijacked {
		clientConn.Close()
		serverConn.Close()
		return hj.ResponseRecorder.Result(), nil
	}

	resp, err := http.ReadResponse(bufio.NewReader(&hj.handshake), r)
	if err != nil {
		clientConn.Close()
		serverConn.Close()
		return nil, fmt.Errorf("failed to read handshake response: %w", err)
	}
	resp.Body = clientConn
	return resp, nil
}

// testHijacker captures the handshake response written after Hijack so
// it does not block on the unbuffered pipe.
type testHijacker struct {
	*httptest.ResponseRecorder
	serverConn net.Conn
	hijacked   bool
	handshake  bytes.Buffer
}

var _ http.Hijacker = &testHijacker{}

func (hj *testHijacker) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj.hijacked = true
	return hj.serverConn, bufio.NewReadWriter(bufio.NewReader(hj.serverConn), bufio.NewWriter(&hj.handshake)), nil
}
