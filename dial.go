package websocket

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/xerrors"
)

// bodyReadTimeout bounds the read of a rejected handshake response body.
const bodyReadTimeout = 3 * time.Second

// DialOptions represents the options available to pass to Dial.
type DialOptions struct {
	SessionOptions

	// HTTPClient is the client used for the handshake. Its Transport must
	// use HTTP/1.1 and return writable bodies for 101 responses, which
	// http.Transport does. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// HTTPHeader is added to the handshake request.
	HTTPHeader http.Header
}

// GenerateKey returns a Sec-WebSocket-Key: 16 random bytes in base64.
func GenerateKey() (string, error) {
	return generateKey(rand.Reader)
}

func generateKey(r io.Reader) (string, error) {
	b := make([]byte, 16)
	_, err := io.ReadFull(r, b)
	if err != nil {
		return "", xerrors.Errorf("failed to read random data: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Dial performs a WebSocket handshake on u, a ws or wss URL, and returns
// a client session. The handshake response is returned for inspection;
// its body belongs to the session.
//
// A failed handshake returns a *HandshakeError and, when the server
// answered, the response with up to 1024 bytes of its body.
func Dial(ctx context.Context, u string, opts *DialOptions) (*Session, *http.Response, error) {
	return dial(ctx, u, opts, rand.Reader)
}

func dial(ctx context.Context, u string, opts *DialOptions, rand io.Reader) (_ *Session, _ *http.Response, err error) {
	defer func() {
		if err != nil {
			err = &HandshakeError{Err: err}
		}
	}()

	if opts == nil {
		opts = &DialOptions{}
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	parsedURL, err := url.Parse(u)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to parse url: %w", err)
	}

	switch parsedURL.Scheme {
	case "ws":
		parsedURL.Scheme = "http"
	case "wss":
		parsedURL.Scheme = "https"
	default:
		return nil, nil, xerrors.Errorf("unexpected url scheme: %q", parsedURL.Scheme)
	}

	key, err := generateKey(rand)
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", parsedURL.String(), nil)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to create handshake request: %w", err)
	}
	for k, v := range opts.HTTPHeader {
		req.Header[k] = append([]string(nil), v...)
	}
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", key)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, xerrors.Errorf("failed to send handshake request: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if resp.StatusCode == http.StatusSwitchingProtocols {
			// The body is the upgraded connection, nothing to read.
			resp.Body.Close()
			return
		}

		// We read a bit of the body for easier debugging.
		timer := time.AfterFunc(bodyReadTimeout, func() {
			resp.Body.Close()
		})
		defer timer.Stop()

		r := io.LimitReader(resp.Body, 1024)
		b, _ := ioutil.ReadAll(r)
		resp.Body.Close()
		resp.Body = ioutil.NopCloser(bytes.NewReader(b))
	}()

	s, err := upgradeResponse(resp, key, &opts.SessionOptions)
	if err != nil {
		return nil, resp, err
	}
	return s, resp, nil
}

// Connect dials u in a new goroutine and passes the session, or the
// error that prevented it, to callback.
func Connect(ctx context.Context, u string, opts *DialOptions, callback func(*Session, error)) {
	go func() {
		s, _, err := Dial(ctx, u, opts)
		callback(s, err)
	}()
}

// UpgradeResponse verifies resp, the answer to a handshake request sent
// with key, and returns a client session running on its body. Use it
// when the handshake request was sent without Dial.
func UpgradeResponse(resp *http.Response, key string, opts *SessionOptions) (*Session, error) {
	s, err := upgradeResponse(resp, key, opts)
	if err != nil {
		return nil, &HandshakeError{Err: err}
	}
	return s, nil
}

func upgradeResponse(resp *http.Response, key string, opts *SessionOptions) (*Session, error) {
	err := verifyServerResponse(resp, key)
	if err != nil {
		return nil, err
	}

	rwc, ok := resp.Body.(io.ReadWriteCloser)
	if !ok {
		return nil, xerrors.Errorf("response body is not a io.ReadWriteCloser: %T", resp.Body)
	}

	return newSession(rwc, bufio.NewReader(rwc), true, opts), nil
}

func verifyServerResponse(resp *http.Response, key string) error {
	if resp.StatusCode != http.StatusSwitchingProtocols {
		return xerrors.Errorf("expected handshake response status code %v but got %v", http.StatusSwitchingProtocols, resp.StatusCode)
	}

	if !headerValuesContainsToken(resp.Header, "Connection", "Upgrade") {
		return xerrors.Errorf("Connection header %q does not contain Upgrade", resp.Header.Get("Connection"))
	}

	if !headerValuesContainsToken(resp.Header, "Upgrade", "websocket") {
		return xerrors.Errorf("Upgrade header %q does not contain websocket", resp.Header.Get("Upgrade"))
	}

	if resp.Header.Get("Sec-WebSocket-Accept") != AcceptKey(key) {
		return xerrors.Errorf("Sec-WebSocket-Accept %q does not match Sec-WebSocket-Key %q", resp.Header.Get("Sec-WebSocket-Accept"), key)
	}

	return nil
}
