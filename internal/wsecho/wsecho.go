// Package wsecho implements a WebSocket echo server.
package wsecho

import (
	"context"
	"net/http"

	"cdr.dev/slog"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/wirekit/websocket"
)

// Options configures the echo server.
type Options struct {
	// Rate and Burst limit how many messages each session may send.
	// A session over the limit is closed with StatusPolicyViolation.
	// A zero Rate disables the limit. A zero Burst defaults to Rate
	// messages, at least one.
	Rate  rate.Limit
	Burst int

	// Session is applied to every upgraded session. Its Logger is
	// replaced with Logger.
	Session websocket.SessionOptions

	Logger slog.Logger
}

// Router returns a gin engine that serves the echo endpoint on /echo and
// a health check on /healthz.
func Router(opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/echo", func(c *gin.Context) {
		Serve(c.Writer, c.Request, opts)
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func newLimiter(limit rate.Limit, burst int) *rate.Limiter {
	if limit == 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
		if limit > 1 && limit != rate.Inf {
			burst = int(limit)
		}
	}
	return rate.NewLimiter(limit, burst)
}

// Serve upgrades r and echoes every message back to the client until the
// session ends. It returns nil after a normal closure.
func Serve(w http.ResponseWriter, r *http.Request, opts Options) error {
	ctx := r.Context()
	log := opts.Logger.With(slog.F("remote_addr", r.RemoteAddr))

	acceptOpts := &websocket.AcceptOptions{
		SessionOptions: opts.Session,
	}
	acceptOpts.Logger = opts.Logger

	s, err := websocket.Upgrade(w, r, acceptOpts)
	if err != nil {
		log.Info(ctx, "rejected handshake", slog.Error(err))
		return err
	}
	log.Debug(ctx, "session started")

	l := newLimiter(opts.Rate, opts.Burst)

	s.OnRead(func(m websocket.Message) {
		if !l.Allow() {
			err := s.Close(websocket.StatusPolicyViolation, "message rate exceeded")
			if err != nil {
				log.Debug(ctx, "failed to close session", slog.Error(err))
			}
			return
		}
		err := s.Write(m.Payload, m.Opcode)
		if err != nil {
			log.Debug(ctx, "failed to echo message", slog.Error(err))
		}
	})
	s.OnError(func(err error) {
		log.Warn(ctx, "session failed", slog.Error(err))
	})

	err = s.Serve(ctx)
	if err != nil {
		log.Info(ctx, "session ended", slog.Error(err))
		return err
	}
	log.Debug(ctx, "session ended")
	return nil
}

// ListenAndServe serves the echo router on addr until ctx is done.
func ListenAndServe(ctx context.Context, addr string, opts Options) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: Router(opts),
	}

	errs := make(chan error, 1)
	go func() {
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		opts.Logger.Info(ctx, "shutting down")
		return srv.Shutdown(context.Background())
	}
}
