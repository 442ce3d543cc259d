package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"cdr.dev/slog"
	"cdr.dev/slog/sloggers/sloghuman"
	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/wirekit/websocket"
	"github.com/wirekit/websocket/internal/wsecho"
)

func main() {
	var (
		addr         = pflag.StringP("addr", "a", "localhost:8080", "address to listen on")
		msgRate      = pflag.Float64("rate", 10, "messages per second each session may send, 0 disables the limit")
		burst        = pflag.Int("burst", 20, "message burst each session may send")
		readLimit    = pflag.Int64("read-limit", 32768, "maximum message size in bytes")
		closeTimeout = pflag.Duration("close-timeout", 0, "wait for the peer's close frame, 0 uses the default")
		verbose      = pflag.BoolP("verbose", "v", false, "log protocol diagnostics")
	)
	pflag.Parse()

	log := slog.Make(sloghuman.Sink(os.Stderr))
	if *verbose {
		log = log.Leveled(slog.LevelDebug)
	}

	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info(ctx, "listening", slog.F("addr", *addr))
	err := wsecho.ListenAndServe(ctx, *addr, wsecho.Options{
		Rate:  rate.Limit(*msgRate),
		Burst: *burst,
		Session: websocket.SessionOptions{
			ReadLimit:    *readLimit,
			CloseTimeout: *closeTimeout,
		},
		Logger: log,
	})
	if err != nil {
		log.Fatal(ctx, "server failed", slog.Error(err))
	}
}
