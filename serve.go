package websocket

import (
	"context"
	"errors"

	"cdr.dev/slog"
	"golang.org/x/xerrors"
)

// Serve reads from the stream the session was opened on and feeds
// ReadData until the session ends. When ctx is done the session is
// closed with StatusGoingAway. Serve returns nil after a normal closure
// and Err otherwise.
//
// Serve is only available on sessions created by Upgrade, Handler,
// UpgradeResponse or Dial.
func (s *Session) Serve(ctx context.Context) error {
	if s.src == nil {
		return xerrors.New("websocket: session has no read source, feed it with ReadData")
	}

	stop := context.AfterFunc(ctx, func() {
		err := s.Close(StatusGoingAway, "")
		if err != nil && !errors.Is(err, ErrClosed) {
			s.log.Debug(context.Background(), "failed to close on context cancellation", slog.Error(err))
		}
	})
	defer stop()

	buf := make([]byte, s.opts.ReadBufferSize)
	for s.IsAlive() {
		n, err := s.src.Read(buf)
		if n > 0 {
			s.ReadData(buf[:n])
		}
		if err != nil {
			s.StreamClosed(err)
			break
		}
	}

	err := s.Err()
	if CloseStatus(err) == StatusNormalClosure {
		return nil
	}
	return err
}
