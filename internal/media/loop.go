package media

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/assessment-wizard/internal/logging"
)

// FrameHandler receives each captured frame.
type FrameHandler func(ctx context.Context, jpeg []byte) error

// FrameLoop captures a frame every interval and hands it to a handler.
type FrameLoop struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// StartFrameLoop starts capturing from stream. The loop ends when ctx is
// done, the stream is stopped, or Stop is called.
func StartFrameLoop(ctx context.Context, stream Stream, interval time.Duration, handle FrameHandler, logger *zap.Logger) *FrameLoop {
	logger = logging.OrNop(logger)
	ctx, cancel := context.WithCancel(ctx)
	l := &FrameLoop{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(l.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			frame, err := stream.Frame(ctx)
			switch {
			case errors.Is(err, ErrStopped):
				return
			case errors.Is(err, ErrNoFrame):
				continue
			case err != nil:
				logger.Debug("frame capture failed", zap.Error(err))
				continue
			}
			if err := handle(ctx, frame); err != nil && ctx.Err() == nil {
				logger.Debug("frame analysis failed", zap.Error(err))
			}
		}
	}()
	return l
}

// Stop ends the loop and waits for it to exit. It is safe to call more than once.
func (l *FrameLoop) Stop() {
	l.once.Do(l.cancel)
	<-l.done
}

// Done is closed once the loop has exited.
func (l *FrameLoop) Done() <-chan struct{} {
	return l.done
}
