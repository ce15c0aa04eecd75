package evaluation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs the engine on a fixed period. Start is idempotent while
// running; Stop waits for any in-flight tick to finish.
type Scheduler struct {
	Engine *Engine
	Logger *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// Start launches the tick loop. It reports whether this call started the
// loop; a second Start while running is a no-op.
func (s *Scheduler) Start(ctx context.Context, period time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(runCtx, period)
	s.Logger.Info("evaluation scheduler started", zap.Duration("period", period))
	return true
}

func (s *Scheduler) loop(ctx context.Context, period time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Engine.Tick(ctx); err != nil {
				s.Logger.Warn("evaluation tick failed", zap.Error(err))
			}
		}
	}
}

// Stop halts the loop and blocks until the in-flight tick returns. Stopping
// an idle scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
	s.Logger.Info("evaluation scheduler stopped")
}
