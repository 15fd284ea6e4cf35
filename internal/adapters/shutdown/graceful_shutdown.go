package shutdown

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/chainflow/internal/domain"
)

// GracefulShutdownManager tracks in-flight runs so the process can stop
// accepting triggers and wait for started runs to reach a terminal state.
type GracefulShutdownManager struct {
	mu           sync.Mutex
	draining     bool
	inflight     sync.WaitGroup
	active       int
	logger       *slog.Logger
	drainTimeout time.Duration
}

func NewGracefulShutdownManager(logger *slog.Logger) *GracefulShutdownManager {
	if logger == nil {
		logger = slog.Default()
	}

	return &GracefulShutdownManager{
		logger:       logger.With("component", "graceful-shutdown"),
		drainTimeout: 30 * time.Second,
	}
}

// Begin registers one run. The returned func must be called exactly once
// when the run ends.
func (gsm *GracefulShutdownManager) Begin() (func(), error) {
	gsm.mu.Lock()
	defer gsm.mu.Unlock()

	if gsm.draining {
		return nil, domain.ErrDraining
	}
	gsm.inflight.Add(1)
	gsm.active++

	var once sync.Once
	return func() {
		once.Do(func() {
			gsm.mu.Lock()
			gsm.active--
			gsm.mu.Unlock()
			gsm.inflight.Done()
		})
	}, nil
}

func (gsm *GracefulShutdownManager) IsDraining() bool {
	gsm.mu.Lock()
	defer gsm.mu.Unlock()
	return gsm.draining
}

func (gsm *GracefulShutdownManager) Active() int {
	gsm.mu.Lock()
	defer gsm.mu.Unlock()
	return gsm.active
}

// InitiateGracefulShutdown stops new runs and waits for in-flight ones up
// to the drain timeout or until ctx ends. It returns domain.ErrTimeout when
// runs were still active at the deadline.
func (gsm *GracefulShutdownManager) InitiateGracefulShutdown(ctx context.Context) error {
	gsm.mu.Lock()
	gsm.draining = true
	active := gsm.active
	gsm.mu.Unlock()

	gsm.logger.Info("initiating graceful shutdown", "active_runs", active)

	done := make(chan struct{})
	go func() {
		gsm.inflight.Wait()
		close(done)
	}()

	drainCtx, cancel := context.WithTimeout(ctx, gsm.drainTimeout)
	defer cancel()

	select {
	case <-done:
		gsm.logger.Info("graceful shutdown preparation complete")
		return nil
	case <-drainCtx.Done():
		gsm.logger.Warn("drain timeout reached, continuing with shutdown",
			"active_runs", gsm.Active(),
			"timeout", gsm.drainTimeout)
		return domain.ErrTimeout
	}
}

func (gsm *GracefulShutdownManager) SetDrainTimeout(timeout time.Duration) {
	if timeout > 0 {
		gsm.drainTimeout = timeout
	}
}
