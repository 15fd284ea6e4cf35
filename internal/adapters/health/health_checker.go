package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/chainflow/internal/ports"
)

// Probe reports whether one dependency is usable. A non-nil error marks
// the process unhealthy.
type Probe func(ctx context.Context) error

// DrainState is satisfied by the shutdown manager.
type DrainState interface {
	IsDraining() bool
}

type namedProbe struct {
	name  string
	probe Probe
}

type Checker struct {
	mu      sync.RWMutex
	probes  []namedProbe
	details map[string]func() interface{}
	drain   DrainState
	timeout time.Duration
	logger  *slog.Logger
}

func NewHealthChecker(drain DrainState, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Checker{
		details: make(map[string]func() interface{}),
		drain:   drain,
		timeout: 2 * time.Second,
		logger:  logger.With("component", "health-checker"),
	}
}

func (hc *Checker) AddProbe(name string, probe Probe) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.probes = append(hc.probes, namedProbe{name: name, probe: probe})
}

// AddDetail attaches informational state that never affects health.
func (hc *Checker) AddDetail(name string, fn func() interface{}) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.details[name] = fn
}

func (hc *Checker) GetHealth() ports.HealthStatus {
	hc.mu.RLock()
	probes := append([]namedProbe(nil), hc.probes...)
	details := make(map[string]func() interface{}, len(hc.details))
	for k, v := range hc.details {
		details[k] = v
	}
	hc.mu.RUnlock()

	status := ports.HealthStatus{
		Healthy: true,
		Details: make(map[string]interface{}, len(probes)+len(details)+1),
	}

	for _, p := range probes {
		ctx, cancel := context.WithTimeout(context.Background(), hc.timeout)
		err := p.probe(ctx)
		cancel()

		if err != nil {
			hc.logger.Warn("health probe failed", "probe", p.name, "error", err.Error())
			status.Details[p.name] = err.Error()
			if status.Healthy {
				status.Healthy = false
				status.Error = p.name + ": " + err.Error()
			}
			continue
		}
		status.Details[p.name] = "ok"
	}

	for name, fn := range details {
		status.Details[name] = fn()
	}

	if hc.drain != nil {
		status.Details["draining"] = hc.drain.IsDraining()
	}
	return status
}

// IsReady is false while draining even when every probe passes.
func (hc *Checker) IsReady() bool {
	if hc.drain != nil && hc.drain.IsDraining() {
		return false
	}
	return hc.GetHealth().Healthy
}

var _ ports.HealthCheckProvider = (*Checker)(nil)
