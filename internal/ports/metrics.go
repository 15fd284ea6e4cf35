package ports

import (
	"time"

	"github.com/eleven-am/chainflow/internal/domain"
)

type MetricsRecorder interface {
	RunStarted(triggerType domain.TriggerType)
	RunFinished(status domain.RunStatus, duration time.Duration)
	NodeExecuted(nodeType domain.NodeType, status domain.RunStatus, duration time.Duration)
	SwapAttempt(outcome string)
}

type NoopMetrics struct{}

func (NoopMetrics) RunStarted(domain.TriggerType) {}
func (NoopMetrics) RunFinished(domain.RunStatus, time.Duration) {}
func (NoopMetrics) NodeExecuted(domain.NodeType, domain.RunStatus, time.Duration) {}
func (NoopMetrics) SwapAttempt(string) {}
