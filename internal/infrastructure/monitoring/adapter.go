// Package monitoring wires logging, metrics and tracing to their concrete backends.
package monitoring

import (
	"time"

	"github.com/turtacn/authenticator/internal/domain/models"
	"github.com/turtacn/authenticator/internal/domain/service"
)

// MetricsAdapter implements the domain's service.Metrics interface on top of Prometheus.
// MetricsAdapter 实现了域的 service.Metrics 接口，将指标发送到 Prometheus 后端。
type MetricsAdapter struct {
	metrics *Metrics
}

// NewMetricsAdapter wraps a Prometheus Metrics object.
func NewMetricsAdapter(metrics *Metrics) service.Metrics {
	return &MetricsAdapter{metrics: metrics}
}

func (a *MetricsAdapter) RecordPoll(source, outcome string, duration time.Duration) {
	a.metrics.RecordPoll(source, outcome, duration)
}

func (a *MetricsAdapter) RecordDecryptFailure(algorithm string) {
	if algorithm == "" {
		algorithm = "unknown"
	}
	a.metrics.RecordDecryptFailure(algorithm)
}

func (a *MetricsAdapter) RecordDecision(confirm bool, outcome string, duration time.Duration) {
	a.metrics.RecordDecision(confirm, outcome, duration)
}

func (a *MetricsAdapter) RecordStatusTransition(from, to models.AuthorizationStatus) {
	fromLabel := string(from)
	if fromLabel == "" {
		fromLabel = "none"
	}
	a.metrics.RecordStatusTransition(fromLabel, string(to))
}
