// Package service defines the domain service interfaces and the merge engine.
package service

import (
	"time"

	"github.com/turtacn/authenticator/internal/domain/models"
)

// Metrics defines the interface for collecting lifecycle metrics.
// This abstraction allows the application layer to remain independent of the specific monitoring implementation (e.g., Prometheus).
// Metrics 定义了收集授权生命周期指标的接口。
type Metrics interface {
	// RecordPoll records one poll round-trip, labelled by source and outcome.
	// RecordPoll 记录一次轮询，按来源与结果分类。
	RecordPoll(source, outcome string, duration time.Duration)

	// RecordDecryptFailure records an envelope that could not be decrypted.
	// RecordDecryptFailure 记录一次解密失败。
	RecordDecryptFailure(algorithm string)

	// RecordDecision records a confirm/deny round-trip.
	// RecordDecision 记录一次确认或拒绝请求。
	RecordDecision(confirm bool, outcome string, duration time.Duration)

	// RecordStatusTransition records a status change of an authorization item.
	// RecordStatusTransition 记录授权状态的变化。
	RecordStatusTransition(from, to models.AuthorizationStatus)
}

// NoopMetrics discards every observation.
type NoopMetrics struct{}

func (NoopMetrics) RecordPoll(string, string, time.Duration)                                      {}
func (NoopMetrics) RecordDecryptFailure(string)                                                   {}
func (NoopMetrics) RecordDecision(bool, string, time.Duration)                                    {}
func (NoopMetrics) RecordStatusTransition(models.AuthorizationStatus, models.AuthorizationStatus) {}
