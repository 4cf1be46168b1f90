// Package service provides the authorization lifecycle interactors.
package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/turtacn/authenticator/internal/domain/models"
	"github.com/turtacn/authenticator/internal/domain/service"
	"github.com/turtacn/authenticator/pkg/clock"
	"github.com/turtacn/authenticator/pkg/constants"
	"github.com/turtacn/authenticator/pkg/errors"
	"github.com/turtacn/authenticator/pkg/logger"
)

var tracer = otel.Tracer("github.com/turtacn/authenticator/internal/application/service")

// User-visible messages.
const (
	MessageConnectivity     = "The provider cannot be reached. Check your network connection."
	MessageDecisionRejected = "The provider did not accept the decision."
)

// Dependencies groups the collaborators of the interactors.
// Location, Audit, Cache and Metrics are optional.
// Dependencies 汇总交互器依赖的协作者。
type Dependencies struct {
	Connections service.ConnectionRepository
	Keys        service.KeyStore
	Fetcher     service.AuthorizationFetcher
	Resolver    service.AuthorizationResolver
	Decoder     service.AuthorizationDecoder
	Location    service.LocationProvider
	Audit       service.AuditService
	Cache       service.FinalStateCache
	Metrics     service.Metrics
	Clock       clock.Clock
	Logger      logger.Logger
}

// Timing configures the interactors.
type Timing struct {
	PollingInterval time.Duration
	DestroyDelay    time.Duration
	RequestTimeout  time.Duration
}

// DefaultTiming returns the default timing.
func DefaultTiming() Timing {
	return Timing{
		PollingInterval: constants.DefaultPollingInterval,
		DestroyDelay:    constants.DefaultDestroyDelay,
		RequestTimeout:  constants.DefaultRequestTimeout,
	}
}

func (d *Dependencies) withDefaults() {
	if d.Metrics == nil {
		d.Metrics = service.NoopMetrics{}
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Logger == nil {
		d.Logger = logger.NewNoopLogger()
	}
}

// TickResult tells the presentation layer what a timer tick did.
type TickResult int

const (
	// TickIdle means nothing needs to be refreshed.
	TickIdle TickResult = iota
	// TickCountdown means the visible countdown should be refreshed.
	TickCountdown
	// TickTimedOut means the item just moved to TIME_OUT.
	TickTimedOut
	// TickDestroyed means the grace period of a final item elapsed.
	TickDestroyed
)

// transition is the single entry point for status writes.
func transition(item *models.AuthorizationItem, to models.AuthorizationStatus, now time.Time, delay time.Duration, metrics service.Metrics) bool {
	from := item.Status
	if !item.ApplyStatus(to, now, delay) {
		return false
	}
	metrics.RecordStatusTransition(from, to)
	return true
}

// buildItem creates an item from a payload, applying a final status reported inside it.
func buildItem(data *models.AuthorizationData, connection *models.Connection, now time.Time, delay time.Duration, metrics service.Metrics) *models.AuthorizationItem {
	item := models.NewAuthorizationItem(data, connection)
	if status, ok := data.FinalStatus(); ok {
		transition(item, status, now, delay, metrics)
	}
	return item
}

// pollMustBeDiscarded holds while a decision is in flight or once the item is final.
func pollMustBeDiscarded(item *models.AuthorizationItem) bool {
	return item.IsProcessingMode() || item.HasFinalStatus()
}

// failurePolicy is the reaction to a classified remote failure.
type failurePolicy struct {
	kind errors.Kind
	// target is the status to force, empty to keep the current one.
	target models.AuthorizationStatus
	// message is surfaced to the user; with messageOnEntry only when target was entered.
	message        string
	messageOnEntry bool
	// invalidateToken is the access token to drop locally.
	invalidateToken string
	stopPolling     bool
	resumePolling   bool
}

// classifyFailure applies the error policy. decision is true for confirm/deny failures,
// which revert to PENDING when the failure is transient.
func classifyFailure(err error, connection *models.RichConnection, decision bool) failurePolicy {
	policy := failurePolicy{kind: errors.Classify(err)}
	switch policy.kind {
	case errors.KindConnectionNotFound:
		policy.target = models.AuthorizationStatusError
		policy.stopPolling = true
		policy.invalidateToken = errors.AccessToken(err)
		if policy.invalidateToken == "" && connection != nil {
			policy.invalidateToken = connection.Connection.AccessToken
		}
	case errors.KindAuthorizationNotFound:
		if decision {
			policy.target = models.AuthorizationStatusPending
			policy.resumePolling = true
		} else {
			policy.target = models.AuthorizationStatusUnavailable
			policy.stopPolling = true
		}
	case errors.KindConnectivity:
		policy.message = MessageConnectivity
		if decision {
			policy.target = models.AuthorizationStatusPending
			policy.resumePolling = true
		}
	case errors.KindNoUsableConnection:
	default:
		policy.target = models.AuthorizationStatusError
		policy.message = err.Error()
		policy.messageOnEntry = true
		policy.stopPolling = true
	}
	return policy
}

// canForce reports whether the policy target may replace the current status.
func (p failurePolicy) canForce(current models.AuthorizationStatus) bool {
	switch p.target {
	case "":
		return false
	case models.AuthorizationStatusUnavailable:
		return current == models.AuthorizationStatusLoading || current == models.AuthorizationStatusPending
	case models.AuthorizationStatusPending:
		return current.IsProcessing()
	default:
		return !current.IsFinal()
	}
}

// notifications are collected under the interactor lock and run after it is released.
type notifications []func()

func (n *notifications) add(fn func()) { *n = append(*n, fn) }

func (n notifications) run() {
	for _, fn := range n {
		fn()
	}
}

func decisionOutcome(err error) string {
	if err == nil {
		return "success"
	}
	return errors.Classify(err).String()
}

func auditDecision(ctx context.Context, audit service.AuditService, log logger.Logger, connection *models.RichConnection, req *models.ConfirmRequest, status models.AuthorizationStatus, err error) {
	if audit == nil {
		return
	}
	eventType := constants.AuditEventAuthorizationConfirmed
	if !req.Confirm {
		eventType = constants.AuditEventAuthorizationDenied
	}
	event := models.NewAuditEvent(eventType, connection.ID(), req.AuthorizationID).
		WithAuthMethod(req.AuthMethod).
		WithStatus(status)
	if err != nil {
		event.EventType = constants.AuditEventAuthorizationFailed
		code := constants.ErrCodeAPI
		if appErr, ok := errors.AsAppError(err); ok {
			code = appErr.Code()
		}
		event.WithResultCode(code, err.Error()).WithMetadata(map[string]bool{"confirm": req.Confirm})
	}
	if logErr := audit.LogEvent(ctx, event); logErr != nil {
		log.Warn(ctx, "Failed to record decision audit event", logger.Fields{"error": logErr.Error()})
	}
}

func invalidateConnections(ctx context.Context, deps *Dependencies, connectionIDs, tokens []string) {
	if len(tokens) == 0 {
		return
	}
	affected, err := deps.Connections.InvalidateConnectionsByAccessTokens(ctx, tokens)
	if err != nil {
		deps.Logger.Error(ctx, "Failed to invalidate connections", err, logger.Fields{"connection_ids": connectionIDs})
		return
	}
	deps.Logger.Info(ctx, "Connections invalidated", logger.Fields{"connection_ids": connectionIDs, "affected": affected})
	if deps.Audit == nil {
		return
	}
	for _, connectionID := range connectionIDs {
		event := models.NewAuditEvent(constants.AuditEventConnectionInvalidated, connectionID, "")
		if err := deps.Audit.LogEvent(ctx, event); err != nil {
			deps.Logger.Warn(ctx, "Failed to record invalidation audit event", logger.Fields{"error": err.Error()})
		}
	}
}

func resolveConnection(ctx context.Context, deps *Dependencies, connection *models.Connection) *models.RichConnection {
	if !connection.IsActive() {
		return nil
	}
	key, err := deps.Keys.GetPrivateKey(ctx, connection.ID)
	if err != nil || key == nil {
		deps.Logger.Warn(ctx, "Connection has no usable private key", logger.Fields{"connection_id": connection.ID})
		return nil
	}
	return &models.RichConnection{Connection: connection, PrivateKey: key}
}

func geolocation(location service.LocationProvider) string {
	if location == nil || !location.LocationPermissionsGranted() {
		return ""
	}
	return location.CurrentLocationDescription()
}

func sendDecision(ctx context.Context, resolver service.AuthorizationResolver, connection *models.RichConnection, req *models.ConfirmRequest) (*models.ConfirmResult, error) {
	var (
		result *models.ConfirmResult
		err    error
	)
	if req.Confirm {
		result, err = resolver.ConfirmAuthorization(ctx, connection, req)
	} else {
		result, err = resolver.DenyAuthorization(ctx, connection, req)
	}
	if err == nil && (result == nil || !result.Success) {
		err = errors.ErrAPI(0, "", MessageDecisionRejected)
	}
	return result, err
}

// decisionStatus is the final status of an accepted decision.
func decisionStatus(req *models.ConfirmRequest, result *models.ConfirmResult) models.AuthorizationStatus {
	if result != nil && result.Status.IsFinal() {
		return result.Status
	}
	if req.Confirm {
		return models.AuthorizationStatusConfirmed
	}
	return models.AuthorizationStatusDenied
}
