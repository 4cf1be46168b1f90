package service

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/turtacn/authenticator/internal/application/polling"
	"github.com/turtacn/authenticator/internal/domain/models"
	domainservice "github.com/turtacn/authenticator/internal/domain/service"
	"github.com/turtacn/authenticator/pkg/logger"
)

// AuthorizationListener receives the classified results of an AuthorizationInteractor.
// Callbacks run outside the interactor lock, in the order the changes were applied.
// AuthorizationListener 接收交互器已分类的结果回调。
type AuthorizationListener interface {
	// OnItemChanged is called with a copy of the item after every visible change.
	// OnItemChanged 在条目每次可见变化后被调用。
	OnItemChanged(item *models.AuthorizationItem)
	// OnErrorMessage surfaces a one-shot user-visible message.
	// OnErrorMessage 显示一次性的用户提示。
	OnErrorMessage(message string)
	// OnConnectionInvalidated tells that the connection access token was dropped.
	// OnConnectionInvalidated 表示连接的访问令牌已被清除。
	OnConnectionInvalidated()
}

// AuthorizationInteractor owns the state of one authorization: it polls it, decrypts and merges
// the results, and sends the user decision.
// AuthorizationInteractor 持有单个授权请求的状态：轮询、解密合并以及发送用户决定。
type AuthorizationInteractor struct {
	deps   Dependencies
	timing Timing
	poller *polling.Service
	log    logger.Logger

	mu         sync.Mutex
	listener   AuthorizationListener
	connection *models.RichConnection
	item       *models.AuthorizationItem
}

// NewAuthorizationInteractor creates a new AuthorizationInteractor.
func NewAuthorizationInteractor(deps Dependencies, timing Timing) *AuthorizationInteractor {
	deps.withDefaults()
	return &AuthorizationInteractor{
		deps:   deps,
		timing: timing,
		poller: polling.NewService(deps.Clock, timing.PollingInterval, deps.Metrics, deps.Logger),
		log:    deps.Logger.WithComponent("AuthorizationInteractor"),
	}
}

// SetListener registers the listener. Pass nil to detach.
func (i *AuthorizationInteractor) SetListener(listener AuthorizationListener) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.listener = listener
}

// SetInitialData resolves the connection and its private key. On failure every later
// operation is a no-op.
func (i *AuthorizationInteractor) SetInitialData(ctx context.Context, connectionID string) bool {
	var rich *models.RichConnection
	connection, err := i.deps.Connections.GetConnection(ctx, connectionID)
	if err != nil {
		i.log.Warn(ctx, "Connection not resolved", logger.Fields{"connection_id": connectionID, "error": err.Error()})
	} else if connection != nil {
		rich = resolveConnection(ctx, &i.deps, connection)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.connection = rich
	return rich != nil
}

// HasUsableConnection reports whether SetInitialData succeeded.
func (i *AuthorizationInteractor) HasUsableConnection() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.connection != nil
}

// Item returns a copy of the current item, nil before StartPolling.
func (i *AuthorizationInteractor) Item() *models.AuthorizationItem {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.item.Clone()
}

// StartPolling begins polling authorizationID. It creates the loading placeholder on first use.
func (i *AuthorizationInteractor) StartPolling(authorizationID string) {
	i.mu.Lock()
	connection := i.connection
	if connection == nil {
		i.mu.Unlock()
		return
	}
	if i.item == nil || i.item.AuthorizationID != authorizationID {
		i.item = models.NewLoadingItem(connection.ID(), authorizationID)
	}
	final := i.item.HasFinalStatus()
	i.mu.Unlock()

	if final {
		return
	}
	i.poller.Start(polling.NewSingleAuthorizationSource(i.deps.Fetcher, connection, authorizationID), i.handleBatch)
}

// StopPolling stops polling. Results completing afterwards are dropped.
func (i *AuthorizationInteractor) StopPolling() {
	i.poller.Stop()
}

// IsPolling reports whether the poller runs.
func (i *AuthorizationInteractor) IsPolling() bool { return i.poller.IsRunning() }

// UpdateAuthorization sends the user decision. It returns false without side effects when
// there is no usable connection, when the authorization code is missing, or when the item
// cannot be authorized.
func (i *AuthorizationInteractor) UpdateAuthorization(ctx context.Context, authorizationID, authorizationCode string, confirm bool, method models.AuthMethod) bool {
	var n notifications

	i.mu.Lock()
	connection := i.connection
	if connection == nil {
		i.mu.Unlock()
		return false
	}
	if authorizationCode == "" {
		i.mu.Unlock()
		i.log.Error(ctx, "Refusing decision without authorization code", nil, logger.Fields{"authorization_id": authorizationID})
		return false
	}
	current := i.item
	if current == nil || current.AuthorizationID != authorizationID || !current.CanBeAuthorized() {
		i.mu.Unlock()
		return false
	}
	target := models.AuthorizationStatusDenyProcessing
	if confirm {
		target = models.AuthorizationStatusConfirmProcessing
	}
	next := current.Clone()
	transition(next, target, i.deps.Clock.Now(), i.timing.DestroyDelay, i.deps.Metrics)
	i.item = next
	i.itemChangedLocked(&n, next)
	i.mu.Unlock()

	i.poller.Stop()
	n.run()

	req := &models.ConfirmRequest{
		AuthorizationID:   authorizationID,
		AuthorizationCode: authorizationCode,
		Confirm:           confirm,
		Geolocation:       geolocation(i.deps.Location),
		AuthMethod:        method,
	}
	go i.resolve(context.WithoutCancel(ctx), connection, req)
	return true
}

// Tick re-evaluates the item against the clock.
func (i *AuthorizationInteractor) Tick() TickResult {
	var n notifications
	now := i.deps.Clock.Now()
	result := TickIdle

	i.mu.Lock()
	current := i.item
	switch {
	case current == nil:
	case current.ShouldBeSetTimeOutMode(now):
		next := current.Clone()
		if transition(next, models.AuthorizationStatusTimeOut, now, i.timing.DestroyDelay, i.deps.Metrics) {
			i.item = next
			i.itemChangedLocked(&n, next)
			result = TickTimedOut
		}
	case current.ShouldBeDestroyed(now):
		result = TickDestroyed
	case !current.IgnoreTimeUpdate():
		result = TickCountdown
	}
	i.mu.Unlock()

	if result == TickTimedOut {
		i.poller.Stop()
	}
	n.run()
	return result
}

func (i *AuthorizationInteractor) itemChangedLocked(n *notifications, item *models.AuthorizationItem) {
	if listener := i.listener; listener != nil {
		snapshot := item.Clone()
		n.add(func() { listener.OnItemChanged(snapshot) })
	}
}

func (i *AuthorizationInteractor) messageLocked(n *notifications, message string) {
	if listener := i.listener; listener != nil && message != "" {
		n.add(func() { listener.OnErrorMessage(message) })
	}
}

func (i *AuthorizationInteractor) handleBatch(batch polling.Batch) {
	ctx, span := tracer.Start(context.Background(), "AuthorizationInteractor.handleBatch")
	defer span.End()
	span.SetAttributes(attribute.String("poll.outcome", batch.Outcome()))

	i.mu.Lock()
	connection := i.connection
	i.mu.Unlock()
	if connection == nil {
		return
	}

	switch {
	case len(batch.Errors) > 0:
		span.RecordError(batch.Errors[0])
		i.handlePollFailure(ctx, connection, batch.Errors[0])
	case batch.NotFound():
		i.handleMissingPayload(ctx)
	default:
		envelope := batch.Envelopes[0]
		data := i.deps.Decoder.Decrypt(envelope, connection.PrivateKey)
		if data == nil {
			i.deps.Metrics.RecordDecryptFailure(envelope.Algorithm)
			i.handleMissingPayload(ctx)
			return
		}
		i.handlePayload(ctx, connection, data)
	}
}

func (i *AuthorizationInteractor) handlePayload(ctx context.Context, connection *models.RichConnection, data *models.AuthorizationData) {
	var n notifications
	now := i.deps.Clock.Now()
	fresh := buildItem(data, connection.Connection, now, i.timing.DestroyDelay, i.deps.Metrics)

	i.mu.Lock()
	current := i.item
	if current == nil || pollMustBeDiscarded(current) {
		i.mu.Unlock()
		return
	}
	if fresh.AuthorizationID != current.AuthorizationID {
		i.mu.Unlock()
		i.log.Warn(ctx, "Ignoring payload for another authorization", logger.Fields{
			"authorization_id": current.AuthorizationID,
			"payload_id":       fresh.AuthorizationID,
		})
		return
	}

	var previous []*models.AuthorizationItem
	if current.Status != models.AuthorizationStatusLoading {
		previous = []*models.AuthorizationItem{current}
	}
	merged := domainservice.MergeAuthorization(previous, fresh)

	next := current.Clone()
	next.CopyContentFrom(merged)
	next.ConnectionName = merged.ConnectionName
	next.GeolocationRequired = merged.GeolocationRequired
	if next.Status != merged.Status {
		transition(next, merged.Status, now, i.timing.DestroyDelay, i.deps.Metrics)
	}
	final := next.HasFinalStatus()
	if !next.Equal(current) {
		i.item = next
		i.itemChangedLocked(&n, next)
	}
	i.mu.Unlock()

	if final {
		i.log.Info(ctx, "Authorization finalized by provider", logger.Fields{
			"authorization_id": next.AuthorizationID,
			"status":           string(next.Status),
		})
		i.poller.Stop()
	}
	n.run()
}

func (i *AuthorizationInteractor) handleMissingPayload(ctx context.Context) {
	var n notifications
	now := i.deps.Clock.Now()

	i.mu.Lock()
	current := i.item
	if current == nil || pollMustBeDiscarded(current) {
		i.mu.Unlock()
		return
	}
	next := current.Clone()
	changed := transition(next, models.AuthorizationStatusUnavailable, now, i.timing.DestroyDelay, i.deps.Metrics)
	if changed {
		i.item = next
		i.itemChangedLocked(&n, next)
	}
	i.mu.Unlock()

	if changed {
		i.log.Info(ctx, "Authorization payload unavailable", logger.Fields{"authorization_id": next.AuthorizationID})
		i.poller.Stop()
	}
	n.run()
}

func (i *AuthorizationInteractor) handlePollFailure(ctx context.Context, connection *models.RichConnection, err error) {
	policy := classifyFailure(err, connection, false)
	i.applyFailure(ctx, connection, policy, err, false)
}

// applyFailure runs a failure policy against the current item.
func (i *AuthorizationInteractor) applyFailure(ctx context.Context, connection *models.RichConnection, policy failurePolicy, err error, decision bool) {
	var n notifications
	now := i.deps.Clock.Now()

	i.mu.Lock()
	current := i.item
	stale := current == nil ||
		(decision && !current.IsProcessingMode()) ||
		(!decision && pollMustBeDiscarded(current))
	if stale {
		i.mu.Unlock()
		return
	}
	i.log.Warn(ctx, "Remote failure", logger.Fields{
		"authorization_id": current.AuthorizationID,
		"kind":             policy.kind.String(),
		"error":            err.Error(),
	})

	entered := false
	if policy.canForce(current.Status) {
		next := current.Clone()
		if transition(next, policy.target, now, i.timing.DestroyDelay, i.deps.Metrics) {
			entered = true
			i.item = next
			i.itemChangedLocked(&n, next)
		}
	}
	if !policy.messageOnEntry || entered {
		i.messageLocked(&n, policy.message)
	}
	invalidated := policy.invalidateToken != ""
	if invalidated {
		i.connection = nil
		if listener := i.listener; listener != nil {
			n.add(listener.OnConnectionInvalidated)
		}
	}
	resume := policy.resumePolling && entered && i.connection != nil
	authorizationID := current.AuthorizationID
	i.mu.Unlock()

	if invalidated {
		invalidateConnections(ctx, &i.deps, []string{connection.ID()}, []string{policy.invalidateToken})
	}
	switch {
	case resume:
		i.poller.Start(polling.NewSingleAuthorizationSource(i.deps.Fetcher, connection, authorizationID), i.handleBatch)
	case policy.stopPolling:
		i.poller.Stop()
	}
	n.run()
}

func (i *AuthorizationInteractor) resolve(ctx context.Context, connection *models.RichConnection, req *models.ConfirmRequest) {
	if i.timing.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timing.RequestTimeout)
		defer cancel()
	}
	ctx, span := tracer.Start(ctx, "AuthorizationInteractor.resolve")
	defer span.End()
	span.SetAttributes(
		attribute.String("authorization.id", req.AuthorizationID),
		attribute.Bool("authorization.confirm", req.Confirm),
	)

	start := i.deps.Clock.Now()
	result, err := sendDecision(ctx, i.deps.Resolver, connection, req)
	i.deps.Metrics.RecordDecision(req.Confirm, decisionOutcome(err), i.deps.Clock.Now().Sub(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		auditDecision(ctx, i.deps.Audit, i.log, connection, req, "", err)
		i.applyFailure(ctx, connection, classifyFailure(err, connection, true), err, true)
		return
	}

	status := decisionStatus(req, result)
	auditDecision(ctx, i.deps.Audit, i.log, connection, req, status, nil)

	var n notifications
	i.mu.Lock()
	current := i.item
	if current != nil && current.AuthorizationID == req.AuthorizationID && current.IsProcessingMode() {
		next := current.Clone()
		if transition(next, status, i.deps.Clock.Now(), i.timing.DestroyDelay, i.deps.Metrics) {
			i.item = next
			i.itemChangedLocked(&n, next)
		}
	}
	i.mu.Unlock()
	n.run()
}
