package service

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/turtacn/authenticator/internal/application/polling"
	"github.com/turtacn/authenticator/internal/domain/models"
	domainservice "github.com/turtacn/authenticator/internal/domain/service"
	"github.com/turtacn/authenticator/pkg/errors"
	"github.com/turtacn/authenticator/pkg/logger"
)

// AuthorizationsListListener receives the results of an AuthorizationsListInteractor.
// AuthorizationsListListener 接收列表交互器的结果回调。
type AuthorizationsListListener interface {
	// OnItemsChanged is called with a copy of the visible list after every change.
	// OnItemsChanged 在列表每次变化后被调用。
	OnItemsChanged(items []*models.AuthorizationItem)
	// OnErrorMessage surfaces a one-shot user-visible message.
	// OnErrorMessage 显示一次性的用户提示。
	OnErrorMessage(message string)
	// OnConnectionsInvalidated reports connections whose access token was dropped.
	// OnConnectionsInvalidated 报告访问令牌已被清除的连接。
	OnConnectionsInvalidated(connectionIDs []string)
}

// AuthorizationsListInteractor polls the authorizations of every usable connection and keeps
// the merged list.
// AuthorizationsListInteractor 轮询所有可用连接的授权请求并维护合并后的列表。
type AuthorizationsListInteractor struct {
	deps   Dependencies
	timing Timing
	poller *polling.Service
	log    logger.Logger

	mu          sync.Mutex
	listener    AuthorizationsListListener
	connections []*models.RichConnection
	items       []*models.AuthorizationItem
	lastMessage string
}

// NewAuthorizationsListInteractor creates a new AuthorizationsListInteractor.
func NewAuthorizationsListInteractor(deps Dependencies, timing Timing) *AuthorizationsListInteractor {
	deps.withDefaults()
	return &AuthorizationsListInteractor{
		deps:   deps,
		timing: timing,
		poller: polling.NewService(deps.Clock, timing.PollingInterval, deps.Metrics, deps.Logger),
		log:    deps.Logger.WithComponent("AuthorizationsListInteractor"),
	}
}

// SetListener registers the listener. Pass nil to detach.
func (l *AuthorizationsListInteractor) SetListener(listener AuthorizationsListListener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listener = listener
}

// SetInitialData resolves every active connection that has a private key.
// It returns false when none is usable.
func (l *AuthorizationsListInteractor) SetInitialData(ctx context.Context) bool {
	connections, err := l.deps.Connections.GetActiveConnections(ctx)
	if err != nil {
		l.log.Error(ctx, "Failed to load connections", err)
	}
	usable := make([]*models.RichConnection, 0, len(connections))
	for _, connection := range connections {
		if rich := resolveConnection(ctx, &l.deps, connection); rich != nil {
			usable = append(usable, rich)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.connections = usable
	return len(usable) > 0
}

// Connections returns the usable connections.
func (l *AuthorizationsListInteractor) Connections() []*models.RichConnection {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*models.RichConnection(nil), l.connections...)
}

// Items returns a copy of the visible list.
func (l *AuthorizationsListInteractor) Items() []*models.AuthorizationItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneItems(l.items)
}

// StartPolling begins polling the list. No-op without usable connections.
func (l *AuthorizationsListInteractor) StartPolling() {
	if len(l.Connections()) == 0 {
		return
	}
	l.poller.Start(polling.NewAuthorizationsListSource(l.deps.Fetcher, l.Connections), l.handleBatch)
}

// StopPolling stops polling. Results completing afterwards are dropped.
func (l *AuthorizationsListInteractor) StopPolling() {
	l.poller.Stop()
}

// IsPolling reports whether the poller runs.
func (l *AuthorizationsListInteractor) IsPolling() bool { return l.poller.IsRunning() }

// UpdateAuthorization sends the user decision for one item of the list.
func (l *AuthorizationsListInteractor) UpdateAuthorization(ctx context.Context, identity models.Identity, authorizationCode string, confirm bool, method models.AuthMethod) bool {
	var n notifications

	l.mu.Lock()
	connection := l.connectionLocked(identity.ConnectionID)
	if connection == nil {
		l.mu.Unlock()
		return false
	}
	if authorizationCode == "" {
		l.mu.Unlock()
		l.log.Error(ctx, "Refusing decision without authorization code", nil, logger.Fields{"authorization_id": identity.AuthorizationID})
		return false
	}
	idx := l.indexLocked(identity)
	if idx < 0 || !l.items[idx].CanBeAuthorized() {
		l.mu.Unlock()
		return false
	}
	target := models.AuthorizationStatusDenyProcessing
	if confirm {
		target = models.AuthorizationStatusConfirmProcessing
	}
	next := l.items[idx].Clone()
	transition(next, target, l.deps.Clock.Now(), l.timing.DestroyDelay, l.deps.Metrics)
	l.replaceLocked(idx, next)
	l.itemsChangedLocked(&n)
	l.mu.Unlock()
	n.run()

	req := &models.ConfirmRequest{
		AuthorizationID:   identity.AuthorizationID,
		AuthorizationCode: authorizationCode,
		Confirm:           confirm,
		Geolocation:       geolocation(l.deps.Location),
		AuthMethod:        method,
	}
	go l.resolve(context.WithoutCancel(ctx), connection, identity, req)
	return true
}

// Tick times out expired items and removes destroyed ones.
func (l *AuthorizationsListInteractor) Tick() TickResult {
	var n notifications
	now := l.deps.Clock.Now()
	timedOut, destroyed, countdown := 0, 0, false
	var finals []*models.AuthorizationItem

	l.mu.Lock()
	next := make([]*models.AuthorizationItem, 0, len(l.items))
	for _, item := range l.items {
		switch {
		case item.ShouldBeSetTimeOutMode(now):
			updated := item.Clone()
			transition(updated, models.AuthorizationStatusTimeOut, now, l.timing.DestroyDelay, l.deps.Metrics)
			next = append(next, updated)
			finals = append(finals, updated.Clone())
			timedOut++
		case item.ShouldBeDestroyed(now):
			destroyed++
		default:
			next = append(next, item)
			countdown = countdown || !item.IgnoreTimeUpdate()
		}
	}
	if timedOut > 0 || destroyed > 0 {
		l.items = next
		l.itemsChangedLocked(&n)
	}
	l.mu.Unlock()

	l.remember(context.Background(), finals)
	n.run()

	switch {
	case timedOut > 0:
		return TickTimedOut
	case destroyed > 0:
		return TickDestroyed
	case countdown:
		return TickCountdown
	default:
		return TickIdle
	}
}

func (l *AuthorizationsListInteractor) handleBatch(batch polling.Batch) {
	ctx, span := tracer.Start(context.Background(), "AuthorizationsListInteractor.handleBatch")
	defer span.End()
	span.SetAttributes(
		attribute.Int("poll.envelopes", len(batch.Envelopes)),
		attribute.Int("poll.errors", len(batch.Errors)),
	)

	now := l.deps.Clock.Now()
	byID := make(map[string]*models.RichConnection)
	for _, connection := range l.Connections() {
		byID[connection.ID()] = connection
	}

	fresh := make([]*models.AuthorizationItem, 0, len(batch.Envelopes))
	for _, envelope := range batch.Envelopes {
		connection, ok := byID[envelope.ConnectionID]
		if !ok {
			l.log.Debug(ctx, "Envelope for unknown connection", logger.Fields{"connection_id": envelope.ConnectionID})
			continue
		}
		data := l.deps.Decoder.Decrypt(envelope, connection.PrivateKey)
		if data == nil {
			l.deps.Metrics.RecordDecryptFailure(envelope.Algorithm)
			continue
		}
		fresh = append(fresh, buildItem(data, connection.Connection, now, l.timing.DestroyDelay, l.deps.Metrics))
	}
	fresh = l.dropRemembered(ctx, fresh)

	var tokens []string
	var message string
	for _, err := range batch.Errors {
		span.RecordError(err)
		policy := classifyFailure(err, nil, false)
		switch policy.kind {
		case errors.KindConnectionNotFound:
			if policy.invalidateToken != "" {
				tokens = append(tokens, policy.invalidateToken)
			}
		case errors.KindAuthorizationNotFound, errors.KindNoUsableConnection:
		default:
			message = policy.message
		}
		l.log.Warn(ctx, "List poll failure", logger.Fields{"kind": policy.kind.String(), "error": err.Error()})
	}

	var n notifications
	var finals []*models.AuthorizationItem

	l.mu.Lock()
	previous := l.items
	invalidated := l.dropConnectionsLocked(tokens)
	base, forced := l.forceErrorLocked(previous, invalidated, now)
	finals = append(finals, forced...)
	merged := domainservice.MergeAuthorizationsList(base, fresh)
	merged = keepProcessing(base, merged)
	for _, item := range fresh {
		if item.HasFinalStatus() {
			finals = append(finals, item.Clone())
		}
	}
	if !equalItems(previous, merged) {
		l.items = merged
		l.itemsChangedLocked(&n)
	}
	if message != "" && message != l.lastMessage {
		l.messageLocked(&n, message)
	}
	l.lastMessage = message
	if len(invalidated) > 0 {
		if listener := l.listener; listener != nil {
			ids := append([]string(nil), invalidated...)
			n.add(func() { listener.OnConnectionsInvalidated(ids) })
		}
	}
	remaining := len(l.connections)
	l.mu.Unlock()

	if len(invalidated) > 0 {
		span.SetStatus(codes.Error, "connections invalidated")
		invalidateConnections(ctx, &l.deps, invalidated, tokens)
	}
	if remaining == 0 {
		l.poller.Stop()
	}
	l.remember(ctx, finals)
	n.run()
}

func (l *AuthorizationsListInteractor) resolve(ctx context.Context, connection *models.RichConnection, identity models.Identity, req *models.ConfirmRequest) {
	if l.timing.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timing.RequestTimeout)
		defer cancel()
	}
	ctx, span := tracer.Start(ctx, "AuthorizationsListInteractor.resolve")
	defer span.End()
	span.SetAttributes(
		attribute.String("authorization.id", req.AuthorizationID),
		attribute.Bool("authorization.confirm", req.Confirm),
	)

	start := l.deps.Clock.Now()
	result, err := sendDecision(ctx, l.deps.Resolver, connection, req)
	l.deps.Metrics.RecordDecision(req.Confirm, decisionOutcome(err), l.deps.Clock.Now().Sub(start))

	status := models.AuthorizationStatus("")
	var policy failurePolicy
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		policy = classifyFailure(err, connection, true)
		l.log.Warn(ctx, "Decision failed", logger.Fields{"authorization_id": req.AuthorizationID, "kind": policy.kind.String()})
	} else {
		status = decisionStatus(req, result)
	}
	auditDecision(ctx, l.deps.Audit, l.log, connection, req, status, err)

	var n notifications
	var finals []*models.AuthorizationItem
	var invalidated []string
	now := l.deps.Clock.Now()

	l.mu.Lock()
	idx := l.indexLocked(identity)
	if idx < 0 || !l.items[idx].IsProcessingMode() {
		l.mu.Unlock()
		return
	}
	next := l.items[idx].Clone()
	entered := false
	switch {
	case err == nil:
		entered = transition(next, status, now, l.timing.DestroyDelay, l.deps.Metrics)
	case policy.canForce(next.Status):
		entered = transition(next, policy.target, now, l.timing.DestroyDelay, l.deps.Metrics)
	}
	if entered {
		l.replaceLocked(idx, next)
		if next.HasFinalStatus() {
			finals = append(finals, next.Clone())
		}
	}
	if policy.invalidateToken != "" {
		invalidated = l.dropConnectionsLocked([]string{policy.invalidateToken})
		var forced []*models.AuthorizationItem
		l.items, forced = l.forceErrorLocked(l.items, invalidated, now)
		finals = append(finals, forced...)
		if listener := l.listener; listener != nil && len(invalidated) > 0 {
			ids := append([]string(nil), invalidated...)
			n.add(func() { listener.OnConnectionsInvalidated(ids) })
		}
	}
	if entered || len(invalidated) > 0 {
		l.itemsChangedLocked(&n)
	}
	if !policy.messageOnEntry || entered {
		l.messageLocked(&n, policy.message)
	}
	l.mu.Unlock()

	if policy.invalidateToken != "" {
		invalidateConnections(ctx, &l.deps, []string{connection.ID()}, []string{policy.invalidateToken})
	}
	l.remember(ctx, finals)
	n.run()
}

func (l *AuthorizationsListInteractor) connectionLocked(connectionID string) *models.RichConnection {
	for _, connection := range l.connections {
		if connection.ID() == connectionID {
			return connection
		}
	}
	return nil
}

func (l *AuthorizationsListInteractor) indexLocked(identity models.Identity) int {
	for idx, item := range l.items {
		if item.Identity() == identity {
			return idx
		}
	}
	return -1
}

// replaceLocked swaps one element without mutating a slice previously handed out.
func (l *AuthorizationsListInteractor) replaceLocked(idx int, item *models.AuthorizationItem) {
	items := append([]*models.AuthorizationItem(nil), l.items...)
	items[idx] = item
	l.items = items
}

// dropConnectionsLocked removes the connections holding one of tokens and returns their ids.
func (l *AuthorizationsListInteractor) dropConnectionsLocked(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		drop[token] = struct{}{}
	}
	var ids []string
	kept := make([]*models.RichConnection, 0, len(l.connections))
	for _, connection := range l.connections {
		if _, ok := drop[connection.Connection.AccessToken]; ok {
			ids = append(ids, connection.ID())
			continue
		}
		kept = append(kept, connection)
	}
	l.connections = kept
	return ids
}

// forceErrorLocked moves the non-final items of the given connections to ERROR.
func (l *AuthorizationsListInteractor) forceErrorLocked(items []*models.AuthorizationItem, connectionIDs []string, now time.Time) ([]*models.AuthorizationItem, []*models.AuthorizationItem) {
	if len(connectionIDs) == 0 {
		return items, nil
	}
	ids := make(map[string]struct{}, len(connectionIDs))
	for _, id := range connectionIDs {
		ids[id] = struct{}{}
	}
	var finals []*models.AuthorizationItem
	out := make([]*models.AuthorizationItem, 0, len(items))
	for _, item := range items {
		if _, ok := ids[item.ConnectionID]; ok && !item.HasFinalStatus() {
			updated := item.Clone()
			transition(updated, models.AuthorizationStatusError, now, l.timing.DestroyDelay, l.deps.Metrics)
			finals = append(finals, updated.Clone())
			item = updated
		}
		out = append(out, item)
	}
	return out, finals
}

func (l *AuthorizationsListInteractor) itemsChangedLocked(n *notifications) {
	if listener := l.listener; listener != nil {
		snapshot := cloneItems(l.items)
		n.add(func() { listener.OnItemsChanged(snapshot) })
	}
}

func (l *AuthorizationsListInteractor) messageLocked(n *notifications, message string) {
	if listener := l.listener; listener != nil && message != "" {
		n.add(func() { listener.OnErrorMessage(message) })
	}
}

// remember stores finalized items in the final-state cache.
func (l *AuthorizationsListInteractor) remember(ctx context.Context, finals []*models.AuthorizationItem) {
	if l.deps.Cache == nil {
		return
	}
	for _, item := range finals {
		if err := l.deps.Cache.Put(ctx, item); err != nil {
			l.log.Warn(ctx, "Failed to remember final authorization", logger.Fields{
				"authorization_id": item.AuthorizationID,
				"error":            err.Error(),
			})
		}
	}
}

// dropRemembered filters out fresh items already finalized in an earlier session.
func (l *AuthorizationsListInteractor) dropRemembered(ctx context.Context, fresh []*models.AuthorizationItem) []*models.AuthorizationItem {
	if l.deps.Cache == nil || len(fresh) == 0 {
		return fresh
	}
	l.mu.Lock()
	known := make(map[models.Identity]struct{}, len(l.items))
	for _, item := range l.items {
		known[item.Identity()] = struct{}{}
	}
	l.mu.Unlock()

	kept := fresh[:0]
	for _, item := range fresh {
		if _, ok := known[item.Identity()]; !ok {
			cached, err := l.deps.Cache.Get(ctx, item.Identity())
			if err != nil {
				l.log.Warn(ctx, "Final-state cache lookup failed", logger.Fields{"error": err.Error()})
			} else if cached != nil {
				continue
			}
		}
		kept = append(kept, item)
	}
	return kept
}

// keepProcessing puts back the previous version of items with a decision in flight.
func keepProcessing(previous, merged []*models.AuthorizationItem) []*models.AuthorizationItem {
	for _, prev := range previous {
		if !prev.IsProcessingMode() {
			continue
		}
		replaced := false
		for idx, item := range merged {
			if item.Identity() == prev.Identity() {
				merged[idx] = prev
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, prev)
		}
	}
	return merged
}

func equalItems(a, b []*models.AuthorizationItem) bool {
	if len(a) != len(b) {
		return false
	}
	for idx := range a {
		if !a[idx].Equal(b[idx]) {
			return false
		}
	}
	return true
}

func cloneItems(items []*models.AuthorizationItem) []*models.AuthorizationItem {
	out := make([]*models.AuthorizationItem, 0, len(items))
	for _, item := range items {
		out = append(out, item.Clone())
	}
	return out
}
