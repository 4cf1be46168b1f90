package presenter

import (
	"context"
	"sync"

	"github.com/turtacn/authenticator/internal/application/service"
	"github.com/turtacn/authenticator/internal/domain/models"
	"github.com/turtacn/authenticator/pkg/logger"
)

// AuthorizationsListController 授权请求列表视图的控制器
type AuthorizationsListController struct {
	interactor *service.AuthorizationsListInteractor
	opts       ControllerOptions
	log        logger.Logger

	renderMu sync.Mutex

	mu   sync.Mutex
	view ListView
}

// NewAuthorizationsListController creates a controller driving interactor.
func NewAuthorizationsListController(interactor *service.AuthorizationsListInteractor, opts ControllerOptions) *AuthorizationsListController {
	opts.withDefaults()
	return &AuthorizationsListController{
		interactor: interactor,
		opts:       opts,
		log:        opts.Logger.WithComponent("AuthorizationsListController"),
	}
}

// SetView attaches the view. Pass nil to detach.
func (c *AuthorizationsListController) SetView(view ListView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = view
}

// Start resolves the connections and begins polling. It returns false when no connection is usable.
func (c *AuthorizationsListController) Start(ctx context.Context) bool {
	c.interactor.SetListener(c)
	if !c.interactor.SetInitialData(ctx) {
		c.log.Warn(ctx, "No usable connections")
		c.renderCurrent()
		return false
	}
	c.interactor.StartPolling()
	c.renderCurrent()
	return true
}

// Run drives the timer ticks until ctx is done, then stops polling.
func (c *AuthorizationsListController) Run(ctx context.Context) {
	ticker := c.opts.Clock.NewTicker(c.opts.TickInterval)
	defer ticker.Stop()
	defer c.interactor.StopPolling()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Tick re-evaluates every item. Timeouts and removals are rendered through OnItemsChanged.
func (c *AuthorizationsListController) Tick() {
	if c.interactor.Tick() == service.TickCountdown {
		c.renderCurrent()
	}
}

// OnConfirm handles a tap on the confirm action of one item.
func (c *AuthorizationsListController) OnConfirm(ctx context.Context, identity models.Identity) bool {
	item := c.find(identity)
	if item == nil || !item.CanBeAuthorized() || !c.locationSatisfied(item) {
		return false
	}
	method, ok := authenticateUser(ctx, c.opts.Authenticator)
	if !ok {
		c.log.Info(ctx, "User authentication declined", logger.Fields{"authorization_id": identity.AuthorizationID})
		return false
	}
	return c.interactor.UpdateAuthorization(ctx, identity, item.AuthorizationCode, true, method)
}

// OnDeny handles a tap on the deny action of one item.
func (c *AuthorizationsListController) OnDeny(ctx context.Context, identity models.Identity) bool {
	item := c.find(identity)
	if item == nil || !item.CanBeAuthorized() || !c.locationSatisfied(item) {
		return false
	}
	return c.interactor.UpdateAuthorization(ctx, identity, item.AuthorizationCode, false, models.AuthMethodNone)
}

// OnBack handles back navigation.
func (c *AuthorizationsListController) OnBack() {
	c.interactor.StopPolling()
	kind := EventCloseView
	if c.opts.CloseAppOnBack {
		kind = EventCloseApp
	}
	c.emit(Event{Kind: kind})
}

// Stop detaches the controller from the interactor.
func (c *AuthorizationsListController) Stop() {
	c.interactor.StopPolling()
	c.interactor.SetListener(nil)
}

// OnItemsChanged implements service.AuthorizationsListListener. The current items are
// re-read so a stale snapshot never overwrites a newer render.
func (c *AuthorizationsListController) OnItemsChanged([]*models.AuthorizationItem) {
	c.renderCurrent()
}

// OnErrorMessage implements service.AuthorizationsListListener.
func (c *AuthorizationsListController) OnErrorMessage(message string) {
	c.emit(Event{Kind: EventErrorMessage, Message: message})
}

// OnConnectionsInvalidated implements service.AuthorizationsListListener.
func (c *AuthorizationsListController) OnConnectionsInvalidated(connectionIDs []string) {
	c.emit(Event{Kind: EventConnectionInvalidated, ConnectionIDs: connectionIDs})
}

func (c *AuthorizationsListController) find(identity models.Identity) *models.AuthorizationItem {
	for _, item := range c.interactor.Items() {
		if item.Identity() == identity {
			return item
		}
	}
	return nil
}

func (c *AuthorizationsListController) locationSatisfied(item *models.AuthorizationItem) bool {
	kind, ok := geolocationGate(c.opts.Location, item.GeolocationRequired)
	if !ok {
		c.emit(Event{Kind: kind})
	}
	return ok
}

// renderCurrent reads the items and renders them under renderMu.
func (c *AuthorizationsListController) renderCurrent() {
	c.renderMu.Lock()
	defer c.renderMu.Unlock()
	c.mu.Lock()
	view := c.view
	c.mu.Unlock()
	if view == nil {
		return
	}
	items := c.interactor.Items()
	now := c.opts.Clock.Now()
	states := make([]ViewState, 0, len(items))
	for _, item := range items {
		states = append(states, NewViewState(item, now))
	}
	view.RenderList(states)
}

func (c *AuthorizationsListController) emit(event Event) {
	c.mu.Lock()
	view := c.view
	c.mu.Unlock()
	if view != nil {
		view.Handle(event)
	}
}
