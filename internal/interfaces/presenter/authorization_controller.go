package presenter

import (
	"context"
	"sync"
	"time"

	"github.com/turtacn/authenticator/internal/application/service"
	"github.com/turtacn/authenticator/internal/domain/models"
	domainservice "github.com/turtacn/authenticator/internal/domain/service"
	"github.com/turtacn/authenticator/pkg/clock"
	"github.com/turtacn/authenticator/pkg/constants"
	"github.com/turtacn/authenticator/pkg/logger"
)

// ControllerOptions groups the collaborators shared by the controllers.
type ControllerOptions struct {
	Location      domainservice.LocationProvider
	Authenticator domainservice.UserAuthenticator
	Clock         clock.Clock
	Logger        logger.Logger
	TickInterval  time.Duration
	// CloseAppOnBack selects the navigation intent emitted by OnBack.
	CloseAppOnBack bool
}

func (o *ControllerOptions) withDefaults() {
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = logger.NewNoopLogger()
	}
	if o.TickInterval <= 0 {
		o.TickInterval = constants.DefaultTickInterval
	}
}

// AuthorizationController 单个授权请求视图的控制器
type AuthorizationController struct {
	interactor *service.AuthorizationInteractor
	opts       ControllerOptions
	log        logger.Logger

	// renderMu orders renders so a countdown built from an older item never lands
	// after a newer one.
	renderMu sync.Mutex

	mu     sync.Mutex
	view   View
	closed bool
}

// NewAuthorizationController creates a controller driving interactor.
func NewAuthorizationController(interactor *service.AuthorizationInteractor, opts ControllerOptions) *AuthorizationController {
	opts.withDefaults()
	return &AuthorizationController{
		interactor: interactor,
		opts:       opts,
		log:        opts.Logger.WithComponent("AuthorizationController"),
	}
}

// SetView attaches the view. Pass nil to detach.
func (c *AuthorizationController) SetView(view View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = view
}

// Start resolves the connection and begins polling. Without a usable connection the view
// shows the unavailable state and false is returned.
func (c *AuthorizationController) Start(ctx context.Context, connectionID, authorizationID string) bool {
	c.interactor.SetListener(c)
	if !c.interactor.SetInitialData(ctx, connectionID) {
		c.log.Warn(ctx, "No usable connection", logger.Fields{"connection_id": connectionID})
		c.renderMu.Lock()
		c.render(unavailableState(connectionID, authorizationID))
		c.renderMu.Unlock()
		return false
	}
	c.interactor.StartPolling(authorizationID)
	c.renderCurrent()
	return true
}

// Run drives the timer ticks until ctx is done, then stops polling.
func (c *AuthorizationController) Run(ctx context.Context) {
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

// Tick re-evaluates the item. It is called by Run on every tick.
func (c *AuthorizationController) Tick() {
	switch c.interactor.Tick() {
	case service.TickCountdown:
		c.renderCurrent()
	case service.TickDestroyed:
		c.closeView()
	}
}

// OnConfirm handles a tap on the confirm action.
func (c *AuthorizationController) OnConfirm(ctx context.Context) bool {
	item := c.interactor.Item()
	if item == nil || !item.CanBeAuthorized() {
		return false
	}
	if !c.locationSatisfied(item) {
		return false
	}
	method, ok := authenticateUser(ctx, c.opts.Authenticator)
	if !ok {
		c.log.Info(ctx, "User authentication declined", logger.Fields{"authorization_id": item.AuthorizationID})
		return false
	}
	return c.interactor.UpdateAuthorization(ctx, item.AuthorizationID, item.AuthorizationCode, true, method)
}

// OnDeny handles a tap on the deny action.
func (c *AuthorizationController) OnDeny(ctx context.Context) bool {
	item := c.interactor.Item()
	if item == nil || !item.CanBeAuthorized() {
		return false
	}
	if !c.locationSatisfied(item) {
		return false
	}
	return c.interactor.UpdateAuthorization(ctx, item.AuthorizationID, item.AuthorizationCode, false, models.AuthMethodNone)
}

// OnBack handles back navigation.
func (c *AuthorizationController) OnBack() {
	c.interactor.StopPolling()
	if c.opts.CloseAppOnBack {
		c.emit(Event{Kind: EventCloseApp})
		return
	}
	c.closeView()
}

// Stop detaches the controller from the interactor.
func (c *AuthorizationController) Stop() {
	c.interactor.StopPolling()
	c.interactor.SetListener(nil)
}

// OnItemChanged implements service.AuthorizationListener. The interactor's current item
// is rendered rather than the snapshot, which may already be outdated.
func (c *AuthorizationController) OnItemChanged(*models.AuthorizationItem) {
	c.renderCurrent()
}

// OnErrorMessage implements service.AuthorizationListener.
func (c *AuthorizationController) OnErrorMessage(message string) {
	c.emit(Event{Kind: EventErrorMessage, Message: message})
}

// OnConnectionInvalidated implements service.AuthorizationListener.
func (c *AuthorizationController) OnConnectionInvalidated() {
	var ids []string
	if item := c.interactor.Item(); item != nil {
		ids = []string{item.ConnectionID}
	}
	c.emit(Event{Kind: EventConnectionInvalidated, ConnectionIDs: ids})
}

func (c *AuthorizationController) locationSatisfied(item *models.AuthorizationItem) bool {
	kind, ok := geolocationGate(c.opts.Location, item.GeolocationRequired)
	if !ok {
		c.emit(Event{Kind: kind})
	}
	return ok
}

func (c *AuthorizationController) closeView() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.interactor.StopPolling()
	c.emit(Event{Kind: EventCloseView})
}

// renderCurrent reads the item and renders it under renderMu.
func (c *AuthorizationController) renderCurrent() {
	c.renderMu.Lock()
	defer c.renderMu.Unlock()
	item := c.interactor.Item()
	if item == nil {
		return
	}
	c.render(NewViewState(item, c.opts.Clock.Now()))
}

func (c *AuthorizationController) render(state ViewState) {
	c.mu.Lock()
	view := c.view
	c.mu.Unlock()
	if view != nil {
		view.Render(state)
	}
}

func (c *AuthorizationController) emit(event Event) {
	c.mu.Lock()
	view := c.view
	c.mu.Unlock()
	if view != nil {
		view.Handle(event)
	}
}
