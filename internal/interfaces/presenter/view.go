// Package presenter turns interactor callbacks and user intents into view state and navigation events.
package presenter

import (
	"context"
	"time"

	"github.com/turtacn/authenticator/internal/domain/models"
	"github.com/turtacn/authenticator/internal/domain/service"
)

// EventKind 一次性视图事件类型
type EventKind int

const (
	// EventErrorMessage carries a user-visible message.
	EventErrorMessage EventKind = iota + 1
	// EventRequestLocationPermission asks the user to grant location access.
	EventRequestLocationPermission
	// EventRequestLocationEnable asks the user to turn the location provider on.
	EventRequestLocationEnable
	// EventConnectionInvalidated reports connections dropped after the provider rejected them.
	EventConnectionInvalidated
	// EventCloseView closes the current view.
	EventCloseView
	// EventCloseApp closes the whole application.
	EventCloseApp
)

func (k EventKind) String() string {
	switch k {
	case EventErrorMessage:
		return "error_message"
	case EventRequestLocationPermission:
		return "request_location_permission"
	case EventRequestLocationEnable:
		return "request_location_enable"
	case EventConnectionInvalidated:
		return "connection_invalidated"
	case EventCloseView:
		return "close_view"
	case EventCloseApp:
		return "close_app"
	default:
		return "unknown"
	}
}

// Event 一次性视图事件
type Event struct {
	Kind          EventKind
	Message       string
	ConnectionIDs []string
}

// ViewState is the render model of one authorization.
// ViewState 单个授权请求的渲染模型
type ViewState struct {
	AuthorizationID string
	ConnectionID    string
	ConnectionName  string
	Status          models.AuthorizationStatus
	StatusTitleKey  string
	StatusImageKey  string
	Title           string
	Description     string
	DescriptionMode models.DescriptionMode
	CountdownText   string
	RemainedSeconds int
	ValidSeconds    int
	ActionsEnabled  bool
}

// NewViewState builds the render model of item at now.
func NewViewState(item *models.AuthorizationItem, now time.Time) ViewState {
	if item == nil {
		return ViewState{}
	}
	state := ViewState{
		AuthorizationID: item.AuthorizationID,
		ConnectionID:    item.ConnectionID,
		ConnectionName:  item.ConnectionName,
		Status:          item.Status,
		StatusTitleKey:  item.Status.TitleKey(),
		StatusImageKey:  item.Status.ImageKey(),
		Title:           item.Title,
		Description:     item.Description,
		DescriptionMode: item.DescriptionMode(),
		ValidSeconds:    item.ValidSeconds,
		ActionsEnabled:  item.CanBeAuthorized(),
	}
	if item.Status == models.AuthorizationStatusPending {
		state.RemainedSeconds = item.RemainedSecondsTillExpire(now)
		state.CountdownText = item.RemainedTimeString(now)
	}
	return state
}

func unavailableState(connectionID, authorizationID string) ViewState {
	status := models.AuthorizationStatusUnavailable
	return ViewState{
		AuthorizationID: authorizationID,
		ConnectionID:    connectionID,
		Status:          status,
		StatusTitleKey:  status.TitleKey(),
		StatusImageKey:  status.ImageKey(),
	}
}

// View renders a single authorization. Methods may be called from several goroutines.
type View interface {
	Render(state ViewState)
	Handle(event Event)
}

// ListView renders the authorizations list. Methods may be called from several goroutines.
type ListView interface {
	RenderList(states []ViewState)
	Handle(event Event)
}

// geolocationGate returns the event to emit when the location requirement is not met.
func geolocationGate(location service.LocationProvider, required bool) (EventKind, bool) {
	if !required {
		return 0, true
	}
	if location == nil || !location.LocationPermissionsGranted() {
		return EventRequestLocationPermission, false
	}
	if !location.IsLocationEnabled() {
		return EventRequestLocationEnable, false
	}
	return 0, true
}

// authenticateUser runs the biometric gate, falling back to the passcode prompt.
// A confirm is never sent without an authenticator.
func authenticateUser(ctx context.Context, gate service.UserAuthenticator) (models.AuthMethod, bool) {
	if gate == nil {
		return "", false
	}
	switch gate.AuthenticateBiometric(ctx) {
	case service.GateSuccess:
		return models.AuthMethodBiometrics, true
	case service.GateCancel, service.GateFallback:
		if gate.AuthenticatePasscode(ctx) == service.GateSuccess {
			return models.AuthMethodPasscode, true
		}
	}
	return "", false
}
