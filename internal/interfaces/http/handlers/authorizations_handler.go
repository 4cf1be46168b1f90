package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/authenticator/internal/interfaces/presenter"
)

// maxRecentEvents bounds the events kept for /api/v1/events.
const maxRecentEvents = 50

type authorizationResponse struct {
	AuthorizationID  string `json:"authorization_id"`
	ConnectionID     string `json:"connection_id"`
	ConnectionName   string `json:"connection_name,omitempty"`
	Status           string `json:"status"`
	StatusTitleKey   string `json:"status_title_key"`
	Title            string `json:"title,omitempty"`
	Description      string `json:"description,omitempty"`
	DescriptionMode  string `json:"description_mode,omitempty"`
	RemainedSeconds  int    `json:"remained_seconds"`
	ValidSeconds     int    `json:"valid_seconds"`
	Countdown        string `json:"countdown,omitempty"`
	ActionsAvailable bool   `json:"actions_available"`
}

type eventResponse struct {
	Kind          string    `json:"kind"`
	Message       string    `json:"message,omitempty"`
	ConnectionIDs []string  `json:"connection_ids,omitempty"`
	At            time.Time `json:"at"`
}

// AuthorizationsHandler 以只读方式暴露当前授权列表快照
// It implements presenter.ListView, so the list controller renders into it like any other view.
type AuthorizationsHandler struct {
	mu        sync.RWMutex
	states    []presenter.ViewState
	events    []eventResponse
	updatedAt time.Time
	now       func() time.Time
}

// NewAuthorizationsHandler creates an empty snapshot.
func NewAuthorizationsHandler() *AuthorizationsHandler {
	return &AuthorizationsHandler{now: time.Now}
}

// RenderList replaces the snapshot.
func (h *AuthorizationsHandler) RenderList(states []presenter.ViewState) {
	snapshot := make([]presenter.ViewState, len(states))
	copy(snapshot, states)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = snapshot
	h.updatedAt = h.now().UTC()
}

// Handle records a view event.
func (h *AuthorizationsHandler) Handle(event presenter.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, eventResponse{
		Kind:          event.Kind.String(),
		Message:       event.Message,
		ConnectionIDs: event.ConnectionIDs,
		At:            h.now().UTC(),
	})
	if len(h.events) > maxRecentEvents {
		h.events = h.events[len(h.events)-maxRecentEvents:]
	}
}

// ListAuthorizations returns the authorizations currently shown.
func (h *AuthorizationsHandler) ListAuthorizations(c *gin.Context) {
	h.mu.RLock()
	data := make([]authorizationResponse, 0, len(h.states))
	for _, state := range h.states {
		data = append(data, toAuthorizationResponse(state))
	}
	updatedAt := h.updatedAt
	h.mu.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"data":       data,
		"updated_at": updatedAt,
	})
}

// GetAuthorization returns one authorization of the snapshot.
func (h *AuthorizationsHandler) GetAuthorization(c *gin.Context) {
	connectionID := c.Param("connection_id")
	authorizationID := c.Param("authorization_id")

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, state := range h.states {
		if state.ConnectionID == connectionID && state.AuthorizationID == authorizationID {
			c.JSON(http.StatusOK, gin.H{"data": toAuthorizationResponse(state)})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{
		"error":             "not_found",
		"error_description": "authorization not found",
	})
}

// ListEvents returns the most recent view events.
func (h *AuthorizationsHandler) ListEvents(c *gin.Context) {
	h.mu.RLock()
	data := make([]eventResponse, len(h.events))
	copy(data, h.events)
	h.mu.RUnlock()

	c.JSON(http.StatusOK, gin.H{"data": data})
}

func toAuthorizationResponse(state presenter.ViewState) authorizationResponse {
	return authorizationResponse{
		AuthorizationID:  state.AuthorizationID,
		ConnectionID:     state.ConnectionID,
		ConnectionName:   state.ConnectionName,
		Status:           string(state.Status),
		StatusTitleKey:   state.StatusTitleKey,
		Title:            state.Title,
		Description:      state.Description,
		DescriptionMode:  string(state.DescriptionMode),
		RemainedSeconds:  state.RemainedSeconds,
		ValidSeconds:     state.ValidSeconds,
		Countdown:        state.CountdownText,
		ActionsAvailable: state.ActionsEnabled,
	}
}
