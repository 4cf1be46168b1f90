package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/authenticator/internal/interfaces/presenter"
	"github.com/turtacn/authenticator/pkg/constants"
	"github.com/turtacn/authenticator/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestAuthorizationsHandler_KeepsRecentEvents(t *testing.T) {
	h := NewAuthorizationsHandler()
	for i := 0; i < maxRecentEvents+5; i++ {
		h.Handle(presenter.Event{Kind: presenter.EventErrorMessage, Message: "failed"})
	}
	h.Handle(presenter.Event{Kind: presenter.EventCloseView})

	assert.Len(t, h.events, maxRecentEvents)
	assert.Equal(t, "close_view", h.events[maxRecentEvents-1].Kind)
}

func TestAuthorizationsHandler_SnapshotIsCopied(t *testing.T) {
	h := NewAuthorizationsHandler()
	fixed := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return fixed }

	states := []presenter.ViewState{{AuthorizationID: "a1", ConnectionID: "c1"}}
	h.RenderList(states)
	states[0].AuthorizationID = "changed"

	assert.Equal(t, "a1", h.states[0].AuthorizationID)
	assert.Equal(t, fixed, h.updatedAt)
}

func TestRecoveryMiddleware(t *testing.T) {
	engine := gin.New()
	engine.Use(RecoveryMiddleware(logger.NewNoopLogger()))
	engine.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), string(constants.ErrCodeInternal))
}

func TestRequestIDMiddleware_PutsIDInContext(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestIDMiddleware())
	var seen string
	engine.GET("/", func(c *gin.Context) {
		seen, _ = c.Request.Context().Value(constants.ContextKeyRequestID).(string)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(constants.HeaderRequestID, "req-7")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "req-7", seen)
}

func TestHealthHandler_CheckTimeout(t *testing.T) {
	h := NewHealthHandler(map[string]Checker{
		"vault": func(ctx context.Context) error {
			_, ok := ctx.Deadline()
			assert.True(t, ok)
			return nil
		},
	}, nil)
	checks := h.performChecks(context.Background())
	assert.Equal(t, map[string]string{"vault": "ok"}, checks)
}
