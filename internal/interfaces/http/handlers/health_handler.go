package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/authenticator/pkg/logger"
)

// checkTimeout bounds a single dependency check.
const checkTimeout = 3 * time.Second

// Checker reports the health of one dependency.
type Checker func(ctx context.Context) error

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	checks map[string]Checker
	log    logger.Logger
	now    func() time.Time
}

// NewHealthHandler creates a new HealthHandler. Every named checker is run on /health and /ready.
func NewHealthHandler(checks map[string]Checker, log logger.Logger) *HealthHandler {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &HealthHandler{
		checks: checks,
		log:    log.WithComponent("HealthHandler"),
		now:    time.Now,
	}
}

// HealthCheck runs all dependency checks. Any failure answers 503.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	status := "healthy"
	checks := h.performChecks(c.Request.Context())

	httpStatus := http.StatusOK
	for name, checkStatus := range checks {
		if checkStatus != "ok" {
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
			h.log.Warn(c.Request.Context(), "Health check failed", logger.Fields{"check": name, "status": checkStatus})
		}
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": h.now().UTC(),
		"checks":    checks,
	})
}

// ReadinessCheck reports whether the lifecycle engine can reach its dependencies.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	h.HealthCheck(c)
}

// LivenessCheck answers as long as the process serves requests.
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": h.now().UTC(),
	})
}

func (h *HealthHandler) performChecks(ctx context.Context) map[string]string {
	var wg sync.WaitGroup
	checks := make(map[string]string, len(h.checks))
	mu := &sync.Mutex{}

	wg.Add(len(h.checks))
	for name, check := range h.checks {
		go func(name string, check Checker) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()

			status := "ok"
			if err := check(checkCtx); err != nil {
				status = "error: " + err.Error()
			}
			mu.Lock()
			checks[name] = status
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()
	return checks
}
