package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/turtacn/authenticator/internal/domain/models"
)

var allStatuses = []models.AuthorizationStatus{
	models.AuthorizationStatusLoading,
	models.AuthorizationStatusPending,
	models.AuthorizationStatusConfirmProcessing,
	models.AuthorizationStatusDenyProcessing,
	models.AuthorizationStatusConfirmed,
	models.AuthorizationStatusDenied,
	models.AuthorizationStatusError,
	models.AuthorizationStatusTimeOut,
	models.AuthorizationStatusUnavailable,
}

func TestAuthorizationStatus_Capabilities(t *testing.T) {
	final := map[models.AuthorizationStatus]bool{
		models.AuthorizationStatusConfirmed:   true,
		models.AuthorizationStatusDenied:      true,
		models.AuthorizationStatusError:       true,
		models.AuthorizationStatusTimeOut:     true,
		models.AuthorizationStatusUnavailable: true,
	}
	for _, status := range allStatuses {
		t.Run(string(status), func(t *testing.T) {
			assert.True(t, status.IsValid())
			assert.Equal(t, final[status], status.IsFinal())
			processing := status == models.AuthorizationStatusConfirmProcessing ||
				status == models.AuthorizationStatusDenyProcessing
			assert.Equal(t, processing, status.IsProcessing())
			if status.IsFinal() {
				assert.NotEmpty(t, status.ImageKey())
			}
		})
	}
	assert.False(t, models.AuthorizationStatus("bogus").IsValid())
}

func TestCanTransition_FinalityIsMonotonic(t *testing.T) {
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			allowed := models.CanTransition(from, to)
			if from == to || to == models.AuthorizationStatusLoading {
				assert.False(t, allowed, "%s -> %s", from, to)
				continue
			}
			if from.IsFinal() {
				assert.Equal(t, to.IsFinal(), allowed, "%s -> %s", from, to)
				continue
			}
			assert.True(t, allowed, "%s -> %s", from, to)
		}
	}
}

func TestParseAuthorizationStatus(t *testing.T) {
	status, ok := models.ParseAuthorizationStatus("confirm_processed")
	assert.True(t, ok)
	assert.Equal(t, models.AuthorizationStatusConfirmed, status)

	status, ok = models.ParseAuthorizationStatus("denied")
	assert.True(t, ok)
	assert.Equal(t, models.AuthorizationStatusDenied, status)

	_, ok = models.ParseAuthorizationStatus("unknown")
	assert.False(t, ok)
}
