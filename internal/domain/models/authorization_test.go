package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/authenticator/internal/domain/models"
)

var baseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func pendingItem(expiresAt time.Time) *models.AuthorizationItem {
	return &models.AuthorizationItem{
		AuthorizationID: "1",
		ConnectionID:    "c1",
		ExpiresAt:       expiresAt,
		Status:          models.AuthorizationStatusPending,
	}
}

func TestNewAuthorizationItem_ValidSeconds(t *testing.T) {
	createdAt := baseTime
	data := &models.AuthorizationData{
		ID:                "1",
		ConnectionID:      "c1",
		Title:             "Payment",
		Description:       "Pay 10 EUR",
		CreatedAt:         &createdAt,
		ExpiresAt:         baseTime.Add(3600 * time.Second),
		AuthorizationCode: "code",
	}

	item := models.NewAuthorizationItem(data, &models.Connection{ID: "c1", Name: "Demo Bank"})

	assert.Equal(t, 3600, item.ValidSeconds)
	assert.Contains(t, []int{3599, 3600}, item.RemainedSecondsTillExpire(baseTime))
	assert.Equal(t, models.AuthorizationStatusPending, item.Status)
	assert.Equal(t, "Demo Bank", item.ConnectionName)
	assert.True(t, item.DestroyAt.IsZero())
}

func TestNewAuthorizationItem_MissingCreatedAt(t *testing.T) {
	data := &models.AuthorizationData{ID: "1", ConnectionID: "c1", ExpiresAt: baseTime.Add(time.Minute)}
	item := models.NewAuthorizationItem(data, nil)
	assert.Equal(t, 0, item.ValidSeconds)
	assert.True(t, item.CreatedAt.IsZero())
}

func TestNewAuthorizationItem_GeolocationFromConnection(t *testing.T) {
	data := &models.AuthorizationData{ID: "1", ExpiresAt: baseTime}
	item := models.NewAuthorizationItem(data, &models.Connection{ID: "c9", GeolocationRequired: true})
	assert.True(t, item.GeolocationRequired)
	assert.Equal(t, "c9", item.ConnectionID)
}

func TestAuthorizationData_FinalStatus(t *testing.T) {
	tests := []struct {
		status string
		want   models.AuthorizationStatus
		ok     bool
	}{
		{"", "", false},
		{"pending", "", false},
		{"confirm_processed", models.AuthorizationStatusConfirmed, true},
		{"deny_processed", models.AuthorizationStatusDenied, true},
		{"closed", models.AuthorizationStatusUnavailable, true},
		{"time_out", models.AuthorizationStatusTimeOut, true},
		{"bogus", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			got, ok := (&models.AuthorizationData{Status: tt.status}).FinalStatus()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAuthorizationItem_IsExpired(t *testing.T) {
	item := pendingItem(baseTime)
	assert.False(t, item.IsExpired(baseTime.Add(-time.Second)))
	assert.True(t, item.IsExpired(baseTime))
	assert.True(t, item.IsExpired(baseTime.Add(time.Second)))
}

func TestAuthorizationItem_ShouldBeSetTimeOutMode(t *testing.T) {
	tests := []struct {
		name   string
		status models.AuthorizationStatus
		want   bool
	}{
		{"pending", models.AuthorizationStatusPending, true},
		{"confirm processing", models.AuthorizationStatusConfirmProcessing, true},
		{"loading", models.AuthorizationStatusLoading, false},
		{"confirmed", models.AuthorizationStatusConfirmed, false},
		{"time out", models.AuthorizationStatusTimeOut, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := pendingItem(baseTime)
			item.Status = tt.status
			assert.Equal(t, tt.want, item.ShouldBeSetTimeOutMode(baseTime))
			assert.False(t, item.ShouldBeSetTimeOutMode(baseTime.Add(-time.Second)))
		})
	}
}

func TestAuthorizationItem_Predicates(t *testing.T) {
	item := pendingItem(baseTime.Add(time.Minute))
	assert.True(t, item.CanBeAuthorized())
	assert.False(t, item.IgnoreTimeUpdate())
	assert.False(t, item.IsProcessingMode())
	assert.False(t, item.HasFinalStatus())

	item.Status = models.AuthorizationStatusDenyProcessing
	assert.False(t, item.CanBeAuthorized())
	assert.True(t, item.IgnoreTimeUpdate())
	assert.True(t, item.IsProcessingMode())
}

func TestAuthorizationItem_RemainedTimeString(t *testing.T) {
	item := pendingItem(baseTime.Add(125*time.Second + 500*time.Millisecond))
	assert.Equal(t, 125, item.RemainedSecondsTillExpire(baseTime))
	assert.Equal(t, "2:05", item.RemainedTimeString(baseTime))
	assert.Equal(t, "0:00", item.RemainedTimeString(baseTime.Add(time.Hour)))
	assert.Equal(t, 0, item.RemainedSecondsTillExpire(baseTime.Add(time.Hour)))
}

func TestAuthorizationItem_ApplyStatus(t *testing.T) {
	item := pendingItem(baseTime.Add(time.Minute))

	require.True(t, item.ApplyStatus(models.AuthorizationStatusConfirmProcessing, baseTime, 4*time.Second))
	assert.True(t, item.DestroyAt.IsZero())

	require.True(t, item.ApplyStatus(models.AuthorizationStatusConfirmed, baseTime, 4*time.Second))
	assert.Equal(t, baseTime.Add(4*time.Second), item.DestroyAt)

	// final never goes back
	assert.False(t, item.ApplyStatus(models.AuthorizationStatusPending, baseTime.Add(time.Second), 4*time.Second))
	assert.Equal(t, models.AuthorizationStatusConfirmed, item.Status)

	// final to final keeps the original DestroyAt
	require.True(t, item.ApplyStatus(models.AuthorizationStatusError, baseTime.Add(2*time.Second), 4*time.Second))
	assert.Equal(t, baseTime.Add(4*time.Second), item.DestroyAt)

	assert.False(t, item.ShouldBeDestroyed(baseTime.Add(3*time.Second)))
	assert.True(t, item.ShouldBeDestroyed(baseTime.Add(4*time.Second)))
}

func TestAuthorizationItem_CloneAndEqual(t *testing.T) {
	item := pendingItem(baseTime)
	item.Title = "Payment"
	clone := item.Clone()
	assert.True(t, item.Equal(clone))

	clone.Title = "Other"
	assert.False(t, item.Equal(clone))
	assert.Equal(t, "Payment", item.Title)

	var nilItem *models.AuthorizationItem
	assert.True(t, nilItem.Equal(nil))
	assert.False(t, nilItem.Equal(item))
}

func TestDetectDescriptionMode(t *testing.T) {
	assert.Equal(t, models.DescriptionModePlain, models.DetectDescriptionMode("Pay 10 < 20 EUR"))
	assert.Equal(t, models.DescriptionModeMarkup, models.DetectDescriptionMode("<p>Pay <b>10 EUR</b></p>"))
	assert.Equal(t, models.DescriptionModeMarkup, models.DetectDescriptionMode("line<br/>break"))
}
