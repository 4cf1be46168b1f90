package service_test

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/authenticator/internal/domain/models"
	"github.com/turtacn/authenticator/internal/domain/service"
)

func item(id, connectionID string, status models.AuthorizationStatus) *models.AuthorizationItem {
	return &models.AuthorizationItem{
		AuthorizationID: id,
		ConnectionID:    connectionID,
		Title:           "title " + id,
		Status:          status,
	}
}

func ids(items []*models.AuthorizationItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.AuthorizationID+":"+string(it.Status))
	}
	return out
}

func TestMergeAuthorizationsList_KeepsFinalsAfterFresh(t *testing.T) {
	a := item("A", "c1", models.AuthorizationStatusDenied)
	previous := []*models.AuthorizationItem{a, item("B", "c1", models.AuthorizationStatusPending)}
	fresh := []*models.AuthorizationItem{
		item("A", "c1", models.AuthorizationStatusPending),
		item("B", "c1", models.AuthorizationStatusPending),
		item("C", "c1", models.AuthorizationStatusPending),
	}

	merged := service.MergeAuthorizationsList(previous, fresh)

	assert.Equal(t, []string{"B:pending", "C:pending", "A:denied"}, ids(merged))
	assert.Same(t, a, merged[2])
}

func TestMergeAuthorizationsList_IdentityIncludesConnection(t *testing.T) {
	previous := []*models.AuthorizationItem{item("A", "c1", models.AuthorizationStatusConfirmed)}
	fresh := []*models.AuthorizationItem{item("A", "c2", models.AuthorizationStatusPending)}

	merged := service.MergeAuthorizationsList(previous, fresh)

	require.Len(t, merged, 2)
	assert.Equal(t, "c2", merged[0].ConnectionID)
	assert.Equal(t, "c1", merged[1].ConnectionID)
}

func TestMergeAuthorizationsList_EmptyInputs(t *testing.T) {
	assert.Empty(t, service.MergeAuthorizationsList(nil, nil))

	fresh := []*models.AuthorizationItem{item("A", "c1", models.AuthorizationStatusPending)}
	assert.Equal(t, []string{"A:pending"}, ids(service.MergeAuthorizationsList(nil, fresh)))

	previous := []*models.AuthorizationItem{item("A", "c1", models.AuthorizationStatusPending)}
	assert.Empty(t, service.MergeAuthorizationsList(previous, nil))
}

var mergeStatuses = []models.AuthorizationStatus{
	models.AuthorizationStatusPending,
	models.AuthorizationStatusConfirmProcessing,
	models.AuthorizationStatusConfirmed,
	models.AuthorizationStatusDenied,
	models.AuthorizationStatusTimeOut,
}

func randomList(r *rand.Rand) []*models.AuthorizationItem {
	n := r.Intn(6)
	out := make([]*models.AuthorizationItem, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, item(
			fmt.Sprintf("%d", r.Intn(4)),
			fmt.Sprintf("c%d", r.Intn(2)),
			mergeStatuses[r.Intn(len(mergeStatuses))],
		))
	}
	return out
}

func TestMergeAuthorizationsList_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	for i := 0; i < 500; i++ {
		previous := randomList(r)
		fresh := randomList(r)
		merged := service.MergeAuthorizationsList(previous, fresh)

		seen := map[models.Identity]*models.AuthorizationItem{}
		for _, it := range merged {
			_, dup := seen[it.Identity()]
			require.False(t, dup, "duplicate identity %s", it.Identity())
			seen[it.Identity()] = it
		}

		for _, prev := range previous {
			if !prev.HasFinalStatus() {
				continue
			}
			got, ok := seen[prev.Identity()]
			require.True(t, ok, "final item %s missing", prev.Identity())
			require.True(t, got.HasFinalStatus())
		}
	}
}

func TestMergeAuthorization_CopiesContentOntoFinal(t *testing.T) {
	previous := []*models.AuthorizationItem{{
		AuthorizationID:   "3",
		ConnectionID:      "c1",
		Title:             "orig",
		Description:       "orig",
		AuthorizationCode: "code",
		ValidSeconds:      300,
		Status:            models.AuthorizationStatusDenyProcessing,
	}}
	fresh := &models.AuthorizationItem{AuthorizationID: "3", ConnectionID: "c1", Status: models.AuthorizationStatusConfirmed}

	merged := service.MergeAuthorization(previous, fresh)

	assert.Equal(t, models.AuthorizationStatusConfirmed, merged.Status)
	assert.Equal(t, "orig", merged.Title)
	assert.Equal(t, "orig", merged.Description)
	assert.Equal(t, "code", merged.AuthorizationCode)
	assert.Equal(t, 300, merged.ValidSeconds)
}

func TestMergeAuthorization_NonFinalOrUnknownIsVerbatim(t *testing.T) {
	previous := []*models.AuthorizationItem{item("3", "c1", models.AuthorizationStatusPending)}

	fresh := &models.AuthorizationItem{AuthorizationID: "3", ConnectionID: "c1", Title: "new", Status: models.AuthorizationStatusPending}
	assert.Equal(t, "new", service.MergeAuthorization(previous, fresh).Title)

	other := &models.AuthorizationItem{AuthorizationID: "4", ConnectionID: "c1", Status: models.AuthorizationStatusDenied}
	merged := service.MergeAuthorization(previous, other)
	assert.Same(t, other, merged)
	assert.Empty(t, merged.Title)
}
