package redis

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/turtacn/authenticator/internal/domain/models"
	"github.com/turtacn/authenticator/internal/domain/service"
)

// memoryFinalStateCache is the in-process FinalStateCache used when Redis is not configured.
type memoryFinalStateCache struct {
	items *gocache.Cache
}

// NewMemoryFinalStateCache creates an in-process FinalStateCache with the given TTL.
func NewMemoryFinalStateCache(ttl time.Duration) service.FinalStateCache {
	return &memoryFinalStateCache{items: gocache.New(ttl, time.Minute)}
}

func (c *memoryFinalStateCache) Put(_ context.Context, item *models.AuthorizationItem) error {
	if item == nil || !item.Status.IsFinal() {
		return nil
	}
	c.items.SetDefault(item.Identity().String(), item.Clone())
	return nil
}

func (c *memoryFinalStateCache) Get(_ context.Context, identity models.Identity) (*models.AuthorizationItem, error) {
	value, ok := c.items.Get(identity.String())
	if !ok {
		return nil, nil
	}
	return value.(*models.AuthorizationItem).Clone(), nil
}
