// Package redis provides Redis-backed implementations of domain interfaces.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/authenticator/internal/config"
	"github.com/turtacn/authenticator/internal/domain/models"
	"github.com/turtacn/authenticator/internal/domain/service"
	"github.com/turtacn/authenticator/pkg/logger"
)

const defaultKeyPrefix = "authenticator:final:"

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	mode, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}

// finalRecord is the CBOR form of a finalized authorization.
type finalRecord struct {
	AuthorizationID string    `cbor:"1,keyasint"`
	ConnectionID    string    `cbor:"2,keyasint"`
	ConnectionName  string    `cbor:"3,keyasint,omitempty"`
	Title           string    `cbor:"4,keyasint,omitempty"`
	Description     string    `cbor:"5,keyasint,omitempty"`
	Status          string    `cbor:"6,keyasint"`
	CreatedAt       time.Time `cbor:"7,keyasint"`
	ExpiresAt       time.Time `cbor:"8,keyasint"`
	DestroyAt       time.Time `cbor:"9,keyasint"`
}

// redisFinalStateCache remembers finalized authorizations in Redis with a fixed TTL.
type redisFinalStateCache struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
	logger    logger.Logger
}

// NewRedisFinalStateCache creates a Redis-backed FinalStateCache.
func NewRedisFinalStateCache(client redis.UniversalClient, keyPrefix string, ttl time.Duration, log logger.Logger) service.FinalStateCache {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &redisFinalStateCache{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    log.WithComponent("FinalStateCache"),
	}
}

func (c *redisFinalStateCache) key(identity models.Identity) string {
	return c.keyPrefix + identity.String()
}

// Put stores a final item. Non-final items are ignored.
func (c *redisFinalStateCache) Put(ctx context.Context, item *models.AuthorizationItem) error {
	if item == nil || !item.Status.IsFinal() {
		return nil
	}
	data, err := encMode.Marshal(finalRecord{
		AuthorizationID: item.AuthorizationID,
		ConnectionID:    item.ConnectionID,
		ConnectionName:  item.ConnectionName,
		Title:           item.Title,
		Description:     item.Description,
		Status:          string(item.Status),
		CreatedAt:       item.CreatedAt,
		ExpiresAt:       item.ExpiresAt,
		DestroyAt:       item.DestroyAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode final state: %w", err)
	}
	if err := c.client.Set(ctx, c.key(item.Identity()), data, c.ttl).Err(); err != nil {
		c.logger.Warn(ctx, "Failed to remember final state", logger.Fields{
			"authorization": item.Identity().String(),
			"error":         err.Error(),
		})
		return fmt.Errorf("failed to store final state: %w", err)
	}
	return nil
}

// Get returns the stored item or nil when absent.
func (c *redisFinalStateCache) Get(ctx context.Context, identity models.Identity) (*models.AuthorizationItem, error) {
	data, err := c.client.Get(ctx, c.key(identity)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read final state: %w", err)
	}
	var record finalRecord
	if err := cbor.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode final state: %w", err)
	}
	status, ok := models.ParseAuthorizationStatus(record.Status)
	if !ok || !status.IsFinal() {
		return nil, nil
	}
	return &models.AuthorizationItem{
		AuthorizationID: record.AuthorizationID,
		ConnectionID:    record.ConnectionID,
		ConnectionName:  record.ConnectionName,
		Title:           record.Title,
		Description:     record.Description,
		Status:          status,
		CreatedAt:       record.CreatedAt,
		ExpiresAt:       record.ExpiresAt,
		DestroyAt:       record.DestroyAt,
	}, nil
}

// NewClient creates a Redis client from configuration and verifies it with a ping.
func NewClient(ctx context.Context, cfg config.RedisConfig) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}
	return client, nil
}
