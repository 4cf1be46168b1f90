package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/authenticator/internal/config"
	"github.com/turtacn/authenticator/internal/domain/models"
	"github.com/turtacn/authenticator/internal/domain/service"
)

var baseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func finalItem(status models.AuthorizationStatus) *models.AuthorizationItem {
	return &models.AuthorizationItem{
		AuthorizationID:   "42",
		ConnectionID:      "c1",
		ConnectionName:    "Bank c1",
		AuthorizationCode: "code-42",
		Title:             "Payment 42",
		Description:       "Pay 10 EUR",
		CreatedAt:         baseTime,
		ExpiresAt:         baseTime.Add(5 * time.Minute),
		Status:            status,
		DestroyAt:         baseTime.Add(4 * time.Second),
	}
}

type FinalStateCacheTestSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *redis.Client
	cache  service.FinalStateCache
	ctx    context.Context
}

func TestFinalStateCacheTestSuite(t *testing.T) {
	suite.Run(t, new(FinalStateCacheTestSuite))
}

func (s *FinalStateCacheTestSuite) SetupTest() {
	var err error
	s.mr, err = miniredis.Run()
	s.Require().NoError(err)
	s.client = redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.cache = NewRedisFinalStateCache(s.client, "", 10*time.Minute, nil)
	s.ctx = context.Background()
}

func (s *FinalStateCacheTestSuite) TearDownTest() {
	_ = s.client.Close()
	s.mr.Close()
}

func (s *FinalStateCacheTestSuite) TestPutAndGet() {
	item := finalItem(models.AuthorizationStatusConfirmed)
	s.Require().NoError(s.cache.Put(s.ctx, item))

	got, err := s.cache.Get(s.ctx, item.Identity())
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(models.AuthorizationStatusConfirmed, got.Status)
	s.Equal("Payment 42", got.Title)
	s.True(item.DestroyAt.Equal(got.DestroyAt))
	s.Empty(got.AuthorizationCode)

	ttl := s.mr.TTL("authenticator:final:c1/42")
	s.Equal(10*time.Minute, ttl)
}

func (s *FinalStateCacheTestSuite) TestIgnoresNonFinalItems() {
	item := finalItem(models.AuthorizationStatusPending)
	s.Require().NoError(s.cache.Put(s.ctx, item))
	s.False(s.mr.Exists("authenticator:final:c1/42"))

	got, err := s.cache.Get(s.ctx, item.Identity())
	s.NoError(err)
	s.Nil(got)
}

func (s *FinalStateCacheTestSuite) TestExpires() {
	item := finalItem(models.AuthorizationStatusDenied)
	s.Require().NoError(s.cache.Put(s.ctx, item))

	s.mr.FastForward(11 * time.Minute)
	got, err := s.cache.Get(s.ctx, item.Identity())
	s.NoError(err)
	s.Nil(got)
}

func (s *FinalStateCacheTestSuite) TestCorruptEntry() {
	s.Require().NoError(s.mr.Set("authenticator:final:c1/42", "garbage"))
	_, err := s.cache.Get(s.ctx, models.Identity{AuthorizationID: "42", ConnectionID: "c1"})
	s.Error(err)
}

func (s *FinalStateCacheTestSuite) TestUnavailableServer() {
	s.mr.Close()
	err := s.cache.Put(s.ctx, finalItem(models.AuthorizationStatusError))
	s.Error(err)
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	mr.Close()
	_, err = NewClient(context.Background(), config.RedisConfig{Address: mr.Addr()})
	assert.Error(t, err)
}

func TestMemoryFinalStateCache(t *testing.T) {
	cache := NewMemoryFinalStateCache(time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, finalItem(models.AuthorizationStatusPending)))
	got, err := cache.Get(ctx, models.Identity{AuthorizationID: "42", ConnectionID: "c1"})
	require.NoError(t, err)
	assert.Nil(t, got)

	item := finalItem(models.AuthorizationStatusTimeOut)
	require.NoError(t, cache.Put(ctx, item))
	got, err = cache.Get(ctx, item.Identity())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.AuthorizationStatusTimeOut, got.Status)

	got.Title = "changed"
	again, _ := cache.Get(ctx, item.Identity())
	assert.Equal(t, "Payment 42", again.Title)
}
