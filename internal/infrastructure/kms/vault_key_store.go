package kms

import (
	"context"
	"crypto/rsa"
	stderrors "errors"
	"path"
	"time"

	"github.com/golang-jwt/jwt/v5"
	vault "github.com/hashicorp/vault/api"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/authenticator/internal/config"
	"github.com/turtacn/authenticator/pkg/constants"
	"github.com/turtacn/authenticator/pkg/errors"
	"github.com/turtacn/authenticator/pkg/logger"
)

const privateKeyField = "private_key"

// VaultKeyStore keeps connection keys in a Vault KV v2 engine.
// Parsed keys are cached in memory and concurrent misses share one read.
type VaultKeyStore struct {
	client    *vault.Client
	mountPath string
	keyPrefix string
	cache     *gocache.Cache
	sf        singleflight.Group
	logger    logger.Logger
}

// NewVaultKeyStore creates a Vault-backed key store. A non-positive ttl disables caching.
func NewVaultKeyStore(client *vault.Client, cfg config.VaultConfig, ttl time.Duration, log logger.Logger) *VaultKeyStore {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	mount := cfg.MountPath
	if mount == "" {
		mount = "secret"
	}
	s := &VaultKeyStore{
		client:    client,
		mountPath: mount,
		keyPrefix: cfg.KeyPrefix,
		logger:    log.WithComponent("VaultKeyStore"),
	}
	if ttl > 0 {
		s.cache = gocache.New(ttl, 2*ttl)
	}
	return s
}

func (s *VaultKeyStore) secretPath(connectionID string) string {
	return path.Join(s.keyPrefix, connectionID)
}

// GetPrivateKey returns the key of a connection, reading Vault on cache misses.
func (s *VaultKeyStore) GetPrivateKey(ctx context.Context, connectionID string) (*rsa.PrivateKey, error) {
	if connectionID == "" {
		return nil, errors.ErrInvalidRequest("connection id is required")
	}
	if s.cache != nil {
		if cached, ok := s.cache.Get(connectionID); ok {
			return cached.(*rsa.PrivateKey), nil
		}
	}

	key, err, _ := s.sf.Do(connectionID, func() (interface{}, error) {
		secret, err := s.client.KVv2(s.mountPath).Get(ctx, s.secretPath(connectionID))
		if err != nil {
			if stderrors.Is(err, vault.ErrSecretNotFound) {
				return nil, errors.ErrNotFound("private key")
			}
			s.logger.Error(ctx, "Failed to read private key from Vault", err, logger.Fields{"connection_id": connectionID})
			return nil, errors.Wrap(err, constants.ErrCodeInternal, "could not retrieve private key from vault")
		}
		pemData, ok := secret.Data[privateKeyField].(string)
		if !ok || pemData == "" {
			return nil, errors.ErrNotFound("private key")
		}
		parsed, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pemData))
		if err != nil {
			return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to parse private key")
		}
		if s.cache != nil {
			s.cache.SetDefault(connectionID, parsed)
		}
		return parsed, nil
	})
	if err != nil {
		return nil, err
	}
	return key.(*rsa.PrivateKey), nil
}

// StorePrivateKey writes the key of a connection to Vault.
func (s *VaultKeyStore) StorePrivateKey(ctx context.Context, connectionID string, key *rsa.PrivateKey) error {
	if connectionID == "" || key == nil {
		return errors.ErrInvalidRequest("connection id and private key are required")
	}
	_, err := s.client.KVv2(s.mountPath).Put(ctx, s.secretPath(connectionID), map[string]interface{}{
		privateKeyField: string(EncodePrivateKeyPEM(key)),
	})
	if err != nil {
		s.logger.Error(ctx, "Failed to write private key to Vault", err, logger.Fields{"connection_id": connectionID})
		return errors.Wrap(err, constants.ErrCodeInternal, "failed to write key to vault")
	}
	if s.cache != nil {
		s.cache.SetDefault(connectionID, key)
	}
	return nil
}

// DeletePrivateKey removes every version of a connection key.
func (s *VaultKeyStore) DeletePrivateKey(ctx context.Context, connectionID string) error {
	if s.cache != nil {
		s.cache.Delete(connectionID)
	}
	if err := s.client.KVv2(s.mountPath).DeleteMetadata(ctx, s.secretPath(connectionID)); err != nil {
		return errors.Wrap(err, constants.ErrCodeInternal, "failed to delete key from vault")
	}
	return nil
}

// HealthCheck queries the Vault health endpoint. A sealed Vault is unhealthy.
func (s *VaultKeyStore) HealthCheck(ctx context.Context) error {
	health, err := s.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return err
	}
	if health.Sealed {
		return stderrors.New("vault is sealed")
	}
	return nil
}
