// Package kms stores the RSA private keys that sign provider requests and unwrap authorization envelopes.
package kms

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	vault "github.com/hashicorp/vault/api"

	"github.com/turtacn/authenticator/internal/config"
	"github.com/turtacn/authenticator/internal/domain/service"
	"github.com/turtacn/authenticator/pkg/constants"
	"github.com/turtacn/authenticator/pkg/errors"
	"github.com/turtacn/authenticator/pkg/logger"
)

// DefaultKeyBits is the size of keys generated for new connections.
const DefaultKeyBits = 2048

// KeyManager is a KeyStore that can also persist keys.
// KeyManager 在 KeyStore 基础上支持写入与删除私钥。
type KeyManager interface {
	service.KeyStore

	// StorePrivateKey persists the key of a connection, replacing any previous one.
	StorePrivateKey(ctx context.Context, connectionID string, key *rsa.PrivateKey) error

	// DeletePrivateKey removes the key of a connection. Removing an unknown key is not an error.
	DeletePrivateKey(ctx context.Context, connectionID string) error

	// HealthCheck reports whether the backing store is reachable.
	HealthCheck(ctx context.Context) error
}

// NewKeyManager builds the key store selected by configuration.
func NewKeyManager(cfg *config.Config, log logger.Logger) (KeyManager, error) {
	switch cfg.Keys.Source {
	case config.KeySourceFile:
		return NewFileKeyStore(cfg.Keys.Directory, log)
	case config.KeySourceVault:
		vaultConfig := vault.DefaultConfig()
		vaultConfig.Address = cfg.Vault.Address
		client, err := vault.NewClient(vaultConfig)
		if err != nil {
			return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to create vault client")
		}
		if cfg.Vault.Token != "" {
			client.SetToken(cfg.Vault.Token)
		}
		return NewVaultKeyStore(client, cfg.Vault, cfg.Keys.CacheTTL, log), nil
	default:
		return nil, errors.ErrInvalidRequest(fmt.Sprintf("unsupported key source %q", cfg.Keys.Source))
	}
}

// GenerateKey creates a key for a connection and stores it.
func GenerateKey(ctx context.Context, keys KeyManager, connectionID string) (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, DefaultKeyBits)
	if err != nil {
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to generate RSA key")
	}
	if err := keys.StorePrivateKey(ctx, connectionID, key); err != nil {
		return nil, err
	}
	return key, nil
}

// EncodePrivateKeyPEM returns the PKCS#1 PEM form of a key.
func EncodePrivateKeyPEM(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

// EncodePublicKeyPEM returns the PKIX PEM form of the public half of a key.
// Providers receive it when a connection is paired.
func EncodePublicKeyPEM(key *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to marshal public key")
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}
