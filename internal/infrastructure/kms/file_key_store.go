package kms

import (
	"context"
	"crypto/rsa"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/authenticator/pkg/constants"
	"github.com/turtacn/authenticator/pkg/errors"
	"github.com/turtacn/authenticator/pkg/logger"
)

// FileKeyStore keeps one PEM file per connection in a private directory.
type FileKeyStore struct {
	dir    string
	logger logger.Logger
}

// NewFileKeyStore creates the key directory when needed.
func NewFileKeyStore(dir string, log logger.Logger) (*FileKeyStore, error) {
	if dir == "" {
		return nil, errors.ErrInvalidRequest("key directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to create key directory")
	}
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &FileKeyStore{dir: dir, logger: log.WithComponent("FileKeyStore")}, nil
}

func (s *FileKeyStore) path(connectionID string) (string, error) {
	if connectionID == "" || connectionID != filepath.Base(connectionID) || strings.HasPrefix(connectionID, ".") {
		return "", errors.ErrInvalidRequest("invalid connection id")
	}
	return filepath.Join(s.dir, connectionID+".pem"), nil
}

// GetPrivateKey loads and parses the key of a connection.
func (s *FileKeyStore) GetPrivateKey(ctx context.Context, connectionID string) (*rsa.PrivateKey, error) {
	path, err := s.path(connectionID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ErrNotFound("private key")
		}
		s.logger.Error(ctx, "Failed to read private key", err, logger.Fields{"connection_id": connectionID})
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to read private key")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		s.logger.Error(ctx, "Stored private key is unreadable", err, logger.Fields{"connection_id": connectionID})
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to parse private key")
	}
	return key, nil
}

// StorePrivateKey writes the key atomically with owner-only permissions.
func (s *FileKeyStore) StorePrivateKey(ctx context.Context, connectionID string, key *rsa.PrivateKey) error {
	path, err := s.path(connectionID)
	if err != nil {
		return err
	}
	if key == nil {
		return errors.ErrInvalidRequest("private key is required")
	}
	tmp, err := os.CreateTemp(s.dir, ".key-*")
	if err != nil {
		return errors.Wrap(err, constants.ErrCodeInternal, "failed to store private key")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(EncodePrivateKeyPEM(key)); err != nil {
		tmp.Close()
		return errors.Wrap(err, constants.ErrCodeInternal, "failed to store private key")
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return errors.Wrap(err, constants.ErrCodeInternal, "failed to store private key")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, constants.ErrCodeInternal, "failed to store private key")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, constants.ErrCodeInternal, "failed to store private key")
	}
	s.logger.Info(ctx, "Private key stored", logger.Fields{"connection_id": connectionID})
	return nil
}

// DeletePrivateKey removes the key file of a connection.
func (s *FileKeyStore) DeletePrivateKey(ctx context.Context, connectionID string) error {
	path, err := s.path(connectionID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, constants.ErrCodeInternal, "failed to delete private key")
	}
	return nil
}

// HealthCheck verifies the key directory is still a directory.
func (s *FileKeyStore) HealthCheck(ctx context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.ErrInvalidRequest("key path is not a directory")
	}
	return nil
}
