package kms

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/authenticator/internal/config"
	"github.com/turtacn/authenticator/pkg/errors"
)

var (
	sharedKey     *rsa.PrivateKey
	sharedKeyOnce sync.Once
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	sharedKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		sharedKey = key
	})
	return sharedKey
}

func TestFileKeyStore_StoreAndGet(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")
	store, err := NewFileKeyStore(dir, nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.StorePrivateKey(ctx, "c1", testKey(t)))

	info, err := os.Stat(filepath.Join(dir, "c1.pem"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	key, err := store.GetPrivateKey(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, testKey(t).Equal(key))
}

func TestFileKeyStore_MissingKey(t *testing.T) {
	store, err := NewFileKeyStore(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = store.GetPrivateKey(context.Background(), "c1")
	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "not_found", string(appErr.Code()))
}

func TestFileKeyStore_RejectsPathTraversal(t *testing.T) {
	store, err := NewFileKeyStore(t.TempDir(), nil)
	require.NoError(t, err)

	for _, id := range []string{"", "../c1", "a/b", ".hidden"} {
		_, err := store.GetPrivateKey(context.Background(), id)
		assert.Error(t, err, id)
	}
}

func TestFileKeyStore_CorruptKey(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileKeyStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c1.pem"), []byte("not a key"), 0o600))

	_, err = store.GetPrivateKey(context.Background(), "c1")
	assert.Error(t, err)
}

func TestFileKeyStore_Delete(t *testing.T) {
	store, err := NewFileKeyStore(t.TempDir(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.StorePrivateKey(ctx, "c1", testKey(t)))
	require.NoError(t, store.DeletePrivateKey(ctx, "c1"))
	require.NoError(t, store.DeletePrivateKey(ctx, "c1"))

	_, err = store.GetPrivateKey(ctx, "c1")
	assert.Error(t, err)
}

func TestNewKeyManager(t *testing.T) {
	cfg := &config.Config{Keys: config.KeysConfig{Source: config.KeySourceFile, Directory: t.TempDir()}}
	keys, err := NewKeyManager(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &FileKeyStore{}, keys)

	cfg.Keys.Source = config.KeySourceVault
	cfg.Vault.Address = "http://127.0.0.1:8200"
	keys, err = NewKeyManager(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &VaultKeyStore{}, keys)

	cfg.Keys.Source = "hsm"
	_, err = NewKeyManager(cfg, nil)
	assert.Error(t, err)
}

func TestEncodePublicKeyPEM(t *testing.T) {
	pemData, err := EncodePublicKeyPEM(testKey(t))
	require.NoError(t, err)
	assert.Contains(t, string(pemData), "BEGIN PUBLIC KEY")
}

func TestFileKeyStore_HealthCheck(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")
	store, err := NewFileKeyStore(dir, nil)
	require.NoError(t, err)
	assert.NoError(t, store.HealthCheck(context.Background()))

	require.NoError(t, os.RemoveAll(dir))
	assert.Error(t, store.HealthCheck(context.Background()))
}
