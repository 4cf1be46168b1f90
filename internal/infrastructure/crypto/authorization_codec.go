package crypto

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/turtacn/authenticator/internal/domain/models"
	"github.com/turtacn/authenticator/internal/domain/service"
	"github.com/turtacn/authenticator/pkg/constants"
	"github.com/turtacn/authenticator/pkg/errors"
	"github.com/turtacn/authenticator/pkg/logger"
)

var keySizes = map[constants.EncryptionAlgorithm]int{
	constants.AlgorithmAES256CBC: 32,
	constants.AlgorithmAES192CBC: 24,
	constants.AlgorithmAES128CBC: 16,
}

// AuthorizationCodec decrypts provider envelopes.
type AuthorizationCodec struct {
	log logger.Logger
}

var _ service.AuthorizationDecoder = (*AuthorizationCodec)(nil)

// NewAuthorizationCodec creates a new AuthorizationCodec.
func NewAuthorizationCodec(log logger.Logger) *AuthorizationCodec {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &AuthorizationCodec{log: log.WithComponent("AuthorizationCodec")}
}

// Decrypt returns the plain payload of an envelope, or nil if it cannot be interpreted.
func (c *AuthorizationCodec) Decrypt(envelope *models.EncryptedData, key *rsa.PrivateKey) *models.AuthorizationData {
	data, err := DecryptEnvelope(envelope, key)
	if err != nil {
		fields := logger.Fields{"error": err.Error()}
		if envelope != nil {
			fields["authorization_id"] = envelope.ID
			fields["connection_id"] = envelope.ConnectionID
		}
		c.log.Debug(context.Background(), "Discarding undecryptable authorization envelope", fields)
		return nil
	}
	return data
}

// DecryptEnvelope unwraps the AES key and IV with RSA PKCS#1 v1.5, decrypts the AES-CBC
// ciphertext and decodes the JSON payload.
func DecryptEnvelope(envelope *models.EncryptedData, key *rsa.PrivateKey) (*models.AuthorizationData, error) {
	if envelope == nil {
		return nil, errors.ErrDecryption("missing envelope")
	}
	if key == nil {
		return nil, errors.ErrDecryption("missing private key")
	}
	keySize, ok := keySizes[constants.EncryptionAlgorithm(strings.ToUpper(envelope.Algorithm))]
	if !ok {
		return nil, errors.ErrDecryption(fmt.Sprintf("unsupported algorithm %q", envelope.Algorithm))
	}

	aesKey, err := unwrap(envelope.Key, key)
	if err != nil {
		return nil, errors.ErrDecryption("key: " + err.Error())
	}
	if len(aesKey) != keySize {
		return nil, errors.ErrDecryption(fmt.Sprintf("key length %d does not match %s", len(aesKey), envelope.Algorithm))
	}
	iv, err := unwrap(envelope.IV, key)
	if err != nil {
		return nil, errors.ErrDecryption("iv: " + err.Error())
	}
	if len(iv) != aes.BlockSize {
		return nil, errors.ErrDecryption(fmt.Sprintf("iv length %d", len(iv)))
	}

	ciphertext, err := base64.StdEncoding.DecodeString(envelope.Data)
	if err != nil {
		return nil, errors.ErrDecryption("data: " + err.Error())
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.ErrDecryption("ciphertext is not a multiple of the block size")
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, errors.ErrDecryption(err.Error())
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	plaintext, err = pkcs7Unpad(plaintext)
	if err != nil {
		return nil, errors.ErrDecryption(err.Error())
	}

	var data models.AuthorizationData
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, errors.ErrDecryption("payload: " + err.Error())
	}
	if data.ID == "" {
		return nil, errors.ErrDecryption("payload has no id")
	}
	if data.ConnectionID == "" {
		data.ConnectionID = envelope.ConnectionID
	}
	return &data, nil
}

// EncryptEnvelope builds an envelope the way a provider does. Used by the fake provider and tests.
func EncryptEnvelope(data *models.AuthorizationData, publicKey *rsa.PublicKey, algorithm constants.EncryptionAlgorithm) (*models.EncryptedData, error) {
	keySize, ok := keySizes[algorithm]
	if !ok {
		return nil, errors.ErrInvalidRequest(fmt.Sprintf("unsupported algorithm %q", algorithm))
	}
	plaintext, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to encode payload")
	}

	aesKey := make([]byte, keySize)
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(aesKey); err != nil {
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to generate key")
	}
	if _, err := rand.Read(iv); err != nil {
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to generate iv")
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to create cipher")
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	wrappedKey, err := rsa.EncryptPKCS1v15(rand.Reader, publicKey, aesKey)
	if err != nil {
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to wrap key")
	}
	wrappedIV, err := rsa.EncryptPKCS1v15(rand.Reader, publicKey, iv)
	if err != nil {
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to wrap iv")
	}

	return &models.EncryptedData{
		ID:           data.ID,
		ConnectionID: data.ConnectionID,
		Algorithm:    string(algorithm),
		Key:          base64.StdEncoding.EncodeToString(wrappedKey),
		IV:           base64.StdEncoding.EncodeToString(wrappedIV),
		Data:         base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

func unwrap(encoded string, key *rsa.PrivateKey) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	return rsa.DecryptPKCS1v15(rand.Reader, key, raw)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > aes.BlockSize || padding > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-padding], nil
}
