package crypto

import (
	"crypto/rsa"
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// signingString joins the signed request parts: lowercased method, full url, expiry, body.
func signingString(method, url string, expiresAt int64, body []byte) string {
	return strings.Join([]string{
		strings.ToLower(method),
		url,
		strconv.FormatInt(expiresAt, 10),
		string(body),
	}, "|")
}

// SignRequest returns the base64 RS256 signature sent in the Signature header.
func SignRequest(key *rsa.PrivateKey, method, url string, expiresAt int64, body []byte) (string, error) {
	sig, err := jwt.SigningMethodRS256.Sign(signingString(method, url, expiresAt, body), key)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyRequestSignature checks a Signature header against the connection public key.
func VerifyRequestSignature(publicKey *rsa.PublicKey, method, url string, expiresAt int64, body []byte, signature string) error {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return err
	}
	return jwt.SigningMethodRS256.Verify(signingString(method, url, expiresAt, body), sig, publicKey)
}
