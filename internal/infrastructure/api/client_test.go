package api

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/authenticator/internal/domain/models"
	"github.com/turtacn/authenticator/internal/infrastructure/crypto"
	"github.com/turtacn/authenticator/pkg/clock"
	"github.com/turtacn/authenticator/pkg/constants"
	"github.com/turtacn/authenticator/pkg/errors"
)

var (
	testKey     *rsa.PrivateKey
	testKeyOnce sync.Once
)

func privateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = key
	})
	return testKey
}

func connectionFor(t *testing.T, url, id string) *models.RichConnection {
	return &models.RichConnection{
		Connection: &models.Connection{
			ID:          id,
			ConnectURL:  url + "/",
			AccessToken: "token-" + id,
			Status:      models.ConnectionStatusActive,
		},
		PrivateKey: privateKey(t),
	}
}

func newTestClient() *Client {
	return NewClient(Config{Clock: clock.Fake(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))})
}

// verifySignature checks the signed headers of a request received by the test server.
func verifySignature(t *testing.T, r *http.Request, body []byte) {
	t.Helper()
	expiresAt, err := strconv.ParseInt(r.Header.Get(constants.HeaderExpiresAt), 10, 64)
	require.NoError(t, err)
	url := "http://" + r.Host + r.URL.Path
	assert.NoError(t, crypto.VerifyRequestSignature(&privateKey(t).PublicKey, r.Method, url, expiresAt, body, r.Header.Get(constants.HeaderSignature)))
	assert.NotEmpty(t, r.Header.Get(constants.HeaderRequestID))
}

func TestClient_FetchAuthorization(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/authenticator/v1/authorizations/42", r.URL.Path)
		assert.Equal(t, "token-c1", r.Header.Get(constants.HeaderAccessToken))
		verifySignature(t, r, nil)
		_, _ = io.WriteString(w, `{"data":{"id":"42","algorithm":"AES-256-CBC","key":"k","iv":"i","data":"d"}}`)
	}))
	defer server.Close()

	envelope, err := newTestClient().FetchAuthorization(context.Background(), connectionFor(t, server.URL, "c1"), "42")
	require.NoError(t, err)
	require.NotNil(t, envelope)
	assert.Equal(t, "42", envelope.ID)
	assert.Equal(t, "c1", envelope.ConnectionID)
}

func TestClient_FetchAuthorizationWithoutData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":null}`)
	}))
	defer server.Close()

	envelope, err := newTestClient().FetchAuthorization(context.Background(), connectionFor(t, server.URL, "c1"), "42")
	require.NoError(t, err)
	assert.Nil(t, envelope)
}

func TestClient_ProviderErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   errors.Kind
	}{
		{"connection not found", http.StatusUnauthorized, `{"error_class":"ConnectionNotFound","error_message":"gone"}`, errors.KindConnectionNotFound},
		{"token revoked", http.StatusUnauthorized, `{"error_class":"AccessTokenRevoked","error_message":"revoked"}`, errors.KindConnectionNotFound},
		{"authorization not found", http.StatusNotFound, `{"error_class":"AuthorizationNotFound","error_message":"missing"}`, errors.KindAuthorizationNotFound},
		{"other class", http.StatusBadRequest, `{"error_class":"InvalidSignature","error_message":"bad signature"}`, errors.KindAPI},
		{"no body", http.StatusInternalServerError, ``, errors.KindAPI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			_, err := newTestClient().FetchAuthorization(context.Background(), connectionFor(t, server.URL, "c1"), "42")
			require.Error(t, err)
			assert.Equal(t, tt.kind, errors.Classify(err))
			if tt.kind == errors.KindConnectionNotFound {
				assert.Equal(t, "token-c1", errors.AccessToken(err))
			}
		})
	}
}

func TestClient_OversizedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":{"id":"42","data":"`+strings.Repeat("A", maxResponseBytes)+`"}}`)
	}))
	defer server.Close()

	envelope, err := newTestClient().FetchAuthorization(context.Background(), connectionFor(t, server.URL, "c1"), "42")
	require.Error(t, err)
	assert.Nil(t, envelope)
	assert.Equal(t, errors.KindAPI, errors.Classify(err))
	assert.Contains(t, err.Error(), "exceeds")
}

func TestClient_ConnectivityError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient().FetchAuthorization(context.Background(), connectionFor(t, url, "c1"), "42")
	assert.Equal(t, errors.KindConnectivity, errors.Classify(err))
}

func TestClient_MissingKey(t *testing.T) {
	conn := connectionFor(t, "http://127.0.0.1:1", "c1")
	conn.PrivateKey = nil
	_, err := newTestClient().FetchAuthorization(context.Background(), conn, "42")
	assert.Equal(t, errors.KindNoUsableConnection, errors.Classify(err))
}

func TestClient_FetchAuthorizationsList(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/authenticator/v1/authorizations", r.URL.Path)
		_, _ = io.WriteString(w, `{"data":[{"id":"1"},{"id":"2","connection_id":"c1"}]}`)
	}))
	defer ok.Close()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error_class":"AccessTokenExpired","error_message":"expired"}`)
	}))
	defer failing.Close()

	envelopes, errs := newTestClient().FetchAuthorizationsList(context.Background(), []*models.RichConnection{
		connectionFor(t, ok.URL, "c1"),
		connectionFor(t, failing.URL, "c2"),
	})
	require.Len(t, envelopes, 2)
	assert.Equal(t, "c1", envelopes[0].ConnectionID)
	require.Len(t, errs, 1)
	assert.Equal(t, "token-c2", errors.AccessToken(errs[0]))
}

func TestClient_ConfirmAuthorization(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "GEO:52.506931;13.144558", r.Header.Get(constants.HeaderGeolocation))
		assert.Equal(t, "biometrics", r.Header.Get(constants.HeaderAuthorizationType))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		verifySignature(t, r, body)

		var req dataResponse[decisionBody]
		require.NoError(t, json.Unmarshal(body, &req))
		assert.True(t, req.Data.Confirm)
		assert.Equal(t, "code-42", req.Data.AuthorizationCode)
		_, _ = io.WriteString(w, `{"data":{"success":true,"id":"42","status":"confirm_processed"}}`)
	}))
	defer server.Close()

	result, err := newTestClient().ConfirmAuthorization(context.Background(), connectionFor(t, server.URL, "c1"), &models.ConfirmRequest{
		AuthorizationID:   "42",
		AuthorizationCode: "code-42",
		Confirm:           true,
		Geolocation:       "GEO:52.506931;13.144558",
		AuthMethod:        models.AuthMethodBiometrics,
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, models.AuthorizationStatusConfirmed, result.Status)
}

func TestClient_DenyAuthorization(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(constants.HeaderGeolocation))
		var req dataResponse[decisionBody]
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Data.Confirm)
		_, _ = io.WriteString(w, `{"data":{"success":true}}`)
	}))
	defer server.Close()

	result, err := newTestClient().DenyAuthorization(context.Background(), connectionFor(t, server.URL, "c1"), &models.ConfirmRequest{
		AuthorizationID:   "42",
		AuthorizationCode: "code-42",
	})
	require.NoError(t, err)
	assert.Equal(t, "42", result.AuthorizationID)
	assert.Empty(t, result.Status)
}
