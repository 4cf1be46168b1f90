// Package api implements the provider authenticator API (v1) over signed HTTP requests.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/authenticator/internal/domain/models"
	"github.com/turtacn/authenticator/internal/infrastructure/crypto"
	"github.com/turtacn/authenticator/pkg/clock"
	"github.com/turtacn/authenticator/pkg/constants"
	"github.com/turtacn/authenticator/pkg/errors"
	"github.com/turtacn/authenticator/pkg/logger"
)

const (
	// maxParallelFetches bounds the concurrent list requests.
	maxParallelFetches = 8
	// maxResponseBytes caps a provider response body.
	maxResponseBytes = 4 << 20
)

// Config holds the configuration of a Client.
type Config struct {
	HTTPClient   *http.Client
	Clock        clock.Clock
	Logger       logger.Logger
	SignatureTTL time.Duration
	UserAgent    string
}

// Client 提供方 API 客户端，实现授权拉取与确认/拒绝
type Client struct {
	httpClient   *http.Client
	clock        clock.Clock
	log          logger.Logger
	signatureTTL time.Duration
	userAgent    string
}

// NewClient creates a new Client.
func NewClient(cfg Config) *Client {
	c := &Client{
		httpClient:   cfg.HTTPClient,
		clock:        cfg.Clock,
		log:          cfg.Logger,
		signatureTTL: cfg.SignatureTTL,
		userAgent:    cfg.UserAgent,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: constants.DefaultRequestTimeout}
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}
	if c.log == nil {
		c.log = logger.NewNoopLogger()
	}
	c.log = c.log.WithComponent("ProviderAPIClient")
	if c.signatureTTL <= 0 {
		c.signatureTTL = constants.DefaultSignatureTTL
	}
	if c.userAgent == "" {
		c.userAgent = "authenticator/1.0"
	}
	return c
}

type dataResponse[T any] struct {
	Data T `json:"data"`
}

type errorResponse struct {
	ErrorClass   string `json:"error_class"`
	ErrorMessage string `json:"error_message"`
}

type decisionBody struct {
	Confirm           bool   `json:"confirm"`
	AuthorizationCode string `json:"authorization_code"`
}

type decisionResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Status  string `json:"status,omitempty"`
}

// FetchAuthorization returns the envelope of one authorization, or nil when the provider
// returns no data.
func (c *Client) FetchAuthorization(ctx context.Context, connection *models.RichConnection, authorizationID string) (*models.EncryptedData, error) {
	var resp dataResponse[*models.EncryptedData]
	if err := c.do(ctx, connection, http.MethodGet, authorizationID, nil, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Data != nil && resp.Data.ConnectionID == "" {
		resp.Data.ConnectionID = connection.ID()
	}
	return resp.Data, nil
}

// FetchAuthorizationsList fetches the authorizations of every connection in parallel.
// Envelopes keep the order of connections; one failure does not abort the others.
func (c *Client) FetchAuthorizationsList(ctx context.Context, connections []*models.RichConnection) ([]*models.EncryptedData, []error) {
	envelopes := make([][]*models.EncryptedData, len(connections))
	failures := make([]error, len(connections))

	var g errgroup.Group
	g.SetLimit(maxParallelFetches)
	for idx, connection := range connections {
		g.Go(func() error {
			var resp dataResponse[[]*models.EncryptedData]
			if err := c.do(ctx, connection, http.MethodGet, "", nil, nil, &resp); err != nil {
				failures[idx] = err
				return nil
			}
			for _, envelope := range resp.Data {
				if envelope != nil && envelope.ConnectionID == "" {
					envelope.ConnectionID = connection.ID()
				}
			}
			envelopes[idx] = resp.Data
			return nil
		})
	}
	_ = g.Wait()

	var all []*models.EncryptedData
	var errs []error
	for idx := range connections {
		all = append(all, envelopes[idx]...)
		if failures[idx] != nil {
			errs = append(errs, failures[idx])
		}
	}
	return all, errs
}

// ConfirmAuthorization sends a confirm decision.
func (c *Client) ConfirmAuthorization(ctx context.Context, connection *models.RichConnection, req *models.ConfirmRequest) (*models.ConfirmResult, error) {
	return c.decide(ctx, connection, req, true)
}

// DenyAuthorization sends a deny decision.
func (c *Client) DenyAuthorization(ctx context.Context, connection *models.RichConnection, req *models.ConfirmRequest) (*models.ConfirmResult, error) {
	return c.decide(ctx, connection, req, false)
}

func (c *Client) decide(ctx context.Context, connection *models.RichConnection, req *models.ConfirmRequest, confirm bool) (*models.ConfirmResult, error) {
	body, err := json.Marshal(dataResponse[decisionBody]{Data: decisionBody{
		Confirm:           confirm,
		AuthorizationCode: req.AuthorizationCode,
	}})
	if err != nil {
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "encode decision")
	}
	headers := http.Header{}
	if req.Geolocation != "" {
		headers.Set(constants.HeaderGeolocation, req.Geolocation)
	}
	if req.AuthMethod != "" {
		headers.Set(constants.HeaderAuthorizationType, string(req.AuthMethod))
	}

	var resp dataResponse[decisionResponse]
	if err := c.do(ctx, connection, http.MethodPut, req.AuthorizationID, body, headers, &resp); err != nil {
		return nil, err
	}
	result := &models.ConfirmResult{AuthorizationID: resp.Data.ID, Success: resp.Data.Success}
	if result.AuthorizationID == "" {
		result.AuthorizationID = req.AuthorizationID
	}
	if status, ok := models.ParseAuthorizationStatus(resp.Data.Status); ok {
		result.Status = status
	}
	return result, nil
}

func authorizationsURL(connection *models.RichConnection, authorizationID string) string {
	url := strings.TrimRight(connection.Connection.ConnectURL, "/") + constants.APIPathAuthorizations
	if authorizationID != "" {
		url += "/" + authorizationID
	}
	return url
}

// do performs a signed request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, connection *models.RichConnection, method, authorizationID string, body []byte, headers http.Header, out any) error {
	if connection == nil || connection.Connection == nil || connection.PrivateKey == nil {
		return errors.ErrNoUsableConnection("")
	}
	url := authorizationsURL(connection, authorizationID)
	expiresAt := c.clock.Now().Add(c.signatureTTL).Unix()
	signature, err := crypto.SignRequest(connection.PrivateKey, method, url, expiresAt, body)
	if err != nil {
		return errors.Wrap(err, constants.ErrCodeInternal, "sign request")
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, constants.ErrCodeInvalidRequest, "build request")
	}
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(constants.HeaderRequestID, requestID)
	req.Header.Set(constants.HeaderAccessToken, connection.Connection.AccessToken)
	req.Header.Set(constants.HeaderExpiresAt, strconv.FormatInt(expiresAt, 10))
	req.Header.Set(constants.HeaderSignature, signature)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := c.clock.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn(ctx, "Provider request failed", logger.Fields{
			"request_id":    requestID,
			"connection_id": connection.ID(),
			"method":        method,
			"error":         err.Error(),
		})
		return errors.ErrConnectivity(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return errors.ErrConnectivity(err)
	}
	if len(payload) > maxResponseBytes {
		return errors.ErrAPI(resp.StatusCode, "", fmt.Sprintf("provider response exceeds %d bytes", maxResponseBytes))
	}
	c.log.Debug(ctx, "Provider request completed", logger.Fields{
		"request_id":    requestID,
		"connection_id": connection.ID(),
		"method":        method,
		"status":        resp.StatusCode,
		"duration_ms":   c.clock.Now().Sub(start).Milliseconds(),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr errorResponse
		if jsonErr := json.Unmarshal(payload, &apiErr); jsonErr != nil || apiErr.ErrorClass == "" {
			return errors.ErrAPI(resp.StatusCode, "", "")
		}
		return errors.FromProviderError(resp.StatusCode, apiErr.ErrorClass, apiErr.ErrorMessage,
			connection.Connection.AccessToken, authorizationID)
	}
	if len(payload) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return errors.ErrAPI(resp.StatusCode, "", fmt.Sprintf("malformed provider response: %v", err))
	}
	return nil
}
