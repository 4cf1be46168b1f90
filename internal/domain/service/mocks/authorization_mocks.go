package mocks

import (
	"context"
	"crypto/rsa"

	"github.com/stretchr/testify/mock"
	"github.com/turtacn/authenticator/internal/domain/models"
	"github.com/turtacn/authenticator/internal/domain/service"
)

type MockAuthorizationFetcher struct {
	mock.Mock
}

func (m *MockAuthorizationFetcher) FetchAuthorization(ctx context.Context, connection *models.RichConnection, authorizationID string) (*models.EncryptedData, error) {
	args := m.Called(ctx, connection, authorizationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EncryptedData), args.Error(1)
}

func (m *MockAuthorizationFetcher) FetchAuthorizationsList(ctx context.Context, connections []*models.RichConnection) ([]*models.EncryptedData, []error) {
	args := m.Called(ctx, connections)
	var envelopes []*models.EncryptedData
	if args.Get(0) != nil {
		envelopes = args.Get(0).([]*models.EncryptedData)
	}
	var errs []error
	if args.Get(1) != nil {
		errs = args.Get(1).([]error)
	}
	return envelopes, errs
}

type MockAuthorizationResolver struct {
	mock.Mock
}

func (m *MockAuthorizationResolver) ConfirmAuthorization(ctx context.Context, connection *models.RichConnection, request *models.ConfirmRequest) (*models.ConfirmResult, error) {
	args := m.Called(ctx, connection, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConfirmResult), args.Error(1)
}

func (m *MockAuthorizationResolver) DenyAuthorization(ctx context.Context, connection *models.RichConnection, request *models.ConfirmRequest) (*models.ConfirmResult, error) {
	args := m.Called(ctx, connection, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ConfirmResult), args.Error(1)
}

type MockConnectionRepository struct {
	mock.Mock
}

func (m *MockConnectionRepository) GetConnection(ctx context.Context, connectionID string) (*models.Connection, error) {
	args := m.Called(ctx, connectionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Connection), args.Error(1)
}

func (m *MockConnectionRepository) GetActiveConnections(ctx context.Context) ([]*models.Connection, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Connection), args.Error(1)
}

func (m *MockConnectionRepository) InvalidateConnectionsByAccessTokens(ctx context.Context, accessTokens []string) (int64, error) {
	args := m.Called(ctx, accessTokens)
	return int64(args.Int(0)), args.Error(1)
}

func (m *MockConnectionRepository) Save(ctx context.Context, connection *models.Connection) error {
	args := m.Called(ctx, connection)
	return args.Error(0)
}

type MockKeyStore struct {
	mock.Mock
}

func (m *MockKeyStore) GetPrivateKey(ctx context.Context, connectionID string) (*rsa.PrivateKey, error) {
	args := m.Called(ctx, connectionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rsa.PrivateKey), args.Error(1)
}

type MockLocationProvider struct {
	mock.Mock
}

func (m *MockLocationProvider) LocationPermissionsGranted() bool {
	return m.Called().Bool(0)
}

func (m *MockLocationProvider) IsLocationEnabled() bool {
	return m.Called().Bool(0)
}

func (m *MockLocationProvider) CurrentLocationDescription() string {
	return m.Called().String(0)
}

type MockUserAuthenticator struct {
	mock.Mock
}

func (m *MockUserAuthenticator) AuthenticateBiometric(ctx context.Context) service.GateResult {
	return m.Called(ctx).Get(0).(service.GateResult)
}

func (m *MockUserAuthenticator) AuthenticatePasscode(ctx context.Context) service.GateResult {
	return m.Called(ctx).Get(0).(service.GateResult)
}
