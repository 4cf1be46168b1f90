package service

import (
	"context"
	"crypto/rsa"

	"github.com/turtacn/authenticator/internal/domain/models"
)

// AuthorizationFetcher retrieves encrypted authorizations from the provider.
// AuthorizationFetcher 从提供方获取加密的授权请求。
//
//go:generate mockery --name AuthorizationFetcher --output mocks --outpkg mocks
type AuthorizationFetcher interface {
	// FetchAuthorization retrieves one authorization. A nil envelope with a nil error means
	// the provider returned no payload.
	// FetchAuthorization 获取单个授权请求。信封与错误均为 nil 表示提供方未返回数据。
	FetchAuthorization(ctx context.Context, connection *models.RichConnection, authorizationID string) (*models.EncryptedData, error)

	// FetchAuthorizationsList retrieves the pending authorizations of every given connection.
	// Failures of single connections are reported in the error slice and do not abort the others.
	// FetchAuthorizationsList 获取所有给定连接的待处理授权请求。单个连接的失败不会中断其他连接。
	FetchAuthorizationsList(ctx context.Context, connections []*models.RichConnection) ([]*models.EncryptedData, []error)
}

// AuthorizationResolver sends the user decision for an authorization to the provider.
// AuthorizationResolver 将用户对授权请求的决定发送给提供方。
//
//go:generate mockery --name AuthorizationResolver --output mocks --outpkg mocks
type AuthorizationResolver interface {
	// ConfirmAuthorization approves the authorization.
	// ConfirmAuthorization 批准授权请求。
	ConfirmAuthorization(ctx context.Context, connection *models.RichConnection, request *models.ConfirmRequest) (*models.ConfirmResult, error)

	// DenyAuthorization rejects the authorization.
	// DenyAuthorization 拒绝授权请求。
	DenyAuthorization(ctx context.Context, connection *models.RichConnection, request *models.ConfirmRequest) (*models.ConfirmResult, error)
}

// AuthorizationDecoder turns an encrypted envelope into a plain payload.
// It returns nil whenever the envelope cannot be interpreted.
// AuthorizationDecoder 将加密信封解密为明文数据，无法解析时返回 nil。
type AuthorizationDecoder interface {
	Decrypt(envelope *models.EncryptedData, key *rsa.PrivateKey) *models.AuthorizationData
}

// ConnectionRepository stores the connections paired with this device.
// ConnectionRepository 存储与本设备配对的连接。
//
//go:generate mockery --name ConnectionRepository --output mocks --outpkg mocks
type ConnectionRepository interface {
	// GetConnection returns the connection or a not_found error.
	// GetConnection 返回连接，不存在时返回 not_found 错误。
	GetConnection(ctx context.Context, connectionID string) (*models.Connection, error)

	// GetActiveConnections returns every connection that still holds an access token.
	// GetActiveConnections 返回所有仍持有访问令牌的连接。
	GetActiveConnections(ctx context.Context) ([]*models.Connection, error)

	// InvalidateConnectionsByAccessTokens drops the access token of every matching connection.
	// InvalidateConnectionsByAccessTokens 清除所有匹配连接的访问令牌。
	InvalidateConnectionsByAccessTokens(ctx context.Context, accessTokens []string) (int64, error)

	// Save creates or updates a connection.
	// Save 创建或更新连接。
	Save(ctx context.Context, connection *models.Connection) error
}

// KeyStore holds the RSA private keys of the connections.
// KeyStore 保存各连接的 RSA 私钥。
//
//go:generate mockery --name KeyStore --output mocks --outpkg mocks
type KeyStore interface {
	// GetPrivateKey returns the private key of a connection or a not_found error.
	// GetPrivateKey 返回连接的私钥，不存在时返回 not_found 错误。
	GetPrivateKey(ctx context.Context, connectionID string) (*rsa.PrivateKey, error)
}

// LocationProvider exposes the device location state.
// LocationProvider 提供设备定位状态。
type LocationProvider interface {
	LocationPermissionsGranted() bool
	IsLocationEnabled() bool
	// CurrentLocationDescription returns "GEO:<lat>;<lon>" or an empty string without a fix.
	CurrentLocationDescription() string
}

// GateResult is the outcome of a local user authentication prompt.
type GateResult int

const (
	GateSuccess GateResult = iota
	GateCancel
	GateFallback
)

func (r GateResult) String() string {
	switch r {
	case GateSuccess:
		return "success"
	case GateCancel:
		return "cancel"
	default:
		return "fallback"
	}
}

// UserAuthenticator runs the local biometric and passcode gates.
// Both calls block until the user answers or ctx is done.
// UserAuthenticator 执行本地生物识别与密码验证。
type UserAuthenticator interface {
	AuthenticateBiometric(ctx context.Context) GateResult
	AuthenticatePasscode(ctx context.Context) GateResult
}

// AuditService records user decisions and connection invalidations.
// AuditService 记录用户决定与连接失效事件。
//
//go:generate mockery --name AuditService --output mocks --outpkg mocks
type AuditService interface {
	LogEvent(ctx context.Context, event *models.AuditEvent) error
}

// FinalStateCache remembers finalized authorizations across restarts so that a stale
// provider snapshot cannot bring them back.
// FinalStateCache 跨重启记住已终结的授权请求。
type FinalStateCache interface {
	// Put stores a final item. Non-final items are ignored.
	Put(ctx context.Context, item *models.AuthorizationItem) error

	// Get returns the stored item or nil when absent.
	Get(ctx context.Context, identity models.Identity) (*models.AuthorizationItem, error)
}
