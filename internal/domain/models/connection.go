package models

import (
	"crypto/rsa"
	"time"
)

// ConnectionStatus represents whether a connection may still be used.
// ConnectionStatus 表示连接是否仍可使用。
type ConnectionStatus string

const (
	// ConnectionStatusActive indicates a connection with a valid access token.
	// ConnectionStatusActive 表示访问令牌有效的连接。
	ConnectionStatusActive ConnectionStatus = "active"
	// ConnectionStatusInactive indicates a connection whose access token was revoked or lost.
	// ConnectionStatusInactive 表示访问令牌已被吊销或丢失的连接。
	ConnectionStatusInactive ConnectionStatus = "inactive"
)

// Connection is the pairing between this device and a remote provider.
// Connection 是本设备与远程提供方之间的配对关系。
type Connection struct {
	// ID is the provider-side identifier of the connection.
	// ID 是连接在提供方的标识符。
	ID string
	// Code identifies the provider.
	// Code 标识提供方。
	Code string
	// Name is the provider display name.
	// Name 是提供方的显示名称。
	Name string
	// ConnectURL is the provider API base URL.
	// ConnectURL 是提供方 API 的基础地址。
	ConnectURL string
	// AccessToken authenticates API calls for this connection.
	// AccessToken 用于认证该连接的 API 调用。
	AccessToken string
	// Status tells whether the access token is still usable.
	// Status 表示访问令牌是否仍然可用。
	Status ConnectionStatus
	// GeolocationRequired demands a location fix before confirm/deny.
	// GeolocationRequired 要求在确认或拒绝前提供定位信息。
	GeolocationRequired bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsActive reports whether the connection can be used for API calls.
func (c *Connection) IsActive() bool {
	return c != nil && c.Status == ConnectionStatusActive && c.AccessToken != ""
}

// RichConnection pairs a connection with its locally held private key.
// RichConnection 将连接与本地持有的私钥配对。
type RichConnection struct {
	Connection *Connection
	PrivateKey *rsa.PrivateKey
}

// ID returns the connection id.
func (r *RichConnection) ID() string { return r.Connection.ID }

// AuthMethod describes how the user unlocked the confirm action.
type AuthMethod string

const (
	AuthMethodBiometrics AuthMethod = "biometrics"
	AuthMethodPasscode   AuthMethod = "passcode"
	AuthMethodNone       AuthMethod = "none"
)

// ConfirmRequest is the outgoing confirm or deny request.
// ConfirmRequest 是发出的确认或拒绝请求。
type ConfirmRequest struct {
	AuthorizationID   string
	AuthorizationCode string
	Confirm           bool
	Geolocation       string
	AuthMethod        AuthMethod
}

// ConfirmResult is the provider answer to a confirm or deny request.
// Status is empty when the provider does not report one.
type ConfirmResult struct {
	AuthorizationID string
	Success         bool
	Status          AuthorizationStatus
}
