// Package constants defines system-wide constants for the authenticator.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Lifecycle Timing Constants
// ================================================================================

const (
	// DefaultPollingInterval is the delay between two authorization fetches
	DefaultPollingInterval = 3 * time.Second

	// DefaultTickInterval is the cadence of the local countdown / status re-evaluation
	DefaultTickInterval = 1 * time.Second

	// DefaultDestroyDelay is the grace period a final status stays visible
	DefaultDestroyDelay = 4 * time.Second

	// DefaultRequestTimeout bounds a single provider API round-trip
	DefaultRequestTimeout = 10 * time.Second

	// DefaultSignatureTTL is added to "now" for the Expires-at request header
	DefaultSignatureTTL = 5 * time.Minute

	// DefaultFinalStateTTL is how long finalized authorizations are remembered
	DefaultFinalStateTTL = 10 * time.Minute
)

// ================================================================================
// Provider API Constants
// ================================================================================

const (
	// APIPathAuthorizations is the authorizations collection path
	APIPathAuthorizations = "/api/authenticator/v1/authorizations"

	// HeaderAccessToken carries the connection access token
	HeaderAccessToken = "Access-Token"

	// HeaderExpiresAt carries the signature expiry as unix seconds
	HeaderExpiresAt = "Expires-at"

	// HeaderSignature carries the base64 RS256 request signature
	HeaderSignature = "Signature"

	// HeaderGeolocation carries the device location on confirm/deny
	HeaderGeolocation = "GEO-Location"

	// HeaderAuthorizationType carries the local user authentication method
	HeaderAuthorizationType = "Authorization-Type"

	// HeaderRequestID correlates a request in provider logs
	HeaderRequestID = "X-Request-Id"
)

// ================================================================================
// Encryption Algorithm Constants
// ================================================================================

// EncryptionAlgorithm identifies the symmetric cipher of an encrypted envelope
type EncryptionAlgorithm string

const (
	// AlgorithmAES256CBC is the default envelope algorithm
	AlgorithmAES256CBC EncryptionAlgorithm = "AES-256-CBC"

	// AlgorithmAES192CBC is accepted for older providers
	AlgorithmAES192CBC EncryptionAlgorithm = "AES-192-CBC"

	// AlgorithmAES128CBC is accepted for older providers
	AlgorithmAES128CBC EncryptionAlgorithm = "AES-128-CBC"
)

// ================================================================================
// Error Code Constants
// ================================================================================

// ErrorCode represents the classified error code of a failure
type ErrorCode string

const (
	// ErrCodeConnectionNotFound means the provider no longer knows the connection / access token
	ErrCodeConnectionNotFound ErrorCode = "connection_not_found"

	// ErrCodeAuthorizationNotFound means the authorization no longer exists
	ErrCodeAuthorizationNotFound ErrorCode = "authorization_not_found"

	// ErrCodeConnectivity means the provider could not be reached
	ErrCodeConnectivity ErrorCode = "connectivity_error"

	// ErrCodeAPI is a generic provider API failure
	ErrCodeAPI ErrorCode = "api_error"

	// ErrCodeNoUsableConnection means a connection or its private key is missing locally
	ErrCodeNoUsableConnection ErrorCode = "no_usable_connection"

	// ErrCodeDecryption means an envelope could not be interpreted
	ErrCodeDecryption ErrorCode = "decryption_error"

	// ErrCodeInvalidRequest means the caller supplied invalid input
	ErrCodeInvalidRequest ErrorCode = "invalid_request"

	// ErrCodeNotFound means a local resource does not exist
	ErrCodeNotFound ErrorCode = "not_found"

	// ErrCodeInternal is an unexpected local failure
	ErrCodeInternal ErrorCode = "internal_error"
)

// Provider error classes, as reported in the "error_class" field of an API error body.
const (
	ErrorClassConnectionNotFound    = "ConnectionNotFound"
	ErrorClassAccessTokenExpired    = "AccessTokenExpired"
	ErrorClassAccessTokenRevoked    = "AccessTokenRevoked"
	ErrorClassAuthorizationNotFound = "AuthorizationNotFound"
)

// ================================================================================
// Audit Constants
// ================================================================================

// AuditEventType represents the kind of decision audit event
type AuditEventType string

const (
	// AuditEventAuthorizationConfirmed is emitted after a successful confirm
	AuditEventAuthorizationConfirmed AuditEventType = "authorization.confirmed"

	// AuditEventAuthorizationDenied is emitted after a successful deny
	AuditEventAuthorizationDenied AuditEventType = "authorization.denied"

	// AuditEventAuthorizationFailed is emitted when confirm/deny was rejected
	AuditEventAuthorizationFailed AuditEventType = "authorization.failed"

	// AuditEventConnectionInvalidated is emitted when an access token is dropped
	AuditEventConnectionInvalidated AuditEventType = "connection.invalidated"
)

// ================================================================================
// Logging Constants
// ================================================================================

// LogLevel represents the severity level of log messages
type LogLevel string

const (
	// LogLevelDebug is the most verbose logging level
	LogLevelDebug LogLevel = "debug"

	// LogLevelInfo is the standard informational logging level
	LogLevelInfo LogLevel = "info"

	// LogLevelWarn indicates potential issues
	LogLevelWarn LogLevel = "warn"

	// LogLevelError indicates errors that need attention
	LogLevelError LogLevel = "error"
)

// ContextKey represents keys used in context.Context
type ContextKey string

const (
	// ContextKeyRequestID is the key for request ID in context
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyTraceID is the key for distributed trace ID in context
	ContextKeyTraceID ContextKey = "trace_id"

	// ContextKeyConnectionID is the key for the connection being served
	ContextKeyConnectionID ContextKey = "connection_id"

	// ContextKeyLogger carries a request scoped logger
	ContextKeyLogger ContextKey = "logger"
)
