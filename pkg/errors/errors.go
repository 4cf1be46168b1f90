// Package errors defines custom error types and error handling utilities for the authenticator.
// This package provides structured error types that map provider API failures to a small
// classification used by the authorization lifecycle.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/turtacn/authenticator/pkg/constants"
)

// ================================================================================
// Base Error Interface
// ================================================================================

// AppError represents a structured error with additional metadata
type AppError interface {
	error

	// Code returns the classified error code
	Code() constants.ErrorCode

	// HTTPStatus returns the HTTP status code reported by the provider (0 when local)
	HTTPStatus() int

	// Description returns a human-readable description
	Description() string

	// Unwrap returns the underlying error for error chain support
	Unwrap() error

	// WithCause adds a cause error to the error chain
	WithCause(cause error) AppError

	// WithMetadata adds additional context metadata
	WithMetadata(key string, value interface{}) AppError

	// Metadata returns all metadata
	Metadata() map[string]interface{}
}

// Metadata keys attached by the constructors below.
const (
	MetaErrorClass      = "error_class"
	MetaAccessToken     = "access_token"
	MetaConnectionID    = "connection_id"
	MetaAuthorizationID = "authorization_id"
)

// ================================================================================
// Base Error Implementation
// ================================================================================

// baseError is the internal implementation of AppError
type baseError struct {
	code        constants.ErrorCode
	httpStatus  int
	description string
	message     string
	cause       error
	metadata    map[string]interface{}
}

// Error implements the error interface
func (e *baseError) Error() string {
	if e.message != "" {
		return e.message
	}
	return e.description
}

func (e *baseError) Code() constants.ErrorCode { return e.code }

func (e *baseError) HTTPStatus() int { return e.httpStatus }

func (e *baseError) Description() string { return e.description }

func (e *baseError) Unwrap() error { return e.cause }

// WithCause adds a cause error to the error chain
func (e *baseError) WithCause(cause error) AppError {
	e.cause = cause
	return e
}

// WithMetadata adds additional context metadata
func (e *baseError) WithMetadata(key string, value interface{}) AppError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

func (e *baseError) Metadata() map[string]interface{} { return e.metadata }

// ================================================================================
// Error Constructor
// ================================================================================

// NewError creates a new AppError with the specified parameters
func NewError(code constants.ErrorCode, httpStatus int, description string, message string) AppError {
	return &baseError{
		code:        code,
		httpStatus:  httpStatus,
		description: description,
		message:     message,
		metadata:    make(map[string]interface{}),
	}
}

// ================================================================================
// Predefined Error Constructors
// ================================================================================

// ErrConnectionNotFound creates a connection_not_found error for the given access token
func ErrConnectionNotFound(accessToken string, errorClass string, message string) AppError {
	return NewError(
		constants.ErrCodeConnectionNotFound,
		http.StatusNotFound,
		"The provider does not recognize the connection or its access token.",
		message,
	).WithMetadata(MetaAccessToken, accessToken).
		WithMetadata(MetaErrorClass, errorClass)
}

// ErrAuthorizationNotFound creates an authorization_not_found error
func ErrAuthorizationNotFound(authorizationID string, message string) AppError {
	return NewError(
		constants.ErrCodeAuthorizationNotFound,
		http.StatusNotFound,
		"The authorization does not exist anymore.",
		message,
	).WithMetadata(MetaAuthorizationID, authorizationID).
		WithMetadata(MetaErrorClass, constants.ErrorClassAuthorizationNotFound)
}

// ErrConnectivity wraps a transport failure (DNS, TCP, TLS, timeout)
func ErrConnectivity(cause error) AppError {
	return NewError(
		constants.ErrCodeConnectivity,
		0,
		"The provider could not be reached.",
		fmt.Sprintf("connectivity error: %v", cause),
	).WithCause(cause)
}

// ErrAPI creates a generic provider error
func ErrAPI(httpStatus int, errorClass, message string) AppError {
	if message == "" {
		message = fmt.Sprintf("provider request failed with status %d", httpStatus)
	}
	return NewError(
		constants.ErrCodeAPI,
		httpStatus,
		"The provider rejected the request.",
		message,
	).WithMetadata(MetaErrorClass, errorClass)
}

// ErrNoUsableConnection reports a missing connection or private key
func ErrNoUsableConnection(connectionID string) AppError {
	return NewError(
		constants.ErrCodeNoUsableConnection,
		0,
		"Connection or private key is missing.",
		fmt.Sprintf("no usable connection: %s", connectionID),
	).WithMetadata(MetaConnectionID, connectionID)
}

// ErrDecryption reports an envelope that cannot be interpreted
func ErrDecryption(reason string) AppError {
	return NewError(
		constants.ErrCodeDecryption,
		0,
		"The authorization payload could not be decrypted.",
		fmt.Sprintf("decryption failed: %s", reason),
	)
}

// ErrInvalidRequest creates an invalid_request error
func ErrInvalidRequest(message string) AppError {
	return NewError(constants.ErrCodeInvalidRequest, http.StatusBadRequest, "The request is malformed.", message)
}

// ErrNotFound creates a local not_found error
func ErrNotFound(what string) AppError {
	return NewError(constants.ErrCodeNotFound, http.StatusNotFound, "Resource not found.", fmt.Sprintf("%s not found", what))
}

// ErrInternal creates an internal_error
func ErrInternal(message string) AppError {
	return NewError(constants.ErrCodeInternal, http.StatusInternalServerError, "Unexpected local failure.", message)
}

// ================================================================================
// Provider Error Mapping
// ================================================================================

// FromProviderError maps an "error_class" reported by the provider onto the taxonomy.
func FromProviderError(httpStatus int, errorClass, message, accessToken, authorizationID string) AppError {
	switch errorClass {
	case constants.ErrorClassConnectionNotFound,
		constants.ErrorClassAccessTokenExpired,
		constants.ErrorClassAccessTokenRevoked:
		return ErrConnectionNotFound(accessToken, errorClass, message)
	case constants.ErrorClassAuthorizationNotFound:
		return ErrAuthorizationNotFound(authorizationID, message)
	default:
		return ErrAPI(httpStatus, errorClass, message).WithMetadata(MetaAccessToken, accessToken)
	}
}

// ================================================================================
// Error Validation Utilities
// ================================================================================

// Kind is the lifecycle-level classification of an error.
type Kind int

const (
	KindNone Kind = iota
	KindConnectionNotFound
	KindAuthorizationNotFound
	KindConnectivity
	KindNoUsableConnection
	KindAPI
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindConnectionNotFound:
		return "connection_not_found"
	case KindAuthorizationNotFound:
		return "authorization_not_found"
	case KindConnectivity:
		return "connectivity"
	case KindNoUsableConnection:
		return "no_usable_connection"
	default:
		return "api"
	}
}

// Classify is the single error policy entry point: every remote failure is reduced to a Kind.
// Errors that are not AppErrors are treated as generic API errors.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	appErr, ok := AsAppError(err)
	if !ok {
		return KindAPI
	}
	switch appErr.Code() {
	case constants.ErrCodeConnectionNotFound:
		return KindConnectionNotFound
	case constants.ErrCodeAuthorizationNotFound:
		return KindAuthorizationNotFound
	case constants.ErrCodeConnectivity:
		return KindConnectivity
	case constants.ErrCodeNoUsableConnection:
		return KindNoUsableConnection
	default:
		return KindAPI
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	_, ok := AsAppError(err)
	return ok
}

// AsAppError attempts to find an AppError in the error chain
func AsAppError(err error) (AppError, bool) {
	var appErr AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsConnectionNotFound reports whether the connection must be invalidated locally
func IsConnectionNotFound(err error) bool { return Classify(err) == KindConnectionNotFound }

// IsAuthorizationNotFound reports whether the authorization vanished on the provider side
func IsAuthorizationNotFound(err error) bool { return Classify(err) == KindAuthorizationNotFound }

// IsConnectivityError reports a transient transport failure
func IsConnectivityError(err error) bool { return Classify(err) == KindConnectivity }

// AccessToken returns the access token attached to a connection error, if any.
func AccessToken(err error) string {
	appErr, ok := AsAppError(err)
	if !ok {
		return ""
	}
	token, _ := appErr.Metadata()[MetaAccessToken].(string)
	return token
}

// Wrap wraps a generic error into an AppError with the given code.
func Wrap(err error, code constants.ErrorCode, message string) AppError {
	if err == nil {
		return nil
	}
	var status int
	switch code {
	case constants.ErrCodeInvalidRequest:
		status = http.StatusBadRequest
	case constants.ErrCodeNotFound, constants.ErrCodeConnectionNotFound, constants.ErrCodeAuthorizationNotFound:
		status = http.StatusNotFound
	case constants.ErrCodeConnectivity, constants.ErrCodeNoUsableConnection, constants.ErrCodeDecryption:
		status = 0
	default:
		status = http.StatusInternalServerError
	}
	return NewError(code, status, err.Error(), message).WithCause(err)
}
