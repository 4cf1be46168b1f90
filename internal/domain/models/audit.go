package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/turtacn/authenticator/pkg/constants"
)

// AuditEvent represents a single decision audit trail event.
type AuditEvent struct {
	EventID         uuid.UUID                `json:"event_id"`
	EventType       constants.AuditEventType `json:"event_type"`
	ConnectionID    string                   `json:"connection_id"`
	AuthorizationID string                   `json:"authorization_id,omitempty"`
	AuthMethod      AuthMethod               `json:"auth_method,omitempty"`
	Status          AuthorizationStatus      `json:"status,omitempty"`
	ResultCode      constants.ErrorCode      `json:"result_code,omitempty"`
	Message         string                   `json:"message,omitempty"`
	Metadata        json.RawMessage          `json:"metadata,omitempty"`
	Timestamp       time.Time                `json:"timestamp"`
}

// NewAuditEvent creates a new audit event.
func NewAuditEvent(eventType constants.AuditEventType, connectionID, authorizationID string) *AuditEvent {
	return &AuditEvent{
		EventID:         uuid.New(),
		EventType:       eventType,
		ConnectionID:    connectionID,
		AuthorizationID: authorizationID,
		Timestamp:       time.Now().UTC(),
	}
}

// WithStatus sets the resulting authorization status.
func (a *AuditEvent) WithStatus(status AuthorizationStatus) *AuditEvent {
	a.Status = status
	return a
}

// WithAuthMethod sets the local authentication method used.
func (a *AuditEvent) WithAuthMethod(method AuthMethod) *AuditEvent {
	a.AuthMethod = method
	return a
}

// WithResultCode sets the specific error code for failed events.
func (a *AuditEvent) WithResultCode(code constants.ErrorCode, message string) *AuditEvent {
	a.ResultCode = code
	a.Message = message
	return a
}

// WithMetadata sets JSON metadata for the audit event.
func (a *AuditEvent) WithMetadata(data interface{}) *AuditEvent {
	jsonData, err := json.Marshal(data)
	if err == nil {
		a.Metadata = jsonData
	}
	return a
}
