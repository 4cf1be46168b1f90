package audit

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/turtacn/authenticator/internal/domain/models"
	"github.com/turtacn/authenticator/internal/domain/service"
)

// AuditRecord is the persisted form of an audit event.
type AuditRecord struct {
	EventID         string `gorm:"primaryKey;size:36"`
	EventType       string `gorm:"size:64;index"`
	ConnectionID    string `gorm:"size:128;index"`
	AuthorizationID string `gorm:"size:128"`
	AuthMethod      string `gorm:"size:32"`
	Status          string `gorm:"size:32"`
	ResultCode      string `gorm:"size:64"`
	Message         string `gorm:"size:1024"`
	Metadata        []byte
	Timestamp       time.Time `gorm:"index"`
}

// TableName overrides the gorm default.
func (AuditRecord) TableName() string { return "audit_events" }

// GormAuditService stores audit events next to the connections when no broker is configured.
type GormAuditService struct {
	db *gorm.DB
}

var _ service.AuditService = (*GormAuditService)(nil)

// NewGormAuditService migrates the audit table and returns the service.
func NewGormAuditService(db *gorm.DB) (*GormAuditService, error) {
	if err := db.AutoMigrate(&AuditRecord{}); err != nil {
		return nil, err
	}
	return &GormAuditService{db: db}, nil
}

// LogEvent saves an AuditEvent to the database.
func (s *GormAuditService) LogEvent(ctx context.Context, event *models.AuditEvent) error {
	return s.db.WithContext(ctx).Create(&AuditRecord{
		EventID:         event.EventID.String(),
		EventType:       string(event.EventType),
		ConnectionID:    event.ConnectionID,
		AuthorizationID: event.AuthorizationID,
		AuthMethod:      string(event.AuthMethod),
		Status:          string(event.Status),
		ResultCode:      string(event.ResultCode),
		Message:         event.Message,
		Metadata:        event.Metadata,
		Timestamp:       event.Timestamp,
	}).Error
}

// Recent returns the newest events first.
func (s *GormAuditService) Recent(ctx context.Context, limit int) ([]AuditRecord, error) {
	var records []AuditRecord
	err := s.db.WithContext(ctx).Order("timestamp DESC").Limit(limit).Find(&records).Error
	return records, err
}
