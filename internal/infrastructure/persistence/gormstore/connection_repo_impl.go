package gormstore

import (
	"context"
	stderrors "errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/turtacn/authenticator/internal/domain/models"
	"github.com/turtacn/authenticator/internal/domain/service"
	"github.com/turtacn/authenticator/pkg/constants"
	"github.com/turtacn/authenticator/pkg/errors"
	"github.com/turtacn/authenticator/pkg/logger"
)

// ConnectionRecord is the persisted form of a connection.
type ConnectionRecord struct {
	ID                  string `gorm:"primaryKey;size:128"`
	Code                string `gorm:"size:128"`
	Name                string `gorm:"size:255"`
	ConnectURL          string `gorm:"size:1024"`
	AccessToken         string `gorm:"size:512;index"`
	Status              string `gorm:"size:32;index"`
	GeolocationRequired bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TableName overrides the gorm default.
func (ConnectionRecord) TableName() string { return "connections" }

func toRecord(c *models.Connection) *ConnectionRecord {
	return &ConnectionRecord{
		ID:                  c.ID,
		Code:                c.Code,
		Name:                c.Name,
		ConnectURL:          c.ConnectURL,
		AccessToken:         c.AccessToken,
		Status:              string(c.Status),
		GeolocationRequired: c.GeolocationRequired,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}

func (r *ConnectionRecord) toModel() *models.Connection {
	return &models.Connection{
		ID:                  r.ID,
		Code:                r.Code,
		Name:                r.Name,
		ConnectURL:          r.ConnectURL,
		AccessToken:         r.AccessToken,
		Status:              models.ConnectionStatus(r.Status),
		GeolocationRequired: r.GeolocationRequired,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

// ConnectionRepoImpl implements ConnectionRepository on top of gorm.
type ConnectionRepoImpl struct {
	db     *gorm.DB
	logger logger.Logger
}

var _ service.ConnectionRepository = (*ConnectionRepoImpl)(nil)

// NewConnectionRepository creates a gorm-backed connection repository.
func NewConnectionRepository(db *gorm.DB, log logger.Logger) *ConnectionRepoImpl {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &ConnectionRepoImpl{db: db, logger: log.WithComponent("ConnectionRepository")}
}

// GetConnection returns a connection by id.
func (r *ConnectionRepoImpl) GetConnection(ctx context.Context, connectionID string) (*models.Connection, error) {
	var record ConnectionRecord
	if err := r.db.WithContext(ctx).Where("id = ?", connectionID).First(&record).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrNotFound("connection")
		}
		r.logger.Error(ctx, "Failed to retrieve connection", err, logger.Fields{"connection_id": connectionID})
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to retrieve connection")
	}
	return record.toModel(), nil
}

// GetActiveConnections returns the connections that still hold an access token, oldest first.
func (r *ConnectionRepoImpl) GetActiveConnections(ctx context.Context) ([]*models.Connection, error) {
	var records []ConnectionRecord
	err := r.db.WithContext(ctx).
		Where("status = ? AND access_token <> ?", string(models.ConnectionStatusActive), "").
		Order("created_at ASC, id ASC").
		Find(&records).Error
	if err != nil {
		r.logger.Error(ctx, "Failed to list active connections", err)
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to list active connections")
	}
	return toModels(records), nil
}

// ListConnections returns every stored connection, oldest first.
func (r *ConnectionRepoImpl) ListConnections(ctx context.Context) ([]*models.Connection, error) {
	var records []ConnectionRecord
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&records).Error; err != nil {
		r.logger.Error(ctx, "Failed to list connections", err)
		return nil, errors.Wrap(err, constants.ErrCodeInternal, "failed to list connections")
	}
	return toModels(records), nil
}

// InvalidateConnectionsByAccessTokens marks matching connections inactive and clears their tokens.
// It returns the number of connections changed.
func (r *ConnectionRepoImpl) InvalidateConnectionsByAccessTokens(ctx context.Context, accessTokens []string) (int64, error) {
	tokens := make([]string, 0, len(accessTokens))
	for _, token := range accessTokens {
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	if len(tokens) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).
		Model(&ConnectionRecord{}).
		Where("access_token IN ?", tokens).
		Updates(map[string]interface{}{
			"status":       string(models.ConnectionStatusInactive),
			"access_token": "",
		})
	if result.Error != nil {
		r.logger.Error(ctx, "Failed to invalidate connections", result.Error, logger.Fields{"tokens": len(tokens)})
		return 0, errors.Wrap(result.Error, constants.ErrCodeInternal, "failed to invalidate connections")
	}
	r.logger.Info(ctx, "Connections invalidated", logger.Fields{"count": result.RowsAffected})
	return result.RowsAffected, nil
}

// Save creates the connection or replaces the stored one with the same id.
func (r *ConnectionRepoImpl) Save(ctx context.Context, connection *models.Connection) error {
	if connection == nil || connection.ID == "" {
		return errors.ErrInvalidRequest("connection id is required")
	}
	record := toRecord(connection)
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"code", "name", "connect_url", "access_token", "status", "geolocation_required", "updated_at"}),
	}).Create(record).Error
	if err != nil {
		r.logger.Error(ctx, "Failed to save connection", err, logger.Fields{"connection_id": connection.ID})
		return errors.Wrap(err, constants.ErrCodeInternal, "failed to save connection")
	}
	connection.CreatedAt = record.CreatedAt
	connection.UpdatedAt = record.UpdatedAt
	return nil
}

// Delete removes a connection. Deleting an unknown id is not an error.
func (r *ConnectionRepoImpl) Delete(ctx context.Context, connectionID string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", connectionID).Delete(&ConnectionRecord{}).Error; err != nil {
		r.logger.Error(ctx, "Failed to delete connection", err, logger.Fields{"connection_id": connectionID})
		return errors.Wrap(err, constants.ErrCodeInternal, "failed to delete connection")
	}
	return nil
}

func toModels(records []ConnectionRecord) []*models.Connection {
	connections := make([]*models.Connection, 0, len(records))
	for i := range records {
		connections = append(connections, records[i].toModel())
	}
	return connections
}
