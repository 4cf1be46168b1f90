package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/authenticator/internal/config"
	"github.com/turtacn/authenticator/internal/domain/models"
	"github.com/turtacn/authenticator/pkg/errors"
)

type ConnectionRepositoryTestSuite struct {
	suite.Suite
	ctx  context.Context
	conn *DBConnection
	repo *ConnectionRepoImpl
}

func TestConnectionRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(ConnectionRepositoryTestSuite))
}

func (s *ConnectionRepositoryTestSuite) SetupTest() {
	s.ctx = context.Background()
	conn, err := NewDBConnection(s.ctx, &config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(s.T().TempDir(), "store", "connections.db"),
	}, nil)
	s.Require().NoError(err)
	s.conn = conn
	s.repo = NewConnectionRepository(conn.DB(), nil)
}

func (s *ConnectionRepositoryTestSuite) TearDownTest() {
	s.NoError(s.conn.Close())
}

func (s *ConnectionRepositoryTestSuite) save(id string, created time.Time) *models.Connection {
	connection := &models.Connection{
		ID:          id,
		Code:        "bank-" + id,
		Name:        "Bank " + id,
		ConnectURL:  "https://bank-" + id + ".example.com",
		AccessToken: "token-" + id,
		Status:      models.ConnectionStatusActive,
		CreatedAt:   created,
	}
	s.Require().NoError(s.repo.Save(s.ctx, connection))
	return connection
}

func (s *ConnectionRepositoryTestSuite) TestSaveAndGet() {
	s.save("c1", time.Now())

	got, err := s.repo.GetConnection(s.ctx, "c1")
	s.Require().NoError(err)
	s.Equal("Bank c1", got.Name)
	s.Equal("token-c1", got.AccessToken)
	s.True(got.IsActive())
}

func (s *ConnectionRepositoryTestSuite) TestSaveReplacesExisting() {
	connection := s.save("c1", time.Now())
	connection.Name = "Renamed"
	connection.GeolocationRequired = true
	s.Require().NoError(s.repo.Save(s.ctx, connection))

	got, err := s.repo.GetConnection(s.ctx, "c1")
	s.Require().NoError(err)
	s.Equal("Renamed", got.Name)
	s.True(got.GeolocationRequired)

	all, err := s.repo.ListConnections(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 1)
}

func (s *ConnectionRepositoryTestSuite) TestSaveRequiresID() {
	err := s.repo.Save(s.ctx, &models.Connection{Name: "nameless"})
	s.Error(err)
}

func (s *ConnectionRepositoryTestSuite) TestGetUnknownConnection() {
	_, err := s.repo.GetConnection(s.ctx, "missing")
	s.Require().Error(err)
	appErr, ok := errors.AsAppError(err)
	s.Require().True(ok)
	s.Equal("not_found", string(appErr.Code()))
}

func (s *ConnectionRepositoryTestSuite) TestActiveConnectionsInCreationOrder() {
	base := time.Now().Add(-time.Hour)
	s.save("c2", base.Add(time.Minute))
	s.save("c1", base)
	s.save("c3", base.Add(2*time.Minute))

	active, err := s.repo.GetActiveConnections(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"c1", "c2", "c3"}, connectionIDs(active))
}

func (s *ConnectionRepositoryTestSuite) TestInvalidateByAccessTokens() {
	base := time.Now().Add(-time.Hour)
	s.save("c1", base)
	s.save("c2", base.Add(time.Minute))
	s.save("c3", base.Add(2*time.Minute))

	affected, err := s.repo.InvalidateConnectionsByAccessTokens(s.ctx, []string{"token-c1", "token-c3", "unknown", ""})
	s.Require().NoError(err)
	s.Equal(int64(2), affected)

	active, err := s.repo.GetActiveConnections(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"c2"}, connectionIDs(active))

	invalidated, err := s.repo.GetConnection(s.ctx, "c1")
	s.Require().NoError(err)
	s.Equal(models.ConnectionStatusInactive, invalidated.Status)
	s.Empty(invalidated.AccessToken)
	s.False(invalidated.IsActive())

	affected, err = s.repo.InvalidateConnectionsByAccessTokens(s.ctx, []string{"token-c1"})
	s.Require().NoError(err)
	s.Zero(affected)
}

func (s *ConnectionRepositoryTestSuite) TestInvalidateWithoutTokens() {
	affected, err := s.repo.InvalidateConnectionsByAccessTokens(s.ctx, nil)
	s.NoError(err)
	s.Zero(affected)
}

func (s *ConnectionRepositoryTestSuite) TestDelete() {
	s.save("c1", time.Now())
	s.Require().NoError(s.repo.Delete(s.ctx, "c1"))
	s.Require().NoError(s.repo.Delete(s.ctx, "c1"))

	_, err := s.repo.GetConnection(s.ctx, "c1")
	s.Error(err)
}

func (s *ConnectionRepositoryTestSuite) TestHealthCheck() {
	info, err := s.conn.HealthCheck(s.ctx)
	s.Require().NoError(err)
	s.Equal("healthy", info["status"])
	s.Equal(config.DriverSQLite, info["driver"])
}

func TestNewDBConnection_RejectsUnknownDriver(t *testing.T) {
	_, err := NewDBConnection(context.Background(), &config.DatabaseConfig{Driver: "mysql"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysql")

	_, err = NewDBConnection(context.Background(), nil, nil)
	assert.Error(t, err)
}

func connectionIDs(connections []*models.Connection) []string {
	ids := make([]string, 0, len(connections))
	for _, c := range connections {
		ids = append(ids, c.ID)
	}
	return ids
}
