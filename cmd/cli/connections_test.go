package cli

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/authenticator/internal/config"
	"github.com/turtacn/authenticator/internal/domain/models"
	"github.com/turtacn/authenticator/internal/infrastructure/kms"
	"github.com/turtacn/authenticator/internal/infrastructure/persistence/gormstore"
)

type ConnectionsCommandTestSuite struct {
	suite.Suite
	ctx   context.Context
	conn  *gormstore.DBConnection
	repo  *gormstore.ConnectionRepoImpl
	keys  *kms.FileKeyStore
	input *addConnectionInput
}

func TestConnectionsCommandTestSuite(t *testing.T) {
	suite.Run(t, new(ConnectionsCommandTestSuite))
}

func (s *ConnectionsCommandTestSuite) SetupTest() {
	s.ctx = context.Background()
	dir := s.T().TempDir()
	conn, err := gormstore.NewDBConnection(s.ctx, &config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(dir, "connections.db"),
	}, nil)
	s.Require().NoError(err)
	s.conn = conn
	s.repo = gormstore.NewConnectionRepository(conn.DB(), nil)
	s.keys, err = kms.NewFileKeyStore(filepath.Join(dir, "keys"), nil)
	s.Require().NoError(err)
	s.input = &addConnectionInput{
		ID:          "conn-1",
		Code:        "demobank",
		Name:        "Demo Bank",
		ConnectURL:  "https://bank.example.com",
		AccessToken: "token-1",
	}
}

func (s *ConnectionsCommandTestSuite) TearDownTest() {
	s.NoError(s.conn.Close())
}

func (s *ConnectionsCommandTestSuite) TestAdd_GeneratesKeyAndStoresConnection() {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	publicPEM, err := addConnection(s.ctx, s.repo, s.keys, s.input, now)
	s.Require().NoError(err)
	s.Contains(string(publicPEM), "PUBLIC KEY")

	stored, err := s.repo.GetConnection(s.ctx, "conn-1")
	s.Require().NoError(err)
	s.Equal(models.ConnectionStatusActive, stored.Status)
	s.Equal("token-1", stored.AccessToken)
	s.True(stored.CreatedAt.Equal(now))

	key, err := s.keys.GetPrivateKey(s.ctx, "conn-1")
	s.Require().NoError(err)
	expected, err := kms.EncodePublicKeyPEM(key)
	s.Require().NoError(err)
	s.Equal(expected, publicPEM)
}

func (s *ConnectionsCommandTestSuite) TestAdd_KeepsCreatedAtOnReAdd() {
	first := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	_, err := addConnection(s.ctx, s.repo, s.keys, s.input, first)
	s.Require().NoError(err)

	s.input.AccessToken = "token-2"
	_, err = addConnection(s.ctx, s.repo, s.keys, s.input, first.Add(time.Hour))
	s.Require().NoError(err)

	stored, err := s.repo.GetConnection(s.ctx, "conn-1")
	s.Require().NoError(err)
	s.Equal("token-2", stored.AccessToken)
	s.True(stored.CreatedAt.Equal(first))
}

func (s *ConnectionsCommandTestSuite) TestAdd_ImportsPrivateKey() {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	s.Require().NoError(err)
	path := filepath.Join(s.T().TempDir(), "key.pem")
	s.Require().NoError(os.WriteFile(path, kms.EncodePrivateKeyPEM(key), 0o600))
	s.input.PrivateKeyFile = path

	publicPEM, err := addConnection(s.ctx, s.repo, s.keys, s.input, time.Now())
	s.Require().NoError(err)

	expected, err := kms.EncodePublicKeyPEM(key)
	s.Require().NoError(err)
	s.Equal(expected, publicPEM)

	parsed, err := jwt.ParseRSAPublicKeyFromPEM(publicPEM)
	s.Require().NoError(err)
	s.Equal(key.PublicKey.N, parsed.N)
}

func (s *ConnectionsCommandTestSuite) TestAdd_RejectsUnreadableKeyFile() {
	path := filepath.Join(s.T().TempDir(), "garbage.pem")
	s.Require().NoError(os.WriteFile(path, []byte("not a key"), 0o600))
	s.input.PrivateKeyFile = path

	_, err := addConnection(s.ctx, s.repo, s.keys, s.input, time.Now())
	s.Error(err)

	_, err = s.repo.GetConnection(s.ctx, "conn-1")
	s.Error(err)
}

func (s *ConnectionsCommandTestSuite) TestList_PrintsTable() {
	_, err := addConnection(s.ctx, s.repo, s.keys, s.input, time.Now())
	s.Require().NoError(err)

	var out bytes.Buffer
	s.Require().NoError(listConnections(s.ctx, s.repo, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	s.Require().Len(lines, 2)
	s.True(strings.HasPrefix(lines[0], "ID"))
	s.Contains(lines[1], "conn-1")
	s.Contains(lines[1], "Demo Bank")
	s.Contains(lines[1], "https://bank.example.com")
}

func (s *ConnectionsCommandTestSuite) TestRemove_DeletesConnectionAndKey() {
	_, err := addConnection(s.ctx, s.repo, s.keys, s.input, time.Now())
	s.Require().NoError(err)

	s.Require().NoError(removeConnection(s.ctx, s.repo, s.keys, "conn-1"))

	_, err = s.repo.GetConnection(s.ctx, "conn-1")
	s.Error(err)
	_, err = s.keys.GetPrivateKey(s.ctx, "conn-1")
	s.Error(err)
}

func (s *ConnectionsCommandTestSuite) TestRemove_UnknownConnection() {
	s.Error(removeConnection(s.ctx, s.repo, s.keys, "missing"))
}

func TestAddConnectionInput_Validate(t *testing.T) {
	valid := addConnectionInput{ID: "c", AccessToken: "t", ConnectURL: "https://bank.example.com"}
	require.NoError(t, valid.validate())

	cases := map[string]func(in *addConnectionInput){
		"missing id":      func(in *addConnectionInput) { in.ID = "" },
		"missing token":   func(in *addConnectionInput) { in.AccessToken = "" },
		"relative url":    func(in *addConnectionInput) { in.ConnectURL = "/api" },
		"unsupported url": func(in *addConnectionInput) { in.ConnectURL = "ftp://bank.example.com" },
		"empty url":       func(in *addConnectionInput) { in.ConnectURL = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := valid
			mutate(&in)
			assert.Error(t, in.validate())
		})
	}
}
