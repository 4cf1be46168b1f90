package polling

import (
	"context"

	"github.com/turtacn/authenticator/internal/domain/models"
	"github.com/turtacn/authenticator/internal/domain/service"
)

// SingleAuthorizationSource fetches one authorization of one connection.
type SingleAuthorizationSource struct {
	fetcher         service.AuthorizationFetcher
	connection      *models.RichConnection
	authorizationID string
}

// NewSingleAuthorizationSource creates a source for one authorization.
func NewSingleAuthorizationSource(fetcher service.AuthorizationFetcher, connection *models.RichConnection, authorizationID string) *SingleAuthorizationSource {
	return &SingleAuthorizationSource{fetcher: fetcher, connection: connection, authorizationID: authorizationID}
}

func (s *SingleAuthorizationSource) Name() string { return "single" }

// Fetch classifies the answer as payload, error or not found.
func (s *SingleAuthorizationSource) Fetch(ctx context.Context) Batch {
	envelope, err := s.fetcher.FetchAuthorization(ctx, s.connection, s.authorizationID)
	switch {
	case err != nil:
		return Batch{Errors: []error{err}}
	case envelope == nil:
		return Batch{}
	default:
		return Batch{Envelopes: []*models.EncryptedData{envelope}}
	}
}

// AuthorizationsListSource fetches the pending authorizations of every usable connection.
// The connection set is read on every fetch since invalidated connections drop out.
type AuthorizationsListSource struct {
	fetcher     service.AuthorizationFetcher
	connections func() []*models.RichConnection
}

// NewAuthorizationsListSource creates a list source.
func NewAuthorizationsListSource(fetcher service.AuthorizationFetcher, connections func() []*models.RichConnection) *AuthorizationsListSource {
	return &AuthorizationsListSource{fetcher: fetcher, connections: connections}
}

func (s *AuthorizationsListSource) Name() string { return "list" }

// Fetch returns every envelope and every per-connection error.
func (s *AuthorizationsListSource) Fetch(ctx context.Context) Batch {
	connections := s.connections()
	if len(connections) == 0 {
		return Batch{}
	}
	envelopes, errs := s.fetcher.FetchAuthorizationsList(ctx, connections)
	return Batch{Envelopes: envelopes, Errors: errs}
}
