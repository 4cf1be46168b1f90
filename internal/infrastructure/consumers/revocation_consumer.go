// Package consumers contains Kafka consumers for background processing tasks.
package consumers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/authenticator/internal/config"
	"github.com/turtacn/authenticator/internal/domain/models"
	"github.com/turtacn/authenticator/internal/domain/service"
	"github.com/turtacn/authenticator/pkg/constants"
	"github.com/turtacn/authenticator/pkg/logger"
)

// RevocationEvent announces access tokens a provider no longer accepts.
type RevocationEvent struct {
	AccessTokens []string  `json:"access_tokens"`
	Reason       string    `json:"reason,omitempty"`
	RevokedAt    time.Time `json:"revoked_at"`
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RevocationConsumer applies pushed token revocations to the local connection store, so a
// revoked connection stops being polled before the provider rejects a request.
type RevocationConsumer struct {
	reader      messageReader
	connections service.ConnectionRepository
	audit       service.AuditService
	logger      logger.Logger
}

// NewRevocationConsumer creates a new consumer for revocation events.
func NewRevocationConsumer(cfg config.KafkaConfig, connections service.ConnectionRepository, audit service.AuditService, log logger.Logger) *RevocationConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.RevocationTopic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
	})
	return newRevocationConsumer(reader, connections, audit, log)
}

func newRevocationConsumer(reader messageReader, connections service.ConnectionRepository, audit service.AuditService, log logger.Logger) *RevocationConsumer {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &RevocationConsumer{
		reader:      reader,
		connections: connections,
		audit:       audit,
		logger:      log.WithComponent("RevocationConsumer"),
	}
}

// Run consumes until ctx is cancelled or the reader is closed.
func (c *RevocationConsumer) Run(ctx context.Context) {
	c.logger.Info(ctx, "starting revocation consumer")
	defer c.logger.Info(ctx, "revocation consumer stopped")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, io.EOF) {
				return
			}
			c.logger.Error(ctx, "failed to fetch message from kafka", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		var event RevocationEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.Error(ctx, "failed to unmarshal revocation event", err, logger.Fields{"offset": msg.Offset})
			// poison pill
			_ = c.reader.CommitMessages(ctx, msg)
			continue
		}
		if err := c.handleEvent(ctx, &event); err != nil {
			c.logger.Error(ctx, "failed to handle revocation event", err, logger.Fields{"offset": msg.Offset})
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Warn(ctx, "failed to commit revocation event", logger.Fields{"error": err.Error()})
		}
	}
}

// Close closes the underlying reader.
func (c *RevocationConsumer) Close() error {
	return c.reader.Close()
}

func (c *RevocationConsumer) handleEvent(ctx context.Context, event *RevocationEvent) error {
	if len(event.AccessTokens) == 0 {
		return nil
	}
	affected, err := c.connections.InvalidateConnectionsByAccessTokens(ctx, event.AccessTokens)
	if err != nil {
		return err
	}
	if affected == 0 {
		return nil
	}
	c.logger.Info(ctx, "revoked connections invalidated", logger.Fields{"count": affected, "reason": event.Reason})
	if c.audit != nil {
		auditEvent := models.NewAuditEvent(constants.AuditEventConnectionInvalidated, "", "").
			WithResultCode(constants.ErrCodeConnectionNotFound, event.Reason).
			WithMetadata(map[string]interface{}{"source": "revocation_topic", "count": affected})
		if err := c.audit.LogEvent(ctx, auditEvent); err != nil {
			c.logger.Warn(ctx, "failed to audit revocation", logger.Fields{"error": err.Error()})
		}
	}
	return nil
}
