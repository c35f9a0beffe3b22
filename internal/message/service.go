// Package message persists conversation messages. Inbound writes are
// idempotent on the provider message id, so redelivered webhook events do
// not duplicate rows.
package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/db"
)

// Message directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Sender types. Channel-sourced inbound messages and operator-sent replies
// are human, callback-sourced replies are ai, service notices are system.
const (
	SenderHuman  = "human"
	SenderAI     = "ai"
	SenderSystem = "system"
)

// ErrNotFound is returned when no message matches.
var ErrNotFound = errors.New("message not found")

// Message is one stored conversation message. Content is preserved exactly
// as received; no normalization or trimming is applied.
type Message struct {
	ID                string              `json:"id"`
	TenantID          string              `json:"tenant_id"`
	ConversationID    string              `json:"conversation_id"`
	ContactID         string              `json:"contact_id"`
	Channel           channel.ChannelType `json:"channel"`
	Content           string              `json:"content"`
	ContentType       channel.ContentType `json:"content_type"`
	Direction         string              `json:"direction"`
	SenderType        string              `json:"sender_type"`
	ExternalMessageID string              `json:"external_message_id"`
	MediaURL          string              `json:"media_url"`
	ReadAt            time.Time           `json:"read_at"`
	CreatedAt         time.Time           `json:"created_at"`
}

// WriteParams carries the fields for one message write.
type WriteParams struct {
	TenantID          string
	ConversationID    string
	ContactID         string
	Channel           channel.ChannelType
	Content           string
	ContentType       channel.ContentType
	Direction         string
	SenderType        string
	ExternalMessageID string
	MediaURL          string
}

const selectColumns = `id, tenant_id, conversation_id, contact_id, channel, content,
	content_type, direction, sender_type, external_message_id, media_url, read_at, created_at`

// Service provides message persistence.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a message service.
func NewService(pool *pgxpool.Pool, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "message")),
	}
}

// Write persists a message. For inbound messages carrying a provider id the
// write is idempotent: a redelivery returns the previously stored row with
// created=false instead of inserting a duplicate.
func (s *Service) Write(ctx context.Context, params WriteParams) (Message, bool, error) {
	switch params.Direction {
	case DirectionInbound, DirectionOutbound:
	default:
		return Message{}, false, fmt.Errorf("invalid message direction: %s", params.Direction)
	}
	tid, err := db.ParseUUID(params.TenantID)
	if err != nil {
		return Message{}, false, fmt.Errorf("invalid tenant id: %w", err)
	}
	convID, err := db.ParseUUID(params.ConversationID)
	if err != nil {
		return Message{}, false, fmt.Errorf("invalid conversation id: %w", err)
	}
	contactID, err := db.ParseUUID(params.ContactID)
	if err != nil {
		return Message{}, false, fmt.Errorf("invalid contact id: %w", err)
	}
	contentType := params.ContentType
	if contentType == "" {
		contentType = channel.ContentText
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO messages
			(tenant_id, conversation_id, contact_id, channel, content, content_type,
			 direction, sender_type, external_message_id, media_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tenant_id, channel, external_message_id)
			WHERE external_message_id <> '' AND direction = 'inbound'
		DO NOTHING
		RETURNING `+selectColumns,
		tid, convID, contactID, params.Channel.String(), params.Content, string(contentType),
		params.Direction, params.SenderType, params.ExternalMessageID, params.MediaURL)
	m, err := scanMessage(row)
	if err == nil {
		return m, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Message{}, false, err
	}

	// Conflict path: fetch the row the earlier delivery created.
	existing := s.pool.QueryRow(ctx, `
		SELECT `+selectColumns+`
		FROM messages
		WHERE tenant_id = $1 AND channel = $2 AND external_message_id = $3
		  AND direction = 'inbound'`,
		tid, params.Channel.String(), params.ExternalMessageID)
	m, err = scanMessage(existing)
	if err != nil {
		return Message{}, false, fmt.Errorf("load deduplicated message: %w", err)
	}
	s.logger.Debug("duplicate inbound message ignored",
		slog.String("tenant_id", params.TenantID),
		slog.String("external_message_id", params.ExternalMessageID))
	return m, false, nil
}

// GetByID returns the message with the given id, scoped to the tenant.
func (s *Service) GetByID(ctx context.Context, tenantID, id string) (Message, error) {
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	msgID, err := db.ParseUUID(id)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+selectColumns+`
		FROM messages
		WHERE tenant_id = $1 AND id = $2`, tid, msgID)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m, err
}

// ListByConversation returns a conversation's messages in creation order.
func (s *Service) ListByConversation(ctx context.Context, tenantID, conversationID string, limit int) ([]Message, error) {
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}
	convID, err := db.ParseUUID(conversationID)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation id: %w", err)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM messages
		WHERE tenant_id = $1 AND conversation_id = $2
		ORDER BY created_at
		LIMIT $3`, tid, convID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	var items []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// MarkRead stamps all unread inbound messages of a conversation as read and
// returns how many were affected.
func (s *Service) MarkRead(ctx context.Context, tenantID, conversationID string) (int64, error) {
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return 0, fmt.Errorf("invalid tenant id: %w", err)
	}
	convID, err := db.ParseUUID(conversationID)
	if err != nil {
		return 0, fmt.Errorf("invalid conversation id: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET read_at = now()
		WHERE tenant_id = $1 AND conversation_id = $2
		  AND direction = 'inbound' AND read_at IS NULL`, tid, convID)
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanMessage(row pgx.Row) (Message, error) {
	var (
		id, tenantID, convID, contactID pgtype.UUID
		channelType, content            string
		contentType, direction          string
		senderType, externalID          string
		mediaURL                        string
		readAt, createdAt               pgtype.Timestamptz
	)
	err := row.Scan(&id, &tenantID, &convID, &contactID, &channelType, &content,
		&contentType, &direction, &senderType, &externalID, &mediaURL, &readAt, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, err
		}
		return Message{}, fmt.Errorf("scan message: %w", err)
	}
	return Message{
		ID:                db.UUIDToString(id),
		TenantID:          db.UUIDToString(tenantID),
		ConversationID:    db.UUIDToString(convID),
		ContactID:         db.UUIDToString(contactID),
		Channel:           channel.ChannelType(channelType),
		Content:           content,
		ContentType:       channel.ContentType(contentType),
		Direction:         direction,
		SenderType:        senderType,
		ExternalMessageID: externalID,
		MediaURL:          mediaURL,
		ReadAt:            readAt.Time,
		CreatedAt:         createdAt.Time,
	}, nil
}
