// Package conversation manages conversation threads. Open-thread uniqueness
// is enforced by the database: a partial unique index on open conversations
// makes ResolveOpen race-free under concurrent inbound events.
package conversation

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

// Conversation statuses.
const (
	StatusOpen     = "open"
	StatusClosed   = "closed"
	StatusArchived = "archived"
)

// ErrNotFound is returned when no conversation matches.
var ErrNotFound = errors.New("conversation not found")

// Conversation is one thread between a contact and the tenant on a channel.
type Conversation struct {
	ID               string              `json:"id"`
	TenantID         string              `json:"tenant_id"`
	ContactID        string              `json:"contact_id"`
	Channel          channel.ChannelType `json:"channel"`
	ExternalThreadID string              `json:"external_thread_id"`
	Status           string              `json:"status"`
	Priority         string              `json:"priority"`
	AssistantEnabled bool                `json:"assistant_enabled"`
	LastMessageAt    time.Time           `json:"last_message_at"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

const selectColumns = `id, tenant_id, contact_id, channel, external_thread_id,
	status, priority, assistant_enabled, last_message_at, created_at, updated_at`

// Service provides conversation persistence.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a conversation service.
func NewService(pool *pgxpool.Pool, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "conversation")),
	}
}

// ResolveOpen returns the open conversation for (tenant, contact, channel,
// thread), creating it when none exists. The second return reports whether a
// new conversation was created. The insert lands on the partial unique
// index, so two concurrent resolves converge on the same row.
func (s *Service) ResolveOpen(ctx context.Context, tenantID, contactID string, channelType channel.ChannelType, externalThreadID string) (Conversation, bool, error) {
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return Conversation{}, false, fmt.Errorf("invalid tenant id: %w", err)
	}
	cid, err := db.ParseUUID(contactID)
	if err != nil {
		return Conversation{}, false, fmt.Errorf("invalid contact id: %w", err)
	}
	// xmax = 0 distinguishes a fresh insert from the DO UPDATE path.
	row := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (tenant_id, contact_id, channel, external_thread_id, status)
		VALUES ($1, $2, $3, $4, 'open')
		ON CONFLICT (tenant_id, contact_id, channel, external_thread_id) WHERE status = 'open'
		DO UPDATE SET updated_at = now()
		RETURNING `+selectColumns+`, (xmax = 0) AS inserted`,
		tid, cid, channelType.String(), externalThreadID)
	return scanConversationInserted(row)
}

// FindOpenByThread returns the open conversation bound to an external
// thread id, regardless of contact.
func (s *Service) FindOpenByThread(ctx context.Context, tenantID string, channelType channel.ChannelType, externalThreadID string) (Conversation, error) {
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return Conversation{}, fmt.Errorf("invalid tenant id: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+selectColumns+`
		FROM conversations
		WHERE tenant_id = $1 AND channel = $2 AND external_thread_id = $3
		  AND status = 'open'
		ORDER BY created_at
		LIMIT 1`, tid, channelType.String(), externalThreadID)
	c, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, fmt.Errorf("%w: no open conversation for thread %s", ErrNotFound, externalThreadID)
	}
	return c, err
}

// GetByID returns the conversation with the given id, scoped to the tenant.
func (s *Service) GetByID(ctx context.Context, tenantID, id string) (Conversation, error) {
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return Conversation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	convID, err := db.ParseUUID(id)
	if err != nil {
		return Conversation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+selectColumns+`
		FROM conversations
		WHERE tenant_id = $1 AND id = $2`, tid, convID)
	c, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c, err
}

// TouchLastMessage advances the conversation's last-message timestamp.
func (s *Service) TouchLastMessage(ctx context.Context, id string, at time.Time) error {
	convID, err := db.ParseUUID(id)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	_, err = s.pool.Exec(ctx, `
		UPDATE conversations
		SET last_message_at = GREATEST(COALESCE(last_message_at, $2), $2), updated_at = now()
		WHERE id = $1`, convID, db.ToTimestamptz(at))
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

// UpdateStatus transitions a conversation's status. Closing a conversation
// releases the open-thread slot; the next inbound message opens a fresh one.
func (s *Service) UpdateStatus(ctx context.Context, tenantID, id, status string) (Conversation, error) {
	switch status {
	case StatusOpen, StatusClosed, StatusArchived:
	default:
		return Conversation{}, fmt.Errorf("invalid conversation status: %s", status)
	}
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return Conversation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	convID, err := db.ParseUUID(id)
	if err != nil {
		return Conversation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE conversations
		SET status = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
		RETURNING `+selectColumns, tid, convID, status)
	c, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err == nil {
		s.logger.Info("conversation status changed",
			slog.String("conversation_id", id),
			slog.String("status", status))
	}
	return c, err
}

// List returns the tenant's conversations, most recently active first.
func (s *Service) List(ctx context.Context, tenantID string, limit int) ([]Conversation, error) {
	tid, err := db.ParseUUID(tenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM conversations
		WHERE tenant_id = $1
		ORDER BY COALESCE(last_message_at, created_at) DESC
		LIMIT $2`, tid, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()
	var items []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func scanConversationInserted(row pgx.Row) (Conversation, bool, error) {
	var (
		id, tenantID, contactID pgtype.UUID
		channelType             string
		externalThreadID        string
		status, priority        string
		assistantEnabled        bool
		inserted                bool
		lastMessageAt           pgtype.Timestamptz
		createdAt, updatedAt    pgtype.Timestamptz
	)
	err := row.Scan(&id, &tenantID, &contactID, &channelType, &externalThreadID,
		&status, &priority, &assistantEnabled, &lastMessageAt, &createdAt, &updatedAt, &inserted)
	if err != nil {
		return Conversation{}, false, fmt.Errorf("scan conversation: %w", err)
	}
	return Conversation{
		ID:               db.UUIDToString(id),
		TenantID:         db.UUIDToString(tenantID),
		ContactID:        db.UUIDToString(contactID),
		Channel:          channel.ChannelType(channelType),
		ExternalThreadID: externalThreadID,
		Status:           status,
		Priority:         priority,
		AssistantEnabled: assistantEnabled,
		LastMessageAt:    lastMessageAt.Time,
		CreatedAt:        createdAt.Time,
		UpdatedAt:        updatedAt.Time,
	}, inserted, nil
}

func scanConversation(row pgx.Row) (Conversation, error) {
	var (
		id, tenantID, contactID pgtype.UUID
		channelType             string
		externalThreadID        string
		status, priority        string
		assistantEnabled        bool
		lastMessageAt           pgtype.Timestamptz
		createdAt, updatedAt    pgtype.Timestamptz
	)
	err := row.Scan(&id, &tenantID, &contactID, &channelType, &externalThreadID,
		&status, &priority, &assistantEnabled, &lastMessageAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, err
		}
		return Conversation{}, fmt.Errorf("scan conversation: %w", err)
	}
	return Conversation{
		ID:               db.UUIDToString(id),
		TenantID:         db.UUIDToString(tenantID),
		ContactID:        db.UUIDToString(contactID),
		Channel:          channel.ChannelType(channelType),
		ExternalThreadID: externalThreadID,
		Status:           status,
		Priority:         priority,
		AssistantEnabled: assistantEnabled,
		LastMessageAt:    lastMessageAt.Time,
		CreatedAt:        createdAt.Time,
		UpdatedAt:        updatedAt.Time,
	}, nil
}
