package pipeline

import (
	"context"
	"time"

	"github.com/relaydesk/relaydesk/internal/automation"
	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/contact"
	"github.com/relaydesk/relaydesk/internal/conversation"
	"github.com/relaydesk/relaydesk/internal/message"
	"github.com/relaydesk/relaydesk/internal/tenant"
)

// The processor depends on narrow store interfaces so tests can swap in
// fakes. The pgx-backed services satisfy them.

// TenantStore resolves tenants and their channel settings.
type TenantStore interface {
	GetByID(ctx context.Context, id string) (tenant.Tenant, error)
	GetSettings(ctx context.Context, tenantID string, channelType channel.ChannelType) (tenant.ChannelSettings, error)
	ResolveByCredential(ctx context.Context, channelType channel.ChannelType, secretHint, tokenHint string) (tenant.Tenant, tenant.ChannelSettings, error)
	OldestConfigured(ctx context.Context, channelType channel.ChannelType) (tenant.Tenant, tenant.ChannelSettings, error)
}

// ContactStore resolves sender identities to contacts.
type ContactStore interface {
	Resolve(ctx context.Context, tenantID string, channelType channel.ChannelType, identity channel.Identity) (contact.Contact, bool, error)
}

// ConversationStore resolves and updates conversation threads.
type ConversationStore interface {
	ResolveOpen(ctx context.Context, tenantID, contactID string, channelType channel.ChannelType, externalThreadID string) (conversation.Conversation, bool, error)
	GetByID(ctx context.Context, tenantID, id string) (conversation.Conversation, error)
	FindOpenByThread(ctx context.Context, tenantID string, channelType channel.ChannelType, externalThreadID string) (conversation.Conversation, error)
	TouchLastMessage(ctx context.Context, id string, at time.Time) error
}

// MessageStore writes conversation messages.
type MessageStore interface {
	Write(ctx context.Context, params message.WriteParams) (message.Message, bool, error)
}

// AutomationStore selects automations and records dispatch outcomes.
type AutomationStore interface {
	FirstRunnable(ctx context.Context, tenantID, triggerEvent string) (automation.Automation, error)
	CreateLog(ctx context.Context, automationID, tenantID, triggerEvent, payloadSummary string) (automation.Log, error)
	FinalizeLog(ctx context.Context, logID, status, errorDetail string, durationMS int64) error
	RecordExecution(ctx context.Context, id string, succeeded bool) error
}

// Dispatcher delivers trigger payloads to automation endpoints.
type Dispatcher interface {
	Dispatch(ctx context.Context, auto automation.Automation, secret string, payload any) automation.DispatchResult
}
