package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/conversation"
	"github.com/relaydesk/relaydesk/internal/message"
	"github.com/relaydesk/relaydesk/internal/tenant"
)

// ProcessCallback relays an automation endpoint's response text back to the
// contact over the originating channel and stores it as an outbound message.
func (p *Processor) ProcessCallback(ctx context.Context, req CallbackRequest) (CallbackResult, error) {
	text := req.Text
	if strings.TrimSpace(text) == "" {
		return CallbackResult{}, validationf("response text is required")
	}

	conv, err := p.resolveCallbackConversation(ctx, req)
	if err != nil {
		return CallbackResult{}, err
	}

	settings, err := p.tenants.GetSettings(ctx, conv.TenantID, conv.Channel)
	if err != nil {
		if !errors.Is(err, tenant.ErrNotFound) || p.cfg.FallbackBotToken == "" {
			return CallbackResult{}, &ResolutionError{Resource: "channel settings", Err: err}
		}
		// Same global credential the inbound path uses for shared-bot setups.
		settings = tenant.ChannelSettings{
			TenantID: conv.TenantID,
			Channel:  conv.Channel,
			BotToken: p.cfg.FallbackBotToken,
		}
	}
	adapter, ok := p.registry.Get(conv.Channel)
	if !ok {
		return CallbackResult{}, validationf("unknown channel: %s", conv.Channel)
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout())
	defer cancel()
	externalID, err := adapter.Send(sendCtx, settings.Credential(), conv.ExternalThreadID, text)
	if err != nil {
		return CallbackResult{}, fmt.Errorf("send callback response: %w", err)
	}

	stored, _, err := p.messages.Write(ctx, message.WriteParams{
		TenantID:          conv.TenantID,
		ConversationID:    conv.ID,
		ContactID:         conv.ContactID,
		Channel:           conv.Channel,
		Content:           text,
		ContentType:       channel.ContentText,
		Direction:         message.DirectionOutbound,
		SenderType:        message.SenderAI,
		ExternalMessageID: externalID,
	})
	if err != nil {
		// The contact already received the text; surface the storage failure
		// but keep the external id so callers can reconcile.
		return CallbackResult{ConversationID: conv.ID, ExternalMessageID: externalID},
			&PersistenceError{Op: "store outbound message", Err: err}
	}
	if err := p.conversations.TouchLastMessage(ctx, conv.ID, stored.CreatedAt); err != nil {
		p.logger.Warn("touch conversation failed",
			slog.String("conversation_id", conv.ID),
			slog.Any("error", err))
	}

	p.logger.Info("callback response delivered",
		slog.String("tenant_id", conv.TenantID),
		slog.String("conversation_id", conv.ID),
		slog.String("channel", conv.Channel.String()))
	return CallbackResult{
		MessageID:         stored.ID,
		ConversationID:    conv.ID,
		ExternalMessageID: externalID,
	}, nil
}

// resolveCallbackConversation correlates the callback with a conversation.
// A valid signed token wins; otherwise the explicit conversation id is used,
// then the channel/thread fallback. When a callback secret is configured the
// token is mandatory. Callbacks that name no tenant fall back to the oldest
// tenant configured for the channel, matching the inbound path.
func (p *Processor) resolveCallbackConversation(ctx context.Context, req CallbackRequest) (conversation.Conversation, error) {
	if p.cfg.CallbackSecret != "" {
		if req.Token == "" {
			return conversation.Conversation{}, fmt.Errorf("%w: callback token required", ErrUnauthorized)
		}
		claims, err := verifyCallbackToken(p.cfg.CallbackSecret, req.Token)
		if err != nil {
			return conversation.Conversation{}, fmt.Errorf("%w: %s", ErrUnauthorized, err)
		}
		conv, err := p.conversations.GetByID(ctx, claims.TenantID, claims.ConversationID)
		if err != nil {
			return conversation.Conversation{}, &ResolutionError{Resource: "conversation", Err: err}
		}
		return conv, nil
	}

	if req.ConversationID != "" {
		tenantID := req.TenantID
		if tenantID == "" {
			t, err := p.fallbackCallbackTenant(ctx, req.Channel)
			if err != nil {
				return conversation.Conversation{}, err
			}
			tenantID = t.ID
		}
		conv, err := p.conversations.GetByID(ctx, tenantID, req.ConversationID)
		if err != nil {
			return conversation.Conversation{}, &ResolutionError{Resource: "conversation", Err: err}
		}
		return conv, nil
	}

	if req.Channel != "" && req.ThreadID != "" {
		tenantID := req.TenantID
		if tenantID == "" {
			t, err := p.fallbackCallbackTenant(ctx, req.Channel)
			if err != nil {
				return conversation.Conversation{}, err
			}
			tenantID = t.ID
		}
		conv, err := p.conversations.FindOpenByThread(ctx, tenantID, req.Channel, req.ThreadID)
		if err != nil {
			return conversation.Conversation{}, &ResolutionError{Resource: "conversation", Err: err}
		}
		return conv, nil
	}

	return conversation.Conversation{}, validationf("callback needs a token, a conversation_id, or channel and thread_id")
}

// fallbackCallbackTenant picks the oldest tenant holding a credential for the
// channel when the callback carries only raw channel identity.
func (p *Processor) fallbackCallbackTenant(ctx context.Context, channelType channel.ChannelType) (tenant.Tenant, error) {
	if channelType == "" {
		return tenant.Tenant{}, validationf("tenant_id or channel is required to resolve the callback")
	}
	t, _, err := p.tenants.OldestConfigured(ctx, channelType)
	if err != nil {
		return tenant.Tenant{}, &ResolutionError{Resource: "tenant", Err: err}
	}
	return t, nil
}
