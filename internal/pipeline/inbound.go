package pipeline

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/relaydesk/relaydesk/internal/automation"
	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/config"
	"github.com/relaydesk/relaydesk/internal/contact"
	"github.com/relaydesk/relaydesk/internal/conversation"
	"github.com/relaydesk/relaydesk/internal/message"
	"github.com/relaydesk/relaydesk/internal/tenant"
)

// Processor runs the inbound pipeline and the callback path.
type Processor struct {
	registry      *channel.Registry
	tenants       TenantStore
	contacts      ContactStore
	conversations ConversationStore
	messages      MessageStore
	automations   AutomationStore
	dispatcher    Dispatcher
	cfg           config.PipelineConfig
	logger        *slog.Logger
}

// NewProcessor wires the pipeline.
func NewProcessor(
	registry *channel.Registry,
	tenants TenantStore,
	contacts ContactStore,
	conversations ConversationStore,
	messages MessageStore,
	automations AutomationStore,
	dispatcher Dispatcher,
	cfg config.PipelineConfig,
	log *slog.Logger,
) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		registry:      registry,
		tenants:       tenants,
		contacts:      contacts,
		conversations: conversations,
		messages:      messages,
		automations:   automations,
		dispatcher:    dispatcher,
		cfg:           cfg,
		logger:        log.With(slog.String("service", "pipeline")),
	}
}

// spawnDispatch runs automation dispatch off the webhook request path.
// Tests replace it to dispatch synchronously.
var spawnDispatch = func(fn func()) { go fn() }

// ProcessInbound runs one webhook delivery through the pipeline: resolve
// tenant, parse, resolve contact and conversation, store the message, then
// dispatch automations asynchronously. The provider is acknowledged as soon
// as this returns; dispatch outcomes land in the automation logs.
func (p *Processor) ProcessInbound(ctx context.Context, req InboundRequest) (InboundResult, error) {
	adapter, ok := p.registry.Get(req.Channel)
	if !ok {
		return InboundResult{}, validationf("unknown channel: %s", req.Channel)
	}
	if len(req.Raw) == 0 {
		return InboundResult{}, validationf("empty payload")
	}

	t, settings, err := p.resolveTenant(ctx, req)
	if err != nil {
		return InboundResult{}, err
	}
	if settings.WebhookSecret != "" {
		if subtle.ConstantTimeCompare([]byte(settings.WebhookSecret), []byte(req.SecretHint)) != 1 {
			return InboundResult{}, fmt.Errorf("%w: tenant %s", ErrUnauthorized, t.ID)
		}
	}

	msg, isMessage, err := adapter.ParseInbound(req.Raw, settings.Credential())
	if err != nil {
		return InboundResult{}, &ValidationError{Msg: "malformed payload", Err: err}
	}
	if !isMessage {
		p.logger.Debug("non-message update ignored",
			slog.String("tenant_id", t.ID),
			slog.String("channel", req.Channel.String()))
		return InboundResult{Ignored: true, TenantID: t.ID}, nil
	}
	if msg.Sender.IsEmpty() {
		return InboundResult{}, validationf("message has no sender identity")
	}
	if msg.ThreadID == "" {
		return InboundResult{}, validationf("message has no thread id")
	}

	c, contactCreated, err := p.contacts.Resolve(ctx, t.ID, req.Channel, msg.Sender)
	if err != nil {
		return InboundResult{}, &PersistenceError{Op: "resolve contact", Err: err}
	}
	conv, conversationCreated, err := p.conversations.ResolveOpen(ctx, t.ID, c.ID, req.Channel, msg.ThreadID)
	if err != nil {
		return InboundResult{}, &PersistenceError{Op: "resolve conversation", Err: err}
	}

	stored, created, err := p.messages.Write(ctx, message.WriteParams{
		TenantID:          t.ID,
		ConversationID:    conv.ID,
		ContactID:         c.ID,
		Channel:           req.Channel,
		Content:           msg.Text,
		ContentType:       msg.Content,
		Direction:         message.DirectionInbound,
		SenderType:        message.SenderHuman,
		ExternalMessageID: msg.MessageID,
		MediaURL:          msg.MediaURL,
	})
	if err != nil {
		return InboundResult{}, &PersistenceError{Op: "store message", Err: err}
	}

	result := InboundResult{
		TenantID:       t.ID,
		ContactID:      c.ID,
		ConversationID: conv.ID,
		MessageID:      stored.ID,
	}
	if !created {
		result.Duplicate = true
		return result, nil
	}

	if err := p.conversations.TouchLastMessage(ctx, conv.ID, stored.CreatedAt); err != nil {
		p.logger.Warn("touch conversation failed",
			slog.String("conversation_id", conv.ID),
			slog.Any("error", err))
	}

	p.logger.Info("inbound message stored",
		slog.String("tenant_id", t.ID),
		slog.String("channel", req.Channel.String()),
		slog.String("conversation_id", conv.ID),
		slog.String("message_id", stored.ID))

	p.dispatchEvents(ctx, settings, stored, c, contactCreated, conv, conversationCreated)
	return result, nil
}

// resolveTenant maps the delivery to a tenant: explicit URL tenant first,
// then the indexed credential hints, then the oldest configured tenant for
// single-tenant deployments.
func (p *Processor) resolveTenant(ctx context.Context, req InboundRequest) (tenant.Tenant, tenant.ChannelSettings, error) {
	if req.TenantID != "" {
		t, err := p.tenants.GetByID(ctx, req.TenantID)
		if err != nil {
			return tenant.Tenant{}, tenant.ChannelSettings{}, &ResolutionError{Resource: "tenant", Err: err}
		}
		settings, err := p.tenants.GetSettings(ctx, t.ID, req.Channel)
		if err != nil {
			if errors.Is(err, tenant.ErrNotFound) && p.cfg.FallbackBotToken != "" {
				// Global credential for deployments that share one bot.
				return t, tenant.ChannelSettings{
					TenantID: t.ID,
					Channel:  req.Channel,
					BotToken: p.cfg.FallbackBotToken,
				}, nil
			}
			return tenant.Tenant{}, tenant.ChannelSettings{}, &ResolutionError{Resource: "channel settings", Err: err}
		}
		return t, settings, nil
	}

	if req.SecretHint != "" || req.TokenHint != "" {
		t, settings, err := p.tenants.ResolveByCredential(ctx, req.Channel, req.SecretHint, req.TokenHint)
		if err == nil {
			return t, settings, nil
		}
		if !errors.Is(err, tenant.ErrNotFound) {
			return tenant.Tenant{}, tenant.ChannelSettings{}, &PersistenceError{Op: "resolve tenant", Err: err}
		}
	}

	t, settings, err := p.tenants.OldestConfigured(ctx, req.Channel)
	if err != nil {
		return tenant.Tenant{}, tenant.ChannelSettings{}, &ResolutionError{Resource: "tenant", Err: err}
	}
	return t, settings, nil
}

// dispatchEvents fires the applicable triggers for a stored message. At
// most one automation runs per trigger; missing automations are skipped
// silently.
func (p *Processor) dispatchEvents(
	ctx context.Context,
	settings tenant.ChannelSettings,
	stored message.Message,
	c contact.Contact,
	contactCreated bool,
	conv conversation.Conversation,
	conversationCreated bool,
) {
	triggers := make([]string, 0, 3)
	if contactCreated {
		triggers = append(triggers, automation.TriggerContactCreated)
	}
	if conversationCreated {
		triggers = append(triggers, automation.TriggerConversationStarted)
	}
	triggers = append(triggers, automation.TriggerMessageReceived)

	// The provider ack must not wait on automation endpoints.
	dispatchCtx := context.WithoutCancel(ctx)
	spawnDispatch(func() {
		for _, trigger := range triggers {
			p.dispatchOne(dispatchCtx, trigger, settings, stored, c, contactCreated, conv, conversationCreated)
		}
	})
}

func (p *Processor) dispatchOne(
	ctx context.Context,
	trigger string,
	settings tenant.ChannelSettings,
	stored message.Message,
	c contact.Contact,
	contactCreated bool,
	conv conversation.Conversation,
	conversationCreated bool,
) {
	auto, err := p.automations.FirstRunnable(ctx, stored.TenantID, trigger)
	if err != nil {
		if !errors.Is(err, automation.ErrNotFound) {
			p.logger.Error("select automation failed",
				slog.String("trigger", trigger),
				slog.Any("error", err))
		}
		return
	}

	token, err := generateCallbackToken(p.cfg.CallbackSecret, p.cfg.TokenTTL(),
		stored.TenantID, conv.ID, c.ID, stored.Channel)
	if err != nil {
		p.logger.Error("callback token failed", slog.Any("error", err))
	}
	payload := EventPayload{
		Event:     trigger,
		TenantID:  stored.TenantID,
		Channel:   stored.Channel,
		Timestamp: time.Now().UTC(),
		Message: EventMessage{
			ID:                stored.ID,
			Content:           stored.Content,
			ContentType:       stored.ContentType,
			MediaURL:          stored.MediaURL,
			ExternalMessageID: stored.ExternalMessageID,
			CreatedAt:         stored.CreatedAt,
		},
		Contact: EventContact{
			ID:          c.ID,
			DisplayName: c.DisplayName,
			Status:      c.Status,
			Identities:  c.Identities,
			IsNew:       contactCreated,
		},
		Conversation: EventConversation{
			ID:               conv.ID,
			ExternalThreadID: conv.ExternalThreadID,
			Status:           conv.Status,
			IsNew:            conversationCreated,
		},
		CallbackURL:   p.cfg.CallbackURL(),
		CallbackToken: token,
	}

	summary := fmt.Sprintf("event=%s message=%s conversation=%s", trigger, stored.ID, conv.ID)
	logRow, err := p.automations.CreateLog(ctx, auto.ID, stored.TenantID, trigger, summary)
	if err != nil {
		p.logger.Error("create dispatch log failed",
			slog.String("automation_id", auto.ID),
			slog.Any("error", err))
		return
	}

	secret := settings.DispatchSecret
	if secret == "" {
		secret = auto.Secret
	}
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.DispatchTimeout())
	defer cancel()
	result := p.dispatcher.Dispatch(callCtx, auto, secret, payload)

	status := automation.LogStatusSuccess
	if !result.Succeeded() {
		status = automation.LogStatusError
	}
	if err := p.automations.FinalizeLog(ctx, logRow.ID, status, result.ErrorDetail(), result.Duration.Milliseconds()); err != nil {
		p.logger.Error("finalize dispatch log failed",
			slog.String("log_id", logRow.ID),
			slog.Any("error", err))
	}
	if err := p.automations.RecordExecution(ctx, auto.ID, result.Succeeded()); err != nil {
		p.logger.Error("record execution failed",
			slog.String("automation_id", auto.ID),
			slog.Any("error", err))
	}
}
