package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaydesk/relaydesk/internal/automation"
	"github.com/relaydesk/relaydesk/internal/channel"
	"github.com/relaydesk/relaydesk/internal/config"
	"github.com/relaydesk/relaydesk/internal/contact"
	"github.com/relaydesk/relaydesk/internal/conversation"
	"github.com/relaydesk/relaydesk/internal/message"
	"github.com/relaydesk/relaydesk/internal/tenant"
)

const (
	testTenantID       = "11111111-1111-1111-1111-111111111111"
	testContactID      = "22222222-2222-2222-2222-222222222222"
	testConversationID = "33333333-3333-3333-3333-333333333333"
	testMessageID      = "44444444-4444-4444-4444-444444444444"
	testAutomationID   = "55555555-5555-5555-5555-555555555555"
)

type fakeAdapter struct {
	channelType channel.ChannelType
	parsed      channel.InboundMessage
	parsedOK    bool
	parseErr    error

	sentTarget string
	sentText   string
	sentCred   channel.Credential
	sendID     string
	sendErr    error
}

func (a *fakeAdapter) Type() channel.ChannelType { return a.channelType }

func (a *fakeAdapter) ParseInbound(raw []byte, cred channel.Credential) (channel.InboundMessage, bool, error) {
	return a.parsed, a.parsedOK, a.parseErr
}

func (a *fakeAdapter) Send(ctx context.Context, cred channel.Credential, target, text string) (string, error) {
	a.sentTarget = target
	a.sentText = text
	a.sentCred = cred
	if a.sendErr != nil {
		return "", a.sendErr
	}
	return a.sendID, nil
}

type fakeTenants struct {
	tenant   tenant.Tenant
	settings tenant.ChannelSettings

	settingsErr error
	resolvedBy  string
}

func (f *fakeTenants) GetByID(ctx context.Context, id string) (tenant.Tenant, error) {
	if id != f.tenant.ID {
		return tenant.Tenant{}, fmt.Errorf("%w: %s", tenant.ErrNotFound, id)
	}
	return f.tenant, nil
}

func (f *fakeTenants) GetSettings(ctx context.Context, tenantID string, ct channel.ChannelType) (tenant.ChannelSettings, error) {
	if f.settingsErr != nil {
		return tenant.ChannelSettings{}, f.settingsErr
	}
	return f.settings, nil
}

func (f *fakeTenants) ResolveByCredential(ctx context.Context, ct channel.ChannelType, secretHint, tokenHint string) (tenant.Tenant, tenant.ChannelSettings, error) {
	if secretHint == f.settings.WebhookSecret && secretHint != "" {
		f.resolvedBy = "secret"
		return f.tenant, f.settings, nil
	}
	if tokenHint == f.settings.BotToken && tokenHint != "" {
		f.resolvedBy = "token"
		return f.tenant, f.settings, nil
	}
	return tenant.Tenant{}, tenant.ChannelSettings{}, tenant.ErrNotFound
}

func (f *fakeTenants) OldestConfigured(ctx context.Context, ct channel.ChannelType) (tenant.Tenant, tenant.ChannelSettings, error) {
	f.resolvedBy = "fallback"
	return f.tenant, f.settings, nil
}

type fakeContacts struct {
	contact contact.Contact
	created bool
	err     error
}

func (f *fakeContacts) Resolve(ctx context.Context, tenantID string, ct channel.ChannelType, identity channel.Identity) (contact.Contact, bool, error) {
	if f.err != nil {
		return contact.Contact{}, false, f.err
	}
	return f.contact, f.created, nil
}

type fakeConversations struct {
	conversation conversation.Conversation
	created      bool
	touchedAt    time.Time
	getErr       error
}

func (f *fakeConversations) ResolveOpen(ctx context.Context, tenantID, contactID string, ct channel.ChannelType, threadID string) (conversation.Conversation, bool, error) {
	return f.conversation, f.created, nil
}

func (f *fakeConversations) GetByID(ctx context.Context, tenantID, id string) (conversation.Conversation, error) {
	if f.getErr != nil {
		return conversation.Conversation{}, f.getErr
	}
	if tenantID != f.conversation.TenantID || id != f.conversation.ID {
		return conversation.Conversation{}, conversation.ErrNotFound
	}
	return f.conversation, nil
}

func (f *fakeConversations) FindOpenByThread(ctx context.Context, tenantID string, ct channel.ChannelType, threadID string) (conversation.Conversation, error) {
	if threadID != f.conversation.ExternalThreadID {
		return conversation.Conversation{}, conversation.ErrNotFound
	}
	return f.conversation, nil
}

func (f *fakeConversations) TouchLastMessage(ctx context.Context, id string, at time.Time) error {
	f.touchedAt = at
	return nil
}

type fakeMessages struct {
	written []message.WriteParams
	stored  message.Message
	created bool
	err     error
}

func (f *fakeMessages) Write(ctx context.Context, params message.WriteParams) (message.Message, bool, error) {
	if f.err != nil {
		return message.Message{}, false, f.err
	}
	f.written = append(f.written, params)
	stored := f.stored
	if stored.ID == "" {
		stored.ID = testMessageID
	}
	stored.TenantID = params.TenantID
	stored.ConversationID = params.ConversationID
	stored.ContactID = params.ContactID
	stored.Channel = params.Channel
	stored.Content = params.Content
	stored.ContentType = params.ContentType
	stored.Direction = params.Direction
	stored.SenderType = params.SenderType
	stored.ExternalMessageID = params.ExternalMessageID
	stored.MediaURL = params.MediaURL
	return stored, f.created, nil
}

type fakeAutomations struct {
	automations map[string]automation.Automation // keyed by trigger
	logs        []string
	finalized   []string
	executions  []bool
}

func (f *fakeAutomations) FirstRunnable(ctx context.Context, tenantID, trigger string) (automation.Automation, error) {
	auto, ok := f.automations[trigger]
	if !ok {
		return automation.Automation{}, automation.ErrNotFound
	}
	return auto, nil
}

func (f *fakeAutomations) CreateLog(ctx context.Context, automationID, tenantID, trigger, summary string) (automation.Log, error) {
	f.logs = append(f.logs, trigger)
	return automation.Log{ID: testAutomationID, AutomationID: automationID, TriggerEvent: trigger}, nil
}

func (f *fakeAutomations) FinalizeLog(ctx context.Context, logID, status, errorDetail string, durationMS int64) error {
	f.finalized = append(f.finalized, status)
	return nil
}

func (f *fakeAutomations) RecordExecution(ctx context.Context, id string, succeeded bool) error {
	f.executions = append(f.executions, succeeded)
	return nil
}

type fakeDispatcher struct {
	payloads []EventPayload
	secrets  []string
	result   automation.DispatchResult
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, auto automation.Automation, secret string, payload any) automation.DispatchResult {
	f.payloads = append(f.payloads, payload.(EventPayload))
	f.secrets = append(f.secrets, secret)
	return f.result
}

type fixture struct {
	processor     *Processor
	adapter       *fakeAdapter
	tenants       *fakeTenants
	contacts      *fakeContacts
	conversations *fakeConversations
	messages      *fakeMessages
	automations   *fakeAutomations
	dispatcher    *fakeDispatcher
}

func newFixture(t *testing.T, cfg config.PipelineConfig) *fixture {
	t.Helper()
	prev := spawnDispatch
	spawnDispatch = func(fn func()) { fn() }
	t.Cleanup(func() { spawnDispatch = prev })

	adapter := &fakeAdapter{
		channelType: channel.ChannelType("telegram"),
		parsedOK:    true,
		parsed: channel.InboundMessage{
			Channel:    channel.ChannelType("telegram"),
			MessageID:  "987",
			Sender:     channel.Identity{SubjectID: "42", Username: "ada"},
			ThreadID:   "42",
			Text:       "hello",
			Content:    channel.ContentText,
			ReceivedAt: time.Now(),
		},
		sendID: "555",
	}
	registry := channel.NewRegistry()
	registry.MustRegister(adapter)

	f := &fixture{
		adapter: adapter,
		tenants: &fakeTenants{
			tenant: tenant.Tenant{ID: testTenantID, Name: "acme"},
			settings: tenant.ChannelSettings{
				TenantID: testTenantID,
				Channel:  adapter.channelType,
				BotToken: "bot-token",
			},
		},
		contacts: &fakeContacts{
			contact: contact.Contact{ID: testContactID, TenantID: testTenantID, Status: contact.StatusLead},
		},
		conversations: &fakeConversations{
			conversation: conversation.Conversation{
				ID:               testConversationID,
				TenantID:         testTenantID,
				ContactID:        testContactID,
				Channel:          adapter.channelType,
				ExternalThreadID: "42",
				Status:           conversation.StatusOpen,
			},
		},
		messages:    &fakeMessages{created: true},
		automations: &fakeAutomations{automations: map[string]automation.Automation{}},
		dispatcher:  &fakeDispatcher{result: automation.DispatchResult{StatusCode: 200}},
	}
	f.processor = NewProcessor(registry, f.tenants, f.contacts, f.conversations,
		f.messages, f.automations, f.dispatcher, cfg, nil)
	return f
}

func TestProcessInboundStoresAndDispatches(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{BaseURL: "https://crm.example.com"})
	f.automations.automations[automation.TriggerMessageReceived] = automation.Automation{
		ID: testAutomationID, TenantID: testTenantID, Secret: "auto-secret",
		WebhookURL: "https://flows.example.com/hook", IsActive: true,
	}

	result, err := f.processor.ProcessInbound(context.Background(), InboundRequest{
		Channel: channel.ChannelType("telegram"),
		Raw:     []byte(`{}`),
	})
	require.NoError(t, err)
	assert.False(t, result.Ignored)
	assert.False(t, result.Duplicate)
	assert.Equal(t, testTenantID, result.TenantID)
	assert.Equal(t, testConversationID, result.ConversationID)
	assert.Equal(t, testMessageID, result.MessageID)

	require.Len(t, f.messages.written, 1)
	written := f.messages.written[0]
	assert.Equal(t, message.DirectionInbound, written.Direction)
	assert.Equal(t, "human", written.SenderType)
	assert.Equal(t, "hello", written.Content)
	assert.Equal(t, "987", written.ExternalMessageID)

	require.Len(t, f.dispatcher.payloads, 1)
	payload := f.dispatcher.payloads[0]
	assert.Equal(t, automation.TriggerMessageReceived, payload.Event)
	assert.Equal(t, "hello", payload.Message.Content)
	assert.Equal(t, "https://crm.example.com/webhooks/callback", payload.CallbackURL)
	assert.Equal(t, []string{"auto-secret"}, f.dispatcher.secrets)
	assert.Equal(t, []string{automation.LogStatusSuccess}, f.automations.finalized)
	assert.Equal(t, []bool{true}, f.automations.executions)
	assert.False(t, f.conversations.touchedAt.IsZero())
}

func TestProcessInboundPreservesContentExactly(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{})
	f.adapter.parsed.Text = "  spaced \n\ttext  "

	_, err := f.processor.ProcessInbound(context.Background(), InboundRequest{
		Channel: channel.ChannelType("telegram"),
		Raw:     []byte(`{}`),
	})
	require.NoError(t, err)
	require.Len(t, f.messages.written, 1)
	assert.Equal(t, "  spaced \n\ttext  ", f.messages.written[0].Content)
}

func TestProcessInboundIgnoresNonMessageUpdates(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{})
	f.adapter.parsedOK = false

	result, err := f.processor.ProcessInbound(context.Background(), InboundRequest{
		Channel: channel.ChannelType("telegram"),
		Raw:     []byte(`{"edited_message":{}}`),
	})
	require.NoError(t, err)
	assert.True(t, result.Ignored)
	assert.Empty(t, f.messages.written)
	assert.Empty(t, f.dispatcher.payloads)
}

func TestProcessInboundDuplicateSkipsDispatch(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{})
	f.automations.automations[automation.TriggerMessageReceived] = automation.Automation{ID: testAutomationID}
	f.messages.created = false

	result, err := f.processor.ProcessInbound(context.Background(), InboundRequest{
		Channel: channel.ChannelType("telegram"),
		Raw:     []byte(`{}`),
	})
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	assert.Equal(t, testMessageID, result.MessageID)
	assert.Empty(t, f.dispatcher.payloads)
}

func TestProcessInboundUnknownChannel(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{})

	_, err := f.processor.ProcessInbound(context.Background(), InboundRequest{
		Channel: channel.ChannelType("pigeon"),
		Raw:     []byte(`{}`),
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestProcessInboundMalformedPayload(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{})
	f.adapter.parseErr = errors.New("bad json")

	_, err := f.processor.ProcessInbound(context.Background(), InboundRequest{
		Channel: channel.ChannelType("telegram"),
		Raw:     []byte(`not json`),
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestProcessInboundSecretMismatch(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{})
	f.tenants.settings.WebhookSecret = "expected"

	_, err := f.processor.ProcessInbound(context.Background(), InboundRequest{
		Channel:    channel.ChannelType("telegram"),
		TenantID:   testTenantID,
		Raw:        []byte(`{}`),
		SecretHint: "wrong",
	})
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, f.messages.written)
}

func TestProcessInboundResolvesTenantBySecretHint(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{})
	f.tenants.settings.WebhookSecret = "hook-secret"

	result, err := f.processor.ProcessInbound(context.Background(), InboundRequest{
		Channel:    channel.ChannelType("telegram"),
		Raw:        []byte(`{}`),
		SecretHint: "hook-secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "secret", f.tenants.resolvedBy)
	assert.Equal(t, testTenantID, result.TenantID)
}

func TestProcessInboundFallsBackToOldestTenant(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{})

	result, err := f.processor.ProcessInbound(context.Background(), InboundRequest{
		Channel: channel.ChannelType("telegram"),
		Raw:     []byte(`{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "fallback", f.tenants.resolvedBy)
	assert.Equal(t, testTenantID, result.TenantID)
}

func TestProcessInboundFiresLifecycleTriggersInOrder(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{})
	f.contacts.created = true
	f.conversations.created = true
	for _, trigger := range []string{
		automation.TriggerContactCreated,
		automation.TriggerConversationStarted,
		automation.TriggerMessageReceived,
	} {
		f.automations.automations[trigger] = automation.Automation{ID: testAutomationID, TriggerEvent: trigger}
	}

	_, err := f.processor.ProcessInbound(context.Background(), InboundRequest{
		Channel: channel.ChannelType("telegram"),
		Raw:     []byte(`{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		automation.TriggerContactCreated,
		automation.TriggerConversationStarted,
		automation.TriggerMessageReceived,
	}, f.automations.logs)
	require.Len(t, f.dispatcher.payloads, 3)
	assert.True(t, f.dispatcher.payloads[0].Contact.IsNew)
	assert.True(t, f.dispatcher.payloads[1].Conversation.IsNew)
}

func TestProcessInboundDispatchSecretPrecedence(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{})
	f.tenants.settings.DispatchSecret = "settings-secret"
	f.automations.automations[automation.TriggerMessageReceived] = automation.Automation{
		ID: testAutomationID, Secret: "auto-secret",
	}

	_, err := f.processor.ProcessInbound(context.Background(), InboundRequest{
		Channel: channel.ChannelType("telegram"),
		Raw:     []byte(`{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"settings-secret"}, f.dispatcher.secrets)
}

func TestProcessInboundEndpointFailureRecorded(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{})
	f.automations.automations[automation.TriggerMessageReceived] = automation.Automation{ID: testAutomationID}
	f.dispatcher.result = automation.DispatchResult{StatusCode: 500}

	_, err := f.processor.ProcessInbound(context.Background(), InboundRequest{
		Channel: channel.ChannelType("telegram"),
		Raw:     []byte(`{}`),
	})
	require.NoError(t, err, "endpoint failures must not fail the webhook")
	assert.Equal(t, []string{automation.LogStatusError}, f.automations.finalized)
	assert.Equal(t, []bool{false}, f.automations.executions)
}

func TestProcessInboundIncludesCallbackToken(t *testing.T) {
	cfg := config.PipelineConfig{BaseURL: "https://crm.example.com", CallbackSecret: "signing-key"}
	f := newFixture(t, cfg)
	f.automations.automations[automation.TriggerMessageReceived] = automation.Automation{ID: testAutomationID}

	_, err := f.processor.ProcessInbound(context.Background(), InboundRequest{
		Channel: channel.ChannelType("telegram"),
		Raw:     []byte(`{}`),
	})
	require.NoError(t, err)
	require.Len(t, f.dispatcher.payloads, 1)
	token := f.dispatcher.payloads[0].CallbackToken
	require.NotEmpty(t, token)

	claims, err := verifyCallbackToken("signing-key", token)
	require.NoError(t, err)
	assert.Equal(t, testTenantID, claims.TenantID)
	assert.Equal(t, testConversationID, claims.ConversationID)
}

func TestProcessCallbackWithToken(t *testing.T) {
	cfg := config.PipelineConfig{CallbackSecret: "signing-key"}
	f := newFixture(t, cfg)
	token, err := generateCallbackToken("signing-key", time.Hour,
		testTenantID, testConversationID, testContactID, channel.ChannelType("telegram"))
	require.NoError(t, err)

	result, err := f.processor.ProcessCallback(context.Background(), CallbackRequest{
		Token: token,
		Text:  "your order shipped",
	})
	require.NoError(t, err)
	assert.Equal(t, testConversationID, result.ConversationID)
	assert.Equal(t, "555", result.ExternalMessageID)
	assert.Equal(t, "42", f.adapter.sentTarget)
	assert.Equal(t, "your order shipped", f.adapter.sentText)

	require.Len(t, f.messages.written, 1)
	written := f.messages.written[0]
	assert.Equal(t, message.DirectionOutbound, written.Direction)
	assert.Equal(t, "ai", written.SenderType)
}

func TestProcessCallbackRejectsMissingToken(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{CallbackSecret: "signing-key"})

	_, err := f.processor.ProcessCallback(context.Background(), CallbackRequest{
		TenantID:       testTenantID,
		ConversationID: testConversationID,
		Text:           "hi",
	})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestProcessCallbackRejectsForgedToken(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{CallbackSecret: "signing-key"})
	forged, err := generateCallbackToken("other-key", time.Hour,
		testTenantID, testConversationID, testContactID, channel.ChannelType("telegram"))
	require.NoError(t, err)

	_, err = f.processor.ProcessCallback(context.Background(), CallbackRequest{Token: forged, Text: "hi"})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestProcessCallbackExplicitConversation(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{})

	result, err := f.processor.ProcessCallback(context.Background(), CallbackRequest{
		TenantID:       testTenantID,
		ConversationID: testConversationID,
		Text:           "hello again",
	})
	require.NoError(t, err)
	assert.Equal(t, testConversationID, result.ConversationID)
}

func TestProcessCallbackThreadFallback(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{})

	result, err := f.processor.ProcessCallback(context.Background(), CallbackRequest{
		TenantID: testTenantID,
		Channel:  channel.ChannelType("telegram"),
		ThreadID: "42",
		Text:     "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, testConversationID, result.ConversationID)
}

func TestProcessCallbackThreadResolvesOldestTenant(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{})

	result, err := f.processor.ProcessCallback(context.Background(), CallbackRequest{
		Channel:  channel.ChannelType("telegram"),
		ThreadID: "42",
		Text:     "hi there",
	})
	require.NoError(t, err)
	assert.Equal(t, "fallback", f.tenants.resolvedBy)
	assert.Equal(t, testConversationID, result.ConversationID)
	assert.Equal(t, "hi there", f.adapter.sentText)
}

func TestProcessCallbackConversationResolvesOldestTenant(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{})

	result, err := f.processor.ProcessCallback(context.Background(), CallbackRequest{
		ConversationID: testConversationID,
		Channel:        channel.ChannelType("telegram"),
		Text:           "hi there",
	})
	require.NoError(t, err)
	assert.Equal(t, "fallback", f.tenants.resolvedBy)
	assert.Equal(t, testConversationID, result.ConversationID)
}

func TestProcessCallbackRequiresTenantOrChannel(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{})

	_, err := f.processor.ProcessCallback(context.Background(), CallbackRequest{
		ConversationID: testConversationID,
		Text:           "hi",
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestProcessCallbackUsesFallbackBotToken(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{FallbackBotToken: "global-token"})
	f.tenants.settingsErr = fmt.Errorf("%w: telegram", tenant.ErrNotFound)

	result, err := f.processor.ProcessCallback(context.Background(), CallbackRequest{
		TenantID:       testTenantID,
		ConversationID: testConversationID,
		Text:           "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "global-token", f.adapter.sentCred.Token)
	assert.Equal(t, "555", result.ExternalMessageID)
}

func TestProcessCallbackMissingSettingsWithoutFallback(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{})
	f.tenants.settingsErr = fmt.Errorf("%w: telegram", tenant.ErrNotFound)

	_, err := f.processor.ProcessCallback(context.Background(), CallbackRequest{
		TenantID:       testTenantID,
		ConversationID: testConversationID,
		Text:           "hi",
	})
	var rerr *ResolutionError
	require.ErrorAs(t, err, &rerr)
	assert.Empty(t, f.adapter.sentText)
}

func TestProcessCallbackUnknownConversation(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{})

	_, err := f.processor.ProcessCallback(context.Background(), CallbackRequest{
		TenantID:       testTenantID,
		ConversationID: "99999999-9999-9999-9999-999999999999",
		Text:           "hi",
	})
	var rerr *ResolutionError
	require.ErrorAs(t, err, &rerr)
}

func TestProcessCallbackRequiresText(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{})

	_, err := f.processor.ProcessCallback(context.Background(), CallbackRequest{
		TenantID:       testTenantID,
		ConversationID: testConversationID,
		Text:           "   ",
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestProcessCallbackSendFailure(t *testing.T) {
	f := newFixture(t, config.PipelineConfig{})
	f.adapter.sendErr = &channel.SendError{Channel: channel.ChannelType("telegram"), Reason: "blocked"}

	_, err := f.processor.ProcessCallback(context.Background(), CallbackRequest{
		TenantID:       testTenantID,
		ConversationID: testConversationID,
		Text:           "hi",
	})
	var serr *channel.SendError
	require.ErrorAs(t, err, &serr)
	assert.Empty(t, f.messages.written)
}

func TestCallbackTokenExpires(t *testing.T) {
	token, err := generateCallbackToken("signing-key", -time.Minute,
		testTenantID, testConversationID, testContactID, channel.ChannelType("telegram"))
	require.NoError(t, err)

	_, err = verifyCallbackToken("signing-key", token)
	require.Error(t, err)
}
