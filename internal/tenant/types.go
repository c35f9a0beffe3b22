// Package tenant manages tenant records and their typed per-channel
// configuration, including credential-indexed tenant resolution for
// inbound webhook traffic.
package tenant

import (
	"time"

	"github.com/relaydesk/relaydesk/internal/channel"
)

// Tenant is one isolated workspace. All pipeline records hang off a tenant.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChannelSettings is the typed configuration of one channel for one tenant.
// There is at most one row per (tenant, channel).
type ChannelSettings struct {
	TenantID string              `json:"tenant_id"`
	Channel  channel.ChannelType `json:"channel"`
	// BotToken authenticates outbound calls to the provider.
	BotToken string `json:"bot_token"`
	// WebhookSecret is echoed back by the provider on inbound deliveries and
	// doubles as the credential hint for tenant resolution.
	WebhookSecret string `json:"webhook_secret"`
	// WebhookURL is the inbound URL registered with the provider.
	WebhookURL string `json:"webhook_url"`
	// DispatchSecret signs automation dispatches for this channel, overriding
	// the automation's own secret when set.
	DispatchSecret   string    `json:"dispatch_secret"`
	WebhookStatus    string    `json:"webhook_status"`
	WebhookCheckedAt time.Time `json:"webhook_checked_at"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Credential extracts the adapter credential from the settings.
func (s ChannelSettings) Credential() channel.Credential {
	return channel.Credential{Token: s.BotToken}
}

// UpsertSettingsParams carries the writable settings fields.
type UpsertSettingsParams struct {
	Channel        channel.ChannelType `json:"channel" validate:"required"`
	BotToken       string              `json:"bot_token" validate:"required"`
	WebhookSecret  string              `json:"webhook_secret"`
	WebhookURL     string              `json:"webhook_url" validate:"omitempty,url"`
	DispatchSecret string              `json:"dispatch_secret"`
}
