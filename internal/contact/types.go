// Package contact manages contact records and identity-based resolution of
// inbound senders to contacts.
package contact

import (
	"strings"
	"time"

	"github.com/relaydesk/relaydesk/internal/channel"
)

// Contact statuses. New contacts created by the pipeline start as leads.
const (
	StatusLead     = "lead"
	StatusCustomer = "customer"
	StatusArchived = "archived"
)

// Contact is a person reaching the tenant over one or more channels. The
// identities map carries per-channel keys such as "telegram_id" and
// "telegram_username".
type Contact struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenant_id"`
	DisplayName string            `json:"display_name"`
	Identities  map[string]string `json:"identities"`
	Status      string            `json:"status"`
	Source      string            `json:"source"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// IdentityKeys builds the identities map entries for a channel identity.
// Empty fields are omitted so lookups never match on blank values.
func IdentityKeys(channelType channel.ChannelType, identity channel.Identity) map[string]string {
	keys := make(map[string]string, 2)
	prefix := channelType.String()
	if id := strings.TrimSpace(identity.SubjectID); id != "" {
		keys[prefix+"_id"] = id
	}
	if username := strings.TrimSpace(identity.Username); username != "" {
		keys[prefix+"_username"] = username
	}
	return keys
}
