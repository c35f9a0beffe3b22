// Package automation stores automation rules and dispatches trigger events
// to their webhook endpoints.
package automation

import (
	"time"
)

// Trigger events emitted by the inbound pipeline.
const (
	TriggerMessageReceived     = "message_received"
	TriggerConversationStarted = "conversation_started"
	TriggerContactCreated      = "contact_created"
)

// Dispatch log statuses. A log row is created as pending before the HTTP
// call and finalized afterwards.
const (
	LogStatusPending = "pending"
	LogStatusSuccess = "success"
	LogStatusError   = "error"
)

// Automation is one webhook rule: when trigger_event fires for the tenant,
// the event payload is POSTed to webhook_url.
type Automation struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	Name           string    `json:"name"`
	TriggerEvent   string    `json:"trigger_event"`
	WebhookURL     string    `json:"webhook_url"`
	Secret         string    `json:"secret,omitempty"`
	IsActive       bool      `json:"is_active"`
	IsPaused       bool      `json:"is_paused"`
	ExecutionCount int64     `json:"execution_count"`
	ErrorCount     int64     `json:"error_count"`
	LastExecutedAt time.Time `json:"last_executed_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Runnable reports whether the automation should receive dispatches.
func (a Automation) Runnable() bool {
	return a.IsActive && !a.IsPaused
}

// CreateParams carries the writable automation fields.
type CreateParams struct {
	Name         string `json:"name" validate:"required"`
	TriggerEvent string `json:"trigger_event" validate:"required"`
	WebhookURL   string `json:"webhook_url" validate:"required,url"`
	Secret       string `json:"secret"`
}

// Log is one dispatch attempt record.
type Log struct {
	ID             string    `json:"id"`
	AutomationID   string    `json:"automation_id"`
	TenantID       string    `json:"tenant_id"`
	TriggerEvent   string    `json:"trigger_event"`
	Status         string    `json:"status"`
	ErrorDetail    string    `json:"error_detail,omitempty"`
	PayloadSummary string    `json:"payload_summary,omitempty"`
	DurationMS     int64     `json:"duration_ms"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
