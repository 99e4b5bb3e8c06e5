package store

import (
	"context"
	"time"
)

// TenantConfig is one row of the tenant_configs table
type TenantConfig struct {
	TenantID         string
	IsActive         bool
	BranchName       string
	BranchHeadPhone  string
	AssistantPrompt  string
	AnalyzerPrompt   string
	AllowedCallTypes []string
	GreetingLanguage string
	WelcomeMessage   string
}

// CallRecord is the call_details row written when a transcript is finalized
type CallRecord struct {
	CallSid    string
	StreamSid  string
	TenantID   string
	Transcript []byte // JSON: {session_id, conversation: [{role, text}]}
}

// ExotelCallDetail is the canonical telephony record fetched after hangup
type ExotelCallDetail struct {
	CallSid      string
	FromNumber   string
	ToNumber     string
	Status       string
	StartTime    string
	EndTime      string
	Duration     string
	Price        string
	Direction    string
	RecordingURL string
}

// Notification is one dispatched message outcome
type Notification struct {
	CallSid          string
	NotificationType string
	Recipient        string
	RecipientType    string
	Status           string
	Payload          []byte
	CreatedAt        time.Time
}

// Store is the persistence surface used by the bridge
type Store interface {
	// TenantConfig returns the config row for a tenant id, or ErrNotFound
	TenantConfig(ctx context.Context, tenantID string) (*TenantConfig, error)
	// InsertCallDetails inserts the finalized call record and returns the
	// server-generated row id
	InsertCallDetails(ctx context.Context, rec *CallRecord) (int64, error)
	// UpdateCallAnalysis writes call_type and critical_call_details for a call
	UpdateCallAnalysis(ctx context.Context, callSid, callType string, details []byte) error
	// UpdateTokenUsage writes the ai_token_usage summary for a call
	UpdateTokenUsage(ctx context.Context, callSid string, summary []byte) error
	// InsertExotelCallDetails inserts the fetched telephony record
	InsertExotelCallDetails(ctx context.Context, detail *ExotelCallDetail) error
	// InsertNotification records one dispatched notification outcome
	InsertNotification(ctx context.Context, n *Notification) error
	// Ping verifies connectivity for readiness probes
	Ping(ctx context.Context) error
}
