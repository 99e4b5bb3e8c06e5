package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/helllo-ai/voice-bridge/internal/llm"
	"github.com/helllo-ai/voice-bridge/internal/observability"
	"github.com/helllo-ai/voice-bridge/internal/store"
	"github.com/helllo-ai/voice-bridge/internal/tokens"
)

// Dispatch statuses
const (
	StatusSuccess        = "success"
	StatusPartialFailure = "partial_failure"
	StatusError          = "error"
)

// Recipient types
const (
	RecipientCustomer = "customer"
	RecipientOwner    = "owner"
)

// customerCallTypes gates the caller-facing message
var customerCallTypes = map[string]bool{
	"Booking":       true,
	"Informational": true,
}

// generateFunc produces the four customer message components
type generateFunc func(ctx context.Context, callType string, keyDetails map[string]string, acc *tokens.Accumulator) map[string]string

// sendFunc posts one templated message
type sendFunc func(ctx context.Context, toNumber, templateName string, components map[string]string) error

// Dispatcher renders and sends the post-call WhatsApp messages and records
// each outcome
type Dispatcher struct {
	send              sendFunc
	generate          generateFunc
	st                store.Store
	defaultOwnerPhone string
	countryCode       string
	metrics           *observability.Metrics
	logger            zerolog.Logger
}

// NewDispatcher creates a notification dispatcher
func NewDispatcher(provider *Provider, llmClient *llm.Client, st store.Store, defaultOwnerPhone, countryCode string, metrics *observability.Metrics, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		send: provider.SendTemplate,
		generate: func(ctx context.Context, callType string, keyDetails map[string]string, acc *tokens.Accumulator) map[string]string {
			return GenerateCustomerMessage(ctx, llmClient, callType, keyDetails, acc)
		},
		st:                st,
		defaultOwnerPhone: defaultOwnerPhone,
		countryCode:       countryCode,
		metrics:           metrics,
		logger:            logger,
	}
}

// Input carries everything a dispatch needs
type Input struct {
	CallSid     string
	Tenant      *store.TenantConfig
	CallerPhone string
	Analysis    *llm.Analysis
	Accumulator *tokens.Accumulator
}

// Dispatch sends the caller message (only for whitelisted call types with a
// usable caller phone) and always attempts the owner message. Returns the
// overall status: success when every attempted send succeeded,
// partial_failure when at least one did, error otherwise.
func (d *Dispatcher) Dispatch(ctx context.Context, in Input) string {
	if in.Analysis == nil {
		d.logger.Warn().Str("call_sid", in.CallSid).Msg("No analysis available, skipping notifications")
		return StatusError
	}

	attempted := 0
	succeeded := 0

	if d.shouldNotifyCustomer(in) {
		attempted++
		if d.sendCustomer(ctx, in) {
			succeeded++
		}
	} else {
		d.logger.Info().
			Str("call_sid", in.CallSid).
			Str("call_type", in.Analysis.CallType).
			Msg("Caller notification not applicable")
	}

	attempted++
	if d.sendOwner(ctx, in) {
		succeeded++
	}

	switch {
	case succeeded == attempted:
		return StatusSuccess
	case succeeded > 0:
		return StatusPartialFailure
	default:
		return StatusError
	}
}

func (d *Dispatcher) shouldNotifyCustomer(in Input) bool {
	if !customerCallTypes[in.Analysis.CallType] {
		return false
	}
	_, err := NormalizePhone(in.CallerPhone, d.countryCode)
	return err == nil
}

func (d *Dispatcher) sendCustomer(ctx context.Context, in Input) bool {
	phone, err := NormalizePhone(in.CallerPhone, d.countryCode)
	if err != nil {
		d.logger.Error().Err(err).Str("call_sid", in.CallSid).Msg("Invalid caller phone")
		return false
	}

	components := d.generate(ctx, in.Analysis.CallType, in.Analysis.KeyDetails, in.Accumulator)

	err = d.send(ctx, phone, CustomerTemplate, components)
	d.record(ctx, in.CallSid, phone, RecipientCustomer, err, components)
	return err == nil
}

func (d *Dispatcher) sendOwner(ctx context.Context, in Input) bool {
	rawOwner := in.Tenant.BranchHeadPhone
	if rawOwner == "" {
		d.logger.Warn().
			Str("call_sid", in.CallSid).
			Str("tenant", in.Tenant.TenantID).
			Msg("No tenant owner phone, using default")
		rawOwner = d.defaultOwnerPhone
	}
	phone, err := NormalizePhone(rawOwner, d.countryCode)
	if err != nil {
		d.logger.Error().Err(err).Str("call_sid", in.CallSid).Msg("Invalid owner phone")
		return false
	}

	customerPhone, _ := NormalizePhone(in.CallerPhone, d.countryCode)
	components := OwnerComponents(customerPhone, in.Analysis.CallType, in.Analysis.Summary, in.Analysis.KeyDetails)

	err = d.send(ctx, phone, OwnerTemplate, components)
	d.record(ctx, in.CallSid, phone, RecipientOwner, err, components)
	return err == nil
}

// record persists one per-recipient outcome
func (d *Dispatcher) record(ctx context.Context, callSid, recipient, recipientType string, sendErr error, components map[string]string) {
	status := StatusSuccess
	if sendErr != nil {
		status = StatusError
		d.logger.Error().Err(sendErr).
			Str("call_sid", callSid).
			Str("recipient_type", recipientType).
			Msg("Notification send failed")
	}
	if d.metrics != nil {
		d.metrics.RecordNotification(recipientType, status)
	}

	payload, _ := json.Marshal(components)
	err := d.st.InsertNotification(ctx, &store.Notification{
		CallSid:          callSid,
		NotificationType: "whatsapp",
		Recipient:        recipient,
		RecipientType:    recipientType,
		Status:           status,
		Payload:          payload,
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		d.logger.Error().Err(err).Str("call_sid", callSid).Msg("Failed to record notification")
	}
}
