package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/helllo-ai/voice-bridge/internal/resilience"
)

const defaultBulkURL = "https://api.msg91.com/api/v5/whatsapp/whatsapp-outbound-message/bulk/"

// Template names on the provider side
const (
	CustomerTemplate = "service_message"
	OwnerTemplate    = "owner_message"
)

// Provider sends templated WhatsApp messages through the MSG91 bulk outbound
// endpoint. It is safe for concurrent use.
type Provider struct {
	httpClient       *http.Client
	apiURL           string
	authKey          string
	integratedNumber string
	namespace        string
	retryCfg         *resilience.RetryConfig
	logger           zerolog.Logger
}

// NewProvider creates an MSG91 provider
func NewProvider(authKey, integratedNumber, namespace string, retryCfg *resilience.RetryConfig, logger zerolog.Logger) *Provider {
	if authKey == "" {
		logger.Warn().Msg("MSG91 provider initialized without auth key")
	}
	return &Provider{
		httpClient:       &http.Client{Timeout: 10 * time.Second},
		apiURL:           defaultBulkURL,
		authKey:          authKey,
		integratedNumber: integratedNumber,
		namespace:        namespace,
		retryCfg:         retryCfg,
		logger:           logger,
	}
}

// Configured reports whether the provider can send
func (p *Provider) Configured() bool {
	return p.authKey != ""
}

type textComponent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type recipient struct {
	To         []string                 `json:"to"`
	Components map[string]textComponent `json:"components"`
}

type templatePayload struct {
	Name      string            `json:"name"`
	Language  map[string]string `json:"language"`
	Namespace string            `json:"namespace"`
	ToAndComp []recipient       `json:"to_and_components"`
}

type bulkPayload struct {
	IntegratedNumber string `json:"integrated_number"`
	ContentType      string `json:"content_type"`
	Payload          struct {
		MessagingProduct string          `json:"messaging_product"`
		Type             string          `json:"type"`
		Template         templatePayload `json:"template"`
	} `json:"payload"`
}

// SendTemplate posts one templated message to a recipient. Network errors and
// 5xx responses are retried with exponential backoff.
func (p *Provider) SendTemplate(ctx context.Context, toNumber, templateName string, components map[string]string) error {
	if !p.Configured() {
		return fmt.Errorf("MSG91 auth key not configured")
	}

	comp := make(map[string]textComponent, len(components))
	for k, v := range components {
		comp[k] = textComponent{Type: "text", Value: v}
	}

	payload := bulkPayload{
		IntegratedNumber: p.integratedNumber,
		ContentType:      "template",
	}
	payload.Payload.MessagingProduct = "whatsapp"
	payload.Payload.Type = "template"
	payload.Payload.Template = templatePayload{
		Name:      templateName,
		Language:  map[string]string{"code": "en", "policy": "deterministic"},
		Namespace: p.namespace,
		ToAndComp: []recipient{{To: []string{toNumber}, Components: comp}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode MSG91 payload: %w", err)
	}

	return resilience.Retry(ctx, func() error {
		return p.sendOnce(ctx, toNumber, templateName, body)
	}, p.retryCfg, resilience.IsRetryableNetworkError)
}

func (p *Provider) sendOnce(ctx context.Context, toNumber, templateName string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build MSG91 request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("authkey", p.authKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("MSG91 request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode >= 500 {
		return fmt.Errorf("MSG91 returned status %d: unavailable", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("MSG91 returned status %d: %s", resp.StatusCode, string(respBody))
	}

	p.logger.Info().
		Str("to", toNumber).
		Str("template", templateName).
		Msg("WhatsApp message sent")
	return nil
}
