package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/helllo-ai/voice-bridge/internal/resilience"
)

// CallDetail is the canonical call record returned by the Exotel REST API
type CallDetail struct {
	Sid          string `json:"Sid"`
	From         string `json:"From"`
	To           string `json:"To"`
	Status       string `json:"Status"`
	StartTime    string `json:"StartTime"`
	EndTime      string `json:"EndTime"`
	Duration     string `json:"Duration"`
	Price        string `json:"Price"`
	Direction    string `json:"Direction"`
	RecordingUrl string `json:"RecordingUrl"`
}

type callEnvelope struct {
	Call *CallDetail `json:"Call"`
}

// RestClient fetches canonical call records after hangup
type RestClient struct {
	httpClient *http.Client
	apiKey     string
	apiToken   string
	accountSid string
	subdomain  string
	retryCfg   *resilience.RetryConfig
	logger     zerolog.Logger
}

// NewRestClient creates an Exotel REST client with basic-auth credentials
func NewRestClient(apiKey, apiToken, accountSid, subdomain string, retryCfg *resilience.RetryConfig, logger zerolog.Logger) *RestClient {
	return &RestClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiKey:     apiKey,
		apiToken:   apiToken,
		accountSid: accountSid,
		subdomain:  subdomain,
		retryCfg:   retryCfg,
		logger:     logger,
	}
}

// Configured reports whether REST credentials are present
func (c *RestClient) Configured() bool {
	return c.apiKey != "" && c.apiToken != "" && c.accountSid != ""
}

// FetchCallDetail retrieves the canonical call record for a call sid. A
// missing Call envelope is an error; transient failures are retried with
// backoff.
func (c *RestClient) FetchCallDetail(ctx context.Context, callSid string) (*CallDetail, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("exotel REST credentials not configured")
	}

	url := fmt.Sprintf("https://%s/v1/Accounts/%s/Calls/%s.json", c.subdomain, c.accountSid, callSid)

	var detail *CallDetail
	err := resilience.Retry(ctx, func() error {
		d, err := c.fetchOnce(ctx, url)
		if err != nil {
			return err
		}
		detail = d
		return nil
	}, c.retryCfg, resilience.IsRetryableNetworkError)
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func (c *RestClient) fetchOnce(ctx context.Context, url string) (*CallDetail, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build call detail request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call detail request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read call detail response: %w", err)
	}

	if resp.StatusCode >= 500 {
		// 5xx is transient and worth another attempt
		return nil, fmt.Errorf("call detail request: status %d: unavailable", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("call detail request: status %d", resp.StatusCode)
	}

	var envelope callEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode call detail response: %w", err)
	}
	if envelope.Call == nil {
		return nil, fmt.Errorf("call detail response missing Call envelope")
	}

	c.logger.Debug().
		Str("call_sid", envelope.Call.Sid).
		Str("status", envelope.Call.Status).
		Msg("Fetched call detail")

	return envelope.Call, nil
}
