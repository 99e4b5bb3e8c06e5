package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"google.golang.org/genai"

	"github.com/helllo-ai/voice-bridge/internal/tokens"
)

// CallTypeOthers is the coercion target for classifications outside the
// tenant's allowed set
const CallTypeOthers = "Others"

// FailedAnalysisSummary is the generic summary used when the analyzer output
// cannot be validated
const FailedAnalysisSummary = "Failed to analyze the call transcript."

// Analysis is the structured extraction produced from a transcript
type Analysis struct {
	CallType   string            `json:"call_type"`
	Summary    string            `json:"summary"`
	KeyDetails map[string]string `json:"key_details"`
}

// CriticalDetailsJSON renders the analysis as the critical_call_details blob
func (a *Analysis) CriticalDetailsJSON() ([]byte, error) {
	return json.Marshal(a)
}

// AnalyzeTranscript classifies and structures a rendered transcript using the
// tenant's analyzer prompt. The model is asked for JSON output; the response
// is validated and coerced so any model reply yields a usable Analysis. An
// empty transcript or a failed model call returns a nil Analysis and an error.
func (c *Client) AnalyzeTranscript(ctx context.Context, analyzerPrompt, renderedTranscript string, allowedTypes []string) (*Analysis, tokens.GenerateUsage, error) {
	var usage tokens.GenerateUsage

	if strings.TrimSpace(renderedTranscript) == "" {
		return nil, usage, fmt.Errorf("transcript is empty, skipping analysis")
	}

	prompt := buildAnalyzerPrompt(analyzerPrompt, renderedTranscript, allowedTypes)

	resp, err := c.genai.Models.GenerateContent(ctx, c.genModel, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, usage, fmt.Errorf("analyze transcript: %w", err)
	}

	usage = decodeGenerateUsage(resp.UsageMetadata)

	analysis := ParseAnalysis(resp.Text(), allowedTypes)
	c.logger.Info().
		Str("call_type", analysis.CallType).
		Int("key_details", len(analysis.KeyDetails)).
		Msg("Transcript analyzed")
	return analysis, usage, nil
}

func buildAnalyzerPrompt(analyzerPrompt, renderedTranscript string, allowedTypes []string) string {
	var b strings.Builder
	b.WriteString(analyzerPrompt)
	b.WriteString("\n\nClassify call_type as one of: ")
	b.WriteString(strings.Join(allowedTypes, ", "))
	b.WriteString(".\nRespond with a JSON object containing call_type, summary, and key_details.\n\nTranscript:\n---\n")
	b.WriteString(renderedTranscript)
	b.WriteString("---\n")
	return b.String()
}

// ParseAnalysis decodes the analyzer response and enforces the required keys:
// a call_type within the allowed set (else Others), a summary string, and a
// key_details object. Unparseable responses yield the failure analysis.
func ParseAnalysis(text string, allowedTypes []string) *Analysis {
	raw := ExtractJSON(text)
	if raw == nil {
		return failedAnalysis()
	}

	var decoded struct {
		CallType   string         `json:"call_type"`
		Summary    string         `json:"summary"`
		KeyDetails map[string]any `json:"key_details"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return failedAnalysis()
	}
	if decoded.CallType == "" || decoded.Summary == "" {
		return failedAnalysis()
	}

	analysis := &Analysis{
		CallType:   decoded.CallType,
		Summary:    decoded.Summary,
		KeyDetails: make(map[string]string, len(decoded.KeyDetails)),
	}

	if !containsType(allowedTypes, analysis.CallType) {
		analysis.CallType = CallTypeOthers
	}
	for k, v := range decoded.KeyDetails {
		if v == nil {
			continue
		}
		analysis.KeyDetails[k] = fmt.Sprintf("%v", v)
	}

	return analysis
}

func failedAnalysis() *Analysis {
	return &Analysis{
		CallType:   CallTypeOthers,
		Summary:    FailedAnalysisSummary,
		KeyDetails: map[string]string{},
	}
}

func containsType(allowed []string, t string) bool {
	for _, a := range allowed {
		if strings.EqualFold(a, t) {
			return true
		}
	}
	return false
}

var codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ExtractJSON returns the JSON object in text, unwrapping a code fence if the
// model added one. Returns nil when no parseable object is found.
func ExtractJSON(text string) []byte {
	trimmed := strings.TrimSpace(text)
	if json.Valid([]byte(trimmed)) && strings.HasPrefix(trimmed, "{") {
		return []byte(trimmed)
	}
	if m := codeFenceRe.FindStringSubmatch(trimmed); m != nil {
		inner := strings.TrimSpace(m[1])
		if json.Valid([]byte(inner)) && strings.HasPrefix(inner, "{") {
			return []byte(inner)
		}
	}
	return nil
}

// GenerateText runs a one-shot generation with a system instruction,
// returning the raw text and its token usage. Used for WhatsApp message
// generation.
func (c *Client) GenerateText(ctx context.Context, systemInstruction, prompt string) (string, tokens.GenerateUsage, error) {
	var usage tokens.GenerateUsage

	resp, err := c.genai.Models.GenerateContent(ctx, c.genModel, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.7),
		TopP:            genai.Ptr[float32](0.95),
		MaxOutputTokens: 1024,
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		},
	})
	if err != nil {
		return "", usage, fmt.Errorf("generate text: %w", err)
	}

	usage = decodeGenerateUsage(resp.UsageMetadata)
	return resp.Text(), usage, nil
}

func decodeGenerateUsage(um *genai.GenerateContentResponseUsageMetadata) tokens.GenerateUsage {
	if um == nil {
		return tokens.GenerateUsage{}
	}
	return tokens.GenerateUsage{
		Total:      int(um.TotalTokenCount),
		Prompt:     int(um.PromptTokenCount),
		Candidates: int(um.CandidatesTokenCount),
		Thoughts:   int(um.ThoughtsTokenCount),
	}
}
