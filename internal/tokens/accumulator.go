package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/helllo-ai/voice-bridge/internal/store"
)

// Operation names under which usage is recorded
const (
	OpConversation       = "conversation"
	OpTranscriptAnalysis = "transcript_analysis"
	OpWhatsappGeneration = "whatsapp_generation"
)

// ConversationUsage is one usage record from the Live stream
type ConversationUsage struct {
	Total              int
	Prompt             int
	Response           int
	PromptByModality   map[string]int
	ResponseByModality map[string]int
}

// GenerateUsage is the usage shape of a one-shot generate call
type GenerateUsage struct {
	Total      int
	Prompt     int
	Candidates int
	Thoughts   int
}

type conversationEntry struct {
	Model             string         `json:"model"`
	TotalTokens       int            `json:"total_tokens"`
	InputTokens       int            `json:"input_tokens"`
	OutputTokens      int            `json:"output_tokens"`
	PromptBreakdown   map[string]int `json:"prompt_breakdown,omitempty"`
	ResponseBreakdown map[string]int `json:"response_breakdown,omitempty"`
}

type generateEntry struct {
	Model            string `json:"model"`
	TotalTokens      int    `json:"total_tokens"`
	PromptTokens     int    `json:"prompt_tokens"`
	CandidatesTokens int    `json:"candidates_tokens"`
	ThoughtsTokens   int    `json:"thoughts_tokens"`
}

// Accumulator aggregates AI token usage for one call across the three
// operations and persists a single merged summary. Each Add replaces the
// entry for its operation, so repeated calls are idempotent.
type Accumulator struct {
	mu           sync.Mutex
	callSid      string
	conversation *conversationEntry
	analysis     *generateEntry
	whatsapp     *generateEntry

	st     store.Store
	logger zerolog.Logger
}

// NewAccumulator creates a token accumulator for a call
func NewAccumulator(st store.Store, callSid string, logger zerolog.Logger) *Accumulator {
	return &Accumulator{
		st:      st,
		callSid: callSid,
		logger:  logger,
	}
}

// AddConversationTokens sums the usage records collected during streaming
// under the conversation key. Later calls replace earlier totals.
func (a *Accumulator) AddConversationTokens(usage []ConversationUsage, model string) {
	entry := &conversationEntry{Model: model}
	for _, u := range usage {
		entry.TotalTokens += u.Total
		entry.InputTokens += u.Prompt
		entry.OutputTokens += u.Response
		for modality, n := range u.PromptByModality {
			if entry.PromptBreakdown == nil {
				entry.PromptBreakdown = make(map[string]int)
			}
			entry.PromptBreakdown[modality] += n
		}
		for modality, n := range u.ResponseByModality {
			if entry.ResponseBreakdown == nil {
				entry.ResponseBreakdown = make(map[string]int)
			}
			entry.ResponseBreakdown[modality] += n
		}
	}

	a.mu.Lock()
	a.conversation = entry
	a.mu.Unlock()

	a.logger.Debug().
		Str("call_sid", a.callSid).
		Int("total_tokens", entry.TotalTokens).
		Msg("Recorded conversation tokens")
}

// AddAnalysisTokens records the transcript analysis usage. Replaces any
// earlier entry.
func (a *Accumulator) AddAnalysisTokens(usage GenerateUsage, model string) {
	a.mu.Lock()
	a.analysis = newGenerateEntry(usage, model)
	a.mu.Unlock()
}

// AddWhatsappTokens records the message generation usage. Replaces any
// earlier entry.
func (a *Accumulator) AddWhatsappTokens(usage GenerateUsage, model string) {
	a.mu.Lock()
	a.whatsapp = newGenerateEntry(usage, model)
	a.mu.Unlock()
}

func newGenerateEntry(u GenerateUsage, model string) *generateEntry {
	return &generateEntry{
		Model:            model,
		TotalTokens:      u.Total,
		PromptTokens:     u.Prompt,
		CandidatesTokens: u.Candidates,
		ThoughtsTokens:   u.Thoughts,
	}
}

// Summary returns the merged summary as a JSON-ready map. Missing operations
// contribute zero to the grand total and are omitted.
func (a *Accumulator) Summary() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()

	summary := make(map[string]any)
	total := 0
	if a.conversation != nil {
		summary[OpConversation] = a.conversation
		total += a.conversation.TotalTokens
	}
	if a.analysis != nil {
		summary[OpTranscriptAnalysis] = a.analysis
		total += a.analysis.TotalTokens
	}
	if a.whatsapp != nil {
		summary[OpWhatsappGeneration] = a.whatsapp
		total += a.whatsapp.TotalTokens
	}
	summary["total_tokens_all_operations"] = total
	return summary
}

// GrandTotal returns the sum of total tokens across all operations
func (a *Accumulator) GrandTotal() int {
	return a.Summary()["total_tokens_all_operations"].(int)
}

// Empty reports whether no usage has been recorded
func (a *Accumulator) Empty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conversation == nil && a.analysis == nil && a.whatsapp == nil
}

// Save writes the JSON summary under ai_token_usage for the call. Saving
// with no recorded usage is a no-op success.
func (a *Accumulator) Save(ctx context.Context) error {
	if a.Empty() {
		a.logger.Debug().Str("call_sid", a.callSid).Msg("No token usage to save")
		return nil
	}

	payload, err := json.Marshal(a.Summary())
	if err != nil {
		return fmt.Errorf("encode token summary: %w", err)
	}
	if err := a.st.UpdateTokenUsage(ctx, a.callSid, payload); err != nil {
		return fmt.Errorf("save token summary: %w", err)
	}

	a.logger.Info().
		Str("call_sid", a.callSid).
		Int("total_tokens", a.GrandTotal()).
		Msg("Saved token usage summary")
	return nil
}
