package tokens

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"github.com/helllo-ai/voice-bridge/internal/store"
)

type captureStore struct {
	store.Store
	callSid string
	summary []byte
	saves   int
}

func (c *captureStore) UpdateTokenUsage(ctx context.Context, callSid string, summary []byte) error {
	c.callSid = callSid
	c.summary = summary
	c.saves++
	return nil
}

func TestAccumulator_ConversationSums(t *testing.T) {
	a := NewAccumulator(&captureStore{}, "CA1", zerolog.Nop())

	a.AddConversationTokens([]ConversationUsage{
		{Total: 100, Prompt: 60, Response: 40, ResponseByModality: map[string]int{"AUDIO": 30, "TEXT": 10}},
		{Total: 50, Prompt: 30, Response: 20, ResponseByModality: map[string]int{"AUDIO": 20}},
	}, "gemini-live")

	summary := a.Summary()
	conv := summary[OpConversation].(*conversationEntry)
	if conv.TotalTokens != 150 || conv.InputTokens != 90 || conv.OutputTokens != 60 {
		t.Errorf("Wrong conversation totals: %+v", conv)
	}
	if conv.ResponseBreakdown["AUDIO"] != 50 || conv.ResponseBreakdown["TEXT"] != 10 {
		t.Errorf("Wrong modality breakdown: %+v", conv.ResponseBreakdown)
	}
}

func TestAccumulator_ConversationReplaceNotDouble(t *testing.T) {
	a := NewAccumulator(&captureStore{}, "CA1", zerolog.Nop())

	usage := []ConversationUsage{{Total: 100, Prompt: 60, Response: 40}}
	a.AddConversationTokens(usage, "gemini-live")
	a.AddConversationTokens(usage, "gemini-live")

	if got := a.GrandTotal(); got != 100 {
		t.Errorf("Expected grand total 100 after repeated add, got %d", got)
	}
}

func TestAccumulator_AnalysisReplaceNotDouble(t *testing.T) {
	a := NewAccumulator(&captureStore{}, "CA1", zerolog.Nop())

	usage := GenerateUsage{Total: 80, Prompt: 50, Candidates: 20, Thoughts: 10}
	a.AddAnalysisTokens(usage, "gemini-2.5-flash")
	a.AddAnalysisTokens(usage, "gemini-2.5-flash")

	if got := a.GrandTotal(); got != 80 {
		t.Errorf("Expected grand total 80 after repeated add, got %d", got)
	}
}

func TestAccumulator_GrandTotalSumsOperations(t *testing.T) {
	a := NewAccumulator(&captureStore{}, "CA1", zerolog.Nop())

	a.AddConversationTokens([]ConversationUsage{{Total: 100}}, "live")
	a.AddAnalysisTokens(GenerateUsage{Total: 30}, "flash")
	a.AddWhatsappTokens(GenerateUsage{Total: 20}, "flash")

	if got := a.GrandTotal(); got != 150 {
		t.Errorf("Expected grand total 150, got %d", got)
	}
}

func TestAccumulator_MissingOperationsContributeZero(t *testing.T) {
	a := NewAccumulator(&captureStore{}, "CA1", zerolog.Nop())
	a.AddAnalysisTokens(GenerateUsage{Total: 30}, "flash")

	summary := a.Summary()
	if _, ok := summary[OpConversation]; ok {
		t.Error("Missing conversation entry must be omitted")
	}
	if summary["total_tokens_all_operations"].(int) != 30 {
		t.Errorf("Expected grand total 30, got %v", summary["total_tokens_all_operations"])
	}
}

func TestAccumulator_Save(t *testing.T) {
	cs := &captureStore{}
	a := NewAccumulator(cs, "CA1", zerolog.Nop())
	a.AddConversationTokens([]ConversationUsage{{Total: 10, Prompt: 6, Response: 4}}, "live")
	a.AddWhatsappTokens(GenerateUsage{Total: 5, Prompt: 3, Candidates: 2}, "flash")

	if err := a.Save(context.Background()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if cs.callSid != "CA1" {
		t.Errorf("Saved under wrong call sid: %s", cs.callSid)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(cs.summary, &decoded); err != nil {
		t.Fatalf("Summary is not valid JSON: %v", err)
	}
	for _, key := range []string{OpConversation, OpWhatsappGeneration, "total_tokens_all_operations"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("Summary missing key %q", key)
		}
	}

	var grand int
	json.Unmarshal(decoded["total_tokens_all_operations"], &grand)
	if grand != 15 {
		t.Errorf("Expected persisted grand total 15, got %d", grand)
	}
}

func TestAccumulator_SaveEmptyIsNoop(t *testing.T) {
	cs := &captureStore{}
	a := NewAccumulator(cs, "CA1", zerolog.Nop())

	if err := a.Save(context.Background()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if cs.saves != 0 {
		t.Error("Empty accumulator must not write to the store")
	}
}
