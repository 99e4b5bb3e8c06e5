package session

import (
	"context"
	"errors"
	"testing"

	"github.com/helllo-ai/voice-bridge/internal/llm"
	"github.com/helllo-ai/voice-bridge/internal/tokens"
	"github.com/helllo-ai/voice-bridge/internal/transcript"
)

func stubAnalyzer(s *Session, analysis *llm.Analysis, usage tokens.GenerateUsage, err error) *[]string {
	var calls []string
	s.analyze = func(ctx context.Context, analyzerPrompt, rendered string, allowed []string) (*llm.Analysis, tokens.GenerateUsage, error) {
		calls = append(calls, rendered)
		return analysis, usage, err
	}
	return &calls
}

func TestPostCall_EmptyTranscriptPersistsNoRecord(t *testing.T) {
	fs := &fakeSessionStore{}
	s, _ := testSession(fs)
	calls := stubAnalyzer(s, nil, tokens.GenerateUsage{}, errors.New("must not be called"))

	s.runPostCall()

	if len(fs.callRecords) != 0 {
		t.Errorf("Expected no call record for empty transcript, got %d", len(fs.callRecords))
	}
	if len(*calls) != 0 {
		t.Error("Analyzer must not run without a persisted transcript")
	}
	if len(fs.analyses) != 0 {
		t.Errorf("Expected no analysis update, got %v", fs.analyses)
	}
}

func TestPostCall_FinalizesAndAnalyzes(t *testing.T) {
	fs := &fakeSessionStore{}
	s, _ := testSession(fs)
	s.transcript.AddTurn(transcript.RoleAssistant, "Namaste!")
	s.transcript.AddTurn(transcript.RoleUser, "I want to book a cake")
	s.recordUsage(tokens.ConversationUsage{Total: 120, Prompt: 70, Response: 50})

	stubAnalyzer(s, &llm.Analysis{
		CallType:   "Booking",
		Summary:    "Cake order.",
		KeyDetails: map[string]string{"customer_name": "Sandy"},
	}, tokens.GenerateUsage{Total: 40, Prompt: 30, Candidates: 10}, nil)

	s.runPostCall()

	if len(fs.callRecords) != 1 {
		t.Fatalf("Expected 1 call record, got %d", len(fs.callRecords))
	}
	if fs.analyses["CA1"] != "Booking" {
		t.Errorf("Expected analysis update with Booking, got %v", fs.analyses)
	}
	if fs.tokenSaves != 1 {
		t.Errorf("Expected 1 token summary save, got %d", fs.tokenSaves)
	}
}

func TestPostCall_AnalyzerErrorCoerces(t *testing.T) {
	fs := &fakeSessionStore{}
	s, _ := testSession(fs)
	s.transcript.AddTurn(transcript.RoleUser, "hello")

	stubAnalyzer(s, nil, tokens.GenerateUsage{}, errors.New("model unavailable"))

	s.runPostCall()

	if fs.analyses["CA1"] != llm.CallTypeOthers {
		t.Errorf("Expected coercion to Others on analyzer failure, got %v", fs.analyses)
	}
}

func TestPostCall_NoCallSidSkipsRestFetch(t *testing.T) {
	fs := &fakeSessionStore{}
	s, _ := testSession(fs)
	s.callSid = ""

	s.runPostCall()

	if len(fs.exotelDetails) != 0 {
		t.Errorf("Expected no REST fetch without call sid, got %d", len(fs.exotelDetails))
	}
}
