package transcript

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/helllo-ai/voice-bridge/internal/store"
)

type captureStore struct {
	store.Store
	rec    *store.CallRecord
	nextID int64
}

func (c *captureStore) InsertCallDetails(ctx context.Context, rec *store.CallRecord) (int64, error) {
	c.rec = rec
	c.nextID++
	return c.nextID, nil
}

func TestMergeTurns(t *testing.T) {
	in := []Turn{
		{Role: RoleUser, Text: "hello"},
		{Role: RoleUser, Text: "is anyone there"},
		{Role: RoleAssistant, Text: "Namaste!"},
		{Role: RoleAssistant, Text: "How can I help?"},
		{Role: RoleUser, Text: "  "},
		{Role: RoleUser, Text: "one cake please"},
	}

	want := []Turn{
		{Role: RoleUser, Text: "hello is anyone there"},
		{Role: RoleAssistant, Text: "Namaste! How can I help?"},
		{Role: RoleUser, Text: "one cake please"},
	}

	got := MergeTurns(in)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeTurns = %+v, want %+v", got, want)
	}
}

func TestMergeTurns_Idempotent(t *testing.T) {
	in := []Turn{
		{Role: RoleUser, Text: "a"},
		{Role: RoleUser, Text: "b"},
		{Role: RoleAssistant, Text: "c"},
	}

	once := MergeTurns(in)
	twice := MergeTurns(once)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("Merge not idempotent: %+v vs %+v", once, twice)
	}
}

func TestManager_IgnoresEmptyFragments(t *testing.T) {
	m := NewManager(&captureStore{}, "s1", "bakery", zerolog.Nop())

	m.AddTurn(RoleUser, "")
	m.AddTurn(RoleUser, "   \n")
	if !m.Empty() {
		t.Error("Expected empty transcript")
	}
}

func TestManager_AccumulatesFragmentsPerSpeaker(t *testing.T) {
	m := NewManager(&captureStore{}, "s1", "bakery", zerolog.Nop())

	m.AddTurn(RoleUser, "I would ")
	m.AddTurn(RoleUser, "like a cake")
	m.AddTurn(RoleAssistant, "Of course! ")
	m.AddTurn(RoleAssistant, "What flavour?")

	turns := m.Turns()
	if len(turns) != 2 {
		t.Fatalf("Expected 2 turns, got %d: %+v", len(turns), turns)
	}
	if turns[0].Role != RoleUser || turns[0].Text != "I would like a cake" {
		t.Errorf("Wrong user turn: %+v", turns[0])
	}
	if turns[1].Role != RoleAssistant || turns[1].Text != "Of course! What flavour?" {
		t.Errorf("Wrong assistant turn: %+v", turns[1])
	}
}

func TestManager_FinalizePersistsMergedTranscript(t *testing.T) {
	cs := &captureStore{}
	m := NewManager(cs, "s1", "bakery", zerolog.Nop())
	m.SetCallIdentity("CA1", "ST1")

	m.AddTurn(RoleAssistant, "Namaste!")
	m.AddTurn(RoleUser, "hello")
	m.AddTurn(RoleUser, "a cake please")
	m.AddTurn(RoleAssistant, "Sure")

	id, err := m.Finalize(context.Background())
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if id != 1 {
		t.Errorf("Expected row id 1, got %d", id)
	}
	if cs.rec.CallSid != "CA1" || cs.rec.StreamSid != "ST1" || cs.rec.TenantID != "bakery" {
		t.Errorf("Wrong record identity: %+v", cs.rec)
	}

	var doc struct {
		SessionID    string `json:"session_id"`
		Conversation []Turn `json:"conversation"`
	}
	if err := json.Unmarshal(cs.rec.Transcript, &doc); err != nil {
		t.Fatalf("Transcript is not valid JSON: %v", err)
	}
	if doc.SessionID != "s1" {
		t.Errorf("Expected session_id 's1', got %q", doc.SessionID)
	}
	if len(doc.Conversation) != 3 {
		t.Fatalf("Expected 3 merged turns, got %d: %+v", len(doc.Conversation), doc.Conversation)
	}

	// After merging, adjacent turns must alternate in role and no turn may
	// be empty
	for i, turn := range doc.Conversation {
		if turn.Text == "" {
			t.Errorf("Turn %d has empty text", i)
		}
		if i > 0 && doc.Conversation[i-1].Role == turn.Role {
			t.Errorf("Adjacent turns %d and %d share role %s", i-1, i, turn.Role)
		}
	}
}

func TestManager_FinalizeExactlyOnce(t *testing.T) {
	m := NewManager(&captureStore{}, "s1", "bakery", zerolog.Nop())
	m.AddTurn(RoleUser, "hi")

	if _, err := m.Finalize(context.Background()); err != nil {
		t.Fatalf("First Finalize failed: %v", err)
	}
	if _, err := m.Finalize(context.Background()); err == nil {
		t.Error("Second Finalize must fail")
	}
}

func TestManager_Render(t *testing.T) {
	m := NewManager(&captureStore{}, "s1", "bakery", zerolog.Nop())
	m.AddTurn(RoleUser, "hello")
	m.AddTurn(RoleAssistant, "hi there")

	want := "user: hello\nassistant: hi there\n"
	if got := m.Render(); got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}
