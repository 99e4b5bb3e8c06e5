package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/helllo-ai/voice-bridge/internal/store"
)

// Turn roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one role-attributed text fragment of a conversation
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// persisted transcript layout
type document struct {
	SessionID    string `json:"session_id"`
	Conversation []Turn `json:"conversation"`
}

// Manager accumulates conversation turns during a call and persists the
// merged transcript exactly once at session end. Transcription fragments from
// the LLM arrive piecewise, so the manager keeps an in-progress text per
// speaker and closes it out when the speaker changes.
type Manager struct {
	mu        sync.Mutex
	turns     []Turn
	current   strings.Builder
	currRole  string
	finalized bool

	sessionID string
	tenantID  string
	callSid   string
	streamSid string

	st     store.Store
	logger zerolog.Logger
}

// NewManager creates an empty transcript for a session
func NewManager(st store.Store, sessionID, tenantID string, logger zerolog.Logger) *Manager {
	return &Manager{
		st:        st,
		sessionID: sessionID,
		tenantID:  tenantID,
		logger:    logger,
	}
}

// SetCallIdentity records the telephony identifiers once the start frame
// delivers them
func (m *Manager) SetCallIdentity(callSid, streamSid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callSid = callSid
	m.streamSid = streamSid
}

// AddTurn appends a transcription fragment for a role. Empty or
// whitespace-only fragments are ignored. Fragments for the same role
// accumulate into one in-progress turn; a role change closes the previous
// turn.
func (m *Manager) AddTurn(role, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalized {
		return
	}

	if m.currRole != "" && m.currRole != role {
		m.closeCurrentLocked()
	}
	m.currRole = role
	m.current.WriteString(text)
}

// closeCurrentLocked flushes the in-progress text as a completed turn
func (m *Manager) closeCurrentLocked() {
	text := strings.TrimSpace(m.current.String())
	if text != "" {
		m.turns = append(m.turns, Turn{Role: m.currRole, Text: text})
	}
	m.current.Reset()
	m.currRole = ""
}

// Turns returns the merged transcript as it stands, including any
// in-progress turn
func (m *Manager) Turns() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()

	merged := MergeTurns(m.turns)
	if m.currRole != "" {
		text := strings.TrimSpace(m.current.String())
		if text != "" {
			merged = MergeTurns(append(merged, Turn{Role: m.currRole, Text: text}))
		}
	}
	return merged
}

// Empty reports whether no turns have been accumulated
func (m *Manager) Empty() bool {
	return len(m.Turns()) == 0
}

// Finalize flushes any in-progress turn, merges consecutive same-role turns,
// persists the transcript, and returns the new row id. It is effective
// exactly once; later calls return an error.
func (m *Manager) Finalize(ctx context.Context) (int64, error) {
	m.mu.Lock()
	if m.finalized {
		m.mu.Unlock()
		return 0, fmt.Errorf("transcript for session %s already finalized", m.sessionID)
	}
	m.finalized = true
	m.closeCurrentLocked()
	turns := MergeTurns(m.turns)
	m.turns = turns
	callSid := m.callSid
	streamSid := m.streamSid
	m.mu.Unlock()

	doc := document{SessionID: m.sessionID, Conversation: turns}
	payload, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("encode transcript: %w", err)
	}

	id, err := m.st.InsertCallDetails(ctx, &store.CallRecord{
		CallSid:    callSid,
		StreamSid:  streamSid,
		TenantID:   m.tenantID,
		Transcript: payload,
	})
	if err != nil {
		return 0, fmt.Errorf("persist transcript: %w", err)
	}

	m.logger.Info().
		Int64("row_id", id).
		Int("turns", len(turns)).
		Msg("Transcript finalized")
	return id, nil
}

// Render returns the transcript as "role: text" lines for the analyzer prompt
func (m *Manager) Render() string {
	turns := m.Turns()
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// MergeTurns merges consecutive same-role turns, concatenating with a single
// space, and drops empty turns. The operation is idempotent.
func MergeTurns(turns []Turn) []Turn {
	merged := make([]Turn, 0, len(turns))
	for _, t := range turns {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		if n := len(merged); n > 0 && merged[n-1].Role == t.Role {
			merged[n-1].Text = merged[n-1].Text + " " + text
			continue
		}
		merged = append(merged, Turn{Role: t.Role, Text: text})
	}
	return merged
}
