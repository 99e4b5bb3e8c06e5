package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/helllo-ai/voice-bridge/internal/audio"
	"github.com/helllo-ai/voice-bridge/internal/config"
	"github.com/helllo-ai/voice-bridge/internal/language"
	"github.com/helllo-ai/voice-bridge/internal/llm"
	"github.com/helllo-ai/voice-bridge/internal/notify"
	"github.com/helllo-ai/voice-bridge/internal/observability"
	"github.com/helllo-ai/voice-bridge/internal/store"
	"github.com/helllo-ai/voice-bridge/internal/telephony"
	"github.com/helllo-ai/voice-bridge/internal/tenant"
	"github.com/helllo-ai/voice-bridge/internal/tokens"
	"github.com/helllo-ai/voice-bridge/internal/transcript"
)

// State is the connection state of a session
type State int32

const (
	StateInitializing State = iota
	StateAwaitingStart
	StateActive
	StateDegraded
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAwaitingStart:
		return "awaiting_start"
	case StateActive:
		return "active"
	case StateDegraded:
		return "degraded"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// consecutive keep-alive send failures before the session degrades
const keepAliveFailureLimit = 3

// liveChannel is the Live API surface the pumps use
type liveChannel interface {
	SendAudio(pcm []byte) error
	SendUserText(text string) error
	SendTurn(text string, turnComplete bool) error
	Receive() ([]llm.Frame, error)
	Close() error
}

// frameWriter is the outbound telephony surface
type frameWriter interface {
	SetStreamSid(sid string)
	StreamSid() string
	SendMedia(payload string) error
	SendMark(name string) error
}

// Deps are the process-wide collaborators handed to every session
type Deps struct {
	Cfg        *config.Config
	Cache      *tenant.Cache
	LLM        *llm.Client
	Store      store.Store
	Rest       *telephony.RestClient
	Dispatcher *notify.Dispatcher
	Metrics    *observability.Metrics
}

// Session owns one call end to end: the telephony socket, the Live channel,
// the audio pipeline between them, and the post-call pipeline after hangup.
// It is exclusively owned by the goroutine running Run.
type Session struct {
	id   string
	deps Deps

	conn   *websocket.Conn
	writer frameWriter

	stateMu sync.Mutex
	state   State

	// identity from the start frame
	callSid    string
	streamSid  string
	accountSid string
	fromNumber string

	initialTenant string
	tenantCfg     *store.TenantConfig

	live        liveChannel
	liveModel   string
	genModel    string
	connectLive func(ctx context.Context, systemPrompt, languageCode string) (liveChannel, error)
	analyze     func(ctx context.Context, analyzerPrompt, rendered string, allowed []string) (*llm.Analysis, tokens.GenerateUsage, error)

	outBuf *audio.OutBuffer

	// owned by the inbound pump
	inRes *audio.Resampler

	// owned by the outbound pump
	outRes       *audio.Resampler
	chunkCounter int
	turnCounter  int
	outputRate   int

	// keep-alive bookkeeping, owned by the keep-alive task
	keepAliveFailures int

	usageMu sync.Mutex
	usage   []tokens.ConversationUsage

	transcript *transcript.Manager
	acc        *tokens.Accumulator

	startTime      time.Time
	activityMu     sync.Mutex
	lastActivity   time.Time
	postCallRunner func()

	logger zerolog.Logger
}

// New creates a session for an accepted telephony socket. initialTenant is
// the tenant resolved from the connection URL, possibly empty.
func New(deps Deps, conn *websocket.Conn, initialTenant string) *Session {
	id := observability.NewSessionID()
	s := &Session{
		id:            id,
		deps:          deps,
		conn:          conn,
		writer:        telephony.NewWriter(conn),
		state:         StateInitializing,
		initialTenant: initialTenant,
		outBuf:        audio.NewOutBuffer(deps.Cfg.FlushSizeBytes, deps.Cfg.FlushInterval()),
		startTime:     time.Now(),
		lastActivity:  time.Now(),
		logger:        observability.WithSession(id, initialTenant),
	}
	s.inRes = audio.NewResampler(s.logger)
	s.outRes = audio.NewResampler(s.logger)
	s.liveModel = deps.LLM.LiveModel()
	s.genModel = deps.LLM.GenModel()
	s.connectLive = func(ctx context.Context, systemPrompt, languageCode string) (liveChannel, error) {
		return deps.LLM.ConnectLive(ctx, systemPrompt, languageCode)
	}
	s.analyze = func(ctx context.Context, analyzerPrompt, rendered string, allowed []string) (*llm.Analysis, tokens.GenerateUsage, error) {
		return deps.LLM.AnalyzeTranscript(ctx, analyzerPrompt, rendered, allowed)
	}
	s.postCallRunner = s.runPostCall
	return s
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// State returns the current connection state
func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *Session) setState(next State) {
	s.stateMu.Lock()
	prev := s.state
	s.state = next
	s.stateMu.Unlock()
	if prev != next {
		s.logger.Info().
			Str("from", prev.String()).
			Str("to", next.String()).
			Msg("Session state changed")
	}
}

func (s *Session) touchActivity() {
	s.activityMu.Lock()
	s.lastActivity = time.Now()
	s.activityMu.Unlock()
}

// Run drives the call to completion. It blocks until the call ends and, on
// any path that captured a call identity, drives the post-call pipeline
// before returning.
func (s *Session) Run(ctx context.Context) error {
	callMetrics := observability.NewCallMetrics(s.id)
	callMetrics.RecordCallStart()
	defer callMetrics.RecordCallEnd()
	defer s.setState(StateClosed)

	s.setState(StateAwaitingStart)
	start, err := s.awaitStart(ctx)
	if err != nil {
		// No start frame: the call is unrecoverable and no call record is
		// created.
		s.logger.Warn().Err(err).Msg("Closing before start frame")
		return err
	}
	s.applyStart(ctx, start)

	s.transcript = transcript.NewManager(s.deps.Store, s.id, s.tenantCfg.TenantID, s.logger)
	s.transcript.SetCallIdentity(s.callSid, s.streamSid)
	s.acc = tokens.NewAccumulator(s.deps.Store, s.callSid, s.logger)

	languageCode := language.ToBCP47(s.tenantCfg.GreetingLanguage)
	live, err := s.connectLive(ctx, s.tenantCfg.AssistantPrompt, languageCode)
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordLLMConnect(err == nil)
	}
	if err != nil {
		// Terminal: surface to the caller as a socket close, but still run
		// the remaining post-call stages with what was captured.
		s.logger.Error().Err(err).Msg("Live channel unavailable, ending call")
		s.setState(StateClosing)
		s.postCallRunner()
		return fmt.Errorf("live connect: %w", err)
	}
	s.live = live

	greeting := ExtractGreeting(s.tenantCfg.WelcomeMessage, s.tenantCfg.AssistantPrompt)
	if err := s.live.SendUserText(greeting); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to send greeting")
	}

	s.setState(StateActive)
	s.runPumps(ctx)

	s.setState(StateClosing)
	s.postCallRunner()
	return nil
}

// awaitStart reads frames until the start event arrives or the deadline
// expires. Frames other than connected/start are skipped with a warning.
func (s *Session) awaitStart(ctx context.Context) (*telephony.Start, error) {
	deadline := time.Now().Add(s.deps.Cfg.StartFrameTimeout())

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("no start frame within %s", s.deps.Cfg.StartFrameTimeout())
		}

		// Re-arm before every read so pongs cannot push the start deadline out
		s.conn.SetReadDeadline(deadline)
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("socket closed awaiting start: %w", err)
		}

		msg, err := telephony.ParseMessage(data)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Skipping malformed frame")
			continue
		}

		switch msg.Event {
		case telephony.EventConnected:
			s.logger.Info().Msg("Telephony stream connected")
		case telephony.EventStart:
			if msg.Start == nil {
				s.logger.Warn().Msg("Start frame without payload")
				continue
			}
			return msg.Start, nil
		default:
			s.logger.Warn().Str("event", msg.Event).Msg("Unexpected frame before start")
		}
	}
}

// applyStart captures the call identity and resolves the tenant. A tenant in
// custom parameters is honored only when the connection URL resolved no
// tenant and the named tenant is known.
func (s *Session) applyStart(ctx context.Context, start *telephony.Start) {
	s.callSid = start.CallSid
	s.streamSid = start.StreamSid
	s.accountSid = start.AccountSid
	s.fromNumber = start.From
	s.writer.SetStreamSid(start.StreamSid)

	tenantID := s.initialTenant
	if override := start.CustomParameters["tenant"]; override != "" && tenantID == "" {
		if s.deps.Cache.Known(ctx, override) {
			tenantID = override
		} else {
			s.logger.Warn().Str("tenant", override).Msg("Ignoring unknown tenant override")
		}
	}

	cfg, err := s.deps.Cache.Resolve(ctx, tenantID)
	if err != nil {
		// Resolve already fell back to the default; a failure here means the
		// default tenant itself is unusable, which is a config problem.
		s.logger.Error().Err(err).Msg("Failed to resolve tenant config")
		cfg = &store.TenantConfig{
			TenantID:         s.deps.Cache.DefaultTenant(),
			AssistantPrompt:  "You are a polite, helpful receptionist.",
			AllowedCallTypes: []string{llm.CallTypeOthers},
		}
	}
	s.tenantCfg = cfg

	s.logger = s.logger.With().
		Str("call_sid", s.callSid).
		Str("stream_sid", s.streamSid).
		Str("tenant", cfg.TenantID).
		Logger()
	s.logger.Info().Msg("Call started")

	// From here the server's ping/pong policy owns the liveness deadline
	s.conn.SetReadDeadline(time.Now().Add(telephony.LivenessWindow))
}

// ExtractTotalConversationTokens sums all usage records collected during the
// call into per-modality totals. Valid only after the Live stream has closed.
func (s *Session) ExtractTotalConversationTokens() *tokens.ConversationUsage {
	s.usageMu.Lock()
	defer s.usageMu.Unlock()
	if len(s.usage) == 0 {
		return nil
	}

	total := tokens.ConversationUsage{}
	for _, u := range s.usage {
		total.Total += u.Total
		total.Prompt += u.Prompt
		total.Response += u.Response
		for m, n := range u.PromptByModality {
			if total.PromptByModality == nil {
				total.PromptByModality = make(map[string]int)
			}
			total.PromptByModality[m] += n
		}
		for m, n := range u.ResponseByModality {
			if total.ResponseByModality == nil {
				total.ResponseByModality = make(map[string]int)
			}
			total.ResponseByModality[m] += n
		}
	}
	return &total
}

func (s *Session) conversationUsage() []tokens.ConversationUsage {
	s.usageMu.Lock()
	defer s.usageMu.Unlock()
	out := make([]tokens.ConversationUsage, len(s.usage))
	copy(out, s.usage)
	return out
}

func (s *Session) recordUsage(u tokens.ConversationUsage) {
	s.usageMu.Lock()
	s.usage = append(s.usage, u)
	s.usageMu.Unlock()
}
