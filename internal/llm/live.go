package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/helllo-ai/voice-bridge/internal/resilience"
)

// Client wraps the generative model provider for the Live channel, transcript
// analysis, and message generation. It is safe for concurrent use and shared
// across sessions.
type Client struct {
	genai     *genai.Client
	liveModel string
	genModel  string
	voice     string
	retryCfg  *resilience.RetryConfig
	logger    zerolog.Logger
}

// NewClient creates the provider client from an API key
func NewClient(ctx context.Context, apiKey, liveModel, genModel, voice string, retryCfg *resilience.RetryConfig, logger zerolog.Logger) (*Client, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("init genai client: %w", err)
	}
	return &Client{
		genai:     gc,
		liveModel: liveModel,
		genModel:  genModel,
		voice:     voice,
		retryCfg:  retryCfg,
		logger:    logger,
	}, nil
}

// LiveModel returns the model name used for the Live channel
func (c *Client) LiveModel() string {
	return c.liveModel
}

// GenModel returns the model name used for one-shot generation
func (c *Client) GenModel() string {
	return c.genModel
}

// LiveSession is one open bidirectional channel to the Live API. The inbound
// pump is the sole sender of realtime audio; Receive is driven by the
// outbound pump.
type LiveSession struct {
	session *genai.Session
	logger  zerolog.Logger
}

// ConnectLive opens a Live channel with the tenant's system prompt, the
// configured voice, and VAD tuned for telephony (high sensitivity both ends,
// 20 ms prefix padding, 500 ms silence threshold). Connection attempts are
// retried with exponential backoff; exhaustion is fatal for the session.
func (c *Client) ConnectLive(ctx context.Context, systemPrompt, languageCode string) (*LiveSession, error) {
	cfg := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		MediaResolution:    genai.MediaResolutionMedium,
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: c.voice},
			},
			LanguageCode: languageCode,
		},
		RealtimeInputConfig: &genai.RealtimeInputConfig{
			AutomaticActivityDetection: &genai.AutomaticActivityDetection{
				StartOfSpeechSensitivity: genai.StartSensitivityHigh,
				EndOfSpeechSensitivity:   genai.EndSensitivityHigh,
				PrefixPaddingMs:          genai.Ptr[int32](20),
				SilenceDurationMs:        genai.Ptr[int32](500),
			},
		},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
		ContextWindowCompression: &genai.ContextWindowCompressionConfig{
			TriggerTokens: genai.Ptr[int64](25600),
			SlidingWindow: &genai.SlidingWindow{TargetTokens: genai.Ptr[int64](12800)},
		},
		SystemInstruction: &genai.Content{
			Role:  "user",
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
	}

	var session *genai.Session
	err := resilience.Retry(ctx, func() error {
		s, err := c.genai.Live.Connect(ctx, c.liveModel, cfg)
		if err != nil {
			c.logger.Warn().Err(err).Str("model", c.liveModel).Msg("Live connect attempt failed")
			return err
		}
		session = s
		return nil
	}, c.retryCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("connect live channel: %w", err)
	}

	c.logger.Info().Str("model", c.liveModel).Msg("Live channel connected")
	return &LiveSession{session: session, logger: c.logger}, nil
}

// SendAudio forwards one 16 kHz PCM chunk as realtime input
func (s *LiveSession) SendAudio(pcm []byte) error {
	return s.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{Data: pcm, MIMEType: "audio/pcm"},
	})
}

// SendUserText sends a user-role text turn, completing the turn so the model
// responds. Used for the greeting.
func (s *LiveSession) SendUserText(text string) error {
	return s.SendTurn(text, true)
}

// SendTurn sends a user-role text turn. A non-terminal turn (turnComplete
// false) appends side-channel content, e.g. a DTMF digit, without cutting off
// the current model turn.
func (s *LiveSession) SendTurn(text string, turnComplete bool) error {
	return s.session.SendClientContent(genai.LiveClientContentInput{
		Turns: []*genai.Content{{
			Role:  "user",
			Parts: []*genai.Part{{Text: text}},
		}},
		TurnComplete: &turnComplete,
	})
}

// Receive blocks for the next server message and decodes it into frames
func (s *LiveSession) Receive() ([]Frame, error) {
	msg, err := s.session.Receive()
	if err != nil {
		return nil, err
	}
	return DecodeServerMessage(msg), nil
}

// Close shuts the channel down
func (s *LiveSession) Close() error {
	return s.session.Close()
}
