package llm

import (
	"strings"

	"google.golang.org/genai"

	"github.com/helllo-ai/voice-bridge/internal/tokens"
)

// Frame is one decoded event from the Live stream. The vendor message shape
// is probed once here, at the stream boundary; the session dispatches on the
// concrete type instead of inspecting optional fields.
type Frame interface {
	isFrame()
}

// AudioChunk carries synthesized speech bytes
type AudioChunk struct {
	Data     []byte
	MIMEType string
}

// UserTranscript is a transcription fragment of the caller's speech
type UserTranscript struct {
	Text string
}

// AssistantTranscript is a transcription fragment of the assistant's speech
type AssistantTranscript struct {
	Text string
}

// AssistantText is a direct text part of the model turn (no audio)
type AssistantText struct {
	Text string
}

// Usage is one token accounting record from the stream
type Usage struct {
	tokens.ConversationUsage
}

// EndOfTurn marks the completion of one response turn
type EndOfTurn struct{}

// Interrupted signals that the model turn was cut off by caller speech
type Interrupted struct{}

func (AudioChunk) isFrame()          {}
func (UserTranscript) isFrame()      {}
func (AssistantTranscript) isFrame() {}
func (AssistantText) isFrame()       {}
func (Usage) isFrame()               {}
func (EndOfTurn) isFrame()           {}
func (Interrupted) isFrame()         {}

// DecodeServerMessage flattens one Live server message into frames, in the
// order the payloads appear in the message
func DecodeServerMessage(msg *genai.LiveServerMessage) []Frame {
	if msg == nil {
		return nil
	}

	var frames []Frame

	if sc := msg.ServerContent; sc != nil {
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			frames = append(frames, UserTranscript{Text: sc.InputTranscription.Text})
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			frames = append(frames, AssistantTranscript{Text: sc.OutputTranscription.Text})
		}
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part == nil {
					continue
				}
				if part.InlineData != nil && strings.HasPrefix(part.InlineData.MIMEType, "audio") {
					frames = append(frames, AudioChunk{
						Data:     part.InlineData.Data,
						MIMEType: part.InlineData.MIMEType,
					})
				}
				if part.Text != "" {
					frames = append(frames, AssistantText{Text: part.Text})
				}
			}
		}
		if sc.Interrupted {
			frames = append(frames, Interrupted{})
		}
		if sc.TurnComplete {
			frames = append(frames, EndOfTurn{})
		}
	}

	if um := msg.UsageMetadata; um != nil {
		frames = append(frames, Usage{ConversationUsage: decodeUsage(um)})
	}

	return frames
}

func decodeUsage(um *genai.UsageMetadata) tokens.ConversationUsage {
	usage := tokens.ConversationUsage{
		Total:    int(um.TotalTokenCount),
		Prompt:   int(um.PromptTokenCount),
		Response: int(um.ResponseTokenCount),
	}
	if len(um.PromptTokensDetails) > 0 {
		usage.PromptByModality = modalityCounts(um.PromptTokensDetails)
	}
	if len(um.ResponseTokensDetails) > 0 {
		usage.ResponseByModality = modalityCounts(um.ResponseTokensDetails)
	}
	return usage
}

func modalityCounts(details []*genai.ModalityTokenCount) map[string]int {
	counts := make(map[string]int, len(details))
	for _, d := range details {
		if d == nil {
			continue
		}
		counts[string(d.Modality)] += int(d.TokenCount)
	}
	return counts
}
