package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/helllo-ai/voice-bridge/internal/audio"
	"github.com/helllo-ai/voice-bridge/internal/llm"
	"github.com/helllo-ai/voice-bridge/internal/telephony"
	"github.com/helllo-ai/voice-bridge/internal/transcript"
)

// runPumps starts the three per-call tasks and blocks until the call ends.
// The inbound pump ends the call (stop frame, socket close, or max duration);
// the other two follow via context cancellation, with outbound given a
// bounded drain.
func (s *Session) runPumps(ctx context.Context) {
	pumpCtx := ctx
	var timeoutCancel context.CancelFunc
	if max := s.deps.Cfg.MaxCallDurationS; max > 0 {
		pumpCtx, timeoutCancel = context.WithTimeout(ctx, time.Duration(max)*time.Second)
		defer timeoutCancel()
	}
	pumpCtx, cancel := context.WithCancel(pumpCtx)
	defer cancel()

	// Unblock the inbound socket read when the context ends for any reason
	// other than the socket itself
	go func() {
		<-pumpCtx.Done()
		s.conn.SetReadDeadline(time.Now())
	}()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		defer cancel()
		s.inboundPump(pumpCtx)
	}()
	go func() {
		defer wg.Done()
		// A terminal stream failure ends the call, not just this pump
		defer cancel()
		s.outboundPump(pumpCtx)
	}()
	go func() {
		defer wg.Done()
		s.keepAlive(pumpCtx)
	}()

	// Once the call is ending, cap the drain so a wedged downstream cannot
	// hold the session open
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	<-pumpCtx.Done()
	select {
	case <-done:
	case <-time.After(s.deps.Cfg.DrainTimeout()):
		s.logger.Warn().Msg("Drain deadline exceeded, forcing close")
		s.live.Close()
		s.conn.Close()
		<-done
	}
}

// inboundPump reads telephony frames and forwards caller audio to the Live
// channel. It is the sole writer on the Live send side.
func (s *Session) inboundPump(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Info().Err(err).Msg("Telephony socket closed")
			}
			return
		}

		msg, err := telephony.ParseMessage(data)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Skipping malformed frame")
			continue
		}
		s.touchActivity()

		switch msg.Event {
		case telephony.EventMedia:
			s.handleMedia(msg.Media)

		case telephony.EventDTMF:
			s.handleDTMF(msg.DTMF)

		case telephony.EventClear:
			// Drop everything queued for the caller; no half-spoken
			// utterance survives.
			s.outBuf.Clear()
			s.logger.Info().Msg("Cleared outbound audio buffer")

		case telephony.EventMark:
			s.logger.Debug().Msg("Mark frame received")

		case telephony.EventStop:
			s.logger.Info().Msg("Stop frame received")
			return

		case telephony.EventConnected, telephony.EventStart:
			// Already negotiated; nothing to do mid-call

		default:
			s.logger.Warn().Str("event", msg.Event).Msg("Unknown telephony event")
		}
	}
}

func (s *Session) handleMedia(media *telephony.Media) {
	if media == nil || media.Payload == "" {
		s.logger.Warn().Msg("Media frame without payload")
		return
	}

	pcm, err := base64.StdEncoding.DecodeString(media.Payload)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to decode media payload")
		return
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordAudioBytes("in", int64(len(pcm)))
	}

	if s.live == nil {
		// The Live channel is not open yet; drop rather than queue stale audio
		return
	}

	rate := media.Rate
	if rate == 0 {
		rate = s.deps.Cfg.TelephonySampleRate
	}
	if rate != s.deps.Cfg.LLMInputSampleRate {
		pcm = s.inRes.Resample(pcm, rate, s.deps.Cfg.LLMInputSampleRate)
	}

	if err := s.live.SendAudio(pcm); err != nil {
		s.logger.Error().Err(err).Msg("Failed to forward audio to Live channel")
	}
}

// handleDTMF forwards a keypad digit as a synthetic user turn. Whether it
// completes (interrupts) the current model turn is configurable; the default
// appends it as side-channel content.
func (s *Session) handleDTMF(dtmf *telephony.DTMF) {
	if dtmf == nil || dtmf.Digit == "" || s.live == nil {
		return
	}
	text := fmt.Sprintf("The caller pressed the keypad digit %s.", dtmf.Digit)
	if err := s.live.SendTurn(text, s.deps.Cfg.DTMFInterruptsTurn); err != nil {
		s.logger.Error().Err(err).Str("digit", dtmf.Digit).Msg("Failed to forward DTMF")
	}
}

// outboundPump consumes decoded Live frames, buffers audio, and flushes
// fixed-granularity chunks to the caller. It is the sole writer of media on
// the telephony side.
func (s *Session) outboundPump(ctx context.Context) {
	frames := make(chan llm.Frame, telephony.SendQueueSize)
	go s.receiveLoop(ctx, frames)

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case f, ok := <-frames:
			if !ok {
				// Stream ended; push out whatever is left
				s.flushOutbound()
				return
			}
			s.handleFrame(f)

		case <-ticker.C:
			if s.outBuf.ShouldFlush() {
				s.flushOutbound()
			}

		case <-ctx.Done():
			s.flushOutbound()
			// Unblock the receiver and wait for it to finish
			s.live.Close()
			for range frames {
			}
			return
		}
	}
}

// receiveLoop reads the Live stream and fans decoded frames into the pump.
// Read errors retry the turn with exponential backoff; exhaustion ends the
// stream and with it the outbound pump.
func (s *Session) receiveLoop(ctx context.Context, frames chan<- llm.Frame) {
	defer close(frames)

	attempts := 0
	backoff := s.deps.Cfg.RetryBackoff()

	for {
		fs, err := s.live.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempts++
			if attempts >= s.deps.Cfg.RetryMaxAttempts {
				s.logger.Error().Err(err).Int("attempts", attempts).Msg("Live stream failed, ending turn loop")
				return
			}
			s.logger.Warn().Err(err).Int("attempt", attempts).Msg("Live stream error, retrying turn")

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			backoff *= 2
			continue
		}
		attempts = 0
		backoff = s.deps.Cfg.RetryBackoff()

		for _, f := range fs {
			select {
			case frames <- f:
			case <-ctx.Done():
				return
			}
		}
	}
}

// handleFrame dispatches one decoded Live frame
func (s *Session) handleFrame(f llm.Frame) {
	switch frame := f.(type) {
	case llm.AudioChunk:
		if s.outputRate == 0 {
			s.outputRate = rateFromMIME(frame.MIMEType, s.deps.Cfg.LLMOutputSampleRate)
			s.logger.Info().Int("rate", s.outputRate).Msg("Live output sample rate")
		}
		s.outBuf.Append(frame.Data)
		if s.outBuf.ShouldFlush() {
			s.flushOutbound()
		}

	case llm.UserTranscript:
		s.transcript.AddTurn(transcript.RoleUser, frame.Text)

	case llm.AssistantTranscript:
		s.transcript.AddTurn(transcript.RoleAssistant, frame.Text)

	case llm.AssistantText:
		// Text-only responses still belong in the transcript
		s.transcript.AddTurn(transcript.RoleAssistant, frame.Text)

	case llm.Usage:
		s.recordUsage(frame.ConversationUsage)

	case llm.Interrupted:
		// The model was cut off; anything buffered is stale speech
		s.outBuf.Clear()
		s.logger.Debug().Msg("Model turn interrupted")

	case llm.EndOfTurn:
		s.turnCounter++
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordLLMTurn()
		}
		s.flushOutbound()
	}
}

// flushOutbound drains the buffer as one telephony chunk: pad to the minimum
// chunk size, downsample to the telephony rate, then emit media followed by
// its mark. Send errors drop the frame and the call continues.
func (s *Session) flushOutbound() {
	chunk := s.outBuf.Take()
	if chunk == nil {
		return
	}

	chunk = audio.PadToMin(chunk, s.deps.Cfg.MinChunkBytes)

	rate := s.outputRate
	if rate == 0 {
		rate = s.deps.Cfg.LLMOutputSampleRate
	}
	resampled := s.outRes.Resample(chunk, rate, s.deps.Cfg.TelephonySampleRate)
	// The peer consumes whole 320-byte frames and rejects short chunks
	resampled = audio.AlignChunk(resampled, 320, s.deps.Cfg.MinChunkBytes)
	payload := base64.StdEncoding.EncodeToString(resampled)

	if err := s.writer.SendMedia(payload); err != nil {
		s.logger.Error().Err(err).Msg("Failed to send media frame")
		return
	}
	s.chunkCounter++
	if err := s.writer.SendMark(fmt.Sprintf("audio_chunk_%d", s.chunkCounter)); err != nil {
		s.logger.Error().Err(err).Msg("Failed to send mark frame")
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordAudioBytes("out", int64(len(resampled)))
		s.deps.Metrics.RecordOutboundChunk()
	}
}

// keepAlive emits a periodic no-op mark so the upstream connection is not
// idled out. Consecutive send failures degrade the session without tearing
// down the call; a successful send restores it.
func (s *Session) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(s.deps.Cfg.KeepAliveInterval())
	defer ticker.Stop()

	counter := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counter++
			err := s.writer.SendMark(fmt.Sprintf("keep_alive_%d", counter))
			s.recordKeepAlive(err)
		}
	}
}

// recordKeepAlive tracks consecutive keep-alive failures and drives the
// active/degraded transition
func (s *Session) recordKeepAlive(err error) {
	if err != nil {
		s.keepAliveFailures++
		s.logger.Warn().Err(err).Int("consecutive", s.keepAliveFailures).Msg("Keep-alive send failed")
		if s.keepAliveFailures >= keepAliveFailureLimit && s.State() == StateActive {
			s.setState(StateDegraded)
		}
		return
	}
	s.keepAliveFailures = 0
	if s.State() == StateDegraded {
		s.setState(StateActive)
	}
}

// rateFromMIME extracts the sample rate from a MIME type such as
// "audio/pcm;rate=24000", falling back to the configured default
func rateFromMIME(mimeType string, fallback int) int {
	for _, part := range strings.Split(mimeType, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "rate=") {
			if rate, err := strconv.Atoi(strings.TrimPrefix(part, "rate=")); err == nil && rate > 0 {
				return rate
			}
		}
	}
	return fallback
}
