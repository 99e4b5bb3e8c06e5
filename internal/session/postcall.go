package session

import (
	"context"
	"time"

	"github.com/helllo-ai/voice-bridge/internal/llm"
	"github.com/helllo-ai/voice-bridge/internal/notify"
	"github.com/helllo-ai/voice-bridge/internal/store"
)

// postCallTimeout bounds the whole pipeline; it runs outside the caller
// socket's cancellation scope so hangup cannot abort persistence
const postCallTimeout = 2 * time.Minute

// runPostCall executes the best-effort post-call stages in order. Every stage
// runs regardless of earlier failures; each validates its own inputs at
// entry and logs rather than propagates.
func (s *Session) runPostCall() {
	ctx, cancel := context.WithTimeout(context.Background(), postCallTimeout)
	defer cancel()

	s.logger.Info().Msg("Running post-call pipeline")

	callerPhone := s.fetchTelephonyRecord(ctx)
	persisted := s.finalizeTranscript(ctx)
	s.aggregateConversationTokens()
	analysis := s.analyzeTranscript(ctx, persisted)
	s.dispatchNotifications(ctx, analysis, callerPhone)
	s.saveTokenSummary(ctx)

	s.logger.Info().Msg("Post-call pipeline finished")
}

// fetchTelephonyRecord pulls the canonical call record from the telephony
// REST API and persists it. Returns the caller phone, preferring the REST
// record over the start frame.
func (s *Session) fetchTelephonyRecord(ctx context.Context) string {
	callerPhone := s.fromNumber

	if s.callSid == "" {
		return callerPhone
	}
	if s.deps.Rest == nil || !s.deps.Rest.Configured() {
		s.logger.Debug().Msg("Telephony REST not configured, skipping call detail fetch")
		return callerPhone
	}

	detail, err := s.deps.Rest.FetchCallDetail(ctx, s.callSid)
	if err != nil {
		s.stageError("fetch_call_detail", err)
		return callerPhone
	}

	err = s.deps.Store.InsertExotelCallDetails(ctx, &store.ExotelCallDetail{
		CallSid:      s.callSid,
		FromNumber:   detail.From,
		ToNumber:     detail.To,
		Status:       detail.Status,
		StartTime:    detail.StartTime,
		EndTime:      detail.EndTime,
		Duration:     detail.Duration,
		Price:        detail.Price,
		Direction:    detail.Direction,
		RecordingURL: detail.RecordingUrl,
	})
	if err != nil {
		s.stageError("fetch_call_detail", err)
	}

	if detail.From != "" {
		callerPhone = detail.From
	}
	return callerPhone
}

// finalizeTranscript persists the merged transcript. An empty transcript
// persists nothing: a call that never produced a turn leaves no call record.
func (s *Session) finalizeTranscript(ctx context.Context) bool {
	if s.transcript == nil || s.transcript.Empty() {
		s.logger.Info().Msg("No transcript turns accumulated, skipping call record")
		return false
	}
	if _, err := s.transcript.Finalize(ctx); err != nil {
		s.stageError("finalize_transcript", err)
		return false
	}
	return true
}

// aggregateConversationTokens folds the streamed usage records into the
// accumulator under the conversation operation
func (s *Session) aggregateConversationTokens() {
	usage := s.conversationUsage()
	if len(usage) == 0 {
		return
	}
	s.acc.AddConversationTokens(usage, s.liveModel)
	if s.deps.Metrics != nil {
		if total := s.ExtractTotalConversationTokens(); total != nil {
			s.deps.Metrics.RecordTokens("conversation", int64(total.Total))
		}
	}
}

// analyzeTranscript classifies the persisted transcript and updates the call
// record. Analyzer transport failures coerce to the failure analysis so the
// owner notification still carries something useful.
func (s *Session) analyzeTranscript(ctx context.Context, persisted bool) *llm.Analysis {
	if !persisted {
		return nil
	}

	analysis, usage, err := s.analyze(ctx, s.tenantCfg.AnalyzerPrompt, s.transcript.Render(), s.tenantCfg.AllowedCallTypes)
	if err != nil {
		s.stageError("analyze_transcript", err)
		analysis = &llm.Analysis{
			CallType:   llm.CallTypeOthers,
			Summary:    llm.FailedAnalysisSummary,
			KeyDetails: map[string]string{},
		}
	} else {
		s.acc.AddAnalysisTokens(usage, s.genModel)
		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordTokens("transcript_analysis", int64(usage.Total))
		}
	}

	details, err := analysis.CriticalDetailsJSON()
	if err == nil {
		if err := s.deps.Store.UpdateCallAnalysis(ctx, s.callSid, analysis.CallType, details); err != nil {
			s.stageError("analyze_transcript", err)
		}
	}

	return analysis
}

// dispatchNotifications sends the WhatsApp follow-ups
func (s *Session) dispatchNotifications(ctx context.Context, analysis *llm.Analysis, callerPhone string) {
	if analysis == nil || s.callSid == "" || s.deps.Dispatcher == nil {
		s.logger.Debug().Msg("Skipping notifications")
		return
	}

	status := s.deps.Dispatcher.Dispatch(ctx, notify.Input{
		CallSid:     s.callSid,
		Tenant:      s.tenantCfg,
		CallerPhone: callerPhone,
		Analysis:    analysis,
		Accumulator: s.acc,
	})
	s.logger.Info().Str("status", status).Msg("Notifications dispatched")
}

// saveTokenSummary persists the merged token usage
func (s *Session) saveTokenSummary(ctx context.Context) {
	if s.acc == nil {
		return
	}
	if err := s.acc.Save(ctx); err != nil {
		s.stageError("save_tokens", err)
	}
}

func (s *Session) stageError(stage string, err error) {
	s.logger.Error().Err(err).Str("stage", stage).Msg("Post-call stage failed")
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordPostCallStageError(stage)
	}
}
