package calls

import "voice-platform/internal/pricing"

// Disposition says what an event did to its session.
type Disposition string

const (
	DispositionApplied Disposition = "applied"

	// DispositionUnknown: the event type is not recognized; the session is unchanged.
	DispositionUnknown Disposition = "unknown"

	// DispositionLate: the session already ended; the event is dropped.
	DispositionLate Disposition = "late"
)

// apply folds one event into s at time ts (epoch ms).
func (s *CallSession) apply(ev Event, ts int64, rates pricing.Rates) Disposition {
	if s.SessionStatus == SessionEnded {
		return DispositionLate
	}
	if ev.Type == EventOther || ev.Type == "" {
		return DispositionUnknown
	}

	s.fillRouting(ev)

	switch ev.Type {
	case EventCallStarted:
		s.advance(SessionRinging)

	case EventCallAnswered:
		s.advance(SessionConnected)

	case EventSTTPartial:
		s.appendTranscript(RoleUser, ev.str("text"), ts)
		s.recordProvider("stt", &s.ProviderStatuses.STT, ev)

	case EventLLMResponse:
		s.appendTranscript(RoleAgent, ev.str("text"), ts)
		s.recordProvider("llm", &s.ProviderStatuses.LLM, ev)

	case EventTTSPlayed:
		s.recordProvider("tts", &s.ProviderStatuses.TTS, ev)

	case EventRecordingSaved:
		if url := ev.str("url"); url != "" {
			s.RecordingURL = url
		}
		if s.SessionStatus == SessionConnected {
			s.SessionStatus = SessionRecording
		}

	case EventCallEnded:
		s.finish(ev, ts, rates)
	}

	if ts > s.UpdatedAt {
		s.UpdatedAt = ts
	}
	return DispositionApplied
}

// advance moves sessionStatus forward only; a stale signal never reverts it.
func (s *CallSession) advance(next SessionStatus) {
	if next.rank() > s.SessionStatus.rank() {
		s.SessionStatus = next
	}
}

func (s *CallSession) fillRouting(ev Event) {
	if s.AgentID == "" {
		s.AgentID = ev.str("agentId")
	}
	if s.FromNumber == "" {
		s.FromNumber = ev.str("from")
	}
	if s.ToNumber == "" {
		s.ToNumber = ev.str("to")
	}
}

func (s *CallSession) appendTranscript(role Role, text string, ts int64) {
	if text == "" {
		return
	}
	s.Transcript = append(s.Transcript, TranscriptEntry{Role: role, Text: text, TS: ts})
}

func (s *CallSession) recordProvider(stage string, status *ProviderStatus, ev Event) {
	*status = ProviderOK
	if ev.str("status") == string(ProviderError) || ev.str("error") != "" {
		*status = ProviderError
	}
	if ms, ok := ev.int64Field("latencyMs"); ok {
		if s.Metadata.Latencies == nil {
			s.Metadata.Latencies = map[string]int64{}
		}
		s.Metadata.Latencies[stage] = ms
	}
}

func (s *CallSession) finish(ev Event, ts int64, rates pricing.Rates) {
	s.SessionStatus = SessionEnded
	s.IsLive = false
	s.EndTime = ts

	switch CallStatus(ev.str("status")) {
	case CallStatusFailed:
		s.CallStatus = CallStatusFailed
	case CallStatusNoAnswer:
		s.CallStatus = CallStatusNoAnswer
	default:
		s.CallStatus = CallStatusCompleted
	}

	m := rates.Compute(s.StartTime, ts)
	s.Duration = m.DurationSeconds
	s.Cost = m.Cost
	s.Margin = m.Margin
}
