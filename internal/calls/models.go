package calls

import "voice-platform/internal/pricing"

// CallSession is the live and historical state of one call, folded from voice pipeline events.
//
// Invariants:
// - exactly one record per session id; created by the first event seen for that id
// - TenantID and StartTime never change once set
// - IsLive is true until call.ended has been applied
// - Duration/Cost/Margin are written once, by call.ended
// - Transcript is append-only, in arrival order
type CallSession struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// Routing context; filled from early event payloads and never overwritten once set.
	AgentID    string `json:"agentId"`
	FromNumber string `json:"fromNumber"`
	ToNumber   string `json:"toNumber"`

	// Epoch milliseconds.
	StartTime int64 `json:"startTime"`
	EndTime   int64 `json:"endTime,omitempty"`
	UpdatedAt int64 `json:"updatedAt"`

	IsLive        bool          `json:"isLive"`
	SessionStatus SessionStatus `json:"sessionStatus"`
	CallStatus    CallStatus    `json:"callStatus"`

	Transcript []TranscriptEntry `json:"transcript"`

	Duration int64          `json:"duration"`
	Cost     pricing.Amount `json:"cost"`
	Margin   pricing.Amount `json:"margin"`

	ProviderStatuses ProviderStatuses `json:"providerStatuses"`
	Metadata         SessionMetadata  `json:"metadata"`

	RecordingURL string `json:"recordingUrl,omitempty"`

	// Version is the store version this value was read at; 0 for a record not yet persisted.
	Version int64 `json:"-"`
}

type TranscriptEntry struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
	TS   int64  `json:"timestamp"`
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

type ProviderStatuses struct {
	STT ProviderStatus `json:"stt"`
	LLM ProviderStatus `json:"llm"`
	TTS ProviderStatus `json:"tts"`
}

type ProviderStatus string

const (
	ProviderOK    ProviderStatus = "ok"
	ProviderError ProviderStatus = "error"
)

type SessionMetadata struct {
	// Latencies holds the most recent sample per pipeline stage (stt, llm, tts), in milliseconds.
	Latencies map[string]int64 `json:"latencies"`
}

type SessionStatus string

const (
	SessionInitiating SessionStatus = "initiating"
	SessionRinging    SessionStatus = "ringing"
	SessionConnected  SessionStatus = "connected"
	SessionRecording  SessionStatus = "recording"
	SessionEnded      SessionStatus = "ended"
)

// rank orders signaling states. recording sits beside connected.
func (s SessionStatus) rank() int {
	switch s {
	case SessionInitiating:
		return 0
	case SessionRinging:
		return 1
	case SessionConnected, SessionRecording:
		return 2
	case SessionEnded:
		return 3
	default:
		return -1
	}
}

type CallStatus string

const (
	CallStatusOngoing   CallStatus = "ongoing"
	CallStatusCompleted CallStatus = "completed"
	CallStatusFailed    CallStatus = "failed"
	CallStatusNoAnswer  CallStatus = "no-answer"
)

func newSession(id, tenantID string, startMs int64) CallSession {
	return CallSession{
		ID:            id,
		TenantID:      tenantID,
		StartTime:     startMs,
		UpdatedAt:     startMs,
		IsLive:        true,
		SessionStatus: SessionInitiating,
		CallStatus:    CallStatusOngoing,
		Transcript:    []TranscriptEntry{},
		ProviderStatuses: ProviderStatuses{
			STT: ProviderOK,
			LLM: ProviderOK,
			TTS: ProviderOK,
		},
		Metadata: SessionMetadata{Latencies: map[string]int64{}},
	}
}
