package calls

import (
	"fmt"
	"strings"
)

type EventType string

const (
	EventCallStarted    EventType = "call.started"
	EventCallAnswered   EventType = "call.answered"
	EventSTTPartial     EventType = "stt.partial"
	EventLLMResponse    EventType = "llm.response"
	EventTTSPlayed      EventType = "tts.played"
	EventRecordingSaved EventType = "recording.saved"
	EventCallEnded      EventType = "call.ended"

	// EventOther stands for any name the aggregator does not recognize.
	// The raw name is kept in Event.Name.
	EventOther EventType = "other"
)

// ParseEventType maps a wire name to a known type, or EventOther.
func ParseEventType(name string) EventType {
	switch t := EventType(strings.TrimSpace(name)); t {
	case EventCallStarted, EventCallAnswered, EventSTTPartial, EventLLMResponse,
		EventTTSPlayed, EventRecordingSaved, EventCallEnded:
		return t
	default:
		return EventOther
	}
}

// Event is one inbound voice pipeline notification.
type Event struct {
	Type EventType
	Name string

	SessionID string
	TenantID  string

	// Timestamp is epoch milliseconds; zero means "use receipt time".
	Timestamp int64

	Payload map[string]any
}

// NewEvent builds an Event from its wire name.
func NewEvent(name, sessionID, tenantID string, ts int64, payload map[string]any) Event {
	return Event{
		Type:      ParseEventType(name),
		Name:      name,
		SessionID: strings.TrimSpace(sessionID),
		TenantID:  strings.TrimSpace(tenantID),
		Timestamp: ts,
		Payload:   payload,
	}
}

// Label is the metrics/log name: the wire name for known types, "other" otherwise.
func (e Event) Label() string {
	if e.Type == EventOther || e.Type == "" {
		return string(EventOther)
	}
	return string(e.Type)
}

func (e Event) validate() error {
	if e.SessionID == "" {
		return fmt.Errorf("%w: sessionId is required", ErrInvalidEvent)
	}
	if e.TenantID == "" {
		return fmt.Errorf("%w: tenantId is required", ErrInvalidEvent)
	}
	return nil
}

func (e Event) str(key string) string {
	if e.Payload == nil {
		return ""
	}
	s, _ := e.Payload[key].(string)
	return strings.TrimSpace(s)
}

func (e Event) int64Field(key string) (int64, bool) {
	if e.Payload == nil {
		return 0, false
	}
	switch v := e.Payload[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}
