package telephony

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"voice-platform/internal/calls"
)

// maxWebhookBody bounds a single voice pipeline notification.
const maxWebhookBody = 1 << 20

var ErrInvalidPayload = errors.New("telephony: invalid webhook payload")

// VoiceWebhook is the JSON body posted by the voice pipeline for every call event.
//
// Keep it minimal and adapter-only: the event is translated to calls.Event and
// every state decision is made by the aggregator.
type VoiceWebhook struct {
	Event     string         `json:"event"`
	SessionID string         `json:"sessionId"`
	TenantID  string         `json:"tenantId"`
	Data      map[string]any `json:"data"`

	// TS is epoch milliseconds; absent means "now".
	TS json.Number `json:"ts"`
}

func ParseVoiceWebhook(r *http.Request) (VoiceWebhook, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		return VoiceWebhook{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(body) > maxWebhookBody {
		return VoiceWebhook{}, fmt.Errorf("%w: body too large", ErrInvalidPayload)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var w VoiceWebhook
	if err := dec.Decode(&w); err != nil {
		return VoiceWebhook{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	w.Data = normalizeData(w.Data)
	return w, nil
}

// Timestamp returns TS in epoch ms, 0 when absent or unparsable.
func (w VoiceWebhook) Timestamp() int64 {
	if w.TS == "" {
		return 0
	}
	if n, err := w.TS.Int64(); err == nil {
		return n
	}
	if f, err := w.TS.Float64(); err == nil {
		return int64(f)
	}
	return 0
}

// ToEvent converts the webhook to the aggregator's event type. tenantID overrides
// the body's tenant when the caller resolved it from the dialed number.
func (w VoiceWebhook) ToEvent(tenantID string) calls.Event {
	if tenantID == "" {
		tenantID = w.TenantID
	}
	return calls.NewEvent(w.Event, w.SessionID, tenantID, w.Timestamp(), w.Data)
}

// normalizeData converts json.Number values to float64 (what calls.Event expects
// from decoded JSON) and trims phone numbers.
func normalizeData(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	for k, v := range in {
		if n, ok := v.(json.Number); ok {
			if f, err := n.Float64(); err == nil {
				in[k] = f
			}
		}
	}
	for _, k := range []string{"from", "to"} {
		if s, ok := in[k].(string); ok {
			in[k] = normalizePhone(s)
		}
	}
	return in
}

func normalizePhone(s string) string {
	s = strings.TrimSpace(s)
	// Carriers sometimes send "anonymous" or empty; keep as-is.
	return s
}
