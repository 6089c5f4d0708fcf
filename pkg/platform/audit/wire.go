package audit

import (
	"encoding/json"
	"time"
)

// wireEvent is the JSON shape published to message brokers.
type wireEvent struct {
	Name         string `json:"name"`
	Category     string `json:"category"`
	Timestamp    string `json:"timestamp"`
	UserID       string `json:"user_id,omitempty"`
	IP           string `json:"ip,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Scope        string `json:"scope,omitempty"`
	RetryAfterMS int64  `json:"retry_after_ms,omitempty"`
}

// Marshal encodes the event for broker delivery.
func Marshal(e Event) ([]byte, error) {
	w := wireEvent{
		Name:         string(e.Name),
		Category:     string(e.Category()),
		Timestamp:    e.Timestamp.UTC().Format(time.RFC3339Nano),
		IP:           e.IP,
		RequestID:    e.RequestID,
		Reason:       e.Reason,
		Scope:        e.Scope,
		RetryAfterMS: e.RetryAfter.Milliseconds(),
	}
	if !e.UserID.IsNil() {
		w.UserID = e.UserID.String()
	}
	return json.Marshal(w)
}

// PartitionKey groups a user's events together; anonymous events fall back
// to the event name.
func PartitionKey(e Event) string {
	if !e.UserID.IsNil() {
		return e.UserID.String()
	}
	return string(e.Name)
}
