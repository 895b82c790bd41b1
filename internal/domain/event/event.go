package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is a claim lifecycle event. Payload values are plain JSON-compatible values.
type Event struct {
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	ClaimID   string                 `json:"claim_id"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}

// New creates an event for claimID with a fresh id and the current time.
func New(eventType Type, claimID string, payload map[string]interface{}) *Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		ClaimID:   claimID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// WithPayload returns a copy of the event with key set; the receiver is not modified.
func (e *Event) WithPayload(key string, value interface{}) *Event {
	payload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		payload[k] = v
	}
	payload[key] = value

	cp := *e
	cp.Payload = payload
	return &cp
}

func (e *Event) GetPayloadString(key string) string {
	if s, ok := e.Payload[key].(string); ok {
		return s
	}
	return ""
}

func (e *Event) GetPayloadFloat(key string) float64 {
	switch v := e.Payload[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func (e *Event) GetPayloadStrings(key string) []string {
	if s, ok := e.Payload[key].([]string); ok {
		return s
	}
	return nil
}
