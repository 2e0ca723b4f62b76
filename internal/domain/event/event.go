package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is a domain event published after the transaction that produced it commits
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	SubjectID     string                 `json:"subject_id"`
	InstanceID    int64                  `json:"instance_id,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates an event with a fresh ID and correlation ID
func NewEvent(eventType Type, subjectID string, instanceID int64, payload map[string]interface{}) *Event {
	return NewEventWithCorrelation(eventType, subjectID, instanceID, payload, uuid.NewString())
}

// NewEventWithCorrelation creates an event belonging to an existing correlation chain.
// All events produced by one engine call share a correlation ID.
func NewEventWithCorrelation(eventType Type, subjectID string, instanceID int64, payload map[string]interface{}, correlationID string) *Event {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		SubjectID:     subjectID,
		InstanceID:    instanceID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
	}
}

// WithPayload returns a copy of the event with key set; the receiver is not modified
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

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if s, ok := e.Payload[key].(string); ok {
		return s
	}
	return ""
}

// GetPayloadInt retrieves an integer value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	switch v := e.Payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// GetPayloadBool retrieves a bool value from the payload
func (e *Event) GetPayloadBool(key string) bool {
	b, _ := e.Payload[key].(bool)
	return b
}

// GetPayloadStrings retrieves a string list from the payload
func (e *Event) GetPayloadStrings(key string) []string {
	switch v := e.Payload[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
