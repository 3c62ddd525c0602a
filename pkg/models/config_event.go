package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ConfigUpdateEvent is published by the management API after a filter set
// changes. The filtering service reloads on receipt.
type ConfigUpdateEvent struct {
	EventType   string                 `json:"event_type"`
	ServiceType string                 `json:"service_type"`
	FilterSetID string                 `json:"filter_set_id,omitempty"`
	Action      string                 `json:"action"` // "create", "update", "delete", "toggle"
	Timestamp   time.Time              `json:"timestamp"`
	ChangedBy   string                 `json:"changed_by,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

const (
	EventTypeFilterSetUpdated = "filter_set_updated"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionToggle = "toggle"
	ActionReload = "reload"
)

const (
	ServiceTypeFiltering = "filtering"
)

// Envelope wraps the event as the payload of a config update message.
func (e ConfigUpdateEvent) Envelope(id, source string) (MessageEnvelope, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return MessageEnvelope{}, fmt.Errorf("failed to marshal config event: %w", err)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return MessageEnvelope{}, fmt.Errorf("failed to convert config event: %w", err)
	}
	return MessageEnvelope{
		ID:        id,
		Source:    source,
		Timestamp: e.Timestamp,
		Payload:   payload,
	}, nil
}

// ConfigUpdateEventFromEnvelope decodes the event carried by msg. An event
// without event_type or service_type is a validation error.
func ConfigUpdateEventFromEnvelope(msg MessageEnvelope) (ConfigUpdateEvent, error) {
	var event ConfigUpdateEvent
	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return event, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	if err := json.Unmarshal(data, &event); err != nil {
		return event, &ValidationError{Field: "payload", Message: err.Error()}
	}
	if event.EventType == "" {
		return event, &ValidationError{Field: "event_type", Message: "event type is required"}
	}
	if event.ServiceType == "" {
		return event, &ValidationError{Field: "service_type", Message: "service type is required"}
	}
	return event, nil
}
