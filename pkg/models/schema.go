package models

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateMessageEnvelope checks the fields the filtering service relies on.
// A "metrics" payload entry, when present, must be an object.
func ValidateMessageEnvelope(msg *MessageEnvelope) error {
	switch {
	case msg == nil:
		return &ValidationError{Field: "envelope", Message: "message envelope cannot be nil"}
	case msg.ID == "":
		return &ValidationError{Field: "id", Message: "message ID is required"}
	case msg.Source == "":
		return &ValidationError{Field: "source", Message: "message source is required"}
	case msg.Timestamp.IsZero():
		return &ValidationError{Field: "timestamp", Message: "message timestamp is required"}
	case msg.Payload == nil:
		return &ValidationError{Field: "payload", Message: "message payload cannot be nil"}
	}

	if raw, ok := msg.Payload[PayloadMetricsKey]; ok && raw != nil {
		if _, isObject := raw.(map[string]interface{}); !isObject {
			return &ValidationError{Field: "payload.metrics", Message: fmt.Sprintf("metrics must be an object, got %T", raw)}
		}
	}

	return nil
}
