package cel

import (
	"encoding/json"
	"strconv"

	"sieve/pkg/models"
)

const MetricsKey = models.PayloadMetricsKey

// Subject is the value a filter set is evaluated against.
type Subject struct {
	Properties map[string]interface{} `json:"properties"`
	Metrics    map[string]float64     `json:"metrics"`

	envelope *models.MessageEnvelope
}

// SubjectFromEnvelope exposes the payload as properties and the payload's
// "metrics" object as metrics. Non-numeric metric values are dropped. The
// envelope id and source are available as properties unless the payload
// already defines them.
func SubjectFromEnvelope(msg *models.MessageEnvelope) Subject {
	s := Subject{
		Properties: make(map[string]interface{}, len(msg.Payload)+2),
		Metrics:    map[string]float64{},
		envelope:   msg,
	}

	for k, v := range msg.Payload {
		if k == MetricsKey {
			continue
		}
		s.Properties[k] = v
	}
	if _, ok := s.Properties["id"]; !ok && msg.ID != "" {
		s.Properties["id"] = msg.ID
	}
	if _, ok := s.Properties["source"]; !ok && msg.Source != "" {
		s.Properties["source"] = msg.Source
	}

	if raw, ok := msg.Payload[MetricsKey].(map[string]interface{}); ok {
		for k, v := range raw {
			if f, ok := toFloat64(v); ok {
				s.Metrics[k] = f
			}
		}
	}

	return s
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
