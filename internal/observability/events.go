package observability

import "time"

// TransportRoutingKey carries transport lifecycle envelopes.
const TransportRoutingKey = "client_events.transport"

type EventEnvelope struct {
	EventType  string            `json:"event_type"`
	EventName  string            `json:"event_name"`
	OccurredAt string            `json:"occurred_at"`
	Headers    map[string]string `json:"headers,omitempty"`
	Payload    interface{}       `json:"payload"`
}

// NewTransportEvent builds the envelope published for connect, disconnect
// and error transitions of the broker connection.
func NewTransportEvent(name, userID, reason string, attempt int) EventEnvelope {
	return EventEnvelope{
		EventType:  "transport_events",
		EventName:  name,
		OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
		Payload: map[string]interface{}{
			"transport": map[string]interface{}{
				"event":   name,
				"attempt": attempt,
				"reason":  reason,
			},
			"identity": map[string]interface{}{
				"user_id": userID,
			},
		},
	}
}

// StreamRoutingKey carries local stream open and close envelopes.
const StreamRoutingKey = "client_events.stream"

// NewStreamEvent builds the envelope published when a local websocket
// stream for a group opens or closes.
func NewStreamEvent(name, userID, groupID string, meta RequestMeta) EventEnvelope {
	return EventEnvelope{
		EventType:  "stream_events",
		EventName:  name,
		OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
		Payload: map[string]interface{}{
			"stream": map[string]interface{}{
				"event":    name,
				"group_id": groupID,
			},
			"identity": map[string]interface{}{
				"user_id": userID,
			},
			"client": map[string]interface{}{
				"ip":        meta.IP,
				"device_id": meta.DeviceID,
			},
		},
	}
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
