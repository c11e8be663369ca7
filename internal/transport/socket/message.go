package socket

import (
	"encoding/json"
	"fmt"
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func encodeMessage(action string, payload any) ([]byte, error) {
	msg := Message{Action: action}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}

		msg.Payload = raw
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	return data, nil
}

func decodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	return msg, nil
}

// reasonPayload wraps a lifecycle reason as a JSON string payload.
func reasonPayload(reason string) json.RawMessage {
	data, _ := json.Marshal(reason) //nolint: errchkjson // marshaling a string never fails
	return data
}

// DecodeReason extracts the reason text from a disconnect or connect_error payload.
func DecodeReason(payload json.RawMessage) string {
	var reason string
	if err := json.Unmarshal(payload, &reason); err != nil {
		return ""
	}

	return reason
}
