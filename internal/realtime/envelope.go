package realtime

import (
	"encoding/json"
	"strings"
)

const (
	TypeMessage = "message"
	TypeTyping  = "typing"
)

const (
	errInvalidFormat  = "Invalid message format. Required fields: type, sessionId"
	errInvalidPayload = "Invalid message payload. Required fields: content, role"
	errProcessFailed  = "Failed to process message"
)

// Envelope is the inbound frame shape.
type Envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type rawEnvelope struct {
	Type      json.RawMessage `json:"type"`
	SessionID json.RawMessage `json:"sessionId"`
	Payload   json.RawMessage `json:"payload"`
}

// parseEnvelope fails only when raw is not a JSON object. A type or sessionId
// that is missing, blank or not a string yields ok == false.
func parseEnvelope(raw []byte) (env Envelope, ok bool, err error) {
	var frame rawEnvelope
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Envelope{}, false, err
	}
	env.Payload = frame.Payload
	typeOK := decodeString(frame.Type, &env.Type)
	sessionOK := decodeString(frame.SessionID, &env.SessionID)
	return env, typeOK && sessionOK, nil
}

func decodeString(raw json.RawMessage, dst *string) bool {
	if len(raw) == 0 || json.Unmarshal(raw, dst) != nil {
		return false
	}
	return strings.TrimSpace(*dst) != ""
}

// Event is the outbound broadcast shape.
type Event struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	SessionID string      `json:"sessionId"`
}

type ErrorFrame struct {
	Error string `json:"error"`
}

type messagePayload struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

type TypingPayload struct {
	IsTyping bool `json:"isTyping"`
}

func hasPayload(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
