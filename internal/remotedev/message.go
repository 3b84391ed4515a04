package remotedev

import (
	"bytes"
	"encoding/json"
	"slices"
)

// Report types sent to the monitor.
const (
	TypeInit   = "INIT"
	TypeAction = "ACTION"
	TypeState  = "STATE"
	TypeError  = "ERROR"
)

// ID is an identifier the monitor may encode as a JSON string or number.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	*id = ID(data)
	return nil
}

// Message is one notification from the monitor, as handed to listeners.
type Message struct {
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Action     json.RawMessage `json:"action,omitempty"`
	State      json.RawMessage `json:"state,omitempty"`
	ID         ID              `json:"id,omitempty"`
	InstanceID ID              `json:"instanceId,omitempty"`

	// Raw is the message exactly as it arrived.
	Raw json.RawMessage `json:"-"`
}

// DecodeMessage parses a monitor notification. A message without a payload
// carries it in action instead (the dispatcher sends code that way).
func DecodeMessage(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, err
	}
	if isEmpty(msg.Payload) {
		msg.Payload = msg.Action
	}
	msg.Raw = slices.Clone(raw)
	return msg, nil
}

// Report is what the app side emits on the log event.
type Report struct {
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Action     json.RawMessage `json:"action,omitempty"`
	ID         string          `json:"id,omitempty"`
	InstanceID string          `json:"instanceId"`
	Name       string          `json:"name,omitempty"`
}

type liftedAction struct {
	Timestamp int64      `json:"timestamp"`
	Action    actionType `json:"action"`
}

type actionType struct {
	Type string `json:"type"`
}

// stringify serializes a JSON value into a JSON string, "" when there is none.
func stringify(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`""`)
	}
	text, _ := json.Marshal(string(raw)) // marshaling a string cannot fail
	return text
}

func isEmpty(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte(`""`))
}
