package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrMissingAction    = errors.New("missing action")
	ErrSend             = errors.New("send failed")
)

// Command is the action pair forwarded back to the monitor.
type Command struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// HandlingError is a failure to relay one message. It never stops the relay.
type HandlingError struct {
	MessageType string
	Err         error
}

func (e *HandlingError) Error() string {
	messageType := e.MessageType
	if messageType == "" {
		messageType = "untyped"
	}
	return fmt.Sprintf("handling %s message: %v", messageType, e.Err)
}

func (e *HandlingError) Unwrap() error {
	return e.Err
}

// DecodeCommand extracts action.type and action.payload from a message payload.
// A JSON string is parsed as serialized JSON; any other value is used as it is.
func DecodeCommand(payload json.RawMessage) (*Command, error) {
	data := bytes.TrimSpace(payload)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: message has no payload", ErrMissingAction)
	}

	if data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
		data = []byte(text)
	}

	var envelope struct {
		Action *Command `json:"action"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) { // valid JSON of the wrong shape
			return nil, fmt.Errorf("%w: %w", ErrMissingAction, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	switch {
	case envelope.Action == nil:
		return nil, fmt.Errorf("%w: payload has no action", ErrMissingAction)
	case envelope.Action.Type == "":
		return nil, fmt.Errorf("%w: action has no type", ErrMissingAction)
	case envelope.Action.Payload == nil:
		return nil, fmt.Errorf("%w: action has no payload", ErrMissingAction)
	}
	return envelope.Action, nil
}
