package remotedev

import (
	"encoding/json"
	"fmt"
)

// SocketCluster wire protocol as spoken by remotedev-server.
//
//	emit:     {"event":"login","data":"master","cid":2}
//	reply:    {"rid":2,"data":"respond"}
//	publish:  {"event":"#publish","data":{"channel":"respond","data":{...}}}
//	ping:     #1   (answered with #2)

const (
	eventHandshake = "#handshake"
	eventSubscribe = "#subscribe"
	eventPublish   = "#publish"
	eventLogin     = "login"
	eventLog       = "log"
	eventLogNoID   = "log-noid"

	pingFrame       = "#1"
	pongFrame       = "#2"
	legacyPingFrame = "ping"
	legacyPongFrame = "pong"

	// credentials remotedev-server expects from the app side of a session
	masterCredentials = "master"
)

type frame struct {
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	CID   int64           `json:"cid,omitempty"`
	RID   int64           `json:"rid,omitempty"`
	Error json.RawMessage `json:"error,omitempty"`
}

type publication struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type handshakeReply struct {
	ID              string `json:"id"`
	PingTimeout     int64  `json:"pingTimeout"`
	IsAuthenticated bool   `json:"isAuthenticated"`
}

func newFrame(event string, data any, cid int64) ([]byte, error) {
	f := frame{Event: event, CID: cid}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s data: %w", event, err)
		}
		f.Data = raw
	}
	return json.Marshal(f)
}

// pongFor returns the answer to a heartbeat frame, or "" when data is not one.
func pongFor(data []byte) string {
	switch string(data) {
	case pingFrame:
		return pongFrame
	case legacyPingFrame:
		return legacyPongFrame
	}
	return ""
}

// RemoteError is an error frame returned by the monitor for one of our calls.
type RemoteError struct {
	Event  string
	Detail string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remotedev: %s rejected: %s", e.Event, e.Detail)
}

func newRemoteError(event string, raw json.RawMessage) *RemoteError {
	var detail struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
		return &RemoteError{Event: event, Detail: detail.Message}
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return &RemoteError{Event: event, Detail: text}
	}
	return &RemoteError{Event: event, Detail: string(raw)}
}
