package remotedev

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// Number of seconds to wait for things that should be near-instantaneous.
const timeoutSeconds = 2

// fakeMonitor plays the remotedev-server side of a session: it answers the
// handshake, login and subscribe calls and records everything else.
type fakeMonitor struct {
	t        *testing.T
	server   *httptest.Server
	loginErr string

	received chan []byte          // frames sent after the subscription
	conns    chan *websocket.Conn // server side of the session, once subscribed

	once sync.Once
	conn *websocket.Conn
}

func newFakeMonitor(t *testing.T) *fakeMonitor {
	m := &fakeMonitor{
		t:        t,
		received: make(chan []byte, 32),
		conns:    make(chan *websocket.Conn, 1),
	}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

func (m *fakeMonitor) URL() string {
	return "ws" + strings.TrimPrefix(m.server.URL, "http") + "/socketcluster/"
}

func (m *fakeMonitor) handle(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	subscribed := false
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if subscribed {
			m.received <- raw
			continue
		}

		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		switch f.Event {
		case eventHandshake:
			ws.WriteJSON(map[string]any{"rid": f.CID, "data": map[string]any{
				"id": "socket-1", "pingTimeout": 20000, "isAuthenticated": false,
			}})
		case eventLogin:
			if m.loginErr != "" {
				ws.WriteJSON(map[string]any{"rid": f.CID, "error": map[string]any{
					"name": "LoginError", "message": m.loginErr,
				}})
				continue
			}
			ws.WriteJSON(map[string]any{"rid": f.CID, "data": "respond"})
		case eventSubscribe:
			ws.WriteJSON(map[string]any{"rid": f.CID})
			subscribed = true
			m.conns <- ws
		}
	}
}

func (m *fakeMonitor) session() *websocket.Conn {
	m.once.Do(func() {
		select {
		case m.conn = <-m.conns:
		case <-time.After(timeoutSeconds * time.Second):
			m.t.Fatal("client never subscribed")
		}
	})
	return m.conn
}

// push writes a raw frame to the subscribed client.
func (m *fakeMonitor) push(raw string) {
	require.NoError(m.t, m.session().WriteMessage(websocket.TextMessage, []byte(raw)))
}

// publish sends msg on the respond channel the way remotedev-server relays it.
func (m *fakeMonitor) publish(msg string) {
	m.push(`{"event":"#publish","data":{"channel":"respond","data":` + msg + `}}`)
}

// drop closes the server side of the session.
func (m *fakeMonitor) drop() {
	m.session().Close()
}

func (m *fakeMonitor) next() []byte {
	select {
	case raw := <-m.received:
		return raw
	case <-time.After(timeoutSeconds * time.Second):
		m.t.Fatal("monitor received nothing")
		return nil
	}
}

// nextReport reads the next frame and decodes it as a log event.
func (m *fakeMonitor) nextReport() (string, Report) {
	var f frame
	require.NoError(m.t, json.Unmarshal(m.next(), &f))

	var r Report
	require.NoError(m.t, json.Unmarshal(f.Data, &r))
	return f.Event, r
}

func (m *fakeMonitor) Close() {
	m.server.Close()
}
