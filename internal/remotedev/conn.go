package remotedev

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const ( // same heartbeat budget as a chat client: no frame within PongWait = dead connection
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteWait        = 10 * time.Second
	DefaultPongWait         = 60 * time.Second
)

// ErrClosed is returned when writing to a handle that was closed.
var ErrClosed = errors.New("remotedev: connection closed")

// Listener receives monitor messages. Listeners run on the Listen goroutine,
// one message at a time, in arrival order.
type Listener func(Message)

type Options struct {
	URL    string      // e.g. ws://localhost:8000/socketcluster/
	Name   string      // instance name shown in the monitor
	Header http.Header // extra headers for the websocket upgrade

	HandshakeTimeout time.Duration
	WriteWait        time.Duration
	PongWait         time.Duration

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if o.WriteWait <= 0 {
		o.WriteWait = DefaultWriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = DefaultPongWait
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type subscription struct {
	id int
	fn Listener
}

// Conn is a session with a remotedev monitor, logged in as the app side.
type Conn struct {
	ws     *websocket.Conn
	opts   Options
	logger *slog.Logger

	socketID   string // assigned by the server during the handshake
	instanceID string // ours, filters messages meant for other instances
	channel    string // channel the monitor answers on

	writeMu sync.Mutex // gorilla allows a single concurrent writer

	mu        sync.RWMutex
	listeners []subscription
	nextID    int

	cid       atomic.Int64
	closed    atomic.Bool
	closeOnce sync.Once
}

// Dial connects to the monitor, performs the SocketCluster handshake, logs in
// and subscribes to the answer channel. Nothing is retried.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	opts = opts.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, opts.HandshakeTimeout)
	defer cancel()

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	ws, _, err := dialer.DialContext(ctx, opts.URL, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", opts.URL, err)
	}

	c := &Conn{
		ws:         ws,
		opts:       opts,
		logger:     opts.Logger,
		instanceID: uuid.NewString(),
	}

	if deadline, ok := ctx.Deadline(); ok {
		ws.SetReadDeadline(deadline)
	}
	if err := c.handshake(); err != nil {
		ws.Close()
		return nil, err
	}
	ws.SetReadDeadline(time.Time{})

	c.logger.Info("monitor_connected",
		"url", opts.URL,
		"socket_id", c.socketID,
		"instance_id", c.instanceID,
		"channel", c.channel,
	)
	return c, nil
}

func (c *Conn) handshake() error {
	var hs handshakeReply
	if err := c.call(eventHandshake, map[string]any{"authToken": nil}, &hs); err != nil {
		return fmt.Errorf("handshake failed: %w", err)
	}
	c.socketID = hs.ID

	var channel string
	if err := c.call(eventLogin, masterCredentials, &channel); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if channel == "" {
		return errors.New("login failed: monitor returned no channel")
	}
	c.channel = channel

	if err := c.call(eventSubscribe, map[string]string{"channel": channel}, nil); err != nil {
		return fmt.Errorf("subscribe to %q failed: %w", channel, err)
	}
	return nil
}

// call emits an event with a cid and reads until the matching reply.
// Only used before Listen starts, so it owns the read side.
func (c *Conn) call(event string, data any, out any) error {
	cid := c.cid.Add(1)
	msg, err := newFrame(event, data, cid)
	if err != nil {
		return err
	}
	if err := c.write(websocket.TextMessage, msg); err != nil {
		return err
	}

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read %s reply: %w", event, err)
		}
		if pong := pongFor(raw); pong != "" {
			if err := c.write(websocket.TextMessage, []byte(pong)); err != nil {
				return err
			}
			continue
		}

		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			c.logger.Warn("invalid_frame_received", "error", err.Error())
			continue
		}
		if f.RID != cid {
			c.logger.Debug("frame_ignored", "event", f.Event, "rid", f.RID)
			continue
		}
		if len(f.Error) > 0 && string(f.Error) != "null" {
			return newRemoteError(event, f.Error)
		}
		if out != nil && len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, out); err != nil {
				return fmt.Errorf("invalid %s reply: %w", event, err)
			}
		}
		return nil
	}
}

// Subscribe registers a listener and returns a function removing it.
func (c *Conn) Subscribe(listener Listener) (unsubscribe func()) {
	if listener == nil {
		return func() {}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, subscription{id: id, fn: listener})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.listeners = slices.DeleteFunc(c.listeners, func(s subscription) bool { return s.id == id })
	}
}

// Unsubscribe removes every listener.
func (c *Conn) Unsubscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = nil
}

// Listen reads frames until ctx is cancelled, the handle is closed or the
// connection drops. Cancellation and Close return nil.
func (c *Conn) Listen(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || c.closed.Load() {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("monitor_disconnected", "socket_id", c.socketID)
				return fmt.Errorf("monitor closed the connection: %w", err)
			}
			c.logger.Error("monitor_read_error",
				"socket_id", c.socketID,
				"error", err.Error(),
			)
			return fmt.Errorf("failed to read from monitor: %w", err)
		}

		// any frame proves the peer is alive
		c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		c.handleFrame(raw)
	}
}

func (c *Conn) handleFrame(raw []byte) {
	if pong := pongFor(raw); pong != "" {
		if err := c.write(websocket.TextMessage, []byte(pong)); err != nil {
			c.logger.Warn("pong_failed", "error", err.Error())
		}
		return
	}

	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		c.logger.Warn("invalid_frame_received", "error", err.Error())
		return
	}

	switch {
	case f.Event == eventPublish:
		var pub publication
		if err := json.Unmarshal(f.Data, &pub); err != nil {
			c.logger.Warn("invalid_publication_received", "error", err.Error())
			return
		}
		if pub.Channel != c.channel {
			c.logger.Debug("publication_ignored", "channel", pub.Channel)
			return
		}
		c.dispatch(pub.Data)
	case f.Event != "" && f.Event == c.channel:
		c.dispatch(f.Data)
	default:
		c.logger.Debug("frame_ignored", "event", f.Event, "rid", f.RID)
	}
}

func (c *Conn) dispatch(raw json.RawMessage) {
	msg, err := DecodeMessage(raw)
	if err != nil {
		c.logger.Warn("invalid_message_received", "error", err.Error())
		return
	}
	if msg.InstanceID != "" && string(msg.InstanceID) != c.instanceID {
		c.logger.Debug("message_for_other_instance", "instance_id", msg.InstanceID)
		return
	}

	c.mu.RLock()
	listeners := slices.Clone(c.listeners)
	c.mu.RUnlock()

	for _, l := range listeners {
		l.fn(msg)
	}
}

// Send reports an action to the monitor together with the payload as state.
// An empty action reports the state alone.
func (c *Conn) Send(action string, payload json.RawMessage) error {
	if action == "" {
		return c.report(Report{Type: TypeState, Payload: stringify(payload)})
	}
	lifted, err := json.Marshal(liftedAction{
		Timestamp: time.Now().UnixMilli(),
		Action:    actionType{Type: action},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal action: %w", err)
	}
	return c.report(Report{
		Type:    TypeAction,
		Payload: stringify(payload),
		Action:  stringify(lifted),
	})
}

// Init tells the monitor this instance is ready, with an optional initial state.
func (c *Conn) Init(state json.RawMessage) error {
	return c.report(Report{
		Type:    TypeInit,
		Payload: stringify(state),
		Action:  json.RawMessage(`{}`),
	})
}

// Error reports an error payload to the monitor.
func (c *Conn) Error(payload json.RawMessage) error {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return c.report(Report{Type: TypeError, Payload: payload})
}

func (c *Conn) report(r Report) error {
	r.ID = c.socketID
	r.InstanceID = c.instanceID
	r.Name = c.opts.Name

	event := eventLog
	if c.socketID == "" {
		event = eventLogNoID
	}
	msg, err := newFrame(event, r, 0)
	if err != nil {
		return err
	}
	if err := c.write(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("failed to send %s report: %w", r.Type, err)
	}
	c.logger.Debug("report_sent", "type", r.Type, "instance_id", c.instanceID)
	return nil
}

func (c *Conn) write(messageType int, data []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	return c.ws.WriteMessage(messageType, data)
}

// Close ends the session. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		c.writeMu.Lock()
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.opts.WriteWait))
		c.writeMu.Unlock()

		err = c.ws.Close()
		c.logger.Info("monitor_connection_closed", "socket_id", c.socketID)
	})
	return err
}

func (c *Conn) SocketID() string   { return c.socketID }
func (c *Conn) InstanceID() string { return c.instanceID }
func (c *Conn) Channel() string    { return c.channel }
