package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/1dr0z/elm-redux-devtools/internal/remotedev"
)

// Handle is the monitor session the relay observes and answers on.
// *remotedev.Conn satisfies it.
type Handle interface {
	Subscribe(listener remotedev.Listener) (unsubscribe func())
	Send(action string, payload json.RawMessage) error
	Init(state json.RawMessage) error
	Listen(ctx context.Context) error
}

// Stats is a snapshot of what the relay has handled so far.
type Stats struct {
	Received   int64  `json:"received"`
	Forwarded  int64  `json:"forwarded"`
	Failed     int64  `json:"failed"`
	LastAction string `json:"last_action,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

// Relay forwards every action the monitor sends back over the same session.
type Relay struct {
	handle  Handle
	logger  *slog.Logger
	console *Console

	received  atomic.Int64
	forwarded atomic.Int64
	failed    atomic.Int64

	mu         sync.Mutex // guards the last* fields read by Stats
	lastAction string
	lastError  string
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

// WithConsole echoes every inbound message to a console printer.
func WithConsole(console *Console) Option {
	return func(r *Relay) { r.console = console }
}

func New(handle Handle, opts ...Option) *Relay {
	r := &Relay{
		handle: handle,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run subscribes to the session, announces the instance and blocks while the
// session delivers messages.
func (r *Relay) Run(ctx context.Context) error {
	unsubscribe := r.handle.Subscribe(r.Handle)
	defer unsubscribe()

	if err := r.handle.Init(nil); err != nil {
		return fmt.Errorf("failed to start monitoring session: %w", err)
	}
	r.logger.Info("relay_started")

	return r.handle.Listen(ctx)
}

// Handle relays a single message. Failures are logged and swallowed.
func (r *Relay) Handle(msg remotedev.Message) {
	r.received.Add(1)
	r.logger.Info("message_received",
		"type", msg.Type,
		"raw", string(msg.Raw),
	)
	if r.console != nil {
		r.console.Print(msg)
	}

	cmd, err := r.forward(msg)
	if err != nil {
		r.failed.Add(1)
		r.mu.Lock()
		r.lastError = err.Error()
		r.mu.Unlock()

		r.logger.Error("message_handling_failed",
			"type", msg.Type,
			"error", err.Error(),
		)
		if r.console != nil {
			r.console.PrintError(err)
		}
		return
	}

	r.forwarded.Add(1)
	r.mu.Lock()
	r.lastAction = cmd.Type
	r.mu.Unlock()

	r.logger.Info("message_forwarded",
		"action", cmd.Type,
	)
}

func (r *Relay) forward(msg remotedev.Message) (*Command, error) {
	cmd, err := DecodeCommand(msg.Payload)
	if err != nil {
		return nil, &HandlingError{MessageType: msg.Type, Err: err}
	}
	if err := r.handle.Send(cmd.Type, cmd.Payload); err != nil {
		return nil, &HandlingError{MessageType: msg.Type, Err: fmt.Errorf("%w: %w", ErrSend, err)}
	}
	return cmd, nil
}

func (r *Relay) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Received:   r.received.Load(),
		Forwarded:  r.forwarded.Load(),
		Failed:     r.failed.Load(),
		LastAction: r.lastAction,
		LastError:  r.lastError,
	}
}
