package relay

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/1dr0z/elm-redux-devtools/internal/remotedev"
)

const maxPreview = 120

// Console prints a coloured one-line summary of each monitor message.
type Console struct {
	out io.Writer
	mu  sync.Mutex

	action  *color.Color
	control *color.Color
	failure *color.Color
}

func NewConsole(out io.Writer) *Console {
	return &Console{
		out:     out,
		action:  color.New(color.FgCyan),
		control: color.New(color.FgYellow),
		failure: color.New(color.FgRed),
	}
}

func (c *Console) Print(msg remotedev.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	preview := truncate(string(msg.Payload), maxPreview)

	switch msg.Type {
	case "DISPATCH", remotedev.TypeAction:
		c.action.Fprintf(c.out, "→ [%s] %s\n", msg.Type, preview)
	case "START", "STOP", "DISCONNECTED":
		c.control.Fprintf(c.out, "🔔 monitor %s\n", msg.Type)
	default:
		fmt.Fprintf(c.out, "· [%s] %s\n", msg.Type, preview)
	}
}

func (c *Console) PrintError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failure.Fprintf(c.out, "✗ %v\n", err)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
