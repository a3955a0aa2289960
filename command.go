package cmdproxy

import (
	"context"
	"strings"
)

type CommandID string

// Hidden reports whether the command is internal and should be left out of
// user facing listings.
func (id CommandID) Hidden() bool {
	return strings.HasPrefix(string(id), "_")
}

// Command is an invokable command reference, optionally with fixed arguments
type Command struct {
	ID        CommandID `json:"id"`
	Title     string    `json:"title,omitempty"`
	Tooltip   string    `json:"tooltip,omitempty"`
	Arguments []any     `json:"arguments,omitempty"`
}

// CommandDescription describes a command when it is registered
type CommandDescription struct {
	ID       CommandID `json:"id"`
	Label    string    `json:"label,omitempty"`
	Category string    `json:"category,omitempty"`
}

// KeyBinding is a key sequence bound to a command on the main side
type KeyBinding struct {
	Command    CommandID `json:"command"`
	Keybinding string    `json:"keybinding"`
	When       string    `json:"when,omitempty"`
}

// Handler defines the function signature for executing a command locally
type Handler func(ctx context.Context, args ...any) (any, error)

// ArgumentProcessor transforms a single argument before it reaches a local handler
type ArgumentProcessor interface {
	ProcessArgument(arg any) any
}

// ArgumentProcessorFunc adapts a function to the ArgumentProcessor interface
type ArgumentProcessorFunc func(arg any) any

func (f ArgumentProcessorFunc) ProcessArgument(arg any) any {
	return f(arg)
}
