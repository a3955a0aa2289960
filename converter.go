package cmdproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"sync"
)

const safeCommandPrefix = "_cmdproxy.safeCommand."

// CommandsConverter turns commands with arguments into safe commands: the
// arguments stay on this side and the command sent across the boundary only
// carries a numeric handle, resolved by a trampoline command when executed.
type CommandsConverter struct {
	registry     *CommandRegistry
	trampolineID CommandID

	registerMu sync.Mutex
	registered bool

	mu         sync.Mutex
	nextHandle uint64
	commands   map[uint64]Command
}

// TrampolineID is the id every safe command is rewritten to
func (c *CommandsConverter) TrampolineID() CommandID {
	return c.trampolineID
}

// ToSafeCommand returns a copy of command that can cross the boundary. A
// command with arguments is rewritten to the trampoline with a fresh handle as
// its only argument, and the handle is released when scope is disposed.
// Commands without arguments are returned unchanged.
func (c *CommandsConverter) ToSafeCommand(ctx context.Context, command Command, scope Scope) (Command, error) {
	if scope == nil {
		return Command{}, fmt.Errorf("%w: safe command needs a scope", ErrInvalidCommand)
	}
	if err := c.ensureTrampoline(ctx); err != nil {
		return Command{}, err
	}

	safe := command
	if len(command.Arguments) == 0 {
		return safe, nil
	}

	original := command
	original.Arguments = append([]any(nil), command.Arguments...)

	c.mu.Lock()
	c.nextHandle++
	handle := c.nextHandle
	c.commands[handle] = original
	c.mu.Unlock()

	safe.ID = c.trampolineID
	safe.Arguments = []any{handle}

	scope.Push(NewDisposable(func() {
		c.mu.Lock()
		delete(c.commands, handle)
		c.mu.Unlock()
	}))

	return safe, nil
}

// FromSafeCommand resolves a command produced by ToSafeCommand back to the
// original. Commands that are not safe commands are returned as they are.
func (c *CommandsConverter) FromSafeCommand(command Command) (Command, error) {
	if command.ID != c.trampolineID {
		return command, nil
	}
	if len(command.Arguments) != 1 {
		return Command{}, fmt.Errorf("%w: safe command takes exactly one handle", ErrInvalidCommand)
	}
	return c.lookup(command.Arguments[0])
}

// Live reports how many handles are currently referenced
func (c *CommandsConverter) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.commands)
}

// ensureTrampoline registers the trampoline on first use. It holds its own
// lock so the handle table stays available while the main side is notified.
func (c *CommandsConverter) ensureTrampoline(ctx context.Context) error {
	c.registerMu.Lock()
	defer c.registerMu.Unlock()
	if c.registered {
		return nil
	}

	// Handles must reach lookup untouched by argument processors
	_, err := c.registry.registerCommand(ctx, CommandDescription{ID: c.trampolineID}, c.executeSafeCommand, true)
	if err != nil {
		return err
	}
	c.registered = true
	return nil
}

func (c *CommandsConverter) executeSafeCommand(ctx context.Context, args ...any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: missing handle", ErrSafeCommandNotFound)
	}
	command, err := c.lookup(args[0])
	if err != nil {
		return nil, err
	}
	return c.registry.ExecuteCommand(ctx, command.ID, command.Arguments...)
}

func (c *CommandsConverter) lookup(raw any) (Command, error) {
	handle, ok := parseHandle(raw)
	if !ok {
		return Command{}, fmt.Errorf("%w: malformed handle %v", ErrSafeCommandNotFound, raw)
	}

	c.mu.Lock()
	command, ok := c.commands[handle]
	c.mu.Unlock()
	if !ok {
		return Command{}, fmt.Errorf("%w: handle %d", ErrSafeCommandNotFound, handle)
	}
	command.Arguments = append([]any(nil), command.Arguments...)
	return command, nil
}

// parseHandle accepts the numeric shapes a handle can take after passing
// through a JSON codec.
func parseHandle(raw any) (uint64, bool) {
	switch v := raw.(type) {
	case uint64:
		return v, true
	case uint:
		return uint64(v), true
	case int:
		return uint64(v), v >= 0
	case int64:
		return uint64(v), v >= 0
	case float64:
		if v < 0 || v != math.Trunc(v) || v >= math.MaxUint64 {
			return 0, false
		}
		return uint64(v), true
	case json.Number:
		n, err := strconv.ParseUint(v.String(), 10, 64)
		return n, err == nil
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func newCommandsConverter(registry *CommandRegistry, newID func() string) *CommandsConverter {
	return &CommandsConverter{
		registry:     registry,
		trampolineID: CommandID(safeCommandPrefix + newID()),
		commands:     make(map[uint64]Command),
	}
}
