package cmdproxy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MainCommandRegistry is the main side counterpart of CommandRegistry. It
// knows the commands the plugin side announced, which of them the plugin side
// can execute, and the commands implemented by the host itself.
type MainCommandRegistry struct {
	options Options
	tracer  trace.Tracer

	mu           sync.RWMutex
	extension    ExtensionProxy
	commands     map[CommandID]CommandDescription
	delegated    map[CommandID]struct{}
	hostCommands map[CommandID]CommandDescription
	hostHandlers map[CommandID]Handler
	keybindings  map[CommandID][]KeyBinding
}

// SetExtension sets the proxy used to execute commands handled by the plugin side
func (m *MainCommandRegistry) SetExtension(extension ExtensionProxy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extension = extension
}

func (m *MainCommandRegistry) RegisterCommand(ctx context.Context, description CommandDescription) error {
	if description.ID == "" {
		return ErrInvalidCommand
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.commands[description.ID]; exists {
		return fmt.Errorf("register command %q: %w", description.ID, ErrDuplicateCommand)
	}
	if _, exists := m.hostCommands[description.ID]; exists {
		return fmt.Errorf("register command %q: %w", description.ID, ErrDuplicateCommand)
	}
	m.commands[description.ID] = description
	return nil
}

func (m *MainCommandRegistry) UnregisterCommand(ctx context.Context, id CommandID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.commands[id]; !exists {
		return fmt.Errorf("unregister command %q: %w", id, ErrCommandNotFound)
	}
	delete(m.commands, id)
	return nil
}

func (m *MainCommandRegistry) RegisterHandler(ctx context.Context, id CommandID) error {
	if id == "" {
		return ErrInvalidCommand
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.delegated[id]; exists {
		return fmt.Errorf("register handler %q: %w", id, ErrHandlerAlreadyExists)
	}
	m.delegated[id] = struct{}{}
	return nil
}

func (m *MainCommandRegistry) UnregisterHandler(ctx context.Context, id CommandID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.delegated[id]; !exists {
		return fmt.Errorf("unregister handler %q: %w", id, ErrHandlerNotFound)
	}
	delete(m.delegated, id)
	return nil
}

// ExecuteCommand runs a host command, or asks the plugin side to run a
// command it registered a handler for.
func (m *MainCommandRegistry) ExecuteCommand(ctx context.Context, id CommandID, args []any) (any, error) {
	ctx, span := m.tracer.Start(ctx, "cmdproxy.MainExecuteCommand",
		trace.WithAttributes(attribute.String("command.id", string(id))))
	defer span.End()

	result, err := m.execute(ctx, id, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (m *MainCommandRegistry) execute(ctx context.Context, id CommandID, args []any) (any, error) {
	m.mu.RLock()
	handler, isHost := m.hostHandlers[id]
	_, isDelegated := m.delegated[id]
	_, isKnown := m.commands[id]
	extension := m.extension
	m.mu.RUnlock()

	switch {
	case isHost:
		return handler(ctx, args...)
	case isDelegated && extension != nil:
		return extension.ExecuteCommand(ctx, id, args)
	case isKnown || isDelegated:
		return nil, fmt.Errorf("execute %q: %w", id, ErrHandlerNotFound)
	default:
		return nil, fmt.Errorf("execute %q: %w", id, ErrCommandNotFound)
	}
}

// GetCommands returns every command id known to the main side, sorted
func (m *MainCommandRegistry) GetCommands(ctx context.Context) ([]CommandID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]CommandID, 0, len(m.commands)+len(m.hostCommands))
	for id := range m.commands {
		ids = append(ids, id)
	}
	for id := range m.hostCommands {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *MainCommandRegistry) GetKeyBinding(ctx context.Context, id CommandID) ([]KeyBinding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bindings := m.keybindings[id]
	return append([]KeyBinding(nil), bindings...), nil
}

// RegisterHostCommand adds a command implemented on the main side
func (m *MainCommandRegistry) RegisterHostCommand(description CommandDescription, handler Handler) (Disposable, error) {
	id := description.ID
	if id == "" || handler == nil {
		return nil, ErrInvalidCommand
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.hostCommands[id]; exists {
		return nil, fmt.Errorf("register host command %q: %w", id, ErrDuplicateCommand)
	}
	if _, exists := m.commands[id]; exists {
		return nil, fmt.Errorf("register host command %q: %w", id, ErrDuplicateCommand)
	}
	m.hostCommands[id] = description
	m.hostHandlers[id] = handler

	return NewDisposable(func() {
		m.mu.Lock()
		delete(m.hostCommands, id)
		delete(m.hostHandlers, id)
		m.mu.Unlock()
	}), nil
}

// AddKeyBinding binds a key sequence to a command
func (m *MainCommandRegistry) AddKeyBinding(binding KeyBinding) Disposable {
	m.mu.Lock()
	m.keybindings[binding.Command] = append(m.keybindings[binding.Command], binding)
	m.mu.Unlock()

	return NewDisposable(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		bindings := m.keybindings[binding.Command]
		for i, b := range bindings {
			if b == binding {
				bindings = append(bindings[:i:i], bindings[i+1:]...)
				break
			}
		}
		if len(bindings) == 0 {
			delete(m.keybindings, binding.Command)
		} else {
			m.keybindings[binding.Command] = bindings
		}
	})
}

func NewMainCommandRegistry(opts ...Option) *MainCommandRegistry {
	options := newOptions(opts)
	return &MainCommandRegistry{
		options:      options,
		tracer:       options.tracer(),
		commands:     make(map[CommandID]CommandDescription),
		delegated:    make(map[CommandID]struct{}),
		hostCommands: make(map[CommandID]CommandDescription),
		hostHandlers: make(map[CommandID]Handler),
		keybindings:  make(map[CommandID][]KeyBinding),
	}
}
