package cmdproxy

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type processorEntry struct {
	processor ArgumentProcessor
}

// CommandRegistry is the plugin-side command table. Every registration is
// mirrored to the main side through a MainProxy; commands without a local
// handler are executed by forwarding them there.
type CommandRegistry struct {
	proxy      MainProxy
	options    Options
	tracer     trace.Tracer
	mu         sync.RWMutex
	commands   map[CommandID]CommandDescription
	handlers   map[CommandID]Handler
	raw        map[CommandID]bool
	processors []*processorEntry
	converter  *CommandsConverter
	convOnce   sync.Once
}

// RegisterCommand records the command, tells the main side about it and, when
// handler is not nil, attaches it. Disposing the result detaches the handler
// and unregisters the command on both sides.
func (r *CommandRegistry) RegisterCommand(ctx context.Context, description CommandDescription, handler Handler) (Disposable, error) {
	return r.registerCommand(ctx, description, handler, false)
}

// registerCommand is RegisterCommand with control over argument processing.
// A raw handler receives its arguments exactly as passed to ExecuteCommand.
func (r *CommandRegistry) registerCommand(ctx context.Context, description CommandDescription, handler Handler, raw bool) (Disposable, error) {
	id := description.ID
	if id == "" {
		return nil, ErrInvalidCommand
	}

	r.mu.Lock()
	if _, exists := r.commands[id]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("register command %q: %w", id, ErrDuplicateCommand)
	}
	r.commands[id] = description
	r.mu.Unlock()

	r.notify(ctx, "register command", id, func(ctx context.Context) error {
		return r.proxy.RegisterCommand(ctx, description)
	})

	disposables := NewDisposableCollection(NewDisposable(func() {
		r.mu.Lock()
		delete(r.commands, id)
		r.mu.Unlock()
		r.notify(context.WithoutCancel(ctx), "unregister command", id, func(ctx context.Context) error {
			return r.proxy.UnregisterCommand(ctx, id)
		})
	}))

	if handler != nil {
		d, err := r.registerHandler(ctx, id, handler, raw)
		if err != nil {
			disposables.Dispose()
			return nil, err
		}
		disposables.Push(d)
	}

	return disposables, nil
}

// RegisterHandler attaches handler to id and tells the main side that the
// plugin side can now execute it.
func (r *CommandRegistry) RegisterHandler(ctx context.Context, id CommandID, handler Handler) (Disposable, error) {
	return r.registerHandler(ctx, id, handler, false)
}

func (r *CommandRegistry) registerHandler(ctx context.Context, id CommandID, handler Handler, raw bool) (Disposable, error) {
	if id == "" || handler == nil {
		return nil, ErrInvalidCommand
	}

	r.mu.Lock()
	if _, exists := r.handlers[id]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("register handler %q: %w", id, ErrHandlerAlreadyExists)
	}
	r.handlers[id] = handler
	if raw {
		r.raw[id] = true
	}
	r.mu.Unlock()

	r.notify(ctx, "register handler", id, func(ctx context.Context) error {
		return r.proxy.RegisterHandler(ctx, id)
	})

	return NewDisposable(func() {
		r.mu.Lock()
		delete(r.handlers, id)
		delete(r.raw, id)
		r.mu.Unlock()
		r.notify(context.WithoutCancel(ctx), "unregister handler", id, func(ctx context.Context) error {
			return r.proxy.UnregisterHandler(ctx, id)
		})
	}), nil
}

// RegisterArgumentProcessor appends p to the chain applied to every argument
// passed to a local handler. Processors run in registration order.
func (r *CommandRegistry) RegisterArgumentProcessor(p ArgumentProcessor) Disposable {
	entry := &processorEntry{processor: p}
	r.mu.Lock()
	r.processors = append(r.processors, entry)
	r.mu.Unlock()

	return NewDisposable(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, e := range r.processors {
			if e == entry {
				r.processors = append(r.processors[:i:i], r.processors[i+1:]...)
				return
			}
		}
	})
}

// ExecuteCommand runs the local handler for id, or forwards the command to the
// main side after translating it through the known-command table.
func (r *CommandRegistry) ExecuteCommand(ctx context.Context, id CommandID, args ...any) (any, error) {
	ctx, span := r.tracer.Start(ctx, "cmdproxy.ExecuteCommand",
		trace.WithAttributes(attribute.String("command.id", string(id))))
	defer span.End()

	r.mu.RLock()
	handler, ok := r.handlers[id]
	raw := r.raw[id]
	r.mu.RUnlock()

	var (
		result any
		err    error
	)
	if ok {
		span.SetAttributes(attribute.Bool("command.local", true))
		result, err = r.executeLocal(ctx, handler, raw, args)
	} else {
		result, err = r.executeRemote(ctx, id, args)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

// ExecuteRemoteCommand is the entry point for executions requested by the
// main side. Only local handlers are considered: forwarding back to the main
// side would loop.
func (r *CommandRegistry) ExecuteRemoteCommand(ctx context.Context, id CommandID, args ...any) (any, error) {
	ctx, span := r.tracer.Start(ctx, "cmdproxy.ExecuteRemoteCommand",
		trace.WithAttributes(attribute.String("command.id", string(id))))
	defer span.End()

	r.mu.RLock()
	handler, ok := r.handlers[id]
	raw := r.raw[id]
	r.mu.RUnlock()
	if !ok {
		err := fmt.Errorf("execute %q: %w", id, ErrHandlerNotFound)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result, err := r.executeLocal(ctx, handler, raw, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (r *CommandRegistry) executeLocal(ctx context.Context, handler Handler, raw bool, args []any) (any, error) {
	if raw {
		return handler(ctx, args...)
	}
	return handler(ctx, r.processArguments(args)...)
}

func (r *CommandRegistry) executeRemote(ctx context.Context, id CommandID, args []any) (any, error) {
	remoteID, remoteArgs, _, err := r.options.KnownCommands.Map(id, args)
	if err != nil {
		return nil, err
	}
	return r.proxy.ExecuteCommand(ctx, remoteID, remoteArgs)
}

func (r *CommandRegistry) processArguments(args []any) []any {
	r.mu.RLock()
	processors := make([]ArgumentProcessor, len(r.processors))
	for i, e := range r.processors {
		processors[i] = e.processor
	}
	r.mu.RUnlock()

	if len(processors) == 0 || len(args) == 0 {
		return args
	}

	processed := make([]any, len(args))
	for i, arg := range args {
		for _, p := range processors {
			arg = p.ProcessArgument(arg)
		}
		processed[i] = arg
	}
	return processed
}

// GetCommands fetches the ids known to the main side. With filterHidden set,
// internal ids (leading underscore) are dropped.
func (r *CommandRegistry) GetCommands(ctx context.Context, filterHidden bool) ([]CommandID, error) {
	ids, err := r.proxy.GetCommands(ctx)
	if err != nil {
		return nil, err
	}
	if !filterHidden {
		return ids, nil
	}

	visible := make([]CommandID, 0, len(ids))
	for _, id := range ids {
		if !id.Hidden() {
			visible = append(visible, id)
		}
	}
	return visible, nil
}

func (r *CommandRegistry) GetKeyBinding(ctx context.Context, id CommandID) ([]KeyBinding, error) {
	return r.proxy.GetKeyBinding(ctx, id)
}

func (r *CommandRegistry) HasCommand(id CommandID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.commands[id]
	return ok
}

func (r *CommandRegistry) HasHandler(id CommandID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[id]
	return ok
}

// Converter returns the registry's safe-command converter
func (r *CommandRegistry) Converter() *CommandsConverter {
	r.convOnce.Do(func() {
		r.converter = newCommandsConverter(r, r.options.NewID)
	})
	return r.converter
}

// notify sends a registration notification. The main side's acknowledgement
// is not awaited, so failures are only reported through the error handler.
func (r *CommandRegistry) notify(ctx context.Context, op string, id CommandID, send func(ctx context.Context) error) {
	if err := send(ctx); err != nil {
		r.options.reportError(ctx, op, id, err)
	}
}

// NewCommandRegistry creates a registry mirrored to the main side through proxy
func NewCommandRegistry(proxy MainProxy, opts ...Option) *CommandRegistry {
	options := newOptions(opts)
	return &CommandRegistry{
		proxy:    proxy,
		options:  options,
		tracer:   options.tracer(),
		commands: make(map[CommandID]CommandDescription),
		handlers: make(map[CommandID]Handler),
		raw:      make(map[CommandID]bool),
	}
}
