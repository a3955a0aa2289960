package cmdproxy

import (
	"context"
	"encoding/json"
	"fmt"
)

// RemoteMainProxy reaches the main side command registry through an Endpoint
type RemoteMainProxy struct {
	endpoint *Endpoint
}

func NewRemoteMainProxy(endpoint *Endpoint) *RemoteMainProxy {
	return &RemoteMainProxy{endpoint: endpoint}
}

func (p *RemoteMainProxy) RegisterCommand(ctx context.Context, description CommandDescription) error {
	return p.endpoint.Notify(ctx, MethodRegisterCommand, description)
}

func (p *RemoteMainProxy) UnregisterCommand(ctx context.Context, id CommandID) error {
	return p.endpoint.Notify(ctx, MethodUnregisterCommand, commandParams{ID: id})
}

func (p *RemoteMainProxy) RegisterHandler(ctx context.Context, id CommandID) error {
	return p.endpoint.Notify(ctx, MethodRegisterHandler, commandParams{ID: id})
}

func (p *RemoteMainProxy) UnregisterHandler(ctx context.Context, id CommandID) error {
	return p.endpoint.Notify(ctx, MethodUnregisterHandler, commandParams{ID: id})
}

func (p *RemoteMainProxy) ExecuteCommand(ctx context.Context, id CommandID, args []any) (any, error) {
	var result any
	if err := p.endpoint.Call(ctx, MethodExecuteCommand, executeParams{ID: id, Args: args}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (p *RemoteMainProxy) GetCommands(ctx context.Context) ([]CommandID, error) {
	var ids []CommandID
	if err := p.endpoint.Call(ctx, MethodGetCommands, nil, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (p *RemoteMainProxy) GetKeyBinding(ctx context.Context, id CommandID) ([]KeyBinding, error) {
	var bindings []KeyBinding
	if err := p.endpoint.Call(ctx, MethodGetKeyBinding, commandParams{ID: id}, &bindings); err != nil {
		return nil, err
	}
	return bindings, nil
}

// RemoteExtensionProxy reaches the plugin side registry through an Endpoint
type RemoteExtensionProxy struct {
	endpoint *Endpoint
}

func NewRemoteExtensionProxy(endpoint *Endpoint) *RemoteExtensionProxy {
	return &RemoteExtensionProxy{endpoint: endpoint}
}

func (p *RemoteExtensionProxy) ExecuteCommand(ctx context.Context, id CommandID, args []any) (any, error) {
	var result any
	if err := p.endpoint.Call(ctx, MethodExecuteCommand, executeParams{ID: id, Args: args}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ServeExtension exposes the plugin side registry to the main side
func ServeExtension(endpoint *Endpoint, registry *CommandRegistry) error {
	return endpoint.Handle(MethodExecuteCommand, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var params executeParams
		if err := decodeParams(raw, &params); err != nil {
			return nil, err
		}
		return registry.ExecuteRemoteCommand(ctx, params.ID, params.Args...)
	})
}

// ServeMain exposes the main side registry to the plugin side
func ServeMain(endpoint *Endpoint, main *MainCommandRegistry) error {
	handlers := map[string]MethodHandler{
		MethodRegisterCommand: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var description CommandDescription
			if err := decodeParams(raw, &description); err != nil {
				return nil, err
			}
			return nil, main.RegisterCommand(ctx, description)
		},
		MethodUnregisterCommand: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var params commandParams
			if err := decodeParams(raw, &params); err != nil {
				return nil, err
			}
			return nil, main.UnregisterCommand(ctx, params.ID)
		},
		MethodRegisterHandler: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var params commandParams
			if err := decodeParams(raw, &params); err != nil {
				return nil, err
			}
			return nil, main.RegisterHandler(ctx, params.ID)
		},
		MethodUnregisterHandler: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var params commandParams
			if err := decodeParams(raw, &params); err != nil {
				return nil, err
			}
			return nil, main.UnregisterHandler(ctx, params.ID)
		},
		MethodExecuteCommand: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var params executeParams
			if err := decodeParams(raw, &params); err != nil {
				return nil, err
			}
			return main.ExecuteCommand(ctx, params.ID, params.Args)
		},
		MethodGetCommands: func(ctx context.Context, raw json.RawMessage) (any, error) {
			return main.GetCommands(ctx)
		},
		MethodGetKeyBinding: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var params commandParams
			if err := decodeParams(raw, &params); err != nil {
				return nil, err
			}
			return main.GetKeyBinding(ctx, params.ID)
		},
	}

	for method, handler := range handlers {
		if err := endpoint.Handle(method, handler); err != nil {
			return err
		}
	}
	return nil
}

func decodeParams(raw json.RawMessage, target any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing params", ErrInvalidCommand)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	return nil
}
