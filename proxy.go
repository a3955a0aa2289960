package cmdproxy

import "context"

// MainProxy is the main side of the command registry as seen from the plugin
// side. Registration calls are notifications: they return once the message
// has been handed to the transport, without waiting for the main side.
type MainProxy interface {
	RegisterCommand(ctx context.Context, description CommandDescription) error
	UnregisterCommand(ctx context.Context, id CommandID) error
	RegisterHandler(ctx context.Context, id CommandID) error
	UnregisterHandler(ctx context.Context, id CommandID) error
	ExecuteCommand(ctx context.Context, id CommandID, args []any) (any, error)
	GetCommands(ctx context.Context) ([]CommandID, error)
	GetKeyBinding(ctx context.Context, id CommandID) ([]KeyBinding, error)
}

// ExtensionProxy is the plugin side as seen from the main side
type ExtensionProxy interface {
	ExecuteCommand(ctx context.Context, id CommandID, args []any) (any, error)
}
