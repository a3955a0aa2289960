package cmdproxy

import (
	"github.com/valkey-io/valkey-go"
)

// ExtensionHost is the plugin side: a command registry mirrored to the main
// side over an endpoint.
type ExtensionHost struct {
	*Endpoint
	Commands *CommandRegistry
}

// MainHost is the main side: it serves the plugin side's registry calls and
// executes plugin-handled commands through the same endpoint.
type MainHost struct {
	*Endpoint
	Commands *MainCommandRegistry
}

// NewExtensionHost creates a plugin side host on top of transport
func NewExtensionHost(transport Transport, opts ...Option) (*ExtensionHost, error) {
	endpoint := NewEndpoint(transport, opts...)
	commands := NewCommandRegistry(NewRemoteMainProxy(endpoint), opts...)
	if err := ServeExtension(endpoint, commands); err != nil {
		return nil, err
	}
	return &ExtensionHost{Endpoint: endpoint, Commands: commands}, nil
}

// NewMainHost creates a main side host on top of transport
func NewMainHost(transport Transport, opts ...Option) (*MainHost, error) {
	endpoint := NewEndpoint(transport, opts...)
	commands := NewMainCommandRegistry(opts...)
	commands.SetExtension(NewRemoteExtensionProxy(endpoint))
	if err := ServeMain(endpoint, commands); err != nil {
		return nil, err
	}
	return &MainHost{Endpoint: endpoint, Commands: commands}, nil
}

// NewExtensionHostWithValkey creates a plugin side host using the channels
// derived from prefix.
func NewExtensionHostWithValkey(client valkey.Client, prefix string, opts ...Option) (*ExtensionHost, error) {
	return NewExtensionHost(NewExtensionValkeyTransport(client, prefix, opts...), opts...)
}

// NewMainHostWithValkey creates a main side host using the channels derived
// from prefix.
func NewMainHostWithValkey(client valkey.Client, prefix string, opts ...Option) (*MainHost, error) {
	return NewMainHost(NewMainValkeyTransport(client, prefix, opts...), opts...)
}

// NewExtensionHostWithValkeyAddress creates a plugin side host with a Valkey
// client connected to address.
func NewExtensionHostWithValkeyAddress(address, prefix string, clientOption valkey.ClientOption, opts ...Option) (*ExtensionHost, error) {
	client, err := NewValkeyClient(address, clientOption)
	if err != nil {
		return nil, err
	}
	return NewExtensionHostWithValkey(client, prefix, opts...)
}

// NewMainHostWithValkeyAddress creates a main side host with a Valkey client
// connected to address.
func NewMainHostWithValkeyAddress(address, prefix string, clientOption valkey.ClientOption, opts ...Option) (*MainHost, error) {
	client, err := NewValkeyClient(address, clientOption)
	if err != nil {
		return nil, err
	}
	return NewMainHostWithValkey(client, prefix, opts...)
}
