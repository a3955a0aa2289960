package cmdproxy

import "context"

// Transport defines the interface for the message transport layer between
// the plugin side and the main side. It only moves envelopes; correlation of
// requests and responses is done by the Endpoint.
type Transport interface {
	// Publish sends an envelope to the other side
	Publish(ctx context.Context, envelope Envelope) error

	// Subscribe starts listening for envelopes from the other side
	Subscribe(ctx context.Context) error

	// Messages returns a channel that receives envelopes from the transport
	// This channel should be closed when the transport is closed
	Messages() <-chan Envelope

	// Close shuts down the transport and releases resources
	Close() error

	// IsConnected returns true if the transport is connected and ready
	IsConnected() bool
}
