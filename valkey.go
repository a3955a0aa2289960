package cmdproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/valkey-io/valkey-go"
)

const (
	mainChannelSuffix = ".main"
	extChannelSuffix  = ".ext"
)

// ValkeyTransport carries envelopes over valkey pub/sub. It publishes on one
// channel and listens on another, so each side of the boundary owns the
// channel the other side writes to.
type ValkeyTransport struct {
	client         valkey.Client
	publishChannel string
	listenChannel  string
	ctx            context.Context
	cancel         context.CancelFunc
	mu             sync.RWMutex
	isSubscribed   bool
	connected      bool
	msgChan        chan Envelope
	closedChan     chan struct{}
	once           sync.Once
	options        Options
}

// Publish publishes an envelope to the peer's channel
func (v *ValkeyTransport) Publish(ctx context.Context, envelope Envelope) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if !v.connected {
		return ErrTransportNotConnected
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	cmd := v.client.B().Publish().Channel(v.publishChannel).Message(string(data)).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	return nil
}

// Subscribe starts subscribing to the listen channel
func (v *ValkeyTransport) Subscribe(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.isSubscribed {
		return nil
	}

	if !v.connected {
		return ErrTransportNotConnected
	}

	go v.subscriptionLoop()

	v.isSubscribed = true
	return nil
}

// subscriptionLoop keeps the subscription alive, reconnecting with
// exponential backoff until the transport is closed.
func (v *ValkeyTransport) subscriptionLoop() {
	defer func() {
		v.mu.Lock()
		v.isSubscribed = false
		close(v.msgChan)
		v.mu.Unlock()
	}()

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 100 * time.Millisecond
	retry.MaxInterval = 30 * time.Second
	subscriber := v.client.B().Subscribe().Channel(v.listenChannel).Build()

	for {
		if v.shouldStop() {
			return
		}

		// Blocks until the connection drops or the context is cancelled
		err := v.client.Receive(v.ctx, subscriber, v.handleMessage)

		if v.shouldStop() {
			return
		}

		if err != nil {
			v.options.Logger.Printf("valkey subscribe %s: %v", v.listenChannel, err)
			if !v.sleep(retry.NextBackOff()) {
				return
			}
			continue
		}

		retry.Reset()
		if !v.sleep(retry.InitialInterval) {
			return
		}
	}
}

func (v *ValkeyTransport) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-v.closedChan:
		return false
	case <-v.ctx.Done():
		return false
	}
}

// handleMessage decodes a single pub/sub message into an envelope
func (v *ValkeyTransport) handleMessage(msg valkey.PubSubMessage) {
	if msg.Channel != v.listenChannel {
		return
	}

	var envelope Envelope
	if err := json.Unmarshal([]byte(msg.Message), &envelope); err != nil {
		v.options.reportError(v.ctx, "decode envelope", "", err)
		return
	}

	// Non-blocking so a slow consumer cannot stall the subscription
	select {
	case v.msgChan <- envelope:
	case <-v.closedChan:
		return
	case <-v.ctx.Done():
		return
	default:
		v.options.reportError(v.ctx, "drop envelope", "", fmt.Errorf("message buffer full, dropped %s %s", envelope.Kind, envelope.Method))
	}
}

// Messages returns a channel that receives envelopes from the transport
func (v *ValkeyTransport) Messages() <-chan Envelope {
	return v.msgChan
}

// Close shuts down the valkey transport and cleans up resources
func (v *ValkeyTransport) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.connected {
		return nil
	}

	v.once.Do(func() {
		close(v.closedChan)
		v.cancel()
		v.client.Close()
		v.connected = false
	})

	return nil
}

// IsConnected returns true if the transport is connected and ready
func (v *ValkeyTransport) IsConnected() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.connected
}

func (v *ValkeyTransport) shouldStop() bool {
	select {
	case <-v.closedChan:
		return true
	case <-v.ctx.Done():
		return true
	default:
		return false
	}
}

// NewValkeyClient creates a new valkey client with common configuration
func NewValkeyClient(address string, options ...valkey.ClientOption) (valkey.Client, error) {
	var clientOption valkey.ClientOption
	if len(options) > 0 {
		clientOption = options[0]
	}
	if len(clientOption.InitAddress) == 0 {
		clientOption.InitAddress = []string{address}
	}

	client, err := valkey.NewClient(clientOption)
	if err != nil {
		return nil, err
	}

	return client, nil
}

// NewValkeyTransport creates a transport that publishes on publishChannel and
// listens on listenChannel.
func NewValkeyTransport(client valkey.Client, publishChannel, listenChannel string, opts ...Option) Transport {
	ctx, cancel := context.WithCancel(context.Background())
	options := newOptions(opts)

	return &ValkeyTransport{
		client:         client,
		publishChannel: publishChannel,
		listenChannel:  listenChannel,
		ctx:            ctx,
		cancel:         cancel,
		connected:      true,
		msgChan:        make(chan Envelope, options.MsgBufferSize),
		closedChan:     make(chan struct{}),
		options:        options,
	}
}

// NewExtensionValkeyTransport returns the plugin side transport for the
// channel prefix: it writes to "<prefix>.main" and reads "<prefix>.ext".
func NewExtensionValkeyTransport(client valkey.Client, prefix string, opts ...Option) Transport {
	return NewValkeyTransport(client, prefix+mainChannelSuffix, prefix+extChannelSuffix, opts...)
}

// NewMainValkeyTransport returns the main side transport for the channel
// prefix: it writes to "<prefix>.ext" and reads "<prefix>.main".
func NewMainValkeyTransport(client valkey.Client, prefix string, opts ...Option) Transport {
	return NewValkeyTransport(client, prefix+extChannelSuffix, prefix+mainChannelSuffix, opts...)
}
