package cmdproxy

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"
)

// MockTransport implements the Transport interface for testing. Envelopes
// published on one transport are delivered to its peer.
type MockTransport struct {
	mu         sync.RWMutex
	published  []Envelope
	connected  bool
	subscribed bool
	peer       *MockTransport
	msgChan    chan Envelope
	closedChan chan struct{}
	once       sync.Once
}

func NewMockTransport() *MockTransport {
	return &MockTransport{
		published:  make([]Envelope, 0),
		connected:  true,
		msgChan:    make(chan Envelope, 100),
		closedChan: make(chan struct{}),
	}
}

// NewMockPipe returns two transports wired to each other
func NewMockPipe() (*MockTransport, *MockTransport) {
	a, b := NewMockTransport(), NewMockTransport()
	a.peer, b.peer = b, a
	return a, b
}

func (m *MockTransport) Publish(ctx context.Context, envelope Envelope) error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return ErrPublishFailed
	}
	m.published = append(m.published, envelope)
	peer := m.peer
	m.mu.Unlock()

	if peer != nil {
		peer.InjectEnvelope(envelope)
	}
	return nil
}

func (m *MockTransport) Subscribe(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrSubscribeFailed
	}

	m.subscribed = true
	return nil
}

func (m *MockTransport) Messages() <-chan Envelope {
	return m.msgChan
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil
	}

	m.once.Do(func() {
		close(m.closedChan)
		close(m.msgChan)
		m.connected = false
		m.subscribed = false
	})

	return nil
}

func (m *MockTransport) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (m *MockTransport) GetPublished() []Envelope {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]Envelope, len(m.published))
	copy(result, m.published)
	return result
}

// InjectEnvelope delivers an envelope as if it came from the peer
func (m *MockTransport) InjectEnvelope(envelope Envelope) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.connected {
		return
	}
	select {
	case m.msgChan <- envelope:
	default:
		// Channel full
	}
}

// recordingProxy is a MainProxy that records every call
type recordingProxy struct {
	mu         sync.Mutex
	calls      []string
	commands   []CommandID
	bindings   map[CommandID][]KeyBinding
	notifyErr  error
	executeErr error
	executed   []Command
}

func (p *recordingProxy) record(call string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
	return p.notifyErr
}

func (p *recordingProxy) RegisterCommand(ctx context.Context, description CommandDescription) error {
	return p.record("registerCommand:" + string(description.ID))
}

func (p *recordingProxy) UnregisterCommand(ctx context.Context, id CommandID) error {
	return p.record("unregisterCommand:" + string(id))
}

func (p *recordingProxy) RegisterHandler(ctx context.Context, id CommandID) error {
	return p.record("registerHandler:" + string(id))
}

func (p *recordingProxy) UnregisterHandler(ctx context.Context, id CommandID) error {
	return p.record("unregisterHandler:" + string(id))
}

func (p *recordingProxy) ExecuteCommand(ctx context.Context, id CommandID, args []any) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.executed = append(p.executed, Command{ID: id, Arguments: args})
	if p.executeErr != nil {
		return nil, p.executeErr
	}
	return "remote:" + string(id), nil
}

func (p *recordingProxy) GetCommands(ctx context.Context) ([]CommandID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]CommandID(nil), p.commands...), nil
}

func (p *recordingProxy) GetKeyBinding(ctx context.Context, id CommandID) ([]KeyBinding, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bindings[id], nil
}

func (p *recordingProxy) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *recordingProxy) Executed() []Command {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Command(nil), p.executed...)
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}
