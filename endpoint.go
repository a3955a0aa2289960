package cmdproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// MethodHandler serves one method for the peer on the other side of the
// transport. The returned value is encoded as the response result.
type MethodHandler func(ctx context.Context, params json.RawMessage) (any, error)

// Endpoint is one side of the RPC boundary: it correlates requests with
// responses and dispatches inbound requests and notifications to methods.
type Endpoint struct {
	transport Transport
	options   Options
	tracer    trace.Tracer

	methodsMu sync.RWMutex
	methods   map[string]MethodHandler

	pendingMu sync.Mutex
	pending   map[string]chan Envelope

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.RWMutex
}

// Handle registers the handler for method
func (e *Endpoint) Handle(method string, handler MethodHandler) error {
	if method == "" || handler == nil {
		return ErrInvalidCommand
	}
	e.methodsMu.Lock()
	defer e.methodsMu.Unlock()
	if _, exists := e.methods[method]; exists {
		return fmt.Errorf("method %s: %w", method, ErrHandlerAlreadyExists)
	}
	e.methods[method] = handler
	return nil
}

// Start begins listening for envelopes from the transport
func (e *Endpoint) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return ErrEndpointAlreadyStarted
	}

	if !e.transport.IsConnected() {
		return ErrTransportNotConnected
	}

	if err := e.transport.Subscribe(ctx); err != nil {
		return err
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.processMessages()
	}()

	e.started = true
	return nil
}

// processMessages routes inbound envelopes until the transport or the
// endpoint shuts down. Notifications are served in arrival order so that a
// register is never overtaken by the matching unregister.
func (e *Endpoint) processMessages() {
	msgChan := e.transport.Messages()

	for {
		select {
		case envelope, ok := <-msgChan:
			if !ok {
				return
			}

			if err := envelope.validate(); err != nil {
				e.options.reportError(e.ctx, "invalid envelope", CommandID(envelope.Method), err)
				continue
			}

			switch envelope.Kind {
			case KindResponse:
				e.resolve(envelope)
			case KindNotification:
				e.serve(envelope)
			case KindRequest:
				e.wg.Add(1)
				go func(env Envelope) {
					defer e.wg.Done()
					e.serve(env)
				}(envelope)
			}

		case <-e.ctx.Done():
			return
		}
	}
}

func (e *Endpoint) resolve(envelope Envelope) {
	e.pendingMu.Lock()
	ch, ok := e.pending[envelope.ID]
	delete(e.pending, envelope.ID)
	e.pendingMu.Unlock()

	if !ok {
		e.options.Logger.Printf("response %s: no pending request", envelope.ID)
		return
	}
	ch <- envelope
}

func (e *Endpoint) serve(envelope Envelope) {
	ctx := otel.GetTextMapPropagator().Extract(e.ctx, propagation.MapCarrier(envelope.Headers))
	ctx, span := e.tracer.Start(ctx, "cmdproxy.Serve "+envelope.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("rpc.method", envelope.Method)))
	defer span.End()

	e.methodsMu.RLock()
	handler, ok := e.methods[envelope.Method]
	e.methodsMu.RUnlock()

	var (
		result any
		err    error
	)
	if ok {
		result, err = e.invoke(ctx, handler, envelope.Params)
	} else {
		err = fmt.Errorf("%w: %s", ErrMethodNotFound, envelope.Method)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	if envelope.Kind == KindNotification {
		if err != nil {
			e.options.reportError(ctx, envelope.Method, "", err)
		}
		return
	}

	response := Envelope{ID: envelope.ID, Kind: KindResponse}
	if err == nil {
		response.Result, err = json.Marshal(result)
	}
	if err != nil {
		response.Result = nil
		response.Error = toRemoteError(err)
	}

	if err := e.transport.Publish(e.ctx, response); err != nil {
		e.options.reportError(ctx, "respond "+envelope.Method, "", err)
	}
}

// invoke runs handler, turning a panic into an error so the caller gets a
// failed response instead of the process going down.
func (e *Endpoint) invoke(ctx context.Context, handler MethodHandler, params json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: handler panicked: %v", ErrRemoteFailure, r)
		}
	}()
	return handler(ctx, params)
}

// Call sends a request and waits for its response. A non-nil result is
// filled from the decoded response. Errors reported by the peer come back as
// *RemoteError.
func (e *Endpoint) Call(ctx context.Context, method string, params any, result any) error {
	e.mu.RLock()
	started := e.started
	e.mu.RUnlock()
	if !started {
		return ErrEndpointNotStarted
	}

	ctx, span := e.tracer.Start(ctx, "cmdproxy.Call "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("rpc.method", method)))
	defer span.End()

	err := e.call(ctx, method, params, result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (e *Endpoint) call(ctx context.Context, method string, params any, result any) error {
	envelope, err := e.envelope(ctx, KindRequest, method, params)
	if err != nil {
		return err
	}
	envelope.ID = e.options.NewID()

	if e.options.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.options.RequestTimeout)
		defer cancel()
	}

	ch := make(chan Envelope, 1)
	e.pendingMu.Lock()
	e.pending[envelope.ID] = ch
	e.pendingMu.Unlock()
	defer func() {
		e.pendingMu.Lock()
		delete(e.pending, envelope.ID)
		e.pendingMu.Unlock()
	}()

	if err := e.transport.Publish(ctx, envelope); err != nil {
		return err
	}

	select {
	case response := <-ch:
		if response.Error != nil {
			return response.Error
		}
		if result != nil && len(response.Result) > 0 {
			if err := json.Unmarshal(response.Result, result); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("call %s: %w", method, ctx.Err())
	case <-e.ctx.Done():
		return fmt.Errorf("call %s: %w", method, ErrTransportNotConnected)
	}
}

// Notify sends a one-way message. It returns once the transport has accepted
// the message; the peer does not acknowledge it.
func (e *Endpoint) Notify(ctx context.Context, method string, params any) error {
	envelope, err := e.envelope(ctx, KindNotification, method, params)
	if err != nil {
		return err
	}
	return e.transport.Publish(ctx, envelope)
}

func (e *Endpoint) envelope(ctx context.Context, kind MessageKind, method string, params any) (Envelope, error) {
	envelope := Envelope{Kind: kind, Method: method, Headers: map[string]string{}}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return Envelope{}, fmt.Errorf("%w: encode %s params: %v", ErrInvalidCommand, method, err)
		}
		envelope.Params = data
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(envelope.Headers))
	return envelope, nil
}

// IsRunning returns true if the endpoint is currently running
func (e *Endpoint) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.started
}

// Shutdown stops message processing, closes the transport and fails every
// call still waiting for a response.
func (e *Endpoint) Shutdown() error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = false
	e.mu.Unlock()

	e.cancel()

	// Served requests may still be calling out; they observe the cancelled
	// context, so wait without holding the lock.
	err := e.transport.Close()
	e.wg.Wait()
	return err
}

// NewEndpoint creates an endpoint on top of transport
func NewEndpoint(transport Transport, opts ...Option) *Endpoint {
	ctx, cancel := context.WithCancel(context.Background())
	options := newOptions(opts)
	return &Endpoint{
		transport: transport,
		options:   options,
		tracer:    options.tracer(),
		methods:   make(map[string]MethodHandler),
		pending:   make(map[string]chan Envelope),
		ctx:       ctx,
		cancel:    cancel,
	}
}
