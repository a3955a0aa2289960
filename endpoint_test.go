package cmdproxy

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

func newTestEndpoint(transport Transport, opts ...Option) *Endpoint {
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return NewEndpoint(transport, opts...)
}

func startPair(t *testing.T, opts ...Option) (*Endpoint, *Endpoint) {
	t.Helper()
	a, b := NewMockPipe()
	left, right := newTestEndpoint(a, opts...), newTestEndpoint(b, opts...)
	ctx := context.Background()
	if err := left.Start(ctx); err != nil {
		t.Fatalf("Failed to start endpoint: %v", err)
	}
	if err := right.Start(ctx); err != nil {
		t.Fatalf("Failed to start endpoint: %v", err)
	}
	t.Cleanup(func() {
		left.Shutdown()
		right.Shutdown()
	})
	return left, right
}

func TestEndpointShutdown(t *testing.T) {
	transport := NewMockTransport()
	endpoint := newTestEndpoint(transport)

	if err := endpoint.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start endpoint: %v", err)
	}
	if !endpoint.IsRunning() {
		t.Fatal("Expected endpoint to be running")
	}

	if err := endpoint.Shutdown(); err != nil {
		t.Fatalf("Failed to shutdown endpoint: %v", err)
	}
	if endpoint.IsRunning() {
		t.Fatal("Expected endpoint to be stopped after shutdown")
	}
	if transport.IsConnected() {
		t.Fatal("Expected transport to be disconnected after shutdown")
	}
}

func TestEndpointStartTwice(t *testing.T) {
	endpoint := newTestEndpoint(NewMockTransport())
	ctx := context.Background()

	if err := endpoint.Start(ctx); err != nil {
		t.Fatalf("Failed to start endpoint first time: %v", err)
	}
	defer endpoint.Shutdown()

	if err := endpoint.Start(ctx); err != ErrEndpointAlreadyStarted {
		t.Fatalf("Expected ErrEndpointAlreadyStarted when starting twice, got: %v", err)
	}
}

func TestEndpointStartNotConnected(t *testing.T) {
	transport := NewMockTransport()
	transport.Close()
	endpoint := newTestEndpoint(transport)

	if err := endpoint.Start(context.Background()); err != ErrTransportNotConnected {
		t.Fatalf("Expected ErrTransportNotConnected when transport not connected, got: %v", err)
	}
}

func TestEndpointCallBeforeStart(t *testing.T) {
	endpoint := newTestEndpoint(NewMockTransport())

	err := endpoint.Call(context.Background(), "anything", nil, nil)
	if err != ErrEndpointNotStarted {
		t.Fatalf("Expected ErrEndpointNotStarted, got: %v", err)
	}
}

func TestEndpointHandleDuplicate(t *testing.T) {
	endpoint := newTestEndpoint(NewMockTransport())
	handler := func(ctx context.Context, params json.RawMessage) (any, error) { return nil, nil }

	if err := endpoint.Handle("m", handler); err != nil {
		t.Fatalf("Expected no error registering method, got: %v", err)
	}
	if err := endpoint.Handle("m", handler); !errors.Is(err, ErrHandlerAlreadyExists) {
		t.Fatalf("Expected ErrHandlerAlreadyExists, got: %v", err)
	}
}

func TestEndpointCallResponse(t *testing.T) {
	client, server := startPair(t)

	err := server.Handle("sum", func(ctx context.Context, params json.RawMessage) (any, error) {
		var numbers []int
		if err := json.Unmarshal(params, &numbers); err != nil {
			return nil, err
		}
		total := 0
		for _, n := range numbers {
			total += n
		}
		return total, nil
	})
	if err != nil {
		t.Fatalf("Failed to register method: %v", err)
	}

	var total int
	if err := client.Call(context.Background(), "sum", []int{1, 2, 3}, &total); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if total != 6 {
		t.Fatalf("Expected 6, got: %d", total)
	}
}

func TestEndpointCallRemoteError(t *testing.T) {
	client, server := startPair(t)

	err := server.Handle("fail", func(ctx context.Context, params json.RawMessage) (any, error) {
		return nil, ErrDuplicateCommand
	})
	if err != nil {
		t.Fatalf("Failed to register method: %v", err)
	}

	err = client.Call(context.Background(), "fail", nil, nil)
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("Expected *RemoteError, got: %v", err)
	}
	if !errors.Is(err, ErrDuplicateCommand) {
		t.Fatalf("Expected ErrDuplicateCommand across the boundary, got: %v", err)
	}
}

func TestEndpointMethodNotFound(t *testing.T) {
	client, _ := startPair(t)

	err := client.Call(context.Background(), "missing", nil, nil)
	if !errors.Is(err, ErrMethodNotFound) {
		t.Fatalf("Expected ErrMethodNotFound, got: %v", err)
	}
}

func TestEndpointNotificationsInOrder(t *testing.T) {
	client, server := startPair(t)

	var (
		mu       sync.Mutex
		received []int
	)
	err := server.Handle("seq", func(ctx context.Context, params json.RawMessage) (any, error) {
		var n int
		if err := json.Unmarshal(params, &n); err != nil {
			return nil, err
		}
		mu.Lock()
		received = append(received, n)
		mu.Unlock()
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Failed to register method: %v", err)
	}

	want := make([]int, 20)
	for i := range want {
		want[i] = i
		if err := client.Notify(context.Background(), "seq", i); err != nil {
			t.Fatalf("Notify failed: %v", err)
		}
	}

	waitFor(t, "all notifications", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == len(want)
	})

	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(received, want) {
		t.Fatalf("Expected notifications in order %v, got: %v", want, received)
	}
}

func TestEndpointNotificationFailureReported(t *testing.T) {
	reported := make(chan error, 1)
	a, b := NewMockPipe()
	client := newTestEndpoint(a)
	server := newTestEndpoint(b, WithOnError(func(ctx context.Context, id CommandID, err error) {
		reported <- err
	}))
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start endpoint: %v", err)
	}
	defer server.Shutdown()

	// Notify does not need a started endpoint
	if err := client.Notify(context.Background(), "unknown", nil); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	select {
	case err := <-reported:
		if !errors.Is(err, ErrMethodNotFound) {
			t.Fatalf("Expected ErrMethodNotFound, got: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected notification failure to be reported")
	}
}

func TestEndpointCallTimeout(t *testing.T) {
	// The peer transport never answers
	endpoint := newTestEndpoint(NewMockTransport(), WithRequestTimeout(20*time.Millisecond))
	if err := endpoint.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start endpoint: %v", err)
	}
	defer endpoint.Shutdown()

	err := endpoint.Call(context.Background(), "slow", nil, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected context.DeadlineExceeded, got: %v", err)
	}
}

func TestEndpointShutdownFailsPendingCalls(t *testing.T) {
	endpoint := newTestEndpoint(NewMockTransport(), WithRequestTimeout(0))
	if err := endpoint.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start endpoint: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- endpoint.Call(context.Background(), "never", nil, nil)
	}()

	waitFor(t, "pending call", func() bool {
		endpoint.pendingMu.Lock()
		defer endpoint.pendingMu.Unlock()
		return len(endpoint.pending) == 1
	})
	if err := endpoint.Shutdown(); err != nil {
		t.Fatalf("Failed to shutdown endpoint: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrTransportNotConnected) {
			t.Fatalf("Expected ErrTransportNotConnected, got: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected pending call to fail on shutdown")
	}
}

func TestEndpointDropsInvalidEnvelopes(t *testing.T) {
	reported := make(chan error, 1)
	transport := NewMockTransport()
	endpoint := newTestEndpoint(transport, WithOnError(func(ctx context.Context, id CommandID, err error) {
		reported <- err
	}))
	if err := endpoint.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start endpoint: %v", err)
	}
	defer endpoint.Shutdown()

	transport.InjectEnvelope(Envelope{Kind: KindRequest, Method: "no-id"})

	select {
	case err := <-reported:
		if !errors.Is(err, ErrInvalidCommand) {
			t.Fatalf("Expected ErrInvalidCommand, got: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected invalid envelope to be reported")
	}
	if len(transport.GetPublished()) != 0 {
		t.Fatal("Expected no response to an invalid envelope")
	}
}

func TestEndpointConcurrentCalls(t *testing.T) {
	client, server := startPair(t)

	err := server.Handle("echo", func(ctx context.Context, params json.RawMessage) (any, error) {
		time.Sleep(10 * time.Millisecond)
		var n int
		err := json.Unmarshal(params, &n)
		return n, err
	})
	if err != nil {
		t.Fatalf("Failed to register method: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var got int
			if err := client.Call(context.Background(), "echo", i, &got); err != nil || got != i {
				t.Errorf("Expected %d, got: %d (%v)", i, got, err)
			}
		}(i)
	}
	wg.Wait()
}

func TestEndpointHandlerPanicBecomesError(t *testing.T) {
	client, server := startPair(t)

	err := server.Handle("boom", func(ctx context.Context, params json.RawMessage) (any, error) {
		panic("handler exploded")
	})
	if err != nil {
		t.Fatalf("Failed to register method: %v", err)
	}

	err = client.Call(context.Background(), "boom", nil, nil)
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("Expected *RemoteError, got: %v", err)
	}
	if !errors.Is(err, ErrRemoteFailure) {
		t.Fatalf("Expected ErrRemoteFailure, got: %v", err)
	}
	if !server.IsRunning() {
		t.Fatal("Expected endpoint to keep running after a handler panic")
	}
}
