package cmdproxy

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/TheAlpha16/cmdproxy-go"

// ErrorHandler is a user-provided callback for errors that cannot be returned
// to a caller, such as failed remote notifications or undecodable messages.
type ErrorHandler func(ctx context.Context, id CommandID, err error)
type Option func(*Options)

type Options struct {
	MsgBufferSize  int
	RequestTimeout time.Duration
	OnError        ErrorHandler
	Logger         *log.Logger
	KnownCommands  *KnownCommands
	TracerProvider trace.TracerProvider
	NewID          func() string
}

func defaultOptions() Options {
	return Options{
		MsgBufferSize:  100,
		RequestTimeout: 30 * time.Second,
		OnError: func(ctx context.Context, id CommandID, err error) {
			// Default: no-op
		},
		Logger: log.Default(),
		NewID:  uuid.NewString,
	}
}

func newOptions(opts []Option) Options {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.KnownCommands == nil {
		options.KnownCommands = DefaultKnownCommands()
	}
	return options
}

func (o Options) tracer() trace.Tracer {
	if o.TracerProvider != nil {
		return o.TracerProvider.Tracer(instrumentationName)
	}
	return otel.Tracer(instrumentationName)
}

func (o Options) reportError(ctx context.Context, op string, id CommandID, err error) {
	o.Logger.Printf("%s %s: %v", op, id, err)
	if o.OnError != nil {
		o.OnError(ctx, id, err)
	}
}

func WithMsgBufferSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.MsgBufferSize = size
		}
	}
}

// WithRequestTimeout bounds how long a remote call waits for its response.
// Zero disables the timeout and leaves it to the caller's context.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		if timeout >= 0 {
			o.RequestTimeout = timeout
		}
	}
}

func WithOnError(handler ErrorHandler) Option {
	return func(o *Options) {
		o.OnError = handler
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithKnownCommands replaces the table used to translate command ids before
// they are forwarded to the main side.
func WithKnownCommands(known *KnownCommands) Option {
	return func(o *Options) {
		o.KnownCommands = known
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Options) {
		o.TracerProvider = tp
	}
}

// WithIDGenerator overrides the generator used for trampoline command ids and
// request correlation ids.
func WithIDGenerator(fn func() string) Option {
	return func(o *Options) {
		if fn != nil {
			o.NewID = fn
		}
	}
}
