package cmdproxy

import "errors"

var (
	ErrInvalidCommand         = errors.New("invalid command")
	ErrDuplicateCommand       = errors.New("command already exists")
	ErrHandlerAlreadyExists   = errors.New("handler already exists")
	ErrHandlerNotFound        = errors.New("handler not found")
	ErrCommandNotFound        = errors.New("command not found")
	ErrSafeCommandNotFound    = errors.New("safe command not found")
	ErrMethodNotFound         = errors.New("method not found")
	ErrRemoteFailure          = errors.New("remote failure")
	ErrPublishFailed          = errors.New("failed to publish message")
	ErrSubscribeFailed        = errors.New("failed to subscribe to channel")
	ErrTransportNotConnected  = errors.New("transport not connected")
	ErrEndpointNotStarted     = errors.New("endpoint not started")
	ErrEndpointAlreadyStarted = errors.New("endpoint already started")
)

// ErrorCode is the machine-readable form of an error sent across the boundary
type ErrorCode string

const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeInvalidCommand   ErrorCode = "INVALID_COMMAND"
	CodeDuplicateCommand ErrorCode = "DUPLICATE_COMMAND"
	CodeHandlerExists    ErrorCode = "HANDLER_EXISTS"
	CodeHandlerNotFound  ErrorCode = "HANDLER_NOT_FOUND"
	CodeCommandNotFound  ErrorCode = "COMMAND_NOT_FOUND"
	CodeSafeNotFound     ErrorCode = "SAFE_COMMAND_NOT_FOUND"
	CodeMethodNotFound   ErrorCode = "METHOD_NOT_FOUND"
)

var codeErrors = map[ErrorCode]error{
	CodeInvalidCommand:   ErrInvalidCommand,
	CodeDuplicateCommand: ErrDuplicateCommand,
	CodeHandlerExists:    ErrHandlerAlreadyExists,
	CodeHandlerNotFound:  ErrHandlerNotFound,
	CodeCommandNotFound:  ErrCommandNotFound,
	CodeSafeNotFound:     ErrSafeCommandNotFound,
	CodeMethodNotFound:   ErrMethodNotFound,
}

// RemoteError is an error reported by the other side of the boundary
type RemoteError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Unwrap maps the wire code back onto the local sentinel so errors.Is works
// the same on both sides.
func (e *RemoteError) Unwrap() error {
	if err, ok := codeErrors[e.Code]; ok {
		return err
	}
	return ErrRemoteFailure
}

// toRemoteError converts a local error into its wire form
func toRemoteError(err error) *RemoteError {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote
	}
	code := CodeUnknown
	for c, sentinel := range codeErrors {
		if errors.Is(err, sentinel) {
			code = c
			break
		}
	}
	return &RemoteError{Code: code, Message: err.Error()}
}
