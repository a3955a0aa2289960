package cmdproxy

import "encoding/json"

type MessageKind string

const (
	KindRequest      MessageKind = "request"
	KindResponse     MessageKind = "response"
	KindNotification MessageKind = "notification"
)

// Methods exchanged between the plugin side and the main side
const (
	MethodRegisterCommand   = "$registerCommand"
	MethodUnregisterCommand = "$unregisterCommand"
	MethodRegisterHandler   = "$registerHandler"
	MethodUnregisterHandler = "$unregisterHandler"
	MethodExecuteCommand    = "$executeCommand"
	MethodGetCommands       = "$getCommands"
	MethodGetKeyBinding     = "$getKeyBinding"
)

// Envelope is the unit carried by a Transport
type Envelope struct {
	ID      string            `json:"id,omitempty"`
	Kind    MessageKind       `json:"kind"`
	Method  string            `json:"method,omitempty"`
	Params  json.RawMessage   `json:"params,omitempty"`
	Result  json.RawMessage   `json:"result,omitempty"`
	Error   *RemoteError      `json:"error,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type commandParams struct {
	ID CommandID `json:"id"`
}

type executeParams struct {
	ID   CommandID `json:"id"`
	Args []any     `json:"args,omitempty"`
}

func (e Envelope) validate() error {
	switch e.Kind {
	case KindRequest:
		if e.ID == "" || e.Method == "" {
			return ErrInvalidCommand
		}
	case KindResponse:
		if e.ID == "" {
			return ErrInvalidCommand
		}
	case KindNotification:
		if e.Method == "" {
			return ErrInvalidCommand
		}
	default:
		return ErrInvalidCommand
	}
	return nil
}
