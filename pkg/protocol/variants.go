package protocol

import (
	"encoding/json"
	"fmt"
)

// ClientRequest is the closed set of requests a client may send. Variants
// are the typed params structs; unknown methods decode to
// *UnrecognizedRequest.
type ClientRequest interface {
	clientRequest()
}

// ServerRequest is the closed set of requests a server may send
type ServerRequest interface {
	serverRequest()
}

// ClientNotification is the closed set of notifications a client may send
type ClientNotification interface {
	clientNotification()
}

// ServerNotification is the closed set of notifications a server may send
type ServerNotification interface {
	serverNotification()
}

// UnrecognizedRequest carries a well-formed request whose method is not in
// the catalogue for the sending direction
type UnrecognizedRequest struct {
	Method string
	Params json.RawMessage
}

// UnrecognizedNotification carries a well-formed notification whose method
// is not in the catalogue for the sending direction
type UnrecognizedNotification struct {
	Method string
	Params json.RawMessage
}

func (*UnrecognizedRequest) clientRequest()           {}
func (*UnrecognizedRequest) serverRequest()           {}
func (*UnrecognizedNotification) clientNotification() {}
func (*UnrecognizedNotification) serverNotification() {}

func (*InitializeParams) clientRequest()            {}
func (*PingParams) clientRequest()                  {}
func (*ListResourcesParams) clientRequest()         {}
func (*ListResourceTemplatesParams) clientRequest() {}
func (*ReadResourceParams) clientRequest()          {}
func (*SubscribeParams) clientRequest()             {}
func (*UnsubscribeParams) clientRequest()           {}
func (*ListPromptsParams) clientRequest()           {}
func (*GetPromptParams) clientRequest()             {}
func (*ListToolsParams) clientRequest()             {}
func (*CallToolParams) clientRequest()              {}
func (*CompleteParams) clientRequest()              {}
func (*SetLevelParams) clientRequest()              {}

func (*PingParams) serverRequest()          {}
func (*CreateMessageParams) serverRequest() {}
func (*ListRootsParams) serverRequest()     {}

func (*CancelledParams) clientNotification()        {}
func (*ProgressParams) clientNotification()         {}
func (*InitializedParams) clientNotification()      {}
func (*RootsListChangedParams) clientNotification() {}

func (*CancelledParams) serverNotification()           {}
func (*ProgressParams) serverNotification()            {}
func (*LoggingMessageParams) serverNotification()      {}
func (*ResourceUpdatedParams) serverNotification()     {}
func (*ResourceListChangedParams) serverNotification() {}
func (*ToolListChangedParams) serverNotification()     {}
func (*PromptListChangedParams) serverNotification()   {}

var clientRequests = map[string]func() ClientRequest{
	MethodInitialize:            func() ClientRequest { return new(InitializeParams) },
	MethodPing:                  func() ClientRequest { return new(PingParams) },
	MethodListResources:         func() ClientRequest { return new(ListResourcesParams) },
	MethodListResourceTemplates: func() ClientRequest { return new(ListResourceTemplatesParams) },
	MethodReadResource:          func() ClientRequest { return new(ReadResourceParams) },
	MethodSubscribe:             func() ClientRequest { return new(SubscribeParams) },
	MethodUnsubscribe:           func() ClientRequest { return new(UnsubscribeParams) },
	MethodListPrompts:           func() ClientRequest { return new(ListPromptsParams) },
	MethodGetPrompt:             func() ClientRequest { return new(GetPromptParams) },
	MethodListTools:             func() ClientRequest { return new(ListToolsParams) },
	MethodCallTool:              func() ClientRequest { return new(CallToolParams) },
	MethodComplete:              func() ClientRequest { return new(CompleteParams) },
	MethodSetLevel:              func() ClientRequest { return new(SetLevelParams) },
}

var serverRequests = map[string]func() ServerRequest{
	MethodPing:          func() ServerRequest { return new(PingParams) },
	MethodCreateMessage: func() ServerRequest { return new(CreateMessageParams) },
	MethodListRoots:     func() ServerRequest { return new(ListRootsParams) },
}

var clientNotifications = map[string]func() ClientNotification{
	NotificationCancelled:        func() ClientNotification { return new(CancelledParams) },
	NotificationProgress:         func() ClientNotification { return new(ProgressParams) },
	NotificationInitialized:      func() ClientNotification { return new(InitializedParams) },
	NotificationRootsListChanged: func() ClientNotification { return new(RootsListChangedParams) },
}

var serverNotifications = map[string]func() ServerNotification{
	NotificationCancelled:           func() ServerNotification { return new(CancelledParams) },
	NotificationProgress:            func() ServerNotification { return new(ProgressParams) },
	NotificationMessage:             func() ServerNotification { return new(LoggingMessageParams) },
	NotificationResourceUpdated:     func() ServerNotification { return new(ResourceUpdatedParams) },
	NotificationResourceListChanged: func() ServerNotification { return new(ResourceListChangedParams) },
	NotificationToolListChanged:     func() ServerNotification { return new(ToolListChangedParams) },
	NotificationPromptListChanged:   func() ServerNotification { return new(PromptListChangedParams) },
}

// ParamsError reports params that do not match the shape a method requires
type ParamsError struct {
	Method string
	Err    error
}

func (e *ParamsError) Error() string {
	return fmt.Sprintf("invalid params for %s: %v", e.Method, e.Err)
}

func (e *ParamsError) Unwrap() error { return e.Err }

func bindParams(method string, params json.RawMessage, target interface{}) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, target); err != nil {
		return &ParamsError{Method: method, Err: err}
	}
	return nil
}

// DecodeClientRequest returns the typed variant for a client-originated
// request. Payload errors are *ParamsError.
func DecodeClientRequest(method string, params json.RawMessage) (ClientRequest, error) {
	ctor, ok := clientRequests[method]
	if !ok {
		return &UnrecognizedRequest{Method: method, Params: params}, nil
	}
	v := ctor()
	if err := bindParams(method, params, v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeServerRequest returns the typed variant for a server-originated
// request
func DecodeServerRequest(method string, params json.RawMessage) (ServerRequest, error) {
	ctor, ok := serverRequests[method]
	if !ok {
		return &UnrecognizedRequest{Method: method, Params: params}, nil
	}
	v := ctor()
	if err := bindParams(method, params, v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeClientNotification returns the typed variant for a client-originated
// notification
func DecodeClientNotification(method string, params json.RawMessage) (ClientNotification, error) {
	ctor, ok := clientNotifications[method]
	if !ok {
		return &UnrecognizedNotification{Method: method, Params: params}, nil
	}
	v := ctor()
	if err := bindParams(method, params, v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeServerNotification returns the typed variant for a server-originated
// notification
func DecodeServerNotification(method string, params json.RawMessage) (ServerNotification, error) {
	ctor, ok := serverNotifications[method]
	if !ok {
		return &UnrecognizedNotification{Method: method, Params: params}, nil
	}
	v := ctor()
	if err := bindParams(method, params, v); err != nil {
		return nil, err
	}
	return v, nil
}
