// Package protocol defines the wire model of the Model Context Protocol.
//
// It covers the JSON-RPC 2.0 envelope layer (Message, RequestID, Error and
// the Decode/Encode pair), the catalogue of MCP method names, and the typed
// payloads those methods carry.
//
// # Envelopes
//
// Decode validates only what JSON-RPC itself requires: the "jsonrpc" member,
// the id/method combination of requests and notifications, and the
// result/error exclusivity of responses. Params and results stay raw until a
// handler binds them. Every failure is reported as a *DecodeError.
//
// # Typed variants
//
// Requests and notifications are grouped per direction into closed sets:
// ClientRequest, ServerRequest, ClientNotification and ServerNotification.
// DecodeClientRequest and friends return the params struct for the method,
// or an UnrecognizedRequest / UnrecognizedNotification for methods outside
// the catalogue, so that newer peers keep working:
//
//	req, err := protocol.DecodeClientRequest(msg.Method, msg.Params)
//	switch p := req.(type) {
//	case *protocol.ListToolsParams:
//		// ...
//	case *protocol.UnrecognizedRequest:
//		// method not found
//	}
//
// # Capabilities
//
// ClientCapabilities and ServerCapabilities mirror the records exchanged by
// initialize. A nil member means the feature is not offered; Supports maps a
// method to the capability it needs.
package protocol
