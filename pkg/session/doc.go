// Package session implements the MCP session engine: request/response
// correlation, dispatch of inbound messages, the initialize handshake,
// progress and cancellation.
//
// A Session is symmetric. Both sides can issue requests, answer requests
// and send notifications; the Role only decides who starts the handshake
// and whose capabilities gate what.
//
// # Lifecycle
//
// A session moves through uninitialized, initializing, ready and closed.
// Before ready only ping, initialize and the lifecycle notifications may
// cross the wire in either direction:
//
//	srv := session.New(serverTransport, session.RoleServer,
//		session.WithServerCapabilities(protocol.ServerCapabilities{Tools: &protocol.ToolsCapability{}}),
//	)
//	srv.RegisterHandler(protocol.MethodListTools, listTools)
//	go srv.Run(ctx)
//
//	cli := session.New(clientTransport, session.RoleClient)
//	go cli.Run(ctx)
//	if _, err := cli.Initialize(ctx); err != nil {
//		return err
//	}
//
// # Requests
//
// Call sends a request and waits. Begin returns a PendingRequest that can
// be waited on or cancelled separately. Each request completes exactly once:
// with the peer's reply, with a cancellation, with a timeout or with a
// connection-lost error when the session closes. A reply that arrives after
// that is logged and dropped.
//
// Inbound requests run in their own goroutines, bounded by
// WithMaxConcurrentHandlers. Notifications are delivered on the receive
// loop, in the order they arrived.
package session
