// Package transport provides the byte-level channels MCP sessions run on.
//
// A Transport only moves whole messages: Send one, Receive one, Close. The
// session engine never looks below that interface, so framing, pipes and
// sockets stay here.
//
// # Implementations
//
// StdioTransport:
//   - newline-delimited JSON over any io.Reader / io.Writer pair
//   - defaults to os.Stdin and os.Stdout for subprocess servers
//   - reading runs in an errgroup; Close unblocks it by closing the reader
//
// PipeTransport:
//   - an in-memory duplex pair created by NewPipe
//   - connects a client and a server inside one process
//
// # Middleware
//
// Middleware wraps a Transport. NewLoggingMiddleware logs frames, and
// NewHooksMiddleware exposes Send/Receive callbacks that the observability
// package uses for metrics:
//
//	t := transport.Apply(transport.NewStdioTransport(nil, nil),
//		transport.NewLoggingMiddleware(logger),
//	)
package transport
