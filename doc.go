// Package mcp implements the session layer of the Model Context Protocol
// over JSON-RPC 2.0, with convenient exports of the core components from
// the sub-packages.
//
// # Overview
//
// The module consists of several sub-packages:
//
//   - pkg/protocol: message envelope, typed params and results, method catalogue
//   - pkg/session: one end of a connection: pending requests, dispatch,
//     handshake, progress and cancellation
//   - pkg/pagination: signed cursors for list methods
//   - pkg/server: providers and a multi-connection server
//   - pkg/client: typed client calls on top of a client session
//   - pkg/transport: stdio and in-memory transports, middleware
//   - pkg/errors: the error taxonomy and its wire mapping
//   - pkg/logging, pkg/observability, pkg/config: ambient concerns
//
// # Creating a Server
//
//	tools := mcp.NewToolRegistry()
//	server.AddTool(tools, "hello", "Say hello",
//		func(ctx context.Context, args struct{ Name string `json:"name"` }) (*protocol.CallToolResult, error) {
//			return protocol.NewToolResultText("Hello, " + args.Name + "!"), nil
//		})
//
//	srv, err := mcp.NewServer(mcp.WithToolsProvider(tools))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer srv.Close()
//	err = srv.Serve(ctx, mcp.NewStdioTransport(os.Stdin, os.Stdout))
//
// # Creating a Client
//
//	c := mcp.NewClient(mcp.NewStdioTransport(os.Stdin, os.Stdout),
//		mcp.WithClientName("my-client"),
//		mcp.WithClientVersion("1.0.0"),
//	)
//	defer c.Close()
//	if _, err := c.Connect(ctx); err != nil {
//		log.Fatal(err)
//	}
//	tools, err := c.ListAllTools(ctx)
//
// # Examples
//
// The examples directory holds a stdio server that publishes a directory
// as resources and a client that launches it.
package mcp
