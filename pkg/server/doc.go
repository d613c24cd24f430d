// Package server implements the server side of the Model Context Protocol
// (MCP) on top of package session.
//
// A Server is built from providers:
//
//   - ToolsProvider: tools/list and tools/call
//   - ResourcesProvider: resources/list, resources/templates/list,
//     resources/read and subscriptions
//   - PromptsProvider: prompts/list and prompts/get
//   - CompletionProvider: completion/complete
//
// Each provider enables its capability family in the initialize result.
// Methods whose provider is absent are answered with method-not-found.
// ToolRegistry, PromptRegistry, MemoryResources and FileResources are
// ready-made providers.
//
// # Creating a Server
//
//	tools := server.NewToolRegistry()
//	server.AddTool(tools, "echo", "Echo the input",
//		func(ctx context.Context, args struct{ Text string `json:"text"` }) (*protocol.CallToolResult, error) {
//			return protocol.NewToolResultText(args.Text), nil
//		})
//
//	srv, err := server.New(server.WithTools(tools))
//	if err != nil {
//		return err
//	}
//	defer srv.Close()
//	return srv.Serve(ctx, transport.NewStdioTransport(os.Stdin, os.Stdout))
//
// # Notifications
//
// Providers that implement ChangeNotifier get listChanged in their
// capability. Their changes, and those sent with NotifyToolListChanged,
// NotifyResourceUpdated, Log and friends, go through one queue and reach
// every ready connection in the order they were raised. Resource updates
// only reach connections subscribed to the URI, and log messages only
// those whose logging/setLevel admits them.
//
// # Handlers
//
// Provider methods run with the request context. ConnFromContext returns
// the calling connection, which can sample from the client with
// CreateMessage or ask for its roots with ListRoots, and ReportProgress
// sends progress for the current request.
package server
