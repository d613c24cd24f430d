// Package client provides the client side of the Model Context Protocol.
//
// A Client wraps a client session (package session) and offers a typed call
// for every request a client may send: tools, resources, prompts,
// completion, logging and ping. List calls fetch one page; the ListAll
// variants follow next cursors to the end.
//
// # Creating a Client
//
//	c, err := client.NewProcessClient(ctx, "./stdio-server", nil,
//		client.WithName("example-client"),
//		client.WithVersion("1.0.0"),
//	)
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	if _, err := c.Connect(ctx); err != nil {
//		return err
//	}
//	tools, err := c.ListAllTools(ctx)
//
// Calls for a feature the server did not advertise fail before anything is
// sent, with an error in the capability category.
//
// # Serving the Server
//
// Servers may ask the client to sample from a model or to list its roots.
// WithSamplingHandler and WithRootsProvider (or WithRoots) enable those
// requests and declare the matching capabilities.
//
// # Notifications
//
// Resource updates, list changes and log messages from the server are
// delivered to the callbacks set with the With*Callback options or the
// Set*Callback methods. Callbacks run on the receive loop in arrival order
// and must not block on calls to the same client.
package client
