// Package mcp is the entry point of a Model Context Protocol (2024-11-05)
// session engine for Go
package mcp

import (
	"github.com/ajitpratap0/mcp-session-go/pkg/client"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-session-go/pkg/server"
	"github.com/ajitpratap0/mcp-session-go/pkg/session"
	"github.com/ajitpratap0/mcp-session-go/pkg/transport"
)

// Version represents the current version of the module
const Version = "0.1.0"

// ProtocolVersion is the protocol revision sessions prefer
const ProtocolVersion = protocol.ProtocolVersion

// These exports provide direct access to the core components
var (
	// NewClient creates a new MCP client
	NewClient = client.New

	// NewServer creates a new MCP server
	NewServer = server.New

	// NewSession creates a bare session for either role
	NewSession = session.New

	// NewStdioTransport creates a newline-delimited stdio transport
	NewStdioTransport = transport.NewStdioTransport

	// NewPipe creates a connected in-memory transport pair
	NewPipe = transport.NewPipe
)

// Session roles
const (
	RoleClient = session.RoleClient
	RoleServer = session.RoleServer
)

// Client options
var (
	WithClientName      = client.WithName
	WithClientVersion   = client.WithVersion
	WithClientLogger    = client.WithLogger
	WithSamplingHandler = client.WithSamplingHandler
	WithRootsProvider   = client.WithRootsProvider
	WithRoots           = client.WithRoots
)

// Server options
var (
	WithImplementation     = server.WithImplementation
	WithInstructions       = server.WithInstructions
	WithToolsProvider      = server.WithTools
	WithResourcesProvider  = server.WithResources
	WithPromptsProvider    = server.WithPrompts
	WithCompletionProvider = server.WithCompletion
	WithLogger             = server.WithLogger
)

// Provider creation
var (
	NewToolRegistry    = server.NewToolRegistry
	NewPromptRegistry  = server.NewPromptRegistry
	NewMemoryResources = server.NewMemoryResources
	NewFileResources   = server.NewFileResources
)

// Session options
var (
	WithRequestTimeout = session.WithRequestTimeout
	WithHandlerTimeout = session.WithHandlerTimeout
)
