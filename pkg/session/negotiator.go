package session

import (
	"context"
	"encoding/json"

	mcperrors "github.com/ajitpratap0/mcp-session-go/pkg/errors"
	"github.com/ajitpratap0/mcp-session-go/pkg/logging"
	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
)

func (s *Session) registerBuiltins() {
	s.handlers[protocol.MethodPing] = func(context.Context, *Request) (interface{}, error) {
		return &protocol.EmptyResult{}, nil
	}
	s.sinks[protocol.NotificationCancelled] = []NotificationSink{s.handleCancelled}
	s.sinks[protocol.NotificationProgress] = []NotificationSink{s.handleProgress}

	if s.role == RoleServer {
		s.handlers[protocol.MethodInitialize] = s.handleInitialize
		s.sinks[protocol.NotificationInitialized] = []NotificationSink{s.handleInitialized}
	}
}

// Initialize performs the client side of the handshake: it sends
// initialize, checks the version the server chose and confirms with
// notifications/initialized. A version this side cannot speak closes the
// session.
func (s *Session) Initialize(ctx context.Context) (*protocol.InitializeResult, error) {
	s.mu.Lock()
	phase := s.phase
	if s.role != RoleClient {
		s.mu.Unlock()
		return nil, mcperrors.ProtocolViolation(protocol.MethodInitialize, phase.String(),
			"only a client session starts the handshake")
	}
	if phase != PhaseUninitialized {
		s.mu.Unlock()
		return nil, mcperrors.ProtocolViolation(protocol.MethodInitialize, phase.String(),
			"session already initialized")
	}
	s.setPhaseLocked(PhaseInitializing)
	var caps protocol.ClientCapabilities
	if s.clientCaps != nil {
		caps = *s.clientCaps
	}
	s.mu.Unlock()

	params := &protocol.InitializeParams{
		ProtocolVersion: s.versions[0],
		Capabilities:    caps,
		ClientInfo:      s.info,
	}

	var result protocol.InitializeResult
	p, err := s.begin(ctx, protocol.MethodInitialize, params, nil)
	if err == nil {
		err = p.Wait(ctx, &result)
	}
	if err != nil {
		s.mu.Lock()
		if s.phase == PhaseInitializing {
			s.setPhaseLocked(PhaseUninitialized)
		}
		s.mu.Unlock()
		return nil, err
	}

	if !s.supportsVersion(result.ProtocolVersion) {
		verr := mcperrors.VersionMismatch(result.ProtocolVersion, s.versions)
		s.shutdown(verr)
		return nil, verr
	}

	s.mu.Lock()
	serverCaps := result.Capabilities
	s.peerServerCaps = &serverCaps
	s.peerInfo = result.ServerInfo
	s.protocolVersion = result.ProtocolVersion
	s.peerInstructions = result.Instructions
	if s.phase == PhaseInitializing {
		s.setPhaseLocked(PhaseReady)
	}
	s.mu.Unlock()

	// the server may start sending requests as soon as it sees this, so
	// the session is already ready
	if err := s.Notify(ctx, protocol.NotificationInitialized, nil); err != nil {
		return nil, err
	}

	s.logger.Info("session initialized",
		logging.String("protocol_version", result.ProtocolVersion),
		logging.String("server", result.ServerInfo.Name),
		logging.String("server_version", result.ServerInfo.Version))
	return &result, nil
}

// handleInitialize is the server side of the handshake. The client's
// version is accepted when supported; otherwise the server answers with
// its own preferred version and leaves the decision to the client.
func (s *Session) handleInitialize(_ context.Context, req *Request) (interface{}, error) {
	var params protocol.InitializeParams
	if err := req.BindParams(&params); err != nil {
		return nil, err
	}
	if params.ProtocolVersion == "" {
		return nil, mcperrors.MissingParameter("protocolVersion")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseUninitialized {
		return nil, mcperrors.ProtocolViolation(protocol.MethodInitialize, s.phase.String(),
			"session already initialized")
	}

	version := s.versions[0]
	if s.supportsVersion(params.ProtocolVersion) {
		version = params.ProtocolVersion
	}

	clientCaps := params.Capabilities
	s.peerClientCaps = &clientCaps
	s.peerInfo = params.ClientInfo
	s.protocolVersion = version
	s.setPhaseLocked(PhaseInitializing)

	var caps protocol.ServerCapabilities
	if s.serverCaps != nil {
		caps = *s.serverCaps
	}
	return &protocol.InitializeResult{
		ProtocolVersion: version,
		Capabilities:    caps,
		ServerInfo:      s.info,
		Instructions:    s.instructions,
	}, nil
}

func (s *Session) handleInitialized(context.Context, string, json.RawMessage) {
	s.mu.Lock()
	phase := s.phase
	if phase == PhaseInitializing {
		s.setPhaseLocked(PhaseReady)
	}
	peer := s.peerInfo
	version := s.protocolVersion
	s.mu.Unlock()

	switch phase {
	case PhaseInitializing:
		s.logger.Info("session initialized",
			logging.String("protocol_version", version),
			logging.String("client", peer.Name),
			logging.String("client_version", peer.Version))
	case PhaseReady:
		s.logger.Debug("ignoring repeated initialized notification")
	default:
		s.logger.Warn("initialized notification before initialize", logging.String("phase", phase.String()))
	}
}
