package errors

import (
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mcp-session-go/pkg/protocol"
)

func TestTaxonomy(t *testing.T) {
	tests := []struct {
		name     string
		err      MCPError
		wantCode int
		wantCat  Category
	}{
		{"decode", Decode("invalid JSON", io.ErrUnexpectedEOF), CodeParseError, CategoryDecode},
		{"decode shape", Decode("empty method", nil), CodeInvalidRequest, CategoryDecode},
		{"protocol violation", ProtocolViolation("initialize", "ready", "already initialized"), CodeInvalidRequest, CategoryProtocol},
		{"not initialized", NotInitialized("tools/list"), CodeServerNotReady, CategoryProtocol},
		{"method not found", MethodNotFound("foo/bar"), CodeMethodNotFound, CategoryNotFound},
		{"tool not found", ToolNotFound("x"), CodeMethodNotFound, CategoryNotFound},
		{"handler", Handler("tools/call", io.EOF), CodeInternalError, CategoryHandler},
		{"stale", StaleCorrelation("42"), CodeStaleCorrelation, CategoryStale},
		{"cancelled", Cancelled("tools/call", "user abort"), CodeOperationCancelled, CategoryCancelled},
		{"timeout", Timeout("ping", time.Second), CodeOperationTimeout, CategoryTimeout},
		{"capability", CapabilityRequired("tools/list", "tools"), CodeCapabilityRequired, CategoryCapability},
		{"version", VersionMismatch("1999-01-01", []string{"2024-11-05"}), CodeVersionMismatch, CategoryProtocol},
		{"invalid cursor", InvalidCursor("tools/list", nil), CodeInvalidParams, CategoryValidation},
		{"resource not found", ResourceNotFound("file:///x"), CodeResourceNotFound, CategoryNotFound},
		{"transport", TransportError("stdio", "send", io.ErrClosedPipe), CodeTransportError, CategoryTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, tt.err.Code())
			assert.Equal(t, tt.wantCat, tt.err.Category())
			assert.NotEmpty(t, tt.err.Error())
			require.NotNil(t, tt.err.Context())
			assert.False(t, tt.err.Context().Timestamp.IsZero())
		})
	}
}

func TestHandlerPassesThroughMCPErrors(t *testing.T) {
	original := ToolNotFound("x")
	wrapped := fmt.Errorf("call failed: %w", original)

	got := Handler("tools/call", wrapped)
	assert.Equal(t, CodeMethodNotFound, got.Code())
	assert.Equal(t, "Unknown tool: x", got.Message())
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsCancelled(fmt.Errorf("wrapped: %w", Cancelled("ping", ""))))
	assert.False(t, IsCancelled(io.EOF))
	assert.True(t, IsTimeout(Timeout("ping", time.Millisecond)))
	assert.True(t, IsProtocolViolation(NotInitialized("tools/list")))
	assert.True(t, IsMethodNotFound(MethodNotFound("x")))
	assert.False(t, IsMethodNotFound(nil))
}

func TestWithHelpersCopy(t *testing.T) {
	base := MethodNotFound("x")
	withCtx := base.WithContext(&Context{Method: "x", SessionID: "s1"})

	assert.Equal(t, "s1", withCtx.Context().SessionID)
	assert.Empty(t, base.Context().SessionID)
	assert.False(t, withCtx.Context().Timestamp.IsZero())

	detailed := base.WithDetail("more")
	assert.Contains(t, detailed.Details(), "more")
	assert.NotContains(t, base.Details(), "more")
}

func TestToWire(t *testing.T) {
	wire := ToWire(ToolNotFound("x"))
	require.NotNil(t, wire)
	assert.Equal(t, protocol.MethodNotFound, wire.Code)
	assert.Equal(t, "Unknown tool: x", wire.Message)
	assert.JSONEq(t, `{"tool":"x"}`, string(wire.Data))

	wire = ToWire(io.EOF)
	assert.Equal(t, protocol.InternalError, wire.Code)
	assert.Equal(t, "EOF", wire.Message)
	assert.Empty(t, wire.Data)

	_, bindErr := protocol.DecodeClientRequest(protocol.MethodReadResource, json.RawMessage(`{"uri":1}`))
	require.Error(t, bindErr)
	wire = ToWire(bindErr)
	assert.Equal(t, protocol.InvalidParams, wire.Code)

	assert.Nil(t, ToWire(nil))
}

func TestToErrorResponse(t *testing.T) {
	msg, err := ToErrorResponse(protocol.IntID(3), ToolNotFound("x"))
	require.NoError(t, err)

	data, err := protocol.Encode(msg)
	require.NoError(t, err)

	var decoded struct {
		ID    int `json:"id"`
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 3, decoded.ID)
	assert.Equal(t, CodeMethodNotFound, decoded.Error.Code)
}

func TestFromWire(t *testing.T) {
	remote := FromWire(&protocol.Error{
		Code:    protocol.ErrorCode(CodeResourceNotFound),
		Message: "Resource not found: file:///x",
		Data:    json.RawMessage(`{"uri":"file:///x"}`),
	})

	assert.Equal(t, CodeResourceNotFound, remote.Code())
	assert.Equal(t, CategoryRemote, remote.Category())
	assert.Contains(t, remote.Details(), "ResourceNotFound")

	// round trip keeps the peer's data untouched
	wire := ToWire(remote)
	assert.JSONEq(t, `{"uri":"file:///x"}`, string(wire.Data))

	assert.Nil(t, FromWire(nil))
}

func TestFromDecode(t *testing.T) {
	_, err := protocol.Decode([]byte(`not json`))
	require.Error(t, err)

	got := FromDecode(err)
	assert.Equal(t, CodeParseError, got.Code())
	assert.Equal(t, CategoryDecode, got.Category())
}

func TestRegistry(t *testing.T) {
	info, ok := GetErrorCodeInfo(CodeStaleCorrelation)
	require.True(t, ok)
	assert.Equal(t, "StaleCorrelation", info.Name)
	assert.Equal(t, "UnknownError", GetErrorCodeName(12345))
	assert.True(t, IsStandardJSONRPCCode(CodeServerNotReady))
	assert.False(t, IsStandardJSONRPCCode(1))
}

func TestMarshalJSON(t *testing.T) {
	data, err := json.Marshal(Cancelled("tools/call", "bored"))
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "cancelled", m["category"])
	assert.Equal(t, "bored", m["details"])
}
