package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    RequestID
		wantErr bool
	}{
		{name: "integer", input: `42`, want: IntID(42)},
		{name: "negative integer", input: `-7`, want: IntID(-7)},
		{name: "string", input: `"abc"`, want: StringID("abc")},
		{name: "numeric string", input: `"1"`, want: StringID("1")},
		{name: "null", input: `null`, want: RequestID{}},
		{name: "fraction", input: `1.5`, wantErr: true},
		{name: "object", input: `{}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id RequestID
			err := json.Unmarshal([]byte(tt.input), &id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)

			out, err := json.Marshal(id)
			require.NoError(t, err)
			assert.JSONEq(t, tt.input, string(out))
		})
	}
}

func TestRequestIDDistinguishesStringAndNumber(t *testing.T) {
	assert.NotEqual(t, IntID(1), StringID("1"))
	assert.NotEqual(t, IntID(1).String(), StringID("1").String())

	n, ok := IntID(9).Int64()
	assert.True(t, ok)
	assert.Equal(t, int64(9), n)

	_, ok = StringID("9").Int64()
	assert.False(t, ok)
}

func TestDecodeVariants(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		kind   Kind
		method string
		id     RequestID
	}{
		{
			name:   "request",
			input:  `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"X"}}`,
			kind:   KindRequest,
			method: MethodInitialize,
			id:     IntID(1),
		},
		{
			name:   "request with string id",
			input:  `{"jsonrpc":"2.0","id":"a-1","method":"ping"}`,
			kind:   KindRequest,
			method: MethodPing,
			id:     StringID("a-1"),
		},
		{
			name:   "notification",
			input:  `{"jsonrpc":"2.0","method":"notifications/initialized"}`,
			kind:   KindNotification,
			method: NotificationInitialized,
		},
		{
			name:   "unknown method is not a decode error",
			input:  `{"jsonrpc":"2.0","id":5,"method":"experimental/frobnicate","params":{}}`,
			kind:   KindRequest,
			method: "experimental/frobnicate",
			id:     IntID(5),
		},
		{
			name:  "response",
			input: `{"jsonrpc":"2.0","id":2,"result":{"tools":[]}}`,
			kind:  KindResponse,
			id:    IntID(2),
		},
		{
			name:  "null result is still a response",
			input: `{"jsonrpc":"2.0","id":2,"result":null}`,
			kind:  KindResponse,
			id:    IntID(2),
		},
		{
			name:  "error",
			input: `{"jsonrpc":"2.0","id":3,"error":{"code":-32601,"message":"Method not found"}}`,
			kind:  KindError,
			id:    IntID(3),
		},
		{
			name:  "error with null id",
			input: `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`,
			kind:  KindError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, msg.Kind())
			assert.Equal(t, tt.method, msg.Method)
			assert.Equal(t, tt.id, msg.RequestID())
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantID    bool
		reasonHas string
	}{
		{name: "invalid json", input: `{"jsonrpc":`, reasonHas: "invalid JSON"},
		{name: "missing version", input: `{"id":1,"method":"ping"}`, wantID: true, reasonHas: "jsonrpc"},
		{name: "wrong version", input: `{"jsonrpc":"1.0","id":1,"method":"ping"}`, wantID: true, reasonHas: "jsonrpc"},
		{name: "method and result", input: `{"jsonrpc":"2.0","id":1,"method":"ping","result":{}}`, wantID: true, reasonHas: "both method"},
		{name: "result and error", input: `{"jsonrpc":"2.0","id":1,"result":{},"error":{"code":1,"message":"x"}}`, wantID: true, reasonHas: "both result and error"},
		{name: "neither result nor error", input: `{"jsonrpc":"2.0","id":1}`, wantID: true, reasonHas: "neither"},
		{name: "response without id", input: `{"jsonrpc":"2.0","result":{}}`, reasonHas: "missing id"},
		{name: "null request id", input: `{"jsonrpc":"2.0","id":null,"method":"ping"}`, reasonHas: "null"},
		{name: "empty method", input: `{"jsonrpc":"2.0","id":1,"method":""}`, wantID: true, reasonHas: "empty method"},
		{name: "fractional id", input: `{"jsonrpc":"2.0","id":1.5,"method":"ping"}`, reasonHas: "invalid id"},
		{name: "batch", input: `[{"jsonrpc":"2.0","method":"ping","id":1}]`, reasonHas: "batch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.input))
			assert.Nil(t, msg)
			require.Error(t, err)

			var decErr *DecodeError
			require.ErrorAs(t, err, &decErr)
			assert.Contains(t, decErr.Reason, tt.reasonHas)
			if tt.wantID {
				assert.NotNil(t, decErr.ID)
			} else {
				assert.Nil(t, decErr.ID)
			}
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	req, err := NewRequest(IntID(1), MethodInitialize, InitializeParams{
		ProtocolVersion: "X",
		ClientInfo:      Implementation{Name: "t", Version: "1"},
	})
	require.NoError(t, err)

	data, err := Encode(req)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"X","capabilities":{},"clientInfo":{"name":"t","version":"1"}}}`,
		string(data))

	back, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, KindRequest, back.Kind())
	assert.Equal(t, IntID(1), back.RequestID())
}

func TestNewResponseDefaultsToEmptyObject(t *testing.T) {
	resp, err := NewResponse(StringID("x"), nil)
	require.NoError(t, err)

	data, err := Encode(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"x","result":{}}`, string(data))
}

func TestNewErrorResponse(t *testing.T) {
	resp, err := NewErrorResponse(IntID(3), MethodNotFound, "Method not found", map[string]string{"method": "x"})
	require.NoError(t, err)
	assert.Equal(t, KindError, resp.Kind())

	data, err := Encode(resp)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"jsonrpc":"2.0","id":3,"error":{"code":-32601,"message":"Method not found","data":{"method":"x"}}}`,
		string(data))
}

func TestNotificationOmitsID(t *testing.T) {
	n, err := NewNotification(NotificationInitialized, nil)
	require.NoError(t, err)

	data, err := Encode(n)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"notifications/initialized"}`, string(data))
}

func TestMetaHelpers(t *testing.T) {
	token := IntID(7)
	params, err := WithMeta(json.RawMessage(`{"name":"x"}`), &Meta{ProgressToken: &token})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"x","_meta":{"progressToken":7}}`, string(params))

	meta, err := ExtractMeta(params)
	require.NoError(t, err)
	require.NotNil(t, meta)
	require.NotNil(t, meta.ProgressToken)
	assert.Equal(t, token, *meta.ProgressToken)

	params, err = WithMeta(nil, &Meta{ProgressToken: &token})
	require.NoError(t, err)
	assert.JSONEq(t, `{"_meta":{"progressToken":7}}`, string(params))

	_, err = WithMeta(json.RawMessage(`[1,2]`), &Meta{})
	assert.Error(t, err)

	meta, err = ExtractMeta(nil)
	assert.NoError(t, err)
	assert.Nil(t, meta)
}
