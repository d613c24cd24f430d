package errors

// JSON-RPC 2.0 standard error codes
const (
	CodeParseError     int = -32700
	CodeInvalidRequest int = -32600
	CodeMethodNotFound int = -32601
	CodeInvalidParams  int = -32602
	CodeInternalError  int = -32603
)

// MCP wire codes in the implementation-defined server range
const (
	CodeServerNotReady   int = -32001 // request received before the handshake completed
	CodeResourceNotFound int = -32002 // resources/read for an unknown URI
)

// Local codes. These describe outcomes on this side of the session and are
// never produced by a peer.
const (
	CodeOperationCancelled int = -32300 // call cancelled locally or by the peer
	CodeOperationTimeout   int = -32301 // call exceeded its deadline

	CodeCapabilityRequired int = -32401 // peer did not advertise the capability

	CodeTransportError int = -32500 // transport send/receive failure
	CodeConnectionLost int = -32502 // session closed while the call was pending

	CodeVersionMismatch   int = -32901 // peer chose an unsupported protocol version
	CodeInvalidSequence   int = -32902 // message illegal in the current phase
	CodeStaleCorrelation  int = -32903 // reply matched no pending request
	CodeDuplicateResponse int = -32904 // second reply attempted for one request
)

// ErrorCodeInfo describes a registered code
type ErrorCodeInfo struct {
	Code     int
	Name     string
	Category Category
	Severity Severity
}

var errorCodeRegistry = map[int]ErrorCodeInfo{
	CodeParseError:     {CodeParseError, "ParseError", CategoryDecode, SeverityError},
	CodeInvalidRequest: {CodeInvalidRequest, "InvalidRequest", CategoryProtocol, SeverityError},
	CodeMethodNotFound: {CodeMethodNotFound, "MethodNotFound", CategoryNotFound, SeverityError},
	CodeInvalidParams:  {CodeInvalidParams, "InvalidParams", CategoryValidation, SeverityError},
	CodeInternalError:  {CodeInternalError, "InternalError", CategoryInternal, SeverityError},

	CodeServerNotReady:   {CodeServerNotReady, "ServerNotReady", CategoryProtocol, SeverityWarning},
	CodeResourceNotFound: {CodeResourceNotFound, "ResourceNotFound", CategoryNotFound, SeverityError},

	CodeOperationCancelled: {CodeOperationCancelled, "OperationCancelled", CategoryCancelled, SeverityInfo},
	CodeOperationTimeout:   {CodeOperationTimeout, "OperationTimeout", CategoryTimeout, SeverityError},
	CodeCapabilityRequired: {CodeCapabilityRequired, "CapabilityRequired", CategoryCapability, SeverityError},
	CodeTransportError:     {CodeTransportError, "TransportError", CategoryTransport, SeverityCritical},
	CodeConnectionLost:     {CodeConnectionLost, "ConnectionLost", CategoryTransport, SeverityCritical},
	CodeVersionMismatch:    {CodeVersionMismatch, "VersionMismatch", CategoryProtocol, SeverityCritical},
	CodeInvalidSequence:    {CodeInvalidSequence, "InvalidSequence", CategoryProtocol, SeverityError},
	CodeStaleCorrelation:   {CodeStaleCorrelation, "StaleCorrelation", CategoryStale, SeverityWarning},
	CodeDuplicateResponse:  {CodeDuplicateResponse, "DuplicateResponse", CategoryInternal, SeverityError},
}

// GetErrorCodeInfo returns information about an error code
func GetErrorCodeInfo(code int) (ErrorCodeInfo, bool) {
	info, exists := errorCodeRegistry[code]
	return info, exists
}

// GetErrorCodeName returns the registered name of a code
func GetErrorCodeName(code int) string {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Name
	}
	return "UnknownError"
}

// IsStandardJSONRPCCode checks if a code lies in the JSON-RPC reserved range
func IsStandardJSONRPCCode(code int) bool {
	return code >= -32768 && code <= -32000
}
