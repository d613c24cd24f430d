package errors

import "fmt"

// ResourceErrorData contains structured data for resource-related errors
type ResourceErrorData struct {
	URI    string `json:"uri"`
	Reason string `json:"reason,omitempty"`
}

// CapabilityErrorData contains structured data for capability errors
type CapabilityErrorData struct {
	Method     string `json:"method"`
	Capability string `json:"capability"`
}

// ResourceNotFound reports a URI the server does not know
func ResourceNotFound(uri string) MCPError {
	return NewErrorf(CodeResourceNotFound, CategoryNotFound, SeverityError, "Resource not found: %s", uri).
		WithData(&ResourceErrorData{URI: uri})
}

// ToolNotFound reports a tools/call for an unregistered tool. It shares the
// method-not-found code because the tool name selects the operation.
func ToolNotFound(name string) MCPError {
	return NewErrorf(CodeMethodNotFound, CategoryNotFound, SeverityWarning, "Unknown tool: %s", name).
		WithData(map[string]string{"tool": name})
}

// PromptNotFound reports a prompts/get for an unknown prompt
func PromptNotFound(name string) MCPError {
	return NewErrorf(CodeInvalidParams, CategoryNotFound, SeverityWarning, "Unknown prompt: %s", name).
		WithData(map[string]string{"prompt": name})
}

// CapabilityRequired rejects, before sending, a method the peer did not
// advertise
func CapabilityRequired(method, capability string) MCPError {
	return NewError(CodeCapabilityRequired,
		fmt.Sprintf("%s requires the %q capability, which the peer did not advertise", method, capability),
		CategoryCapability, SeverityError).
		WithData(&CapabilityErrorData{Method: method, Capability: capability})
}

// InvalidParams reports params that do not match the method's shape
func InvalidParams(message string, cause error) MCPError {
	return WrapError(cause, CodeInvalidParams, message, CategoryValidation, SeverityWarning)
}

// MissingParameter reports a required parameter that was not supplied
func MissingParameter(name string) MCPError {
	return NewErrorf(CodeInvalidParams, CategoryValidation, SeverityWarning, "Missing required parameter: %s", name).
		WithData(map[string]string{"parameter": name})
}

// InvalidCursor rejects a pagination cursor that was not minted for the
// operation it was presented to
func InvalidCursor(operation string, cause error) MCPError {
	return WrapError(cause, CodeInvalidParams, "Invalid cursor", CategoryValidation, SeverityWarning).
		WithData(map[string]string{"operation": operation, "reason": "invalid cursor"})
}
