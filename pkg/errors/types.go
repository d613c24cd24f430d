// Package errors provides structured error handling for MCP sessions.
// It defines the error taxonomy of the session engine, maps it to JSON-RPC
// error codes and carries context for logging and programmatic handling.
package errors

import (
	"encoding/json"
	"fmt"
	"time"
)

// Category classifies an error for handling and metrics
type Category string

const (
	CategoryDecode     Category = "decode"
	CategoryProtocol   Category = "protocol"
	CategoryHandler    Category = "handler"
	CategoryNotFound   Category = "not_found"
	CategoryStale      Category = "stale"
	CategoryCancelled  Category = "cancelled"
	CategoryTimeout    Category = "timeout"
	CategoryValidation Category = "validation"
	CategoryCapability Category = "capability"
	CategoryTransport  Category = "transport"
	CategoryRemote     Category = "remote"
	CategoryInternal   Category = "internal"
)

// Severity indicates how critical an error is
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Context records where an error occurred
type Context struct {
	RequestID string    `json:"request_id,omitempty"`
	Method    string    `json:"method,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Component string    `json:"component,omitempty"`
	Operation string    `json:"operation,omitempty"`
}

// MCPError is implemented by every error this module produces
type MCPError interface {
	error

	// Code returns the JSON-RPC error code
	Code() int

	// Message returns the human-readable message sent on the wire
	Message() string

	// Details returns the technical description used in logs
	Details() string

	// Data returns structured data sent as the error's data member
	Data() interface{}

	Category() Category
	Severity() Severity
	Context() *Context

	// WithContext returns a copy carrying ctx
	WithContext(ctx *Context) MCPError

	// WithDetail returns a copy with detail appended
	WithDetail(detail string) MCPError

	// WithData returns a copy carrying data
	WithData(data interface{}) MCPError

	Unwrap() error
	ToJSON() map[string]interface{}
}

type baseError struct {
	code     int
	message  string
	details  string
	data     interface{}
	category Category
	severity Severity
	context  *Context
	cause    error
}

func (e *baseError) Error() string {
	if e.details != "" {
		return fmt.Sprintf("%s: %s", e.message, e.details)
	}
	return e.message
}

func (e *baseError) Code() int          { return e.code }
func (e *baseError) Message() string    { return e.message }
func (e *baseError) Details() string    { return e.details }
func (e *baseError) Data() interface{}  { return e.data }
func (e *baseError) Category() Category { return e.category }
func (e *baseError) Severity() Severity { return e.severity }
func (e *baseError) Context() *Context  { return e.context }
func (e *baseError) Unwrap() error      { return e.cause }

func (e *baseError) WithContext(ctx *Context) MCPError {
	newErr := *e
	if ctx != nil && ctx.Timestamp.IsZero() && e.context != nil {
		ctx.Timestamp = e.context.Timestamp
	}
	newErr.context = ctx
	return &newErr
}

func (e *baseError) WithDetail(detail string) MCPError {
	newErr := *e
	if newErr.details != "" {
		newErr.details = fmt.Sprintf("%s; %s", newErr.details, detail)
	} else {
		newErr.details = detail
	}
	return &newErr
}

func (e *baseError) WithData(data interface{}) MCPError {
	newErr := *e
	newErr.data = data
	return &newErr
}

func (e *baseError) ToJSON() map[string]interface{} {
	result := map[string]interface{}{
		"code":     e.code,
		"message":  e.message,
		"category": string(e.category),
		"severity": string(e.severity),
	}
	if e.details != "" {
		result["details"] = e.details
	}
	if e.data != nil {
		result["data"] = e.data
	}
	if e.context != nil {
		result["context"] = e.context
	}
	if e.cause != nil {
		result["cause"] = e.cause.Error()
	}
	return result
}

// MarshalJSON implements json.Marshaler
func (e *baseError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToJSON())
}

// NewError creates a new MCPError
func NewError(code int, message string, category Category, severity Severity) MCPError {
	return &baseError{
		code:     code,
		message:  message,
		category: category,
		severity: severity,
		context:  &Context{Timestamp: time.Now()},
	}
}

// NewErrorf creates a new MCPError with a formatted message
func NewErrorf(code int, category Category, severity Severity, format string, args ...interface{}) MCPError {
	return NewError(code, fmt.Sprintf(format, args...), category, severity)
}

// WrapError wraps cause as an MCPError
func WrapError(cause error, code int, message string, category Category, severity Severity) MCPError {
	return &baseError{
		code:     code,
		message:  message,
		category: category,
		severity: severity,
		cause:    cause,
		context:  &Context{Timestamp: time.Now()},
	}
}

// AsMCPError finds the first MCPError in err's chain
func AsMCPError(err error) (MCPError, bool) {
	for err != nil {
		if mcpErr, ok := err.(MCPError); ok {
			return mcpErr, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

// IsCategory reports whether err's chain holds an MCPError of category
func IsCategory(err error, category Category) bool {
	if mcpErr, ok := AsMCPError(err); ok {
		return mcpErr.Category() == category
	}
	return false
}

// IsCode reports whether err's chain holds an MCPError with code
func IsCode(err error, code int) bool {
	if mcpErr, ok := AsMCPError(err); ok {
		return mcpErr.Code() == code
	}
	return false
}
