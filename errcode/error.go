// Package errcode provides hierarchical error codes.
// Error code format: MMBBBB (MM = module code, BBBB = business code)
package errcode

import (
	"fmt"
)

// LayeredError hierarchical error code
// Supports error chaining, dynamic messages and context data
type LayeredError struct {
	module string         // Module name (kafka, discovery, config)
	code   int            // Complete error code (MMBBBB, e.g., 600001)
	msgKey string         // Message key (e.g., "error.kafka.not_connected")
	msg    string         // Default message
	data   map[string]any // context data
	cause  error          // Original error (error chain)
}

// New creates a layered error code
// moduleCode: module code (10-99)
// businessCode: business code (0001-9999)
func New(moduleCode, businessCode int, module, msgKey, msg string) *LayeredError {
	return &LayeredError{
		module: module,
		code:   moduleCode*10000 + businessCode,
		msgKey: msgKey,
		msg:    msg,
		data:   make(map[string]any),
	}
}

// Error implements error
func (e *LayeredError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

// Code returns the complete error code
func (e *LayeredError) Code() int {
	return e.code
}

// Module returns the module name
func (e *LayeredError) Module() string {
	return e.module
}

// MsgKey returns the message key
func (e *LayeredError) MsgKey() string {
	return e.msgKey
}

// Message returns the error message without the cause
func (e *LayeredError) Message() string {
	return e.msg
}

// Data returns the context data
func (e *LayeredError) Data() map[string]any {
	return e.data
}

// Cause returns the original error
func (e *LayeredError) Cause() error {
	return e.cause
}

// Unwrap supports errors.Is / errors.As chains
func (e *LayeredError) Unwrap() error {
	return e.cause
}

// WithMsgf replaces the message (returns a new instance)
func (e *LayeredError) WithMsgf(format string, args ...any) *LayeredError {
	clone := *e
	clone.msg = fmt.Sprintf(format, args...)
	return &clone
}

// WithData adds one context value (returns a new instance)
func (e *LayeredError) WithData(key string, value any) *LayeredError {
	clone := *e
	clone.data = e.cloneData()
	clone.data[key] = value
	return &clone
}

// Wrap wraps the original error (returns a new instance)
func (e *LayeredError) Wrap(cause error) *LayeredError {
	if cause == nil {
		return e
	}
	clone := *e
	clone.cause = cause
	return &clone
}

// Is matches by code, so wrapped copies still match their sentinel
func (e *LayeredError) Is(target error) bool {
	t, ok := target.(*LayeredError)
	if !ok {
		return false
	}
	return e.code == t.code
}

func (e *LayeredError) cloneData() map[string]any {
	data := make(map[string]any, len(e.data))
	for k, v := range e.data {
		data[k] = v
	}
	return data
}

// String returns a debugging representation
func (e *LayeredError) String() string {
	if e.cause != nil {
		return fmt.Sprintf("LayeredError{code:%d, module:%s, msg:%s, cause:%v}",
			e.code, e.module, e.msg, e.cause)
	}
	return fmt.Sprintf("LayeredError{code:%d, module:%s, msg:%s}",
		e.code, e.module, e.msg)
}
