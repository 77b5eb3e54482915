// Package errors provides standardized error values for the debug-info emitter.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	// CategoryUsage marks a driver or input invariant violation. Emission of
	// the module is abandoned.
	CategoryUsage ErrorCategory = "USAGE"
	// CategoryEncoding marks a value that cannot be represented in the
	// requested binary form.
	CategoryEncoding   ErrorCategory = "ENCODING"
	CategoryValidation ErrorCategory = "VALIDATION"
	CategorySystem     ErrorCategory = "SYSTEM"
)

// StandardError provides a consistent error format
type StandardError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Context  map[string]interface{}
	Caller   string
}

// Error implements the error interface
func (e *StandardError) Error() string {
	return fmt.Sprintf("[%s:%s] %s (caller: %s)", e.Category, e.Code, e.Message, e.Caller)
}

// NewStandardError creates a new standardized error
func NewStandardError(category ErrorCategory, code, message string, context map[string]interface{}) *StandardError {
	return newAt(2, category, code, message, context)
}

func newAt(skip int, category ErrorCategory, code, message string, context map[string]interface{}) *StandardError {
	pc, _, _, ok := runtime.Caller(skip)
	caller := "unknown"
	if ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()
		}
	}

	return &StandardError{
		Category: category,
		Code:     code,
		Message:  message,
		Context:  context,
		Caller:   caller,
	}
}

// Common error constructors
func UsageError(message string, context map[string]interface{}) *StandardError {
	return newAt(2, CategoryUsage, "INVARIANT_VIOLATION", message, context)
}

func EncodingError(message string, context map[string]interface{}) *StandardError {
	return newAt(2, CategoryEncoding, "UNENCODABLE_VALUE", message, context)
}

func InvalidConfig(field string, value interface{}, reason string) *StandardError {
	return newAt(2, CategoryValidation, "INVALID_CONFIG",
		fmt.Sprintf("invalid %s %v: %s", field, value, reason),
		map[string]interface{}{"field": field, "value": value})
}

func InvalidInput(where, message string) *StandardError {
	return newAt(2, CategoryValidation, "INVALID_INPUT",
		fmt.Sprintf("%s: %s", where, message),
		map[string]interface{}{"where": where})
}

func IOFailure(op, path string, err error) *StandardError {
	return newAt(2, CategorySystem, "IO_FAILURE",
		fmt.Sprintf("%s %s: %v", op, path, err),
		map[string]interface{}{"op": op, "path": path})
}

// CategoryOf returns the category of the first StandardError in err's chain.
func CategoryOf(err error) (ErrorCategory, bool) {
	var se *StandardError
	if errors.As(err, &se) {
		return se.Category, true
	}
	return "", false
}

// IsUsage reports whether err carries a usage (invariant violation) error.
func IsUsage(err error) bool {
	c, ok := CategoryOf(err)
	return ok && c == CategoryUsage
}
