// Package errors defines the error types used across the mcpruntime
// application.
package errors

import (
	"fmt"
)

// Error types
const (
	// ErrConfiguration is returned when the runtime cannot be bootstrapped
	// due to invalid or missing cluster credentials.
	ErrConfiguration = "configuration"

	// ErrNotConfigured is returned when an operation is attempted against a
	// runtime whose bootstrap previously failed.
	ErrNotConfigured = "not_configured"

	// ErrFatalDeployment is returned when a deployment failure is classified
	// as unrecoverable (bad service account, quota, image pull, crash loop).
	ErrFatalDeployment = "fatal_deployment"

	// ErrDeploymentTimeout is returned when a deployment did not become
	// ready within the readiness polling window.
	ErrDeploymentTimeout = "deployment_timeout"

	// ErrServerNotFound is returned when a server record or its deployment
	// cannot be located.
	ErrServerNotFound = "server_not_found"

	// ErrTemplate is returned when a deployment template cannot be rendered.
	ErrTemplate = "template"

	// ErrInternal is returned when there is an internal error.
	ErrInternal = "internal"
)

// Error represents an error in the application
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(message string, cause error) *Error {
	return NewError(ErrConfiguration, message, cause)
}

// NewNotConfiguredError creates a new not-configured error
func NewNotConfiguredError(message string) *Error {
	return NewError(ErrNotConfigured, message, nil)
}

// NewFatalDeploymentError creates a new fatal deployment error
func NewFatalDeploymentError(message string, cause error) *Error {
	return NewError(ErrFatalDeployment, message, cause)
}

// NewDeploymentTimeoutError creates a new deployment timeout error
func NewDeploymentTimeoutError(message string) *Error {
	return NewError(ErrDeploymentTimeout, message, nil)
}

// NewServerNotFoundError creates a new server not found error
func NewServerNotFoundError(message string, cause error) *Error {
	return NewError(ErrServerNotFound, message, cause)
}

// NewTemplateError creates a new template error
func NewTemplateError(message string, cause error) *Error {
	return NewError(ErrTemplate, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

func isType(err error, errorType string) bool {
	e, ok := err.(*Error)
	return ok && e.Type == errorType
}

// IsConfiguration checks if the error is a configuration error
func IsConfiguration(err error) bool {
	return isType(err, ErrConfiguration)
}

// IsNotConfigured checks if the error is a not-configured error
func IsNotConfigured(err error) bool {
	return isType(err, ErrNotConfigured)
}

// IsFatalDeployment checks if the error is a fatal deployment error
func IsFatalDeployment(err error) bool {
	return isType(err, ErrFatalDeployment)
}

// IsDeploymentTimeout checks if the error is a deployment timeout error
func IsDeploymentTimeout(err error) bool {
	return isType(err, ErrDeploymentTimeout)
}

// IsServerNotFound checks if the error is a server not found error
func IsServerNotFound(err error) bool {
	return isType(err, ErrServerNotFound)
}

// IsTemplate checks if the error is a template error
func IsTemplate(err error) bool {
	return isType(err, ErrTemplate)
}

// IsInternal checks if the error is an internal error
func IsInternal(err error) bool {
	return isType(err, ErrInternal)
}
