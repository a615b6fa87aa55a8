package services

import (
	"errors"
	"fmt"
)

// ValidationError represents a step or finish validation failure
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Step    int    `json:"step,omitempty"`
}

func (e *ValidationError) Error() string {
	if e.Step > 0 {
		return fmt.Sprintf("step %d, %s: %s", e.Step, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NewStepValidationError creates a validation error attributed to a wizard step
func NewStepValidationError(step int, field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message, Step: step}
}

// IsValidationError checks if an error is a ValidationError
func IsValidationError(err error) (*ValidationError, bool) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr, true
	}
	return nil, false
}

// ConflictError represents a resource conflict (e.g., subdomain already taken)
type ConflictError struct {
	Resource string `json:"resource"`
	Message  string `json:"message"`
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Message)
}

// NewConflictError creates a new conflict error
func NewConflictError(resource, message string) *ConflictError {
	return &ConflictError{Resource: resource, Message: message}
}

// IsConflictError checks if an error is a ConflictError
func IsConflictError(err error) (*ConflictError, bool) {
	var conflictErr *ConflictError
	if errors.As(err, &conflictErr) {
		return conflictErr, true
	}
	return nil, false
}

// SessionError represents a missing, expired, or unusable wizard session
type SessionError struct {
	SessionKey string `json:"session_key"`
	Message    string `json:"message"`
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %s", e.SessionKey, e.Message)
}

// NewSessionError creates a new session error
func NewSessionError(sessionKey, message string) *SessionError {
	return &SessionError{SessionKey: sessionKey, Message: message}
}

// IsSessionError checks if an error is a SessionError
func IsSessionError(err error) (*SessionError, bool) {
	var sessionErr *SessionError
	if errors.As(err, &sessionErr) {
		return sessionErr, true
	}
	return nil, false
}
