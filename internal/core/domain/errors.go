package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrConfiguration    = errors.New("configuration error")
	ErrTemporary        = errors.New("temporary failure")
	ErrProcessingFailed = errors.New("processing failed")
	ErrPollTimeout      = errors.New("polling timed out")
	ErrNotReady         = errors.New("not ready")
	ErrSuperseded       = errors.New("superseded by a newer document")
	ErrNoSession        = errors.New("no active session")
	ErrNotHydrated      = errors.New("session not hydrated")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

const defaultFailureMessage = "document processing failed"

// ProcessingFailedError is a terminal failure reported by the backend in a
// payload. Its message is the backend's message, unmodified.
type ProcessingFailedError struct {
	Stage   string
	Message string
}

func NewProcessingFailed(stage, message string) *ProcessingFailedError {
	if strings.TrimSpace(message) == "" {
		message = defaultFailureMessage
	}
	return &ProcessingFailedError{Stage: stage, Message: message}
}

func (e *ProcessingFailedError) Error() string {
	if e == nil {
		return defaultFailureMessage
	}
	return e.Message
}

func (e *ProcessingFailedError) Is(target error) bool {
	return target == ErrProcessingFailed
}
