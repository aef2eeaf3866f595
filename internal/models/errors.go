package models

import (
	"errors"
	"fmt"
)

// Analysis error taxonomy. Callers distinguish classes with errors.Is.
var (
	ErrValidation     = errors.New("invalid analysis request")
	ErrUpstream       = errors.New("ai service call failed")
	ErrFormat         = errors.New("ai produced unparsable output")
	ErrStorageCorrupt = errors.New("stored value is corrupt")
)

// Wire codes for the error classes
const (
	CodeValidation = "validation"
	CodeUpstream   = "upstream"
	CodeFormat     = "format"
)

func NewValidationError(reason string) error {
	return fmt.Errorf("%w: %s", ErrValidation, reason)
}

func NewUpstreamError(err error) error {
	return fmt.Errorf("%w: %v", ErrUpstream, err)
}

func NewFormatError(reason string) error {
	return fmt.Errorf("%w: %s", ErrFormat, reason)
}

// ErrorCode maps err onto its wire code. Unclassified errors count as upstream.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrFormat):
		return CodeFormat
	default:
		return CodeUpstream
	}
}

// ErrorFromCode rebuilds a classified error from a wire code and message
func ErrorFromCode(code, message string) error {
	switch code {
	case CodeValidation:
		return NewValidationError(message)
	case CodeFormat:
		return NewFormatError(message)
	default:
		return fmt.Errorf("%w: %s", ErrUpstream, message)
	}
}

// UserMessage is the retry prompt shown for a failed analysis
func UserMessage(err error) string {
	if errors.Is(err, ErrValidation) {
		return "Please provide a photo or the ingredient list, and your age."
	}
	return "Failed to analyze product. Please try again in a moment."
}
