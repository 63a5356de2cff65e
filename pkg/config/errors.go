package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error with a
// helpful suggestion.
type ValidationError struct {
	Field       string   `json:"field"`
	Message     string   `json:"message"`
	Suggestion  string   `json:"suggestion"`
	ValidValues []string `json:"valid_values,omitempty"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error in field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error with suggestion.
func NewValidationError(field, message, suggestion string) ValidationError {
	return ValidationError{
		Field:      field,
		Message:    message,
		Suggestion: suggestion,
	}
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// NewValidationErrors creates a ValidationErrors from a slice.
func NewValidationErrors(errors []ValidationError) ValidationErrors {
	return ValidationErrors{Errors: errors}
}

func (e ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var messages []string
	for _, err := range e.Errors {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("multiple validation errors:\n  - %s", strings.Join(messages, "\n  - "))
}

// IsEmpty returns true if there are no validation errors.
func (e ValidationErrors) IsEmpty() bool {
	return len(e.Errors) == 0
}

// FixSuggestions returns a formatted list of fix suggestions.
func (e ValidationErrors) FixSuggestions() []string {
	var suggestions []string
	for _, err := range e.Errors {
		if err.Suggestion != "" {
			suggestions = append(suggestions, fmt.Sprintf("%s: %s", err.Field, err.Suggestion))
		}
	}
	return suggestions
}
