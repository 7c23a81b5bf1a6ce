package models

import (
	"fmt"

	"github.com/spineio/spineweb.go/pkg/constants"
)

// Ack is the backend acknowledgement of a command.
// Exactly one of the status fields is set.
type Ack struct {
	MessageID string
	OK        bool
	Error     *CommandError
	Rejection *CommandRejection
}

// CommandError is a technical failure to process a command.
type CommandError struct {
	Type            string         `json:"type"`
	Code            int            `json:"code"`
	Message         string         `json:"message"`
	ValidationError map[string]any `json:"validationError,omitempty"`
}

func (e *CommandError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s (%s:%d)", e.Message, e.Type, e.Code)
	}
	return e.Message
}

func (e *CommandError) Unwrap() error {
	return constants.ErrCommandFailed
}

// CommandRejection is a business-level refusal of a command.
type CommandRejection struct {
	ID      string         `json:"id"`
	Message map[string]any `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

func (r *CommandRejection) Error() string {
	if t, ok := r.Message["@type"].(string); ok {
		return fmt.Sprintf("command rejected: %s", t)
	}
	return "command rejected"
}

func (r *CommandRejection) Unwrap() error {
	return constants.ErrCommandRejected
}
