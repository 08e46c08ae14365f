// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Unified error handling for all helix commands.
//
// STANDARDIZED PATTERN:
//   - ALWAYS return errors (never just print and return nil)
//   - Let Execute decide how to display errors
//   - Exit codes are derived from wrapped sentinels, not message text
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tsunamayo7/helix-ai-studio/internal/auth"
	"github.com/tsunamayo7/helix-ai-studio/internal/config"
	"github.com/tsunamayo7/helix-ai-studio/internal/conn"
	"github.com/tsunamayo7/helix-ai-studio/internal/history"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates authentication or authorization failure
	ExitAuthError = 4
	// ExitNetworkError indicates network or connectivity error
	ExitNetworkError = 5
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
	// ExitInterrupted indicates the user interrupted the command
	ExitInterrupted = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // Command that failed (e.g., "chats", "login")
	Action  string // Action being performed (e.g., "show", "rm")
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Command, e.Action, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ValidationError represents a validation failure for user input.
type ValidationError struct {
	Field   string
	Value   string
	Reason  string
	Example string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s", e.Field)
	if e.Value != "" {
		msg += fmt.Sprintf(" %q", e.Value)
	}
	msg += ": " + e.Reason
	if e.Example != "" {
		msg += " (usage: " + e.Example + ")"
	}
	return msg
}

// NewCommandError wraps err with the command and action that failed.
func NewCommandError(command, action string, err error) error {
	if err == nil {
		return nil
	}
	return &CommandError{Command: command, Action: action, Err: err}
}

// ErrMissingArgument creates an error for missing required arguments.
func ErrMissingArgument(argName, usage string) error {
	return &ValidationError{Field: argName, Reason: "required argument missing", Example: usage}
}

// ErrInvalidValue creates an error for a flag or argument with a bad value.
func ErrInvalidValue(field, value, expected string) error {
	return &ValidationError{Field: field, Value: value, Reason: "invalid value", Example: expected}
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode determines the appropriate exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var validationErr *ValidationError
	var configErr config.ValidateErrors
	var ttyErr *TTYRequiredError
	switch {
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.As(err, &validationErr), errors.As(err, &ttyErr),
		errors.Is(err, conn.ErrUnknownEndpoint), errors.Is(err, auth.ErrEmptyPIN):
		return ExitUsageError
	case errors.As(err, &configErr):
		return ExitConfigError
	case errors.Is(err, history.ErrUnauthorized), errors.Is(err, history.ErrForbidden),
		errors.Is(err, conn.ErrAuthRejected), errors.Is(err, auth.ErrNoToken),
		errors.Is(err, history.ErrNoCredential):
		return ExitAuthError
	case errors.Is(err, history.ErrNotFound):
		return ExitNotFoundError
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.Is(err, conn.ErrNotConnected), errors.Is(err, history.ErrRateLimited):
		return ExitNetworkError
	}
	return ExitGeneralError
}

// =============================================================================
// DISPLAY
// =============================================================================

// DisplayError writes err to w, as JSON in JSON mode.
func DisplayError(w io.Writer, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		displayErrorJSON(w, err)
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
}

func displayErrorJSON(w io.Writer, err error) {
	output := map[string]interface{}{
		"success":   false,
		"error":     err.Error(),
		"exit_code": GetExitCode(err),
	}

	var cmdErr *CommandError
	var validationErr *ValidationError
	switch {
	case errors.As(err, &validationErr):
		output["error_type"] = "validation_error"
		output["field"] = validationErr.Field
		if validationErr.Example != "" {
			output["example"] = validationErr.Example
		}
	case errors.As(err, &cmdErr):
		output["error_type"] = "command_error"
		output["command"] = cmdErr.Command
		output["action"] = cmdErr.Action
	default:
		output["error_type"] = "generic_error"
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(output)
}
