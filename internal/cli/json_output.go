// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - JSON output support for scripting.
//
// Every command that prints data wraps it in the same envelope so scripts
// can check success without parsing human-readable text.
package cli

import (
	"encoding/json"
	"io"
	"time"
)

// JSONResponse is the standardized response format for all CLI commands.
type JSONResponse struct {
	// Success indicates whether the command completed successfully
	Success bool `json:"success"`

	// Data contains the command-specific response data
	Data interface{} `json:"data"`

	// Error contains the error message if Success is false, null otherwise
	Error *string `json:"error"`

	// Timestamp is the ISO8601 timestamp when the response was generated
	Timestamp string `json:"timestamp"`

	// Command is the command that was executed
	Command string `json:"command,omitempty"`
}

// NewJSONResponse creates a new successful JSON response.
func NewJSONResponse(command string, data interface{}) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Print writes the response as indented JSON.
func (r *JSONResponse) Print(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// =============================================================================
// COMMAND-SPECIFIC DATA STRUCTURES
// =============================================================================

// StatusData represents the data returned by the status command.
type StatusData struct {
	Server     string   `json:"server"`
	Endpoints  []string `json:"endpoints"`
	Reachable  bool     `json:"reachable"`
	Service    string   `json:"service,omitempty"`
	Version    string   `json:"version,omitempty"`
	LoggedIn   bool     `json:"logged_in"`
	TokenValid *bool    `json:"token_valid,omitempty"`
	TokenFile  string   `json:"token_file"`
	History    string   `json:"history_source"`
	Archive    string   `json:"archive,omitempty"`
	ConfigFile string   `json:"config_file"`
}

// AskData represents the data returned by the ask command.
type AskData struct {
	Endpoint string `json:"endpoint"`
	ChatID   string `json:"chat_id,omitempty"`
	Title    string `json:"title,omitempty"`
	Answer   string `json:"answer"`
	IsError  bool   `json:"is_error,omitempty"`
}

// LoginData represents the data returned by the login command.
type LoginData struct {
	TokenFile      string `json:"token_file"`
	ExpiresInHours int    `json:"expires_in_hours"`
}
