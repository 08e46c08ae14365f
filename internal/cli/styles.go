// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Centralized styling for all helix commands.
//
// Color handling:
// - Colors are automatically disabled for non-TTY output (piped, redirected)
// - Respects NO_COLOR environment variable (https://no-color.org/)
// - Supports FORCE_COLOR environment variable to override detection
package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tsunamayo7/helix-ai-studio/internal/model"
)

// init configures lipgloss color profile based on terminal capabilities.
func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle is used for command titles and headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")). // Cyan
			MarginBottom(1)

	// LabelStyle is used for field labels
	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")). // Light gray
			Width(16)

	// ValueStyle is used for regular values and text
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	// SuccessStyle is used for success messages and OK statuses
	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")). // Green
			Bold(true)

	// ErrorStyle is used for error messages and failures
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")). // Red
			Bold(true)

	// WarningStyle is used for warnings and cautions
	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // Yellow/Orange

	// DimStyle is used for secondary information and hints
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	// SeparatorStyle is used for visual separators
	SeparatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	// InfoStyle is used for informational messages
	InfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75")) // Blue
)

// Chat transcript styles.
var (
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("141")). // Purple
			Bold(true)

	phaseStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("141"))

	workerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

// =============================================================================
// HELPERS
// =============================================================================

// RenderSeparator renders a horizontal separator line of the specified width.
// Default width is 60 characters if not specified.
func RenderSeparator(width ...int) string {
	w := 60
	if len(width) > 0 && width[0] > 0 {
		w = width[0]
	}
	return SeparatorStyle.Render(strings.Repeat("-", w))
}

// RenderLabel renders a label with consistent width.
func RenderLabel(label string) string {
	return LabelStyle.Render(label)
}

// RenderConnectionStatus renders a connection status with its color.
func RenderConnectionStatus(status model.ConnectionStatus) string {
	text := "[" + strings.ToUpper(status.String()) + "]"
	switch status {
	case model.StatusConnected, model.StatusCompleted:
		return SuccessStyle.Render(text)
	case model.StatusError:
		return ErrorStyle.Render(text)
	case model.StatusExecuting:
		return InfoStyle.Render(text)
	case model.StatusDisconnected, model.StatusCancelled:
		return WarningStyle.Render(text)
	default:
		return DimStyle.Render(text)
	}
}

// RenderWorkerState renders the state of a phase-2 worker.
func RenderWorkerState(state model.WorkerState) string {
	switch state {
	case model.WorkerDone:
		return SuccessStyle.Render("done")
	case model.WorkerError:
		return ErrorStyle.Render("failed")
	default:
		return InfoStyle.Render("running")
	}
}
