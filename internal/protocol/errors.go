// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import "errors"

var (
	// ErrMalformedFrame is returned by Decode when the payload is not a JSON
	// object or a known frame carries fields of the wrong type.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrEmptyPrompt is returned when an execute command has no prompt text.
	ErrEmptyPrompt = errors.New("prompt is empty")
)
