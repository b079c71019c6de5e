// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"fmt"
	"strings"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ConfigError reports an invalid or incomplete provider configuration.
// Generations failing with a ConfigError never open a network stream.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return "config: " + e.Field + ": " + e.Message
	}
	return "config: " + e.Message
}

// Sentinel configuration errors.
var (
	// ErrMissingCredential is returned when a kind that requires a bearer
	// credential is constructed without one.
	ErrMissingCredential = &ConfigError{Field: "credential", Message: "missing API key"}

	// ErrUnknownKind is returned for a Kind outside the closed set.
	ErrUnknownKind = &ConfigError{Field: "provider", Message: "unknown provider kind"}
)

// HTTPError reports a non-success response from a chat backend before any
// streaming began. Body holds the (truncated) response text.
type HTTPError struct {
	Status int
	Body   string
}

// maxErrorBody caps how much response text an HTTPError carries.
const maxErrorBody = 2048

func (e *HTTPError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("backend returned HTTP %d", e.Status)
	}
	return fmt.Sprintf("backend returned HTTP %d: %s", e.Status, body)
}

// newHTTPError builds an HTTPError with a bounded body.
func newHTTPError(status int, body []byte) *HTTPError {
	text := string(body)
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	return &HTTPError{Status: status, Body: text}
}
