// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"net/http"
	"time"
)

// sharedStreamingClient is the HTTP client used for streaming requests.
// No overall timeout: a generation may legitimately stream for minutes, and
// cancellation is handled through the request context instead. Connection
// pooling is shared across generations.
var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	},
}

// httpClientOrDefault returns c when non-nil, the shared client otherwise.
func httpClientOrDefault(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return sharedStreamingClient
}
