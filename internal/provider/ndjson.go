// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bufio"
	"bytes"
	"io"
)

// =============================================================================
// NDJSON READER
// =============================================================================

// NDJSONReader incrementally parses newline-delimited JSON objects, the
// Ollama wire framing. Each non-blank line is one frame; there is no field
// prefix. Partial lines are buffered until their terminator arrives.
type NDJSONReader struct {
	reader *bufio.Reader
}

// NewNDJSONReader creates an NDJSON reader over r.
func NewNDJSONReader(r io.Reader) *NDJSONReader {
	return &NDJSONReader{reader: bufio.NewReader(r)}
}

// Next returns the next non-blank line. Oversized lines are skipped.
// Returns io.EOF when the stream ends; a final unterminated line is still
// returned before EOF is reported.
func (n *NDJSONReader) Next() ([]byte, error) {
	for {
		line, err := n.reader.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 && len(line) <= MaxFrameSize {
			return line, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
