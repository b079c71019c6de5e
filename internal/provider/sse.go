// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bufio"
	"bytes"
	"io"
)

// =============================================================================
// SSE READER
// =============================================================================

// MaxFrameSize is the maximum accepted size for a single wire frame (64KB).
// Oversized frames are skipped like malformed ones.
const MaxFrameSize = 64 * 1024

// doneSentinel is the SSE payload marking normal stream termination.
var doneSentinel = []byte("[DONE]")

// SSEReader incrementally parses `data:` lines from a server-sent-events
// body. Partial lines split across read boundaries are buffered and only
// parsed once a full line terminator arrives, so arbitrary chunking of the
// underlying stream yields identical frames.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates an SSE reader over r.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// Next returns the payload of the next `data:` line. Blank lines, comments,
// and non-data fields (event:, id:, retry:) are ignored. Oversized lines are
// skipped. Returns io.EOF when the stream ends; a final unterminated line is
// still processed before EOF is reported.
func (s *SSEReader) Next() ([]byte, error) {
	for {
		line, err := s.reader.ReadBytes('\n')
		if len(line) == 0 {
			if err != nil {
				return nil, err
			}
			continue
		}

		data, ok := parseSSELine(line)
		if ok {
			return data, nil
		}

		if err != nil {
			// Trailing non-data bytes before EOF or a read failure.
			return nil, err
		}
	}
}

// parseSSELine extracts the payload from a single SSE line.
// Returns ok=false for blank lines, comments, non-data fields, and
// oversized lines.
func parseSSELine(line []byte) ([]byte, bool) {
	line = bytes.TrimRight(line, "\r\n")
	if len(line) == 0 || line[0] == ':' {
		return nil, false
	}
	if len(line) > MaxFrameSize {
		return nil, false
	}
	if !bytes.HasPrefix(line, []byte("data:")) {
		return nil, false
	}
	data := bytes.TrimSpace(line[len("data:"):])
	return data, true
}

// isDoneSentinel reports whether an SSE payload is the `[DONE]` marker.
func isDoneSentinel(data []byte) bool {
	return bytes.Equal(data, doneSentinel)
}
