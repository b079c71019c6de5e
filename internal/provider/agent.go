// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jeranaias/sidechat/internal/model"
	"github.com/jeranaias/sidechat/internal/tools"
)

// =============================================================================
// INTENT PATTERNS (pre-compiled once at startup)
// =============================================================================

const pathGroup = `["'` + "`" + `]?([\w.~/\\-]+)["'` + "`" + `]?`

var (
	readRegex  = regexp.MustCompile(`(?i)^(?:read|show|open|cat)\s+(?:the\s+)?(?:file\s+)?` + pathGroup + `\s*$`)
	writeRegex = regexp.MustCompile(`(?i)^(write|append)\s+(?:to\s+)?` + pathGroup + `\s*:\s*(.+)$`)
	stageRegex = regexp.MustCompile(`(?i)^(?:stage|propose)\s+` + pathGroup + `\s*:\s*(.+)$`)
	diffRegex  = regexp.MustCompile(`(?i)^(?:diff|preview)\s+(?:changes\s+)?(?:for\s+|to\s+)?` + pathGroup + `\s*$`)
	applyRegex = regexp.MustCompile(`(?i)^apply\s+(?:the\s+)?(?:diff\s+|changes?\s+)?(?:to\s+)?` + pathGroup + `\s*$`)
)

// maxReadNarration caps how much file content the read step narrates.
const maxReadNarration = 4096

// =============================================================================
// AGENT PROVIDER
// =============================================================================

// agent is the tool-using backend. It matches each line of the user's text
// against a small verb grammar, invokes the workspace tools accordingly,
// accumulates a narration of the steps taken, and then streams the narration
// token by token like the mock backend.
//
// Cancellation is checked before every tool invocation and between streamed
// tokens; no tool call begins after cancellation is observed.
type agent struct {
	workspace *tools.Workspace
	interval  time.Duration
}

func newAgent(ws *tools.Workspace, interval time.Duration) *agent {
	if interval <= 0 {
		interval = DefaultMockInterval
	}
	return &agent{workspace: ws, interval: interval}
}

// Stream implements Provider.
func (p *agent) Stream(ctx context.Context, req Request, cb Callbacks) error {
	text := ""
	for _, m := range req.Messages {
		if m.Role == model.RoleUser {
			text = m.Content
		}
	}

	narration, err := p.run(ctx, text)
	if err != nil {
		return err
	}
	return streamTokens(ctx, splitTokens(narration), p.interval, cb)
}

// run executes the matched tool steps and builds the narration.
func (p *agent) run(ctx context.Context, text string) (string, error) {
	var steps []string

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		step, matched, err := p.step(ctx, line)
		if err != nil {
			return "", err
		}
		if matched {
			steps = append(steps, step)
		}
	}

	if len(steps) == 0 {
		return helpNarration(), nil
	}
	return strings.Join(steps, "\n\n"), nil
}

// step dispatches one line to a tool. Returns matched=false when the line
// fits no intent.
func (p *agent) step(ctx context.Context, line string) (string, bool, error) {
	if m := readRegex.FindStringSubmatch(line); m != nil {
		return p.readStep(m[1]), true, nil
	}
	if m := stageRegex.FindStringSubmatch(line); m != nil {
		p.workspace.Stage(m[1], m[2])
		return fmt.Sprintf("Staged proposed content for %s. Say \"diff %s\" to preview it.", m[1], m[1]), true, nil
	}
	if m := diffRegex.FindStringSubmatch(line); m != nil {
		return p.diffStep(m[1]), true, nil
	}
	if m := applyRegex.FindStringSubmatch(line); m != nil {
		step, err := p.applyStep(ctx, m[1])
		return step, true, err
	}
	if m := writeRegex.FindStringSubmatch(line); m != nil {
		step, err := p.writeStep(ctx, m[2], m[3], strings.EqualFold(m[1], "append"))
		return step, true, err
	}
	return "", false, nil
}

func (p *agent) readStep(path string) string {
	content, ok := p.workspace.Read(path)
	if !ok {
		return fmt.Sprintf("Could not read %s.", path)
	}
	if len(content) > maxReadNarration {
		content = content[:maxReadNarration] + "\n... (truncated)"
	}
	return fmt.Sprintf("Contents of %s:\n%s", path, content)
}

func (p *agent) diffStep(path string) string {
	diffText, ok := p.workspace.ProduceDiff(path)
	if !ok {
		return fmt.Sprintf("No staged changes for %s.", path)
	}
	return fmt.Sprintf("Proposed changes to %s:\n%s", path, diffText)
}

func (p *agent) applyStep(ctx context.Context, path string) (string, error) {
	diffText, _ := p.workspace.ProduceDiff(path)
	applied, err := p.workspace.ApplyDiff(ctx, path, diffText)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Debug().Err(err).Str("path", path).Msg("apply failed")
		return fmt.Sprintf("Failed to apply changes to %s: %v.", path, err), nil
	}
	if !applied {
		return fmt.Sprintf("Changes to %s were not applied (nothing staged or not confirmed).", path), nil
	}
	return fmt.Sprintf("Applied staged changes to %s.", path), nil
}

func (p *agent) writeStep(ctx context.Context, path, content string, appendTo bool) (string, error) {
	written, err := p.workspace.Write(ctx, path, content, appendTo)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.Debug().Err(err).Str("path", path).Msg("write failed")
		return fmt.Sprintf("Failed to write %s: %v.", path, err), nil
	}
	if !written {
		return fmt.Sprintf("Write to %s was not confirmed; nothing changed.", path), nil
	}
	verb := "Wrote"
	if appendTo {
		verb = "Appended"
	}
	return fmt.Sprintf("%s %d bytes to %s.", verb, len(content), path), nil
}

func helpNarration() string {
	return strings.Join([]string{
		"I can work with files in this workspace. Try one of:",
		"  read <path>",
		"  write <path>: <text>",
		"  append <path>: <text>",
		"  stage <path>: <text> (then \"diff <path>\" and \"apply <path>\")",
	}, "\n")
}
