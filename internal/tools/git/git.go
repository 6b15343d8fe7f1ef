// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

// Package git implements the git_status, git_log, and git_diff tools on top
// of the git CLI. Output parsing sticks to the porcelain formats, which git
// documents as stable for scripting.
package git

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/toolhost/toolhost/pkg/manifest"
	"github.com/toolhost/toolhost/pkg/wire"
)

const (
	commandTimeout = 15 * time.Second
	maxDiffBytes   = 256 * 1024
	defaultLogN    = 10
	maxLogN        = 100
)

// unit separator, used in the log pretty format so subjects containing any
// printable character still split cleanly.
const fieldSep = "\x1f"

// Runner executes a git command in a working directory and returns combined
// output. The default runner shells out to the git binary.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("git %s timed out after %s", args[0], commandTimeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", gitFailure(dir, args[0], string(out))
		}
		return "", fmt.Errorf("git is not available: %v", err)
	}
	return string(out), nil
}

// gitFailure turns raw git stderr into an agent-actionable error.
func gitFailure(dir, subcommand, output string) error {
	msg := strings.TrimSpace(output)
	if strings.Contains(msg, "not a git repository") {
		return fmt.Errorf("Not a git repository: %s", dir)
	}
	if msg == "" {
		msg = "git " + subcommand + " failed"
	}
	return errors.New(msg)
}

func resolveDir(args wire.Args) string {
	return args.StringOr("path", ".")
}

// StatusTool reports branch and working tree state.
type StatusTool struct {
	runner Runner
}

// NewStatusTool creates the git_status handler. A nil runner uses the git
// binary on PATH.
func NewStatusTool(runner Runner) *StatusTool {
	if runner == nil {
		runner = execRunner{}
	}
	return &StatusTool{runner: runner}
}

func (t *StatusTool) Descriptor() manifest.Tool {
	return manifest.Tool{
		ID:          "git_status",
		Description: "Show the current branch and staged, unstaged, and untracked files of a git repository.",
		Parameters: manifest.ParameterSchema{
			Type: "object",
			Properties: map[string]manifest.Property{
				"path": {Type: "string", Description: "Repository path. Defaults to the current directory."},
			},
		},
		Requirements: []string{"git"},
		Permission:   manifest.PermissionAllow,
	}
}

// statusResult keeps the field order stable in emitted JSON.
type statusResult struct {
	Branch    string   `json:"branch"`
	Staged    []string `json:"staged"`
	Unstaged  []string `json:"unstaged"`
	Untracked []string `json:"untracked"`
}

func (t *StatusTool) Execute(ctx context.Context, args wire.Args) (any, error) {
	dir := resolveDir(args)
	out, err := t.runner.Run(ctx, dir, "status", "--porcelain=v2", "--branch")
	if err != nil {
		return nil, err
	}
	return parseStatus(out), nil
}

// parseStatus reads porcelain v2 output. Entry lines:
//
//	# branch.head <name>
//	1 <XY> ... <path>          ordinary change
//	2 <XY> ... <path>\t<orig>  rename or copy
//	u <XY> ... <path>          unmerged
//	? <path>                   untracked
func parseStatus(out string) statusResult {
	result := statusResult{
		Staged:    []string{},
		Unstaged:  []string{},
		Untracked: []string{},
	}

	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "# branch.head "):
			result.Branch = strings.TrimPrefix(line, "# branch.head ")
		case strings.HasPrefix(line, "? "):
			result.Untracked = append(result.Untracked, line[2:])
		case strings.HasPrefix(line, "1 "), strings.HasPrefix(line, "2 "), strings.HasPrefix(line, "u "):
			// Rename entries carry an extra similarity-score field and
			// append the original path after a tab; unmerged entries
			// carry the three stage modes and hashes.
			nFields := 9
			switch line[0] {
			case '2':
				nFields = 10
			case 'u':
				nFields = 11
			}
			fields := strings.SplitN(line, " ", nFields)
			if len(fields) < nFields {
				continue
			}
			xy := fields[1]
			path, _, _ := strings.Cut(fields[nFields-1], "\t")
			if xy[0] != '.' {
				result.Staged = append(result.Staged, path)
			}
			if xy[1] != '.' {
				result.Unstaged = append(result.Unstaged, path)
			}
		}
	}
	return result
}

// LogTool lists recent commits.
type LogTool struct {
	runner Runner
}

// NewLogTool creates the git_log handler.
func NewLogTool(runner Runner) *LogTool {
	if runner == nil {
		runner = execRunner{}
	}
	return &LogTool{runner: runner}
}

func (t *LogTool) Descriptor() manifest.Tool {
	return manifest.Tool{
		ID:          "git_log",
		Description: "List recent commits with hash, author, date, and subject.",
		Parameters: manifest.ParameterSchema{
			Type: "object",
			Properties: map[string]manifest.Property{
				"path":  {Type: "string", Description: "Repository path. Defaults to the current directory."},
				"limit": {Type: "integer", Description: "Maximum commits to return.", Default: defaultLogN},
			},
		},
		Requirements: []string{"git"},
		Permission:   manifest.PermissionAllow,
	}
}

type commit struct {
	Hash    string `json:"hash"`
	Author  string `json:"author"`
	Date    string `json:"date"`
	Subject string `json:"subject"`
}

func (t *LogTool) Execute(ctx context.Context, args wire.Args) (any, error) {
	limit := args.IntOr("limit", defaultLogN)
	if limit < 1 || limit > maxLogN {
		return nil, fmt.Errorf("Invalid limit %d: must be between 1 and %d", limit, maxLogN)
	}

	dir := resolveDir(args)
	out, err := t.runner.Run(ctx, dir,
		"log", fmt.Sprintf("-n%d", limit),
		"--pretty=format:%H"+fieldSep+"%an"+fieldSep+"%aI"+fieldSep+"%s")
	if err != nil {
		return nil, err
	}

	commits := []commit{}
	for _, line := range strings.Split(out, "\n") {
		parts := strings.SplitN(line, fieldSep, 4)
		if len(parts) != 4 {
			continue
		}
		commits = append(commits, commit{Hash: parts[0], Author: parts[1], Date: parts[2], Subject: parts[3]})
	}
	return map[string]any{"commits": commits}, nil
}

// DiffTool shows pending or ref-relative changes.
type DiffTool struct {
	runner Runner
}

// NewDiffTool creates the git_diff handler.
func NewDiffTool(runner Runner) *DiffTool {
	if runner == nil {
		runner = execRunner{}
	}
	return &DiffTool{runner: runner}
}

func (t *DiffTool) Descriptor() manifest.Tool {
	return manifest.Tool{
		ID:          "git_diff",
		Description: "Show unstaged changes, staged changes, or the diff against a ref.",
		Parameters: manifest.ParameterSchema{
			Type: "object",
			Properties: map[string]manifest.Property{
				"path":   {Type: "string", Description: "Repository path. Defaults to the current directory."},
				"ref":    {Type: "string", Description: "Diff against this ref instead of the working tree."},
				"staged": {Type: "boolean", Description: "Show staged changes only.", Default: false},
			},
		},
		Requirements: []string{"git"},
		Permission:   manifest.PermissionAllow,
	}
}

func (t *DiffTool) Execute(ctx context.Context, args wire.Args) (any, error) {
	cmdArgs := []string{"diff"}
	ref := args.StringOr("ref", "")
	staged := args.Bool("staged", false)
	switch {
	case ref != "" && staged:
		return nil, errors.New("Invalid arguments: ref and staged are mutually exclusive")
	case staged:
		cmdArgs = append(cmdArgs, "--cached")
	case ref != "":
		cmdArgs = append(cmdArgs, ref)
	}

	dir := resolveDir(args)
	out, err := t.runner.Run(ctx, dir, cmdArgs...)
	if err != nil {
		return nil, err
	}

	truncated := false
	if len(out) > maxDiffBytes {
		out = out[:maxDiffBytes]
		truncated = true
	}
	return map[string]any{"diff": out, "truncated": truncated}, nil
}
