// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

package git_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolhost/toolhost/internal/tools/git"
	"github.com/toolhost/toolhost/pkg/toolsdk"
	"github.com/toolhost/toolhost/pkg/wire"
)

// fakeRunner returns canned output and records the last call.
type fakeRunner struct {
	out  string
	err  error
	dir  string
	args []string
}

func (f *fakeRunner) Run(_ context.Context, dir string, args ...string) (string, error) {
	f.dir = dir
	f.args = args
	if f.err != nil {
		return "", f.err
	}
	return f.out, nil
}

func TestStatus_CleanRepository(t *testing.T) {
	runner := &fakeRunner{out: "# branch.oid 4f2a\n# branch.head main\n"}
	tool := git.NewStatusTool(runner)

	out, err := tool.Execute(context.Background(), wire.Args{})
	require.NoError(t, err)

	encoded, err := wire.Encode(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"branch": "main", "staged": [], "unstaged": [], "untracked": []}`, encoded)
	assert.Equal(t, ".", runner.dir)
	assert.Equal(t, []string{"status", "--porcelain=v2", "--branch"}, runner.args)
}

func TestStatus_ParsesPorcelainEntries(t *testing.T) {
	porcelain := "# branch.head feature/x\n" +
		"1 M. N... 100644 100644 100644 aaa bbb staged.go\n" +
		"1 .M N... 100644 100644 100644 aaa bbb unstaged.go\n" +
		"1 MM N... 100644 100644 100644 aaa bbb both.go\n" +
		"2 R. N... 100644 100644 100644 aaa bbb R100 renamed.go\told.go\n" +
		"? untracked.go\n"
	tool := git.NewStatusTool(&fakeRunner{out: porcelain})

	out, err := tool.Execute(context.Background(), wire.Args{"path": "/repo"})
	require.NoError(t, err)

	encoded, err := wire.Encode(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"branch": "feature/x",
		"staged": ["staged.go", "both.go", "renamed.go"],
		"unstaged": ["unstaged.go", "both.go"],
		"untracked": ["untracked.go"]
	}`, encoded)
}

func TestStatus_NotARepository(t *testing.T) {
	tool := git.NewStatusTool(&fakeRunner{err: errors.New("Not a git repository: /tmp/nope")})

	_, err := tool.Execute(context.Background(), wire.Args{"path": "/tmp/nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Not a git repository")
}

func TestLog_ParsesCommits(t *testing.T) {
	runner := &fakeRunner{out: "abc123\x1fAda\x1f2026-01-02T03:04:05Z\x1fInitial commit\n" +
		"def456\x1fGrace\x1f2026-01-03T00:00:00Z\x1fAdd parser\n"}
	tool := git.NewLogTool(runner)

	out, err := tool.Execute(context.Background(), wire.Args{"limit": float64(2)})
	require.NoError(t, err)

	encoded, err := wire.Encode(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"commits": [
		{"hash": "abc123", "author": "Ada", "date": "2026-01-02T03:04:05Z", "subject": "Initial commit"},
		{"hash": "def456", "author": "Grace", "date": "2026-01-03T00:00:00Z", "subject": "Add parser"}
	]}`, encoded)
	assert.Contains(t, runner.args, "-n2")
}

func TestLog_EmptyRepositoryYieldsEmptyList(t *testing.T) {
	tool := git.NewLogTool(&fakeRunner{out: ""})

	out, err := tool.Execute(context.Background(), wire.Args{})
	require.NoError(t, err)

	encoded, err := wire.Encode(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"commits": []}`, encoded)
}

func TestLog_LimitBounds(t *testing.T) {
	tool := git.NewLogTool(&fakeRunner{})

	_, err := tool.Execute(context.Background(), wire.Args{"limit": float64(0)})
	assert.ErrorContains(t, err, "Invalid limit")

	_, err = tool.Execute(context.Background(), wire.Args{"limit": float64(101)})
	assert.ErrorContains(t, err, "Invalid limit")
}

func TestDiff_Variants(t *testing.T) {
	tests := []struct {
		name string
		args wire.Args
		want []string
	}{
		{name: "working tree", args: wire.Args{}, want: []string{"diff"}},
		{name: "staged", args: wire.Args{"staged": true}, want: []string{"diff", "--cached"}},
		{name: "against ref", args: wire.Args{"ref": "main"}, want: []string{"diff", "main"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{out: "diff --git a/x b/x\n"}
			tool := git.NewDiffTool(runner)

			out, err := tool.Execute(context.Background(), tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, runner.args)

			result, ok := out.(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "diff --git a/x b/x\n", result["diff"])
			assert.Equal(t, false, result["truncated"])
		})
	}
}

func TestDiff_RefAndStagedConflict(t *testing.T) {
	tool := git.NewDiffTool(&fakeRunner{})
	_, err := tool.Execute(context.Background(), wire.Args{"ref": "main", "staged": true})
	assert.ErrorContains(t, err, "mutually exclusive")
}

func TestDescriptors_RegisterCleanly(t *testing.T) {
	_, err := toolsdk.NewRegistry(
		git.NewStatusTool(&fakeRunner{}),
		git.NewLogTool(&fakeRunner{}),
		git.NewDiffTool(&fakeRunner{}),
	)
	require.NoError(t, err)
}
