// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

package fsops_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolhost/toolhost/internal/tools/fsops"
	"github.com/toolhost/toolhost/pkg/wire"
)

func newRoot(t *testing.T) *fsops.Root {
	t.Helper()
	root, err := fsops.NewRoot(t.TempDir())
	require.NoError(t, err)
	return root
}

func seed(t *testing.T, root *fsops.Root, path, content string) {
	t.Helper()
	full := filepath.Join(root.Dir(), path)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestRead_File(t *testing.T) {
	root := newRoot(t)
	seed(t, root, "notes.txt", "hello world")

	out, err := fsops.NewReadTool(root).Execute(context.Background(), wire.Args{"path": "notes.txt"})
	require.NoError(t, err)

	result := out.(map[string]any)
	assert.Equal(t, "hello world", result["content"])
	assert.Equal(t, 11, result["size"])
}

func TestRead_Missing(t *testing.T) {
	root := newRoot(t)
	_, err := fsops.NewReadTool(root).Execute(context.Background(), wire.Args{"path": "nope.txt"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "File not found: nope.txt")
}

func TestRead_Directory(t *testing.T) {
	root := newRoot(t)
	seed(t, root, "dir/file.txt", "x")

	_, err := fsops.NewReadTool(root).Execute(context.Background(), wire.Args{"path": "dir"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Use fs_list")
}

func TestResolve_RejectsTraversal(t *testing.T) {
	root := newRoot(t)

	tests := []string{
		"../outside.txt",
		"../../etc/passwd",
		"dir/../../outside",
	}
	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			_, err := fsops.NewReadTool(root).Execute(context.Background(), wire.Args{"path": path})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "outside the workspace")
		})
	}
}

func TestWrite_CreatesParents(t *testing.T) {
	root := newRoot(t)

	out, err := fsops.NewWriteTool(root).Execute(context.Background(), wire.Args{
		"path":    "a/b/c.txt",
		"content": "data",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, out.(map[string]any)["bytes_written"])

	data, err := os.ReadFile(filepath.Join(root.Dir(), "a/b/c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}

func TestWrite_RequiresContent(t *testing.T) {
	root := newRoot(t)
	_, err := fsops.NewWriteTool(root).Execute(context.Background(), wire.Args{"path": "x.txt"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Required: path, content")
}

func TestList_SortedEntries(t *testing.T) {
	root := newRoot(t)
	seed(t, root, "b.go", "package b")
	seed(t, root, "a.go", "package a")
	seed(t, root, "sub/c.txt", "c")

	out, err := fsops.NewListTool(root).Execute(context.Background(), wire.Args{})
	require.NoError(t, err)

	encoded, err := wire.Encode(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"path": ".", "entries": [
		{"name": "a.go", "is_dir": false, "size": 9},
		{"name": "b.go", "is_dir": false, "size": 9},
		{"name": "sub", "is_dir": true, "size": 0}
	]}`, encoded)
}

func TestList_GlobFilter(t *testing.T) {
	root := newRoot(t)
	seed(t, root, "main.go", "x")
	seed(t, root, "readme.md", "x")

	out, err := fsops.NewListTool(root).Execute(context.Background(), wire.Args{"pattern": "*.go"})
	require.NoError(t, err)

	entries := out.(map[string]any)["entries"]
	encoded, err := wire.Encode(map[string]any{"entries": entries})
	require.NoError(t, err)
	assert.JSONEq(t, `{"entries": [{"name": "main.go", "is_dir": false, "size": 1}]}`, encoded)
}

func TestList_InvalidPattern(t *testing.T) {
	root := newRoot(t)
	_, err := fsops.NewListTool(root).Execute(context.Background(), wire.Args{"pattern": "["})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid glob pattern")
}

func TestDelete_File(t *testing.T) {
	root := newRoot(t)
	seed(t, root, "gone.txt", "x")

	_, err := fsops.NewDeleteTool(root).Execute(context.Background(), wire.Args{"path": "gone.txt"})
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(root.Dir(), "gone.txt"))
}

func TestDelete_NonEmptyDirectoryNeedsRecursive(t *testing.T) {
	root := newRoot(t)
	seed(t, root, "dir/file.txt", "x")
	tool := fsops.NewDeleteTool(root)

	_, err := tool.Execute(context.Background(), wire.Args{"path": "dir"})
	require.Error(t, err)
	assert.Equal(t, "Directory is not empty. Use recursive: true to delete non-empty directories.", err.Error())
	assert.DirExists(t, filepath.Join(root.Dir(), "dir"))

	_, err = tool.Execute(context.Background(), wire.Args{"path": "dir", "recursive": true})
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(root.Dir(), "dir"))
}

func TestDelete_EmptyDirectoryWithoutRecursive(t *testing.T) {
	root := newRoot(t)
	require.NoError(t, os.Mkdir(filepath.Join(root.Dir(), "empty"), 0o755))

	_, err := fsops.NewDeleteTool(root).Execute(context.Background(), wire.Args{"path": "empty"})
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(root.Dir(), "empty"))
}

func TestDelete_RefusesWorkspaceRoot(t *testing.T) {
	root := newRoot(t)
	_, err := fsops.NewDeleteTool(root).Execute(context.Background(), wire.Args{"path": "."})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workspace root")
}
