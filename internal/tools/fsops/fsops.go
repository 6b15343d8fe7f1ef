// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

// Package fsops implements the fs_read, fs_write, fs_list, and fs_delete
// tools. All paths are confined to a workspace root: relative paths join
// under it, and traversal outside it is rejected before any filesystem call.
package fsops

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/toolhost/toolhost/pkg/manifest"
	"github.com/toolhost/toolhost/pkg/wire"
)

const maxReadBytes = 1024 * 1024

// Root confines every filesystem tool to one workspace directory.
type Root struct {
	dir string
}

// NewRoot creates a workspace root. An empty dir means the current
// directory.
func NewRoot(dir string) (*Root, error) {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace %q: %w", dir, err)
	}
	return &Root{dir: abs}, nil
}

// Dir returns the absolute workspace directory.
func (r *Root) Dir() string { return r.dir }

// resolve joins a caller-supplied path under the workspace and rejects
// escapes. The error text is part of the tool contract.
func (r *Root) resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "."
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.dir, path)
	}
	resolved := filepath.Clean(path)
	if resolved != r.dir && !strings.HasPrefix(resolved, r.dir+string(filepath.Separator)) {
		return "", fmt.Errorf("Path %s is outside the workspace %s", resolved, r.dir)
	}
	return resolved, nil
}

// rel reports a path workspace-relative for output, falling back to the
// absolute form.
func (r *Root) rel(path string) string {
	if rel, err := filepath.Rel(r.dir, path); err == nil {
		return rel
	}
	return path
}

func pathParam(desc string) map[string]manifest.Property {
	return map[string]manifest.Property{
		"path": {Type: "string", Description: desc},
	}
}

// ReadTool is the fs_read handler.
type ReadTool struct {
	root *Root
}

// NewReadTool creates the fs_read handler.
func NewReadTool(root *Root) *ReadTool { return &ReadTool{root: root} }

func (t *ReadTool) Descriptor() manifest.Tool {
	return manifest.Tool{
		ID:          "fs_read",
		Description: "Read a file inside the workspace and return its contents.",
		Parameters: manifest.ParameterSchema{
			Type:       "object",
			Properties: pathParam("File path, relative to the workspace."),
			Required:   []string{"path"},
		},
		Permission: manifest.PermissionAllow,
	}
}

func (t *ReadTool) Execute(_ context.Context, args wire.Args) (any, error) {
	if err := args.Require("path"); err != nil {
		return nil, err
	}
	resolved, err := t.root.resolve(args.StringOr("path", ""))
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("File not found: %s", t.root.rel(resolved))
		}
		return nil, fmt.Errorf("Cannot read %s: %v", t.root.rel(resolved), err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory. Use fs_list to list it", t.root.rel(resolved))
	}
	if info.Size() > maxReadBytes {
		return nil, fmt.Errorf("File %s is %d bytes, larger than the %d byte limit", t.root.rel(resolved), info.Size(), maxReadBytes)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("Cannot read %s: %v", t.root.rel(resolved), err)
	}
	return map[string]any{"path": t.root.rel(resolved), "content": string(data), "size": len(data)}, nil
}

// WriteTool is the fs_write handler.
type WriteTool struct {
	root *Root
}

// NewWriteTool creates the fs_write handler.
func NewWriteTool(root *Root) *WriteTool { return &WriteTool{root: root} }

func (t *WriteTool) Descriptor() manifest.Tool {
	return manifest.Tool{
		ID:          "fs_write",
		Description: "Write content to a file inside the workspace, creating parent directories as needed.",
		Parameters: manifest.ParameterSchema{
			Type: "object",
			Properties: map[string]manifest.Property{
				"path":    {Type: "string", Description: "File path, relative to the workspace."},
				"content": {Type: "string", Description: "Content to write."},
			},
			Required: []string{"path", "content"},
		},
		Permission: manifest.PermissionAsk,
	}
}

func (t *WriteTool) Execute(_ context.Context, args wire.Args) (any, error) {
	if err := args.Require("path", "content"); err != nil {
		return nil, err
	}
	resolved, err := t.root.resolve(args.StringOr("path", ""))
	if err != nil {
		return nil, err
	}

	content := args.StringOr("content", "")
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return nil, fmt.Errorf("Cannot create parent directory for %s: %v", t.root.rel(resolved), err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("Cannot write %s: %v", t.root.rel(resolved), err)
	}
	return map[string]any{"path": t.root.rel(resolved), "bytes_written": len(content)}, nil
}

// ListTool is the fs_list handler.
type ListTool struct {
	root *Root
}

// NewListTool creates the fs_list handler.
func NewListTool(root *Root) *ListTool { return &ListTool{root: root} }

func (t *ListTool) Descriptor() manifest.Tool {
	return manifest.Tool{
		ID:          "fs_list",
		Description: "List a directory inside the workspace, optionally filtered by a glob pattern.",
		Parameters: manifest.ParameterSchema{
			Type: "object",
			Properties: map[string]manifest.Property{
				"path":    {Type: "string", Description: "Directory path, relative to the workspace. Defaults to the workspace root."},
				"pattern": {Type: "string", Description: "Glob filter over entry names, e.g. *.go."},
			},
		},
		Permission: manifest.PermissionAllow,
	}
}

type listEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

func (t *ListTool) Execute(_ context.Context, args wire.Args) (any, error) {
	resolved, err := t.root.resolve(args.StringOr("path", "."))
	if err != nil {
		return nil, err
	}

	var matcher glob.Glob
	if pattern := args.StringOr("pattern", ""); pattern != "" {
		matcher, err = glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("Invalid glob pattern %q: %v", pattern, err)
		}
	}

	dirEntries, err := os.ReadDir(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("Directory not found: %s", t.root.rel(resolved))
		}
		return nil, fmt.Errorf("Cannot list %s: %v", t.root.rel(resolved), err)
	}

	entries := []listEntry{}
	for _, e := range dirEntries {
		if matcher != nil && !matcher.Match(e.Name()) {
			continue
		}
		entry := listEntry{Name: e.Name(), IsDir: e.IsDir()}
		if info, err := e.Info(); err == nil && !e.IsDir() {
			entry.Size = info.Size()
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	return map[string]any{"path": t.root.rel(resolved), "entries": entries}, nil
}

// DeleteTool is the fs_delete handler.
type DeleteTool struct {
	root *Root
}

// NewDeleteTool creates the fs_delete handler.
func NewDeleteTool(root *Root) *DeleteTool { return &DeleteTool{root: root} }

func (t *DeleteTool) Descriptor() manifest.Tool {
	return manifest.Tool{
		ID:          "fs_delete",
		Description: "Delete a file or directory inside the workspace. Non-empty directories require recursive: true.",
		Parameters: manifest.ParameterSchema{
			Type: "object",
			Properties: map[string]manifest.Property{
				"path":      {Type: "string", Description: "Path to delete, relative to the workspace."},
				"recursive": {Type: "boolean", Description: "Delete non-empty directories.", Default: false},
			},
			Required: []string{"path"},
		},
		Permission: manifest.PermissionAsk,
	}
}

func (t *DeleteTool) Execute(_ context.Context, args wire.Args) (any, error) {
	if err := args.Require("path"); err != nil {
		return nil, err
	}
	resolved, err := t.root.resolve(args.StringOr("path", ""))
	if err != nil {
		return nil, err
	}
	if resolved == t.root.dir {
		return nil, errors.New("Refusing to delete the workspace root")
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("File not found: %s", t.root.rel(resolved))
		}
		return nil, fmt.Errorf("Cannot delete %s: %v", t.root.rel(resolved), err)
	}

	if info.IsDir() && !args.Bool("recursive", false) {
		entries, err := os.ReadDir(resolved)
		if err != nil {
			return nil, fmt.Errorf("Cannot delete %s: %v", t.root.rel(resolved), err)
		}
		if len(entries) > 0 {
			return nil, errors.New("Directory is not empty. Use recursive: true to delete non-empty directories.")
		}
	}

	if err := os.RemoveAll(resolved); err != nil {
		return nil, fmt.Errorf("Cannot delete %s: %v", t.root.rel(resolved), err)
	}
	return map[string]any{"path": t.root.rel(resolved), "deleted": true}, nil
}
