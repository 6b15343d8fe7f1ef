// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Toolhost Contributors

//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/toolhost/toolhost/internal/abi"
	"github.com/toolhost/toolhost/internal/host"
	"github.com/toolhost/toolhost/internal/permission"
	"github.com/toolhost/toolhost/internal/tools/browser"
	"github.com/toolhost/toolhost/pkg/manifest"
	"github.com/toolhost/toolhost/pkg/toolsdk"
	"github.com/toolhost/toolhost/pkg/wire"
)

// stubGit answers every git call with a clean porcelain status.
type stubGit struct{}

func (stubGit) Run(_ context.Context, _ string, args ...string) (string, error) {
	for _, a := range args {
		if a == "--porcelain=v2" {
			return "# branch.head main\n", nil
		}
	}
	return "", nil
}

func builtinConfig(workspace string) host.BuiltinConfig {
	return host.BuiltinConfig{
		Workspace: workspace,
		GitRunner: stubGit{},
		BrowserFactory: func() (browser.Engine, error) {
			return nil, errors.New("browser disabled in integration tests")
		},
	}
}

var _ = Describe("Builtin plugin behind the entry-point table", func() {
	var (
		workspace string
		table     *abi.Table
		eps       abi.EntryPoints
		handle    abi.Handle
	)

	BeforeEach(func() {
		workspace = GinkgoT().TempDir()
		table = abi.NewTable(host.BuiltinFactory(builtinConfig(workspace)))
		eps = table.EntryPoints()
		handle = eps.Init()
		Expect(handle).NotTo(Equal(abi.Handle(0)))
	})

	AfterEach(func() {
		eps.Destroy(handle)
		Expect(table.LiveContexts()).To(BeZero())
	})

	invoke := func(tool, payload string) string {
		capType := toolsdk.CapabilityTypeTool
		ptr := eps.Invoke(handle, &capType, &tool, &payload)
		Expect(ptr).NotTo(Equal(abi.StrPtr(0)))
		result, ok := table.ReadString(ptr)
		Expect(ok).To(BeTrue())
		eps.FreeString(ptr)
		return result
	}

	It("serves a manifest the host can parse and free", func() {
		ptr := eps.GetManifest(handle)
		Expect(ptr).NotTo(Equal(abi.StrPtr(0)))

		doc, ok := table.ReadString(ptr)
		Expect(ok).To(BeTrue())

		m, err := manifest.Parse([]byte(doc))
		Expect(err).NotTo(HaveOccurred())
		Expect(m.PluginID).To(Equal(host.BuiltinPluginID))
		Expect(len(m.Capabilities.Tools)).To(Equal(13))

		eps.FreeString(ptr)
		Expect(table.LiveStrings()).To(BeZero())
	})

	It("returns transport null for a null capability type", func() {
		tool, payload := "git_status", "{}"
		Expect(eps.Invoke(handle, nil, &tool, &payload)).To(Equal(abi.StrPtr(0)))
	})

	It("reports a clean repository status", func() {
		result := invoke("git_status", wireEncode(map[string]string{"path": workspace}))
		Expect(result).To(MatchJSON(`{"branch": "main", "staged": [], "unstaged": [], "untracked": []}`))
	})

	It("round-trips a file through the filesystem tools", func() {
		invoke("fs_write", wireEncode(map[string]string{"path": "dir/a.txt", "content": "hello"}))

		result := invoke("fs_read", wireEncode(map[string]string{"path": "dir/a.txt"}))
		args, err := wire.Decode(result)
		Expect(err).NotTo(HaveOccurred())
		Expect(args.StringOr("content", "")).To(Equal("hello"))
	})

	It("refuses to delete a non-empty directory without recursive", func() {
		invoke("fs_write", wireEncode(map[string]string{"path": "full/a.txt", "content": "x"}))

		result := invoke("fs_delete", wireEncode(map[string]string{"path": "full"}))
		args, err := wire.Decode(result)
		Expect(err).NotTo(HaveOccurred())
		Expect(args.StringOr("error", "")).To(Equal(
			"Directory is not empty. Use recursive: true to delete non-empty directories."))
	})

	It("names the tool in the unknown-tool error", func() {
		result := invoke("does_not_exist", "{}")
		Expect(result).To(MatchJSON(`{"error": "Unknown tool: does_not_exist"}`))
	})

	It("survives concurrent invocations without cross-talk", func() {
		const workers = 16
		var wg sync.WaitGroup
		failures := make(chan error, workers)

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				defer GinkgoRecover()

				path := fmt.Sprintf("w%d.txt", n)
				content := fmt.Sprintf("payload-%d", n)
				invoke("fs_write", wireEncode(map[string]string{"path": path, "content": content}))

				result := invoke("fs_read", wireEncode(map[string]string{"path": path}))
				args, err := wire.Decode(result)
				if err != nil {
					failures <- err
					return
				}
				if got := args.StringOr("content", ""); got != content {
					failures <- fmt.Errorf("worker %d: got %q", n, got)
				}
			}(i)
		}

		wg.Wait()
		close(failures)
		Expect(failures).To(BeEmpty())
		Expect(table.LiveStrings()).To(BeZero())
	})
})

var _ = Describe("Manager policy enforcement end to end", func() {
	newManager := func(rules []permission.Rule) (*host.Manager, string) {
		workspace := GinkgoT().TempDir()
		enforcer := permission.NewEnforcer(nil)
		if rules != nil {
			Expect(enforcer.SetRules(rules)).To(Succeed())
		}
		m := host.NewManager(host.WithEnforcer(enforcer))
		Expect(m.RegisterBuiltin(host.BuiltinFactory(builtinConfig(workspace)))).To(Succeed())
		DeferCleanup(func() { _ = m.Close(context.Background()) })
		return m, workspace
	}

	It("honors a deny override for a whole tool family", func() {
		m, _ := newManager([]permission.Rule{
			{Pattern: "fs_*", Policy: manifest.PermissionDeny},
		})

		result, err := m.Invoke(context.Background(), host.BuiltinPluginID,
			"fs_write", wireEncode(map[string]string{"path": "a.txt", "content": "x"}))
		Expect(err).NotTo(HaveOccurred())

		args, derr := wire.Decode(result)
		Expect(derr).NotTo(HaveOccurred())
		Expect(args.StringOr("error", "")).To(ContainSubstring("fs_write"))
	})

	It("writes through once an allow override grants the tool", func() {
		m, workspace := newManager([]permission.Rule{
			{Pattern: "fs_write", Policy: manifest.PermissionAllow},
		})

		result, err := m.Invoke(context.Background(), host.BuiltinPluginID,
			"fs_write", wireEncode(map[string]string{"path": "ok.txt", "content": "fine"}))
		Expect(err).NotTo(HaveOccurred())

		args, derr := wire.Decode(result)
		Expect(derr).NotTo(HaveOccurred())
		Expect(args.StringOr("error", "")).To(BeEmpty())

		data, rerr := os.ReadFile(filepath.Join(workspace, "ok.txt"))
		Expect(rerr).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("fine"))
	})

	It("denies an ask tool when no approver is configured", func() {
		m, workspace := newManager(nil)

		result, err := m.Invoke(context.Background(), host.BuiltinPluginID,
			"fs_write", wireEncode(map[string]string{"path": "nope.txt", "content": "x"}))
		Expect(err).NotTo(HaveOccurred())

		args, derr := wire.Decode(result)
		Expect(derr).NotTo(HaveOccurred())
		Expect(args.StringOr("error", "")).To(ContainSubstring("requires approval"))

		_, rerr := os.ReadFile(filepath.Join(workspace, "nope.txt"))
		Expect(rerr).To(HaveOccurred())
	})
})

func wireEncode(v any) string {
	data, err := json.Marshal(v)
	Expect(err).NotTo(HaveOccurred())
	return string(data)
}
