/*
Copyright 2026 The Protofetch Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package materialize

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/coralogix/protofetch/internal/cache"
	"github.com/coralogix/protofetch/internal/resolve"
)

// materializeOne runs MaterializeAll for a single node backed by a
// throwaway git origin, returning the output directory it wrote into.
func materializeOne(t *testing.T, files map[string]string, n resolve.Node) string {
	t.Helper()
	origin := newGitFixture(t, files)
	n.URL = origin

	c, err := cache.Open(cache.Options{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	h, err := c.Repository(origin, nil)
	if err != nil {
		t.Fatalf("Repository: %v", err)
	}
	commit, _, err := h.Resolve("", "master")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	n.Commit = commit

	outDir := t.TempDir()
	if _, err := MaterializeAll([]resolve.Node{n}, func(n resolve.Node) (*cache.Worktree, error) {
		return h.Worktree(n.Commit)
	}, outDir, nil); err != nil {
		t.Fatalf("MaterializeAll: %v", err)
	}
	return outDir
}

func TestMaterializeAllCopiesSelectedFiles(t *testing.T) {
	outDir := materializeOne(t, map[string]string{
		"api/service.proto": `syntax = "proto3";`,
		"api/other.proto":   `syntax = "proto3";`,
	}, resolve.Node{Name: "example", AllowPolicies: []string{"api/service.proto"}})

	content, err := os.ReadFile(filepath.Join(outDir, "example", "api", "service.proto"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(content) != `syntax = "proto3";` {
		t.Errorf("unexpected materialized content: %s", content)
	}
	if _, err := os.Stat(filepath.Join(outDir, "example", "api", "other.proto")); !os.IsNotExist(err) {
		t.Error("expected other.proto to be excluded from materialized output")
	}
}

func TestMaterializeAllClearsStaleFilesOnRematerialize(t *testing.T) {
	origin := newGitFixture(t, map[string]string{"api/service.proto": `syntax = "proto3";`})

	c, err := cache.Open(cache.Options{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	h, err := c.Repository(origin, nil)
	if err != nil {
		t.Fatalf("Repository: %v", err)
	}
	commit, _, err := h.Resolve("", "master")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	node := resolve.Node{Name: "example", URL: origin, Commit: commit}
	open := func(n resolve.Node) (*cache.Worktree, error) { return h.Worktree(n.Commit) }
	outDir := t.TempDir()

	if _, err := MaterializeAll([]resolve.Node{node}, open, outDir, nil); err != nil {
		t.Fatalf("first MaterializeAll: %v", err)
	}

	// Simulate a leftover file from a previous, broader policy.
	if err := os.WriteFile(filepath.Join(outDir, "example", "stale.proto"), []byte("old"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := MaterializeAll([]resolve.Node{node}, open, outDir, nil); err != nil {
		t.Fatalf("second MaterializeAll: %v", err)
	}

	if _, err := os.Stat(filepath.Join(outDir, "example", "stale.proto")); !os.IsNotExist(err) {
		t.Error("expected stale.proto to be removed by rematerialization")
	}
	if _, err := os.Stat(filepath.Join(outDir, "example", "api", "service.proto")); err != nil {
		t.Errorf("expected service.proto to still be present: %v", err)
	}
}

// newGitFixture commits files into a fresh non-bare repository,
// standing in for a remote the cache clones from over the local
// filesystem (same helper shape as internal/resolve's test fixture).
func newGitFixture(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	for name, content := range files {
		full := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if _, err := wt.Add(name); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	sig := &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Unix(1700000000, 0)}
	if _, err := wt.Commit("initial", &git.CommitOptions{Author: sig}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return dir
}

// MaterializeAll resolves app's import against common's files even
// though they live in two separate dependencies, because common is
// marked Transitive (spec.md §4.6).
func TestMaterializeAllResolvesImportsAcrossDependencies(t *testing.T) {
	appOrigin := newGitFixture(t, map[string]string{
		"api/service.proto": "syntax = \"proto3\";\nimport \"common/types.proto\";\n",
	})
	commonOrigin := newGitFixture(t, map[string]string{
		"common/types.proto":  "syntax = \"proto3\";\n",
		"common/unused.proto": "syntax = \"proto3\";\n",
	})

	c, err := cache.Open(cache.Options{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	appHandle, err := c.Repository(appOrigin, nil)
	if err != nil {
		t.Fatalf("Repository(app): %v", err)
	}
	appCommit, _, err := appHandle.Resolve("", "master")
	if err != nil {
		t.Fatalf("Resolve(app): %v", err)
	}
	commonHandle, err := c.Repository(commonOrigin, nil)
	if err != nil {
		t.Fatalf("Repository(common): %v", err)
	}
	commonCommit, _, err := commonHandle.Resolve("", "master")
	if err != nil {
		t.Fatalf("Resolve(common): %v", err)
	}

	nodes := []resolve.Node{
		{Name: "app", URL: appOrigin, Commit: appCommit, Prune: true},
		{Name: "common", URL: commonOrigin, Commit: commonCommit, Transitive: true},
	}

	outDir := t.TempDir()
	warnings, err := MaterializeAll(nodes, func(n resolve.Node) (*cache.Worktree, error) {
		h, err := c.Repository(n.URL, nil)
		if err != nil {
			return nil, err
		}
		return h.Worktree(n.Commit)
	}, outDir, nil)
	if err != nil {
		t.Fatalf("MaterializeAll: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("expected no unresolved imports, got %v", warnings)
	}

	if _, err := os.Stat(filepath.Join(outDir, "app", "api", "service.proto")); err != nil {
		t.Errorf("expected app/api/service.proto: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "common", "common", "types.proto")); err != nil {
		t.Errorf("expected common/common/types.proto to be pulled in by app's import: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "common", "common", "unused.proto")); err != nil {
		t.Errorf("expected common/common/unused.proto: common has no policies, so all its files are admitted, and prune=false keeps its admitted set: %v", err)
	}
}
