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

// Package materialize copies a resolved dependency's selected proto
// files from its temporary worktree into the module's output tree
// (spec.md §4.5, §4.6): one subdirectory per dependency name, cleared
// and rewritten on every run so stale files from a prior revision or a
// narrowed policy never linger.
package materialize

import (
	"io"
	"os"
	"path/filepath"

	"github.com/coralogix/protofetch/internal/cache"
	"github.com/coralogix/protofetch/internal/interrupts"
	"github.com/coralogix/protofetch/internal/metrics"
	"github.com/coralogix/protofetch/internal/perr"
	"github.com/coralogix/protofetch/internal/policy"
	"github.com/coralogix/protofetch/internal/resolve"
)

// writeFiles copies each of files (worktreeRoot-relative, posix-style)
// into destDir, preserving their relative paths.
func writeFiles(worktreeRoot, destDir string, files []string) error {
	for _, rel := range files {
		src := filepath.Join(worktreeRoot, filepath.FromSlash(rel))
		dst := filepath.Join(destDir, filepath.FromSlash(rel))
		if err := copyFileAtomic(src, dst); err != nil {
			return err
		}
	}
	return nil
}

// WorktreeOpener resolves a graph node to the worktree its files should
// be read from; cmd/protofetch wires this to cache.Cache.Repository +
// RepoHandle.Worktree.
type WorktreeOpener func(n resolve.Node) (*cache.Worktree, error)

// MaterializeAll implements the full materialize-and-prune pipeline for
// a whole resolved graph (spec.md §4.5, §4.6): prune-enabled
// dependencies' unresolved imports are resolved against the union of
// every dependency marked transitive (or that itself carries a nested
// protofetch.toml).
//
// outDir gets one subdirectory per dependency name; each of those
// subdirectories is cleared and repopulated, and other entries under
// outDir are left as they are. The returned warnings are unresolved imports
// encountered while pruning — non-fatal per spec.md §4.6.
func MaterializeAll(nodes []resolve.Node, open WorktreeOpener, outDir string, m *metrics.Metrics) ([]string, error) {
	worktrees := make(map[string]*cache.Worktree, len(nodes))
	defer func() {
		for _, wt := range worktrees {
			wt.Close()
		}
	}()

	inputs := make([]policy.DependencyInput, 0, len(nodes))
	for _, n := range nodes {
		wt, err := open(n)
		if err != nil {
			return nil, err
		}
		worktrees[n.Name] = wt

		universe, err := policy.Enumerate(wt.Root(), n.ContentRoots)
		if err != nil {
			return nil, err
		}
		admitted, err := policy.RootAdmit(universe, policy.Policy{
			AllowPolicies: n.AllowPolicies,
			DenyPolicies:  n.DenyPolicies,
			RegexPolicy:   n.RegexPolicy,
		})
		if err != nil {
			return nil, err
		}

		inputs = append(inputs, policy.DependencyInput{
			Name:     n.Name,
			Universe: universe,
			Admitted: admitted,
			Prune:    n.Prune,
			Pooled:   n.Transitive || n.HasNestedManifest,
		})
	}

	closed, err := policy.CloseGraph(inputs)
	if err != nil {
		return nil, err
	}

	for _, n := range nodes {
		destDir := filepath.Join(outDir, n.Name)
		if err := os.RemoveAll(destDir); err != nil {
			return nil, perr.Wrap(perr.FilesystemError, err, "failed to clear materialized output directory").With("path", destDir)
		}
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return nil, perr.Wrap(perr.FilesystemError, err, "failed to create materialized output directory").With("path", destDir)
		}

		files := closed.Files[n.Name]
		if err := writeFiles(worktrees[n.Name].Root(), destDir, files); err != nil {
			return nil, err
		}
		if m != nil {
			for i := 0; i < len(universeFor(inputs, n.Name))-len(files); i++ {
				m.FilePruned()
			}
		}
	}

	return closed.UnresolvedImports, nil
}

func universeFor(inputs []policy.DependencyInput, name string) []policy.File {
	for _, in := range inputs {
		if in.Name == name {
			return in.Universe
		}
	}
	return nil
}

// copyFileAtomic copies src to dst via a tempfile in dst's directory,
// fsynced then renamed into place, the same pattern
// k8s.io/test-infra's greenhouse/diskcache.Cache.Put uses for a single
// blob (see internal/lockfile/write.go for the document-level variant).
func copyFileAtomic(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return perr.Wrap(perr.FilesystemError, err, "failed to open source file").With("path", src)
	}
	defer in.Close()

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return perr.Wrap(perr.FilesystemError, err, "failed to create output directory").With("path", dir)
	}

	tmp, err := os.CreateTemp(dir, ".protofetch-*")
	if err != nil {
		return perr.Wrap(perr.FilesystemError, err, "failed to create output tempfile").With("dir", dir)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }
	interrupts.OnInterrupt(cleanup)

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		cleanup()
		return perr.Wrap(perr.FilesystemError, err, "failed to copy file content").With("path", src)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return perr.Wrap(perr.FilesystemError, err, "failed to fsync output file").With("path", dst)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return perr.Wrap(perr.FilesystemError, err, "failed to close output tempfile")
	}
	if err := os.Rename(tmpName, dst); err != nil {
		cleanup()
		return perr.Wrap(perr.FilesystemError, err, "failed to install output file").With("path", dst)
	}
	return nil
}
