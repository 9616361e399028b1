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

package cache

import (
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/coralogix/protofetch/internal/perr"
)

// Worktree is a disposable checkout of one commit from a cached bare
// mirror (spec.md §4.1: "materialization reads from a temporary
// worktree, never from the bare mirror directly"). It shares the
// mirror's object store rather than copying it, using go-git/v5's
// storer+worktree split — opening the bare mirror's filesystem.Storage
// alongside a fresh billy.Filesystem rooted at a temp directory gives a
// *git.Repository whose Worktree().Checkout writes files into the temp
// directory without touching the bare mirror, the programmatic
// equivalent of `git worktree add` that the cache is built to avoid
// shelling out for.
type Worktree struct {
	root string
}

// worktree checks out commit from h's mirror into a fresh temporary
// directory and returns a handle to it. Callers must Close the result
// once the materializer has finished reading from it.
func (h *RepoHandle) worktree(commit plumbing.Hash) (*Worktree, error) {
	dir, err := os.MkdirTemp("", "protofetch-worktree-")
	if err != nil {
		return nil, perr.Wrap(perr.FilesystemError, err, "failed to create worktree directory")
	}

	storage, err := newBareStorage(h.dir)
	if err != nil {
		os.RemoveAll(dir)
		return nil, perr.Wrap(perr.FilesystemError, err, "failed to open mirror storage").With("url", h.url)
	}

	repo, err := git.Open(storage, osfs.New(dir))
	if err != nil {
		os.RemoveAll(dir)
		return nil, perr.Wrap(perr.FilesystemError, err, "failed to open repository for checkout").With("url", h.url)
	}

	wt, err := repo.Worktree()
	if err != nil {
		os.RemoveAll(dir)
		return nil, perr.Wrap(perr.FilesystemError, err, "failed to obtain worktree").With("url", h.url)
	}

	if err := wt.Checkout(&git.CheckoutOptions{Hash: commit, Force: true}); err != nil {
		os.RemoveAll(dir)
		return nil, perr.Wrap(perr.FilesystemError, err, "failed to checkout commit").
			With("url", h.url).With("commit", commit.String())
	}

	return &Worktree{root: dir}, nil
}

// Root is the temporary checkout directory's absolute path.
func (w *Worktree) Root() string { return w.root }

// Path joins rel onto the worktree root.
func (w *Worktree) Path(rel string) string {
	return filepath.Join(w.root, rel)
}

// Close removes the temporary checkout directory. Safe to call on a nil
// receiver so defer sites don't need a nil check after a failed open.
func (w *Worktree) Close() error {
	if w == nil {
		return nil
	}
	if err := os.RemoveAll(w.root); err != nil {
		return perr.Wrap(perr.FilesystemError, err, "failed to remove worktree directory").With("path", w.root)
	}
	return nil
}
