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
	"regexp"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/filesystem"

	"github.com/coralogix/protofetch/internal/metrics"
	"github.com/coralogix/protofetch/internal/perr"
)

// maxTransientAttempts bounds retry of Transient network errors (spec.md
// §7: "retried with exponential backoff up to 3 attempts").
const maxTransientAttempts = 3

// retryBaseDelay is the delay before the first retry; it doubles on each
// subsequent attempt. sleep is a var, not a direct time.Sleep call, so
// tests can shrink it (same indirection kubetest/extract_k8s.go uses for
// its own download retry loop).
var (
	retryBaseDelay = time.Second
	sleep          = time.Sleep
)

// withTransientRetry runs op up to maxTransientAttempts times, retrying
// only while the failure classifies as perr.Transient (spec.md §7, §8:
// "local recovery is limited to retry of Transient errors"). Any other
// Kind, including Auth, returns immediately on the first failure.
func (h *RepoHandle) withTransientRetry(op func() error) error {
	var err error
	for attempt := 0; attempt < maxTransientAttempts; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if !perr.KindOf(err).Retryable() {
			return err
		}
		if attempt == maxTransientAttempts-1 {
			break
		}
		if h.metrics != nil {
			h.metrics.RetryAttempt()
		}
		sleep(retryBaseDelay << attempt)
	}
	return err
}

// CredentialResolver supplies an AuthMethod for a remote, trying each
// configured source at most once per process (internal/cache/auth.Chain
// satisfies this interface).
type CredentialResolver interface {
	Resolve(remote string) (transport.AuthMethod, error)
}

var fullCommitHash = regexp.MustCompile(`^[0-9a-f]{40}$`)

// RepoHandle is a bare git mirror held in the cache (spec.md §4.1). It
// is never checked out in place; resolve() and worktree() are the only
// ways callers read its content.
type RepoHandle struct {
	url     string
	dir     string
	cache   *Cache
	creds   CredentialResolver
	metrics *metrics.Metrics

	repo *git.Repository
}

// open loads the already-cloned bare mirror at h.dir.
func (h *RepoHandle) open() error {
	repo, err := git.PlainOpen(h.dir)
	if err != nil {
		return perr.Wrap(perr.FilesystemError, err, "failed to open cached repository").With("url", h.url)
	}
	h.repo = repo
	return nil
}

// cloneMirror performs the first-time bare clone of h.url into h.dir
// (spec.md §4.1: "The first call clones ... as a bare repository").
// go-git fetches all branch references by default on PlainClone, which
// is the all-branches portion of `git clone --mirror`'s behavior; tags
// come along in the same clone via CloneOptions.Tags.
func (h *RepoHandle) cloneMirror() error {
	auth, err := h.resolveAuth()
	if err != nil {
		return err
	}

	attempted := false
	return h.withTransientRetry(func() error {
		if attempted {
			// A prior attempt may have left a partial clone behind;
			// PlainClone refuses to write into a non-empty directory.
			if err := os.RemoveAll(h.dir); err != nil {
				return perr.Wrap(perr.FilesystemError, err, "failed to clear partial clone").With("url", h.url)
			}
		}
		attempted = true

		repo, err := git.PlainClone(h.dir, true, &git.CloneOptions{
			URL:  h.url,
			Auth: auth,
			Tags: git.AllTags,
		})
		if err != nil {
			return classifyGitError(err, h.url)
		}
		h.repo = repo
		return nil
	})
}

// fetch refreshes h's mirror from the remote, but at most once per
// process per url (spec.md §4.1's "fetched this run" marker), so a
// diamond dependency graph that reaches the same repository from
// multiple paths does not re-fetch it on every visit.
func (h *RepoHandle) fetch() error {
	if h.cache.markedFetched(h.url) {
		return nil
	}
	auth, err := h.resolveAuth()
	if err != nil {
		return err
	}
	err = h.withTransientRetry(func() error {
		err := h.repo.Fetch(&git.FetchOptions{
			RemoteName: "origin",
			Auth:       auth,
			Tags:       git.AllTags,
			Force:      true,
		})
		if err != nil && err != git.NoErrAlreadyUpToDate {
			return classifyGitError(err, h.url)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if h.cache.metrics != nil {
		h.cache.metrics.RepoFetch()
	}
	return nil
}

func (h *RepoHandle) resolveAuth() (transport.AuthMethod, error) {
	if h.creds == nil {
		return nil, nil
	}
	return h.creds.Resolve(h.url)
}

// resolve maps a revision spec to a commit hash (spec.md §4.7). The
// precedence is: an explicit branch always refetches that branch's tip;
// otherwise a full 40-hex-character spec is verified directly against
// the object store; failing that, spec is tried as a tag ref, then a
// branch ref, then disambiguated as a commit-hash prefix. A branch-based
// resolution is inherently non-reproducible (the tip moves), which the
// caller surfaces as a warning, not an error (spec.md §4.7's "Non-goals"
// clarification that protofetch does not pin branch resolutions).
func (h *RepoHandle) resolve(spec, branch string) (commit plumbing.Hash, nonReproducible bool, err error) {
	if branch != "" {
		if err := h.fetch(); err != nil {
			return plumbing.ZeroHash, false, err
		}
		// fetch() updates origin's remote-tracking refs; the local branch
		// ref is only a fallback and is not moved by a fetch.
		ref, err := h.repo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
		if err != nil {
			ref, err = h.repo.Reference(plumbing.NewBranchReferenceName(branch), true)
		}
		if err != nil {
			return plumbing.ZeroHash, false, perr.Wrap(perr.UnknownRevision, err, "branch not found").
				With("url", h.url).With("branch", branch)
		}
		return ref.Hash(), true, nil
	}

	if fullCommitHash.MatchString(spec) {
		hash := plumbing.NewHash(spec)
		if _, err := h.repo.CommitObject(hash); err == nil {
			return hash, false, nil
		}
		// Not found locally yet: the commit may have landed since our
		// last fetch. Try once more after refreshing.
		if err := h.fetch(); err != nil {
			return plumbing.ZeroHash, false, err
		}
		if _, err := h.repo.CommitObject(hash); err != nil {
			return plumbing.ZeroHash, false, perr.New(perr.UnknownRevision, "commit not found").
				With("url", h.url).With("revision", spec)
		}
		return hash, false, nil
	}

	if err := h.fetch(); err != nil {
		return plumbing.ZeroHash, false, err
	}

	if ref, err := h.repo.Reference(plumbing.NewTagReferenceName(spec), true); err == nil {
		return h.dereferenceTag(ref)
	}
	if ref, err := h.repo.Reference(plumbing.NewRemoteReferenceName("origin", spec), true); err == nil {
		return ref.Hash(), true, nil
	}
	if ref, err := h.repo.Reference(plumbing.NewBranchReferenceName(spec), true); err == nil {
		return ref.Hash(), true, nil
	}

	if hash, err := h.disambiguatePrefix(spec); err == nil {
		return hash, false, nil
	}

	return plumbing.ZeroHash, false, perr.New(perr.UnknownRevision, "revision not found: not a commit, tag, or branch").
		With("url", h.url).With("revision", spec)
}

// dereferenceTag resolves an annotated tag object down to the commit it
// points at; a lightweight tag ref already points directly at a commit.
func (h *RepoHandle) dereferenceTag(ref *plumbing.Reference) (plumbing.Hash, bool, error) {
	if obj, err := h.repo.TagObject(ref.Hash()); err == nil {
		commit, err := obj.Commit()
		if err != nil {
			return plumbing.ZeroHash, false, perr.Wrap(perr.UnknownRevision, err, "annotated tag does not point at a commit").
				With("url", h.url)
		}
		return commit.Hash, false, nil
	}
	return ref.Hash(), false, nil
}

// disambiguatePrefix resolves a short commit-hash prefix through
// go-git's ResolveRevision, which returns the first matching commit; a
// prefix that matches more than one commit is not reported as
// ambiguous.
func (h *RepoHandle) disambiguatePrefix(spec string) (plumbing.Hash, error) {
	hash, err := h.repo.ResolveRevision(plumbing.Revision(spec))
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return *hash, nil
}

// Resolve is the public entry point for revision resolution, returning
// the resolved commit as a hex string (spec.md §4.7).
func (h *RepoHandle) Resolve(spec, branch string) (commitHex string, nonReproducible bool, err error) {
	hash, nonReproducible, err := h.resolve(spec, branch)
	if err != nil {
		return "", false, err
	}
	return hash.String(), nonReproducible, nil
}

// Worktree checks out commitHex into a disposable directory the
// materializer can read from.
func (h *RepoHandle) Worktree(commitHex string) (*Worktree, error) {
	return h.worktree(plumbing.NewHash(commitHex))
}

func classifyGitError(err error, url string) error {
	switch err {
	case transport.ErrAuthenticationRequired, transport.ErrAuthorizationFailed:
		return perr.Wrap(perr.Auth, err, "authentication failed").With("url", url)
	case transport.ErrRepositoryNotFound:
		return perr.Wrap(perr.UnknownRevision, err, "repository not found").With("url", url)
	default:
		return perr.Wrap(perr.Transient, err, "git operation failed").With("url", url)
	}
}

// CommitExists reports whether commit is present in url's cached
// mirror, without fetching. The fetch command uses this to back
// lockfile.IsValid's commitExists callback: a missing mirror or a
// commit absent from it means the lock entry is stale.
func (c *Cache) CommitExists(url, commit string) bool {
	if _, err := os.Stat(c.repoDir(url)); err != nil {
		return false
	}
	repo, err := git.PlainOpen(c.repoDir(url))
	if err != nil {
		return false
	}
	_, err = repo.CommitObject(plumbing.NewHash(commit))
	return err == nil
}

// newBareStorage opens the on-disk object store of a bare mirror using
// an explicit filesystem storage + LRU object cache, the construction
// worktree() needs to share objects between the bare mirror and a
// disposable checkout directory (spec.md's design note on go-git/v5's
// storer+worktree split replacing a `git worktree add` shell-out).
func newBareStorage(dir string) (*filesystem.Storage, error) {
	fs := osfs.New(dir)
	storage := filesystem.NewStorage(fs, cache.NewObjectLRUDefault())
	return storage, nil
}
