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

// Package cache implements protofetch's shared on-disk cache (spec.md
// §4.1): a directory of bare git mirrors, one per remote URL, guarded
// by a single whole-cache advisory lock so that concurrent processes
// never corrupt a mirror. Following the REDESIGN FLAGS note on avoiding
// a global cache singleton, Cache is a plain value constructed by Open
// and passed explicitly to the resolver and materializer rather than
// reached through a package-level global — this is what lets tests
// point it at a fresh temp directory instead of $HOME/.protofetch.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/coralogix/protofetch/internal/config"
	"github.com/coralogix/protofetch/internal/interrupts"
	"github.com/coralogix/protofetch/internal/metrics"
	"github.com/coralogix/protofetch/internal/perr"
)

// reposDirName is the subdirectory holding one bare mirror per remote.
const reposDirName = "repositories"

// Cache is a handle to a cache root directory. It must be constructed
// with Open, which acquires the whole-cache advisory lock for the
// lifetime of the process (spec.md §5).
type Cache struct {
	root    string
	lock    *cacheLock
	metrics *metrics.Metrics

	mu      sync.Mutex
	fetched map[string]bool // url -> fetched this process (spec.md §4.1)
}

// Options configure Open.
type Options struct {
	Root string
	// LockTimeout bounds how long Open waits to acquire the whole-cache
	// lock before returning CacheLockBusy. Zero means wait indefinitely.
	LockTimeout time.Duration
	Metrics     *metrics.Metrics
}

// Open obtains the cache's advisory lock and verifies/creates the
// on-disk layout (spec.md §4.1: "open() obtains the advisory lock... and
// verifies directory layout, creating missing structure").
func Open(opts Options) (*Cache, error) {
	root := opts.Root
	if root == "" {
		def, err := config.DefaultCacheDir()
		if err != nil {
			return nil, perr.Wrap(perr.FilesystemError, err, "failed to determine default cache directory")
		}
		root = def
	}
	if err := os.MkdirAll(filepath.Join(root, reposDirName), 0o755); err != nil {
		return nil, perr.Wrap(perr.FilesystemError, err, "failed to create cache layout").With("root", root)
	}

	lock, err := acquireCacheLock(root, opts.LockTimeout)
	if err != nil {
		return nil, err
	}
	// Release the advisory lock if the process is interrupted before
	// Close runs.
	interrupts.OnInterrupt(func() { lock.release() })

	return &Cache{
		root:    root,
		lock:    lock,
		metrics: opts.Metrics,
		fetched: map[string]bool{},
	}, nil
}

// Close releases the whole-cache advisory lock.
func (c *Cache) Close() error {
	return c.lock.release()
}

// Root returns the cache's root directory.
func (c *Cache) Root() string { return c.root }

// markedFetched reports whether url has already been fetched once this
// process, marking it fetched as a side effect if not (spec.md §4.1's
// "fetched this run" marker, avoiding redundant re-fetches within a
// single invocation's BFS over a diamond dependency graph).
func (c *Cache) markedFetched(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetched[url] {
		return true
	}
	c.fetched[url] = true
	return false
}

// EncodeURL deterministically and injectively maps a dependency URL to
// a cache directory name, e.g. "github.com/org/repo" ->
// "github.com_org_repo" (spec.md §4.1, matching the spec's own
// example exactly). "/" becomes "_"; every other byte that is not an
// ASCII letter, digit, "." or "-" (including a literal "_" and "%") is
// escaped to "%xx", its two-digit hex code, so the mapping stays
// injective.
func EncodeURL(url string) string {
	normalized := strings.TrimSuffix(url, "/")
	var b strings.Builder
	for i := 0; i < len(normalized); i++ {
		c := normalized[i]
		switch {
		case c == '/':
			b.WriteByte('_')
		case isSafeURLChar(rune(c)):
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02x", c)
		}
	}
	return b.String()
}

func isSafeURLChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.' || r == '-':
		return true
	default:
		return false
	}
}

func (c *Cache) repoDir(url string) string {
	return filepath.Join(c.root, reposDirName, EncodeURL(url))
}

// repository returns the RepoHandle for url, cloning its bare mirror if
// this is the first time it has been requested from this cache root
// (spec.md §4.1: "The first call clones; subsequent calls reuse").
func (c *Cache) repository(url string, creds CredentialResolver) (*RepoHandle, error) {
	dir := c.repoDir(url)
	h := &RepoHandle{
		url:     url,
		dir:     dir,
		cache:   c,
		creds:   creds,
		metrics: c.metrics,
	}

	if _, err := os.Stat(dir); err == nil {
		if err := h.open(); err != nil {
			return nil, err
		}
		return h, nil
	} else if !os.IsNotExist(err) {
		return nil, perr.Wrap(perr.FilesystemError, err, "failed to stat repository directory").With("url", url)
	}

	logrus.WithField("url", url).Info("cloning bare mirror")
	if err := h.cloneMirror(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.fetched[url] = true
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.RepoFetch()
	}
	return h, nil
}

// Repository is the public entry point components outside this package
// use to obtain a RepoHandle (spec.md §4.1).
func (c *Cache) Repository(url string, creds CredentialResolver) (*RepoHandle, error) {
	return c.repository(url, creds)
}
