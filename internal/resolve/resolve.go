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

// Package resolve implements protofetch's graph resolver (spec.md §4.3):
// a breadth-first walk of the dependency graph rooted at a manifest's
// direct dependencies. Every dependency's worktree is checked for its
// own protofetch.toml regardless of its transitive flag — that flag
// only controls prune eligibility later (spec.md §4.6) — until the
// graph is fully expanded, the depth limit is reached, or a conflict is
// detected. The worklist-of-nodes-keyed-by-a-string-map shape mirrors
// k8s.io/test-infra's dag/main.go Graph type, adapted from a one-shot
// visualizer into a stateful resolver that returns errors instead of
// printing dot output.
package resolve

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/coralogix/protofetch/internal/cache"
	"github.com/coralogix/protofetch/internal/cache/auth"
	"github.com/coralogix/protofetch/internal/config"
	"github.com/coralogix/protofetch/internal/manifest"
	"github.com/coralogix/protofetch/internal/metrics"
	"github.com/coralogix/protofetch/internal/perr"
)

// manifestFileName is the nested manifest a transitive dependency's
// worktree is checked for (spec.md §4.3).
const manifestFileName = "protofetch.toml"

// Node is one fully resolved dependency in the graph: a name, its git
// coordinate, the commit it resolved to, and the materialization rules
// that apply to it.
type Node struct {
	Name     string
	URL      string
	Protocol config.Protocol
	Branch   string
	Revision string

	Commit          string
	NonReproducible bool

	AllowPolicies []string
	DenyPolicies  []string
	RegexPolicy   string
	Prune         bool
	Transitive    bool
	ContentRoots  []string

	// HasNestedManifest is true when this dependency's own worktree
	// carried a protofetch.toml. Together with Transitive it decides
	// whether the prune engine may resolve other dependencies' imports
	// against this dependency's content (spec.md §4.6).
	HasNestedManifest bool
}

// Result is the output of a full graph resolution: the deterministic,
// name-sorted node set plus any non-fatal warnings (spec.md §4.3 and
// §4.7: a branch-resolved dependency is a warning, not an error).
type Result struct {
	Nodes    []Node
	Warnings []string
}

// Resolver walks a manifest's dependency graph against a cache.
type Resolver struct {
	cache      *cache.Cache
	metrics    *metrics.Metrics
	depthLimit int

	credsMu sync.Mutex
	creds   map[config.Protocol]*auth.Chain
}

// New constructs a Resolver. depthLimit should usually be
// config.DefaultDepthLimit.
func New(c *cache.Cache, depthLimit int, m *metrics.Metrics) *Resolver {
	return &Resolver{
		cache:      c,
		metrics:    m,
		depthLimit: depthLimit,
		creds:      map[config.Protocol]*auth.Chain{},
	}
}

// credsFor returns the shared credential chain for protocol, creating it
// on first use. Reusing one Chain per protocol across the whole graph
// walk is what lets auth.Chain enforce "each source tried at most once
// per process" (spec.md §4.2) instead of once per dependency.
func (r *Resolver) credsFor(protocol config.Protocol) *auth.Chain {
	r.credsMu.Lock()
	defer r.credsMu.Unlock()
	if c, ok := r.creds[protocol]; ok {
		return c
	}
	c := auth.NewChain(protocol, os.Getenv(config.EnvGitUsername), os.Getenv(config.EnvGitPassword))
	r.creds[protocol] = c
	return c
}

type task struct {
	dep   manifest.Dependency
	depth int
}

// Resolve walks root's dependency graph to a fixed point, returning the
// fully resolved, name-sorted node set (spec.md §4.3).
//
// Conflicts are checked on two independent axes, per spec.md §4.3:
//   - name: two dependency declarations with the same name but
//     different URLs are a hard perr.NameCollision.
//   - url: two declarations with the same URL that resolve to
//     different commits are a hard perr.RevisionConflict, unless both
//     resolve to the same commit hash, in which case the first-seen
//     entry wins and the second is dropped silently. Same url, same
//     revision is likewise deduplicated silently.
//
// Exceeding the depth limit is perr.DepthExceeded. Nested manifests are
// read unconditionally for every dependency whose worktree carries one
// (the dep.Transitive flag does not gate discovery; it only governs
// prune eligibility later, in the policy/materialize packages).
func (r *Resolver) Resolve(root *manifest.Descriptor) (*Result, error) {
	queue := make([]task, 0, len(root.Dependencies))
	for _, d := range sortedByName(root.Dependencies) {
		queue = append(queue, task{dep: d, depth: 1})
	}

	byURL := map[string]*Node{}
	nameOwner := map[string]string{} // dependency name -> url that claimed it
	var warnings []string

	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]

		if t.depth > r.depthLimit {
			return nil, perr.New(perr.DepthExceeded, "transitive dependency depth limit exceeded").
				With("name", t.dep.Name).With("limit", strconv.Itoa(r.depthLimit))
		}

		protocol := t.dep.Protocol
		if protocol == "" {
			protocol = config.DefaultProtocol()
		}

		h, err := r.cache.Repository(t.dep.URL, r.credsFor(protocol))
		if err != nil {
			return nil, err
		}

		commit, nonReproducible, err := h.Resolve(t.dep.Revision, t.dep.Branch)
		if err != nil {
			return nil, err
		}
		if nonReproducible {
			warnings = append(warnings, fmt.Sprintf(
				"%s resolved against branch %q; this lock entry will not be reproducible once the branch moves",
				t.dep.Name, t.dep.Branch))
		}

		if existing, ok := byURL[t.dep.URL]; ok {
			if existing.Commit != commit {
				return nil, perr.New(perr.RevisionConflict, "the same url resolved to different commits via different paths").
					With("url", t.dep.URL).With("first_commit", existing.Commit).With("second_commit", commit)
			}
			// Same url, same revision (whether reached under the same
			// name or a different one): the first-seen entry wins and
			// this occurrence is dropped silently.
			continue
		}

		if owner, ok := nameOwner[t.dep.Name]; ok && owner != t.dep.URL {
			return nil, perr.New(perr.NameCollision, "two dependencies declare the same name with different URLs").
				With("name", t.dep.Name).With("first_url", owner).With("second_url", t.dep.URL)
		}
		nameOwner[t.dep.Name] = t.dep.URL

		var nested *manifest.Descriptor
		if !t.dep.SkipDeps {
			nested, err = r.readNestedManifest(h, commit)
			if err != nil {
				return nil, err
			}
		}

		node := &Node{
			Name:              t.dep.Name,
			URL:               t.dep.URL,
			Protocol:          protocol,
			Branch:            t.dep.Branch,
			Revision:          t.dep.Revision,
			Commit:            commit,
			NonReproducible:   nonReproducible,
			AllowPolicies:     t.dep.AllowPolicies,
			DenyPolicies:      t.dep.DenyPolicies,
			RegexPolicy:       t.dep.RegexPolicy,
			Prune:             t.dep.Prune,
			Transitive:        t.dep.Transitive,
			ContentRoots:      t.dep.ContentRoots,
			HasNestedManifest: nested != nil,
		}
		byURL[t.dep.URL] = node

		if nested == nil {
			continue
		}
		for _, nd := range sortedByName(nested.Dependencies) {
			queue = append(queue, task{dep: nd, depth: t.depth + 1})
		}
	}

	nodes := make([]Node, 0, len(byURL))
	for _, n := range byURL {
		nodes = append(nodes, *n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })

	return &Result{Nodes: nodes, Warnings: warnings}, nil
}

// sortedByName returns a copy of deps ordered by dependency name, so
// that exploring a worklist level is deterministic regardless of the
// order dependencies were declared in a manifest (spec.md §4.3).
func sortedByName(deps []manifest.Dependency) []manifest.Dependency {
	out := make([]manifest.Dependency, len(deps))
	copy(out, deps)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// readNestedManifest loads the protofetch.toml at the root of commit's
// checkout, if any. A dependency without one is treated as a leaf
// rather than an error (spec.md §4.3: not every transitive dependency
// is itself a protofetch-managed module).
func (r *Resolver) readNestedManifest(h *cache.RepoHandle, commit string) (*manifest.Descriptor, error) {
	wt, err := h.Worktree(commit)
	if err != nil {
		return nil, err
	}
	defer wt.Close()

	content, err := os.ReadFile(filepath.Join(wt.Root(), manifestFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, perr.Wrap(perr.FilesystemError, err, "failed to read nested manifest")
	}
	desc, err := manifest.Parse(content)
	if err != nil {
		return nil, err
	}
	return desc, nil
}
