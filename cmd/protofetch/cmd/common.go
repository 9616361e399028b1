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

package cmd

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/coralogix/protofetch/internal/cache"
	"github.com/coralogix/protofetch/internal/config"
	"github.com/coralogix/protofetch/internal/lockfile"
	"github.com/coralogix/protofetch/internal/manifest"
	"github.com/coralogix/protofetch/internal/metrics"
	"github.com/coralogix/protofetch/internal/perr"
	"github.com/coralogix/protofetch/internal/resolve"
)

// newMetrics registers a fresh Metrics against a private registry: a CLI
// invocation runs once and exits, so there is no scrape endpoint to serve
// counters from, but every component still takes the same *metrics.Metrics
// a long-running server would (spec.md's ambient metrics wiring).
func newMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

// manifestFileName is the conventional manifest name at the root of
// gf.ModuleLocation (spec.md §6).
const manifestFileName = "protofetch.toml"

// readManifest loads and parses the protofetch.toml at gf.ModuleLocation.
func readManifest(gf *globalFlags) (*manifest.Descriptor, error) {
	path := filepath.Join(gf.ModuleLocation, manifestFileName)
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, perr.Wrap(perr.ManifestParse, err, "no protofetch.toml in module location").With("path", path)
		}
		return nil, perr.Wrap(perr.FilesystemError, err, "failed to read manifest").With("path", path)
	}
	return manifest.Parse(content)
}

// openCache opens the shared cache at cfg's configured (or default) root.
func openCache(cfg config.Config, m *metrics.Metrics) (*cache.Cache, error) {
	return cache.Open(cache.Options{
		Root:        cfg.CacheDir,
		LockTimeout: time.Duration(cfg.CacheLockWait) * time.Second,
		Metrics:     m,
	})
}

// resolveGraph runs the graph resolver for desc against c, honoring
// cfg's depth limit.
func resolveGraph(c *cache.Cache, desc *manifest.Descriptor, cfg config.Config, m *metrics.Metrics) (*resolve.Result, error) {
	r := resolve.New(c, cfg.DepthLimit, m)
	return r.Resolve(desc)
}

// nodeToDependency projects a resolved graph Node back into the
// manifest.Dependency shape lockfile.IsValid/NeedsRematerialization
// expect, so the same staleness-check code serves both a fresh
// resolution and a previously-written lock.
func nodeToDependency(n resolve.Node) manifest.Dependency {
	return manifest.Dependency{
		Name:          n.Name,
		URL:           n.URL,
		Revision:      n.Revision,
		Branch:        n.Branch,
		Protocol:      n.Protocol,
		AllowPolicies: n.AllowPolicies,
		DenyPolicies:  n.DenyPolicies,
		RegexPolicy:   n.RegexPolicy,
		Prune:         n.Prune,
		Transitive:    n.Transitive,
		ContentRoots:  n.ContentRoots,
	}
}

// lockFileFromResult builds the deterministic lock document for a freshly
// resolved graph (spec.md §3, §4.4).
func lockFileFromResult(desc *manifest.Descriptor, protoOutDir string, result *resolve.Result) *lockfile.LockFile {
	lf := &lockfile.LockFile{
		ModuleName:  desc.Name,
		ProtoOutDir: protoOutDir,
	}
	for _, n := range result.Nodes {
		dep := nodeToDependency(n)
		lf.Dependencies = append(lf.Dependencies, lockfile.LockEntry{
			Name:       n.Name,
			Coordinate: lockfile.CoordinateFromDependency(dep),
			CommitHash: n.Commit,
			Rules:      lockfile.RulesFromDependency(dep),
		})
	}
	lf.Sort()
	return lf
}

// reachableDependencies projects a resolved node set into the
// manifest.Dependency slice the lockfile staleness checks expect.
func reachableDependencies(nodes []resolve.Node) []manifest.Dependency {
	deps := make([]manifest.Dependency, len(nodes))
	for i, n := range nodes {
		deps[i] = nodeToDependency(n)
	}
	return deps
}
