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

// Package lockfile implements protofetch's lock manager (spec.md §4.4):
// the deterministic lock document, its TOML rendering, and the
// staleness check that decides whether a manifest still matches a
// previously written lock.
package lockfile

import (
	"bytes"
	"sort"

	"github.com/pelletier/go-toml"

	"github.com/coralogix/protofetch/internal/config"
	"github.com/coralogix/protofetch/internal/manifest"
	"github.com/coralogix/protofetch/internal/perr"
)

// Coordinate identifies a git snapshot (spec.md §3).
type Coordinate struct {
	URL      string `toml:"url"`
	Revision string `toml:"revision,omitempty"`
	Branch   string `toml:"branch,omitempty"`
	Protocol string `toml:"protocol"`
}

// Rules is the normalized materialization policy a LockEntry carries
// (spec.md §3: "rules_subset").
type Rules struct {
	AllowPolicies []string `toml:"allow_policies,omitempty"`
	DenyPolicies  []string `toml:"deny_policies,omitempty"`
	RegexPolicy   string   `toml:"regex_policy,omitempty"`
	Prune         bool     `toml:"prune"`
	Transitive    bool     `toml:"transitive"`
	ContentRoots  []string `toml:"content_roots,omitempty"`
}

// LockEntry is one fully resolved dependency (spec.md §3).
type LockEntry struct {
	Name       string     `toml:"name"`
	Coordinate Coordinate `toml:"coordinate"`
	CommitHash string     `toml:"commit_hash"`
	Rules      Rules      `toml:"rules"`
}

// LockFile is the deterministic document spec.md §3 and §6 describe.
type LockFile struct {
	ModuleName   string      `toml:"module_name"`
	ProtoOutDir  string      `toml:"proto_out_dir"`
	Dependencies []LockEntry `toml:"dependencies"`
}

// Sort orders Dependencies by name, the emission order spec.md §3 and
// §4.3 require regardless of discovery order.
func (lf *LockFile) Sort() {
	sort.Slice(lf.Dependencies, func(i, j int) bool {
		return lf.Dependencies[i].Name < lf.Dependencies[j].Name
	})
}

// Encode renders lf as the deterministic TOML document spec.md §6
// describes. Encoding with go-toml's OrderPreserve emits keys in struct
// field order (module_name, proto_out_dir, dependencies), with plain
// values ahead of sub-tables as TOML requires, which gives
// byte-identical output across runs for identical input, satisfying
// the Lock determinism property (spec.md §8).
func Encode(lf *LockFile) ([]byte, error) {
	sorted := *lf
	sorted.Dependencies = append([]LockEntry{}, lf.Dependencies...)
	(&sorted).Sort()

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Order(toml.OrderPreserve).Encode(sorted); err != nil {
		return nil, perr.Wrap(perr.FilesystemError, err, "failed to render lock file")
	}
	return buf.Bytes(), nil
}

// Decode parses a previously-written lock file.
func Decode(content []byte) (*LockFile, error) {
	var lf LockFile
	if err := toml.Unmarshal(content, &lf); err != nil {
		return nil, perr.Wrap(perr.ManifestParse, err, "malformed lock file")
	}
	return &lf, nil
}

// RulesFromDependency projects the subset of a manifest.Dependency that
// materialization needs into a Rules value.
func RulesFromDependency(d manifest.Dependency) Rules {
	return Rules{
		AllowPolicies: d.AllowPolicies,
		DenyPolicies:  d.DenyPolicies,
		RegexPolicy:   d.RegexPolicy,
		Prune:         d.Prune,
		Transitive:    d.Transitive,
		ContentRoots:  d.ContentRoots,
	}
}

// CoordinateFromDependency projects the (url, revision-spec) plus
// transport fields a LockEntry needs to reproduce resolution.
func CoordinateFromDependency(d manifest.Dependency) Coordinate {
	protocol := d.Protocol
	if protocol == "" {
		protocol = config.DefaultProtocol()
	}
	return Coordinate{
		URL:      d.URL,
		Revision: d.Revision,
		Branch:   d.Branch,
		Protocol: string(protocol),
	}
}
