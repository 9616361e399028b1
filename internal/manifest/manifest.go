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

// Package manifest is the boundary adapter between protofetch's TOML
// manifest file and the core's in-memory Descriptor/Dependency types
// (spec.md §3). Per spec.md §1 the manifest/lock parsing layer is an
// external collaborator, not part of the core — this package exists so
// the core has something concrete to resolve, mirroring the struct-
// unmarshal style k8s.io/test-infra's kubetest/azure.go uses for its own
// TOML config (github.com/pelletier/go-toml).
package manifest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pelletier/go-toml"

	"github.com/coralogix/protofetch/internal/config"
	"github.com/coralogix/protofetch/internal/perr"
)

// Descriptor is a parsed protofetch.toml: a module name, optional
// metadata, and an ordered set of dependencies (spec.md §3).
type Descriptor struct {
	Name         string
	Description  string
	ProtoOutDir  string
	Dependencies []Dependency // insertion order preserved
}

// Dependency is one [name] table in the manifest (spec.md §3).
type Dependency struct {
	Name string

	URL           string
	Revision      string
	Branch        string
	Protocol      config.Protocol
	AllowPolicies []string
	DenyPolicies  []string
	RegexPolicy   string
	Prune         bool
	Transitive    bool
	ContentRoots  []string
	SkipDeps      bool // additive: see SPEC_FULL.md §3
}

// dependencyTOML mirrors the recognized per-dependency TOML keys from
// spec.md §6. Unknown fields are a parse error, enforced separately
// since go-toml's struct unmarshal silently ignores them.
type dependencyTOML struct {
	URL           string   `toml:"url"`
	Revision      string   `toml:"revision"`
	Branch        string   `toml:"branch"`
	Protocol      string   `toml:"protocol"`
	AllowPolicies []string `toml:"allow_policies"`
	DenyPolicies  []string `toml:"deny_policies"`
	RegexPolicy   string   `toml:"regex_policy"`
	Prune         bool     `toml:"prune"`
	Transitive    bool     `toml:"transitive"`
	ContentRoots  []string `toml:"content_roots"`
	SkipDeps      bool     `toml:"skip_deps"`
}

var recognizedDependencyKeys = map[string]struct{}{
	"url": {}, "revision": {}, "branch": {}, "protocol": {},
	"allow_policies": {}, "deny_policies": {}, "regex_policy": {},
	"prune": {}, "transitive": {}, "content_roots": {}, "skip_deps": {},
}

// Parse decodes a protofetch.toml document. Top-level keys other than
// "name", "description", "proto_out_dir", and dependency tables are a
// ManifestParse error, as are unrecognized per-dependency fields
// (spec.md §6: "Unknown fields are a parse error").
func Parse(content []byte) (*Descriptor, error) {
	tree, err := toml.LoadBytes(content)
	if err != nil {
		return nil, perr.Wrap(perr.ManifestParse, err, "malformed TOML")
	}

	d := &Descriptor{}
	// tree.Keys() comes back in map order; sorting by source position
	// keeps dependencies in declaration order.
	keys := tree.Keys()
	sort.SliceStable(keys, func(i, j int) bool {
		pi, pj := tree.GetPosition(keys[i]), tree.GetPosition(keys[j])
		if pi.Line != pj.Line {
			return pi.Line < pj.Line
		}
		return pi.Col < pj.Col
	})
	for _, key := range keys {
		val := tree.Get(key)
		switch key {
		case "name":
			s, ok := val.(string)
			if !ok {
				return nil, perr.New(perr.ManifestParse, "name must be a string")
			}
			d.Name = s
		case "description":
			s, ok := val.(string)
			if !ok {
				return nil, perr.New(perr.ManifestParse, "description must be a string")
			}
			d.Description = s
		case "proto_out_dir":
			s, ok := val.(string)
			if !ok {
				return nil, perr.New(perr.ManifestParse, "proto_out_dir must be a string")
			}
			d.ProtoOutDir = s
		default:
			depTree, ok := val.(*toml.Tree)
			if !ok {
				return nil, perr.New(perr.ManifestParse, fmt.Sprintf("unrecognized top-level key %q", key)).
					With("key", key)
			}
			dep, err := parseDependency(key, depTree)
			if err != nil {
				return nil, err
			}
			d.Dependencies = append(d.Dependencies, *dep)
		}
	}

	if strings.ContainsAny(d.Name, "/\\") {
		return nil, perr.New(perr.ManifestParse, "module name must not contain path separators").
			With("name", d.Name)
	}

	return d, nil
}

func parseDependency(name string, tree *toml.Tree) (*Dependency, error) {
	for _, key := range tree.Keys() {
		if _, ok := recognizedDependencyKeys[key]; !ok {
			return nil, perr.New(perr.ManifestParse, fmt.Sprintf("unrecognized field %q in dependency %q", key, name)).
				With("dependency", name).With("key", key)
		}
	}

	var raw dependencyTOML
	if err := tree.Unmarshal(&raw); err != nil {
		return nil, perr.Wrap(perr.ManifestParse, err, fmt.Sprintf("invalid dependency %q", name))
	}

	protocol := config.DefaultProtocol()
	switch config.Protocol(raw.Protocol) {
	case config.ProtocolSSH:
		protocol = config.ProtocolSSH
	case config.ProtocolHTTPS:
		protocol = config.ProtocolHTTPS
	case "":
		// fall through to the default resolved above
	default:
		return nil, perr.New(perr.ManifestParse, fmt.Sprintf("dependency %q has unknown protocol %q", name, raw.Protocol))
	}

	return &Dependency{
		Name:          name,
		URL:           normalizeURL(raw.URL),
		Revision:      raw.Revision,
		Branch:        raw.Branch,
		Protocol:      protocol,
		AllowPolicies: raw.AllowPolicies,
		DenyPolicies:  raw.DenyPolicies,
		RegexPolicy:   raw.RegexPolicy,
		Prune:         raw.Prune,
		Transitive:    raw.Transitive,
		ContentRoots:  raw.ContentRoots,
		SkipDeps:      raw.SkipDeps,
	}, nil
}

// normalizeURL trims a trailing slash so that two urls differing only
// in that respect compare equal (spec.md §4.1).
func normalizeURL(url string) string {
	return strings.TrimSuffix(url, "/")
}
