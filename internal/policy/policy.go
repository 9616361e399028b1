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

// Package policy implements protofetch's file-selection rules (spec.md
// §4.6): which files under a dependency's content roots get
// materialized, based on allow/deny glob lists, an optional regex
// filter, and a prune fixpoint that can reach across dependencies.
//
// Pruning is not scoped to one dependency's own files. Spec.md §4.6
// resolves an unresolved import "against the union of all materialized
// content roots across dependencies marked transitive = true (or that
// themselves have a protofetch module)" — so CloseGraph takes every
// dependency's root-admitted files and full universe together, and
// follows each prune-enabled dependency's imports through a shared pool
// contributed only by dependencies eligible to contribute to it, adding
// every reached file to the output of the dependency that owns it.
package policy

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/mattn/go-zglob"

	"github.com/coralogix/protofetch/internal/perr"
)

// Policy is the normalized set of materialization rules for one
// dependency (spec.md §3's rules_subset, minus the fields the graph
// resolver already consumed).
type Policy struct {
	ContentRoots  []string
	AllowPolicies []string
	DenyPolicies  []string
	RegexPolicy   string
	Prune         bool
}

// File is one proto file under a dependency's content roots.
type File struct {
	// RelPath is posix-style and relative to the worktree root, so it
	// keeps the content-root prefix: files are not re-rooted below their
	// content root. Policies and imports are matched against this path.
	RelPath string
	// AbsPath is where to actually read the file's bytes from.
	AbsPath string
}

// importStatement recognizes a proto3/proto2 import line tolerantly:
// leading whitespace, an optional "public"/"weak" modifier, then a
// quoted path. It does not attempt a full proto grammar — tolerant
// line-oriented matching is enough to build the import graph prune
// needs, and is resilient to comments or formatting this tool doesn't
// otherwise care about.
var importStatement = regexp.MustCompile(`^\s*import\s+(?:public\s+|weak\s+)?"([^"]+)"\s*;`)

// protoComment matches a // line comment or a /* */ block comment,
// whichever starts first, so one kind nested in the other is skipped.
var protoComment = regexp.MustCompile(`(?s)//[^\n]*|/\*.*?\*/`)

// Enumerate lists every *.proto file reachable from any of
// contentRoots (or "." if none are given), relative to worktreeRoot,
// using posix-style separators.
func Enumerate(worktreeRoot string, contentRoots []string) ([]File, error) {
	roots := contentRoots
	if len(roots) == 0 {
		roots = []string{"."}
	}

	seen := map[string]bool{}
	var files []File
	for _, root := range roots {
		abs := filepath.Join(worktreeRoot, filepath.FromSlash(root))
		err := filepath.Walk(abs, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if info.IsDir() || filepath.Ext(path) != ".proto" {
				return nil
			}
			rel, err := filepath.Rel(worktreeRoot, path)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if !seen[rel] {
				seen[rel] = true
				files = append(files, File{RelPath: rel, AbsPath: path})
			}
			return nil
		})
		if err != nil {
			return nil, perr.Wrap(perr.FilesystemError, err, "failed to enumerate content root").With("root", root)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// RootAdmit narrows universe to the files that pass p's allow, deny,
// and regex policies, in that order (spec.md §4.6): an empty allow
// list means "allow everything", deny always wins over allow, and a
// non-empty regex_policy is an additional requirement layered on top
// of both. An allow/deny policy that excludes every file is a
// perr.PolicyViolation.
func RootAdmit(universe []File, p Policy) ([]File, error) {
	var regex *regexp.Regexp
	if p.RegexPolicy != "" {
		r, err := regexp.Compile(p.RegexPolicy)
		if err != nil {
			return nil, perr.Wrap(perr.ManifestParse, err, "invalid regex_policy").With("pattern", p.RegexPolicy)
		}
		regex = r
	}

	var out []File
	for _, f := range universe {
		if len(p.AllowPolicies) > 0 {
			allowed, err := matchesAny(p.AllowPolicies, f.RelPath)
			if err != nil {
				return nil, err
			}
			if !allowed {
				continue
			}
		}
		if len(p.DenyPolicies) > 0 {
			denied, err := matchesAny(p.DenyPolicies, f.RelPath)
			if err != nil {
				return nil, err
			}
			if denied {
				continue
			}
		}
		if regex != nil && !regex.MatchString(f.RelPath) {
			continue
		}
		out = append(out, f)
	}

	if len(universe) > 0 && len(out) == 0 && (len(p.AllowPolicies) > 0 || len(p.DenyPolicies) > 0) {
		roots := p.ContentRoots
		if len(roots) == 0 {
			roots = []string{"."}
		}
		return nil, perr.New(perr.PolicyViolation, "allow/deny policy excluded every file under the configured content roots").
			With("content_roots", strings.Join(roots, ","))
	}
	return out, nil
}

func matchesAny(patterns []string, path string) (bool, error) {
	for _, pattern := range patterns {
		// A leading "/" anchors the pattern at the start of path; any
		// other pattern may match any trailing run of path's segments.
		anchored := strings.HasPrefix(pattern, "/")
		glob := strings.TrimPrefix(pattern, "/")
		for rest := path; ; {
			ok, err := zglob.Match(glob, rest)
			if err != nil {
				return false, perr.Wrap(perr.ManifestParse, err, "invalid glob pattern").With("pattern", pattern)
			}
			if ok {
				return true, nil
			}
			i := strings.Index(rest, "/")
			if anchored || i < 0 {
				break
			}
			rest = rest[i+1:]
		}
	}
	return false, nil
}

// ParseImports reads absPath and returns the import paths it declares,
// in proto import syntax (repo-root-relative, never relative to the
// importing file).
func ParseImports(absPath string) ([]string, error) {
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, perr.Wrap(perr.FilesystemError, err, "failed to read proto file for import parsing").With("path", absPath)
	}

	var imports []string
	// Comments are blanked out first, so an import inside one is not
	// reported.
	scanner := bufio.NewScanner(bytes.NewReader(protoComment.ReplaceAll(content, []byte("\n"))))
	for scanner.Scan() {
		if m := importStatement.FindStringSubmatch(scanner.Text()); m != nil {
			imports = append(imports, m[1])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, perr.Wrap(perr.FilesystemError, err, "failed to scan proto file").With("path", absPath)
	}
	return imports, nil
}

// DependencyInput bundles what CloseGraph needs for one resolved
// dependency in the graph.
type DependencyInput struct {
	Name     string
	Universe []File
	Admitted []File
	Prune    bool
	// Pooled marks a dependency as eligible to contribute its universe
	// to the shared import-resolution pool: spec.md §4.6 requires it
	// to be transitive = true or to itself carry a protofetch module.
	Pooled bool
}

// CloseResult is CloseGraph's output: the final file set per
// dependency name, plus any import paths that could not be resolved
// against the pool.
type CloseResult struct {
	Files             map[string][]string
	UnresolvedImports []string
}

// CloseGraph implements the cross-dependency half of spec.md §4.6: it
// builds a shared import-resolution pool from every pooled
// dependency's full universe, then follows imports from each
// prune-enabled dependency's admitted files through that pool to a
// fixpoint. Every reached file is added to the output of the
// dependency that owns it. A prune-enabled dependency keeps only its
// reached files; a dependency with prune = false keeps its whole
// admitted set, its own imports are not followed, and it also receives
// any of its files that a prune-enabled dependency's closure reaches.
func CloseGraph(deps []DependencyInput) (*CloseResult, error) {
	type owned struct {
		dep string
		f   File
	}
	pool := map[string]owned{}
	// Sorting by name first makes pool ownership on a relpath
	// collision between two dependencies deterministic.
	sorted := make([]DependencyInput, len(deps))
	copy(sorted, deps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for _, d := range sorted {
		if !d.Pooled {
			continue
		}
		for _, f := range d.Universe {
			if _, exists := pool[f.RelPath]; !exists {
				pool[f.RelPath] = owned{dep: d.Name, f: f}
			}
		}
	}

	type key struct {
		dep, rel string
	}
	kept := map[key]File{}
	var queue []key
	byAbs := map[key]File{}

	for _, d := range deps {
		if !d.Prune {
			continue
		}
		for _, f := range d.Admitted {
			k := key{d.Name, f.RelPath}
			if _, ok := kept[k]; !ok {
				kept[k] = f
				byAbs[k] = f
				queue = append(queue, k)
			}
		}
	}

	var unresolved []string
	seenUnresolved := map[string]bool{}
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]

		imports, err := ParseImports(byAbs[k].AbsPath)
		if err != nil {
			return nil, err
		}
		for _, imp := range imports {
			entry, ok := pool[imp]
			if !ok {
				if !seenUnresolved[imp] {
					seenUnresolved[imp] = true
					unresolved = append(unresolved, fmt.Sprintf("%s: unresolved import %q", k.dep, imp))
				}
				continue
			}
			nk := key{entry.dep, imp}
			if _, already := kept[nk]; already {
				continue
			}
			kept[nk] = entry.f
			byAbs[nk] = entry.f
			queue = append(queue, nk)
		}
	}

	result := &CloseResult{Files: map[string][]string{}}
	for _, d := range deps {
		var paths []string
		if !d.Prune {
			for _, f := range d.Admitted {
				if _, reached := kept[key{d.Name, f.RelPath}]; !reached {
					paths = append(paths, f.RelPath)
				}
			}
		}
		for k, f := range kept {
			if k.dep == d.Name {
				paths = append(paths, f.RelPath)
			}
		}
		sort.Strings(paths)
		result.Files[d.Name] = paths
	}
	sort.Strings(unresolved)
	result.UnresolvedImports = unresolved
	return result, nil
}
