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

package lockfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"

	"github.com/coralogix/protofetch/internal/interrupts"
	"github.com/coralogix/protofetch/internal/manifest"
	"github.com/coralogix/protofetch/internal/perr"
)

// lockSuffix names the sibling guard file used for the OS-level
// exclusive lock around lock-file writes (spec.md §5: "a sibling file
// (protofetch.lock.lock)").
const lockSuffix = ".lock"

// Write atomically persists lf to path: staged in a temp file in the
// same directory, fsynced, then renamed into place (spec.md §4.4). A
// sibling `<path>.lock` guards the write against a concurrent writer;
// readers do not take this lock. The pattern — tempfile, Sync, Rename,
// remove-on-error — mirrors k8s.io/test-infra's
// greenhouse/diskcache.Cache.Put, adapted from a single blob to a
// whole-document write.
func Write(path string, lf *LockFile) error {
	guard := flock.New(path + lockSuffix)
	locked, err := guard.TryLock()
	if err != nil {
		return perr.Wrap(perr.FilesystemError, err, "failed to acquire lock-file guard")
	}
	if !locked {
		return perr.New(perr.FilesystemError, "another process is writing the lock file").With("path", path)
	}
	defer guard.Unlock()

	content, err := Encode(lf)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".protofetch-lock-*")
	if err != nil {
		return perr.Wrap(perr.FilesystemError, err, "failed to create lock file tempfile")
	}
	tmpName := tmp.Name()

	cleanup := func() {
		if err := os.Remove(tmpName); err != nil && !os.IsNotExist(err) {
			logrus.WithError(err).Warnf("failed to remove abandoned lock tempfile %s", tmpName)
		}
	}
	interrupts.OnInterrupt(cleanup)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		cleanup()
		return perr.Wrap(perr.FilesystemError, err, "failed to write lock file tempfile")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return perr.Wrap(perr.FilesystemError, err, "failed to fsync lock file tempfile")
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return perr.Wrap(perr.FilesystemError, err, "failed to close lock file tempfile")
	}

	// os.Rename on POSIX is an atomic replace; on Windows the runtime
	// uses MoveFileEx with MOVEFILE_REPLACE_EXISTING semantics, matching
	// spec.md §4.4's "replace-if-exists" requirement.
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return perr.Wrap(perr.FilesystemError, err, fmt.Sprintf("failed to install lock file at %s", path))
	}
	return nil
}

// Read loads and decodes the lock file at path. A missing file is not
// an error: it is reported via ok=false so callers can distinguish
// "no lock yet" from "lock file and parse failed".
func Read(path string) (lf *LockFile, ok bool, err error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, perr.Wrap(perr.FilesystemError, err, "failed to read lock file")
	}
	decoded, err := Decode(content)
	if err != nil {
		return nil, false, err
	}
	return decoded, true, nil
}

// desiredCoordinate bundles the manifest-side identity of a dependency
// that the staleness check compares against a LockEntry.
type desiredCoordinate struct {
	name         string
	coordinate   Coordinate
	contentRoots []string
	rules        Rules
}

// fromManifestDependency projects the fields the staleness check needs
// from one manifest dependency.
func fromManifestDependency(d manifest.Dependency) desiredCoordinate {
	return desiredCoordinate{
		name:         d.Name,
		coordinate:   CoordinateFromDependency(d),
		contentRoots: d.ContentRoots,
		rules:        RulesFromDependency(d),
	}
}

// IsValid reports whether lf's commit mapping remains valid for the
// given reachable dependency set per spec.md §4.4: every reachable
// dependency's (url, revision-spec, branch, content_roots) must match a
// LockEntry whose commit still exists, per commitExists. Per spec.md
// §4.4, pure policy changes (allow/deny/regex/prune/transitive)
// invalidate the materializer but NOT this commit mapping — see
// NeedsRematerialization for that check.
//
// commitExists is called with (url, commit) and should consult the
// cache mirror for that url; it is injected so this package never talks
// to the cache directly (kept as a pure decision function for testing).
func IsValid(lf *LockFile, reachable []manifest.Dependency, commitExists func(url, commit string) bool) bool {
	byName := make(map[string]LockEntry, len(lf.Dependencies))
	for _, e := range lf.Dependencies {
		byName[e.Name] = e
	}
	if len(byName) != len(reachable) {
		return false
	}
	for _, dep := range reachable {
		desired := fromManifestDependency(dep)
		entry, ok := byName[desired.name]
		if !ok {
			return false
		}
		if entry.Coordinate != desired.coordinate {
			return false
		}
		if !stringSlicesEqual(entry.Rules.ContentRoots, desired.contentRoots) {
			return false
		}
		if !commitExists(entry.Coordinate.URL, entry.CommitHash) {
			return false
		}
	}
	return true
}

// NeedsRematerialization reports whether any reachable dependency's
// policy fields (allow/deny/regex/prune/transitive) differ from the
// matching LockEntry, even though the commit mapping is still valid.
// Callers should re-run the materializer without rewriting the lock
// file in that case (spec.md §4.4).
func NeedsRematerialization(lf *LockFile, reachable []manifest.Dependency) bool {
	byName := make(map[string]LockEntry, len(lf.Dependencies))
	for _, e := range lf.Dependencies {
		byName[e.Name] = e
	}
	for _, dep := range reachable {
		desired := fromManifestDependency(dep)
		entry, ok := byName[desired.name]
		if !ok {
			return true
		}
		if !policyEqual(entry.Rules, desired.rules) {
			return true
		}
	}
	return false
}

func policyEqual(a, b Rules) bool {
	return stringSlicesEqual(a.AllowPolicies, b.AllowPolicies) &&
		stringSlicesEqual(a.DenyPolicies, b.DenyPolicies) &&
		a.RegexPolicy == b.RegexPolicy &&
		a.Prune == b.Prune &&
		a.Transitive == b.Transitive
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
