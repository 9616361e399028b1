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
	"os"
	"path/filepath"
	"testing"

	"github.com/coralogix/protofetch/internal/manifest"
)

func sampleLockFile() *LockFile {
	return &LockFile{
		ModuleName:  "example",
		ProtoOutDir: "proto",
		Dependencies: []LockEntry{
			{
				Name:       "zeta",
				Coordinate: Coordinate{URL: "github.com/org/zeta", Revision: "v1.0", Protocol: "https"},
				CommitHash: "cccccccccccccccccccccccccccccccccccccccc",
			},
			{
				Name:       "alpha",
				Coordinate: Coordinate{URL: "github.com/org/alpha", Revision: "v1.0", Protocol: "ssh"},
				CommitHash: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
				Rules:      Rules{Prune: true, Transitive: true, ContentRoots: []string{"proto"}},
			},
		},
	}
}

func TestEncodeIsDeterministicAndNameSorted(t *testing.T) {
	lf := sampleLockFile()

	first, err := Encode(lf)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	second, err := Encode(sampleLockFile())
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("Encode() is not deterministic:\n--- first ---\n%s\n--- second ---\n%s", first, second)
	}

	decoded, err := Decode(first)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded.Dependencies) != 2 {
		t.Fatalf("expected 2 dependencies, got %d", len(decoded.Dependencies))
	}
	if decoded.Dependencies[0].Name != "alpha" || decoded.Dependencies[1].Name != "zeta" {
		t.Errorf("expected name-sorted order [alpha zeta], got [%s %s]",
			decoded.Dependencies[0].Name, decoded.Dependencies[1].Name)
	}
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "protofetch.lock")

	lf := sampleLockFile()
	if err := Write(path, lf); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".lock" && e.Name() != "protofetch.lock" {
			t.Errorf("leftover tempfile after Write(): %s", e.Name())
		}
	}

	read, ok, err := Read(path)
	if err != nil || !ok {
		t.Fatalf("Read: ok=%v err=%v", ok, err)
	}
	if read.ModuleName != "example" {
		t.Errorf("expected module name 'example', got %q", read.ModuleName)
	}
}

func TestReadMissingFileIsNotAnError(t *testing.T) {
	_, ok, err := Read(filepath.Join(t.TempDir(), "absent.lock"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for a missing lock file")
	}
}

func TestIsValid(t *testing.T) {
	lf := &LockFile{
		Dependencies: []LockEntry{
			{
				Name:       "a",
				Coordinate: Coordinate{URL: "github.com/org/a", Revision: "v1.0", Protocol: "ssh"},
				CommitHash: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
				Rules:      Rules{Prune: false},
			},
		},
	}
	reachable := []manifest.Dependency{
		{Name: "a", URL: "github.com/org/a", Revision: "v1.0", Protocol: "ssh"},
	}

	commitExists := func(url, commit string) bool { return true }
	if !IsValid(lf, reachable, commitExists) {
		t.Error("expected lock to be valid when coordinates and commit match")
	}

	commitMissing := func(url, commit string) bool { return false }
	if IsValid(lf, reachable, commitMissing) {
		t.Error("expected lock to be invalid when the commit no longer exists in the cache")
	}

	divergedRevision := []manifest.Dependency{
		{Name: "a", URL: "github.com/org/a", Revision: "v2.0", Protocol: "ssh"},
	}
	if IsValid(lf, divergedRevision, commitExists) {
		t.Error("expected lock to be invalid when the manifest revision has diverged")
	}

	if NeedsRematerialization(lf, reachable) {
		t.Error("expected no rematerialization needed when policy fields are unchanged")
	}

	policyChanged := []manifest.Dependency{
		{Name: "a", URL: "github.com/org/a", Revision: "v1.0", Protocol: "ssh", Prune: true},
	}
	if !IsValid(lf, policyChanged, commitExists) {
		t.Error("a pure policy change must not invalidate the lock's commit mapping")
	}
	if !NeedsRematerialization(lf, policyChanged) {
		t.Error("a pure policy change must trigger rematerialization")
	}
}
