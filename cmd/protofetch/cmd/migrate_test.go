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
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/coralogix/protofetch/internal/manifest"
	"github.com/coralogix/protofetch/internal/perr"
)

func TestParseLegacyList(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		want    []legacyDependency
		wantErr bool
	}{
		{
			name: "basic",
			content: "# a comment\n" +
				"foo https://github.com/example/foo.git main\n" +
				"\n" +
				"bar https://github.com/example/bar.git v1.2.3\n",
			want: []legacyDependency{
				{name: "foo", url: "https://github.com/example/foo.git", revision: "main"},
				{name: "bar", url: "https://github.com/example/bar.git", revision: "v1.2.3"},
			},
		},
		{
			name:    "empty",
			content: "\n# nothing but comments\n",
			want:    nil,
		},
		{
			name:    "malformed line",
			content: "foo https://github.com/example/foo.git\n",
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseLegacyList([]byte(tc.content))
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected an error, got nil")
				}
				if perr.KindOf(err) != perr.ManifestParse {
					t.Errorf("KindOf(err) = %v, want %v", perr.KindOf(err), perr.ManifestParse)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseLegacyList: %v", err)
			}
			if diff := cmp.Diff(tc.want, got, cmp.AllowUnexported(legacyDependency{})); diff != "" {
				t.Errorf("parseLegacyList mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRenderManifestRoundTripsThroughParse(t *testing.T) {
	deps := []legacyDependency{
		{name: "foo", url: "https://github.com/example/foo.git", revision: "main"},
		{name: "bar", url: "https://github.com/example/bar.git", revision: "v1.2.3"},
	}

	rendered := renderManifest("migrated", deps)

	desc, err := manifest.Parse([]byte(rendered))
	if err != nil {
		t.Fatalf("manifest.Parse(rendered): %v", err)
	}
	if desc.Name != "migrated" {
		t.Errorf("Name = %q, want %q", desc.Name, "migrated")
	}
	if len(desc.Dependencies) != len(deps) {
		t.Fatalf("got %d dependencies, want %d", len(desc.Dependencies), len(deps))
	}
	for i, d := range deps {
		got := desc.Dependencies[i]
		if got.Name != d.name || got.URL != d.url || got.Revision != d.revision {
			t.Errorf("dependency %d = %+v, want name=%s url=%s revision=%s", i, got, d.name, d.url, d.revision)
		}
	}
}
