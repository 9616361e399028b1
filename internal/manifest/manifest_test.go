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

package manifest

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/coralogix/protofetch/internal/config"
	"github.com/coralogix/protofetch/internal/perr"
)

func TestParse(t *testing.T) {
	var testCases = []struct {
		name        string
		toml        string
		expected    *Descriptor
		expectedErr perr.Kind
	}{
		{
			name: "minimal manifest with one https dependency",
			toml: `
name = "example"

[a]
url = "github.com/org/a"
revision = "v1.0"
protocol = "https"
`,
			expected: &Descriptor{
				Name: "example",
				Dependencies: []Dependency{
					{Name: "a", URL: "github.com/org/a", Revision: "v1.0", Protocol: config.ProtocolHTTPS},
				},
			},
		},
		{
			name: "preserves dependency declaration order",
			toml: `
name = "example"

[zeta]
url = "github.com/org/zeta"
revision = "v1.0"

[alpha]
url = "github.com/org/alpha"
revision = "v1.0"
`,
			expected: &Descriptor{
				Name: "example",
				Dependencies: []Dependency{
					{Name: "zeta", URL: "github.com/org/zeta", Revision: "v1.0", Protocol: config.ProtocolSSH},
					{Name: "alpha", URL: "github.com/org/alpha", Revision: "v1.0", Protocol: config.ProtocolSSH},
				},
			},
		},
		{
			name: "trailing slash on url is normalized away",
			toml: `
name = "example"

[a]
url = "github.com/org/a/"
revision = "v1.0"
`,
			expected: &Descriptor{
				Name: "example",
				Dependencies: []Dependency{
					{Name: "a", URL: "github.com/org/a", Revision: "v1.0", Protocol: config.ProtocolSSH},
				},
			},
		},
		{
			name: "unknown top-level key is a parse error",
			toml: `
name = "example"
bogus = "value"
`,
			expectedErr: perr.ManifestParse,
		},
		{
			name: "unknown dependency field is a parse error",
			toml: `
name = "example"

[a]
url = "github.com/org/a"
typo_field = true
`,
			expectedErr: perr.ManifestParse,
		},
		{
			name: "module name with a path separator is rejected",
			toml: `
name = "org/example"
`,
			expectedErr: perr.ManifestParse,
		},
		{
			name:        "malformed TOML",
			toml:        `name = `,
			expectedErr: perr.ManifestParse,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse([]byte(tc.toml))
			if tc.expectedErr != 0 {
				if err == nil {
					t.Fatalf("expected a %s error, got none", tc.expectedErr)
				}
				if kind := perr.KindOf(err); kind != tc.expectedErr {
					t.Fatalf("expected error kind %s, got %s (%v)", tc.expectedErr, kind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tc.expected, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
