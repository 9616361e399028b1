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
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/coralogix/protofetch/internal/perr"
)

// legacyDependency is one line of a protodep-style source list: a name,
// a git url, and a revision (tag, branch, or commit), whitespace
// separated, with "#"-prefixed and blank lines ignored.
type legacyDependency struct {
	name     string
	url      string
	revision string
}

// parseLegacyList reads source's minimal line-oriented format. The spec
// leaves migrate's source format unprescribed (it's an external-
// collaborator concern); this is the smallest format that round-trips
// protodep's essential fields (name, url, revision).
func parseLegacyList(content []byte) ([]legacyDependency, error) {
	var deps []legacyDependency
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, perr.New(perr.ManifestParse, fmt.Sprintf("expected \"name url revision\" on line %d", lineNum)).
				With("line", fmt.Sprintf("%d", lineNum))
		}
		deps = append(deps, legacyDependency{name: fields[0], url: fields[1], revision: fields[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, perr.Wrap(perr.FilesystemError, err, "failed to scan legacy dependency list")
	}
	return deps, nil
}

// renderManifest writes the protofetch.toml text for name plus deps, in
// the field order internal/manifest.Parse recognizes.
func renderManifest(name string, deps []legacyDependency) string {
	var b strings.Builder
	fmt.Fprintf(&b, "name = %q\n\n", name)
	for _, d := range deps {
		fmt.Fprintf(&b, "[%s]\n", d.name)
		fmt.Fprintf(&b, "url = %q\n", d.url)
		fmt.Fprintf(&b, "revision = %q\n\n", d.revision)
	}
	return b.String()
}

// MakeMigrateCommand returns the `migrate <source-toml>` command: reads
// a legacy protodep/Makefile-style dependency list and writes a
// protofetch.toml with the same dependencies (spec.md §6).
func MakeMigrateCommand(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <source-toml>",
		Short: "Convert a legacy dependency list into a protofetch.toml.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(gf, args[0])
		},
	}
}

func runMigrate(gf *globalFlags, source string) error {
	content, err := os.ReadFile(source)
	if err != nil {
		return perr.Wrap(perr.FilesystemError, err, "failed to read legacy dependency list").With("path", source)
	}
	deps, err := parseLegacyList(content)
	if err != nil {
		return err
	}

	name := "migrated"
	if desc, err := readManifest(gf); err == nil {
		name = desc.Name
	}

	rendered := renderManifest(name, deps)
	destPath := source + ".protofetch.toml"
	if err := os.WriteFile(destPath, []byte(rendered), 0o644); err != nil {
		return perr.Wrap(perr.FilesystemError, err, "failed to write migrated manifest").With("path", destPath)
	}
	logrus.WithField("path", destPath).WithField("dependencies", fmt.Sprintf("%d", len(deps))).Info("migrated legacy dependency list")
	return nil
}
