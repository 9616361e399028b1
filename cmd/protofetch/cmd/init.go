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
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/coralogix/protofetch/internal/perr"
)

const initScaffold = `name = %q
description = %q
`

// MakeInitCommand returns the `init <dir> <name>` command: scaffolds a
// minimal protofetch.toml with no dependencies (spec.md §6). The
// description field is left as a placeholder comment-free string so
// init's output parses with internal/manifest unchanged.
func MakeInitCommand(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init <dir> <name>",
		Short: "Scaffold a new protofetch.toml in dir, named name.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(args[0], args[1])
		},
	}
}

func runInit(dir, name string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return perr.Wrap(perr.FilesystemError, err, "failed to create module directory").With("path", dir)
	}

	path := filepath.Join(dir, manifestFileName)
	if _, err := os.Stat(path); err == nil {
		return perr.New(perr.FilesystemError, "protofetch.toml already exists").With("path", path)
	} else if !os.IsNotExist(err) {
		return perr.Wrap(perr.FilesystemError, err, "failed to stat manifest path").With("path", path)
	}

	content := fmt.Sprintf(initScaffold, name, "")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return perr.Wrap(perr.FilesystemError, err, "failed to write manifest").With("path", path)
	}
	logrus.WithField("path", path).Info("created protofetch.toml")
	return nil
}
