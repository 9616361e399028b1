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

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/coralogix/protofetch/internal/perr"
)

// MakeCleanCommand returns the `clean` command: removes the output tree
// and lock file, but leaves the shared cache untouched (spec.md §6:
// "clean: removes output tree and lock file but not the cache").
func MakeCleanCommand(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove the materialized output tree and lock file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(gf)
		},
	}
}

func runClean(gf *globalFlags) error {
	desc, err := readManifest(gf)
	if err != nil {
		return err
	}
	cfg := gf.resolveConfig(desc.ProtoOutDir, false)

	if err := os.RemoveAll(cfg.ProtoOutDir); err != nil {
		return perr.Wrap(perr.FilesystemError, err, "failed to remove output tree").With("path", cfg.ProtoOutDir)
	}
	logrus.WithField("path", cfg.ProtoOutDir).Info("removed output tree")

	if err := os.Remove(cfg.LockfilePath); err != nil && !os.IsNotExist(err) {
		return perr.Wrap(perr.FilesystemError, err, "failed to remove lock file").With("path", cfg.LockfilePath)
	}
	logrus.WithField("path", cfg.LockfilePath).Info("removed lock file")

	return nil
}
