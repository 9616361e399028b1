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
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/coralogix/protofetch/internal/lockfile"
)

// MakeLockCommand returns the `lock` command: resolve the dependency
// graph and write the lock file without materializing any proto files
// (spec.md §6: "lock: writes lock, no materialization").
func MakeLockCommand(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "lock",
		Short: "Resolve dependencies and write the lock file, without materializing proto files.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLock(gf)
		},
	}
}

func runLock(gf *globalFlags) error {
	desc, err := readManifest(gf)
	if err != nil {
		return err
	}

	cfg := gf.resolveConfig(desc.ProtoOutDir, false)

	m := newMetrics()
	c, err := openCache(cfg, m)
	if err != nil {
		return err
	}
	defer c.Close()

	result, err := resolveGraph(c, desc, cfg, m)
	if err != nil {
		return err
	}
	for _, w := range result.Warnings {
		logrus.Warn(w)
	}

	newLock := lockFileFromResult(desc, cfg.ProtoOutDir, result)
	if err := lockfile.Write(cfg.LockfilePath, newLock); err != nil {
		return err
	}
	logrus.WithField("path", cfg.LockfilePath).Info("lock file written")
	return nil
}
