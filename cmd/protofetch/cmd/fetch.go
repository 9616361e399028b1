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

	"github.com/coralogix/protofetch/internal/cache"
	"github.com/coralogix/protofetch/internal/lockfile"
	"github.com/coralogix/protofetch/internal/materialize"
	"github.com/coralogix/protofetch/internal/perr"
	"github.com/coralogix/protofetch/internal/resolve"
)

type fetchFlags struct {
	Locked bool
}

// MakeFetchCommand returns the `fetch` command: resolve, lock (unless
// --locked), and materialize (spec.md §6).
func MakeFetchCommand(gf *globalFlags) *cobra.Command {
	ff := &fetchFlags{}
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Resolve dependencies, update the lock file, and materialize proto files.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(gf, ff)
		},
	}
	cmd.Flags().BoolVar(&ff.Locked, "locked", false, "fail instead of rewriting the lock file if the manifest has diverged from it")
	return cmd
}

func runFetch(gf *globalFlags, ff *fetchFlags) error {
	desc, err := readManifest(gf)
	if err != nil {
		return err
	}

	cfg := gf.resolveConfig(desc.ProtoOutDir, ff.Locked)

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

	reachable := reachableDependencies(result.Nodes)

	oldLock, hadLock, err := lockfile.Read(cfg.LockfilePath)
	if err != nil {
		return err
	}
	valid := hadLock && lockfile.IsValid(oldLock, reachable, c.CommitExists)

	if !valid {
		if cfg.Locked {
			return perr.New(perr.LockStale, "manifest has diverged from the lock file").With("lockfile", cfg.LockfilePath)
		}
		newLock := lockFileFromResult(desc, cfg.ProtoOutDir, result)
		if err := lockfile.Write(cfg.LockfilePath, newLock); err != nil {
			return err
		}
		logrus.WithField("path", cfg.LockfilePath).Info("lock file updated")
	} else if lockfile.NeedsRematerialization(oldLock, reachable) {
		logrus.Info("policy-only changes detected; re-materializing without rewriting the lock file")
	}

	open := func(n resolve.Node) (*cache.Worktree, error) {
		h, err := c.Repository(n.URL, nil)
		if err != nil {
			return nil, err
		}
		return h.Worktree(n.Commit)
	}

	warnings, err := materialize.MaterializeAll(result.Nodes, open, cfg.ProtoOutDir, m)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		logrus.Warn(w)
	}

	return nil
}
