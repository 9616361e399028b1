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

// Package cmd wires protofetch's subcommands, following the
// gopherage-style `MakeCommand() *cobra.Command` convention from
// k8s.io/test-infra's gopherage/cmd/{merge,filter}: one file per
// subcommand, a private flags struct, and a run function separated
// from command construction so it can be tested without cobra in the
// loop.
package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/coralogix/protofetch/internal/config"
	"github.com/coralogix/protofetch/internal/logutil"
)

// globalFlags are the flags spec.md §6 defines at the root command,
// shared by every subcommand that touches the cache or the manifest.
type globalFlags struct {
	CacheDirectory   string
	LockfileLocation string
	ModuleLocation   string
	ProtoOutputDir   string
	LogLevel         string
	DepthLimit       int
	CacheLockWait    int64
}

// NewRootCommand builds protofetch's root command with every
// subcommand attached (spec.md §6: fetch, lock, clean, init, migrate).
func NewRootCommand() *cobra.Command {
	gf := &globalFlags{}
	root := &cobra.Command{
		Use:           "protofetch",
		Short:         "protofetch resolves and materializes Protocol Buffers source dependencies from git.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level, err := logrus.ParseLevel(gf.LogLevel)
			if err != nil {
				level = logrus.InfoLevel
			}
			logutil.Init(level)
		},
	}

	root.PersistentFlags().StringVar(&gf.CacheDirectory, "cache-directory", "", "cache root directory (default $HOME/.protofetch/cache)")
	root.PersistentFlags().StringVar(&gf.LockfileLocation, "lockfile-location", "protofetch.lock", "path to the lock file")
	root.PersistentFlags().StringVar(&gf.ModuleLocation, "module-location", ".", "directory containing protofetch.toml")
	root.PersistentFlags().StringVar(&gf.ProtoOutputDir, "proto-output-directory", "proto_out", "directory materialized proto files are written to")
	root.PersistentFlags().StringVar(&gf.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().IntVar(&gf.DepthLimit, "depth-limit", config.DefaultDepthLimit, "maximum transitive dependency depth")
	root.PersistentFlags().Int64Var(&gf.CacheLockWait, "cache-lock-wait-seconds", 0, "seconds to wait for the cache lock before failing (0 waits indefinitely)")

	root.AddCommand(MakeFetchCommand(gf))
	root.AddCommand(MakeLockCommand(gf))
	root.AddCommand(MakeCleanCommand(gf))
	root.AddCommand(MakeInitCommand(gf))
	root.AddCommand(MakeMigrateCommand(gf))
	return root
}

// resolveConfig turns gf plus a parsed manifest's own proto_out_dir
// into the config.Config a run operates against (spec.md §9's
// precedence rule: manifest wins when set, CLI otherwise).
func (gf *globalFlags) resolveConfig(manifestProtoOutDir string, locked bool) config.Config {
	return config.Config{
		CacheDir:       gf.CacheDirectory,
		LockfilePath:   gf.LockfileLocation,
		ModuleLocation: gf.ModuleLocation,
		ProtoOutDir:    config.ResolveProtoOutDir(manifestProtoOutDir, gf.ProtoOutputDir),
		Locked:         locked,
		DepthLimit:     gf.DepthLimit,
		CacheLockWait:  gf.CacheLockWait,
	}
}
