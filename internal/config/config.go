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

// Package config resolves protofetch's global configuration: cache
// directory, lockfile location, module location, and proto output
// directory, combining CLI flags with environment defaults the way
// spec.md §6 and §9 describe.
package config

import (
	"os"
	"path/filepath"
)

const (
	// EnvGitUsername is the https credential username override.
	EnvGitUsername = "GIT_USERNAME"
	// EnvGitPassword is the https credential password override.
	EnvGitPassword = "GIT_PASSWORD"
	// EnvGitProtocol selects the default protocol ("ssh" or "https")
	// for dependencies that do not declare one.
	EnvGitProtocol = "PROTOFETCH_GIT_PROTOCOL"
)

// Protocol is a dependency's transport.
type Protocol string

const (
	ProtocolSSH   Protocol = "ssh"
	ProtocolHTTPS Protocol = "https"
)

// DefaultProtocol returns PROTOFETCH_GIT_PROTOCOL's value if it names a
// recognized protocol, falling back to ssh per spec.md §3.
func DefaultProtocol() Protocol {
	switch Protocol(os.Getenv(EnvGitProtocol)) {
	case ProtocolHTTPS:
		return ProtocolHTTPS
	case ProtocolSSH:
		return ProtocolSSH
	default:
		return ProtocolSSH
	}
}

// DefaultCacheDir returns $HOME/.protofetch/cache, the cache root spec.md
// §4.1 specifies.
func DefaultCacheDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".protofetch", "cache"), nil
}

// Config is the resolved set of paths and knobs a run operates against.
// It is constructed once by the CLI layer and passed explicitly to the
// resolver and materializer — never read from package-level globals —
// per the REDESIGN FLAGS note on avoiding a global cache singleton.
type Config struct {
	CacheDir       string
	LockfilePath   string
	ModuleLocation string
	ProtoOutDir    string
	Locked         bool
	DepthLimit     int
	CacheLockWait  int64 // seconds; 0 means wait indefinitely
}

// DefaultDepthLimit is the transitive-depth guard from spec.md §4.3.
const DefaultDepthLimit = 10

// ResolveProtoOutDir applies the precedence rule from spec.md §9's open
// question: the manifest's proto_out_dir wins when set; otherwise the
// CLI-supplied (or default) directory is used.
func ResolveProtoOutDir(manifestDir, cliDir string) string {
	if manifestDir != "" {
		return manifestDir
	}
	return cliDir
}
