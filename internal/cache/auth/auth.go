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

// Package auth implements protofetch's credential source chain
// (spec.md §4.2). Rather than a polymorphic hierarchy of credential
// providers, a tagged list of sources is walked once per process per
// remote; each variant exposes a single Try method, per the REDESIGN
// FLAGS note on polymorphic credential sources.
package auth

import (
	"os"
	"sync"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"github.com/coralogix/protofetch/internal/config"
	"github.com/coralogix/protofetch/internal/logutil"
	"github.com/coralogix/protofetch/internal/perr"
)

// Source is one entry in the credential chain.
type Source interface {
	// Try resolves credentials for remote. It returns (nil, nil) to
	// signal "not applicable, move to the next source" and a non-nil
	// error only for a hard failure that should stop the chain.
	Try(remote string) (transport.AuthMethod, error)
	Name() string
}

// Chain resolves credentials for a protocol, consulting each
// applicable Source at most once per process (spec.md §4.2:
// "authentication failures do not retry with the same credential to
// avoid account lockouts").
type Chain struct {
	mu      sync.Mutex
	tried   map[string]bool
	sources []Source
}

// NewChain builds the default chain for protocol: SSH agent then
// ~/.ssh/id_* keys for ssh; GIT_USERNAME/GIT_PASSWORD then an explicit
// username/password pair for https (spec.md §4.2). A credential helper
// source is deliberately not included here — go-git has no programmatic
// access to git's external credential-helper protocol, and shelling out
// to `git credential fill` would reintroduce the CLI-spawns-git pattern
// the cache is built to avoid (see SPEC_FULL.md §4.1).
func NewChain(protocol config.Protocol, explicitUser, explicitPass string) *Chain {
	var sources []Source
	switch protocol {
	case config.ProtocolSSH:
		sources = []Source{
			sshAgentSource{},
			sshKeySource{},
		}
	case config.ProtocolHTTPS:
		sources = []Source{
			httpsEnvSource{},
			httpsExplicitSource{username: explicitUser, password: explicitPass},
		}
	}
	return &Chain{tried: map[string]bool{}, sources: sources}
}

// Resolve walks the chain, skipping any source already tried this
// process, and returns the first successful credential. Returning
// (nil, nil) when no source applies is deliberate: many remotes (a
// local path in tests, a public https repository) need no credential at
// all, and the transport only fails on its own terms if one turns out
// to be required — that failure surfaces later as a classified
// perr.Auth error out of the git operation itself, not preemptively
// here. Resolve only returns an error directly when a source that did
// apply failed outright (e.g. an unreadable configured SSH key).
func (c *Chain) Resolve(remote string) (transport.AuthMethod, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.sources {
		if c.tried[s.Name()] {
			continue
		}
		c.tried[s.Name()] = true
		auth, err := s.Try(remote)
		if err != nil {
			return nil, perr.Wrap(perr.Auth, err, "credential source failed").With("remote", remote).With("source", s.Name())
		}
		if auth != nil {
			return auth, nil
		}
	}
	return nil, nil
}

type sshAgentSource struct{}

func (sshAgentSource) Name() string { return "ssh-agent" }

func (sshAgentSource) Try(remote string) (transport.AuthMethod, error) {
	if os.Getenv("SSH_AUTH_SOCK") == "" {
		return nil, nil
	}
	auth, err := ssh.NewSSHAgentAuth("git")
	if err != nil {
		return nil, err
	}
	return auth, nil
}

type sshKeySource struct{}

func (sshKeySource) Name() string { return "ssh-key" }

func (sshKeySource) Try(remote string) (transport.AuthMethod, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, nil
	}
	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		path := home + "/.ssh/" + name
		if _, err := os.Stat(path); err != nil {
			continue
		}
		auth, err := ssh.NewPublicKeysFromFile("git", path, "")
		if err != nil {
			continue
		}
		return auth, nil
	}
	return nil, nil
}

type httpsEnvSource struct{}

func (httpsEnvSource) Name() string { return "https-env" }

func (httpsEnvSource) Try(remote string) (transport.AuthMethod, error) {
	user := os.Getenv(config.EnvGitUsername)
	pass := os.Getenv(config.EnvGitPassword)
	if user == "" || pass == "" {
		return nil, nil
	}
	logutil.RegisterSecret(pass)
	return &http.BasicAuth{Username: user, Password: pass}, nil
}

type httpsExplicitSource struct {
	username string
	password string
}

func (httpsExplicitSource) Name() string { return "https-explicit" }

func (s httpsExplicitSource) Try(remote string) (transport.AuthMethod, error) {
	if s.username == "" {
		return nil, nil
	}
	if s.password != "" {
		logutil.RegisterSecret(s.password)
	}
	return &http.BasicAuth{Username: s.username, Password: s.password}, nil
}
