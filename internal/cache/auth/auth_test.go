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

package auth

import (
	"testing"

	"github.com/coralogix/protofetch/internal/config"
)

func TestResolveReturnsNilWhenNoSourceApplies(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	t.Setenv(config.EnvGitUsername, "")
	t.Setenv(config.EnvGitPassword, "")

	chain := NewChain(config.ProtocolHTTPS, "", "")
	auth, err := chain.Resolve("https://example.com/org/repo")
	if err != nil {
		t.Fatalf("expected no error when nothing applies, got %v", err)
	}
	if auth != nil {
		t.Fatalf("expected nil auth, got %v", auth)
	}
}

func TestResolveUsesExplicitHTTPSCredentials(t *testing.T) {
	chain := NewChain(config.ProtocolHTTPS, "alice", "s3cr3t")
	auth, err := chain.Resolve("https://example.com/org/repo")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if auth == nil {
		t.Fatal("expected a non-nil auth method from the explicit https source")
	}
}

func TestResolveTriesEachSourceAtMostOncePerProcess(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")
	chain := NewChain(config.ProtocolHTTPS, "alice", "s3cr3t")

	first, err := chain.Resolve("https://example.com/org/repo")
	if err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	if first == nil {
		t.Fatal("expected credentials on first resolve")
	}

	if len(chain.tried) != len(chain.sources) {
		t.Fatalf("expected all %d sources marked tried, got %d", len(chain.sources), len(chain.tried))
	}

	second, err := chain.Resolve("https://example.com/org/other-repo")
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if second != nil {
		t.Error("expected no credentials on a repeat resolve: every source was already tried this process")
	}
}
