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

package logutil

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// secretRegistry is the process-wide set of strings that must never be
// printed verbatim. Cache and resolve register credentials here as soon
// as they're resolved.
var secretRegistry = struct {
	mu      sync.Mutex
	secrets map[string]struct{}
}{secrets: map[string]struct{}{}}

// RegisterSecret adds s to the set of strings the formatter censors.
// Safe to call from multiple goroutines; no-op for empty strings.
func RegisterSecret(s string) {
	if s == "" {
		return
	}
	secretRegistry.mu.Lock()
	defer secretRegistry.mu.Unlock()
	secretRegistry.secrets[s] = struct{}{}
}

func registeredSecrets() []string {
	secretRegistry.mu.Lock()
	defer secretRegistry.mu.Unlock()
	out := make([]string, 0, len(secretRegistry.secrets))
	for s := range secretRegistry.secrets {
		out = append(out, s)
	}
	return out
}

// Init installs protofetch's standard logrus configuration: text
// formatting to stderr with credential censoring, at the requested
// level. Mirrors k8s.io/test-infra's prow/logrusutil.ComponentInit,
// adapted for a single-binary CLI rather than a named prow component.
func Init(level logrus.Level) {
	base := &logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
	}
	logrus.SetFormatter(NewCensoringFormatter(base, registeredSecrets))
	logrus.SetOutput(os.Stderr)
	logrus.SetLevel(level)
}
