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

// Package logutil wires structured logging for protofetch. It adapts
// the censoring-formatter pattern used throughout k8s.io/test-infra's
// prow components so that passwords the credential chain resolves (from
// GIT_PASSWORD) never reach stdout/stderr even when they appear
// embedded in a remote URL or an error message. Usernames are not
// censored.
package logutil

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// SecretsFunc returns the current set of secret strings that must be
// censored. It is called on every Format so that secrets registered
// after the formatter is installed (e.g. resolved lazily by the
// credential chain) are still caught.
type SecretsFunc func() []string

// CensoringFormatter wraps a base logrus.Formatter and replaces every
// occurrence of a registered secret with asterisks of the same length
// in both the message and any field values.
type CensoringFormatter struct {
	delegate logrus.Formatter
	secrets  SecretsFunc

	mu sync.Mutex
}

// NewCensoringFormatter builds a CensoringFormatter around delegate.
func NewCensoringFormatter(delegate logrus.Formatter, secrets SecretsFunc) *CensoringFormatter {
	return &CensoringFormatter{delegate: delegate, secrets: secrets}
}

func (f *CensoringFormatter) censor(s string) string {
	for _, secret := range f.secrets() {
		secret = strings.TrimSpace(secret)
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, strings.Repeat("*", len(secret)))
	}
	return s
}

// Format implements logrus.Formatter.
func (f *CensoringFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	censoredEntry := *entry
	censoredEntry.Message = f.censor(entry.Message)

	if len(entry.Data) > 0 {
		data := make(logrus.Fields, len(entry.Data))
		for k, v := range entry.Data {
			switch val := v.(type) {
			case string:
				data[k] = f.censor(val)
			case error:
				data[k] = f.censor(val.Error())
			case fmt.Stringer:
				data[k] = f.censor(val.String())
			default:
				data[k] = v
			}
		}
		censoredEntry.Data = data
	}

	return f.delegate.Format(&censoredEntry)
}
