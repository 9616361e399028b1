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

package cache

import (
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"

	"github.com/coralogix/protofetch/internal/perr"
)

// lockFileName is the whole-cache advisory lock (spec.md §4.1, §6:
// "<cache_root>/LOCK is the advisory lock file").
const lockFileName = "LOCK"

const heartbeatInterval = 10 * time.Second

type cacheLock struct {
	flock *flock.Flock
}

// acquireCacheLock takes the whole-cache lock in exclusive mode for the
// lifetime of the process (spec.md §5). While blocked, it logs a
// periodic heartbeat, the same operator-visible signal
// k8s.io/test-infra's prow/interrupts.Tick provides for long waits, so
// an operator watching the log knows the process is waiting rather than
// hung. If timeout is non-zero and acquisition doesn't succeed in time,
// it returns a CacheLockBusy error.
func acquireCacheLock(root string, timeout time.Duration) (*cacheLock, error) {
	path := filepath.Join(root, lockFileName)
	f := flock.New(path)

	locked, err := f.TryLock()
	if err != nil {
		return nil, perr.Wrap(perr.FilesystemError, err, "failed to access cache lock file").With("path", path)
	}
	if locked {
		return &cacheLock{flock: f}, nil
	}

	logrus.WithField("path", path).Info("cache is locked by another process, waiting to acquire")
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	deadline := make(<-chan time.Time)
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	const pollInterval = 200 * time.Millisecond
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-deadline:
			return nil, perr.New(perr.CacheLockBusy, "timed out waiting for another process to release the cache lock").With("path", path)
		case <-heartbeat.C:
			logrus.WithField("path", path).Info("still waiting to acquire cache lock")
		case <-ticker.C:
			locked, err := f.TryLock()
			if err != nil {
				return nil, perr.Wrap(perr.FilesystemError, err, "failed to acquire cache lock").With("path", path)
			}
			if locked {
				return &cacheLock{flock: f}, nil
			}
		}
	}
}

func (l *cacheLock) release() error {
	if l == nil || l.flock == nil {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return perr.Wrap(perr.FilesystemError, err, "failed to release cache lock")
	}
	return nil
}
