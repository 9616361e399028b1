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
	"testing"
	"time"

	"github.com/coralogix/protofetch/internal/perr"
)

func TestAcquireCacheLockSucceedsWhenFree(t *testing.T) {
	root := t.TempDir()
	l, err := acquireCacheLock(root, 0)
	if err != nil {
		t.Fatalf("acquireCacheLock: %v", err)
	}
	if err := l.release(); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestAcquireCacheLockTimesOutWhenHeld(t *testing.T) {
	root := t.TempDir()
	holder, err := acquireCacheLock(root, 0)
	if err != nil {
		t.Fatalf("acquireCacheLock (holder): %v", err)
	}
	defer holder.release()

	_, err = acquireCacheLock(root, 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected acquireCacheLock to time out while the lock is held")
	}
	if perr.KindOf(err) != perr.CacheLockBusy {
		t.Errorf("expected CacheLockBusy, got %v", perr.KindOf(err))
	}
}

func TestAcquireCacheLockSucceedsOnceReleased(t *testing.T) {
	root := t.TempDir()
	first, err := acquireCacheLock(root, 0)
	if err != nil {
		t.Fatalf("acquireCacheLock: %v", err)
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		first.release()
	}()

	second, err := acquireCacheLock(root, time.Second)
	if err != nil {
		t.Fatalf("acquireCacheLock after release: %v", err)
	}
	if err := second.release(); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestReleaseOnNilLockIsNoop(t *testing.T) {
	var l *cacheLock
	if err := l.release(); err != nil {
		t.Errorf("expected release on nil lock to be a no-op, got %v", err)
	}
}

func TestLockPathIsInsideRoot(t *testing.T) {
	root := t.TempDir()
	l, err := acquireCacheLock(root, 0)
	if err != nil {
		t.Fatalf("acquireCacheLock: %v", err)
	}
	defer l.release()
	if l.flock.Path() != filepath.Join(root, lockFileName) {
		t.Errorf("unexpected lock path %q", l.flock.Path())
	}
}
