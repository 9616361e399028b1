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

// Package interrupts centralizes protofetch's signal handling so that a
// SIGINT or SIGTERM during a fetch unwinds cleanly: in-flight tempfiles
// are unlinked, the cache's advisory lock is released, and no partial
// rename is left behind to confuse the next run's staleness check (see
// spec.md §5, "Cancellation"). The shape — a process-wide manager with
// Context/Run/OnInterrupt/Tick — mirrors k8s.io/test-infra's
// prow/interrupts package.
package interrupts

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	signalsLock sync.Mutex
	signals     = func() <-chan os.Signal {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		return c
	}
	gracePeriod = 5 * time.Second
)

type manager struct {
	once sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	wg sync.WaitGroup

	mu         sync.Mutex
	onInterupt []func()
	ticks      []chan struct{}
}

var global = &manager{}

func (m *manager) init() {
	m.once.Do(func() {
		m.ctx, m.cancel = context.WithCancel(context.Background())
		go func() {
			<-signals()
			logrus.Info("received interrupt, shutting down gracefully")
			m.mu.Lock()
			callbacks := append([]func(){}, m.onInterupt...)
			ticks := append([]chan struct{}{}, m.ticks...)
			m.mu.Unlock()

			m.cancel()
			for _, tick := range ticks {
				close(tick)
			}
			for _, cb := range callbacks {
				cb()
			}
		}()
	})
}

// Context returns the process-wide context, cancelled as soon as an
// interrupt is received. Long-running cache or network operations
// should select on ctx.Done() so they can abort promptly.
func Context() context.Context {
	global.init()
	return global.ctx
}

// Run executes work in a goroutine tracked by WaitForGracefulShutdown,
// passing it the process-wide context.
func Run(work func(ctx context.Context)) {
	global.init()
	global.wg.Add(1)
	go func() {
		defer global.wg.Done()
		work(global.ctx)
	}()
}

// OnInterrupt registers cleanup to run when an interrupt is received.
// Used by the cache to release its advisory lock and by the
// materializer to unlink any tempfile still open when SIGINT arrives.
func OnInterrupt(cleanup func()) {
	global.init()
	global.mu.Lock()
	global.onInterupt = append(global.onInterupt, cleanup)
	global.mu.Unlock()
}

// Tick calls work repeatedly, sleeping for interval() between calls,
// until an interrupt is received. The cache lock does not use this: its
// heartbeat log while blocked runs on its own time.Ticker, since Tick
// only stops on interrupt.
func Tick(work func(), interval func() time.Duration) {
	global.init()
	done := make(chan struct{})
	global.mu.Lock()
	global.ticks = append(global.ticks, done)
	global.mu.Unlock()

	global.wg.Add(1)
	go func() {
		defer global.wg.Done()
		for {
			select {
			case <-done:
				return
			case <-time.After(interval()):
				work()
			}
		}
	}()
}

// WaitForGracefulShutdown blocks until an interrupt has been received
// and all registered work has finished, or gracePeriod has elapsed
// since the interrupt, whichever comes first. It is a no-op (returns
// immediately) if called before any interrupt arrives and the process
// is simply exiting normally — callers invoke it via defer so that it
// only blocks on the signal path.
func WaitForGracefulShutdown() {
	global.init()
	select {
	case <-global.ctx.Done():
	default:
		return
	}
	doneCh := make(chan struct{})
	go func() {
		global.wg.Wait()
		close(doneCh)
	}()
	select {
	case <-doneCh:
	case <-time.After(gracePeriod):
		logrus.Warn("graceful shutdown timed out waiting for background work")
	}
}
