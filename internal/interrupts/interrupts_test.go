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

package interrupts

import (
	"context"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"
)

// interrupt lets the test trigger an interrupt without sending a real
// signal to the test process.
var interrupt = make(chan os.Signal, 1)

// this init runs before any call into the package under test, so we can
// inject our fake signal source before the manager's singleton fires.
func init() {
	signalsLock.Lock()
	gracePeriod = time.Second
	signals = func() <-chan os.Signal {
		return interrupt
	}
	signalsLock.Unlock()
}

// Writing a test harness that resets the singleton between cases is not
// worth the complexity it would add; like the teacher package, this is
// a single integration test that fires the injected interrupt once.
func TestInterrupts(t *testing.T) {
	lock := sync.Mutex{}

	ctx := Context()
	var ctxDone bool
	go func() {
		<-ctx.Done()
		lock.Lock()
		ctxDone = true
		lock.Unlock()
	}()

	var workDone, workCancelled bool
	Run(func(ctx context.Context) {
		lock.Lock()
		workDone = true
		lock.Unlock()
		<-ctx.Done()
		lock.Lock()
		workCancelled = true
		lock.Unlock()
	})

	var tickCalls int
	var intervalCalls int
	interval := func() time.Duration {
		lock.Lock()
		intervalCalls++
		n := intervalCalls
		lock.Unlock()
		if n > 2 {
			return 10 * time.Hour
		}
		return time.Nanosecond
	}
	Tick(func() {
		lock.Lock()
		tickCalls++
		lock.Unlock()
	}, interval)
	time.Sleep(100 * time.Millisecond)

	var onInterruptCalled bool
	OnInterrupt(func() {
		lock.Lock()
		onInterruptCalled = true
		lock.Unlock()
	})

	done := sync.WaitGroup{}
	done.Add(1)
	go func() {
		WaitForGracefulShutdown()
		done.Done()
	}()

	lock.Lock()
	if onInterruptCalled {
		t.Error("OnInterrupt callback ran before the interrupt was sent")
	}
	lock.Unlock()

	interrupt <- syscall.Signal(1)
	done.Wait()

	lock.Lock()
	defer lock.Unlock()
	if !ctxDone {
		t.Error("Context() was not cancelled on interrupt")
	}
	if !workDone {
		t.Error("Run() work never started")
	}
	if !workCancelled {
		t.Error("Run() work was not cancelled on interrupt")
	}
	if !onInterruptCalled {
		t.Error("OnInterrupt callback did not run on interrupt")
	}
	if tickCalls == 0 {
		t.Error("Tick() never called work before the interrupt stopped it")
	}
}
