// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package copr

import (
	"sync"
	"time"
)

// worker samples the panel once per frame while it has pending samples.
//
// Lock order is Dev.mu then worker.mu; the worker never holds its own lock
// while taking the device lock.
type worker struct {
	// Immutable.
	d      *Dev
	period time.Duration
	done   chan struct{}

	mu         sync.Mutex
	cond       *sync.Cond
	count      int
	shouldStop bool
}

func newWorker(d *Dev, period time.Duration) *worker {
	w := &worker{d: d, period: period, done: make(chan struct{})}
	w.cond = sync.NewCond(&w.mu)
	go w.run()
	return w
}

// kick requests count samples.
func (w *worker) kick(count int) {
	w.mu.Lock()
	w.count = count
	w.mu.Unlock()
	w.cond.Broadcast()
}

// wake reevaluates the wait condition, e.g. after enable.
func (w *worker) wake() {
	w.mu.Lock()
	w.mu.Unlock()
	w.cond.Broadcast()
}

// stop terminates the worker and waits for it to exit.
func (w *worker) stop() {
	w.mu.Lock()
	w.shouldStop = true
	w.mu.Unlock()
	w.cond.Broadcast()
	<-w.done
}

// Must be called with mu held.
func (w *worker) ready() bool {
	return w.count > 0 && w.d.enabled.Load() && w.d.sampled()
}

func (w *worker) run() {
	defer close(w.done)
	for {
		w.mu.Lock()
		for !w.shouldStop && !w.ready() {
			w.cond.Wait()
		}
		if w.shouldStop {
			w.mu.Unlock()
			return
		}
		w.count--
		w.mu.Unlock()

		w.d.mu.Lock()
		if err := w.d.update(); err != nil {
			logf("%s: update failed: %v", w.d, err)
		}
		w.d.mu.Unlock()
		w.d.clk.Sleep(w.period)
	}
}
