// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package panelseq

import (
	"fmt"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// tePoll bounds each edge wait so Halt is noticed even on pins that can't
// interrupt WaitForEdge.
const tePoll = 100 * time.Millisecond

// TE watches the tearing effect output of a panel, which pulses once per
// frame.
type TE struct {
	// Immutable.
	pin  gpio.PinIn
	fn   func()
	done chan struct{}

	stop atomic.Bool
}

// WatchTE configures pin for rising edges and calls fn from a goroutine on
// each of them until Halt.
func WatchTE(pin gpio.PinIn, fn func()) (*TE, error) {
	if err := pin.In(gpio.PullNoChange, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("panelseq: TE %s: %w", pin, err)
	}
	t := &TE{pin: pin, fn: fn, done: make(chan struct{})}
	go t.run()
	return t, nil
}

func (t *TE) String() string {
	return t.pin.String()
}

// Halt implements conn.Resource.
//
// It returns once fn can't be called anymore.
func (t *TE) Halt() error {
	t.stop.Store(true)
	err := t.pin.Halt()
	<-t.done
	return err
}

func (t *TE) run() {
	defer close(t.done)
	for !t.stop.Load() {
		if t.pin.WaitForEdge(tePoll) && !t.stop.Load() {
			t.fn()
		}
	}
}
