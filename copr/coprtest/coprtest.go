// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package coprtest is meant to be used to test drivers using a COPR block.
package coprtest

import (
	"errors"
	"sync"
	"time"
)

// Panel implements copr.Panel with scripted readbacks.
//
// Grab the Mutex before accessing the members after the Panel is in use.
type Panel struct {
	sync.Mutex
	// On is returned by DisplayOn.
	On bool
	// Resources is the content returned by ReadResource, by name.
	Resources map[string][]byte
	// Errs forces ExecuteSequence to fail for the named sequences.
	Errs map[string]error
	// Delay is slept by every ExecuteSequence, without the lock held.
	Delay time.Duration
	// OnExecute is called by ExecuteSequence without the lock held, before
	// the sequence is accounted. It can update Resources.
	OnExecute func(name string) error

	// Seqs is the log of executed sequences.
	Seqs []string
	// MaxInFlight is the maximum number of concurrent ExecuteSequence calls
	// observed.
	MaxInFlight int

	inFlight int
}

// ExecuteSequence implements copr.Panel.
func (p *Panel) ExecuteSequence(name string) error {
	p.Lock()
	p.inFlight++
	if p.inFlight > p.MaxInFlight {
		p.MaxInFlight = p.inFlight
	}
	err := p.Errs[name]
	d := p.Delay
	hook := p.OnExecute
	p.Unlock()

	defer func() {
		p.Lock()
		p.inFlight--
		p.Unlock()
	}()
	if d != 0 {
		time.Sleep(d)
	}
	if err != nil {
		return err
	}
	if hook != nil {
		if err := hook(name); err != nil {
			return err
		}
	}
	p.Lock()
	p.Seqs = append(p.Seqs, name)
	p.Unlock()
	return nil
}

// ResourceSize implements copr.Panel.
func (p *Panel) ResourceSize(name string) (int, error) {
	p.Lock()
	defer p.Unlock()
	b, ok := p.Resources[name]
	if !ok {
		return 0, errors.New("coprtest: unknown resource " + name)
	}
	return len(b), nil
}

// ReadResource implements copr.Panel.
func (p *Panel) ReadResource(name string, b []byte) error {
	p.Lock()
	defer p.Unlock()
	r, ok := p.Resources[name]
	if !ok {
		return errors.New("coprtest: unknown resource " + name)
	}
	if len(b) != len(r) {
		return errors.New("coprtest: unexpected read size for " + name)
	}
	copy(b, r)
	return nil
}

// DisplayOn implements copr.Panel.
func (p *Panel) DisplayOn() bool {
	p.Lock()
	defer p.Unlock()
	return p.On
}

// SetResource replaces the content of a resource.
func (p *Panel) SetResource(name string, b []byte) {
	p.Lock()
	defer p.Unlock()
	if p.Resources == nil {
		p.Resources = map[string][]byte{}
	}
	p.Resources[name] = append([]byte(nil), b...)
}

// Count returns the number of times the named sequence was executed
// successfully.
func (p *Panel) Count(name string) int {
	p.Lock()
	defer p.Unlock()
	n := 0
	for _, s := range p.Seqs {
		if s == name {
			n++
		}
	}
	return n
}

// Reset clears the sequence log.
func (p *Panel) Reset() {
	p.Lock()
	defer p.Unlock()
	p.Seqs = nil
	p.MaxInFlight = 0
}
