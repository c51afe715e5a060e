// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package copr

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/panel/v3/timenval"
)

var (
	// ErrNoDevice is returned when the panel has no COPR block.
	ErrNoDevice = errors.New("no such device")
	// ErrIO is returned when COPR is disabled or a transfer failed.
	ErrIO = errors.New("I/O error")
	// ErrInvalidArgument is returned on a bad parameter or when the operation
	// is not allowed in the current state.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound is returned by field lookups that matched nothing.
	ErrNotFound = errors.New("not found")
)

// settleTime is the delay between programming the registers and the first
// valid readback.
const settleTime = 34 * time.Millisecond

// Panel is the DDI the COPR block lives in.
//
// panelseq.Panel implements it over a periph bus; coprtest.Panel is a fake.
type Panel interface {
	// ExecuteSequence runs the named command sequence.
	ExecuteSequence(name string) error
	// ResourceSize returns the size of the named readback resource.
	ResourceSize(name string) (int, error)
	// ReadResource copies the bytes latched by the last read into b.
	ReadResource(name string, b []byte) error
	// DisplayOn returns true when the panel init sequence ran.
	DisplayOn() bool
}

// State is the hardware state as known by the driver.
type State uint8

const (
	// Uninitialized means the registers were not programmed since enable.
	Uninitialized State = iota
	// RegOn means the registers were programmed with COPR enabled.
	RegOn
	// RegOff means the registers were programmed with COPR disabled.
	RegOff
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case RegOn:
		return "RegOn"
	case RegOff:
		return "RegOff"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// Opts is the per panel configuration.
type Opts struct {
	// Name is used in String(). Defaults to "copr".
	Name      string
	Version   Version
	Transport Transport
	// Reg is the initial register image. It must be of Version. A zeroed
	// image is used when nil.
	Reg Reg
	// Assign is a list of "name=value" applied on top of Reg.
	Assign []string
	// ClearCount resets the hardware frame counter after each averaged
	// readout, so avg_copr only covers the frames since the last read. The
	// poll worker then only samples V0 and V1.
	ClearCount bool
	// FrameRate is the panel refresh rate; the poll worker samples once per
	// frame. Defaults to 60Hz.
	FrameRate physic.Frequency
	// Clock defaults to the real clock.
	Clock clockwork.Clock
	// Notify is called outside the lock each time COPR is enabled or
	// disabled.
	Notify func(enabled bool)
	// Poll starts the per frame sampler. See ClearCount.
	Poll bool
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	Name:      "copr",
	Version:   V2,
	Transport: DSI,
	FrameRate: 60 * physic.Hertz,
}

// Props is a snapshot of the device state.
type Props struct {
	Version   Version
	Transport Transport
	State     State
	Support   bool
	Enabled   bool
	Data      Data
}

// Dev is the COPR block of one panel.
//
// All the methods are safe to call concurrently. At most one measurement is
// in flight at a time; callers queue on the device lock, including across
// the hardware settle delays.
type Dev struct {
	// Immutable after initialization.
	p    Panel
	opts Opts
	clk  clockwork.Clock
	dec  decoder
	w    *worker

	// stop aborts get() during teardown. Not protected by mu.
	stop atomic.Bool
	// enabled mirrors props.Enabled for the worker.
	enabled atomic.Bool

	// payload is the image packed by the last set(), served by Payload()
	// while the set sequence runs.
	pmu     sync.Mutex
	payload []byte

	mu sync.Mutex
	// Mutable.
	reg   Reg
	props Props
	res   timenval.TimeNVal
}

// New returns a COPR device driven through p.
//
// A nil p returns a device without COPR support; all its operations fail
// with ErrNoDevice.
func New(p Panel, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	v := opts.Version
	if !v.valid() {
		return nil, fmt.Errorf("copr: unknown %s: %w", v, ErrInvalidArgument)
	}
	d := &Dev{p: p, opts: *opts, clk: opts.Clock}
	if d.opts.Name == "" {
		d.opts.Name = "copr"
	}
	if d.opts.FrameRate <= 0 {
		d.opts.FrameRate = 60 * physic.Hertz
	}
	if d.clk == nil {
		d.clk = clockwork.NewRealClock()
	}
	if opts.Reg != nil {
		if opts.Reg.Version() != v {
			return nil, fmt.Errorf("copr: register image is %s, expected %s: %w", opts.Reg.Version(), v, ErrInvalidArgument)
		}
		d.reg = cloneReg(opts.Reg)
	} else {
		d.reg = NewReg(v)
	}
	for _, a := range opts.Assign {
		if err := SetField(d.reg, a); err != nil {
			return nil, err
		}
	}
	dec, err := decoderFor(v, opts.Transport)
	if err != nil {
		return nil, err
	}
	d.dec = dec
	d.props = Props{Version: v, Transport: opts.Transport, Support: p != nil}
	if d.opts.Poll && d.props.Support && d.sampled() {
		d.w = newWorker(d, d.opts.FrameRate.Period())
	}
	return d, nil
}

func (d *Dev) String() string {
	return d.opts.Name
}

// Halt implements conn.Resource.
//
// It aborts any in flight readback, stops the poll worker and disables
// COPR. The device can't be used afterward.
func (d *Dev) Halt() error {
	d.stop.Store(true)
	if d.w != nil {
		d.w.stop()
	}
	if err := d.Disable(); err != nil && !errors.Is(err, ErrNoDevice) {
		return err
	}
	return nil
}

// Enable enables COPR.
//
// When the display is on, the init sequence already programmed the
// registers, otherwise they are programmed by the first measurement.
func (d *Dev) Enable() error {
	d.mu.Lock()
	changed, err := d.enable()
	d.mu.Unlock()
	if changed {
		d.notify(true)
	}
	return err
}

// Disable disables COPR. V0 and V1 take one last sample first.
func (d *Dev) Disable() error {
	d.mu.Lock()
	changed, err := d.disable()
	d.mu.Unlock()
	if changed {
		d.notify(false)
	}
	return err
}

// Props returns a snapshot of the device state.
func (d *Dev) Props() Props {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.props
}

// Value returns the last decoded measurement.
func (d *Dev) Value() Data {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.props.Data
}

// Reg returns a copy of the current register image.
func (d *Dev) Reg() Reg {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cloneReg(d.reg)
}

// SetReg replaces the register image. The hardware is reprogrammed by the
// next measurement.
func (d *Dev) SetReg(r Reg) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r == nil || !restoreReg(d.reg, r) {
		return fmt.Errorf("copr: register image mismatch: %w", ErrInvalidArgument)
	}
	d.props.State = Uninitialized
	return nil
}

// UpdateField applies a "name=value" assignment to the register image.
func (d *Dev) UpdateField(assign string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := SetField(d.reg, assign); err != nil {
		return err
	}
	d.props.State = Uninitialized
	return nil
}

// Payload returns the packed register image as programmed by the last set.
//
// It is meant to be bound as the payload source of the set sequence and
// doesn't take the device lock.
func (d *Dev) Payload() ([]byte, error) {
	d.pmu.Lock()
	defer d.pmu.Unlock()
	if d.payload == nil {
		return nil, fmt.Errorf("copr: registers were never set: %w", ErrInvalidArgument)
	}
	return append([]byte(nil), d.payload...), nil
}

// Set programs the register image and updates the state from its enable bit.
func (d *Dev) Set() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.set()
}

// Get reads back and decodes one measurement. The registers must have been
// programmed with COPR enabled.
func (d *Dev) Get() (Data, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.get()
	return d.props.Data, err
}

// Update takes one measurement and feeds the time weighted average.
func (d *Dev) Update() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.update()
}

// GetAverageAndClear takes one measurement, then returns the time weighted
// average since the previous call and restarts the averaging window.
func (d *Dev) GetAverageAndClear() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.update(); err != nil {
		return 0, err
	}
	avg := d.res.Average()
	d.res.ClearAverage()
	return uint32(avg), nil
}

// UpdateStart asks the poll worker to take count samples, one per frame.
//
// It is a no-op when no worker runs: Opts.Poll is false, or Opts.ClearCount
// is set on V2 and later.
func (d *Dev) UpdateStart(count int) {
	if d.w != nil {
		d.w.kick(count)
	}
}

// sampled returns true when the poll worker takes per frame samples. With
// the hardware counter reset, only V0 and V1 lack a hardware average.
func (d *Dev) sampled() bool {
	return !d.opts.ClearCount || d.opts.Version.polled()
}

func (d *Dev) notify(enabled bool) {
	if d.w != nil {
		d.w.wake()
	}
	if d.opts.Notify != nil {
		d.opts.Notify(enabled)
	}
}

// Must be called with mu held.
func (d *Dev) enable() (bool, error) {
	if !d.props.Support {
		return false, ErrNoDevice
	}
	if d.props.Enabled {
		return false, nil
	}
	if d.p.DisplayOn() {
		d.props.State = RegOn
	} else {
		d.props.State = Uninitialized
	}
	d.res.Start(int64(d.props.Data.CurCopr), d.clk.Now())
	d.props.Enabled = true
	d.enabled.Store(true)
	logf("%s: enabled, %s", d, d.props.State)
	return true, nil
}

// Must be called with mu held.
func (d *Dev) disable() (bool, error) {
	if !d.props.Support {
		return false, ErrNoDevice
	}
	if !d.props.Enabled {
		return false, nil
	}
	if d.props.Version.polled() {
		if err := d.update(); err != nil {
			logf("%s: last update failed: %v", d, err)
		}
	}
	d.props.State = Uninitialized
	d.props.Enabled = false
	d.enabled.Store(false)
	logf("%s: disabled", d)
	return true, nil
}

// set pushes the register image to the DDI.
//
// Must be called with mu held.
func (d *Dev) set() error {
	if !d.props.Support {
		return ErrNoDevice
	}
	b, err := Pack(d.reg)
	if err != nil {
		return err
	}
	d.pmu.Lock()
	d.payload = b
	d.pmu.Unlock()
	if err := d.p.ExecuteSequence(SeqSet); err != nil {
		return fmt.Errorf("copr: %s: %w: %w", SeqSet, ErrIO, err)
	}
	d.clk.Sleep(settleTime)
	if enField(d.reg) != 0 {
		d.props.State = RegOn
	} else {
		d.props.State = RegOff
	}
	logf("%s: set, %s", d, d.props.State)
	return nil
}

// get reads back one measurement.
//
// Must be called with mu held.
func (d *Dev) get() error {
	if !d.props.Support {
		return ErrNoDevice
	}
	if d.props.State != RegOn {
		return fmt.Errorf("copr: state is %s: %w", d.props.State, ErrInvalidArgument)
	}
	if d.stop.Load() {
		return fmt.Errorf("copr: stopping: %w", ErrInvalidArgument)
	}
	start := d.clk.Now()
	seq := d.props.Transport.getSeq()
	if err := d.p.ExecuteSequence(seq); err != nil {
		return fmt.Errorf("copr: %s: %w: %w", seq, ErrIO, err)
	}
	name := d.props.Transport.resource()
	size, err := d.p.ResourceSize(name)
	if err != nil {
		return fmt.Errorf("copr: %s: %w: %w", name, ErrIO, err)
	}
	if size < d.dec.size {
		return fmt.Errorf("copr: %s is %d bytes, expected %d: %w", name, size, d.dec.size, ErrIO)
	}
	buf := make([]byte, size)
	if err := d.p.ReadResource(name, buf); err != nil {
		return fmt.Errorf("copr: %s: %w: %w", name, ErrIO, err)
	}
	var data Data
	d.dec.decode(buf, &data)
	d.props.Data = data
	logf("%s: get %+v in %s", d, data, d.clk.Since(start))
	return nil
}

// update takes a measurement and feeds the accumulator.
//
// Must be called with mu held.
func (d *Dev) update() error {
	if !d.props.Support {
		return ErrNoDevice
	}
	if !d.props.Enabled {
		return fmt.Errorf("copr: disabled: %w", ErrIO)
	}
	if d.props.State == Uninitialized {
		if err := d.set(); err != nil {
			return err
		}
	}
	if err := d.get(); err != nil {
		return err
	}
	now := d.clk.Now()
	if d.props.Version.averaging() {
		if d.opts.ClearCount {
			if err := d.clearCount(); err != nil {
				return err
			}
		}
		d.res.UpdateAverage(int64(d.props.Data.AvgCopr), now)
	} else {
		d.res.UpdateSnapshot(int64(d.props.Data.CurCopr), now)
	}
	return nil
}

// clearCount pulses the hardware counter reset.
func (d *Dev) clearCount() error {
	for _, seq := range []string{SeqClearCountOn, SeqClearCountOff} {
		if err := d.p.ExecuteSequence(seq); err != nil {
			return fmt.Errorf("copr: %s: %w: %w", seq, ErrIO, err)
		}
	}
	return nil
}
