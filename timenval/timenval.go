// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package timenval implements a time weighted running average.
//
// Each sample is weighted by the time it was valid for. Two update policies
// are supported: UpdateAverage where the new value is already an average
// over the elapsed interval, and UpdateSnapshot where the previous value is
// held over the elapsed interval before being replaced.
//
// Time is accounted in microseconds so that a 16 bits value can be
// accumulated for years without overflowing.
package timenval

import "time"

// TimeNVal is a time weighted accumulator.
//
// The zero value is usable; the first update only sets the reference time.
type TimeNVal struct {
	LastValue int64
	LastTS    time.Time
	// Sum is the sum of value * microseconds.
	Sum int64
	// Elapsed is the accumulated time, truncated to the microsecond.
	Elapsed time.Duration
	Avg     int64
}

// Start resets the accumulator with an initial value at ts.
func (t *TimeNVal) Start(value int64, ts time.Time) {
	*t = TimeNVal{LastValue: value, LastTS: ts, Avg: value}
}

// UpdateAverage accounts avg as the average value since the previous update.
func (t *TimeNVal) UpdateAverage(avg int64, ts time.Time) {
	us := t.advance(ts)
	t.Sum += avg * us
	t.LastValue = avg
	t.compute()
}

// UpdateSnapshot accounts the previous value as being held since the previous
// update, then replaces it with value.
func (t *TimeNVal) UpdateSnapshot(value int64, ts time.Time) {
	us := t.advance(ts)
	t.Sum += t.LastValue * us
	t.LastValue = value
	t.compute()
}

// ClearAverage drops the accumulated history. The last value and timestamp
// are kept so the next update continues from there.
func (t *TimeNVal) ClearAverage() {
	t.Sum = 0
	t.Elapsed = 0
	t.Avg = 0
}

// Average returns the time weighted average.
func (t *TimeNVal) Average() int64 {
	return t.Avg
}

// advance moves the reference time to ts and returns the elapsed time in
// microseconds. Time going backward counts as no time at all.
func (t *TimeNVal) advance(ts time.Time) int64 {
	var d time.Duration
	if !t.LastTS.IsZero() && ts.After(t.LastTS) {
		d = ts.Sub(t.LastTS).Truncate(time.Microsecond)
	}
	t.LastTS = ts
	t.Elapsed += d
	return int64(d / time.Microsecond)
}

func (t *TimeNVal) compute() {
	if us := int64(t.Elapsed / time.Microsecond); us > 0 {
		t.Avg = t.Sum / us
	} else {
		t.Avg = t.LastValue
	}
}
