// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package copr

import "fmt"

const (
	// maxIterativeROI is the maximum number of regions probed one at a time
	// on V1 and V2.
	maxIterativeROI = 6
	// probeEfficiency is the unity weight programmed on the probed color.
	probeEfficiency = 0x400
)

// SetROI programs the regions in the register image and sets the region
// enable mask accordingly. A nil slice disables and zeroes all the regions.
//
// The hardware is reprogrammed by the next measurement.
func (d *Dev) SetROI(rois []ROI) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := setROI(d.reg, rois); err != nil {
		return err
	}
	d.props.State = Uninitialized
	return nil
}

// ROIValue measures each region and returns one slice of color readings per
// region: R, G, B on V1, V2, V3 and V5; R, G, B, W on V6 and V0_1.
//
// V3, V5, V6 and V0_1 read all the regions in a single measurement. The
// regions are only programmed when the registers are not already, e.g.
// right after Enable with the display off. Otherwise the register image is
// left untouched and the readings are for the regions the hardware holds;
// call SetROI first to change them.
//
// V1 and V2 have a single region slot, so each region and color is probed
// with its own measurement and 34ms settle delay. The register image is then
// restored and programmed again, which costs one more settle delay.
func (d *Dev) ROIValue(rois []ROI) ([][]uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.props.Support {
		return nil, ErrNoDevice
	}
	v := d.props.Version
	if len(rois) == 0 || len(rois) > v.MaxROI() {
		return nil, fmt.Errorf("copr: %d regions on %s: %w", len(rois), v, ErrInvalidArgument)
	}
	switch {
	case v.directROI():
		return d.roiDirect(rois)
	case v == V1 || v == V2:
		return d.roiIterative(rois)
	default:
		return nil, fmt.Errorf("copr: %s has no region support: %w", v, ErrInvalidArgument)
	}
}

// roiDirect programs all the regions when needed and reads them back at once.
//
// Must be called with mu held.
func (d *Dev) roiDirect(rois []ROI) ([][]uint32, error) {
	if d.props.State == Uninitialized {
		if err := setROI(d.reg, rois); err != nil {
			return nil, err
		}
		if err := d.set(); err != nil {
			return nil, err
		}
	}
	if err := d.get(); err != nil {
		return nil, err
	}
	colors := d.props.Version.ROIColors()
	out := make([][]uint32, len(rois))
	for i := range out {
		out[i] = append([]uint32(nil), d.props.Data.ROI[i][:colors]...)
	}
	return out, nil
}

// roiIterative probes the regions one color at a time through the single
// region slot.
//
// Must be called with mu held.
func (d *Dev) roiIterative(rois []ROI) (out [][]uint32, err error) {
	saved := cloneReg(d.reg)
	defer func() {
		restoreReg(d.reg, saved)
		// Put the hardware back in the configuration the image describes.
		if err2 := d.set(); err2 != nil {
			logf("%s: restore failed: %v", d, err2)
		}
	}()
	out = make([][]uint32, len(rois))
	for i := range rois {
		out[i] = make([]uint32, 3)
		if err = setROI(d.reg, rois[i:i+1]); err != nil {
			return nil, err
		}
		for c := Red; c <= Blue; c++ {
			setProbe(d.reg, c)
			if err = d.set(); err != nil {
				return nil, err
			}
			if err = d.get(); err != nil {
				return nil, err
			}
			out[i][c] = d.props.Data.CurCopr
		}
	}
	return out, nil
}

// setProbe enables COPR and weights only the color c.
func setProbe(r Reg, c int) {
	var e [3]uint32
	e[c] = probeEfficiency
	switch t := r.(type) {
	case *RegV1:
		t.En = 1
		t.Er, t.Eg, t.Eb = e[Red], e[Green], e[Blue]
	case *RegV2:
		t.En = 1
		t.Er, t.Eg, t.Eb = e[Red], e[Green], e[Blue]
		t.Erc, t.Egc, t.Ebc = e[Red], e[Green], e[Blue]
	}
}

// setROI writes rois into r. A nil slice clears all the regions.
func setROI(r Reg, rois []ROI) error {
	v := r.Version()
	if len(rois) > v.roiSlots() {
		return fmt.Errorf("copr: %d regions on %s: %w", len(rois), v, ErrInvalidArgument)
	}
	mask := uint32(1)<<uint(len(rois)) - 1
	switch t := r.(type) {
	case *RegV1:
		t.ROI, t.ROIOn = ROI{}, mask
		if len(rois) != 0 {
			t.ROI = rois[0]
		}
	case *RegV2:
		t.ROI, t.ROIOn = ROI{}, mask
		if len(rois) != 0 {
			t.ROI = rois[0]
		}
	case *RegV3:
		t.ROI, t.ROIOn = [6]ROI{}, mask
		copy(t.ROI[:], rois)
	case *RegV5:
		t.ROI, t.ROIOn = [5]ROI{}, mask
		copy(t.ROI[:], rois)
	case *RegV6:
		t.ROI, t.ROIOn = [5]ROI{}, mask
		copy(t.ROI[:], rois)
		if rois == nil {
			t.Eff = [5]Efficiency{}
		}
	case *RegV0_1:
		t.ROI, t.ROIOn = [2]ROI{}, mask
		copy(t.ROI[:], rois)
		if rois == nil {
			t.Eff = [2]Efficiency{}
		}
	default:
		return fmt.Errorf("copr: %s has no region support: %w", v, ErrInvalidArgument)
	}
	return nil
}
