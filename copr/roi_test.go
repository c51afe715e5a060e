// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package copr

import (
	"bytes"
	"errors"
	"testing"

	"periph.io/x/panel/v3/copr/coprtest"
)

func TestROIValue_direct(t *testing.T) {
	roi := make([][4]uint32, 5)
	for i := range roi {
		roi[i] = [4]uint32{uint32(100 * i), uint32(100*i + 1), uint32(100*i + 2), uint32(100*i + 3)}
	}
	roi[4][White] = 200
	p := &coprtest.Panel{}
	p.SetResource(ResDSI, encodeRGBW(roi))
	d, _ := newTestDev(t, p, Opts{Version: V6, Assign: []string{"copr_en=1"}})
	if err := d.Enable(); err != nil {
		t.Fatal(err)
	}
	rois := []ROI{
		{0, 0, 1080, 2400},
		{0, 0, 100, 100},
		{100, 100, 200, 200},
		{200, 200, 300, 300},
		{300, 300, 400, 400},
	}
	out, err := d.ROIValue(rois)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 5 {
		t.Fatalf("len = %d", len(out))
	}
	for i := range out {
		if len(out[i]) != 4 {
			t.Fatalf("out[%d] = %v", i, out[i])
		}
		for c := range out[i] {
			if out[i][c] != roi[i][c] {
				t.Errorf("out[%d][%d] = %d, want %d", i, c, out[i][c], roi[i][c])
			}
			if i == 4 && c == White {
				if out[i][c] > 255 {
					t.Errorf("last white is %d", out[i][c])
				}
			} else if out[i][c] > 1023 {
				t.Errorf("out[%d][%d] = %d", i, c, out[i][c])
			}
		}
	}
	if n := p.Count(SeqGetDSI); n != 1 {
		t.Fatalf("%d gets", n)
	}
	if n := p.Count(SeqSet); n != 1 {
		t.Fatalf("%d sets", n)
	}
	r := d.Reg().(*RegV6)
	if r.ROIOn != 0x1F || r.ROI[2] != rois[2] {
		t.Fatalf("Reg() = %+v", r)
	}
}

func TestROIValue_directProgrammed(t *testing.T) {
	p := &coprtest.Panel{On: true}
	p.SetResource(ResDSI, encodeV5(Data{}))
	d, _ := newTestDev(t, p, Opts{Version: V5, Assign: []string{"copr_en=1"}})
	if err := d.Enable(); err != nil {
		t.Fatal(err)
	}
	out, err := d.ROIValue([]ROI{{0, 0, 10, 10}, {10, 10, 20, 20}})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || len(out[0]) != 3 {
		t.Fatalf("ROIValue() = %v", out)
	}
	// The display init sequence already programmed the block.
	if n := p.Count(SeqSet); n != 0 {
		t.Fatalf("%d sets", n)
	}
	// The image still describes what the hardware holds.
	if r := d.Reg().(*RegV5); r.ROIOn != 0 || r.ROI[0] != (ROI{}) {
		t.Fatalf("Reg() = %+v", r)
	}
	for i := 0; i < 3; i++ {
		if err := d.Update(); err != nil {
			t.Fatal(err)
		}
	}
	if n := p.Count(SeqSet); n != 0 {
		t.Fatalf("%d sets", n)
	}
	if s := d.Props().State; s != RegOn {
		t.Fatalf("State = %s", s)
	}
	// SetROI goes through the next measurement.
	rois := []ROI{{0, 0, 10, 10}}
	if err := d.SetROI(rois); err != nil {
		t.Fatal(err)
	}
	if _, err := d.ROIValue(rois); err != nil {
		t.Fatal(err)
	}
	if n := p.Count(SeqSet); n != 1 {
		t.Fatalf("%d sets", n)
	}
	b, err := d.Payload()
	if err != nil {
		t.Fatal(err)
	}
	u, err := Unpack(V5, b)
	if err != nil {
		t.Fatal(err)
	}
	if r := u.(*RegV5); r.ROIOn != 1 || r.ROI[0] != rois[0] {
		t.Fatalf("programmed %+v", r)
	}
}

// iterativePanel answers each probe with the region's x_s plus the probed
// color index.
func iterativePanel(p *coprtest.Panel, d *Dev, failAt int) {
	ver := d.opts.Version
	gets := 0
	p.OnExecute = func(name string) error {
		switch name {
		case SeqSet:
			b, err := d.Payload()
			if err != nil {
				return err
			}
			r, err := Unpack(ver, b)
			if err != nil {
				return err
			}
			field := func(name string) uint32 {
				i, _ := ver.FindField(name)
				return *FieldRef(r, i)
			}
			v := field("copr_roi_x_s=")
			switch {
			case field("copr_eg=") != 0:
				v++
			case field("copr_eb=") != 0:
				v += 2
			}
			p.SetResource(ResDSI, encodeV2DSI(Data{Ready: true, CurCopr: v}))
		case SeqGetDSI:
			gets++
			if gets == failAt {
				return errors.New("crc mismatch")
			}
		}
		return nil
	}
}

func TestROIValue_iterative(t *testing.T) {
	p := &coprtest.Panel{}
	p.SetResource(ResDSI, encodeV2DSI(Data{}))
	d, _ := newTestDev(t, p, Opts{Version: V1, Assign: []string{"copr_er=0x100", "copr_eg=0x200", "copr_roi_x_e=1080"}})
	iterativePanel(p, d, 0)
	before := regBytes(d.Reg())
	out, err := d.ROIValue([]ROI{{10, 0, 20, 20}, {40, 0, 60, 20}})
	if err != nil {
		t.Fatal(err)
	}
	want := [][]uint32{{10, 11, 12}, {40, 41, 42}}
	for i := range want {
		for c := range want[i] {
			if out[i][c] != want[i][c] {
				t.Fatalf("ROIValue() = %v, want %v", out, want)
			}
		}
	}
	if n := p.Count(SeqGetDSI); n != 6 {
		t.Fatalf("%d gets", n)
	}
	// One set per probe plus the restore.
	if n := p.Count(SeqSet); n != 7 {
		t.Fatalf("%d sets", n)
	}
	if !bytes.Equal(before, regBytes(d.Reg())) {
		t.Fatal("register image not restored")
	}
	payload, err := d.Payload()
	if err != nil {
		t.Fatal(err)
	}
	want2, err := Pack(d.Reg())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(payload, want2) {
		t.Fatal("hardware not restored")
	}
	// copr_en was 0 in the saved image.
	if s := d.Props().State; s != RegOff {
		t.Fatalf("State = %s", s)
	}
}

func TestROIValue_iterativeError(t *testing.T) {
	p := &coprtest.Panel{}
	p.SetResource(ResDSI, encodeV2DSI(Data{}))
	d, _ := newTestDev(t, p, Opts{Version: V2, Assign: []string{"copr_en=1", "copr_ebc=3"}})
	iterativePanel(p, d, 3)
	before := regBytes(d.Reg())
	if _, err := d.ROIValue([]ROI{{10, 0, 20, 20}}); !errors.Is(err, ErrIO) {
		t.Fatalf("ROIValue() = %v", err)
	}
	if !bytes.Equal(before, regBytes(d.Reg())) {
		t.Fatal("register image not restored")
	}
	if s := d.Props().State; s != RegOn {
		t.Fatalf("State = %s", s)
	}
}

func TestROIValue_invalid(t *testing.T) {
	data := []struct {
		v Version
		n int
	}{
		{V0, 1},
		{V1, 0},
		{V1, 7},
		{V5, 6},
		{V6, 6},
		{V0_1, 3},
	}
	for _, line := range data {
		p := &coprtest.Panel{}
		d, _ := newTestDev(t, p, Opts{Version: line.v})
		if _, err := d.ROIValue(make([]ROI, line.n)); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("%s: ROIValue(%d) = %v", line.v, line.n, err)
		}
		if len(p.Seqs) != 0 {
			t.Errorf("%s: Seqs = %v", line.v, p.Seqs)
		}
	}
}

func TestSetROI(t *testing.T) {
	d, _ := newTestDev(t, &coprtest.Panel{}, Opts{Version: V6, Assign: []string{"copr_roi1_er=5", "copr_roi4_x_e=9"}})
	rois := []ROI{{1, 2, 3, 4}, {5, 6, 7, 8}, {9, 10, 11, 12}}
	if err := d.SetROI(rois); err != nil {
		t.Fatal(err)
	}
	r := d.Reg().(*RegV6)
	if r.ROIOn != 0x07 || r.ROI[1] != rois[1] || r.ROI[3] != (ROI{}) {
		t.Fatalf("Reg() = %+v", r)
	}
	if r.Eff[0].Er != 5 {
		t.Fatal("efficiencies were reset")
	}
	if err := d.SetROI(nil); err != nil {
		t.Fatal(err)
	}
	r = d.Reg().(*RegV6)
	if r.ROIOn != 0 || r.ROI != [5]ROI{} || r.Eff != [5]Efficiency{} {
		t.Fatalf("Reg() = %+v", r)
	}
	if err := d.SetROI(make([]ROI, 6)); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("SetROI() = %v", err)
	}
}

func TestSetROI_slots(t *testing.T) {
	for _, line := range []struct {
		v     Version
		slots int
	}{
		{V1, 1},
		{V2, 1},
		{V3, 6},
		{V5, 5},
		{V0_1, 2},
	} {
		r := NewReg(line.v)
		if err := setROI(r, make([]ROI, line.slots)); err != nil {
			t.Fatalf("%s: %v", line.v, err)
		}
		i, err := line.v.FindField("copr_roi_on=")
		if err != nil {
			t.Fatal(err)
		}
		if m := *FieldRef(r, i); m != uint32(1)<<uint(line.slots)-1 {
			t.Errorf("%s: roi_on = %#x", line.v, m)
		}
		if err := setROI(r, make([]ROI, line.slots+1)); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("%s: setROI() = %v", line.v, err)
		}
	}
	if err := setROI(NewReg(V0), nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("setROI() = %v", err)
	}
}
