// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package coprsmoketest is leveraged by coprctl to verify that the COPR block
// of a panel is working as expected.
package coprsmoketest

import (
	"errors"
	"flag"
	"fmt"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/panel/v3/copr"
	"periph.io/x/panel/v3/panelseq"
)

// SmokeTest is imported by coprctl.
type SmokeTest struct {
}

// Name implements the SmokeTest interface.
func (s *SmokeTest) Name() string {
	return "copr"
}

// Description implements the SmokeTest interface.
func (s *SmokeTest) Description() string {
	return "Tests the COPR block of a panel"
}

// Run implements the SmokeTest interface.
//
// The host drivers must have been initialized.
func (s *SmokeTest) Run(f *flag.FlagSet, args []string) (err error) {
	port := f.String("spi", "", "SPI port the DDI is connected to")
	hz := f.Int64("hz", 1000000, "SPI bus speed in Hz")
	ver := f.String("version", "V6", "COPR register generation, i.e. V2 or V6")
	tr := f.String("transport", "spi", "readback transport, dsi or spi")
	te := f.String("te", "", "tearing effect GPIO pin, optional")
	width := f.Uint("width", 1080, "active area width")
	height := f.Uint("height", 2400, "active area height")
	if err := f.Parse(args); err != nil {
		return err
	}
	if f.NArg() != 0 {
		f.Usage()
		return errors.New("unrecognized arguments")
	}
	v, err := copr.ParseVersion(*ver)
	if err != nil {
		return err
	}
	t, err := copr.ParseTransport(*tr)
	if err != nil {
		return err
	}

	p, err := spireg.Open(*port)
	if err != nil {
		return err
	}
	defer func() {
		if err2 := p.Close(); err == nil {
			err = err2
		}
	}()
	c, err := p.Connect(physic.Frequency(*hz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		return err
	}
	ps := panelseq.New(c, nil)
	d, err := copr.New(&loggingPanel{ps}, &copr.Opts{Version: v, Transport: t, Assign: []string{"copr_en=1"}})
	if err != nil {
		return err
	}
	defer func() {
		if err2 := d.Halt(); err == nil {
			err = err2
		}
	}()
	if err := ps.SetupCOPR(v, t, d.Payload); err != nil {
		return err
	}
	fmt.Printf("%s on %s, %s over %s:\n", d, c, v, t)
	if err := setGetTest(d); err != nil {
		return err
	}
	if err := averageTest(d); err != nil {
		return err
	}
	if v.MaxROI() != 0 {
		if err := roiTest(d, uint32(*width), uint32(*height)); err != nil {
			return err
		}
	}
	if *te != "" {
		return teTest(*te)
	}
	return nil
}

// setGetTest programs the registers and reads one measurement back.
func setGetTest(d *copr.Dev) error {
	fmt.Printf("  Set and get:\n")
	if err := d.Enable(); err != nil {
		return err
	}
	if err := d.Set(); err != nil {
		return err
	}
	if s := d.Props().State; s != copr.RegOn {
		return fmt.Errorf("%s: expected state %s, got %s", d, copr.RegOn, s)
	}
	data, err := d.Get()
	if err != nil {
		return err
	}
	fmt.Printf("    %+v\n", data)
	return nil
}

// averageTest samples in a tight loop to evaluate performance.
//
// It doesn't evaluate correctness.
func averageTest(d *copr.Dev) error {
	const loops = 100
	fmt.Printf("  %d updates: ", loops)
	start := time.Now()
	for i := 0; i < loops; i++ {
		if err := d.Update(); err != nil {
			return err
		}
	}
	s := time.Since(start)
	fmt.Printf("%s; %s/op\n", s, s/loops)
	avg, err := d.GetAverageAndClear()
	if err != nil {
		return err
	}
	fmt.Printf("    average: %d\n", avg)
	return nil
}

// roiTest measures the whole active area and its four quadrants.
func roiTest(d *copr.Dev, w, h uint32) error {
	fmt.Printf("  Regions:\n")
	rois := []copr.ROI{
		{XS: 0, YS: 0, XE: w - 1, YE: h - 1},
		{XS: 0, YS: 0, XE: w/2 - 1, YE: h/2 - 1},
		{XS: w / 2, YS: 0, XE: w - 1, YE: h/2 - 1},
		{XS: 0, YS: h / 2, XE: w/2 - 1, YE: h - 1},
		{XS: w / 2, YS: h / 2, XE: w - 1, YE: h - 1},
	}
	if n := d.Props().Version.MaxROI(); len(rois) > n {
		rois = rois[:n]
	}
	start := time.Now()
	out, err := d.ROIValue(rois)
	if err != nil {
		return err
	}
	fmt.Printf("    %s\n", time.Since(start))
	for i := range out {
		fmt.Printf("    %+v: %v\n", rois[i], out[i])
	}
	return nil
}

// teTest measures the frame rate on the tearing effect pin.
func teTest(name string) error {
	fmt.Printf("  TE on %s: ", name)
	pin := gpioreg.ByName(name)
	if pin == nil {
		return fmt.Errorf("no pin %q", name)
	}
	var frames int32
	t, err := panelseq.WatchTE(pin, func() { atomic.AddInt32(&frames, 1) })
	if err != nil {
		return err
	}
	time.Sleep(time.Second)
	if err := t.Halt(); err != nil {
		return err
	}
	n := atomic.LoadInt32(&frames)
	if n == 0 {
		return errors.New("no frame")
	}
	fmt.Printf("%dHz\n", n)
	return nil
}

// loggingPanel logs each sequence with its duration.
type loggingPanel struct {
	copr.Panel
}

func (p *loggingPanel) ExecuteSequence(name string) error {
	start := time.Now()
	if err := p.Panel.ExecuteSequence(name); err != nil {
		fmt.Printf("    %s %s = %v\n", time.Since(start), name, err)
		return err
	}
	fmt.Printf("    %s %s\n", time.Since(start), name)
	return nil
}
