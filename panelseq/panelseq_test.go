// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package panelseq

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/conntest"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/panel/v3/copr"
)

func TestPanel_sequence(t *testing.T) {
	pb := &conntest.Playback{
		Ops: []conntest.IO{
			{W: []byte{0x11}},
			{W: []byte{0x29}},
			{W: []byte{0x0A}, R: []byte{0x9C, 0x01}},
		},
		DontPanic: true,
	}
	fc := clockwork.NewFakeClock()
	p := New(pb, &Opts{Clock: stepClock{fc}})
	p.AddSequence("display-on", Write{0x11}, Delay(120*time.Millisecond), Write{0x29}, Read{Cmd: 0x0A, Resource: "power"})
	p.AddResource("power", 2)
	start := fc.Now()
	if err := p.ExecuteSequence("display-on"); err != nil {
		t.Fatal(err)
	}
	if d := fc.Since(start); d != 120*time.Millisecond {
		t.Fatalf("slept %s", d)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
	n, err := p.ResourceSize("power")
	if err != nil || n != 2 {
		t.Fatalf("ResourceSize() = %d, %v", n, err)
	}
	b := make([]byte, 2)
	if err := p.ReadResource("power", b); err != nil {
		t.Fatal(err)
	}
	if b[0] != 0x9C || b[1] != 0x01 {
		t.Fatalf("ReadResource() = %#v", b)
	}
	if err := p.ReadResource("power", make([]byte, 1)); err == nil {
		t.Fatal("expected size mismatch")
	}
}

func TestPanel_readFullDuplex(t *testing.T) {
	pb := &conntest.Playback{
		Ops:       []conntest.IO{{W: []byte{0xE2, 0, 0, 0}, R: []byte{0xFF, 1, 2, 3}}},
		DontPanic: true,
		D:         conn.Full,
	}
	p := New(pb, nil)
	p.AddResource("r", 3)
	p.AddSequence("get", Read{Cmd: 0xE2, Resource: "r"})
	if err := p.ExecuteSequence("get"); err != nil {
		t.Fatal(err)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
	b := make([]byte, 3)
	if err := p.ReadResource("r", b); err != nil {
		t.Fatal(err)
	}
	if b[0] != 1 || b[1] != 2 || b[2] != 3 {
		t.Fatalf("ReadResource() = %#v", b)
	}
}

func TestPanel_errors(t *testing.T) {
	pb := &conntest.Playback{Ops: []conntest.IO{{W: []byte{0x01}}}, DontPanic: true}
	p := New(pb, nil)
	if err := p.ExecuteSequence("nope"); !errors.Is(err, ErrNoSequence) {
		t.Fatalf("ExecuteSequence() = %v", err)
	}
	if _, err := p.ResourceSize("nope"); !errors.Is(err, ErrNoResource) {
		t.Fatalf("ResourceSize() = %v", err)
	}
	if err := p.ReadResource("nope", nil); !errors.Is(err, ErrNoResource) {
		t.Fatalf("ReadResource() = %v", err)
	}
	p.AddSequence("read", Read{Cmd: 1, Resource: "nope"})
	if err := p.ExecuteSequence("read"); !errors.Is(err, ErrNoResource) {
		t.Fatalf("ExecuteSequence() = %v", err)
	}
	p.AddSequence("unbound", Packet{Cmd: 1, Source: "nope"})
	if err := p.ExecuteSequence("unbound"); !errors.Is(err, ErrNoResource) {
		t.Fatalf("ExecuteSequence() = %v", err)
	}
	errSrc := errors.New("no image")
	p.Bind("img", func() ([]byte, error) { return nil, errSrc })
	p.AddSequence("src", Packet{Cmd: 1, Source: "img"})
	if err := p.ExecuteSequence("src"); !errors.Is(err, errSrc) {
		t.Fatalf("ExecuteSequence() = %v", err)
	}
	// The bus rejects the first write; the second one is never sent.
	p.AddSequence("bus", Write{0x02}, Write{0x01})
	if err := p.ExecuteSequence("bus"); err == nil {
		t.Fatal("expected bus error")
	}
	if err := pb.Close(); err == nil {
		t.Fatal("the second write was sent")
	}
}

func TestPanel_misc(t *testing.T) {
	p := New(&conntest.Playback{}, nil)
	if s := p.String(); s != "playback" {
		t.Fatalf("String() = %q", s)
	}
	if p.DisplayOn() {
		t.Fatal("DisplayOn()")
	}
	p.SetDisplayOn(true)
	if !p.DisplayOn() {
		t.Fatal("DisplayOn()")
	}
	p.AddSequence("b")
	p.AddSequence("a")
	if s := p.Sequences(); len(s) != 2 || s[0] != "a" || s[1] != "b" {
		t.Fatalf("Sequences() = %v", s)
	}
	if err := p.ExecuteSequence("a"); err != nil {
		t.Fatal(err)
	}
	if err := p.Halt(); err != nil {
		t.Fatal(err)
	}
}

func TestParseCommand(t *testing.T) {
	data := []struct {
		in   string
		want Command
	}{
		{"write 51 0xFF", Write{0x51, 0xFF}},
		{"Packet e1 copr", Packet{Cmd: 0xE1, Source: "copr"}},
		{"delay 20ms", Delay(20 * time.Millisecond)},
		{"read e2 copr_dsi", Read{Cmd: 0xE2, Resource: "copr_dsi"}},
	}
	for _, line := range data {
		c, err := ParseCommand(line.in)
		if err != nil {
			t.Fatalf("ParseCommand(%q) = %v", line.in, err)
		}
		if c.String() != line.want.String() {
			t.Errorf("ParseCommand(%q) = %s, want %s", line.in, c, line.want)
		}
	}
	for _, in := range []string{"", "write", "write 100", "write zz", "read e2", "packet e1 a b", "delay soon", "delay 1s 2s", "poke 1"} {
		if _, err := ParseCommand(in); err == nil {
			t.Errorf("ParseCommand(%q) succeeded", in)
		}
	}
}

func TestPanel_COPR(t *testing.T) {
	fc := clockwork.NewFakeClock()
	pb := &conntest.Playback{DontPanic: true}
	p := New(pb, &Opts{Clock: stepClock{fc}})
	d, err := copr.New(p, &copr.Opts{Version: copr.V6, Clock: stepClock{fc}, Assign: []string{"copr_en=1", "copr_roi1_x_e=1079"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.SetupCOPR(copr.V6, copr.DSI, d.Payload); err != nil {
		t.Fatal(err)
	}
	img, err := copr.Pack(d.Reg())
	if err != nil {
		t.Fatal(err)
	}
	readback := make([]byte, 39)
	readback[6], readback[7] = 0x01, 0x23
	pb.Ops = []conntest.IO{
		{W: append([]byte{cmdCOPRSet}, img...)},
		{W: []byte{cmdCOPRDSI}, R: readback},
	}
	if err := d.Enable(); err != nil {
		t.Fatal(err)
	}
	if err := d.Update(); err != nil {
		t.Fatal(err)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
	if v := d.Value(); v.CurCopr != 0x123 || v.ROI[0][copr.White] != 0x123 {
		t.Fatalf("Value() = %+v", v)
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
}

func TestSetupCOPR(t *testing.T) {
	p := New(&conntest.Playback{}, nil)
	custom := []Command{Write{0xAA}}
	p.AddSequence(copr.SeqClearCountOn, custom...)
	if err := p.SetupCOPR(copr.V2, copr.SPI, nil); err != nil {
		t.Fatal(err)
	}
	if n, err := p.ResourceSize(copr.ResSPI); err != nil || n != 13 {
		t.Fatalf("ResourceSize() = %d, %v", n, err)
	}
	if _, err := p.ResourceSize(copr.ResDSI); !errors.Is(err, ErrNoResource) {
		t.Fatalf("ResourceSize() = %v", err)
	}
	if c := p.seqs[copr.SeqClearCountOn]; len(c) != 1 || c[0].String() != custom[0].String() {
		t.Fatalf("override lost: %v", c)
	}
	if len(p.Sequences()) != len(COPRSequences()) {
		t.Fatalf("Sequences() = %v", p.Sequences())
	}
	if err := p.SetupCOPR(copr.Version(42), copr.DSI, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestWatchTE(t *testing.T) {
	pin := &gpiotest.Pin{N: "TE", EdgesChan: make(chan gpio.Level)}
	frames := make(chan struct{}, 10)
	te, err := WatchTE(pin, func() { frames <- struct{}{} })
	if err != nil {
		t.Fatal(err)
	}
	if s := te.String(); s != pin.String() {
		t.Fatalf("String() = %q", s)
	}
	for i := 0; i < 3; i++ {
		pin.EdgesChan <- gpio.High
	}
	for i := 0; i < 3; i++ {
		select {
		case <-frames:
		case <-time.After(5 * time.Second):
			t.Fatalf("got %d frames", i)
		}
	}
	if err := te.Halt(); err != nil {
		t.Fatal(err)
	}
	select {
	case pin.EdgesChan <- gpio.High:
		t.Fatal("edge consumed after Halt")
	case <-time.After(2 * tePoll):
	}
}

func TestWatchTE_noEdges(t *testing.T) {
	if _, err := WatchTE(&gpiotest.Pin{N: "TE"}, func() {}); err == nil {
		t.Fatal("expected error")
	}
}

// stepClock is a fake clock where sleeping advances time instead of blocking.
type stepClock struct {
	clockwork.FakeClock
}

func (c stepClock) Sleep(d time.Duration) {
	c.Advance(d)
}
