// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package copr

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/icza/bitio"
)

// encodeV2DSI is the inverse of decodeV2DSI.
func encodeV2DSI(d Data) []byte {
	var buf bytes.Buffer
	w := bitio.NewWriter(&buf)
	w.TryWriteBool(d.Ready)
	w.TryWriteBits(uint64(d.CurCnt), 16)
	w.TryWriteBits(uint64(d.CurCopr), 9)
	w.TryWriteBits(uint64(d.AvgCopr), 9)
	w.TryWriteBits(uint64(d.SCurCnt), 16)
	w.TryWriteBits(uint64(d.SAvgCopr), 9)
	w.TryWriteBits(uint64(d.CompCopr), 9)
	// Pads the last byte; writes to a bytes.Buffer can't fail.
	_ = w.Close()
	return buf.Bytes()
}

// encodeV5 is the inverse of decodeV5.
func encodeV5(d Data) []byte {
	b := make([]byte, 41)
	if d.Ready {
		b[0] = 1
	}
	binary.BigEndian.PutUint16(b[1:], uint16(d.CurCnt))
	binary.BigEndian.PutUint16(b[3:], uint16(d.CurCopr))
	binary.BigEndian.PutUint16(b[5:], uint16(d.AvgCopr))
	binary.BigEndian.PutUint16(b[7:], uint16(d.SCurCnt))
	binary.BigEndian.PutUint16(b[9:], uint16(d.SAvgCopr))
	for i := 0; i < 5; i++ {
		for c := Red; c <= Blue; c++ {
			binary.BigEndian.PutUint16(b[11+(i*3+c)*2:], uint16(d.ROI[i][c]))
		}
	}
	return b
}

// encodeRGBW is the inverse of decodeRGBW.
func encodeRGBW(roi [][4]uint32) []byte {
	n := len(roi)
	b := make([]byte, rgbwSize(n))
	last := n*4 - 1
	for k := 0; k <= last; k++ {
		v := roi[k/4][k%4]
		if k == last {
			b[2*k] = byte(v)
		} else {
			b[2*k] = byte(v>>8) & 0x03
			b[2*k+1] = byte(v)
		}
	}
	return b
}

func TestDecode_V2DSI(t *testing.T) {
	want := Data{Ready: true, CurCnt: 0xBEEF, CurCopr: 0x1AB, AvgCopr: 0x155, SCurCnt: 0x1234, SAvgCopr: 0x0FF, CompCopr: 0x100}
	b := encodeV2DSI(want)
	// cur_cnt straddles b0[6:0], b1 and b2[7].
	if b[0] != 0x80|0xBE>>1 || b[1] != 0x77 || b[2]&0x80 != 0x80 {
		t.Fatalf("unexpected layout %#v", b)
	}
	dec, err := decoderFor(V2, DSI)
	if err != nil {
		t.Fatal(err)
	}
	if dec.size != 9 {
		t.Fatalf("size = %d", dec.size)
	}
	var got Data
	dec.decode(b, &got)
	if got != want {
		t.Fatalf("decode() = %+v, want %+v", got, want)
	}
}

func TestDecode_V2SPI(t *testing.T) {
	b := []byte{0x01, 0xBE, 0xEF, 0x01, 0xAB, 0x01, 0x55, 0x12, 0x34, 0x00, 0xFF, 0x01, 0x00}
	dec, err := decoderFor(V1, SPI)
	if err != nil {
		t.Fatal(err)
	}
	if dec.size != len(b) {
		t.Fatalf("size = %d", dec.size)
	}
	var got Data
	dec.decode(b, &got)
	want := Data{Ready: true, CurCnt: 0xBEEF, CurCopr: 0x1AB, AvgCopr: 0x155, SCurCnt: 0x1234, SAvgCopr: 0x0FF, CompCopr: 0x100}
	if got != want {
		t.Fatalf("decode() = %+v, want %+v", got, want)
	}
	// Both transports carry the same values with different layouts.
	var dsi Data
	decodeV2DSI(encodeV2DSI(want), &dsi)
	if dsi != got {
		t.Fatalf("DSI %+v != SPI %+v", dsi, got)
	}
}

func TestDecode_V5(t *testing.T) {
	want := Data{Ready: true, CurCnt: 60, CurCopr: 300, AvgCopr: 280, SCurCnt: 600, SAvgCopr: 290}
	for i := 0; i < 5; i++ {
		for c := Red; c <= Blue; c++ {
			want.ROI[i][c] = uint32(0x1000*i + c)
		}
	}
	for _, v := range []Version{V3, V5} {
		dec, err := decoderFor(v, DSI)
		if err != nil {
			t.Fatal(err)
		}
		var got Data
		dec.decode(encodeV5(want), &got)
		if got != want {
			t.Fatalf("%s: decode() = %+v, want %+v", v, got, want)
		}
	}
}

func TestDecode_V6(t *testing.T) {
	roi := make([][4]uint32, 5)
	for i := range roi {
		roi[i] = [4]uint32{1023, 512, 1, 700}
	}
	roi[4][White] = 255
	b := encodeRGBW(roi)
	if len(b) != 39 {
		t.Fatalf("len = %d", len(b))
	}
	dec, err := decoderFor(V6, SPI)
	if err != nil {
		t.Fatal(err)
	}
	var got Data
	dec.decode(b, &got)
	for i := range roi {
		if got.ROI[i] != roi[i] {
			t.Errorf("ROI[%d] = %v, want %v", i, got.ROI[i], roi[i])
		}
	}
	if got.CurCopr != 700 || got.AvgCopr != 700 {
		t.Fatalf("CurCopr = %d, AvgCopr = %d", got.CurCopr, got.AvgCopr)
	}
}

func TestDecode_V0_1(t *testing.T) {
	b := []byte{3, 0xFF, 0, 0, 1, 0, 2, 0x22, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xAB}
	dec, err := decoderFor(V0_1, DSI)
	if err != nil {
		t.Fatal(err)
	}
	if dec.size != len(b) {
		t.Fatalf("size = %d", dec.size)
	}
	var got Data
	dec.decode(b, &got)
	want := [2][4]uint32{{1023, 0, 256, 0x222}, {1023, 1023, 1023, 0xAB}}
	if got.ROI[0] != want[0] || got.ROI[1] != want[1] {
		t.Fatalf("ROI = %v", got.ROI[:2])
	}
}

func TestDecode_V0(t *testing.T) {
	dec, err := decoderFor(V0, DSI)
	if err != nil {
		t.Fatal(err)
	}
	var got Data
	dec.decode([]byte{0x7F}, &got)
	if got.CurCopr != 0x7F {
		t.Fatalf("CurCopr = %d", got.CurCopr)
	}
}

func TestDecode_unknown(t *testing.T) {
	if _, err := decoderFor(Version(42), DSI); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("decoderFor() = %v", err)
	}
}

func TestReadbackSize(t *testing.T) {
	data := []struct {
		v    Version
		t    Transport
		want int
	}{
		{V0, DSI, 1},
		{V1, DSI, 9},
		{V2, SPI, 13},
		{V3, DSI, 41},
		{V5, SPI, 41},
		{V6, DSI, 39},
		{V0_1, SPI, 15},
		{Version(42), DSI, 0},
	}
	for _, line := range data {
		if n := line.v.ReadbackSize(line.t); n != line.want {
			t.Errorf("%s.ReadbackSize(%s) = %d, want %d", line.v, line.t, n, line.want)
		}
	}
}
