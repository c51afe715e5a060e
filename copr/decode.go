// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package copr

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/icza/bitio"
)

// Color indexes Data.ROI.
const (
	Red = iota
	Green
	Blue
	White
)

// maxROIData is the number of regions Data can hold.
const maxROIData = 6

// Data is a decoded measurement.
type Data struct {
	Ready    bool
	CurCopr  uint32 // Current frame COPR
	AvgCopr  uint32 // Hardware average since the last counter reset
	CurCnt   uint32 // Frames accumulated in AvgCopr
	SCurCnt  uint32 // Snapshot frame count
	SAvgCopr uint32 // Snapshot average
	CompCopr uint32 // Compensated COPR
	// ROI is the per region, per color reading. Only V3, V5, V6 and V0_1 fill
	// it from a single measurement.
	ROI [maxROIData][4]uint32
}

// decoder parses a raw readback buffer.
type decoder struct {
	size   int
	decode func(b []byte, d *Data)
}

// decoderFor returns the readback parser for the version and transport.
func decoderFor(v Version, t Transport) (decoder, error) {
	switch v {
	case V0:
		return decoder{1, decodeV0}, nil
	case V1, V2:
		if t == SPI {
			return decoder{13, decodeV2SPI}, nil
		}
		return decoder{9, decodeV2DSI}, nil
	case V3, V5:
		return decoder{11 + 5*3*2, decodeV5}, nil
	case V6:
		return decoder{rgbwSize(5), func(b []byte, d *Data) { decodeRGBW(b, d, 5) }}, nil
	case V0_1:
		return decoder{rgbwSize(2), func(b []byte, d *Data) { decodeRGBW(b, d, 2) }}, nil
	default:
		return decoder{}, fmt.Errorf("copr: no readback layout for %s: %w", v, ErrInvalidArgument)
	}
}

// ReadbackSize is the size of the measurement resource read through t, or 0
// for an unknown version.
func (v Version) ReadbackSize(t Transport) int {
	dec, err := decoderFor(v, t)
	if err != nil {
		return 0
	}
	return dec.size
}

func decodeV0(b []byte, d *Data) {
	d.CurCopr = uint32(b[0])
}

// decodeV2DSI parses the bit packed DSI readback of V1 and V2.
//
// Fields are back to back MSB first: ready:1, cur_cnt:16, cur_copr:9,
// avg_copr:9, s_cur_cnt:16, s_avg_copr:9, comp_copr:9.
func decodeV2DSI(b []byte, d *Data) {
	// b is at least the decoder size so the reads can't fail.
	r := bitio.NewReader(bytes.NewReader(b))
	d.Ready = r.TryReadBool()
	d.CurCnt = uint32(r.TryReadBits(16))
	d.CurCopr = uint32(r.TryReadBits(9))
	d.AvgCopr = uint32(r.TryReadBits(9))
	d.SCurCnt = uint32(r.TryReadBits(16))
	d.SAvgCopr = uint32(r.TryReadBits(9))
	d.CompCopr = uint32(r.TryReadBits(9))
}

// decodeV2SPI parses the register aligned SPI readback of V1 and V2.
func decodeV2SPI(b []byte, d *Data) {
	d.Ready = b[0]&0x01 != 0
	d.CurCnt = uint32(binary.BigEndian.Uint16(b[1:]))
	d.CurCopr = uint32(b[3]&0x01)<<8 | uint32(b[4])
	d.AvgCopr = uint32(b[5]&0x01)<<8 | uint32(b[6])
	d.SCurCnt = uint32(binary.BigEndian.Uint16(b[7:]))
	d.SAvgCopr = uint32(b[9]&0x01)<<8 | uint32(b[10])
	d.CompCopr = uint32(b[11]&0x01)<<8 | uint32(b[12])
}

// decodeV5 parses the V3 and V5 readback: an 11 bytes preamble then 5
// regions of RGB as 16 bits big endian words.
func decodeV5(b []byte, d *Data) {
	d.Ready = b[0]&0x01 != 0
	d.CurCnt = uint32(binary.BigEndian.Uint16(b[1:]))
	d.CurCopr = uint32(binary.BigEndian.Uint16(b[3:]))
	d.AvgCopr = uint32(binary.BigEndian.Uint16(b[5:]))
	d.SCurCnt = uint32(binary.BigEndian.Uint16(b[7:]))
	d.SAvgCopr = uint32(binary.BigEndian.Uint16(b[9:]))
	for i := 0; i < 5; i++ {
		for c := Red; c <= Blue; c++ {
			d.ROI[i][c] = uint32(binary.BigEndian.Uint16(b[11+(i*3+c)*2:]))
		}
	}
}

// rgbwSize is the readback size of n regions of RGBW: 10 bits values in two
// bytes, except the very last one which is a single byte.
func rgbwSize(n int) int {
	return (n*4-1)*2 + 1
}

// decodeRGBW parses the V6 and V0_1 readback.
//
// The white channel of the last region is only 8 bits wide.
func decodeRGBW(b []byte, d *Data, n int) {
	last := n*4 - 1
	for k := 0; k <= last; k++ {
		i, c := k/4, k%4
		if k == last {
			d.ROI[i][c] = uint32(b[2*k])
		} else {
			d.ROI[i][c] = uint32(b[2*k]&0x03)<<8 | uint32(b[2*k+1])
		}
	}
	// Region 0 covers the whole active area.
	d.CurCopr = d.ROI[0][White]
	d.AvgCopr = d.ROI[0][White]
	d.Ready = true
}
