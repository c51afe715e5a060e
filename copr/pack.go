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

// PackedSize returns the length of the wire payload of a register image of
// version v.
//
// V5, V6 and V0_1 use a bit packed layout. The older generations are sent as
// one 16 bits big endian word per field, in field table order.
func (v Version) PackedSize() int {
	switch v {
	case V5:
		return 11 + 5*8
	case V6:
		return 5 + 5*6 + 5*8
	case V0_1:
		return 2 + 2*6 + 2*8
	default:
		return 2 * v.NumFields()
	}
}

// Pack serializes r into its wire layout.
//
// Values are masked to their wire width; they are not range checked.
func Pack(r Reg) ([]byte, error) {
	if r == nil || !r.Version().valid() {
		return nil, ErrInvalidArgument
	}
	v := r.Version()
	var buf bytes.Buffer
	buf.Grow(v.PackedSize())
	w := bitio.NewWriter(&buf)
	if layout(r, func(p *uint32, pad, width int) {
		if pad != 0 {
			w.TryWriteBits(0, uint8(pad))
		}
		w.TryWriteBits(uint64(*p), uint8(width))
	}) {
		if w.TryError == nil {
			w.TryError = w.Close()
		}
		if w.TryError != nil {
			return nil, fmt.Errorf("copr: packing %s: %w", v, w.TryError)
		}
		return buf.Bytes(), nil
	}
	out := make([]byte, v.PackedSize())
	for i := 0; i < v.NumFields(); i++ {
		binary.BigEndian.PutUint16(out[2*i:], uint16(*FieldRef(r, i)))
	}
	return out, nil
}

// Unpack is the inverse of Pack.
func Unpack(v Version, b []byte) (Reg, error) {
	r := NewReg(v)
	if r == nil {
		return nil, fmt.Errorf("copr: unknown %s: %w", v, ErrInvalidArgument)
	}
	if len(b) < v.PackedSize() {
		return nil, fmt.Errorf("copr: %s payload is %d bytes, expected %d: %w", v, len(b), v.PackedSize(), ErrInvalidArgument)
	}
	rd := bitio.NewReader(bytes.NewReader(b))
	if layout(r, func(p *uint32, pad, width int) {
		if pad != 0 {
			rd.TryReadBits(uint8(pad))
		}
		*p = uint32(rd.TryReadBits(uint8(width)))
	}) {
		if rd.TryError != nil {
			return nil, fmt.Errorf("copr: unpacking %s: %w", v, rd.TryError)
		}
		return r, nil
	}
	for i := 0; i < v.NumFields(); i++ {
		*FieldRef(r, i) = uint32(binary.BigEndian.Uint16(b[2*i:]))
	}
	return r, nil
}

// layout visits the fields of a bit packed register image in wire order.
//
// pad is the number of zero bits preceding the field. It returns false when
// r has no bit packed layout.
func layout(r Reg, visit func(p *uint32, pad, width int)) bool {
	// b0: 3 reserved bits, then mask, cnt_re, ilc, gamma, en.
	flags := func(mask, cntRe, ilc, gamma, en *uint32) {
		visit(mask, 3, 1)
		visit(cntRe, 0, 1)
		visit(ilc, 0, 1)
		visit(gamma, 0, 1)
		visit(en, 0, 1)
	}
	// 13 bits coordinates in 16 bits words.
	rois := func(rs []ROI) {
		for i := range rs {
			visit(&rs[i].XS, 3, 13)
			visit(&rs[i].YS, 3, 13)
			visit(&rs[i].XE, 3, 13)
			visit(&rs[i].YE, 3, 13)
		}
	}
	// 10 bits weights in 16 bits words.
	effs := func(es []Efficiency) {
		for i := range es {
			visit(&es[i].Er, 6, 10)
			visit(&es[i].Eg, 6, 10)
			visit(&es[i].Eb, 6, 10)
		}
	}
	switch t := r.(type) {
	case *RegV5:
		flags(&t.Mask, &t.CntRe, &t.Ilc, &t.Gamma, &t.En)
		// b1~b8: six 10 bits weights back to back, low nibble of b8 unused.
		visit(&t.Er, 0, 10)
		visit(&t.Eg, 0, 10)
		visit(&t.Eb, 0, 10)
		visit(&t.Erc, 0, 10)
		visit(&t.Egc, 0, 10)
		visit(&t.Ebc, 0, 10)
		visit(&t.MaxCnt, 4, 8)
		visit(&t.ROIOn, 3, 5)
		rois(t.ROI[:])
	case *RegV6:
		flags(&t.Mask, &t.CntRe, &t.Ilc, &t.Gamma, &t.En)
		visit(&t.MaxCnt, 0, 16)
		visit(&t.ROIOn, 3, 5)
		visit(&t.ROICtrl, 0, 8)
		effs(t.Eff[:])
		rois(t.ROI[:])
	case *RegV0_1:
		flags(&t.Mask, &t.CntRe, &t.Ilc, &t.Gamma, &t.En)
		visit(&t.ROIOn, 6, 2)
		effs(t.Eff[:])
		rois(t.ROI[:])
	default:
		return false
	}
	return true
}
