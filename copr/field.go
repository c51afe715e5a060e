// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package copr

import (
	"fmt"
	"strconv"
	"strings"
	"unsafe"
)

// Field describes one named 32 bits register of a register image.
//
// Names include the trailing '=' so that configuration strings of the form
// "name=value" can be matched directly.
type Field struct {
	Name   string
	Offset uintptr
}

// FieldValue is a named register value as returned by Dump.
type FieldValue struct {
	Name  string
	Value uint32
}

// NumFields returns the number of fields of v, 0 for an unknown version.
func (v Version) NumFields() int {
	if !v.valid() {
		return 0
	}
	return len(fieldTables[v])
}

// FieldName returns the name of the field i of v.
//
// It returns an empty string for an unknown version or an out of range index.
func (v Version) FieldName(i int) string {
	if !v.valid() || i < 0 || i >= len(fieldTables[v]) {
		return ""
	}
	return fieldTables[v][i].Name
}

// FieldOffset returns the byte offset of the field i within the register
// image of v.
func (v Version) FieldOffset(i int) (uintptr, error) {
	if !v.valid() {
		return 0, fmt.Errorf("copr: unknown %s: %w", v, ErrInvalidArgument)
	}
	if i < 0 || i >= len(fieldTables[v]) {
		return 0, fmt.Errorf("copr: %s has no field %d: %w", v, i, ErrInvalidArgument)
	}
	return fieldTables[v][i].Offset, nil
}

// FindField returns the index of the first field whose name is a prefix of
// query.
//
// The match is not symmetric: "copr_en=1" finds "copr_en=", "copr_en" finds
// nothing.
func (v Version) FindField(query string) (int, error) {
	if v.valid() {
		for i, f := range fieldTables[v] {
			if strings.HasPrefix(query, f.Name) {
				return i, nil
			}
		}
	}
	return -1, fmt.Errorf("copr: %s has no field matching %q: %w", v, query, ErrNotFound)
}

// FieldRef returns a pointer to the field i of r, or nil if the field doesn't
// exist.
func FieldRef(r Reg, i int) *uint32 {
	if r == nil {
		return nil
	}
	off, err := r.Version().FieldOffset(i)
	if err != nil {
		return nil
	}
	return (*uint32)(unsafe.Add(r.base(), off))
}

// SetField parses an assignment "name=value" and writes it into r.
//
// The value can be decimal, 0x prefixed hexadecimal or 0 prefixed octal.
func SetField(r Reg, assign string) error {
	if r == nil {
		return ErrInvalidArgument
	}
	v := r.Version()
	i, err := v.FindField(assign)
	if err != nil {
		return err
	}
	s := strings.TrimSpace(assign[len(v.FieldName(i)):])
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return fmt.Errorf("copr: invalid value for %s%s: %w", v.FieldName(i), s, ErrInvalidArgument)
	}
	*FieldRef(r, i) = uint32(n)
	return nil
}

// Dump returns all the fields of r in table order.
func Dump(r Reg) []FieldValue {
	if r == nil {
		return nil
	}
	v := r.Version()
	out := make([]FieldValue, v.NumFields())
	for i := range out {
		out[i] = FieldValue{Name: v.FieldName(i), Value: *FieldRef(r, i)}
	}
	return out
}

// enField returns the enable bit of r.
func enField(r Reg) uint32 {
	i, err := r.Version().FindField("copr_en=")
	if err != nil {
		return 0
	}
	return *FieldRef(r, i)
}

//

var fieldTables = [numVersions][]Field{
	V0:   fieldsV0(),
	V1:   fieldsV1(),
	V2:   fieldsV2(),
	V3:   fieldsV3(),
	V5:   fieldsV5(),
	V6:   fieldsV6(),
	V0_1: fieldsV0_1(),
}

func roiFields(prefix string, base uintptr) []Field {
	return []Field{
		{prefix + "x_s=", base + unsafe.Offsetof(ROI{}.XS)},
		{prefix + "y_s=", base + unsafe.Offsetof(ROI{}.YS)},
		{prefix + "x_e=", base + unsafe.Offsetof(ROI{}.XE)},
		{prefix + "y_e=", base + unsafe.Offsetof(ROI{}.YE)},
	}
}

func roiArrayFields(n int, base uintptr) []Field {
	var out []Field
	for i := 0; i < n; i++ {
		out = append(out, roiFields("copr_roi"+strconv.Itoa(i+1)+"_", base+uintptr(i)*unsafe.Sizeof(ROI{}))...)
	}
	return out
}

func effArrayFields(n int, base uintptr) []Field {
	var out []Field
	for i := 0; i < n; i++ {
		p := "copr_roi" + strconv.Itoa(i+1) + "_"
		b := base + uintptr(i)*unsafe.Sizeof(Efficiency{})
		out = append(out,
			Field{p + "er=", b + unsafe.Offsetof(Efficiency{}.Er)},
			Field{p + "eg=", b + unsafe.Offsetof(Efficiency{}.Eg)},
			Field{p + "eb=", b + unsafe.Offsetof(Efficiency{}.Eb)})
	}
	return out
}

func fieldsV0() []Field {
	var r RegV0
	return []Field{
		{"copr_en=", unsafe.Offsetof(r.En)},
		{"copr_gamma=", unsafe.Offsetof(r.Gamma)},
		{"copr_er=", unsafe.Offsetof(r.Er)},
		{"copr_eg=", unsafe.Offsetof(r.Eg)},
		{"copr_eb=", unsafe.Offsetof(r.Eb)},
	}
}

func fieldsV1() []Field {
	var r RegV1
	return append([]Field{
		{"copr_cnt_re=", unsafe.Offsetof(r.CntRe)},
		{"copr_ilc=", unsafe.Offsetof(r.Ilc)},
		{"copr_gamma=", unsafe.Offsetof(r.Gamma)},
		{"copr_en=", unsafe.Offsetof(r.En)},
		{"copr_er=", unsafe.Offsetof(r.Er)},
		{"copr_eg=", unsafe.Offsetof(r.Eg)},
		{"copr_eb=", unsafe.Offsetof(r.Eb)},
		{"copr_max_cnt=", unsafe.Offsetof(r.MaxCnt)},
		{"copr_roi_on=", unsafe.Offsetof(r.ROIOn)},
	}, roiFields("copr_roi_", unsafe.Offsetof(r.ROI))...)
}

func fieldsV2() []Field {
	var r RegV2
	return append([]Field{
		{"copr_mask=", unsafe.Offsetof(r.Mask)},
		{"copr_cnt_re=", unsafe.Offsetof(r.CntRe)},
		{"copr_ilc=", unsafe.Offsetof(r.Ilc)},
		{"copr_gamma=", unsafe.Offsetof(r.Gamma)},
		{"copr_en=", unsafe.Offsetof(r.En)},
		{"copr_er=", unsafe.Offsetof(r.Er)},
		{"copr_eg=", unsafe.Offsetof(r.Eg)},
		{"copr_eb=", unsafe.Offsetof(r.Eb)},
		{"copr_erc=", unsafe.Offsetof(r.Erc)},
		{"copr_egc=", unsafe.Offsetof(r.Egc)},
		{"copr_ebc=", unsafe.Offsetof(r.Ebc)},
		{"copr_max_cnt=", unsafe.Offsetof(r.MaxCnt)},
		{"copr_roi_on=", unsafe.Offsetof(r.ROIOn)},
	}, roiFields("copr_roi_", unsafe.Offsetof(r.ROI))...)
}

func fieldsV3() []Field {
	var r RegV3
	return append([]Field{
		{"copr_mask=", unsafe.Offsetof(r.Mask)},
		{"copr_cnt_re=", unsafe.Offsetof(r.CntRe)},
		{"copr_ilc=", unsafe.Offsetof(r.Ilc)},
		{"copr_gamma=", unsafe.Offsetof(r.Gamma)},
		{"copr_en=", unsafe.Offsetof(r.En)},
		{"copr_er=", unsafe.Offsetof(r.Er)},
		{"copr_eg=", unsafe.Offsetof(r.Eg)},
		{"copr_eb=", unsafe.Offsetof(r.Eb)},
		{"copr_erc=", unsafe.Offsetof(r.Erc)},
		{"copr_egc=", unsafe.Offsetof(r.Egc)},
		{"copr_ebc=", unsafe.Offsetof(r.Ebc)},
		{"copr_max_cnt=", unsafe.Offsetof(r.MaxCnt)},
		{"copr_roi_on=", unsafe.Offsetof(r.ROIOn)},
	}, roiArrayFields(len(r.ROI), unsafe.Offsetof(r.ROI))...)
}

func fieldsV5() []Field {
	var r RegV5
	return append([]Field{
		{"copr_mask=", unsafe.Offsetof(r.Mask)},
		{"copr_cnt_re=", unsafe.Offsetof(r.CntRe)},
		{"copr_ilc=", unsafe.Offsetof(r.Ilc)},
		{"copr_gamma=", unsafe.Offsetof(r.Gamma)},
		{"copr_en=", unsafe.Offsetof(r.En)},
		{"copr_er=", unsafe.Offsetof(r.Er)},
		{"copr_eg=", unsafe.Offsetof(r.Eg)},
		{"copr_eb=", unsafe.Offsetof(r.Eb)},
		{"copr_erc=", unsafe.Offsetof(r.Erc)},
		{"copr_egc=", unsafe.Offsetof(r.Egc)},
		{"copr_ebc=", unsafe.Offsetof(r.Ebc)},
		{"copr_max_cnt=", unsafe.Offsetof(r.MaxCnt)},
		{"copr_roi_on=", unsafe.Offsetof(r.ROIOn)},
	}, roiArrayFields(len(r.ROI), unsafe.Offsetof(r.ROI))...)
}

func fieldsV6() []Field {
	var r RegV6
	out := []Field{
		{"copr_mask=", unsafe.Offsetof(r.Mask)},
		{"copr_cnt_re=", unsafe.Offsetof(r.CntRe)},
		{"copr_ilc=", unsafe.Offsetof(r.Ilc)},
		{"copr_gamma=", unsafe.Offsetof(r.Gamma)},
		{"copr_en=", unsafe.Offsetof(r.En)},
		{"copr_max_cnt=", unsafe.Offsetof(r.MaxCnt)},
		{"copr_roi_on=", unsafe.Offsetof(r.ROIOn)},
		{"copr_roi_ctrl=", unsafe.Offsetof(r.ROICtrl)},
	}
	out = append(out, effArrayFields(len(r.Eff), unsafe.Offsetof(r.Eff))...)
	return append(out, roiArrayFields(len(r.ROI), unsafe.Offsetof(r.ROI))...)
}

func fieldsV0_1() []Field {
	var r RegV0_1
	out := []Field{
		{"copr_mask=", unsafe.Offsetof(r.Mask)},
		{"copr_cnt_re=", unsafe.Offsetof(r.CntRe)},
		{"copr_ilc=", unsafe.Offsetof(r.Ilc)},
		{"copr_gamma=", unsafe.Offsetof(r.Gamma)},
		{"copr_en=", unsafe.Offsetof(r.En)},
		{"copr_roi_on=", unsafe.Offsetof(r.ROIOn)},
	}
	out = append(out, effArrayFields(len(r.Eff), unsafe.Offsetof(r.Eff))...)
	return append(out, roiArrayFields(len(r.ROI), unsafe.Offsetof(r.ROI))...)
}
