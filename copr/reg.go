// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package copr

import "unsafe"

// ROI is a rectangular region of interest, in panel pixels.
//
// Coordinates are 13 bits wide on the wire.
type ROI struct {
	XS uint32 // 0x00
	YS uint32 // 0x04
	XE uint32 // 0x08
	YE uint32 // 0x0C
}

// Efficiency is the per region RGB weight used by V6 and V0_1.
//
// Each weight is 10 bits wide on the wire.
type Efficiency struct {
	Er uint32 // 0x00
	Eg uint32 // 0x04
	Eb uint32 // 0x08
}

// Reg is the register image of one COPR generation.
//
// It is implemented by *RegV0, *RegV1, *RegV2, *RegV3, *RegV5, *RegV6 and
// *RegV0_1.
type Reg interface {
	// Version returns the generation this image belongs to.
	Version() Version
	base() unsafe.Pointer
}

// RegV0 is the register image of the first generation. It has no region
// support.
//
// It is 20 bytes long.
type RegV0 struct {
	En    uint32 // 0x00
	Gamma uint32 // 0x04 0 is gamma 1.0, 1 is gamma 2.2
	Er    uint32 // 0x08
	Eg    uint32 // 0x0C
	Eb    uint32 // 0x10
}

// RegV1 is the register image of a V1 DDI. It has a single ROI slot.
//
// It is 52 bytes long.
type RegV1 struct {
	CntRe  uint32 // 0x00 Counter reset
	Ilc    uint32 // 0x04 Illuminance compensation
	Gamma  uint32 // 0x08
	En     uint32 // 0x0C
	Er     uint32 // 0x10
	Eg     uint32 // 0x14
	Eb     uint32 // 0x18
	MaxCnt uint32 // 0x1C
	ROIOn  uint32 // 0x20
	ROI    ROI    // 0x24
}

// RegV2 is the register image of a V2 DDI. It adds the mask bit and the
// compensated efficiencies to V1.
//
// It is 68 bytes long.
type RegV2 struct {
	Mask   uint32 // 0x00
	CntRe  uint32 // 0x04
	Ilc    uint32 // 0x08
	Gamma  uint32 // 0x0C
	En     uint32 // 0x10
	Er     uint32 // 0x14
	Eg     uint32 // 0x18
	Eb     uint32 // 0x1C
	Erc    uint32 // 0x20
	Egc    uint32 // 0x24
	Ebc    uint32 // 0x28
	MaxCnt uint32 // 0x2C
	ROIOn  uint32 // 0x30
	ROI    ROI    // 0x34
}

// RegV3 is the register image of a V3 DDI, with 6 ROI slots.
//
// It is 148 bytes long.
type RegV3 struct {
	Mask   uint32 // 0x00
	CntRe  uint32 // 0x04
	Ilc    uint32 // 0x08
	Gamma  uint32 // 0x0C
	En     uint32 // 0x10
	Er     uint32 // 0x14
	Eg     uint32 // 0x18
	Eb     uint32 // 0x1C
	Erc    uint32 // 0x20
	Egc    uint32 // 0x24
	Ebc    uint32 // 0x28
	MaxCnt uint32 // 0x2C
	ROIOn  uint32 // 0x30 bitmask
	ROI    [6]ROI // 0x34
}

// RegV5 is the register image of a V5 DDI, with 5 ROI slots.
//
// It is 132 bytes long.
type RegV5 struct {
	Mask   uint32 // 0x00
	CntRe  uint32 // 0x04
	Ilc    uint32 // 0x08
	Gamma  uint32 // 0x0C
	En     uint32 // 0x10
	Er     uint32 // 0x14
	Eg     uint32 // 0x18
	Eb     uint32 // 0x1C
	Erc    uint32 // 0x20
	Egc    uint32 // 0x24
	Ebc    uint32 // 0x28
	MaxCnt uint32 // 0x2C
	ROIOn  uint32 // 0x30 bitmask
	ROI    [5]ROI // 0x34
}

// RegV6 is the register image of a V6 DDI. Each of the 5 regions has its own
// efficiency weights.
//
// It is 172 bytes long.
type RegV6 struct {
	Mask    uint32        // 0x00
	CntRe   uint32        // 0x04
	Ilc     uint32        // 0x08
	Gamma   uint32        // 0x0C
	En      uint32        // 0x10
	MaxCnt  uint32        // 0x14
	ROIOn   uint32        // 0x18 bitmask
	ROICtrl uint32        // 0x1C
	Eff     [5]Efficiency // 0x20
	ROI     [5]ROI        // 0x5C
}

// RegV0_1 is the register image of the reduced V6 layout with 2 regions.
//
// It is 80 bytes long.
type RegV0_1 struct {
	Mask  uint32        // 0x00
	CntRe uint32        // 0x04
	Ilc   uint32        // 0x08
	Gamma uint32        // 0x0C
	En    uint32        // 0x10
	ROIOn uint32        // 0x14 bitmask
	Eff   [2]Efficiency // 0x18
	ROI   [2]ROI        // 0x30
}

func (r *RegV0) Version() Version   { return V0 }
func (r *RegV1) Version() Version   { return V1 }
func (r *RegV2) Version() Version   { return V2 }
func (r *RegV3) Version() Version   { return V3 }
func (r *RegV5) Version() Version   { return V5 }
func (r *RegV6) Version() Version   { return V6 }
func (r *RegV0_1) Version() Version { return V0_1 }

func (r *RegV0) base() unsafe.Pointer   { return unsafe.Pointer(r) }
func (r *RegV1) base() unsafe.Pointer   { return unsafe.Pointer(r) }
func (r *RegV2) base() unsafe.Pointer   { return unsafe.Pointer(r) }
func (r *RegV3) base() unsafe.Pointer   { return unsafe.Pointer(r) }
func (r *RegV5) base() unsafe.Pointer   { return unsafe.Pointer(r) }
func (r *RegV6) base() unsafe.Pointer   { return unsafe.Pointer(r) }
func (r *RegV0_1) base() unsafe.Pointer { return unsafe.Pointer(r) }

// NewReg returns a zeroed register image for v, or nil for an unknown
// version.
func NewReg(v Version) Reg {
	switch v {
	case V0:
		return &RegV0{}
	case V1:
		return &RegV1{}
	case V2:
		return &RegV2{}
	case V3:
		return &RegV3{}
	case V5:
		return &RegV5{}
	case V6:
		return &RegV6{}
	case V0_1:
		return &RegV0_1{}
	default:
		return nil
	}
}

// Size returns the size in bytes of the register image for v, or 0 for an
// unknown version.
func (v Version) Size() uintptr {
	switch v {
	case V0:
		return unsafe.Sizeof(RegV0{})
	case V1:
		return unsafe.Sizeof(RegV1{})
	case V2:
		return unsafe.Sizeof(RegV2{})
	case V3:
		return unsafe.Sizeof(RegV3{})
	case V5:
		return unsafe.Sizeof(RegV5{})
	case V6:
		return unsafe.Sizeof(RegV6{})
	case V0_1:
		return unsafe.Sizeof(RegV0_1{})
	default:
		return 0
	}
}

// cloneReg returns a deep copy of r.
func cloneReg(r Reg) Reg {
	switch t := r.(type) {
	case *RegV0:
		c := *t
		return &c
	case *RegV1:
		c := *t
		return &c
	case *RegV2:
		c := *t
		return &c
	case *RegV3:
		c := *t
		return &c
	case *RegV5:
		c := *t
		return &c
	case *RegV6:
		c := *t
		return &c
	case *RegV0_1:
		c := *t
		return &c
	default:
		return nil
	}
}

// restoreReg overwrites dst with src. Both must be the same generation.
func restoreReg(dst, src Reg) bool {
	switch d := dst.(type) {
	case *RegV0:
		s, ok := src.(*RegV0)
		if ok {
			*d = *s
		}
		return ok
	case *RegV1:
		s, ok := src.(*RegV1)
		if ok {
			*d = *s
		}
		return ok
	case *RegV2:
		s, ok := src.(*RegV2)
		if ok {
			*d = *s
		}
		return ok
	case *RegV3:
		s, ok := src.(*RegV3)
		if ok {
			*d = *s
		}
		return ok
	case *RegV5:
		s, ok := src.(*RegV5)
		if ok {
			*d = *s
		}
		return ok
	case *RegV6:
		s, ok := src.(*RegV6)
		if ok {
			*d = *s
		}
		return ok
	case *RegV0_1:
		s, ok := src.(*RegV0_1)
		if ok {
			*d = *s
		}
		return ok
	default:
		return false
	}
}

// regBytes aliases the raw memory of r. Used to compare images byte for byte.
func regBytes(r Reg) []byte {
	return unsafe.Slice((*byte)(r.base()), r.Version().Size())
}
