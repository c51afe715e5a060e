// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package copr

import (
	"fmt"
	"strings"
)

// Version is the COPR register generation implemented by a DDI.
//
// The numeric values are not ordered by capability. Use the predicates below
// instead of comparing versions.
type Version uint8

const (
	V0 Version = iota
	V1
	V2
	V3
	V5
	V6
	V0_1
	numVersions
)

const versionName = "V0V1V2V3V5V6V0_1"

var versionIndex = [...]uint8{0, 2, 4, 6, 8, 10, 12, 16}

func (v Version) String() string {
	if v >= numVersions {
		return fmt.Sprintf("Version(%d)", v)
	}
	return versionName[versionIndex[v]:versionIndex[v+1]]
}

// ParseVersion returns the Version named s, case insensitive.
func ParseVersion(s string) (Version, error) {
	for v := V0; v < numVersions; v++ {
		if strings.EqualFold(v.String(), s) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("copr: unknown version %q: %w", s, ErrInvalidArgument)
}

func (v Version) valid() bool {
	return v < numVersions
}

// averaging returns true when the hardware keeps its own running average, so
// avg_copr is fed to the accumulator instead of cur_copr snapshots.
func (v Version) averaging() bool {
	switch v {
	case V2, V3, V5, V6, V0_1:
		return true
	default:
		return false
	}
}

// polled returns true for the generations that need a software sampler
// running every frame.
func (v Version) polled() bool {
	return v == V0 || v == V1
}

// directROI returns true when all regions are read back in one measurement.
func (v Version) directROI() bool {
	switch v {
	case V3, V5, V6, V0_1:
		return true
	default:
		return false
	}
}

// ROIColors is the number of color channels read back per region.
func (v Version) ROIColors() int {
	switch v {
	case V6, V0_1:
		return 4
	case V1, V2, V3, V5:
		return 3
	default:
		return 0
	}
}

// MaxROI is the maximum number of regions ROIValue accepts.
func (v Version) MaxROI() int {
	switch v {
	case V1, V2:
		return maxIterativeROI
	case V3, V5, V6:
		return 5
	case V0_1:
		return 2
	default:
		return 0
	}
}

// roiSlots is the number of ROI rectangles in the register image.
func (v Version) roiSlots() int {
	switch v {
	case V1, V2:
		return 1
	case V3:
		return 6
	case V5, V6:
		return 5
	case V0_1:
		return 2
	default:
		return 0
	}
}

// Transport is the bus the measurement is read back through.
type Transport uint8

const (
	DSI Transport = iota
	SPI
)

func (t Transport) String() string {
	switch t {
	case DSI:
		return "DSI"
	case SPI:
		return "SPI"
	default:
		return fmt.Sprintf("Transport(%d)", t)
	}
}

// ParseTransport returns the Transport named s, case insensitive.
func ParseTransport(s string) (Transport, error) {
	switch strings.ToLower(s) {
	case "dsi", "":
		return DSI, nil
	case "spi":
		return SPI, nil
	}
	return 0, fmt.Errorf("copr: unknown transport %q: %w", s, ErrInvalidArgument)
}

// Sequence and resource names looked up on the Panel.
const (
	SeqSet           = "set-copr-seq"
	SeqGetDSI        = "get-copr-dsi-seq"
	SeqGetSPI        = "get-copr-spi-seq"
	SeqClearCountOn  = "clear-count-on-seq"
	SeqClearCountOff = "clear-count-off-seq"

	ResDSI = "copr_dsi"
	ResSPI = "copr_spi"
)

func (t Transport) getSeq() string {
	if t == SPI {
		return SeqGetSPI
	}
	return SeqGetDSI
}

func (t Transport) resource() string {
	if t == SPI {
		return ResSPI
	}
	return ResDSI
}
