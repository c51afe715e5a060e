// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package copr implements the COPR (color on pixel ratio) block found in
// OLED display driver ICs.
//
// COPR measures the average luminance of the displayed content, optionally
// per color channel and per rectangular region of interest. It is used for
// burn-in compensation and power estimation.
//
// Seven register generations exist, each with its own register layout and
// readback format: V0, V1, V2, V3, V5, V6 and V0_1. The register images are
// described by per generation field tables, which can be looked up by index
// or by "name=value" strings.
//
// The package doesn't talk to the bus directly. It runs named command
// sequences and reads named resources through the Panel interface;
// periph.io/x/panel/v3/panelseq implements it over a periph conn.Conn.
//
// Use build tag periph_panel_copr_debug to enable verbose debugging.
package copr
