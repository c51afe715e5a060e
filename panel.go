// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package panel drives the measurement blocks of display driver ICs.
//
// The COPR block is implemented in package copr, the command sequences it
// runs on the DDI in package panelseq.
package panel

import (
	"periph.io/x/conn/v3/driver/driverreg"
	"periph.io/x/host/v3"
)

// Init calls host.Init() and returns it as-is.
//
// The only difference is that by calling panel.Init(), you are guaranteed to
// have the SPI ports and GPIO pins a panel is wired to registered before
// looking them up by name.
func Init() (*driverreg.State, error) {
	return host.Init()
}
