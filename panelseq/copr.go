// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package panelseq

import (
	"fmt"

	"periph.io/x/panel/v3/copr"
)

// COPRSource is the payload source name the default set sequence sends.
const COPRSource = "copr"

// DDI command bytes of the default COPR command set.
const (
	cmdCOPRSet   = 0xE1
	cmdCOPRDSI   = 0xE2
	cmdCOPRSPI   = 0xE3
	cmdCOPRClear = 0xE4
)

// COPRSequences returns the default COPR command set of a generic DDI.
//
// The set sequence sends the packed register image bound as COPRSource. The
// clear count pair toggles the frame counter reset bit.
func COPRSequences() map[string][]Command {
	return map[string][]Command{
		copr.SeqSet:           {Packet{Cmd: cmdCOPRSet, Source: COPRSource}},
		copr.SeqGetDSI:        {Read{Cmd: cmdCOPRDSI, Resource: copr.ResDSI}},
		copr.SeqGetSPI:        {Read{Cmd: cmdCOPRSPI, Resource: copr.ResSPI}},
		copr.SeqClearCountOn:  {Write{cmdCOPRClear, 0x01}},
		copr.SeqClearCountOff: {Write{cmdCOPRClear, 0x00}},
	}
}

// SetupCOPR registers the COPR readback resource of v on transport t and binds
// src as the set payload.
//
// Sequences already registered are kept, so a panel description can override
// the default command set.
func (p *Panel) SetupCOPR(v copr.Version, t copr.Transport, src func() ([]byte, error)) error {
	n := v.ReadbackSize(t)
	if n == 0 {
		return fmt.Errorf("panelseq: no COPR readback for %s", v)
	}
	name := copr.ResDSI
	if t == copr.SPI {
		name = copr.ResSPI
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for s, cmds := range COPRSequences() {
		if _, ok := p.seqs[s]; !ok {
			p.seqs[s] = cmds
		}
	}
	p.res[name] = make([]byte, n)
	p.srcs[COPRSource] = src
	return nil
}
