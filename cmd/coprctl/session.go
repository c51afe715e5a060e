// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"log"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/panel/v3"
	"periph.io/x/panel/v3/copr"
	"periph.io/x/panel/v3/panelseq"
)

// session is an opened panel.
type session struct {
	port spi.PortCloser
	p    *panelseq.Panel
	d    *copr.Dev
	te   *panelseq.TE
}

func open(c *config) (*session, error) {
	opts, err := c.opts()
	if err != nil {
		return nil, err
	}
	seqs, err := c.sequences()
	if err != nil {
		return nil, err
	}
	if _, err := panel.Init(); err != nil {
		return nil, err
	}
	port, err := spireg.Open(c.SPI)
	if err != nil {
		return nil, err
	}
	s := &session{port: port}
	conn, err := port.Connect(physic.Frequency(c.Hz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		s.close()
		return nil, err
	}
	s.p = panelseq.New(conn, nil)
	for name, cmds := range seqs {
		s.p.AddSequence(name, cmds...)
	}
	s.p.SetDisplayOn(c.DisplayOn)
	if s.d, err = copr.New(s.p, opts); err != nil {
		s.close()
		return nil, err
	}
	if err := s.p.SetupCOPR(opts.Version, opts.Transport, s.d.Payload); err != nil {
		s.close()
		return nil, err
	}
	if c.TE != "" {
		pin := gpioreg.ByName(c.TE)
		if pin == nil {
			s.close()
			return nil, fmt.Errorf("no pin %q", c.TE)
		}
		d := s.d
		if s.te, err = panelseq.WatchTE(pin, func() { d.UpdateStart(1) }); err != nil {
			s.close()
			return nil, err
		}
	}
	log.Printf("%s: %s over %s on %s", s.d, opts.Version, opts.Transport, conn)
	return s, nil
}

// close halts everything in reverse order and logs the errors.
func (s *session) close() {
	if s.te != nil {
		if err := s.te.Halt(); err != nil {
			log.Printf("%s: %v", s.te, err)
		}
	}
	if s.d != nil {
		if err := s.d.Halt(); err != nil {
			log.Printf("%s: %v", s.d, err)
		}
	}
	if err := s.port.Close(); err != nil {
		log.Printf("%s: %v", s.port, err)
	}
}
