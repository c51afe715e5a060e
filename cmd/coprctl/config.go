// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/panel/v3/copr"
	"periph.io/x/panel/v3/panelseq"
)

// config is the panel description.
//
//	name: main
//	version: V6
//	transport: spi
//	spi: SPI0.0
//	hz: 1000000
//	te: GPIO22
//	frame_rate: 60
//	display_on: true
//	clear_count: false
//	assign:
//	  - copr_en=1
//	sequences:
//	  set-copr-seq:
//	    - packet e1 copr
//	    - delay 1ms
type config struct {
	Name       string              `yaml:"name"`
	Version    string              `yaml:"version"`
	Transport  string              `yaml:"transport"`
	SPI        string              `yaml:"spi"`
	Hz         int64               `yaml:"hz"`
	TE         string              `yaml:"te"`
	FrameRate  int64               `yaml:"frame_rate"`
	DisplayOn  bool                `yaml:"display_on"`
	ClearCount bool                `yaml:"clear_count"`
	Assign     []string            `yaml:"assign"`
	Sequences  map[string][]string `yaml:"sequences"`
}

func loadConfig(path string) (*config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := parseConfig(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func parseConfig(b []byte) (*config, error) {
	c := &config{Version: "V6", Transport: "dsi", Hz: 1000000, FrameRate: 60}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return nil, err
	}
	if c.SPI == "" {
		return nil, errors.New("spi is required")
	}
	if c.Hz <= 0 || c.FrameRate <= 0 {
		return nil, errors.New("hz and frame_rate must be positive")
	}
	return c, nil
}

// opts returns the COPR device options described by c.
func (c *config) opts() (*copr.Opts, error) {
	v, err := copr.ParseVersion(c.Version)
	if err != nil {
		return nil, err
	}
	t, err := copr.ParseTransport(c.Transport)
	if err != nil {
		return nil, err
	}
	// Validate the assignments now instead of when opening the bus.
	r := copr.NewReg(v)
	for _, a := range c.Assign {
		if err := copr.SetField(r, a); err != nil {
			return nil, err
		}
	}
	return &copr.Opts{
		Name:       c.Name,
		Version:    v,
		Transport:  t,
		Reg:        r,
		ClearCount: c.ClearCount,
		FrameRate:  physic.Frequency(c.FrameRate) * physic.Hertz,
		Poll:       true,
	}, nil
}

// sequences parses the sequence overrides.
func (c *config) sequences() (map[string][]panelseq.Command, error) {
	out := make(map[string][]panelseq.Command, len(c.Sequences))
	for name, lines := range c.Sequences {
		cmds := make([]panelseq.Command, 0, len(lines))
		for _, l := range lines {
			cmd, err := panelseq.ParseCommand(l)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			cmds = append(cmds, cmd)
		}
		out[name] = cmds
	}
	return out, nil
}
