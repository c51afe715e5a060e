// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package panelseq runs named command sequences against a display driver IC
// over a periph connection.
//
// A sequence is a list of Command: raw writes, packets whose payload is
// produced by a bound source at execution time, delays and reads. A read
// latches the bytes returned by the DDI in a named resource, which is then
// retrieved with ReadResource.
//
// Panel implements copr.Panel.
package panelseq

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3"
)

var (
	// ErrNoSequence is returned when executing an unknown sequence.
	ErrNoSequence = errors.New("panelseq: no such sequence")
	// ErrNoResource is returned when accessing an unknown resource or payload
	// source.
	ErrNoResource = errors.New("panelseq: no such resource")
)

// Command is one step of a sequence.
type Command interface {
	fmt.Stringer
	exec(p *Panel) error
}

// Write sends the bytes as is.
type Write []byte

func (w Write) String() string {
	return fmt.Sprintf("Write(% x)", []byte(w))
}

func (w Write) exec(p *Panel) error {
	return p.c.Tx(w, nil)
}

// Packet sends Cmd followed by the bytes returned by the source bound as
// Source.
type Packet struct {
	Cmd    byte
	Source string
}

func (k Packet) String() string {
	return fmt.Sprintf("Packet(%#02x, %s)", k.Cmd, k.Source)
}

func (k Packet) exec(p *Panel) error {
	src, ok := p.srcs[k.Source]
	if !ok {
		return fmt.Errorf("%w: source %q", ErrNoResource, k.Source)
	}
	b, err := src()
	if err != nil {
		return fmt.Errorf("panelseq: source %q: %w", k.Source, err)
	}
	w := make([]byte, 0, 1+len(b))
	w = append(w, k.Cmd)
	return p.c.Tx(append(w, b...), nil)
}

// Delay waits for the duration.
type Delay time.Duration

func (d Delay) String() string {
	return fmt.Sprintf("Delay(%s)", time.Duration(d))
}

func (d Delay) exec(p *Panel) error {
	p.clk.Sleep(time.Duration(d))
	return nil
}

// Read sends Cmd and latches the reply in Resource. The reply is as long as
// the resource.
//
// On a full duplex connection the command is clocked out first and the reply
// is the bytes received after it.
type Read struct {
	Cmd      byte
	Resource string
}

func (r Read) String() string {
	return fmt.Sprintf("Read(%#02x, %s)", r.Cmd, r.Resource)
}

func (r Read) exec(p *Panel) error {
	buf, ok := p.res[r.Resource]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoResource, r.Resource)
	}
	if p.c.Duplex() == conn.Full {
		w := make([]byte, 1+len(buf))
		w[0] = r.Cmd
		rd := make([]byte, len(w))
		if err := p.c.Tx(w, rd); err != nil {
			return err
		}
		copy(buf, rd[1:])
		return nil
	}
	return p.c.Tx([]byte{r.Cmd}, buf)
}

// Opts is the configuration of a Panel.
type Opts struct {
	// Clock is used by Delay. Defaults to the real clock.
	Clock clockwork.Clock
}

// Panel is a DDI reachable through a conn.Conn.
//
// All the methods are safe to call concurrently. Sequences are executed one
// at a time.
type Panel struct {
	// Immutable.
	c   conn.Conn
	clk clockwork.Clock

	mu sync.Mutex
	// Mutable.
	seqs map[string][]Command
	res  map[string][]byte
	srcs map[string]func() ([]byte, error)
	on   bool
}

// New returns a Panel talking over c.
func New(c conn.Conn, opts *Opts) *Panel {
	p := &Panel{
		c:    c,
		seqs: map[string][]Command{},
		res:  map[string][]byte{},
		srcs: map[string]func() ([]byte, error){},
	}
	if opts != nil {
		p.clk = opts.Clock
	}
	if p.clk == nil {
		p.clk = clockwork.NewRealClock()
	}
	return p
}

func (p *Panel) String() string {
	return p.c.String()
}

// Halt implements conn.Resource.
func (p *Panel) Halt() error {
	return nil
}

// AddSequence registers or replaces the named sequence.
func (p *Panel) AddSequence(name string, cmds ...Command) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seqs[name] = append([]Command(nil), cmds...)
}

// Sequences returns the registered sequence names, sorted.
func (p *Panel) Sequences() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.seqs))
	for n := range p.seqs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// AddResource registers a zeroed resource of size bytes. Registering an
// existing resource resizes and zeroes it.
func (p *Panel) AddResource(name string, size int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.res[name] = make([]byte, size)
}

// Bind sets the payload source used by Packet commands referring to name.
//
// src is called while a sequence runs; it must not call back into p.
func (p *Panel) Bind(name string, src func() ([]byte, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.srcs[name] = src
}

// SetDisplayOn records whether the display init sequence ran.
func (p *Panel) SetDisplayOn(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.on = on
}

// DisplayOn implements copr.Panel.
func (p *Panel) DisplayOn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.on
}

// ExecuteSequence implements copr.Panel.
//
// Execution stops at the first failing command.
func (p *Panel) ExecuteSequence(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cmds, ok := p.seqs[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoSequence, name)
	}
	start := p.clk.Now()
	for i, c := range cmds {
		if err := c.exec(p); err != nil {
			return fmt.Errorf("panelseq: %s[%d] %s: %w", name, i, c, err)
		}
	}
	logf("%s: %s in %s", p, name, p.clk.Since(start))
	return nil
}

// ResourceSize implements copr.Panel.
func (p *Panel) ResourceSize(name string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.res[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrNoResource, name)
	}
	return len(b), nil
}

// ReadResource implements copr.Panel.
//
// b must be exactly the size of the resource.
func (p *Panel) ReadResource(name string, b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.res[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoResource, name)
	}
	if len(b) != len(r) {
		return fmt.Errorf("panelseq: %q is %d bytes, got a %d bytes buffer", name, len(r), len(b))
	}
	copy(b, r)
	return nil
}

// ParseCommand parses the textual form of a command:
//
//	write 51 ff         raw bytes in hex
//	packet e1 copr      command byte and payload source
//	delay 20ms          time.ParseDuration syntax
//	read e2 copr_dsi    command byte and resource
func ParseCommand(s string) (Command, error) {
	f := strings.Fields(s)
	if len(f) < 2 {
		return nil, fmt.Errorf("panelseq: invalid command %q", s)
	}
	kind := strings.ToLower(f[0])
	switch kind {
	case "write":
		b, err := parseHex(f[1:])
		if err != nil {
			return nil, fmt.Errorf("panelseq: invalid command %q: %w", s, err)
		}
		return Write(b), nil
	case "packet", "read":
		if len(f) != 3 {
			return nil, fmt.Errorf("panelseq: invalid command %q", s)
		}
		b, err := parseHex(f[1:2])
		if err != nil {
			return nil, fmt.Errorf("panelseq: invalid command %q: %w", s, err)
		}
		if kind == "read" {
			return Read{Cmd: b[0], Resource: f[2]}, nil
		}
		return Packet{Cmd: b[0], Source: f[2]}, nil
	case "delay":
		d, err := time.ParseDuration(f[1])
		if err != nil || len(f) != 2 {
			return nil, fmt.Errorf("panelseq: invalid command %q", s)
		}
		return Delay(d), nil
	default:
		return nil, fmt.Errorf("panelseq: unknown command %q", s)
	}
}

func parseHex(f []string) ([]byte, error) {
	out := make([]byte, 0, len(f))
	for _, s := range f {
		v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid byte %q", s)
		}
		out = append(out, byte(v))
	}
	return out, nil
}
